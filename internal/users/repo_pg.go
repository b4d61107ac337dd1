package users

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the Postgres SQLSTATE for a unique index conflict.
const uniqueViolation = "23505"

type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) List(ctx context.Context) ([]User, error) {
	const query = `
SELECT id, name, email
FROM users
ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []User{}
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *PGRepo) GetByID(ctx context.Context, id int) (User, error) {
	const query = `
SELECT id, name, email
FROM users
WHERE id = $1
LIMIT 1`
	return r.getOne(ctx, query, id)
}

func (r *PGRepo) GetByEmail(ctx context.Context, email string) (User, error) {
	const query = `
SELECT id, name, email
FROM users
WHERE lower(email) = lower($1)
LIMIT 1`
	return r.getOne(ctx, query, email)
}

func (r *PGRepo) Create(ctx context.Context, name, email string) (User, error) {
	const query = `
INSERT INTO users (name, email, created_at, updated_at)
VALUES ($1, $2, now(), now())
RETURNING id`
	u := User{Name: name, Email: email}
	if err := r.DB.QueryRowContext(ctx, query, name, email).Scan(&u.ID); err != nil {
		return User{}, mapPGError(err)
	}
	return u, nil
}

func (r *PGRepo) Update(ctx context.Context, user User) (User, error) {
	const query = `
UPDATE users
SET name = $2, email = $3, updated_at = now()
WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query, user.ID, user.Name, user.Email)
	if err != nil {
		return User{}, mapPGError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (r *PGRepo) Delete(ctx context.Context, id int) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) getOne(ctx context.Context, query string, arg any) (User, error) {
	var u User
	err := r.DB.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Name, &u.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

func mapPGError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrEmailExists
	}
	return err
}
