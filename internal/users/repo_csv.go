package users

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"autosurvey-backend/internal/roster"
	"autosurvey-backend/internal/shared/telemetry"
)

// CSVRepo persists the roster as a name,email CSV file. Ids are assigned by
// row order when the file is loaded, so they are stable only within a process.
type CSVRepo struct {
	path string
	mem  *MemoryRepo
	mu   sync.Mutex // serializes mutate-then-write
}

// NewCSVRepo loads path, creating it with a header row when missing.
func NewCSVRepo(path string) (*CSVRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir roster dir: %w", err)
	}
	ps, err := roster.LoadCSV(path)
	if errors.Is(err, fs.ErrNotExist) {
		r := &CSVRepo{path: path, mem: NewMemoryRepo()}
		if err := r.persist(nil); err != nil {
			return nil, err
		}
		return r, nil
	}
	if err != nil {
		return nil, err
	}
	users := make([]User, 0, len(ps))
	for i, p := range ps {
		users = append(users, User{ID: i + 1, Name: p.Name, Email: p.Email})
	}
	telemetry.Info("users.csv_loaded", map[string]any{"path": path, "users": len(users)})
	return &CSVRepo{path: path, mem: newMemoryRepoFrom(users)}, nil
}

func (r *CSVRepo) List(ctx context.Context) ([]User, error) { return r.mem.List(ctx) }

func (r *CSVRepo) GetByID(ctx context.Context, id int) (User, error) { return r.mem.GetByID(ctx, id) }

func (r *CSVRepo) GetByEmail(ctx context.Context, email string) (User, error) {
	return r.mem.GetByEmail(ctx, email)
}

func (r *CSVRepo) Create(ctx context.Context, name, email string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.mem.Create(ctx, name, email)
	if err != nil {
		return User{}, err
	}
	return u, r.save()
}

func (r *CSVRepo) Update(ctx context.Context, user User) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.mem.Update(ctx, user)
	if err != nil {
		return User{}, err
	}
	return u, r.save()
}

func (r *CSVRepo) Delete(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.mem.Delete(ctx, id); err != nil {
		return err
	}
	return r.save()
}

func (r *CSVRepo) save() error {
	r.mem.mu.RLock()
	users := r.mem.snapshot()
	r.mem.mu.RUnlock()
	return r.persist(users)
}

// persist rewrites the whole file through a temp file and rename.
func (r *CSVRepo) persist(users []User) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"name", "email"})
	for _, u := range users {
		_ = w.Write([]string{u.Name, u.Email})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encode roster: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".users-*.csv")
	if err != nil {
		return fmt.Errorf("write roster: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write roster: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write roster: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("write roster: %w", err)
	}
	return nil
}
