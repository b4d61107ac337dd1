package users

import (
	"context"
	"strings"
	"sync"
)

// MemoryRepo keeps users in insertion order. Ids start at 1 and are never
// reused while the process lives.
type MemoryRepo struct {
	mu     sync.RWMutex
	users  []User
	nextID int
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{nextID: 1}
}

// newMemoryRepoFrom seeds the repo; nextID continues after the largest id.
func newMemoryRepoFrom(users []User) *MemoryRepo {
	r := &MemoryRepo{users: append([]User(nil), users...), nextID: 1}
	for _, u := range users {
		if u.ID >= r.nextID {
			r.nextID = u.ID + 1
		}
	}
	return r
}

func (r *MemoryRepo) List(ctx context.Context) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]User{}, r.users...), nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, id int) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i := r.indexOf(id); i >= 0 {
		return r.users[i], nil
	}
	return User{}, ErrNotFound
}

func (r *MemoryRepo) GetByEmail(ctx context.Context, email string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, strings.TrimSpace(email)) {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *MemoryRepo) Create(ctx context.Context, name, email string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.emailTaken(email, 0) {
		return User{}, ErrEmailExists
	}
	u := User{ID: r.nextID, Name: name, Email: email}
	r.nextID++
	r.users = append(r.users, u)
	return u, nil
}

func (r *MemoryRepo) Update(ctx context.Context, user User) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(user.ID)
	if i < 0 {
		return User{}, ErrNotFound
	}
	if r.emailTaken(user.Email, user.ID) {
		return User{}, ErrEmailExists
	}
	r.users[i] = user
	return user, nil
}

func (r *MemoryRepo) Delete(ctx context.Context, id int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(id)
	if i < 0 {
		return ErrNotFound
	}
	r.users = append(r.users[:i], r.users[i+1:]...)
	return nil
}

// snapshot returns a copy of the users; callers hold r.mu.
func (r *MemoryRepo) snapshot() []User {
	return append([]User(nil), r.users...)
}

func (r *MemoryRepo) indexOf(id int) int {
	for i, u := range r.users {
		if u.ID == id {
			return i
		}
	}
	return -1
}

func (r *MemoryRepo) emailTaken(email string, exceptID int) bool {
	for _, u := range r.users {
		if u.ID != exceptID && strings.EqualFold(u.Email, strings.TrimSpace(email)) {
			return true
		}
	}
	return false
}
