package users

import (
	"context"
	"errors"
	"strings"

	"autosurvey-backend/internal/roster"
	"autosurvey-backend/internal/shared/telemetry"
)

var errNotConfigured = errors.New("users service not configured")

type Service struct {
	Repo Repo
}

func NewService(repo Repo) *Service {
	return &Service{Repo: repo}
}

func (s *Service) List(ctx context.Context) ([]User, error) {
	if s == nil || s.Repo == nil {
		return nil, errNotConfigured
	}
	return s.Repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id int) (User, error) {
	if s == nil || s.Repo == nil {
		return User{}, errNotConfigured
	}
	return s.Repo.GetByID(ctx, id)
}

// Create adds a user. The email must be syntactically valid and unused.
func (s *Service) Create(ctx context.Context, name, email string) (User, error) {
	if s == nil || s.Repo == nil {
		return User{}, errNotConfigured
	}
	name, email = strings.TrimSpace(name), strings.TrimSpace(email)
	if err := roster.ValidateIdentity(name, email); err != nil {
		return User{}, err
	}
	if _, err := s.Repo.GetByEmail(ctx, email); err == nil {
		return User{}, ErrEmailExists
	} else if !errors.Is(err, ErrNotFound) {
		return User{}, err
	}
	u, err := s.Repo.Create(ctx, name, email)
	if err != nil {
		return User{}, err
	}
	telemetry.Info("users.created", map[string]any{"id": u.ID, "email": u.Email})
	return u, nil
}

// Update replaces a user's name and email.
func (s *Service) Update(ctx context.Context, id int, name, email string) (User, error) {
	if s == nil || s.Repo == nil {
		return User{}, errNotConfigured
	}
	name, email = strings.TrimSpace(name), strings.TrimSpace(email)
	if err := roster.ValidateIdentity(name, email); err != nil {
		return User{}, err
	}
	if _, err := s.Repo.GetByID(ctx, id); err != nil {
		return User{}, err
	}
	if other, err := s.Repo.GetByEmail(ctx, email); err == nil && other.ID != id {
		return User{}, ErrEmailExists
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return User{}, err
	}
	u, err := s.Repo.Update(ctx, User{ID: id, Name: name, Email: email})
	if err != nil {
		return User{}, err
	}
	telemetry.Info("users.updated", map[string]any{"id": u.ID, "email": u.Email})
	return u, nil
}

func (s *Service) Delete(ctx context.Context, id int) error {
	if s == nil || s.Repo == nil {
		return errNotConfigured
	}
	if err := s.Repo.Delete(ctx, id); err != nil {
		return err
	}
	telemetry.Info("users.deleted", map[string]any{"id": id})
	return nil
}

// Participants returns a read-only snapshot of the roster for a batch run.
func (s *Service) Participants(ctx context.Context) ([]roster.Participant, error) {
	users, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]roster.Participant, 0, len(users))
	for _, u := range users {
		out = append(out, roster.Participant{Name: u.Name, Email: u.Email})
	}
	return out, nil
}
