package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/domain"
)

// ErrNotFound is wrapped by repositories when a row does not exist.
var ErrNotFound = errors.New("not found")

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	// GetByIdentity matches the e-mail or the username, case-insensitively.
	GetByIdentity(ctx context.Context, identity string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	UpdateLastLogin(ctx context.Context, id uuid.UUID) error
	ResetFailedLogins(ctx context.Context, id uuid.UUID) error
	IncrementFailedLogins(ctx context.Context, id uuid.UUID) error
	AdminExists(ctx context.Context) (bool, error)
	// List pages through users, newest first. search matches e-mail, username
	// and display name.
	List(ctx context.Context, limit, offset int, search string) ([]*domain.User, int, error)
}
