package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/domain"
)

type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.Session, error)
	Touch(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByUserID(ctx context.Context, userID uuid.UUID) error
	// DeleteExpired removes expired sessions and returns how many went.
	DeleteExpired(ctx context.Context) (int64, error)
}
