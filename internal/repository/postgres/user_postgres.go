package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/domain"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/repository"
)

const userColumns = `id, email, username, display_name, password_hash, role, status,
			   failed_logins, locked_until, created_at, updated_at, last_login_at`

type userRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new PostgreSQL user repository
func NewUserRepository(db *sqlx.DB) repository.UserRepository {
	return &userRepository{db: db}
}

// Create inserts a new user into the database
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (
			id, email, username, display_name, password_hash, role, status,
			failed_logins, locked_until, created_at, updated_at, last_login_at
		) VALUES (
			:id, :email, :username, :display_name, :password_hash, :role, :status,
			:failed_logins, :locked_until, :created_at, :updated_at, :last_login_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, user)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	var user domain.User
	err := r.db.GetContext(ctx, &user, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}

	return &user, nil
}

// GetByIdentity retrieves a user by e-mail or username
func (r *userRepository) GetByIdentity(ctx context.Context, identity string) (*domain.User, error) {
	query := `SELECT ` + userColumns + `
		FROM users
		WHERE lower(email) = $1 OR lower(username) = $1
		LIMIT 1`

	var user domain.User
	err := r.db.GetContext(ctx, &user, query, strings.ToLower(strings.TrimSpace(identity)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user by identity: %w", err)
	}

	return &user, nil
}

// Update updates an existing user in the database
func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	user.UpdatedAt = time.Now()

	query := `
		UPDATE users
		SET email = :email,
			username = :username,
			display_name = :display_name,
			password_hash = :password_hash,
			role = :role,
			status = :status,
			failed_logins = :failed_logins,
			locked_until = :locked_until,
			updated_at = :updated_at,
			last_login_at = :last_login_at
		WHERE id = :id`

	result, err := r.db.NamedExecContext(ctx, query, user)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	return expectOneRow(result, "user")
}

// UpdateLastLogin updates the last login timestamp for a user
func (r *userRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE users
		SET last_login_at = $1,
			updated_at = $1
		WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}

	return expectOneRow(result, "user")
}

// ResetFailedLogins clears the failed login counter and any lockout
func (r *userRepository) ResetFailedLogins(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE users
		SET failed_logins = 0,
			locked_until = NULL,
			status = CASE WHEN status = 'locked' THEN 'active' ELSE status END,
			updated_at = $1
		WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to reset failed logins: %w", err)
	}

	return expectOneRow(result, "user")
}

// IncrementFailedLogins increments the failed login counter for a user
func (r *userRepository) IncrementFailedLogins(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE users
		SET failed_logins = failed_logins + 1,
			updated_at = $1
		WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to increment failed logins: %w", err)
	}

	return expectOneRow(result, "user")
}

// AdminExists checks whether the bootstrap admin has been created
func (r *userRepository) AdminExists(ctx context.Context) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE role = $1)`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, domain.RoleAdmin); err != nil {
		return false, fmt.Errorf("failed to check admin existence: %w", err)
	}

	return exists, nil
}

// List retrieves users with pagination and search
func (r *userRepository) List(ctx context.Context, limit, offset int, search string) ([]*domain.User, int, error) {
	var users []*domain.User
	var total int

	where := `WHERE 1=1`
	args := []any{}
	if search != "" {
		where += ` AND (email ILIKE '%' || $1 || '%' OR username ILIKE '%' || $1 || '%' OR display_name ILIKE '%' || $1 || '%')`
		args = append(args, search)
	}

	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users `+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM users %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		userColumns, where, len(args)+1, len(args)+2)
	if err := r.db.SelectContext(ctx, &users, query, append(args, limit, offset)...); err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}

	return users, total, nil
}

func expectOneRow(result sql.Result, entity string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %w", entity, repository.ErrNotFound)
	}
	return nil
}
