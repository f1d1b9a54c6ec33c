package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/domain"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/logger"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/repository"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/pkg/hash"
)

var (
	ErrUserExists    = errors.New("user with this email or username already exists")
	ErrInvalidStatus = errors.New("status must be active or inactive")
	ErrSelfDisable   = errors.New("administrators cannot disable their own account")
)

// UserService is the administrator's view of staff accounts.
type UserService struct {
	userRepo     repository.UserRepository
	sessionRepo  repository.SessionRepository
	log          *slog.Logger
	hashPassword func(string) (string, error)
	now          func() time.Time
}

type CreateUserRequest struct {
	Email       string          `json:"email" validate:"required,email,max=254"`
	Username    string          `json:"username" validate:"required,min=3,max=64"`
	DisplayName string          `json:"display_name" validate:"max=128"`
	Password    string          `json:"password" validate:"required,min=12,max=1024"`
	Role        domain.UserRole `json:"role" validate:"omitempty,oneof=admin advisor"`
}

type UserListResponse struct {
	Users  []*UserDTO `json:"users"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

func NewUserService(userRepo repository.UserRepository, sessionRepo repository.SessionRepository) *UserService {
	return &UserService{
		userRepo:     userRepo,
		sessionRepo:  sessionRepo,
		log:          logger.With("user_service"),
		hashPassword: hash.HashPassword,
		now:          time.Now,
	}
}

// CreateUser adds a staff account. Role defaults to advisor.
func (s *UserService) CreateUser(ctx context.Context, req CreateUserRequest) (*UserDTO, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	username := strings.TrimSpace(req.Username)

	for _, identity := range []string{email, username} {
		_, err := s.userRepo.GetByIdentity(ctx, identity)
		if err == nil {
			return nil, ErrUserExists
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}

	passwordHash, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	role := req.Role
	if role == "" {
		role = domain.RoleAdvisor
	}

	now := s.now()
	user := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		Username:     username,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		PasswordHash: passwordHash,
		Role:         role,
		Status:       domain.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.log.Info("user created", "user_id", user.ID, "role", user.Role)
	return toDTO(user), nil
}

// List pages through staff accounts.
func (s *UserService) List(ctx context.Context, limit, offset int, search string) (*UserListResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	users, total, err := s.userRepo.List(ctx, limit, offset, strings.TrimSpace(search))
	if err != nil {
		return nil, err
	}

	resp := &UserListResponse{Users: make([]*UserDTO, len(users)), Total: total, Limit: limit, Offset: offset}
	for i, u := range users {
		resp.Users[i] = toDTO(u)
	}
	return resp, nil
}

// SetStatus enables or disables an account. Disabling ends every server
// session of the user so outstanding tokens stop working at once.
// Enabling also clears any login lockout.
func (s *UserService) SetStatus(ctx context.Context, actorID, userID uuid.UUID, status domain.UserStatus) (*UserDTO, error) {
	if status != domain.UserStatusActive && status != domain.UserStatusInactive {
		return nil, ErrInvalidStatus
	}
	if status == domain.UserStatusInactive && actorID == userID {
		return nil, ErrSelfDisable
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	user.Status = status
	if status == domain.UserStatusActive {
		user.FailedLogins = 0
		user.LockedUntil = nil
	}
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}

	if status == domain.UserStatusInactive {
		if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
			return nil, err
		}
	}

	s.log.Info("user status changed", "user_id", userID, "status", status, "actor_id", actorID)
	return toDTO(user), nil
}
