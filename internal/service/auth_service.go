package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/config"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/domain"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/logger"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/repository"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/pkg/email"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/pkg/hash"
)

// Custom errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrUnauthorized       = errors.New("invalid or expired token")
	ErrAdminExists        = errors.New("admin already exists")
)

const alertTimeout = 10 * time.Second

// TokenIssuer signs and verifies access tokens.
type TokenIssuer interface {
	Issue(user *domain.User, sessionID uuid.UUID) (*domain.IssuedToken, error)
	ValidateToken(token string) (*domain.Claims, error)
	AccessExpiry() time.Duration
}

// TokenBlacklist remembers revoked tokens until they expire.
type TokenBlacklist interface {
	AddAccessToken(ctx context.Context, token string, expiresAt time.Time) error
	IsBlacklisted(ctx context.Context, token string) (bool, error)
}

type AuthService struct {
	userRepo       repository.UserRepository
	sessionRepo    repository.SessionRepository
	tokens         TokenIssuer
	tokenBlacklist TokenBlacklist
	emailService   email.EmailService
	cfg            *config.Config
	log            *slog.Logger
	hashPassword   func(string) (string, error)
	now            func() time.Time
}

type LoginRequest struct {
	Identity  string `json:"identity" validate:"required,max=254"`
	Secret    string `json:"secret" validate:"required,max=1024"`
	UserAgent string `json:"-"`
	IPAddress string `json:"-"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *UserDTO  `json:"user"`
}

type UserDTO struct {
	ID          uuid.UUID       `json:"id"`
	Email       string          `json:"email"`
	Username    string          `json:"username"`
	DisplayName string          `json:"display_name"`
	Role        domain.UserRole `json:"role"`
}

type CreateAdminRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Username    string `json:"username" validate:"required,min=3,max=64"`
	DisplayName string `json:"display_name" validate:"max=128"`
	Password    string `json:"password" validate:"required,min=12,max=1024"`
}

func toDTO(u *domain.User) *UserDTO {
	return &UserDTO{
		ID:          u.ID,
		Email:       u.Email,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Role:        u.Role,
	}
}

// NewAuthService wires the identity backend. emailService may be nil.
func NewAuthService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	tokens TokenIssuer,
	tokenBlacklist TokenBlacklist,
	emailService email.EmailService,
	cfg *config.Config,
) *AuthService {
	return &AuthService{
		userRepo:       userRepo,
		sessionRepo:    sessionRepo,
		tokens:         tokens,
		tokenBlacklist: tokenBlacklist,
		emailService:   emailService,
		cfg:            cfg,
		log:            logger.With("auth_service"),
		hashPassword:   hash.HashPassword,
		now:            time.Now,
	}
}

// Login verifies the credentials and opens a server session.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	user, err := s.userRepo.GetByIdentity(ctx, req.Identity)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	now := s.now()
	if user.IsLocked(now) {
		s.log.Info("login attempt on locked account", "user_id", user.ID)
		return nil, ErrAccountLocked
	}
	if user.Status == domain.UserStatusLocked {
		// Lock period is over
		if err := s.userRepo.ResetFailedLogins(ctx, user.ID); err != nil {
			return nil, err
		}
		user.Status = domain.UserStatusActive
		user.FailedLogins = 0
		user.LockedUntil = nil
	}

	valid, err := hash.VerifyPassword(req.Secret, user.PasswordHash)
	if err != nil {
		s.log.Error("stored password hash is unreadable", "user_id", user.ID, "error", err)
		return nil, ErrInvalidCredentials
	}
	if !valid {
		if err := s.handleFailedLogin(ctx, user); err != nil {
			return nil, err
		}
		return nil, ErrInvalidCredentials
	}

	if user.Status != domain.UserStatusActive {
		return nil, ErrAccountDisabled
	}

	if user.FailedLogins > 0 {
		if err := s.userRepo.ResetFailedLogins(ctx, user.ID); err != nil {
			return nil, err
		}
	}
	s.upgradeHash(ctx, user, req.Secret)

	sessionID := uuid.New()
	issued, err := s.tokens.Issue(user, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	session := &domain.Session{
		ID:         sessionID,
		UserID:     user.ID,
		UserAgent:  truncate(req.UserAgent, 255),
		IPAddress:  req.IPAddress,
		ExpiresAt:  issued.ExpiresAt,
		CreatedAt:  now,
		LastSeenAt: now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}

	if err := s.userRepo.UpdateLastLogin(ctx, user.ID); err != nil {
		s.log.Warn("failed to record last login", "user_id", user.ID, "error", err)
	}
	s.log.Info("login succeeded", "user_id", user.ID, "session_id", sessionID)
	s.sendSignInAlert(ctx, user, email.SignInInfo{At: now, IPAddress: req.IPAddress, UserAgent: req.UserAgent})

	return &LoginResponse{
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
		User:      toDTO(user),
	}, nil
}

// Authenticate resolves a bearer token to its claims and user. Every failure
// to prove the token is live is ErrUnauthorized.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.Claims, *domain.User, error) {
	claims, err := s.tokens.ValidateToken(token)
	if err != nil || claims.TokenType != domain.TokenTypeAccess {
		return nil, nil, ErrUnauthorized
	}

	revoked, err := s.tokenBlacklist.IsBlacklisted(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	if revoked {
		return nil, nil, ErrUnauthorized
	}

	if _, err := s.sessionRepo.GetByID(ctx, claims.SessionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrUnauthorized
		}
		return nil, nil, err
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrUnauthorized
		}
		return nil, nil, err
	}
	if user.Status == domain.UserStatusInactive {
		return nil, nil, ErrAccountDisabled
	}

	if err := s.sessionRepo.Touch(ctx, claims.SessionID); err != nil {
		s.log.Debug("failed to touch session", "session_id", claims.SessionID, "error", err)
	}
	return claims, user, nil
}

// Me returns the identity behind a live token.
func (s *AuthService) Me(ctx context.Context, token string) (*UserDTO, error) {
	_, user, err := s.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	return toDTO(user), nil
}

// Logout ends the server session and blacklists the token until it expires.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.ValidateToken(token)
	if err != nil || claims.TokenType != domain.TokenTypeAccess {
		return ErrUnauthorized
	}

	if claims.ExpiresAt != nil {
		if err := s.tokenBlacklist.AddAccessToken(ctx, token, claims.ExpiresAt.Time); err != nil {
			return err
		}
	}

	if err := s.sessionRepo.Delete(ctx, claims.SessionID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	s.log.Info("logout", "user_id", claims.UserID, "session_id", claims.SessionID)
	return nil
}

// AdminExists reports whether setup has already been completed.
func (s *AuthService) AdminExists(ctx context.Context) (bool, error) {
	return s.userRepo.AdminExists(ctx)
}

// CreateAdmin creates the first administrator. It only works once.
func (s *AuthService) CreateAdmin(ctx context.Context, req CreateAdminRequest) (*UserDTO, error) {
	exists, err := s.userRepo.AdminExists(ctx)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAdminExists
	}

	passwordHash, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &domain.User{
		ID:           uuid.New(),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Username:     strings.TrimSpace(req.Username),
		DisplayName:  strings.TrimSpace(req.DisplayName),
		PasswordHash: passwordHash,
		Role:         domain.RoleAdmin,
		Status:       domain.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.log.Info("admin created", "user_id", user.ID)
	return toDTO(user), nil
}

// ListSessions returns the live server sessions of a user.
func (s *AuthService) ListSessions(ctx context.Context, userID uuid.UUID) ([]*domain.Session, error) {
	return s.sessionRepo.GetByUserID(ctx, userID)
}

// PurgeExpiredSessions deletes expired server sessions.
func (s *AuthService) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.sessionRepo.DeleteExpired(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("purged expired sessions", "count", n)
	}
	return n, nil
}

// handleFailedLogin increments failed login count and locks account if threshold is reached
func (s *AuthService) handleFailedLogin(ctx context.Context, user *domain.User) error {
	if err := s.userRepo.IncrementFailedLogins(ctx, user.ID); err != nil {
		return err
	}

	updatedUser, err := s.userRepo.GetByID(ctx, user.ID)
	if err != nil {
		return err
	}

	if updatedUser.FailedLogins >= s.cfg.Auth.MaxFailedLogins {
		lockUntil := s.now().Add(s.cfg.Auth.LockDuration)
		updatedUser.Status = domain.UserStatusLocked
		updatedUser.LockedUntil = &lockUntil

		if err := s.userRepo.Update(ctx, updatedUser); err != nil {
			return err
		}
		s.log.Warn("account locked after repeated failures", "user_id", user.ID, "until", lockUntil)
	}

	return nil
}

// upgradeHash replaces legacy or weak hashes after a successful login.
func (s *AuthService) upgradeHash(ctx context.Context, user *domain.User, password string) {
	if !hash.NeedsRehash(user.PasswordHash) {
		return
	}
	upgraded, err := s.hashPassword(password)
	if err != nil {
		s.log.Warn("failed to rehash password", "user_id", user.ID, "error", err)
		return
	}
	user.PasswordHash = upgraded
	if err := s.userRepo.Update(ctx, user); err != nil {
		s.log.Warn("failed to store upgraded password hash", "user_id", user.ID, "error", err)
	}
}

func (s *AuthService) sendSignInAlert(ctx context.Context, user *domain.User, info email.SignInInfo) {
	if s.emailService == nil || user.Email == "" {
		return
	}
	name := user.DisplayName
	if name == "" {
		name = user.Username
	}

	alertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTimeout)
	go func() {
		defer cancel()
		if err := s.emailService.SendSignInAlert(alertCtx, user.Email, name, info); err != nil {
			s.log.Warn("sign-in alert not delivered", "user_id", user.ID, "error", err)
		}
	}()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
