package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/config"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/domain"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/logger"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/repository"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/pkg/email"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/pkg/hash"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/pkg/jwt"
)

var fastArgon = hash.Argon2Config{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func fastHash(pw string) (string, error) { return hash.HashPasswordWithConfig(pw, fastArgon) }

type memUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]domain.User
}

func newMemUsers() *memUsers { return &memUsers{users: make(map[uuid.UUID]domain.User)} }

func (m *memUsers) Create(ctx context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = *u
	return nil
}

func (m *memUsers) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %w", repository.ErrNotFound)
	}
	return &u, nil
}

func (m *memUsers) GetByIdentity(ctx context.Context, identity string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity = strings.ToLower(strings.TrimSpace(identity))
	for _, u := range m.users {
		if strings.ToLower(u.Email) == identity || strings.ToLower(u.Username) == identity {
			u := u
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user %w", repository.ErrNotFound)
}

func (m *memUsers) Update(ctx context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return fmt.Errorf("user %w", repository.ErrNotFound)
	}
	m.users[u.ID] = *u
	return nil
}

func (m *memUsers) List(ctx context.Context, limit, offset int, search string) ([]*domain.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	search = strings.ToLower(search)
	var all []*domain.User
	for _, u := range m.users {
		if search == "" || strings.Contains(strings.ToLower(u.Email+" "+u.Username+" "+u.DisplayName), search) {
			u := u
			all = append(all, &u)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *memUsers) mutate(id uuid.UUID, fn func(*domain.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return fmt.Errorf("user %w", repository.ErrNotFound)
	}
	fn(&u)
	m.users[id] = u
	return nil
}

func (m *memUsers) UpdateLastLogin(ctx context.Context, id uuid.UUID) error {
	return m.mutate(id, func(u *domain.User) {
		now := time.Now()
		u.LastLoginAt = &now
	})
}

func (m *memUsers) ResetFailedLogins(ctx context.Context, id uuid.UUID) error {
	return m.mutate(id, func(u *domain.User) {
		u.FailedLogins = 0
		u.LockedUntil = nil
		if u.Status == domain.UserStatusLocked {
			u.Status = domain.UserStatusActive
		}
	})
}

func (m *memUsers) IncrementFailedLogins(ctx context.Context, id uuid.UUID) error {
	return m.mutate(id, func(u *domain.User) { u.FailedLogins++ })
}

func (m *memUsers) AdminExists(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Role == domain.RoleAdmin {
			return true, nil
		}
	}
	return false, nil
}

type memSessions struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]domain.Session
}

func newMemSessions() *memSessions { return &memSessions{sessions: make(map[uuid.UUID]domain.Session)} }

func (m *memSessions) Create(ctx context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = *s
	return nil
}

func (m *memSessions) GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || !s.ExpiresAt.After(time.Now()) {
		return nil, fmt.Errorf("session %w", repository.ErrNotFound)
	}
	return &s, nil
}

func (m *memSessions) GetByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Session
	for _, s := range m.sessions {
		if s.UserID == userID && s.ExpiresAt.After(time.Now()) {
			s := s
			out = append(out, &s)
		}
	}
	return out, nil
}

func (m *memSessions) Touch(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("session %w", repository.ErrNotFound)
	}
	s.LastSeenAt = time.Now()
	m.sessions[id] = s
	return nil
}

func (m *memSessions) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("session %w", repository.ErrNotFound)
	}
	delete(m.sessions, id)
	return nil
}

func (m *memSessions) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *memSessions) DeleteExpired(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if !s.ExpiresAt.After(time.Now()) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func (m *memSessions) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

type memBlacklist struct {
	mu     sync.Mutex
	tokens map[string]time.Time
}

func newMemBlacklist() *memBlacklist { return &memBlacklist{tokens: make(map[string]time.Time)} }

func (b *memBlacklist) AddAccessToken(ctx context.Context, token string, expiresAt time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens[token] = expiresAt
	return nil
}

func (b *memBlacklist) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.tokens[token]
	return ok, nil
}

type recordingMailer struct {
	sent chan email.SignInInfo
}

func (r *recordingMailer) SendSignInAlert(ctx context.Context, to, name string, info email.SignInInfo) error {
	r.sent <- info
	return nil
}

func newTokenService(t *testing.T, expiry time.Duration) *jwt.TokenService {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	priv := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pub := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	svc, err := jwt.NewTokenService(priv, pub, expiry, "crm-test")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return svc
}

type fixture struct {
	svc       *AuthService
	users     *memUsers
	sessions  *memSessions
	blacklist *memBlacklist
	mailer    *recordingMailer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		users:     newMemUsers(),
		sessions:  newMemSessions(),
		blacklist: newMemBlacklist(),
		mailer:    &recordingMailer{sent: make(chan email.SignInInfo, 8)},
	}
	cfg := &config.Config{Auth: config.AuthConfig{MaxFailedLogins: 3, LockDuration: 15 * time.Minute}}
	f.svc = NewAuthService(f.users, f.sessions, newTokenService(t, time.Hour), f.blacklist, f.mailer, cfg)
	f.svc.hashPassword = fastHash
	f.svc.log = logger.Discard()
	return f
}

func (f *fixture) addUser(t *testing.T, username, password string, mutate ...func(*domain.User)) *domain.User {
	t.Helper()
	h, err := fastHash(password)
	if err != nil {
		t.Fatal(err)
	}
	u := &domain.User{
		ID:           uuid.New(),
		Email:        username + "@example.edu",
		Username:     username,
		DisplayName:  strings.ToUpper(username[:1]) + username[1:],
		PasswordHash: h,
		Role:         domain.RoleAdvisor,
		Status:       domain.UserStatusActive,
	}
	for _, fn := range mutate {
		fn(u)
	}
	if err := f.users.Create(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	return u
}
