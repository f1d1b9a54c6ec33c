package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/domain"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/pkg/hash"
)

func TestLogin_Success(t *testing.T) {
	f := newFixture(t)
	u := f.addUser(t, "advisor", "s3cret-pass!")

	for _, identity := range []string{"advisor", "ADVISOR@example.edu", "  advisor  "} {
		resp, err := f.svc.Login(context.Background(), LoginRequest{Identity: identity, Secret: "s3cret-pass!", IPAddress: "10.1.1.1"})
		if err != nil {
			t.Fatalf("Login(%q): %v", identity, err)
		}
		if resp.Token == "" || resp.User.ID != u.ID || resp.User.Username != "advisor" {
			t.Fatalf("Login(%q) = %+v", identity, resp)
		}
		if time.Until(resp.ExpiresAt) <= 0 {
			t.Errorf("ExpiresAt %v is not in the future", resp.ExpiresAt)
		}
	}
	if f.sessions.count() != 3 {
		t.Errorf("sessions = %d, want one per login", f.sessions.count())
	}

	select {
	case info := <-f.mailer.sent:
		if info.IPAddress != "10.1.1.1" {
			t.Errorf("alert info = %+v", info)
		}
	case <-time.After(time.Second):
		t.Error("sign-in alert not sent")
	}
}

func TestLogin_Failures(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*domain.User)
		identity string
		secret   string
		want     error
	}{
		{name: "unknown user", identity: "nobody", secret: "s3cret-pass!", want: ErrInvalidCredentials},
		{name: "wrong password", identity: "advisor", secret: "wrong", want: ErrInvalidCredentials},
		{
			name:     "disabled account",
			mutate:   func(u *domain.User) { u.Status = domain.UserStatusInactive },
			identity: "advisor", secret: "s3cret-pass!", want: ErrAccountDisabled,
		},
		{
			name: "locked account",
			mutate: func(u *domain.User) {
				until := time.Now().Add(time.Minute)
				u.Status, u.LockedUntil = domain.UserStatusLocked, &until
			},
			identity: "advisor", secret: "s3cret-pass!", want: ErrAccountLocked,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			var mutators []func(*domain.User)
			if tt.mutate != nil {
				mutators = append(mutators, tt.mutate)
			}
			f.addUser(t, "advisor", "s3cret-pass!", mutators...)

			_, err := f.svc.Login(context.Background(), LoginRequest{Identity: tt.identity, Secret: tt.secret})
			if !errors.Is(err, tt.want) {
				t.Fatalf("Login err = %v, want %v", err, tt.want)
			}
			if f.sessions.count() != 0 {
				t.Error("failed login must not create a session")
			}
		})
	}
}

func TestLogin_LockoutAndExpiry(t *testing.T) {
	f := newFixture(t)
	u := f.addUser(t, "advisor", "s3cret-pass!")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := f.svc.Login(ctx, LoginRequest{Identity: "advisor", Secret: "wrong"}); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if _, err := f.svc.Login(ctx, LoginRequest{Identity: "advisor", Secret: "s3cret-pass!"}); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("login after lockout = %v, want ErrAccountLocked", err)
	}

	f.svc.now = func() time.Time { return time.Now().Add(16 * time.Minute) }
	if _, err := f.svc.Login(ctx, LoginRequest{Identity: "advisor", Secret: "s3cret-pass!"}); err != nil {
		t.Fatalf("login after lock expiry: %v", err)
	}
	stored, _ := f.users.GetByID(ctx, u.ID)
	if stored.FailedLogins != 0 || stored.Status != domain.UserStatusActive || stored.LockedUntil != nil {
		t.Errorf("lock state not reset: %+v", stored)
	}
}

func TestLogin_UpgradesLegacyBcryptHash(t *testing.T) {
	f := newFixture(t)
	legacy, _ := bcrypt.GenerateFromPassword([]byte("express-era-pw"), bcrypt.MinCost)
	u := f.addUser(t, "veteran", "unused", func(u *domain.User) { u.PasswordHash = string(legacy) })

	if _, err := f.svc.Login(context.Background(), LoginRequest{Identity: "veteran", Secret: "express-era-pw"}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	stored, _ := f.users.GetByID(context.Background(), u.ID)
	if stored.PasswordHash == string(legacy) {
		t.Fatal("hash was not upgraded")
	}
	if ok, err := hash.VerifyPassword("express-era-pw", stored.PasswordHash); err != nil || !ok {
		t.Errorf("upgraded hash does not verify: %v %v", ok, err)
	}
}

func TestMeAndLogout(t *testing.T) {
	f := newFixture(t)
	u := f.addUser(t, "advisor", "s3cret-pass!")
	ctx := context.Background()

	resp, err := f.svc.Login(ctx, LoginRequest{Identity: "advisor", Secret: "s3cret-pass!"})
	if err != nil {
		t.Fatal(err)
	}

	me, err := f.svc.Me(ctx, resp.Token)
	if err != nil || me.ID != u.ID {
		t.Fatalf("Me = %+v, %v", me, err)
	}

	sessions, err := f.svc.ListSessions(ctx, u.ID)
	if err != nil || len(sessions) != 1 {
		t.Fatalf("ListSessions = %d, %v", len(sessions), err)
	}

	if err := f.svc.Logout(ctx, resp.Token); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := f.svc.Me(ctx, resp.Token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Me after logout = %v, want ErrUnauthorized", err)
	}
	if f.sessions.count() != 0 {
		t.Error("logout must delete the server session")
	}
	if err := f.svc.Logout(ctx, "garbage"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Logout(garbage) = %v", err)
	}
}

func TestMe_RejectsDeadSessions(t *testing.T) {
	ctx := context.Background()

	t.Run("session deleted server-side", func(t *testing.T) {
		f := newFixture(t)
		u := f.addUser(t, "advisor", "s3cret-pass!")
		resp, _ := f.svc.Login(ctx, LoginRequest{Identity: "advisor", Secret: "s3cret-pass!"})
		_ = f.sessions.DeleteByUserID(ctx, u.ID)

		if _, err := f.svc.Me(ctx, resp.Token); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("Me = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("account disabled after login", func(t *testing.T) {
		f := newFixture(t)
		u := f.addUser(t, "advisor", "s3cret-pass!")
		resp, _ := f.svc.Login(ctx, LoginRequest{Identity: "advisor", Secret: "s3cret-pass!"})
		_ = f.users.mutate(u.ID, func(u *domain.User) { u.Status = domain.UserStatusInactive })

		if _, err := f.svc.Me(ctx, resp.Token); !errors.Is(err, ErrAccountDisabled) {
			t.Fatalf("Me = %v, want ErrAccountDisabled", err)
		}
	})

	t.Run("foreign token", func(t *testing.T) {
		f := newFixture(t)
		other := newFixture(t)
		other.addUser(t, "advisor", "s3cret-pass!")
		resp, _ := other.svc.Login(ctx, LoginRequest{Identity: "advisor", Secret: "s3cret-pass!"})

		if _, err := f.svc.Me(ctx, resp.Token); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("Me = %v, want ErrUnauthorized", err)
		}
	})
}

func TestCreateAdmin_OnlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := CreateAdminRequest{Email: " Director@Example.edu ", Username: "director", Password: "a-long-enough-pass"}

	admin, err := f.svc.CreateAdmin(ctx, req)
	if err != nil {
		t.Fatalf("CreateAdmin: %v", err)
	}
	if admin.Role != domain.RoleAdmin || admin.Email != "director@example.edu" {
		t.Errorf("admin = %+v", admin)
	}
	if _, err := f.svc.Login(ctx, LoginRequest{Identity: "director", Secret: "a-long-enough-pass"}); err != nil {
		t.Errorf("admin cannot log in: %v", err)
	}
	if _, err := f.svc.CreateAdmin(ctx, req); !errors.Is(err, ErrAdminExists) {
		t.Errorf("second CreateAdmin = %v, want ErrAdminExists", err)
	}
}

func TestPurgeExpiredSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.addUser(t, "advisor", "s3cret-pass!")

	_ = f.sessions.Create(ctx, &domain.Session{ID: uuid.New(), UserID: u.ID, ExpiresAt: time.Now().Add(-time.Minute)})
	_ = f.sessions.Create(ctx, &domain.Session{ID: uuid.New(), UserID: u.ID, ExpiresAt: time.Now().Add(time.Hour)})

	n, err := f.svc.PurgeExpiredSessions(ctx)
	if err != nil || n != 1 {
		t.Fatalf("PurgeExpiredSessions = %d, %v; want 1", n, err)
	}
	if f.sessions.count() != 1 {
		t.Errorf("remaining sessions = %d", f.sessions.count())
	}
}
