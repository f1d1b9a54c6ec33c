package guard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/authstate"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/session"
)

var (
	loading  = authstate.AuthState{Status: authstate.StatusRestoring, Loading: true}
	signedIn = authstate.AuthState{
		Status:          authstate.StatusAuthenticated,
		IsAuthenticated: true,
		User:            &session.Identity{UserID: "u-1", Username: "advisor"},
	}
	signedOut = authstate.AuthState{Status: authstate.StatusUnauthenticated}
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name  string
		state authstate.AuthState
		want  Decision
	}{
		{name: "uninitialized", state: authstate.AuthState{}, want: Redirect},
		{name: "loading", state: loading, want: Wait},
		{name: "loading wins over stale user", state: authstate.AuthState{Loading: true, IsAuthenticated: true, User: signedIn.User}, want: Wait},
		{name: "authenticated", state: signedIn, want: Allow},
		{name: "authenticated without user", state: authstate.AuthState{IsAuthenticated: true}, want: Redirect},
		{name: "unauthenticated", state: signedOut, want: Redirect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Decide(tt.state); got != tt.want {
				t.Errorf("Decide() = %s, want %s", got, tt.want)
			}
		})
	}
}

type staticSource struct {
	state   authstate.AuthState
	waitErr error
}

func (s staticSource) State() authstate.AuthState { return s.state }

func (s staticSource) Wait(ctx context.Context) error { return s.waitErr }

func newApp(src Source) *fiber.App {
	app := fiber.New()
	app.Use("/app", Middleware(src, Config{LoginPath: "/login"}))
	app.Use("/api", Middleware(src, Config{LoginPath: "/login"}))
	handler := func(c *fiber.Ctx) error {
		user := c.Locals("user").(*session.Identity)
		return c.SendString("hello " + user.Username)
	}
	app.Get("/app/students", handler)
	app.Get("/api/students", handler)
	return app
}

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		state      authstate.AuthState
		path       string
		wantStatus int
		wantHeader map[string]string
		wantBody   string
		wantCode   string
	}{
		{
			name:       "allow",
			state:      signedIn,
			path:       "/app/students",
			wantStatus: fiber.StatusOK,
			wantBody:   "hello advisor",
		},
		{
			name:       "wait while restoring",
			state:      loading,
			path:       "/app/students",
			wantStatus: fiber.StatusServiceUnavailable,
			wantHeader: map[string]string{fiber.HeaderRetryAfter: "1"},
			wantCode:   "loading",
		},
		{
			name:       "redirect browsers",
			state:      signedOut,
			path:       "/app/students",
			wantStatus: fiber.StatusFound,
			wantHeader: map[string]string{fiber.HeaderLocation: "/login"},
		},
		{
			name:       "api gets 401",
			state:      signedOut,
			path:       "/api/students",
			wantStatus: fiber.StatusUnauthorized,
			wantCode:   "unauthorized",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newApp(staticSource{state: tt.state})

			resp, err := app.Test(httptest.NewRequest("GET", tt.path, nil))
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			for k, v := range tt.wantHeader {
				if got := resp.Header.Get(k); got != v {
					t.Errorf("header %s = %q, want %q", k, got, v)
				}
			}

			body, _ := io.ReadAll(resp.Body)
			if tt.wantBody != "" && string(body) != tt.wantBody {
				t.Errorf("body = %q, want %q", body, tt.wantBody)
			}
			if tt.wantCode != "" {
				var payload map[string]string
				if err := json.Unmarshal(body, &payload); err != nil {
					t.Fatalf("decode body %q: %v", body, err)
				}
				if payload["code"] != tt.wantCode {
					t.Errorf("code = %q, want %q", payload["code"], tt.wantCode)
				}
			}
		})
	}
}

func TestMiddleware_JSONClientsAreNotRedirected(t *testing.T) {
	app := newApp(staticSource{state: signedOut})

	req := httptest.NewRequest("GET", "/app/students", nil)
	req.Header.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestRequire(t *testing.T) {
	if err := Require(context.Background(), staticSource{state: signedIn}); err != nil {
		t.Errorf("Require(signed in) = %v", err)
	}
	if err := Require(context.Background(), staticSource{state: signedOut}); !errors.Is(err, ErrLoginRequired) {
		t.Errorf("Require(signed out) = %v, want ErrLoginRequired", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	if err := Require(ctx, staticSource{state: loading, waitErr: context.DeadlineExceeded}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Require(still loading) = %v, want deadline exceeded", err)
	}
}
