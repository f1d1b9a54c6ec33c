package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/apiclient"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/authclient"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/authstate"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/logger"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/metrics"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/session"
)

type fakeAuth struct {
	mu      sync.Mutex
	state   authstate.AuthState
	outcome authstate.Outcome
	creds   authclient.Credentials
	logouts int
}

func (f *fakeAuth) State() authstate.AuthState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeAuth) Login(ctx context.Context, creds authclient.Credentials) authstate.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creds = creds
	if f.outcome.Success {
		f.state = signedIn()
	}
	return f.outcome
}

func (f *fakeAuth) Logout(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
	f.state = authstate.AuthState{Status: authstate.StatusUnauthenticated}
}

func signedIn() authstate.AuthState {
	return authstate.AuthState{
		Status:          authstate.StatusAuthenticated,
		IsAuthenticated: true,
		User:            &session.Identity{UserID: "u-1", Username: "advisor"},
	}
}

type fakeBackend struct {
	body string
	err  error
	path string
}

func (f *fakeBackend) Get(ctx context.Context, path string, out any) error {
	f.path = path
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.body), out)
}

func send(t *testing.T, app *fiber.App, method, path, body string, accept string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, raw
}

func newGateway(auth *fakeAuth, backend *fakeBackend) *fiber.App {
	return New(auth, backend, Options{Metrics: metrics.New(), Logger: logger.Discard()})
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		outcome authstate.Outcome
		status  int
	}{
		{name: "success", body: `{"identity":"advisor","secret":"pw","stay_logged_in":true}`, outcome: authstate.Outcome{Success: true}, status: http.StatusOK},
		{name: "wrong password", body: `{"identity":"advisor","secret":"x"}`, outcome: failureOutcome(authclient.ReasonInvalidCredentials), status: http.StatusUnauthorized},
		{name: "superseded", body: `{"identity":"advisor","secret":"x"}`, outcome: failureOutcome(authclient.ReasonSuperseded), status: http.StatusConflict},
		{name: "backend down", body: `{"identity":"advisor","secret":"x"}`, outcome: failureOutcome(authclient.ReasonNetwork), status: http.StatusBadGateway},
		{name: "missing fields", body: `{}`, status: http.StatusBadRequest},
		{name: "malformed", body: `{`, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &fakeAuth{outcome: tt.outcome}
			app := newGateway(auth, &fakeBackend{})

			resp, raw := send(t, app, "POST", "/login", tt.body, "")
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d (%s)", resp.StatusCode, tt.status, raw)
			}
			var out authstate.Outcome
			if err := json.Unmarshal(raw, &out); err != nil {
				t.Fatalf("decode outcome: %v", err)
			}
			if out.Success != (tt.status == http.StatusOK) {
				t.Errorf("outcome = %+v", out)
			}
			if tt.name == "success" && !auth.creds.StayLoggedIn {
				t.Error("stay_logged_in was not forwarded")
			}
		})
	}
}

func TestSessionAndLogout(t *testing.T) {
	auth := &fakeAuth{state: signedIn()}
	app := newGateway(auth, &fakeBackend{})

	_, raw := send(t, app, "GET", "/session", "", "")
	var st struct {
		IsAuthenticated bool              `json:"isAuthenticated"`
		User            *session.Identity `json:"user"`
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		t.Fatal(err)
	}
	if !st.IsAuthenticated || st.User == nil || st.User.UserID != "u-1" {
		t.Fatalf("session = %s", raw)
	}

	if resp, _ := send(t, app, "POST", "/logout", "", ""); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout status = %d", resp.StatusCode)
	}
	if auth.logouts != 1 {
		t.Errorf("logouts = %d", auth.logouts)
	}
}

func TestProtectedRoutes(t *testing.T) {
	t.Run("anonymous browser is redirected", func(t *testing.T) {
		app := newGateway(&fakeAuth{state: authstate.AuthState{Status: authstate.StatusUnauthenticated}}, &fakeBackend{})
		resp, _ := send(t, app, "GET", "/app/whoami", "", "text/html")
		if resp.StatusCode != http.StatusFound || resp.Header.Get("Location") != "/login" {
			t.Fatalf("got %d %q", resp.StatusCode, resp.Header.Get("Location"))
		}
	})

	t.Run("restoring waits", func(t *testing.T) {
		app := newGateway(&fakeAuth{state: authstate.AuthState{Status: authstate.StatusRestoring, Loading: true}}, &fakeBackend{})
		resp, _ := send(t, app, "GET", "/app/api/sessions", "", "")
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Fatalf("status = %d", resp.StatusCode)
		}
	})

	t.Run("signed in proxies the backend", func(t *testing.T) {
		backend := &fakeBackend{body: `{"user":{"id":"u-1","username":"advisor"}}`}
		app := newGateway(&fakeAuth{state: signedIn()}, backend)
		resp, raw := send(t, app, "GET", "/app/whoami", "", "")
		if resp.StatusCode != http.StatusOK || !strings.Contains(string(raw), `"advisor"`) {
			t.Fatalf("got %d %s", resp.StatusCode, raw)
		}
		if backend.path != "/api/v1/auth/me" {
			t.Errorf("backend path = %q", backend.path)
		}
	})

	t.Run("backend 401 surfaces as expired session", func(t *testing.T) {
		app := newGateway(&fakeAuth{state: signedIn()}, &fakeBackend{err: authclient.ErrUnauthorized})
		resp, _ := send(t, app, "GET", "/app/api/sessions", "", "")
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("status = %d", resp.StatusCode)
		}
	})

	t.Run("backend status is relayed", func(t *testing.T) {
		app := newGateway(&fakeAuth{state: signedIn()}, &fakeBackend{err: &apiclient.StatusError{Status: http.StatusForbidden, Code: "forbidden"}})
		resp, _ := send(t, app, "GET", "/app/api/sessions", "", "")
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("status = %d", resp.StatusCode)
		}
	})

	t.Run("backend unreachable", func(t *testing.T) {
		app := newGateway(&fakeAuth{state: signedIn()}, &fakeBackend{err: authclient.ErrNetwork})
		resp, _ := send(t, app, "GET", "/app/whoami", "", "")
		if resp.StatusCode != http.StatusBadGateway {
			t.Fatalf("status = %d", resp.StatusCode)
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	app := newGateway(&fakeAuth{}, &fakeBackend{})
	send(t, app, "GET", "/session", "", "")

	resp, raw := send(t, app, "GET", "/metrics", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(raw), "/session") {
		t.Errorf("request metrics missing route label:\n%s", raw)
	}
}
