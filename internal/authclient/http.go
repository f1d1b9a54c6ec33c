package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/session"
)

const (
	loginPath  = "/api/v1/auth/login"
	mePath     = "/api/v1/auth/me"
	logoutPath = "/api/v1/auth/logout"

	// StrategyBackend names sessions issued by the CRM identity backend.
	StrategyBackend = "backend"

	maxErrorBody = 4 << 10
)

var tracer = otel.Tracer("github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/authclient")

// UserPayload is the user object returned by the backend.
type UserPayload struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

func (u UserPayload) identity() session.Identity {
	return session.Identity{
		UserID:      u.ID,
		Username:    u.Username,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        u.Role,
	}
}

type loginRequest struct {
	Identity string `json:"identity"`
	Secret   string `json:"secret"`
}

type loginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      UserPayload `json:"user"`
}

type meResponse struct {
	User UserPayload `json:"user"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HTTPAuthenticator talks to the CRM identity backend over REST.
type HTTPAuthenticator struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
	now     func() time.Time
}

// NewHTTPAuthenticator builds the backend strategy. timeout bounds every call.
func NewHTTPAuthenticator(baseURL string, timeout time.Duration, client *http.Client) *HTTPAuthenticator {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPAuthenticator{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		timeout: timeout,
		now:     time.Now,
	}
}

func (a *HTTPAuthenticator) Name() string {
	return StrategyBackend
}

func (a *HTTPAuthenticator) Authenticate(ctx context.Context, creds Credentials) (*session.Session, error) {
	ctx, span := tracer.Start(ctx, "authclient.Authenticate", trace.WithAttributes(attribute.String("auth.strategy", StrategyBackend)))
	defer span.End()

	if strings.TrimSpace(creds.Identity) == "" || creds.Secret == "" {
		return nil, ErrInvalidInput
	}

	var resp loginResponse
	err := a.do(ctx, http.MethodPost, loginPath, "", loginRequest{
		Identity: strings.TrimSpace(creds.Identity),
		Secret:   creds.Secret,
	}, &resp)
	if errors.Is(err, ErrUnauthorized) {
		err = ErrInvalidCredentials
	}
	if err != nil {
		span.SetStatus(codes.Error, string(Classify(err)))
		return nil, err
	}

	now := a.now()
	s := &session.Session{
		Identity:     resp.User.identity(),
		Token:        resp.Token,
		Provider:     StrategyBackend,
		IssuedAt:     now,
		ExpiresAt:    resp.ExpiresAt,
		LastActivity: now,
		StayLoggedIn: creds.StayLoggedIn,
	}
	if !s.Complete() {
		span.SetStatus(codes.Error, "incomplete login response")
		return nil, fmt.Errorf("%w: incomplete login response", ErrBackend)
	}
	return s, nil
}

func (a *HTTPAuthenticator) Verify(ctx context.Context, token string) (*session.Identity, error) {
	ctx, span := tracer.Start(ctx, "authclient.Verify")
	defer span.End()

	var resp meResponse
	if err := a.do(ctx, http.MethodGet, mePath, token, nil, &resp); err != nil {
		span.SetStatus(codes.Error, string(Classify(err)))
		return nil, err
	}
	if resp.User.ID == "" {
		return nil, fmt.Errorf("%w: empty identity", ErrBackend)
	}
	id := resp.User.identity()
	return &id, nil
}

// Revoke asks the backend to invalidate the token. A 401 means it is already dead.
func (a *HTTPAuthenticator) Revoke(ctx context.Context, token string) error {
	err := a.do(ctx, http.MethodPost, logoutPath, token, nil, nil)
	if errors.Is(err, ErrUnauthorized) {
		return nil
	}
	return err
}

func (a *HTTPAuthenticator) do(ctx context.Context, method, path, token string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := a.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: invalid response body: %v", ErrBackend, err)
		}
		return nil
	}

	return statusError(res)
}

// statusError maps a non-2xx backend response onto the failure taxonomy.
func statusError(res *http.Response) error {
	var e errorResponse
	_ = json.NewDecoder(io.LimitReader(res.Body, maxErrorBody)).Decode(&e)

	switch e.Code {
	case "invalid_credentials":
		return ErrInvalidCredentials
	case "account_locked", "account_disabled":
		return ErrAccountDisabled
	case "rate_limited":
		return ErrRateLimited
	case "invalid_request":
		return ErrInvalidInput
	}

	switch res.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrAccountDisabled
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusBadRequest:
		return ErrInvalidInput
	case http.StatusGatewayTimeout:
		return ErrTimeout
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return ErrNetwork
	default:
		return fmt.Errorf("%w: status %d %s", ErrBackend, res.StatusCode, e.Error)
	}
}
