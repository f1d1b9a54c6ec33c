package authclient

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/session"
)

// StrategyOIDC names sessions issued by an external OpenID Connect provider.
const StrategyOIDC = "oidc"

// OIDCConfig describes the external identity provider.
type OIDCConfig struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Timeout      time.Duration
}

// OIDCAuthenticator completes an authorization-code + PKCE flow and verifies the
// returned ID token. It returns identity facts only; the provider manages
// token lifetime.
type OIDCAuthenticator struct {
	provider    *oidc.Provider
	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
	timeout     time.Duration
	now         func() time.Time
}

// oidcClaims is the subset of ID token claims we normalize.
type oidcClaims struct {
	Subject           string `json:"sub"`
	Email             string `json:"email"`
	EmailVerified     bool   `json:"email_verified"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
}

// NewOIDCAuthenticator initializes the provider through discovery.
func NewOIDCAuthenticator(ctx context.Context, cfg OIDCConfig) (*OIDCAuthenticator, error) {
	if cfg.Issuer == "" || cfg.ClientID == "" || cfg.RedirectURL == "" {
		return nil, errors.New("oidc config missing required fields")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	discoverCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	provider, err := oidc.NewProvider(discoverCtx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to init oidc provider: %w", err)
	}

	return &OIDCAuthenticator{
		provider: provider,
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		timeout:  cfg.Timeout,
		now:      time.Now,
	}, nil
}

func (a *OIDCAuthenticator) Name() string {
	return StrategyOIDC
}

// AuthCodeURL builds the browser redirect URL with PKCE parameters.
func (a *OIDCAuthenticator) AuthCodeURL(state, codeChallenge string) string {
	return a.oauthConfig.AuthCodeURL(
		state,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

func (a *OIDCAuthenticator) Authenticate(ctx context.Context, creds Credentials) (*session.Session, error) {
	ctx, span := tracer.Start(ctx, "authclient.Authenticate", trace.WithAttributes(attribute.String("auth.strategy", StrategyOIDC)))
	defer span.End()

	if creds.Code == "" {
		return nil, ErrInvalidInput
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	token, err := a.oauthConfig.Exchange(ctx, creds.Code, oauth2.SetAuthURLParam("code_verifier", creds.CodeVerifier))
	if err != nil {
		span.SetStatus(codes.Error, "code exchange failed")
		return nil, exchangeError(ctx, err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("%w: provider did not return id_token", ErrBackend)
	}

	idToken, err := a.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		span.SetStatus(codes.Error, "id_token verification failed")
		return nil, fmt.Errorf("%w: id_token verification failed: %v", ErrInvalidCredentials, err)
	}

	var claims oidcClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: id_token claims parse failed: %v", ErrBackend, err)
	}

	s := normalizeOIDC(claims, token.AccessToken, token.Expiry, a.now(), creds.StayLoggedIn)
	if !s.Complete() {
		return nil, fmt.Errorf("%w: id_token missing required claims", ErrBackend)
	}
	return s, nil
}

func (a *OIDCAuthenticator) Verify(ctx context.Context, token string) (*session.Identity, error) {
	ctx, span := tracer.Start(ctx, "authclient.Verify", trace.WithAttributes(attribute.String("auth.strategy", StrategyOIDC)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	info, err := a.provider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	if err != nil {
		span.SetStatus(codes.Error, "userinfo failed")
		return nil, userInfoError(ctx, err)
	}

	var claims oidcClaims
	if err := info.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: userinfo claims parse failed: %v", ErrBackend, err)
	}
	claims.Subject = info.Subject
	claims.Email = info.Email

	id := normalizeOIDC(claims, token, time.Time{}, a.now(), false).Identity
	return &id, nil
}

// userInfoError classifies a failed UserInfo call. go-oidc does not expose
// the status code, so anything that reached the provider is a rejection.
func userInfoError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return fmt.Errorf("%w: %v", ErrUnauthorized, err)
}

func exchangeError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorCode == "invalid_grant" {
			return fmt.Errorf("%w: %s", ErrInvalidCredentials, re.ErrorDescription)
		}
		return fmt.Errorf("%w: %s", ErrBackend, re.ErrorCode)
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}

// normalizeOIDC maps provider claims onto the canonical session shape.
func normalizeOIDC(c oidcClaims, accessToken string, expiry, now time.Time, stay bool) *session.Session {
	return &session.Session{
		Identity: session.Identity{
			UserID:      c.Subject,
			Username:    c.PreferredUsername,
			Email:       c.Email,
			DisplayName: c.Name,
		},
		Token:        accessToken,
		Provider:     StrategyOIDC,
		IssuedAt:     now,
		ExpiresAt:    expiry,
		LastActivity: now,
		StayLoggedIn: stay,
	}
}

// NewPKCE returns a random verifier and its S256 challenge.
func NewPKCE() (verifier, challenge string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	verifier = base64.RawURLEncoding.EncodeToString(b)
	sum := sha256.Sum256([]byte(verifier))
	challenge = base64.RawURLEncoding.EncodeToString(sum[:])
	return verifier, challenge, nil
}

// NewState returns a random OAuth state value.
func NewState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
