package authclient

import (
	"context"

	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/session"
)

// Credentials is what a user presents to log in. Password strategies read
// Identity/Secret; the OIDC strategy reads Code/CodeVerifier.
type Credentials struct {
	Identity     string `json:"identity" validate:"required_without=Code"`
	Secret       string `json:"secret" validate:"required_without=Code"`
	Code         string `json:"code,omitempty"`
	CodeVerifier string `json:"code_verifier,omitempty"`
	StayLoggedIn bool   `json:"stay_logged_in"`
}

// Authenticator is one identity provider strategy. Implementations normalize
// provider responses into the canonical session shape and persist nothing.
type Authenticator interface {
	// Name identifies the strategy; it is recorded on the session.
	Name() string

	// Authenticate exchanges credentials for a complete session.
	Authenticate(ctx context.Context, creds Credentials) (*session.Session, error)

	// Verify asks the provider who the token belongs to. It returns
	// ErrUnauthorized when the provider rejects the token.
	Verify(ctx context.Context, token string) (*session.Identity, error)
}

// Revoker is implemented by strategies that can invalidate a token server-side.
type Revoker interface {
	Revoke(ctx context.Context, token string) error
}
