package authclient

import (
	"context"
	"fmt"
	"time"

	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/session"
)

// Policy is the session lifetime policy applied before any remote check.
type Policy struct {
	// IdleTimeout invalidates sessions without activity for this long,
	// unless the user chose to stay logged in.
	IdleTimeout time.Duration
	// StayLoggedInTTL caps the absolute age of a stay-logged-in session.
	StayLoggedInTTL time.Duration
}

// DefaultPolicy is 60 minutes idle, 30 days when staying logged in.
var DefaultPolicy = Policy{
	IdleTimeout:     60 * time.Minute,
	StayLoggedInTTL: 30 * 24 * time.Hour,
}

// Validator decides whether a persisted session may still be trusted.
// Every failure, including network trouble, means "not valid".
type Validator struct {
	auth    Authenticator
	policy  Policy
	timeout time.Duration
	now     func() time.Time
}

// NewValidator wires the remote who-am-I check with the local policy.
// timeout bounds the remote call.
func NewValidator(auth Authenticator, policy Policy, timeout time.Duration) *Validator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Validator{
		auth:    auth,
		policy:  policy,
		timeout: timeout,
		now:     time.Now,
	}
}

// WithClock replaces the time source.
func (v *Validator) WithClock(now func() time.Time) *Validator {
	v.now = now
	return v
}

// CheckLocal applies the lifetime policy without touching the network.
func (v *Validator) CheckLocal(s *session.Session) error {
	if !s.Complete() {
		return ErrMalformedSession
	}

	now := v.now()
	if !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt) {
		return fmt.Errorf("%w: token expired at %s", ErrSessionExpired, s.ExpiresAt.Format(time.RFC3339))
	}

	if s.StayLoggedIn {
		if v.policy.StayLoggedInTTL > 0 && now.Sub(s.IssuedAt) >= v.policy.StayLoggedInTTL {
			return fmt.Errorf("%w: persisted session older than %s", ErrSessionExpired, v.policy.StayLoggedInTTL)
		}
		return nil
	}

	if v.policy.IdleTimeout > 0 && now.Sub(s.LastActivity) >= v.policy.IdleTimeout {
		return fmt.Errorf("%w: idle for more than %s", ErrSessionExpired, v.policy.IdleTimeout)
	}
	return nil
}

// Check runs the local policy and then confirms the token with the provider.
// The remote identity must match the session subject. When ctx itself is
// cancelled the returned error wraps ctx.Err() rather than ErrTimeout.
func (v *Validator) Check(ctx context.Context, s *session.Session) error {
	if err := v.CheckLocal(s); err != nil {
		return err
	}

	verifyCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	id, err := v.auth.Verify(verifyCtx, s.Token)
	if err != nil {
		// A caller that gave up is not a verdict on the session.
		if ctx.Err() != nil {
			return fmt.Errorf("validation interrupted: %w", ctx.Err())
		}
		if verifyCtx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return err
	}
	if id == nil || id.UserID != s.Identity.UserID {
		return fmt.Errorf("%w: token belongs to a different subject", ErrUnauthorized)
	}
	return nil
}

// Valid is Check reduced to a boolean.
func (v *Validator) Valid(ctx context.Context, s *session.Session) bool {
	return v.Check(ctx, s) == nil
}

// RefreshActivity returns a copy of s with the activity timestamp set to now.
// The token is never changed.
func (v *Validator) RefreshActivity(s *session.Session) *session.Session {
	if s == nil {
		return nil
	}
	c := s.Clone()
	c.LastActivity = v.now()
	return c
}
