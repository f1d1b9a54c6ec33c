package authclient

import (
	"context"
	"errors"
	"net"
)

// Classified failures of credential exchange and validation.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account is disabled or locked")
	ErrRateLimited        = errors.New("too many login attempts")
	ErrInvalidInput       = errors.New("invalid login request")
	ErrNetwork            = errors.New("identity backend unreachable")
	ErrTimeout            = errors.New("identity backend timed out")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrSessionExpired     = errors.New("session expired")
	ErrMalformedSession   = errors.New("malformed session")
	ErrBackend            = errors.New("identity backend error")
)

// Reason is the typed outcome code surfaced to callers of login and validation.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonInvalidCredentials Reason = "invalid_credentials"
	ReasonAccountDisabled    Reason = "account_disabled"
	ReasonRateLimited        Reason = "rate_limited"
	ReasonInvalidInput       Reason = "invalid_input"
	ReasonNetwork            Reason = "network_failure"
	ReasonTimeout            Reason = "timeout"
	ReasonUnauthorized       Reason = "unauthorized"
	ReasonSessionExpired     Reason = "session_expired"
	ReasonMalformedSession   Reason = "malformed_session"
	ReasonSuperseded         Reason = "superseded"
	ReasonInternal           Reason = "internal"
)

// Classify maps any error returned by this package, the HTTP stack or the
// context package onto a Reason. Unknown errors are ReasonInternal.
func Classify(err error) Reason {
	if err == nil {
		return ReasonNone
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return ReasonInvalidCredentials
	case errors.Is(err, ErrAccountDisabled):
		return ReasonAccountDisabled
	case errors.Is(err, ErrRateLimited):
		return ReasonRateLimited
	case errors.Is(err, ErrInvalidInput):
		return ReasonInvalidInput
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, ErrNetwork):
		return ReasonNetwork
	case errors.Is(err, ErrUnauthorized):
		return ReasonUnauthorized
	case errors.Is(err, ErrSessionExpired):
		return ReasonSessionExpired
	case errors.Is(err, ErrMalformedSession):
		return ReasonMalformedSession
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ReasonTimeout
		}
		return ReasonNetwork
	}
	return ReasonInternal
}

// Message is the user-visible line for a failure reason.
func (r Reason) Message() string {
	switch r {
	case ReasonNone:
		return ""
	case ReasonInvalidCredentials:
		return "Incorrect username or password."
	case ReasonAccountDisabled:
		return "This account is locked or disabled. Contact an administrator."
	case ReasonRateLimited:
		return "Too many login attempts. Please wait and try again."
	case ReasonInvalidInput:
		return "Please enter your username and password."
	case ReasonNetwork:
		return "Cannot reach the server. Check your connection."
	case ReasonTimeout:
		return "The server took too long to respond."
	case ReasonUnauthorized, ReasonSessionExpired:
		return "Your session has expired. Please log in again."
	case ReasonSuperseded:
		return "Login was cancelled."
	default:
		return "Something went wrong. Please try again."
	}
}
