package authstate

import (
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/authclient"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/session"
)

// Status is the provider's position in the auth state machine.
type Status int

const (
	StatusUninitialized Status = iota
	StatusRestoring
	StatusAuthenticated
	StatusUnauthenticated
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusRestoring:
		return "restoring"
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// AuthState is the UI-facing projection of the current session.
// IsAuthenticated implies User != nil; Loading is true only while restoring.
type AuthState struct {
	Status          Status            `json:"-"`
	IsAuthenticated bool              `json:"isAuthenticated"`
	User            *session.Identity `json:"user,omitempty"`
	Loading         bool              `json:"loading"`
	Notice          string            `json:"notice,omitempty"`
}

// Outcome is the typed result of a login attempt.
type Outcome struct {
	Success bool              `json:"success"`
	Reason  authclient.Reason `json:"reason,omitempty"`
	Message string            `json:"message,omitempty"`
}

func failure(reason authclient.Reason) Outcome {
	return Outcome{Reason: reason, Message: reason.Message()}
}
