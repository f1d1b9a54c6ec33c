package session

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrIncomplete is returned when saving a session that is missing required fields.
	ErrIncomplete = errors.New("session: incomplete session")
	// ErrExpired is returned when saving a session whose token has already expired.
	ErrExpired = errors.New("session: session already expired")
)

// Identity is the subject projection of a session that the UI is allowed to see.
type Identity struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username,omitempty"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role,omitempty"`
}

// Session is the canonical client-side record proving a user is authenticated.
// Every identity provider adapter normalizes into this shape.
type Session struct {
	Identity     Identity  `json:"identity"`
	Token        string    `json:"token"`
	Provider     string    `json:"provider,omitempty"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	LastActivity time.Time `json:"last_activity"`
	StayLoggedIn bool      `json:"stay_logged_in"`
}

// Complete reports whether every required field is populated.
// A session that is not complete must never be persisted or trusted.
func (s *Session) Complete() bool {
	if s == nil {
		return false
	}
	if s.Identity.UserID == "" || (s.Identity.Username == "" && s.Identity.Email == "") {
		return false
	}
	return s.Token != "" && !s.IssuedAt.IsZero() && !s.LastActivity.IsZero()
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// User returns a copy of the identity projection.
func (s *Session) User() *Identity {
	if s == nil {
		return nil
	}
	id := s.Identity
	return &id
}

// Name picks the most human-friendly label for the subject.
func (i Identity) Name() string {
	switch {
	case i.DisplayName != "":
		return i.DisplayName
	case i.Username != "":
		return i.Username
	default:
		return i.Email
	}
}

func encode(s *Session) ([]byte, error) {
	if !s.Complete() {
		return nil, ErrIncomplete
	}
	return json.Marshal(s)
}

// decode returns nil for anything that does not parse into a complete session.
func decode(data []byte) *Session {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	if !s.Complete() {
		return nil
	}
	return &s
}
