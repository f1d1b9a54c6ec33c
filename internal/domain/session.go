package domain

import (
	"time"

	"github.com/google/uuid"
)

// Session is the server-side record behind an issued access token. Deleting
// it revokes the token even before the token expires.
type Session struct {
	ID         uuid.UUID `json:"id" db:"id"`
	UserID     uuid.UUID `json:"user_id" db:"user_id"`
	UserAgent  string    `json:"user_agent,omitempty" db:"user_agent"`
	IPAddress  string    `json:"ip_address,omitempty" db:"ip_address"`
	ExpiresAt  time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at" db:"last_seen_at"`
}
