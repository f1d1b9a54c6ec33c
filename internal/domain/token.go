package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const TokenTypeAccess = "access"

// IssuedToken is a signed access token bound to a server session.
type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
	SessionID uuid.UUID
}

type Claims struct {
	jwt.RegisteredClaims
	UserID    uuid.UUID `json:"uid"`
	Email     string    `json:"email"`
	Username  string    `json:"username,omitempty"`
	Role      UserRole  `json:"role"`
	SessionID uuid.UUID `json:"sid"`
	TokenType string    `json:"type"`
}
