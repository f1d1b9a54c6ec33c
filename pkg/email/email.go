package email

import (
	"context"
	"time"
)

// EmailService defines the notifications the identity backend sends
type EmailService interface {
	// SendSignInAlert tells a user that their account was just used to sign in
	SendSignInAlert(ctx context.Context, to, name string, info SignInInfo) error
}

// SignInInfo describes a successful sign-in
type SignInInfo struct {
	At        time.Time
	IPAddress string
	UserAgent string
}

// EmailConfig holds email service configuration
type EmailConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}
