package email

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"

	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/logger"
)

// ResendEmailService implements EmailService using Resend
type ResendEmailService struct {
	client *resend.Client
	config *EmailConfig
	log    *slog.Logger
}

// NewResendEmailService creates a new Resend email service
func NewResendEmailService(config *EmailConfig) (*ResendEmailService, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("resend API key is required")
	}

	if config.FromEmail == "" {
		return nil, fmt.Errorf("from email is required")
	}

	return &ResendEmailService{
		client: resend.NewClient(config.APIKey),
		config: config,
		log:    logger.With("email"),
	}, nil
}

// SendSignInAlert sends the new sign-in notification
func (s *ResendEmailService) SendSignInAlert(ctx context.Context, to, name string, info SignInInfo) error {
	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", s.config.FromName, s.config.FromEmail),
		To:      []string{to},
		Subject: "New sign-in to Career Services CRM",
		Html:    SignInAlertTemplate(name, info),
	}

	sent, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		s.log.Warn("failed to send sign-in alert", "error", err)
		return fmt.Errorf("failed to send sign-in alert: %w", err)
	}

	s.log.Debug("sign-in alert sent", "message_id", sent.Id)
	return nil
}
