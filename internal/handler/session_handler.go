package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/domain"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/logger"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/service"
)

// SessionService lists and purges server sessions.
type SessionService interface {
	ListSessions(ctx context.Context, userID uuid.UUID) ([]*domain.Session, error)
	PurgeExpiredSessions(ctx context.Context) (int64, error)
}

type SessionHandler struct {
	sessions SessionService
	log      *slog.Logger
}

func NewSessionHandler(sessions SessionService) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		log:      logger.With("session_handler"),
	}
}

// SessionResponse represents a session without sensitive data
type SessionResponse struct {
	ID         string `json:"id"`
	UserAgent  string `json:"user_agent,omitempty"`
	IPAddress  string `json:"ip_address,omitempty"`
	ExpiresAt  string `json:"expires_at"`
	CreatedAt  string `json:"created_at"`
	LastSeenAt string `json:"last_seen_at"`
	IsCurrent  bool   `json:"is_current"`
}

// GetMySessions lists all active sessions for the current user
// GET /api/v1/auth/sessions
func (h *SessionHandler) GetMySessions(c *fiber.Ctx) error {
	claims, ok := c.Locals("claims").(*domain.Claims)
	if !ok {
		return writeAuthError(c, h.log, service.ErrUnauthorized)
	}

	sessions, err := h.sessions.ListSessions(c.UserContext(), claims.UserID)
	if err != nil {
		return writeAuthError(c, h.log, err)
	}

	response := make([]SessionResponse, len(sessions))
	for i, s := range sessions {
		response[i] = SessionResponse{
			ID:         s.ID.String(),
			UserAgent:  s.UserAgent,
			IPAddress:  s.IPAddress,
			ExpiresAt:  s.ExpiresAt.UTC().Format(time.RFC3339),
			CreatedAt:  s.CreatedAt.UTC().Format(time.RFC3339),
			LastSeenAt: s.LastSeenAt.UTC().Format(time.RFC3339),
			IsCurrent:  s.ID == claims.SessionID,
		}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"sessions": response,
		"total":    len(response),
	})
}

// PurgeExpired deletes expired sessions ahead of the background janitor
// POST /api/v1/admin/sessions/purge
func (h *SessionHandler) PurgeExpired(c *fiber.Ctx) error {
	n, err := h.sessions.PurgeExpiredSessions(c.UserContext())
	if err != nil {
		return writeAuthError(c, h.log, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"purged": n})
}
