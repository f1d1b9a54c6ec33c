package handler

import (
	"context"
	"crypto/subtle"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/logger"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/service"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/pkg/validator"
)

// SetupTokenHeader carries the one-time bootstrap secret.
const SetupTokenHeader = "X-Setup-Token"

// AdminCreator bootstraps the first administrator.
type AdminCreator interface {
	AdminExists(ctx context.Context) (bool, error)
	CreateAdmin(ctx context.Context, req service.CreateAdminRequest) (*service.UserDTO, error)
}

type SetupHandler struct {
	admins     AdminCreator
	validator  *validator.Validator
	setupToken string
	log        *slog.Logger
}

// NewSetupHandler returns a handler that is disabled when setupToken is empty.
func NewSetupHandler(admins AdminCreator, validator *validator.Validator, setupToken string) *SetupHandler {
	return &SetupHandler{
		admins:     admins,
		validator:  validator,
		setupToken: setupToken,
		log:        logger.With("setup_handler"),
	}
}

// CreateAdmin creates the first administrator account. It only works once.
// POST /api/v1/setup/admin
func (h *SetupHandler) CreateAdmin(c *fiber.Ctx) error {
	if h.setupToken == "" {
		return c.Status(fiber.StatusNotFound).JSON(errorBody("not_found", "setup is disabled"))
	}
	if subtle.ConstantTimeCompare([]byte(c.Get(SetupTokenHeader)), []byte(h.setupToken)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(errorBody("unauthorized", "invalid setup token"))
	}

	var req service.CreateAdminRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := h.validator.Validate(req); err != nil {
		return badRequest(c, err.Error())
	}

	exists, err := h.admins.AdminExists(c.UserContext())
	if err != nil {
		return writeAuthError(c, h.log, err)
	}
	if exists {
		return writeAuthError(c, h.log, service.ErrAdminExists)
	}

	user, err := h.admins.CreateAdmin(c.UserContext(), req)
	if err != nil {
		return writeAuthError(c, h.log, err)
	}

	h.log.Info("setup completed", "user_id", user.ID, "ip", c.IP())
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user": user})
}
