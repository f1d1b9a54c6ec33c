package handler

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/handler/middleware"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/logger"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/service"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/pkg/validator"
)

// AuthService is the part of service.AuthService the auth endpoints use.
type AuthService interface {
	Login(ctx context.Context, req service.LoginRequest) (*service.LoginResponse, error)
	Me(ctx context.Context, token string) (*service.UserDTO, error)
	Logout(ctx context.Context, token string) error
}

type AuthHandler struct {
	authService AuthService
	validator   *validator.Validator
	log         *slog.Logger
}

func NewAuthHandler(authService AuthService, validator *validator.Validator) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		validator:   validator,
		log:         logger.With("auth_handler"),
	}
}

// Login handles user login
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req service.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	if err := h.validator.Validate(req); err != nil {
		return badRequest(c, err.Error())
	}

	req.UserAgent = c.Get(fiber.HeaderUserAgent)
	req.IPAddress = c.IP()

	resp, err := h.authService.Login(c.UserContext(), req)
	if err != nil {
		return writeAuthError(c, h.log, err)
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}

// Me returns the identity behind the bearer token
// GET /api/v1/auth/me
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	token, ok := middleware.BearerToken(c)
	if !ok {
		return writeAuthError(c, h.log, service.ErrUnauthorized)
	}

	user, err := h.authService.Me(c.UserContext(), token)
	if err != nil {
		return writeAuthError(c, h.log, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"user": user})
}

// Logout revokes the bearer token
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	token, ok := middleware.BearerToken(c)
	if !ok {
		return writeAuthError(c, h.log, service.ErrUnauthorized)
	}

	if err := h.authService.Logout(c.UserContext(), token); err != nil {
		return writeAuthError(c, h.log, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
