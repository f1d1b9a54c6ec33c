package handler

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/repository"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/service"
)

// errorBody is the wire shape every failed request shares.
func errorBody(code, message string) fiber.Map {
	return fiber.Map{"error": message, "code": code}
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(errorBody("invalid_request", message))
}

// writeAuthError maps service errors onto status codes. Anything unknown is
// logged and reported as an internal error without leaking its text.
func writeAuthError(c *fiber.Ctx, log *slog.Logger, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return c.Status(fiber.StatusUnauthorized).JSON(errorBody("invalid_credentials", "invalid username or password"))
	case errors.Is(err, service.ErrUnauthorized):
		return c.Status(fiber.StatusUnauthorized).JSON(errorBody("unauthorized", "invalid or expired token"))
	case errors.Is(err, service.ErrAccountLocked):
		return c.Status(fiber.StatusForbidden).JSON(errorBody("account_locked", err.Error()))
	case errors.Is(err, service.ErrAccountDisabled):
		return c.Status(fiber.StatusForbidden).JSON(errorBody("account_disabled", err.Error()))
	case errors.Is(err, service.ErrAdminExists):
		return c.Status(fiber.StatusConflict).JSON(errorBody("admin_exists", err.Error()))
	case errors.Is(err, service.ErrUserExists):
		return c.Status(fiber.StatusConflict).JSON(errorBody("user_exists", err.Error()))
	case errors.Is(err, service.ErrInvalidStatus), errors.Is(err, service.ErrSelfDisable):
		return badRequest(c, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(errorBody("not_found", err.Error()))
	}

	log.Error("request failed", "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(errorBody("internal", "internal server error"))
}
