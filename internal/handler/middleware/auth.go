package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/domain"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/service"
)

// TokenAuthenticator resolves bearer tokens.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.Claims, *domain.User, error)
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(c *fiber.Ctx) (string, bool) {
	parts := strings.SplitN(c.Get(fiber.HeaderAuthorization), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// AuthMiddleware validates the bearer token and stores claims and user in Locals
func AuthMiddleware(auth TokenAuthenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := BearerToken(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing or malformed authorization header",
				"code":  "unauthorized",
			})
		}

		claims, user, err := auth.Authenticate(c.Context(), token)
		switch {
		case errors.Is(err, service.ErrAccountDisabled):
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "account is disabled",
				"code":  "account_disabled",
			})
		case errors.Is(err, service.ErrUnauthorized):
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid or expired token",
				"code":  "unauthorized",
			})
		case err != nil:
			return err
		}

		c.Locals("claims", claims)
		c.Locals("user", user)
		c.Locals("token", token)
		return c.Next()
	}
}
