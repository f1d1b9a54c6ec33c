package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/domain"
)

// RequireRole allows the request only if the authenticated user holds one of roles.
// It must run after AuthMiddleware.
func RequireRole(roles ...domain.UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := c.Locals("user").(*domain.User)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "authentication required",
				"code":  "unauthorized",
			})
		}

		for _, role := range roles {
			if user.Role == role {
				return c.Next()
			}
		}

		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "insufficient permissions",
			"code":  "forbidden",
		})
	}
}

// RequireAdmin is RequireRole for administrators
func RequireAdmin() fiber.Handler {
	return RequireRole(domain.RoleAdmin)
}
