package handler

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// Handlers groups everything SetupRoutes mounts. Metrics and Setup may be nil.
type Handlers struct {
	Auth     *AuthHandler
	Sessions *SessionHandler
	Users    *UserHandler
	Setup    *SetupHandler
	Health   *HealthHandler
	JWKS     *JWKSHandler
	Metrics  http.Handler
}

// RouteConfig tunes the public surface.
type RouteConfig struct {
	LoginRateLimit int
	LoginWindow    time.Duration
}

// LoginLimiter throttles login attempts per client IP.
func LoginLimiter(max int, window time.Duration) fiber.Handler {
	if window <= 0 {
		window = time.Minute
	}
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(errorBody("rate_limited", "too many login attempts"))
		},
	})
}

func SetupRoutes(
	app *fiber.App,
	h Handlers,
	cfg RouteConfig,
	authMiddleware fiber.Handler,
	requireAdmin fiber.Handler,
) {
	// Health checks (public)
	app.Get("/health", h.Health.Health)
	app.Get("/ready", h.Health.Ready)
	if h.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(h.Metrics))
	}
	app.Get("/.well-known/jwks.json", h.JWKS.GetJWKS)

	// API v1
	api := app.Group("/api/v1")

	// Auth routes
	auth := api.Group("/auth")
	if cfg.LoginRateLimit > 0 {
		auth.Post("/login", LoginLimiter(cfg.LoginRateLimit, cfg.LoginWindow), h.Auth.Login)
	} else {
		auth.Post("/login", h.Auth.Login)
	}
	auth.Get("/me", h.Auth.Me)
	auth.Post("/logout", h.Auth.Logout)
	auth.Get("/sessions", authMiddleware, h.Sessions.GetMySessions)

	// One-time bootstrap
	if h.Setup != nil {
		api.Post("/setup/admin", h.Setup.CreateAdmin)
	}

	// Admin routes (require admin role)
	admin := api.Group("/admin", authMiddleware, requireAdmin)
	admin.Post("/sessions/purge", h.Sessions.PurgeExpired)

	// Staff accounts (admin only)
	users := admin.Group("/users")
	users.Get("/", h.Users.ListUsers)
	users.Post("/", h.Users.CreateUser)
	users.Patch("/:id/status", h.Users.UpdateStatus)
}
