// Package gateway is the local HTTP surface of the CRM client. It exposes the
// auth provider to a browser or script and serves guarded application routes.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/apiclient"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/authclient"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/authstate"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/guard"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/handler/middleware"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/logger"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/metrics"
	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/pkg/validator"
)

// Auth is the provider surface the gateway drives.
type Auth interface {
	guard.Source
	Login(ctx context.Context, creds authclient.Credentials) authstate.Outcome
	Logout(ctx context.Context)
}

// Backend fetches data from the CRM backend as the signed-in user.
type Backend interface {
	Get(ctx context.Context, path string, out any) error
}

type Options struct {
	Metrics *metrics.Auth
	Logger  *slog.Logger
}

type gateway struct {
	auth      Auth
	backend   Backend
	validator *validator.Validator
	log       *slog.Logger
}

// New builds the gateway app.
func New(auth Auth, backend Backend, opts Options) *fiber.App {
	log := opts.Logger
	if log == nil {
		log = logger.With("gateway")
	}
	g := &gateway{
		auth:      auth,
		backend:   backend,
		validator: validator.NewValidator(),
		log:       log,
	}

	app := fiber.New(fiber.Config{
		AppName:               "crmctl gateway",
		DisableStartupMessage: true,
	})
	app.Use(middleware.RecoveryMiddleware(log))
	app.Use(middleware.LoggerMiddleware(log, opts.Metrics))

	app.Get("/session", g.session)
	app.Get("/login", g.loginForm)
	app.Post("/login", g.login)
	app.Post("/logout", g.logout)
	if opts.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(opts.Metrics.Handler()))
	}

	protected := app.Group("/app", guard.Middleware(auth, guard.Config{
		LoginPath: "/login",
		APIPrefix: "/app/api/",
	}))
	protected.Get("/whoami", g.whoami)
	protected.Get("/api/sessions", g.proxy("/api/v1/auth/sessions"))

	return app
}

func (g *gateway) session(c *fiber.Ctx) error {
	return c.JSON(g.auth.State())
}

func (g *gateway) loginForm(c *fiber.Ctx) error {
	body := fiber.Map{"login": "POST /login {identity, secret, stay_logged_in}"}
	if notice := g.auth.State().Notice; notice != "" {
		body["notice"] = notice
	}
	return c.JSON(body)
}

func (g *gateway) login(c *fiber.Ctx) error {
	var creds authclient.Credentials
	if err := c.BodyParser(&creds); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(failureOutcome(authclient.ReasonInvalidInput))
	}
	if err := g.validator.Validate(creds); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(failureOutcome(authclient.ReasonInvalidInput))
	}

	out := g.auth.Login(c.UserContext(), creds)
	return c.Status(outcomeStatus(out)).JSON(out)
}

func (g *gateway) logout(c *fiber.Ctx) error {
	g.auth.Logout(c.UserContext())
	return c.SendStatus(fiber.StatusNoContent)
}

func (g *gateway) whoami(c *fiber.Ctx) error {
	return g.proxy("/api/v1/auth/me")(c)
}

// proxy relays a backend GET as the signed-in user.
func (g *gateway) proxy(path string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var raw json.RawMessage
		err := g.backend.Get(c.UserContext(), path, &raw)
		if err == nil {
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Send(raw)
		}

		var se *apiclient.StatusError
		switch {
		case errors.Is(err, authclient.ErrUnauthorized):
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": authclient.ReasonSessionExpired.Message(),
				"code":  "unauthorized",
			})
		case errors.As(err, &se):
			return c.Status(se.Status).JSON(fiber.Map{"error": se.Message, "code": se.Code})
		}

		reason := authclient.Classify(err)
		g.log.Warn("backend call failed", "path", path, "reason", reason, "error", err)
		return c.Status(reasonStatus(reason)).JSON(fiber.Map{
			"error": reason.Message(),
			"code":  string(reason),
		})
	}
}

func failureOutcome(r authclient.Reason) authstate.Outcome {
	return authstate.Outcome{Reason: r, Message: r.Message()}
}

func outcomeStatus(out authstate.Outcome) int {
	if out.Success {
		return fiber.StatusOK
	}
	return reasonStatus(out.Reason)
}

func reasonStatus(r authclient.Reason) int {
	switch r {
	case authclient.ReasonInvalidCredentials, authclient.ReasonUnauthorized, authclient.ReasonSessionExpired:
		return http.StatusUnauthorized
	case authclient.ReasonAccountDisabled:
		return http.StatusForbidden
	case authclient.ReasonRateLimited:
		return http.StatusTooManyRequests
	case authclient.ReasonInvalidInput:
		return http.StatusBadRequest
	case authclient.ReasonSuperseded:
		return http.StatusConflict
	case authclient.ReasonTimeout:
		return http.StatusGatewayTimeout
	case authclient.ReasonNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
