package guard

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/authstate"
)

// ErrLoginRequired is returned by Require when nobody is signed in.
var ErrLoginRequired = errors.New("login required")

// Decision is what a protected view should do for a given auth state.
type Decision int

const (
	// Wait renders a loading indicator; the session is still being restored.
	Wait Decision = iota
	// Allow renders the protected content.
	Allow
	// Redirect sends the visitor to the login view.
	Redirect
)

func (d Decision) String() string {
	switch d {
	case Wait:
		return "wait"
	case Allow:
		return "allow"
	default:
		return "redirect"
	}
}

// Decide maps an auth state to a routing decision. Protected content is never
// allowed while the state is loading.
func Decide(st authstate.AuthState) Decision {
	switch {
	case st.Loading:
		return Wait
	case st.IsAuthenticated && st.User != nil:
		return Allow
	default:
		return Redirect
	}
}

// Source exposes the current auth state.
type Source interface {
	State() authstate.AuthState
}

// Waiter is a Source that can block until the initial restore settles.
type Waiter interface {
	Source
	Wait(ctx context.Context) error
}

// Config configures the HTTP guard.
type Config struct {
	// LoginPath is where browsers are redirected. Defaults to "/login".
	LoginPath string
	// APIPrefix marks routes that get a 401 JSON body instead of a redirect.
	// Defaults to "/api/".
	APIPrefix string
	// RetryAfter is the Retry-After value, in seconds, sent while restoring.
	RetryAfter string
}

// Middleware guards every route behind it. Allowed requests carry the
// signed-in identity in Locals("user").
func Middleware(src Source, cfg Config) fiber.Handler {
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/"
	}
	if cfg.RetryAfter == "" {
		cfg.RetryAfter = "1"
	}

	return func(c *fiber.Ctx) error {
		st := src.State()
		switch Decide(st) {
		case Allow:
			c.Locals("user", st.User)
			return c.Next()
		case Wait:
			c.Set(fiber.HeaderRetryAfter, cfg.RetryAfter)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "session is being restored",
				"code":  "loading",
			})
		}

		if strings.HasPrefix(c.Path(), cfg.APIPrefix) || acceptsJSON(c) {
			body := fiber.Map{
				"error": "authentication required",
				"code":  "unauthorized",
			}
			if st.Notice != "" {
				body["notice"] = st.Notice
			}
			return c.Status(fiber.StatusUnauthorized).JSON(body)
		}
		return c.Redirect(cfg.LoginPath, fiber.StatusFound)
	}
}

func acceptsJSON(c *fiber.Ctx) bool {
	accept := c.Get(fiber.HeaderAccept)
	return strings.Contains(accept, fiber.MIMEApplicationJSON) && !strings.Contains(accept, fiber.MIMETextHTML)
}

// Require is the guard for commands: it waits out the restore phase and
// then fails with ErrLoginRequired unless a user is signed in.
func Require(ctx context.Context, w Waiter) error {
	if err := w.Wait(ctx); err != nil {
		return err
	}
	if Decide(w.State()) != Allow {
		return ErrLoginRequired
	}
	return nil
}
