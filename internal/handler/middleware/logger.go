package middleware

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/dhatzige/Career-Services-Personal-CRM-v1-sub003/internal/metrics"
)

// LoggerMiddleware logs every request and records request metrics. m may be nil.
func LoggerMiddleware(log *slog.Logger, m *metrics.Auth) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()
		if err != nil {
			// Let the error handler set the final status before it is recorded
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		latency := time.Since(start)
		status := c.Response().StatusCode()
		route := c.Route().Path

		level := slog.LevelInfo
		if status >= fiber.StatusInternalServerError {
			level = slog.LevelError
		}
		log.Log(c.Context(), level, "request",
			"method", c.Method(),
			"path", c.Path(),
			"route", route,
			"status", status,
			"latency", latency,
			"ip", c.IP(),
		)

		if m != nil {
			m.Requests.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
			m.Latency.WithLabelValues(c.Method(), route).Observe(latency.Seconds())
		}
		return nil
	}
}
