package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/seal-agent/backend/internal/metrics"
)

// MetricsMiddleware records request counts and latency by route template.
func MetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		route := c.Route().Path
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		code := strconv.Itoa(status)
		metrics.HTTPRequests.WithLabelValues(c.Method(), route, code).Inc()
		metrics.HTTPDuration.WithLabelValues(c.Method(), route, code).Observe(time.Since(start).Seconds())
		return err
	}
}
