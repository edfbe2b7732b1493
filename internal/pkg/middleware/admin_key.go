package middleware

import (
	"crypto/hmac"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/sitesmith/sitesmith/internal/pkg/env"
)

// AdminKeyMiddleware guards operational endpoints (replay, purge) behind a
// static key configured via ADMIN_API_KEY. When the key is not configured
// the admin surface is disabled entirely.
func AdminKeyMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		expected := strings.TrimSpace(env.GetEnv("ADMIN_API_KEY", ""))
		if expected == "" {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Admin API disabled"})
		}

		provided := strings.TrimSpace(c.Get("X-Admin-Key"))
		if provided == "" || !hmac.Equal([]byte(provided), []byte(expected)) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid admin key"})
		}

		return c.Next()
	}
}
