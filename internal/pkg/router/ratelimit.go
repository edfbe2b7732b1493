package router

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/sitesmith/sitesmith/internal/pkg/cache"
	"github.com/sitesmith/sitesmith/internal/pkg/env"
)

// newRateLimiter builds the per-IP limiter for the public API group. The
// counters live in redis so all instances share one budget; without a cache
// client the limiter falls back to its in-memory store.
func newRateLimiter() fiber.Handler {
	cfg := limiter.Config{
		Max:        60,
		Expiration: 1 * time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "Too many requests",
			})
		},
	}

	// Reuse the cache connection settings, but keep limiter counters in a
	// separate redis database (cache uses DB 0).
	if cacheClient := cache.GetClient(); cacheClient != nil {
		host := "localhost"
		port := 6379
		password := env.GetEnv("CACHE_PASSWORD", "")
		addr := cacheClient.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := cacheClient.Options().Password; p != "" {
			password = p
		}
		cfg.Storage = redis.New(redis.Config{
			Host:     host,
			Port:     port,
			Password: password,
			Database: 1,
			Reset:    false,
		})
	}

	return limiter.New(cfg)
}
