package handlers

import (
	"github.com/gofiber/fiber/v2"

	applog "agrobulk/internal/log"
	"agrobulk/internal/validate"
)

// CallerHeader carries the user id established by the authentication layer
// in front of this service.
const CallerHeader = "X-User-ID"

// Limiter decides whether a caller may make one more request.
type Limiter interface {
	Allow(key string) bool
}

// RequireCaller rejects requests that arrive without a usable caller id.
func RequireCaller() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := validate.ID(c.Get(CallerHeader))
		if !ok {
			applog.Security(c, "access.denied.anonymous", nil)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "Unauthenticated",
				"message": "missing or malformed " + CallerHeader,
			})
		}
		c.Locals("caller", id)
		return c.Next()
	}
}

// RateLimit throttles each caller through l. Read-only requests pass.
func RateLimit(l Limiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if l == nil || c.Method() == fiber.MethodGet {
			return c.Next()
		}
		key := caller(c)
		if key == "" {
			key = c.IP()
		}
		if !l.Allow(key) {
			applog.Security(c, "rate.caller.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "RateLimited",
				"message": "rate limit exceeded, retry soon",
			})
		}
		return c.Next()
	}
}

func caller(c *fiber.Ctx) string {
	id, _ := c.Locals("caller").(string)
	return id
}
