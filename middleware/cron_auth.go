package middleware

import (
	"crypto/subtle"

	"reachloop/config"

	"github.com/gofiber/fiber/v2"
)

// CronAuth gates the scheduler trigger behind the shared secret header.
func CronAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		secret := config.AppConfig.CronSecret
		provided := c.Get("X-Cron-Secret")
		if secret == "" ||
			subtle.ConstantTimeCompare([]byte(secret), []byte(provided)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
		}
		return c.Next()
	}
}
