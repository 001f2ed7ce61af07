package middlewares

import (
	"crypto/subtle"

	"chatbet/config"

	"github.com/gofiber/fiber/v2"
)

// AdminAuth gates the operational endpoints behind a shared secret header.
func AdminAuth() fiber.Handler {
	expected := config.AdminSecret()

	return func(c *fiber.Ctx) error {
		got := c.Get("X-Admin-Secret")
		if expected == "" || subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"status": 0,
				"msg":    "INVALID_ADMIN_SECRET",
			})
		}

		return c.Next()
	}
}
