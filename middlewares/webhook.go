package middlewares

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"chatbet/config"

	"github.com/gofiber/fiber/v2"
)

// VerifyWebhookSignature checks the X-Hub-Signature-256 header against an
// HMAC-SHA256 of the raw body. Unsigned or mis-signed payloads never reach
// the flow engine.
func VerifyWebhookSignature() fiber.Handler {
	secret := []byte(config.WebhookAppSecret())

	return func(c *fiber.Ctx) error {
		header := c.Get("X-Hub-Signature-256")
		if !strings.HasPrefix(header, "sha256=") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"status": 0,
				"msg":    "MISSING_SIGNATURE",
			})
		}

		h := hmac.New(sha256.New, secret)
		h.Write(c.Body())
		expected := hex.EncodeToString(h.Sum(nil))

		if !hmac.Equal([]byte(expected), []byte(strings.TrimPrefix(header, "sha256="))) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"status": 0,
				"msg":    "INVALID_SIGNATURE",
			})
		}

		return c.Next()
	}
}
