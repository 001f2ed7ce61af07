package middlewares

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedApp(t *testing.T, secret string) *fiber.App {
	t.Helper()
	t.Setenv("WHATSAPP_APP_SECRET", secret)

	app := fiber.New()
	app.Post("/hook", VerifyWebhookSignature(), func(c *fiber.Ctx) error {
		return c.SendString("passed")
	})
	return app
}

func sign(secret string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

func TestVerifyWebhookSignatureAcceptsValid(t *testing.T) {
	app := signedApp(t, "topsecret")
	body := []byte(`{"entry":[]}`)

	req := httptest.NewRequest("POST", "/hook", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", sign("topsecret", body))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestVerifyWebhookSignatureRejectsBadSignature(t *testing.T) {
	app := signedApp(t, "topsecret")
	body := []byte(`{"entry":[]}`)

	req := httptest.NewRequest("POST", "/hook", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", sign("wrongsecret", body))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestVerifyWebhookSignatureRejectsMissingHeader(t *testing.T) {
	app := signedApp(t, "topsecret")

	req := httptest.NewRequest("POST", "/hook", bytes.NewReader([]byte(`{}`)))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAdminAuth(t *testing.T) {
	t.Setenv("ADMIN_API_SECRET", "letmein")

	app := fiber.New()
	app.Post("/admin", AdminAuth(), func(c *fiber.Ctx) error {
		return c.SendString("passed")
	})

	req := httptest.NewRequest("POST", "/admin", nil)
	req.Header.Set("X-Admin-Secret", "letmein")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	req = httptest.NewRequest("POST", "/admin", nil)
	req.Header.Set("X-Admin-Secret", "guess")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
