package routes

import (
	"chatbet/controllers/admin"
	"chatbet/controllers/payment"
	"chatbet/controllers/webhook"
	"chatbet/middlewares"

	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Webhook *webhook.Handler
	Payment *payment.Handler
	Admin   *admin.Handler
}

func Setup(app *fiber.App, h Handlers) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	// WhatsApp Cloud API webhook
	app.Get("/webhook/whatsapp", h.Webhook.Verify)
	app.Post("/webhook/whatsapp", middlewares.VerifyWebhookSignature(), h.Webhook.Receive)

	// payment collaborator callbacks
	payroutes := app.Group("/callback/payment", middlewares.AdminAuth())
	payroutes.Post("/deposit", h.Payment.DepositCompleted)

	// operational endpoints
	adminroutes := app.Group("/admin", middlewares.AdminAuth())
	adminroutes.Post("/fixtures/settle", h.Admin.SettleFixture)
	adminroutes.Post("/fixtures/refresh", h.Admin.RefreshLeague)
}
