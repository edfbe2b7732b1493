package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/sitesmith/sitesmith/app/controllers"
	"github.com/sitesmith/sitesmith/internal/pkg/middleware"
)

// Controllers bundles the handlers the router wires up.
type Controllers struct {
	Webhook      *controllers.WebhookController
	Billing      *controllers.BillingController
	Auth         *controllers.AuthController
	AdminWebhook *controllers.AdminWebhookController
}

// InstallRouter registers all routes. The webhook endpoint stays outside the
// rate-limited API group: throttling the provider would turn bursts of
// legitimate deliveries into redelivery storms.
func InstallRouter(app *fiber.App, c Controllers) {
	app.Get("/health", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	app.Post("/webhooks/stripe", c.Webhook.HandleStripeWebhook)

	api := app.Group("/api", newRateLimiter())
	v1 := api.Group("/v1")

	v1.Post("/auth/register", c.Auth.Register)
	v1.Post("/auth/login", c.Auth.Login)

	authed := v1.Group("", middleware.APIKeyAuthMiddleware())
	authed.Get("/entitlements", c.Billing.GetEntitlements)
	authed.Post("/billing/checkout", c.Billing.CreateCheckoutSession)
	authed.Post("/billing/portal", c.Billing.CreatePortalSession)

	admin := app.Group("/admin", middleware.AdminKeyMiddleware())
	admin.Get("/webhook-events/failed", c.AdminWebhook.ListFailedEvents)
	admin.Post("/webhook-events/:id/replay", c.AdminWebhook.ReplayEvent)
	admin.Post("/webhook-events/purge", c.AdminWebhook.PurgeEvents)
}
