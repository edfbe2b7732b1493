package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/sitesmith/sitesmith/app/controllers"
	"github.com/sitesmith/sitesmith/internal/pkg/audit"
	"github.com/sitesmith/sitesmith/internal/pkg/billing"
	"github.com/sitesmith/sitesmith/internal/pkg/cache"
	"github.com/sitesmith/sitesmith/internal/pkg/database"
	"github.com/sitesmith/sitesmith/internal/pkg/env"
	"github.com/sitesmith/sitesmith/internal/pkg/payloadarchive"
	"github.com/sitesmith/sitesmith/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	repo := billing.NewRepository(db)
	recorder := audit.NewRecorder(db)
	entCache := cache.NewEntitlementCache()
	notifier := billing.NewSaleNotifierFromEnv()
	svc := billing.NewService(repo, recorder, notifier, entCache)

	// Checkout is optional: a deployment without Stripe credentials still
	// serves the free tier and the webhook endpoint.
	checkout, err := billing.NewStripeCheckoutFromEnv()
	if err != nil {
		fiberlog.Warnf("[App] checkout disabled: %v", err)
		checkout = nil
	}

	var archiver billing.PayloadArchiver
	archiveCfg, err := payloadarchive.LoadConfig()
	if err != nil {
		fiberlog.Errorf("[App] invalid payload archive config: %v", err)
	} else if archiveCfg.IsEnabled() {
		client, err := payloadarchive.NewClient(archiveCfg)
		if err != nil {
			fiberlog.Errorf("[App] payload archive unavailable: %v", err)
		} else {
			archiver = client
		}
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 1 << 20, // webhook payloads are small JSON documents
	})
	app.Use(recover.New(), logger.New())

	router.InstallRouter(app, router.Controllers{
		Webhook:      controllers.NewWebhookController(svc, env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
		Billing:      controllers.NewBillingController(svc, repo, checkout, entCache),
		Auth:         controllers.NewAuthController(repo),
		AdminWebhook: controllers.NewAdminWebhookController(svc, archiver),
	})

	return app
}
