package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/sitesmith/sitesmith/internal/pkg/billing"
)

// StripeSignatureHeader is the header carrying the provider signature.
const StripeSignatureHeader = "Stripe-Signature"

const webhookProcessTimeout = 15 * time.Second

// WebhookController terminates provider webhook deliveries. The HTTP status
// tells the provider whether to redeliver: 401/400 reject the request itself,
// while handler failures still return 200 because redelivering the same event
// would only fail again; recovery happens through the admin replay endpoint.
type WebhookController struct {
	svc    *billing.Service
	secret string
}

func NewWebhookController(svc *billing.Service, webhookSecret string) *WebhookController {
	return &WebhookController{svc: svc, secret: webhookSecret}
}

// HandleStripeWebhook verifies, parses and processes one delivery.
func (wc *WebhookController) HandleStripeWebhook(c *fiber.Ctx) error {
	// The signature covers the exact raw bytes; grab a stable copy before
	// anything else touches the request.
	rawBody := make([]byte, len(c.Body()))
	copy(rawBody, c.Body())

	if err := billing.VerifyStripeWebhookSignature(rawBody, c.Get(StripeSignatureHeader), wc.secret, time.Now()); err != nil {
		log.Warnf("[Webhook] rejected delivery from %s: %v", c.IP(), err)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "invalid_signature",
			"message": "Webhook signature verification failed",
		})
	}

	ev, err := billing.ParseStripeEvent(rawBody)
	if err != nil {
		log.Warnf("[Webhook] unparsable payload after valid signature: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "invalid_payload",
			"message": "Webhook payload could not be parsed",
		})
	}

	requestID := requestIDFromCtx(c)
	ctx, cancel := context.WithTimeout(c.UserContext(), webhookProcessTimeout)
	defer cancel()

	res, err := wc.svc.ProcessEvent(ctx, ev, rawBody, requestID)
	if err != nil {
		// The event row could not be persisted, so the delivery left no trace.
		// This is the one case where asking the provider to retry helps.
		log.Errorf("[Webhook] failed to persist event %s: %v", ev.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "webhook_persist_failed",
			"message": "Event could not be recorded",
		})
	}

	return c.Status(fiber.StatusOK).JSON(webhookResultBody(ev.ID, res))
}

func webhookResultBody(eventID string, res *billing.ProcessResult) fiber.Map {
	body := fiber.Map{"event_id": eventID}
	switch {
	case res.Quarantined:
		body["status"] = "quarantined"
	case res.Duplicate:
		body["status"] = "duplicate"
	case res.HandlerErr != nil:
		body["status"] = "failed"
	case res.Ignored:
		body["status"] = "ignored"
	default:
		body["status"] = "processed"
	}
	return body
}

func requestIDFromCtx(c *fiber.Ctx) string {
	if id := strings.TrimSpace(c.Get("X-Request-ID")); id != "" {
		return id
	}
	return uuid.NewString()
}
