package controllers

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/sitesmith/sitesmith/internal/pkg/billing"
	"github.com/sitesmith/sitesmith/internal/pkg/cache"
	"github.com/sitesmith/sitesmith/internal/pkg/middleware"
)

// BillingController serves the authenticated billing surface: checkout,
// billing portal and entitlement lookups.
type BillingController struct {
	svc      *billing.Service
	repo     billing.Repository
	checkout *billing.StripeCheckout
	entCache *cache.EntitlementCache
	validate *validator.Validate
}

func NewBillingController(svc *billing.Service, repo billing.Repository, checkout *billing.StripeCheckout, entCache *cache.EntitlementCache) *BillingController {
	return &BillingController{
		svc:      svc,
		repo:     repo,
		checkout: checkout,
		entCache: entCache,
		validate: validator.New(),
	}
}

type checkoutRequest struct {
	SiteID     uint   `json:"site_id"`
	SuccessURL string `json:"success_url" validate:"required,url"`
	CancelURL  string `json:"cancel_url" validate:"required,url"`
}

// CreateCheckoutSession starts a hosted checkout for the paid plan.
func (bc *BillingController) CreateCheckoutSession(c *fiber.Ctx) error {
	orgID := middleware.OrgIDFromContext(c)
	if orgID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing organization context"})
	}
	if bc.checkout == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "billing_unavailable", "message": "Checkout is not configured"})
	}

	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid JSON body"})
	}
	if err := bc.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": err.Error()})
	}

	sub, err := bc.repo.GetOrCreateSubscription(orgID)
	if err != nil {
		log.Errorf("[Billing] failed to load subscription for org %d: %v", orgID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Subscription lookup failed"})
	}
	if sub.IsPaidActive() {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "already_subscribed", "message": "Organization already has an active paid subscription"})
	}

	url, err := bc.checkout.CheckoutURL(c.UserContext(), sub, req.SiteID, req.SuccessURL, req.CancelURL)
	if err != nil {
		log.Errorf("[Billing] checkout session for org %d failed: %v", orgID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "checkout_failed", "message": "Could not create checkout session"})
	}

	return c.JSON(fiber.Map{"checkout_url": url})
}

type portalRequest struct {
	ReturnURL string `json:"return_url" validate:"required,url"`
}

// CreatePortalSession opens the provider billing portal for self-service.
func (bc *BillingController) CreatePortalSession(c *fiber.Ctx) error {
	orgID := middleware.OrgIDFromContext(c)
	if orgID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing organization context"})
	}
	if bc.checkout == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "billing_unavailable", "message": "Billing portal is not configured"})
	}

	var req portalRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": "Invalid JSON body"})
	}
	if err := bc.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request", "message": err.Error()})
	}

	sub, err := bc.repo.GetSubscriptionByOrg(orgID)
	if err != nil || sub.StripeCustomerID == nil || *sub.StripeCustomerID == "" {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no_billing_account", "message": "Organization has no billing account yet"})
	}

	url, err := bc.checkout.PortalURL(c.UserContext(), *sub.StripeCustomerID, req.ReturnURL)
	if err != nil {
		log.Errorf("[Billing] portal session for org %d failed: %v", orgID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "portal_failed", "message": "Could not create portal session"})
	}

	return c.JSON(fiber.Map{"portal_url": url})
}

// GetEntitlements returns the effective feature gates for the caller's org.
// Responses are cached; the webhook reconciler invalidates on plan changes.
func (bc *BillingController) GetEntitlements(c *fiber.Ctx) error {
	orgID := middleware.OrgIDFromContext(c)
	if orgID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing organization context"})
	}

	if bc.entCache != nil {
		if cached, ok := bc.entCache.GetJSON(orgID); ok {
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.SendString(cached)
		}
	}

	ent, err := bc.svc.GetOrgEntitlements(c.UserContext(), orgID)
	if err != nil {
		log.Errorf("[Billing] entitlement lookup for org %d failed: %v", orgID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Entitlement lookup failed"})
	}

	payload, err := json.Marshal(ent)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Entitlement serialization failed"})
	}
	if bc.entCache != nil {
		bc.entCache.SetJSON(orgID, string(payload))
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(payload)
}
