package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/sitesmith/sitesmith/app/models"
)

// ErrOrgNotResolved marks an event that cannot be associated with any
// organization. This is not a failure: retrying cannot resolve a missing
// mapping, so the event is acknowledged and marked processed with no
// state change.
var ErrOrgNotResolved = errors.New("no organization could be resolved for event")

// reconcileOutcome is what a handler wants applied. Updates == nil means a
// recorded no-op (the event is understood but mutates nothing).
type reconcileOutcome struct {
	OrgID          uint
	Action         string
	Message        string
	TargetType     string
	TargetID       string
	Updates        map[string]interface{}
	DowngradeSites bool
	Sale           *SaleNotification
}

type reconcileHandler func(ctx context.Context, s *Service, ev *StripeEvent, requestID string) (*reconcileOutcome, error)

// reconcileHandlers maps provider event types onto handlers. The set is
// closed but extensible; types absent from the table are acknowledged and
// logged, never failed, so provider-added event types cannot break delivery.
var reconcileHandlers = map[string]reconcileHandler{
	"checkout.session.completed":    handleCheckoutCompleted,
	"customer.subscription.updated": handleSubscriptionUpdated,
	"customer.subscription.deleted": handleSubscriptionDeleted,
	"invoice.payment_failed":        handleInvoicePaymentFailed,
	"invoice.paid":                  handleInvoicePaid,
	"invoice.payment_succeeded":     handleInvoicePaid,
}

// eventActions names the audit action per event type, also used for the
// "<action>.processing_failed" trail on handler errors.
var eventActions = map[string]string{
	"checkout.session.completed":    "billing.payment_succeeded",
	"customer.subscription.updated": "billing.subscription_updated",
	"customer.subscription.deleted": "billing.subscription_canceled",
	"invoice.payment_failed":        "billing.payment_failed",
	"invoice.paid":                  "billing.invoice_paid",
	"invoice.payment_succeeded":     "billing.invoice_paid",
}

func actionForEventType(eventType string) string {
	if action, ok := eventActions[eventType]; ok {
		return action
	}
	return "billing.webhook"
}

// Pure transition functions: (payload, now) -> column updates. Applied as a
// single conditional update scoped by org.

func checkoutCompletedUpdates(p *CheckoutSessionPayload, now time.Time) map[string]interface{} {
	updates := map[string]interface{}{
		"plan":            models.SubscriptionPlanPaid,
		"status":          models.SubscriptionStatusActive,
		"dunning_stage":   0,
		"last_payment_at": now,
	}
	if p.Customer != "" {
		updates["stripe_customer_id"] = p.Customer
	}
	if p.Subscription != "" {
		updates["stripe_subscription_id"] = p.Subscription
	}
	return updates
}

func subscriptionUpdatedUpdates(p *SubscriptionPayload) map[string]interface{} {
	start, end := p.PeriodBounds()
	// Provider status and intent flags are copied verbatim.
	return map[string]interface{}{
		"status":               strings.ToLower(strings.TrimSpace(p.Status)),
		"cancel_at_period_end": p.CancelAtPeriodEnd,
		"current_period_start": start,
		"current_period_end":   end,
	}
}

func subscriptionDeletedUpdates() map[string]interface{} {
	return map[string]interface{}{
		"plan":                   models.SubscriptionPlanFree,
		"status":                 models.SubscriptionStatusCanceled,
		"stripe_subscription_id": nil,
	}
}

func paymentFailedUpdates(now time.Time) map[string]interface{} {
	// Plan stays untouched so the org keeps its tier through the grace window.
	return map[string]interface{}{
		"status":                 models.SubscriptionStatusPastDue,
		"last_payment_failed_at": now,
	}
}

func handleCheckoutCompleted(ctx context.Context, s *Service, ev *StripeEvent, requestID string) (*reconcileOutcome, error) {
	p, err := ParseCheckoutSession(ev.Object)
	if err != nil {
		return nil, fmt.Errorf("parse checkout session: %w", err)
	}
	orgID, err := s.resolveOrg(p.Metadata, p.ClientReferenceID, p.Customer)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sale := &SaleNotification{
		OrgID:                orgID,
		SiteID:               parseUintField(p.Metadata["site_id"]),
		StripeCustomerID:     p.Customer,
		StripeSubscriptionID: p.Subscription,
		Plan:                 models.SubscriptionPlanPaid,
		AmountCents:          p.AmountTotal,
		Currency:             strings.ToUpper(strings.TrimSpace(p.Currency)),
		Timestamp:            now.UTC(),
		RequestID:            requestID,
		TraceID:              ev.ID,
	}

	return &reconcileOutcome{
		OrgID:      orgID,
		Action:     actionForEventType(ev.Type),
		Message:    "Payment successful - plan upgraded",
		TargetType: "checkout_session",
		TargetID:   p.ID,
		Updates:    checkoutCompletedUpdates(p, now),
		Sale:       sale,
	}, nil
}

func handleSubscriptionUpdated(ctx context.Context, s *Service, ev *StripeEvent, requestID string) (*reconcileOutcome, error) {
	p, err := ParseSubscriptionObject(ev.Object)
	if err != nil {
		return nil, fmt.Errorf("parse subscription: %w", err)
	}
	orgID, err := s.resolveOrg(p.Metadata, "", p.Customer)
	if err != nil {
		return nil, err
	}

	return &reconcileOutcome{
		OrgID:      orgID,
		Action:     actionForEventType(ev.Type),
		Message:    "Subscription state synced from provider",
		TargetType: "subscription",
		TargetID:   p.ID,
		Updates:    subscriptionUpdatedUpdates(p),
	}, nil
}

func handleSubscriptionDeleted(ctx context.Context, s *Service, ev *StripeEvent, requestID string) (*reconcileOutcome, error) {
	p, err := ParseSubscriptionObject(ev.Object)
	if err != nil {
		return nil, fmt.Errorf("parse subscription: %w", err)
	}
	orgID, err := s.resolveOrg(p.Metadata, "", p.Customer)
	if err != nil {
		return nil, err
	}

	return &reconcileOutcome{
		OrgID:          orgID,
		Action:         actionForEventType(ev.Type),
		Message:        "Subscription canceled - org downgraded to free",
		TargetType:     "subscription",
		TargetID:       p.ID,
		Updates:        subscriptionDeletedUpdates(),
		DowngradeSites: true,
	}, nil
}

func handleInvoicePaymentFailed(ctx context.Context, s *Service, ev *StripeEvent, requestID string) (*reconcileOutcome, error) {
	p, err := ParseInvoiceObject(ev.Object)
	if err != nil {
		return nil, fmt.Errorf("parse invoice: %w", err)
	}
	orgID, err := s.resolveOrg(p.Metadata, "", p.Customer)
	if err != nil {
		return nil, err
	}

	return &reconcileOutcome{
		OrgID:      orgID,
		Action:     actionForEventType(ev.Type),
		Message:    "Payment failed - subscription past due",
		TargetType: "invoice",
		TargetID:   p.ID,
		Updates:    paymentFailedUpdates(time.Now()),
	}, nil
}

// handleInvoicePaid is the recorded no-op backup path; it exists so the
// event type is not logged as unhandled.
func handleInvoicePaid(ctx context.Context, s *Service, ev *StripeEvent, requestID string) (*reconcileOutcome, error) {
	p, err := ParseInvoiceObject(ev.Object)
	if err != nil {
		return nil, fmt.Errorf("parse invoice: %w", err)
	}
	return &reconcileOutcome{
		Action:     actionForEventType(ev.Type),
		TargetType: "invoice",
		TargetID:   p.ID,
	}, nil
}

// resolveOrg recovers the owning org from event metadata, falling back to
// the client reference and finally to the subscription row owning the
// referenced customer.
func (s *Service) resolveOrg(metadata map[string]string, clientReferenceID, customerID string) (uint, error) {
	if id := parseUintField(metadata["org_id"]); id != 0 {
		return id, nil
	}
	if id := parseUintField(clientReferenceID); id != 0 {
		return id, nil
	}
	if c := strings.TrimSpace(customerID); c != "" {
		orgID, err := s.repo.FindOrgIDByStripeCustomer(c)
		if err == nil {
			return orgID, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, err
		}
	}
	return 0, ErrOrgNotResolved
}

func parseUintField(raw string) uint {
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return uint(v)
}
