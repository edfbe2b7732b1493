package billing

import (
	"context"
	"time"
)

// SaleNotification is the payload delivered to the configured downstream
// endpoint after a completed purchase. Currency is an ISO 4217 3-letter code.
type SaleNotification struct {
	OrgID                uint      `json:"org_id"`
	SiteID               uint      `json:"site_id"`
	StripeCustomerID     string    `json:"stripe_customer_id"`
	StripeSubscriptionID string    `json:"stripe_subscription_id"`
	Plan                 string    `json:"plan"`
	AmountCents          int64     `json:"amount_cents"`
	Currency             string    `json:"currency"`
	Timestamp            time.Time `json:"timestamp"`
	RequestID            string    `json:"request_id"`
	TraceID              string    `json:"trace_id"`
}

// SaleNotifier delivers sale notifications at-least-once with bounded
// retries. Implementations must never be treated as part of the durable
// pipeline: a returned error is logged and swallowed by the caller.
type SaleNotifier interface {
	NotifySale(ctx context.Context, sale *SaleNotification) error
}

// PlanCache invalidates cached entitlements when a subscription mutates.
type PlanCache interface {
	Invalidate(orgID uint)
}

// ProcessResult reports what one webhook delivery did. HandlerErr being
// non-nil still yields a success response to the provider; recovery for
// that class is manual replay, not provider retry.
type ProcessResult struct {
	EventRowID  uint
	Duplicate   bool
	Quarantined bool
	Ignored     bool
	Handled     bool
	HandlerErr  error
}
