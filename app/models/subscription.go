package models

import "time"

// Billing provider constants used across billing-related models.
const (
	BillingProviderStripe = "stripe"
)

const (
	SubscriptionPlanFree = "free"
	SubscriptionPlanPaid = "paid"
)

const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusCanceled = "canceled"
	SubscriptionStatusUnpaid   = "unpaid"
	SubscriptionStatusTrialing = "trialing"
	SubscriptionStatusPaused   = "paused"
)

// Subscription mirrors the provider-side subscription state for one
// organization. Exactly one row per org; it is created implicitly with
// plan=free, mutated only by the billing reconciler in response to verified
// webhook events, and never hard-deleted (cancellation keeps the row in
// plan=free/status=canceled so a later checkout restarts the cycle).
type Subscription struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	OrganizationID       uint       `gorm:"not null;uniqueIndex:ux_subscriptions_org" json:"organization_id"`
	StripeCustomerID     *string    `gorm:"type:varchar(191);default:null;index" json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID *string    `gorm:"type:varchar(191);default:null;index" json:"stripe_subscription_id,omitempty"`
	Plan                 string     `gorm:"type:varchar(20);not null;default:'free';index" json:"plan"`
	Status               string     `gorm:"type:varchar(32);not null;default:'active';index" json:"status"`
	CurrentPeriodStart   *time.Time `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool       `gorm:"default:false" json:"cancel_at_period_end"`
	DunningStage         int        `gorm:"not null;default:0" json:"dunning_stage"`
	LastPaymentAt        *time.Time `gorm:"type:timestamp;default:null" json:"last_payment_at,omitempty"`
	LastPaymentFailedAt  *time.Time `gorm:"type:timestamp;default:null" json:"last_payment_failed_at,omitempty"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsPaidActive reports whether the org is entitled to paid features.
// Every other combination, including past_due, resolves to the free tier.
func (s *Subscription) IsPaidActive() bool {
	return s.Plan == SubscriptionPlanPaid && s.Status == SubscriptionStatusActive
}
