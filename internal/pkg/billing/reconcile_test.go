package billing

import (
	"testing"
	"time"

	"github.com/sitesmith/sitesmith/app/models"
)

func TestCheckoutCompletedUpdates(t *testing.T) {
	now := time.Now()
	p := &CheckoutSessionPayload{ID: "cs_1", Customer: "cus_1", Subscription: "sub_1"}

	updates := checkoutCompletedUpdates(p, now)
	if updates["plan"] != models.SubscriptionPlanPaid {
		t.Errorf("plan = %v", updates["plan"])
	}
	if updates["status"] != models.SubscriptionStatusActive {
		t.Errorf("status = %v", updates["status"])
	}
	if updates["dunning_stage"] != 0 {
		t.Errorf("dunning_stage = %v", updates["dunning_stage"])
	}
	if updates["last_payment_at"] != now {
		t.Errorf("last_payment_at = %v", updates["last_payment_at"])
	}
	if updates["stripe_customer_id"] != "cus_1" || updates["stripe_subscription_id"] != "sub_1" {
		t.Errorf("ids = %v/%v", updates["stripe_customer_id"], updates["stripe_subscription_id"])
	}
}

func TestCheckoutCompletedUpdatesOmitsBlankIDs(t *testing.T) {
	updates := checkoutCompletedUpdates(&CheckoutSessionPayload{ID: "cs_1"}, time.Now())
	if _, ok := updates["stripe_customer_id"]; ok {
		t.Error("blank customer id must not overwrite the stored one")
	}
	if _, ok := updates["stripe_subscription_id"]; ok {
		t.Error("blank subscription id must not overwrite the stored one")
	}
}

func TestSubscriptionUpdatedUpdatesCopiesStateVerbatim(t *testing.T) {
	p := &SubscriptionPayload{
		ID:                 "sub_1",
		Status:             " Past_Due ",
		CancelAtPeriodEnd:  true,
		CurrentPeriodStart: 1700000000,
		CurrentPeriodEnd:   1702592000,
	}

	updates := subscriptionUpdatedUpdates(p)
	if updates["status"] != "past_due" {
		t.Errorf("status = %v", updates["status"])
	}
	if updates["cancel_at_period_end"] != true {
		t.Errorf("cancel_at_period_end = %v", updates["cancel_at_period_end"])
	}
	start := updates["current_period_start"].(*time.Time)
	end := updates["current_period_end"].(*time.Time)
	if start == nil || !start.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("period start = %v", start)
	}
	if end == nil || !end.Equal(time.Unix(1702592000, 0)) {
		t.Errorf("period end = %v", end)
	}
}

func TestSubscriptionDeletedUpdates(t *testing.T) {
	updates := subscriptionDeletedUpdates()
	if updates["plan"] != models.SubscriptionPlanFree {
		t.Errorf("plan = %v", updates["plan"])
	}
	if updates["status"] != models.SubscriptionStatusCanceled {
		t.Errorf("status = %v", updates["status"])
	}
	if updates["stripe_subscription_id"] != nil {
		t.Errorf("stripe_subscription_id = %v", updates["stripe_subscription_id"])
	}
}

func TestPaymentFailedUpdatesLeavesPlanUntouched(t *testing.T) {
	now := time.Now()
	updates := paymentFailedUpdates(now)
	if updates["status"] != models.SubscriptionStatusPastDue {
		t.Errorf("status = %v", updates["status"])
	}
	if updates["last_payment_failed_at"] != now {
		t.Errorf("last_payment_failed_at = %v", updates["last_payment_failed_at"])
	}
	if _, ok := updates["plan"]; ok {
		t.Error("payment failure must not change the plan")
	}
}

func TestActionForEventType(t *testing.T) {
	tests := []struct {
		eventType string
		want      string
	}{
		{"checkout.session.completed", "billing.payment_succeeded"},
		{"customer.subscription.updated", "billing.subscription_updated"},
		{"customer.subscription.deleted", "billing.subscription_canceled"},
		{"invoice.payment_failed", "billing.payment_failed"},
		{"invoice.paid", "billing.invoice_paid"},
		{"something.unknown", "billing.webhook"},
	}
	for _, tt := range tests {
		if got := actionForEventType(tt.eventType); got != tt.want {
			t.Errorf("actionForEventType(%q) = %q, want %q", tt.eventType, got, tt.want)
		}
	}
}

func TestParseUintField(t *testing.T) {
	tests := []struct {
		raw  string
		want uint
	}{
		{"42", 42},
		{" 42 ", 42},
		{"", 0},
		{"abc", 0},
		{"-1", 0},
	}
	for _, tt := range tests {
		if got := parseUintField(tt.raw); got != tt.want {
			t.Errorf("parseUintField(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}
