package entitlements

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sitesmith/sitesmith/app/models"
)

func TestForPlan(t *testing.T) {
	paid := ForPlan(PlanPaid)
	assert.Equal(t, "paid", paid.Plan)
	assert.Equal(t, 10, paid.MaxSites)
	assert.True(t, paid.CustomDomain)
	assert.True(t, paid.RemoveBranding)

	free := ForPlan(PlanFree)
	assert.Equal(t, "free", free.Plan)
	assert.Equal(t, 1, free.MaxSites)
	assert.False(t, free.CustomDomain)

	// Unknown plans fall back to free.
	assert.Equal(t, free, ForPlan(Plan("enterprise")))
}

func TestForSubscription(t *testing.T) {
	tests := []struct {
		name     string
		sub      *models.Subscription
		wantPlan string
	}{
		{"nil subscription", nil, "free"},
		{"paid active", &models.Subscription{Plan: models.SubscriptionPlanPaid, Status: models.SubscriptionStatusActive}, "paid"},
		{"paid past_due", &models.Subscription{Plan: models.SubscriptionPlanPaid, Status: models.SubscriptionStatusPastDue}, "free"},
		{"paid canceled", &models.Subscription{Plan: models.SubscriptionPlanPaid, Status: models.SubscriptionStatusCanceled}, "free"},
		{"free active", &models.Subscription{Plan: models.SubscriptionPlanFree, Status: models.SubscriptionStatusActive}, "free"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantPlan, ForSubscription(tt.sub).Plan)
		})
	}
}

func TestNormalizePlan(t *testing.T) {
	assert.Equal(t, PlanPaid, NormalizePlan(" PAID "))
	assert.Equal(t, PlanFree, NormalizePlan("free"))
	assert.Equal(t, PlanFree, NormalizePlan(""))
	assert.Equal(t, PlanFree, NormalizePlan("premium"))
}
