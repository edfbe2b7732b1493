package entitlements

import (
	"strings"

	"github.com/sitesmith/sitesmith/app/models"
)

type Plan string

const (
	PlanFree Plan = "free"
	PlanPaid Plan = "paid"
)

// Entitlements are the derived limits consumed by feature gates.
type Entitlements struct {
	Plan                  string `json:"plan"`
	MaxSites              int    `json:"max_sites"`
	MaxPagesPerSite       int    `json:"max_pages_per_site"`
	AIGenerationsPerMonth int    `json:"ai_generations_per_month"`
	CustomDomain          bool   `json:"custom_domain"`
	RemoveBranding        bool   `json:"remove_branding"`
}

// ForPlan returns the feature limits for a plan.
func ForPlan(plan Plan) Entitlements {
	switch plan {
	case PlanPaid:
		return Entitlements{
			Plan:                  string(PlanPaid),
			MaxSites:              10,
			MaxPagesPerSite:       50,
			AIGenerationsPerMonth: 500,
			CustomDomain:          true,
			RemoveBranding:        true,
		}
	default:
		return Entitlements{
			Plan:                  string(PlanFree),
			MaxSites:              1,
			MaxPagesPerSite:       5,
			AIGenerationsPerMonth: 20,
			CustomDomain:          false,
			RemoveBranding:        false,
		}
	}
}

// ForSubscription computes the effective entitlements for a subscription row.
// An org gets paid entitlements iff plan=paid AND status=active; every other
// combination, including past_due during the dunning grace window, resolves
// to the free tier.
func ForSubscription(sub *models.Subscription) Entitlements {
	if sub != nil && sub.IsPaidActive() {
		return ForPlan(PlanPaid)
	}
	return ForPlan(PlanFree)
}

// NormalizePlan maps arbitrary input onto a known plan.
func NormalizePlan(plan string) Plan {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case string(PlanPaid):
		return PlanPaid
	default:
		return PlanFree
	}
}
