package cache

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

const entitlementTTL = 10 * time.Minute

// EntitlementCache caches the serialized entitlements per organization so the
// feature gates do not hit the database on every request. The billing
// reconciler invalidates entries whenever a webhook mutates a subscription.
type EntitlementCache struct{}

func NewEntitlementCache() *EntitlementCache {
	return &EntitlementCache{}
}

func entitlementKey(orgID uint) string {
	return fmt.Sprintf("entitlements:org:%d", orgID)
}

func (e *EntitlementCache) GetJSON(orgID uint) (string, bool) {
	val, err := Get(entitlementKey(orgID))
	if err != nil {
		return "", false
	}
	return val, true
}

func (e *EntitlementCache) SetJSON(orgID uint, payload string) {
	if err := Set(entitlementKey(orgID), payload, entitlementTTL); err != nil {
		log.Warnf("[Cache] failed to store entitlements for org %d: %v", orgID, err)
	}
}

// Invalidate drops the cached entitlements for an organization.
func (e *EntitlementCache) Invalidate(orgID uint) {
	if err := Delete(entitlementKey(orgID)); err != nil {
		log.Warnf("[Cache] failed to invalidate entitlements for org %d: %v", orgID, err)
	}
}
