package controllers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sitesmith/sitesmith/app/models"
	"github.com/sitesmith/sitesmith/internal/pkg/billing"
)

const webhookTestSecret = "whsec_controller_test"

// stubRepo is the minimal in-memory billing.Repository the webhook routes
// touch.
type stubRepo struct {
	nextID     uint
	events     map[string]*models.WebhookEvent
	subs       map[uint]*models.Subscription
	failCreate bool
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		events: make(map[string]*models.WebhookEvent),
		subs:   make(map[uint]*models.Subscription),
	}
}

func (r *stubRepo) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	if r.failCreate {
		return false, nil, errors.New("database gone")
	}
	key := event.Provider + "|" + event.EventID
	if stored, ok := r.events[key]; ok {
		clone := *stored
		return false, &clone, nil
	}
	r.nextID++
	clone := *event
	clone.ID = r.nextID
	r.events[key] = &clone
	stored := clone
	return true, &stored, nil
}

func (r *stubRepo) MarkWebhookEvent(id uint, status, errorMessage string) error {
	for _, ev := range r.events {
		if ev.ID == id {
			ev.Status = status
			ev.ErrorMessage = errorMessage
		}
	}
	return nil
}

func (r *stubRepo) GetWebhookEventByID(id uint) (*models.WebhookEvent, error) {
	for _, ev := range r.events {
		if ev.ID == id {
			clone := *ev
			return &clone, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubRepo) IncrementWebhookAttempts(id uint) error { return nil }

func (r *stubRepo) ListPurgeableWebhookEvents(before time.Time, limit int) ([]models.WebhookEvent, error) {
	return nil, nil
}

func (r *stubRepo) DeleteWebhookEvents(ids []uint) error { return nil }

func (r *stubRepo) GetOrCreateSubscription(orgID uint) (*models.Subscription, error) {
	if sub, ok := r.subs[orgID]; ok {
		clone := *sub
		return &clone, nil
	}
	sub := &models.Subscription{OrganizationID: orgID, Plan: models.SubscriptionPlanFree, Status: models.SubscriptionStatusActive}
	r.subs[orgID] = sub
	clone := *sub
	return &clone, nil
}

func (r *stubRepo) GetSubscriptionByOrg(orgID uint) (*models.Subscription, error) {
	if sub, ok := r.subs[orgID]; ok {
		clone := *sub
		return &clone, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubRepo) FindOrgIDByStripeCustomer(customerID string) (uint, error) {
	return 0, gorm.ErrRecordNotFound
}

func (r *stubRepo) UpdateSubscriptionByOrg(orgID uint, updates map[string]interface{}) error {
	if sub, ok := r.subs[orgID]; ok {
		if plan, ok := updates["plan"].(string); ok {
			sub.Plan = plan
		}
		if status, ok := updates["status"].(string); ok {
			sub.Status = status
		}
	}
	return nil
}

func (r *stubRepo) DowngradeSitesToFree(orgID uint) (int64, error) { return 0, nil }

type noopAudit struct{}

func (noopAudit) Record(ctx context.Context, orgID uint, action, targetType, targetID, requestID string, metadata map[string]interface{}) {
}

func newWebhookTestApp(repo billing.Repository) *fiber.App {
	svc := billing.NewService(repo, noopAudit{}, nil, nil)
	wc := NewWebhookController(svc, webhookTestSecret)

	app := fiber.New()
	app.Post("/webhooks/stripe", wc.HandleStripeWebhook)
	return app
}

func signWebhookBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(webhookTestSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(t *testing.T, app *fiber.App, body []byte, signature string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(StripeSignatureHeader, signature)
	}

	resp, err := app.Test(req, 5000)
	require.NoError(t, err)

	var decoded map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func webhookEventBody(t *testing.T, id, eventType string, object map[string]interface{}) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"id":      id,
		"type":    eventType,
		"created": time.Now().Unix(),
		"data":    map[string]interface{}{"object": object},
	})
	require.NoError(t, err)
	return body
}

func TestHandleStripeWebhookRejectsBadSignature(t *testing.T) {
	app := newWebhookTestApp(newStubRepo())
	body := webhookEventBody(t, "evt_1", "invoice.paid", map[string]interface{}{"id": "in_1"})

	resp, decoded := postWebhook(t, app, body, "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_signature", decoded["error"])

	resp, decoded = postWebhook(t, app, body, "deadbeef")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_signature", decoded["error"])
}

func TestHandleStripeWebhookRejectsUnparsableBody(t *testing.T) {
	app := newWebhookTestApp(newStubRepo())
	body := []byte(`{"id": "evt_1", "type":`)

	// Correctly signed garbage is a 400, never a 401.
	resp, decoded := postWebhook(t, app, body, signWebhookBody(body))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_payload", decoded["error"])
}

func TestHandleStripeWebhookProcessesCheckout(t *testing.T) {
	repo := newStubRepo()
	app := newWebhookTestApp(repo)
	body := webhookEventBody(t, "evt_ok", "checkout.session.completed", map[string]interface{}{
		"id":           "cs_1",
		"customer":     "cus_1",
		"amount_total": 4900,
		"currency":     "usd",
		"metadata":     map[string]string{"org_id": "42"},
	})

	resp, decoded := postWebhook(t, app, body, signWebhookBody(body))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "processed", decoded["status"])
	assert.Equal(t, "evt_ok", decoded["event_id"])

	sub, err := repo.GetSubscriptionByOrg(42)
	require.NoError(t, err)
	assert.True(t, sub.IsPaidActive())
}

func TestHandleStripeWebhookAcknowledgesDuplicates(t *testing.T) {
	app := newWebhookTestApp(newStubRepo())
	body := webhookEventBody(t, "evt_dup", "invoice.paid", map[string]interface{}{"id": "in_1"})
	sig := signWebhookBody(body)

	resp, _ := postWebhook(t, app, body, sig)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, decoded := postWebhook(t, app, body, sig)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "duplicate", decoded["status"])
}

func TestHandleStripeWebhookAcknowledgesHandlerFailure(t *testing.T) {
	app := newWebhookTestApp(newStubRepo())
	// Inner object without an id makes the handler fail after persistence.
	body := webhookEventBody(t, "evt_fail", "checkout.session.completed", map[string]interface{}{
		"customer": "cus_1",
	})

	resp, decoded := postWebhook(t, app, body, signWebhookBody(body))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "failed", decoded["status"])
}

func TestHandleStripeWebhookUnknownTypeIsIgnored(t *testing.T) {
	app := newWebhookTestApp(newStubRepo())
	body := webhookEventBody(t, "evt_unknown", "customer.created", map[string]interface{}{"id": "cus_1"})

	resp, decoded := postWebhook(t, app, body, signWebhookBody(body))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "ignored", decoded["status"])
}

func TestHandleStripeWebhookPersistFailureIsServerError(t *testing.T) {
	repo := newStubRepo()
	repo.failCreate = true
	app := newWebhookTestApp(repo)
	body := webhookEventBody(t, "evt_db", "invoice.paid", map[string]interface{}{"id": "in_1"})

	resp, decoded := postWebhook(t, app, body, signWebhookBody(body))
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "webhook_persist_failed", decoded["error"])
}
