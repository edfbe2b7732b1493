package billing

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseStripeEvent(t *testing.T) {
	payload := []byte(`{
		"id": "evt_123",
		"type": "checkout.session.completed",
		"created": 1700000000,
		"data": {"object": {"id": "cs_1", "customer": "cus_1"}}
	}`)

	ev, err := ParseStripeEvent(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.ID != "evt_123" {
		t.Errorf("id = %q", ev.ID)
	}
	if ev.Type != "checkout.session.completed" {
		t.Errorf("type = %q", ev.Type)
	}
	if !ev.Created.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("created = %v", ev.Created)
	}
	if len(ev.Object) == 0 {
		t.Error("inner object missing")
	}
}

func TestParseStripeEventRejectsIncompleteEnvelopes(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `{"id": "evt_1",`},
		{"missing id", `{"type": "invoice.paid"}`},
		{"blank id", `{"id": "  ", "type": "invoice.paid"}`},
		{"missing type", `{"id": "evt_1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseStripeEvent([]byte(tt.payload)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestParseCheckoutSession(t *testing.T) {
	object := json.RawMessage(`{
		"id": "cs_1",
		"customer": "cus_9",
		"subscription": "sub_9",
		"amount_total": 4900,
		"currency": "usd",
		"client_reference_id": "42",
		"metadata": {"org_id": "42", "site_id": "7"}
	}`)

	p, err := ParseCheckoutSession(object)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Customer != "cus_9" || p.Subscription != "sub_9" {
		t.Errorf("ids = %q/%q", p.Customer, p.Subscription)
	}
	if p.AmountTotal != 4900 || p.Currency != "usd" {
		t.Errorf("amount = %d %q", p.AmountTotal, p.Currency)
	}
	if p.Metadata["org_id"] != "42" {
		t.Errorf("metadata = %v", p.Metadata)
	}

	if _, err := ParseCheckoutSession(json.RawMessage(`{"customer":"cus_1"}`)); err == nil {
		t.Error("object without id must be rejected")
	}
}

func TestSubscriptionPeriodBounds(t *testing.T) {
	topLevel := &SubscriptionPayload{CurrentPeriodStart: 1700000000, CurrentPeriodEnd: 1702592000}
	start, end := topLevel.PeriodBounds()
	if start == nil || end == nil {
		t.Fatal("top-level bounds missing")
	}
	if !start.Equal(time.Unix(1700000000, 0)) || !end.Equal(time.Unix(1702592000, 0)) {
		t.Errorf("bounds = %v..%v", start, end)
	}

	// Newer API versions carry the bounds on the first subscription item.
	var itemLevel SubscriptionPayload
	if err := json.Unmarshal([]byte(`{
		"id": "sub_1",
		"items": {"data": [{"current_period_start": 1700000000, "current_period_end": 1702592000}]}
	}`), &itemLevel); err != nil {
		t.Fatal(err)
	}
	start, end = itemLevel.PeriodBounds()
	if start == nil || !start.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("item-level start = %v", start)
	}
	if end == nil || !end.Equal(time.Unix(1702592000, 0)) {
		t.Errorf("item-level end = %v", end)
	}

	var empty SubscriptionPayload
	start, end = empty.PeriodBounds()
	if start != nil || end != nil {
		t.Errorf("empty payload must yield nil bounds, got %v..%v", start, end)
	}
}
