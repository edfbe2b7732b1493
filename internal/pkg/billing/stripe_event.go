package billing

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// StripeEvent is the decoded envelope of one webhook delivery. Object keeps
// the raw inner payload so each handler can decode only what it understands.
type StripeEvent struct {
	ID      string
	Type    string
	Created time.Time
	Object  json.RawMessage
}

func ParseStripeEvent(payload []byte) (*StripeEvent, error) {
	type rawEvent struct {
		ID      string `json:"id"`
		Type    string `json:"type"`
		Created int64  `json:"created"`
		Data    struct {
			Object json.RawMessage `json:"object"`
		} `json:"data"`
	}

	var raw rawEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw.ID) == "" {
		return nil, errors.New("stripe event payload missing id")
	}
	if strings.TrimSpace(raw.Type) == "" {
		return nil, errors.New("stripe event payload missing type")
	}

	ev := &StripeEvent{
		ID:     strings.TrimSpace(raw.ID),
		Type:   strings.TrimSpace(raw.Type),
		Object: raw.Data.Object,
	}
	if raw.Created > 0 {
		ev.Created = time.Unix(raw.Created, 0)
	}
	return ev, nil
}

// CheckoutSessionPayload carries the fields of a checkout.session.completed
// object that the reconciler and the sale notifier need.
type CheckoutSessionPayload struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

func ParseCheckoutSession(object json.RawMessage) (*CheckoutSessionPayload, error) {
	var p CheckoutSessionPayload
	if err := json.Unmarshal(object, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.ID) == "" {
		return nil, errors.New("checkout session payload missing id")
	}
	return &p, nil
}

// SubscriptionPayload carries the fields of a customer.subscription.* object.
// Newer API versions move the period bounds onto the subscription items, so
// both locations are read.
type SubscriptionPayload struct {
	ID                 string            `json:"id"`
	Customer           string            `json:"customer"`
	Status             string            `json:"status"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	Metadata           map[string]string `json:"metadata"`
	Items              struct {
		Data []struct {
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

func ParseSubscriptionObject(object json.RawMessage) (*SubscriptionPayload, error) {
	var p SubscriptionPayload
	if err := json.Unmarshal(object, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.ID) == "" {
		return nil, errors.New("subscription payload missing id")
	}
	return &p, nil
}

// PeriodBounds returns the current period boundaries, preferring the
// top-level fields and falling back to the first subscription item.
func (p *SubscriptionPayload) PeriodBounds() (*time.Time, *time.Time) {
	start, end := p.CurrentPeriodStart, p.CurrentPeriodEnd
	if start == 0 && end == 0 && len(p.Items.Data) > 0 {
		start = p.Items.Data[0].CurrentPeriodStart
		end = p.Items.Data[0].CurrentPeriodEnd
	}
	var startT, endT *time.Time
	if start > 0 {
		t := time.Unix(start, 0)
		startT = &t
	}
	if end > 0 {
		t := time.Unix(end, 0)
		endT = &t
	}
	return startT, endT
}

// InvoicePayload carries the fields of an invoice.* object.
type InvoicePayload struct {
	ID           string            `json:"id"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	AmountDue    int64             `json:"amount_due"`
	Currency     string            `json:"currency"`
	Metadata     map[string]string `json:"metadata"`
}

func ParseInvoiceObject(object json.RawMessage) (*InvoicePayload, error) {
	var p InvoicePayload
	if err := json.Unmarshal(object, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.ID) == "" {
		return nil, errors.New("invoice payload missing id")
	}
	return &p, nil
}
