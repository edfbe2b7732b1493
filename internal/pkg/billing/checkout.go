package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v83"

	"github.com/sitesmith/sitesmith/app/models"
	"github.com/sitesmith/sitesmith/internal/pkg/env"
)

// StripeCheckout creates hosted Checkout and Billing Portal sessions. The
// client is constructed explicitly and injected where needed; there is no
// process-wide Stripe singleton.
type StripeCheckout struct {
	client  *stripe.Client
	priceID string
}

func NewStripeCheckoutFromEnv() (*StripeCheckout, error) {
	apiKey := strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", ""))
	if apiKey == "" {
		return nil, errors.New("STRIPE_SECRET_KEY is not configured")
	}
	priceID := strings.TrimSpace(env.GetEnv("STRIPE_PRICE_PAID", ""))
	if priceID == "" {
		return nil, errors.New("STRIPE_PRICE_PAID is not configured")
	}
	return &StripeCheckout{
		client:  stripe.NewClient(apiKey),
		priceID: priceID,
	}, nil
}

// CheckoutURL creates a subscription Checkout Session for the paid plan.
// Org and site identifiers are injected into the session and subscription
// metadata so the webhook pipeline can resolve the org later.
func (c *StripeCheckout) CheckoutURL(ctx context.Context, sub *models.Subscription, siteID uint, successURL, cancelURL string) (string, error) {
	orgRef := strconv.FormatUint(uint64(sub.OrganizationID), 10)

	params := &stripe.CheckoutSessionCreateParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(c.priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
	}
	params.Metadata = map[string]string{
		"org_id": orgRef,
	}
	if siteID != 0 {
		params.Metadata["site_id"] = strconv.FormatUint(uint64(siteID), 10)
	}
	params.SubscriptionData = &stripe.CheckoutSessionCreateSubscriptionDataParams{}
	params.SubscriptionData.AddMetadata("org_id", orgRef)

	// Attach the existing customer if one is known to avoid duplicates.
	if sub.StripeCustomerID != nil && *sub.StripeCustomerID != "" {
		params.Customer = stripe.String(*sub.StripeCustomerID)
	} else {
		params.ClientReferenceID = stripe.String(orgRef)
		params.CustomerCreation = stripe.String("always")
	}

	session, err := c.client.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}
	return session.URL, nil
}

// PortalURL creates a Billing Portal session for subscription self-service.
func (c *StripeCheckout) PortalURL(ctx context.Context, customerID, returnURL string) (string, error) {
	if strings.TrimSpace(customerID) == "" {
		return "", errors.New("stripe customer id is required for the billing portal")
	}

	params := &stripe.BillingPortalSessionCreateParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	session, err := c.client.V1BillingPortalSessions.Create(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to create portal session: %w", err)
	}
	return session.URL, nil
}
