package domain

import (
	"context"
	"errors"
)

// CheckoutEvent is the canonical completed-checkout event parsed from a
// provider webhook. All fields are provider-supplied and untrusted.
type CheckoutEvent struct {
	CheckoutID  string
	DeviceID    string
	ProductSKU  string
	Generations int64
	AmountCents int64
	Currency    string
	RawPayload  []byte
}

type CreateCheckoutRequest struct {
	ProductSKU string `json:"product_sku"`
	DeviceID   string `json:"device_id"`
	SuccessURL string `json:"success_url"`
	Email      string `json:"optional_email,omitempty"`
}

type CreateCheckoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
	SessionID   string `json:"session_id"`
}

type Service interface {
	// CreateCheckout opens a provider-hosted checkout session for a product.
	CreateCheckout(ctx context.Context, req CreateCheckoutRequest) (CreateCheckoutResponse, error)
	// HandleWebhook verifies, parses and applies one inbound provider event.
	// Duplicate deliveries and uninteresting event types are acknowledged with nil.
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

var (
	ErrInvalidSignature     = errors.New("invalid_signature")
	ErrInvalidPayload       = errors.New("invalid_payload")
	ErrEventIgnored         = errors.New("event_ignored")
	ErrInvalidProduct       = errors.New("invalid_product")
	ErrProductNotConfigured = errors.New("product_not_configured")
	ErrProviderUnavailable  = errors.New("provider_unavailable")
)
