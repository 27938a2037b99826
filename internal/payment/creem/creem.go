// Package creem implements the Creem payment-provider integration: the
// checkout API client and the webhook signature/parse adapter.
package creem

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	paymentdomain "github.com/densematrix/resumeforge/internal/payment/domain"
)

const (
	productionAPIBase = "https://api.creem.io/v1"
	testAPIBase       = "https://test-api.creem.io/v1"

	eventTypeCheckoutCompleted = "checkout.completed"
)

// Client calls the Creem checkout API.
type Client struct {
	apiKey string
	base   string
	http   *http.Client
}

func NewClient(apiKey string) *Client {
	base := productionAPIBase
	if strings.HasPrefix(apiKey, "creem_test_") {
		base = testAPIBase
	}
	return &Client{
		apiKey: apiKey,
		base:   base,
		http:   &http.Client{Timeout: 30 * time.Second},
	}
}

type checkoutRequest struct {
	ProductID  string            `json:"product_id"`
	SuccessURL string            `json:"success_url"`
	Metadata   map[string]string `json:"metadata"`
	Customer   *checkoutCustomer `json:"customer,omitempty"`
}

type checkoutCustomer struct {
	Email string `json:"email"`
}

type checkoutResponse struct {
	ID          string `json:"id"`
	CheckoutURL string `json:"checkout_url"`
}

// CreateCheckout opens a hosted checkout session. Metadata carries the device
// and product identity back through the completed-checkout webhook.
func (c *Client) CreateCheckout(ctx context.Context, productID, successURL, email string, metadata map[string]string) (paymentdomain.CreateCheckoutResponse, error) {
	body := checkoutRequest{
		ProductID:  productID,
		SuccessURL: successURL,
		Metadata:   metadata,
	}
	if strings.TrimSpace(email) != "" {
		body.Customer = &checkoutCustomer{Email: strings.TrimSpace(email)}
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return paymentdomain.CreateCheckoutResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/checkouts", bytes.NewReader(raw))
	if err != nil {
		return paymentdomain.CreateCheckoutResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return paymentdomain.CreateCheckoutResponse{}, fmt.Errorf("%w: %v", paymentdomain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return paymentdomain.CreateCheckoutResponse{}, fmt.Errorf("%w: status %d: %s",
			paymentdomain.ErrProviderUnavailable, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var out checkoutResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return paymentdomain.CreateCheckoutResponse{}, fmt.Errorf("%w: %v", paymentdomain.ErrProviderUnavailable, err)
	}
	return paymentdomain.CreateCheckoutResponse{
		CheckoutURL: out.CheckoutURL,
		SessionID:   out.ID,
	}, nil
}

// VerifySignature checks the HMAC-SHA256 hex signature over the raw body.
func VerifySignature(payload []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

type webhookEvent struct {
	EventType string        `json:"eventType"`
	Object    webhookObject `json:"object"`
}

type webhookObject struct {
	ID       string            `json:"id"`
	Metadata map[string]string `json:"metadata"`
	Order    webhookOrder      `json:"order"`
}

type webhookOrder struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// ParseEvent extracts the canonical checkout event from a webhook payload.
// Event types other than checkout.completed return ErrEventIgnored.
func ParseEvent(payload []byte) (*paymentdomain.CheckoutEvent, error) {
	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.EventType) != eventTypeCheckoutCompleted {
		return nil, paymentdomain.ErrEventIgnored
	}

	checkoutID := strings.TrimSpace(event.Object.ID)
	deviceID := strings.TrimSpace(event.Object.Metadata["device_id"])
	if checkoutID == "" || deviceID == "" {
		return nil, paymentdomain.ErrInvalidPayload
	}

	// Absent or malformed generation counts fall back to a single token.
	generations := int64(1)
	if raw, ok := event.Object.Metadata["generations"]; ok {
		if parsed, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err == nil && parsed > 0 {
			generations = parsed
		}
	}

	currency := strings.ToUpper(strings.TrimSpace(event.Object.Order.Currency))
	if currency == "" {
		currency = "USD"
	}

	return &paymentdomain.CheckoutEvent{
		CheckoutID:  checkoutID,
		DeviceID:    deviceID,
		ProductSKU:  strings.TrimSpace(event.Object.Metadata["product_sku"]),
		Generations: generations,
		AmountCents: event.Object.Order.Amount,
		Currency:    currency,
		RawPayload:  payload,
	}, nil
}
