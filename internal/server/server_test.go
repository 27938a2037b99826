package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/densematrix/resumeforge/internal/catalog"
	"github.com/densematrix/resumeforge/internal/config"
	entitlementdomain "github.com/densematrix/resumeforge/internal/entitlement/domain"
	"github.com/densematrix/resumeforge/internal/generation"
	paymentdomain "github.com/densematrix/resumeforge/internal/payment/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type fakeEntitlement struct {
	decision    entitlementdomain.Decision
	evalErr     error
	consumeTier entitlementdomain.Tier
	consumeErr  error
	consumed    int
}

func (f *fakeEntitlement) Evaluate(ctx context.Context, deviceID string) (entitlementdomain.Decision, error) {
	return f.decision, f.evalErr
}

func (f *fakeEntitlement) Consume(ctx context.Context, deviceID string) (entitlementdomain.Tier, error) {
	f.consumed++
	return f.consumeTier, f.consumeErr
}

func (f *fakeEntitlement) Credit(ctx context.Context, deviceID string, amount int64) (int64, error) {
	return amount, nil
}

type fakePayment struct {
	checkoutResp paymentdomain.CreateCheckoutResponse
	checkoutErr  error
	webhookErr   error
	deliveries   int
}

func (f *fakePayment) CreateCheckout(ctx context.Context, req paymentdomain.CreateCheckoutRequest) (paymentdomain.CreateCheckoutResponse, error) {
	return f.checkoutResp, f.checkoutErr
}

func (f *fakePayment) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	f.deliveries++
	return f.webhookErr
}

type fakeGeneration struct {
	content string
	err     error
	calls   int
}

func (f *fakeGeneration) GenerateResume(ctx context.Context, req generation.ResumeRequest) (string, error) {
	f.calls++
	return f.content, f.err
}

func (f *fakeGeneration) GenerateCoverLetter(ctx context.Context, req generation.CoverLetterRequest) (string, error) {
	f.calls++
	return f.content, f.err
}

func newTestServer(t *testing.T, ent *fakeEntitlement, pay *fakePayment, gen *fakeGeneration) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cat, err := catalog.Load(config.Config{}, zap.NewNop())
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	s := &Server{
		engine:         engine,
		cfg:            config.Config{},
		log:            zap.NewNop(),
		catalog:        cat,
		entitlementSvc: ent,
		paymentSvc:     pay,
		generationSvc:  gen,
	}
	s.RegisterRoutes()
	return engine
}

func doJSON(engine *gin.Engine, method, path, body, deviceID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if deviceID != "" {
		req.Header.Set(headerDeviceID, deviceID)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestGenerateResume(t *testing.T) {
	ent := &fakeEntitlement{
		decision:    entitlementdomain.Decision{Eligible: true, Tier: entitlementdomain.TierPaid, TokensRemaining: 3},
		consumeTier: entitlementdomain.TierPaid,
	}
	gen := &fakeGeneration{content: "Led a team of five engineers."}
	engine := newTestServer(t, ent, &fakePayment{}, gen)

	rec := doJSON(engine, http.MethodPost, "/api/v1/resume/generate",
		`{"job_title": "Backend Engineer", "section": "experience"}`, "device-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp generateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Content != gen.content || resp.Source != "paid" || resp.TokensRemaining != 3 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if ent.consumed != 1 {
		t.Fatalf("expected one consume, got %d", ent.consumed)
	}
}

func TestGenerateResumeMissingDeviceHeader(t *testing.T) {
	engine := newTestServer(t, &fakeEntitlement{}, &fakePayment{}, &fakeGeneration{})

	rec := doJSON(engine, http.MethodPost, "/api/v1/resume/generate",
		`{"job_title": "Backend Engineer"}`, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGenerateResumeMissingJobTitle(t *testing.T) {
	gen := &fakeGeneration{content: "text"}
	engine := newTestServer(t, &fakeEntitlement{}, &fakePayment{}, gen)

	rec := doJSON(engine, http.MethodPost, "/api/v1/resume/generate", `{"section": "skills"}`, "device-1")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if gen.calls != 0 {
		t.Fatal("expected no generation call on invalid request")
	}
}

func TestGenerateResumeQuotaExhausted(t *testing.T) {
	ent := &fakeEntitlement{
		decision: entitlementdomain.Decision{Tier: entitlementdomain.TierExhausted, DailyUsed: 5, DailyLimit: 5},
	}
	gen := &fakeGeneration{content: "text"}
	engine := newTestServer(t, ent, &fakePayment{}, gen)

	rec := doJSON(engine, http.MethodPost, "/api/v1/resume/generate",
		`{"job_title": "Backend Engineer"}`, "device-1")
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", rec.Code)
	}
	if gen.calls != 0 {
		t.Fatal("expected no generation call when quota exhausted")
	}

	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error.Type != "quota_exhausted" {
		t.Fatalf("unexpected error payload: %+v", resp.Error)
	}
}

func TestGenerateResumeUpstreamFailureNotCharged(t *testing.T) {
	ent := &fakeEntitlement{
		decision: entitlementdomain.Decision{Eligible: true, Tier: entitlementdomain.TierFree, DailyLimit: 5},
	}
	gen := &fakeGeneration{err: generation.ErrUpstream}
	engine := newTestServer(t, ent, &fakePayment{}, gen)

	rec := doJSON(engine, http.MethodPost, "/api/v1/resume/generate",
		`{"job_title": "Backend Engineer"}`, "device-1")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if ent.consumed != 0 {
		t.Fatalf("expected no consume on upstream failure, got %d", ent.consumed)
	}
}

func TestGenerateResumeConsumeRaceServedUncharged(t *testing.T) {
	ent := &fakeEntitlement{
		decision:    entitlementdomain.Decision{Eligible: true, Tier: entitlementdomain.TierFree, DailyLimit: 5},
		consumeTier: entitlementdomain.TierExhausted,
		consumeErr:  entitlementdomain.ErrQuotaExhausted,
	}
	gen := &fakeGeneration{content: "text"}
	engine := newTestServer(t, ent, &fakePayment{}, gen)

	rec := doJSON(engine, http.MethodPost, "/api/v1/resume/generate",
		`{"job_title": "Backend Engineer"}`, "device-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp generateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Source != "free" || resp.Content != "text" {
		t.Fatalf("expected uncharged free-tier response, got %+v", resp)
	}
}

func TestGenerateCoverLetterRequiresCompany(t *testing.T) {
	engine := newTestServer(t, &fakeEntitlement{}, &fakePayment{}, &fakeGeneration{})

	rec := doJSON(engine, http.MethodPost, "/api/v1/resume/cover-letter",
		`{"job_title": "Backend Engineer"}`, "device-1")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestTokenStatus(t *testing.T) {
	ent := &fakeEntitlement{
		decision: entitlementdomain.Decision{
			Eligible:        true,
			Tier:            entitlementdomain.TierPaid,
			TokensRemaining: 12,
			DailyUsed:       2,
			DailyLimit:      5,
		},
	}
	engine := newTestServer(t, ent, &fakePayment{}, &fakeGeneration{})

	rec := doJSON(engine, http.MethodGet, "/api/v1/resume/tokens", "", "device-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp tokenStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TokensRemaining != 12 || resp.DailyUsed != 2 || resp.DailyLimit != 5 || !resp.CanGenerate {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestListProducts(t *testing.T) {
	engine := newTestServer(t, &fakeEntitlement{}, &fakePayment{}, &fakeGeneration{})

	rec := doJSON(engine, http.MethodGet, "/api/v1/payment/products", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var products []catalog.ListedProduct
	if err := json.Unmarshal(rec.Body.Bytes(), &products); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(products) != 3 {
		t.Fatalf("expected 3 products, got %d", len(products))
	}
}

func TestCreateCheckout(t *testing.T) {
	pay := &fakePayment{
		checkoutResp: paymentdomain.CreateCheckoutResponse{
			CheckoutURL: "https://checkout.example/co_1",
			SessionID:   "co_1",
		},
	}
	engine := newTestServer(t, &fakeEntitlement{}, pay, &fakeGeneration{})

	rec := doJSON(engine, http.MethodPost, "/api/v1/payment/create-checkout",
		`{"product_sku": "starter_30", "device_id": "device-1", "success_url": "https://app.example/done"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp paymentdomain.CreateCheckoutResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SessionID != "co_1" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	// success_url is mandatory.
	rec = doJSON(engine, http.MethodPost, "/api/v1/payment/create-checkout",
		`{"product_sku": "starter_30", "device_id": "device-1"}`, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without success_url, got %d", rec.Code)
	}
}

func TestHandleCreemWebhook(t *testing.T) {
	pay := &fakePayment{}
	engine := newTestServer(t, &fakeEntitlement{}, pay, &fakeGeneration{})

	rec := doJSON(engine, http.MethodPost, "/api/v1/payment/webhooks/creem", `{"eventType": "x"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if pay.deliveries != 1 {
		t.Fatalf("expected one delivery, got %d", pay.deliveries)
	}
	var ack map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &ack); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !ack["received"] {
		t.Fatalf("expected received ack, got %v", ack)
	}

	pay.webhookErr = paymentdomain.ErrInvalidSignature
	rec = doJSON(engine, http.MethodPost, "/api/v1/payment/webhooks/creem", `{"eventType": "x"}`, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad signature, got %d", rec.Code)
	}
}
