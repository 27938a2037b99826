package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/densematrix/resumeforge/internal/catalog"
	"github.com/densematrix/resumeforge/internal/config"
	entitlementdomain "github.com/densematrix/resumeforge/internal/entitlement/domain"
	obsmetrics "github.com/densematrix/resumeforge/internal/observability/metrics"
	"github.com/densematrix/resumeforge/internal/payment/creem"
	paymentdomain "github.com/densematrix/resumeforge/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Cfg     config.Config
	Catalog *catalog.Catalog
	Repo    entitlementdomain.Repository
	Metrics *obsmetrics.Metrics `optional:"true"`
}

// Service translates provider checkout events into exactly-once ledger
// credits, and opens checkout sessions.
type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	catalog       *catalog.Catalog
	repo          entitlementdomain.Repository
	metrics       *obsmetrics.Metrics
	client        *creem.Client
	webhookSecret string
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("payment.service"),
		catalog:       p.Catalog,
		repo:          p.Repo,
		metrics:       p.Metrics,
		client:        creem.NewClient(p.Cfg.CreemAPIKey),
		webhookSecret: strings.TrimSpace(p.Cfg.CreemWebhookSecret),
	}
}

func (s *Service) CreateCheckout(ctx context.Context, req paymentdomain.CreateCheckoutRequest) (paymentdomain.CreateCheckoutResponse, error) {
	product, ok := s.catalog.Get(req.ProductSKU)
	if !ok {
		return paymentdomain.CreateCheckoutResponse{}, paymentdomain.ErrInvalidProduct
	}
	providerID, ok := s.catalog.ProviderProductID(req.ProductSKU)
	if !ok {
		return paymentdomain.CreateCheckoutResponse{}, paymentdomain.ErrProductNotConfigured
	}
	if strings.TrimSpace(req.DeviceID) == "" {
		return paymentdomain.CreateCheckoutResponse{}, entitlementdomain.ErrInvalidDevice
	}

	metadata := map[string]string{
		"product_sku": product.SKU,
		"device_id":   strings.TrimSpace(req.DeviceID),
		"generations": strconv.FormatInt(product.Generations, 10),
	}
	resp, err := s.client.CreateCheckout(ctx, providerID, req.SuccessURL, req.Email, metadata)
	if err != nil {
		s.log.Warn("checkout creation failed", zap.String("product_sku", product.SKU), zap.Error(err))
		return paymentdomain.CreateCheckoutResponse{}, err
	}
	return resp, nil
}

func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.webhookSecret != "" {
		// No secret configured means permissive acceptance for dev setups.
		if strings.TrimSpace(signature) == "" || !creem.VerifySignature(payload, strings.TrimSpace(signature), s.webhookSecret) {
			return paymentdomain.ErrInvalidSignature
		}
	}

	event, err := creem.ParseEvent(payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			return nil
		}
		return err
	}

	credited, err := s.applyCheckoutCompleted(ctx, event)
	if err != nil {
		return err
	}
	if !credited {
		s.log.Info("duplicate checkout event skipped", zap.String("checkout_id", event.CheckoutID))
		return nil
	}

	if s.metrics != nil {
		s.metrics.RecordPayment(event.ProductSKU, event.AmountCents)
	}
	s.log.Info("checkout completed",
		zap.String("checkout_id", event.CheckoutID),
		zap.String("device_id", event.DeviceID),
		zap.String("product_sku", event.ProductSKU),
		zap.Int64("tokens_granted", event.Generations),
	)
	return nil
}

// applyCheckoutCompleted records the transaction and credits tokens in one DB
// transaction. The unique checkout_id insert is both the idempotency guard and
// the concurrency gate for duplicate deliveries racing each other.
func (s *Service) applyCheckoutCompleted(ctx context.Context, event *paymentdomain.CheckoutEvent) (bool, error) {
	credited := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		txn := &entitlementdomain.PaymentTransaction{
			CheckoutID:    event.CheckoutID,
			DeviceID:      event.DeviceID,
			ProductSKU:    event.ProductSKU,
			AmountCents:   event.AmountCents,
			Currency:      event.Currency,
			Status:        entitlementdomain.TransactionStatusCompleted,
			TokensGranted: event.Generations,
			CreatedAt:     now,
			CompletedAt:   &now,
		}
		inserted, err := s.repo.InsertTransaction(ctx, tx, txn)
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}

		if _, err := s.repo.GetOrCreate(ctx, tx, event.DeviceID); err != nil {
			return err
		}
		if _, err := s.repo.Credit(ctx, tx, event.DeviceID, event.Generations); err != nil {
			return err
		}
		credited = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return credited, nil
}
