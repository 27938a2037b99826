package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/densematrix/resumeforge/internal/clock"
	"github.com/densematrix/resumeforge/internal/config"
	"github.com/densematrix/resumeforge/internal/entitlement/domain"
	"github.com/densematrix/resumeforge/internal/entitlement/repository"
	"github.com/densematrix/resumeforge/internal/entitlement/service"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	schema := []string{
		`CREATE TABLE entitlements (
			id BIGINT PRIMARY KEY,
			device_id TEXT NOT NULL,
			tokens_remaining BIGINT NOT NULL DEFAULT 0,
			total_purchased BIGINT NOT NULL DEFAULT 0,
			free_trial_used BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_entitlements_device_id ON entitlements(device_id)`,
		`CREATE TABLE daily_usage (
			id BIGINT PRIMARY KEY,
			device_id TEXT NOT NULL,
			date TEXT NOT NULL,
			generations_used BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_daily_usage_device_date ON daily_usage(device_id, date)`,
		`CREATE TABLE payment_transactions (
			id BIGINT PRIMARY KEY,
			checkout_id TEXT NOT NULL,
			device_id TEXT NOT NULL,
			product_sku TEXT NOT NULL,
			amount_cents BIGINT NOT NULL,
			currency TEXT NOT NULL DEFAULT 'USD',
			status TEXT NOT NULL,
			tokens_granted BIGINT NOT NULL DEFAULT 0,
			metadata TEXT,
			created_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX ux_payment_transactions_checkout_id ON payment_transactions(checkout_id)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB, clk clock.Clock, freeLimit int) domain.Service {
	t.Helper()

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return service.NewService(service.Params{
		DB:    db,
		Log:   zap.NewNop(),
		Repo:  repository.New(node),
		Clock: clk,
		Cfg: config.Config{
			FreeDailyGenerations: freeLimit,
			FreeTierTimezone:     "UTC",
		},
	})
}

func TestEvaluateNewDeviceUsesFreeTier(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newTestService(t, db, clock.NewSystemClock(), 5)

	decision, err := svc.Evaluate(ctx, "device-new")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !decision.Eligible || decision.Tier != domain.TierFree {
		t.Fatalf("expected (true, free), got (%v, %s)", decision.Eligible, decision.Tier)
	}
	if decision.DailyUsed != 0 || decision.DailyLimit != 5 {
		t.Fatalf("expected usage 0/5, got %d/%d", decision.DailyUsed, decision.DailyLimit)
	}
}

func TestEvaluatePrefersPaidOverFree(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newTestService(t, db, clock.NewSystemClock(), 5)

	if _, err := svc.Credit(ctx, "device-paid", 3); err != nil {
		t.Fatalf("credit: %v", err)
	}

	decision, err := svc.Evaluate(ctx, "device-paid")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if decision.Tier != domain.TierPaid {
		t.Fatalf("expected paid tier with balance and free quota both available, got %s", decision.Tier)
	}

	// Consumption draws from the paid pool first, preserving free quota.
	tier, err := svc.Consume(ctx, "device-paid")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if tier != domain.TierPaid {
		t.Fatalf("expected paid consumption, got %s", tier)
	}
	after, err := svc.Evaluate(ctx, "device-paid")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if after.TokensRemaining != 2 || after.DailyUsed != 0 {
		t.Fatalf("expected balance 2 and untouched free quota, got balance %d used %d",
			after.TokensRemaining, after.DailyUsed)
	}
}

func TestConsumeArithmetic(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newTestService(t, db, clock.NewSystemClock(), 0)

	if _, err := svc.Credit(ctx, "device-a", 4); err != nil {
		t.Fatalf("credit: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := svc.Consume(ctx, "device-a"); err != nil {
			t.Fatalf("consume %d: %v", i, err)
		}
	}

	decision, err := svc.Evaluate(ctx, "device-a")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if decision.TokensRemaining != 1 {
		t.Fatalf("expected balance 1, got %d", decision.TokensRemaining)
	}
}

func TestConsumeExhaustedMutatesNothing(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newTestService(t, db, clock.NewSystemClock(), 0)

	tier, err := svc.Consume(ctx, "device-b")
	if !errors.Is(err, domain.ErrQuotaExhausted) {
		t.Fatalf("expected quota exhausted, got tier=%s err=%v", tier, err)
	}

	var balance int64
	if err := db.Raw("SELECT tokens_remaining FROM entitlements WHERE device_id = ?", "device-b").Scan(&balance).Error; err != nil {
		t.Fatalf("scan balance: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected balance 0, got %d", balance)
	}
	var usageRows int64
	if err := db.Raw("SELECT COUNT(1) FROM daily_usage WHERE device_id = ?", "device-b").Scan(&usageRows).Error; err != nil {
		t.Fatalf("scan usage: %v", err)
	}
	if usageRows != 0 {
		t.Fatalf("expected no usage rows, got %d", usageRows)
	}
}

func TestCreditIsAdditiveAndCommutative(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newTestService(t, db, clock.NewSystemClock(), 5)

	if _, err := svc.Credit(ctx, "device-x", 30); err != nil {
		t.Fatalf("credit: %v", err)
	}
	balanceX, err := svc.Credit(ctx, "device-x", 70)
	if err != nil {
		t.Fatalf("credit: %v", err)
	}

	if _, err := svc.Credit(ctx, "device-y", 70); err != nil {
		t.Fatalf("credit: %v", err)
	}
	balanceY, err := svc.Credit(ctx, "device-y", 30)
	if err != nil {
		t.Fatalf("credit: %v", err)
	}

	if balanceX != 100 || balanceY != 100 {
		t.Fatalf("expected both balances 100, got %d and %d", balanceX, balanceY)
	}

	var totalPurchased int64
	if err := db.Raw("SELECT total_purchased FROM entitlements WHERE device_id = ?", "device-x").Scan(&totalPurchased).Error; err != nil {
		t.Fatalf("scan total_purchased: %v", err)
	}
	if totalPurchased != 100 {
		t.Fatalf("expected total_purchased 100, got %d", totalPurchased)
	}
}

func TestCreditRejectsNonPositiveAmounts(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newTestService(t, db, clock.NewSystemClock(), 5)

	if _, err := svc.Credit(ctx, "device-z", 0); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount for 0, got %v", err)
	}
	if _, err := svc.Credit(ctx, "device-z", -5); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount for -5, got %v", err)
	}
}

func TestConcurrentConsumeNeverOverdraws(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newTestService(t, db, clock.NewSystemClock(), 0)

	if _, err := svc.Credit(ctx, "device-c", 10); err != nil {
		t.Fatalf("credit: %v", err)
	}

	const callers = 20
	results := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Consume(ctx, "device-c")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, exhausted int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, domain.ErrQuotaExhausted):
			exhausted++
		default:
			t.Fatalf("unexpected consume error: %v", err)
		}
	}
	if successes != 10 || exhausted != 10 {
		t.Fatalf("expected 10 successes and 10 exhausted, got %d and %d", successes, exhausted)
	}

	decision, err := svc.Evaluate(ctx, "device-c")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if decision.TokensRemaining != 0 {
		t.Fatalf("expected final balance 0, got %d", decision.TokensRemaining)
	}
}

func TestConcurrentFreeTierNeverExceedsLimit(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newTestService(t, db, clock.NewSystemClock(), 5)

	const callers = 12
	results := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Consume(ctx, "device-f")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes int
	for err := range results {
		if err == nil {
			successes++
		} else if !errors.Is(err, domain.ErrQuotaExhausted) {
			t.Fatalf("unexpected consume error: %v", err)
		}
	}
	if successes != 5 {
		t.Fatalf("expected exactly 5 free units drawn, got %d", successes)
	}

	var used int64
	if err := db.Raw("SELECT generations_used FROM daily_usage WHERE device_id = ?", "device-f").Scan(&used).Error; err != nil {
		t.Fatalf("scan usage: %v", err)
	}
	if used != 5 {
		t.Fatalf("expected counter 5, got %d", used)
	}
}

func TestFreeQuotaResetsOnNewDay(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, clk, 2)

	for i := 0; i < 2; i++ {
		if _, err := svc.Consume(ctx, "device-d"); err != nil {
			t.Fatalf("consume %d: %v", i, err)
		}
	}
	if _, err := svc.Consume(ctx, "device-d"); !errors.Is(err, domain.ErrQuotaExhausted) {
		t.Fatalf("expected exhausted at limit, got %v", err)
	}

	clk.Advance(24 * time.Hour)

	decision, err := svc.Evaluate(ctx, "device-d")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !decision.Eligible || decision.Tier != domain.TierFree || decision.DailyUsed != 0 {
		t.Fatalf("expected fresh free quota after rollover, got %+v", decision)
	}
}

func TestEndToEndFreeThenPurchase(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newTestService(t, db, clock.NewSystemClock(), 5)
	device := "device-e2e"

	decision, err := svc.Evaluate(ctx, device)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !decision.Eligible || decision.Tier != domain.TierFree || decision.DailyUsed != 0 {
		t.Fatalf("expected (true, free) 0/5, got %+v", decision)
	}

	for i := 0; i < 5; i++ {
		tier, err := svc.Consume(ctx, device)
		if err != nil {
			t.Fatalf("consume %d: %v", i, err)
		}
		if tier != domain.TierFree {
			t.Fatalf("consume %d: expected free tier, got %s", i, tier)
		}
	}

	decision, err = svc.Evaluate(ctx, device)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if decision.Eligible || decision.Tier != domain.TierExhausted {
		t.Fatalf("expected (false, exhausted), got %+v", decision)
	}

	balance, err := svc.Credit(ctx, device, 30)
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if balance != 30 {
		t.Fatalf("expected balance 30, got %d", balance)
	}

	decision, err = svc.Evaluate(ctx, device)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !decision.Eligible || decision.Tier != domain.TierPaid || decision.TokensRemaining != 30 {
		t.Fatalf("expected (true, paid) balance 30, got %+v", decision)
	}
}
