package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Repository is the durable store for entitlements, daily counters and
// transaction records. Methods accept the db handle so callers can run them
// inside an outer transaction.
type Repository interface {
	// GetOrCreate returns the device's entitlement, lazily inserting a
	// zero-balance row. Safe under concurrent first-time creation.
	GetOrCreate(ctx context.Context, db *gorm.DB, deviceID string) (*Entitlement, error)
	// DailyUsage returns the day's free-tier count, 0 when no row exists.
	DailyUsage(ctx context.Context, db *gorm.DB, deviceID, day string) (int64, error)
	// IncrementDailyUsage creates-or-increments the day's counter, refusing to
	// push it past limit. Returns the new count and whether a unit was drawn.
	IncrementDailyUsage(ctx context.Context, db *gorm.DB, deviceID, day string, limit int64) (int64, bool, error)
	// MutateBalance applies delta to tokens_remaining, rejecting any result
	// below zero with ErrInsufficientBalance.
	MutateBalance(ctx context.Context, db *gorm.DB, deviceID string, delta int64) (*Entitlement, error)
	// Credit adds amount to both tokens_remaining and total_purchased.
	Credit(ctx context.Context, db *gorm.DB, deviceID string, amount int64) (*Entitlement, error)
	// InsertTransaction appends a transaction record. Returns false without
	// error when the checkout id was already recorded.
	InsertTransaction(ctx context.Context, db *gorm.DB, txn *PaymentTransaction) (bool, error)
}

var ErrInsufficientBalance = errors.New("insufficient_balance")
