// Package domain contains persistence models for device entitlements.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Entitlement is the durable paid-token balance for one device.
type Entitlement struct {
	ID              snowflake.ID `gorm:"primaryKey"`
	DeviceID        string       `gorm:"type:text;not null;uniqueIndex:ux_entitlements_device_id"`
	TokensRemaining int64        `gorm:"not null;default:0"`
	TotalPurchased  int64        `gorm:"not null;default:0"`
	FreeTrialUsed   bool         `gorm:"not null;default:false"`
	CreatedAt       time.Time    `gorm:"not null"`
	UpdatedAt       time.Time    `gorm:"not null"`
}

func (Entitlement) TableName() string { return "entitlements" }

// DailyUsage records how many free-tier generations a device drew on one day.
// The ledger, not this row, enforces the daily ceiling.
type DailyUsage struct {
	ID              snowflake.ID `gorm:"primaryKey"`
	DeviceID        string       `gorm:"type:text;not null;uniqueIndex:ux_daily_usage_device_date"`
	Date            string       `gorm:"type:text;not null;uniqueIndex:ux_daily_usage_device_date"` // YYYY-MM-DD
	GenerationsUsed int64        `gorm:"not null;default:0"`
	CreatedAt       time.Time    `gorm:"not null"`
	UpdatedAt       time.Time    `gorm:"not null"`
}

func (DailyUsage) TableName() string { return "daily_usage" }

// PaymentTransaction is the append-only audit record of one completed checkout.
// CheckoutID uniqueness is the idempotency guard against duplicate webhook delivery.
type PaymentTransaction struct {
	ID            snowflake.ID      `gorm:"primaryKey"`
	CheckoutID    string            `gorm:"type:text;not null;uniqueIndex:ux_payment_transactions_checkout_id"`
	DeviceID      string            `gorm:"type:text;not null;index"`
	ProductSKU    string            `gorm:"type:text;not null"`
	AmountCents   int64             `gorm:"not null"`
	Currency      string            `gorm:"type:text;not null;default:USD"`
	Status        string            `gorm:"type:text;not null"`
	TokensGranted int64             `gorm:"not null;default:0"`
	Metadata      datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt     time.Time         `gorm:"not null"`
	CompletedAt   *time.Time
}

func (PaymentTransaction) TableName() string { return "payment_transactions" }

const (
	TransactionStatusCompleted = "completed"
)
