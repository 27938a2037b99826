package domain

import (
	"context"
	"errors"
)

// Tier names the pool a generation draws from.
type Tier string

const (
	TierPaid      Tier = "paid"
	TierFree      Tier = "free"
	TierExhausted Tier = "exhausted"
)

// Decision is the read-only eligibility answer. It is advisory: the
// enforcement point is Consume, which re-derives the tier at mutation time.
type Decision struct {
	Eligible        bool  `json:"eligible"`
	Tier            Tier  `json:"tier"`
	TokensRemaining int64 `json:"tokens_remaining"`
	DailyUsed       int64 `json:"daily_used"`
	DailyLimit      int64 `json:"daily_limit"`
}

type Service interface {
	// Evaluate reports whether the device may generate and from which tier.
	// Paid balance always wins over free quota.
	Evaluate(ctx context.Context, deviceID string) (Decision, error)
	// Consume atomically draws one unit, re-checking availability at mutation
	// time. Returns the tier the unit was drawn from, or ErrQuotaExhausted.
	Consume(ctx context.Context, deviceID string) (Tier, error)
	// Credit adds amount to the paid balance and lifetime counter, returning
	// the new balance.
	Credit(ctx context.Context, deviceID string, amount int64) (int64, error)
}

var (
	ErrInvalidDevice  = errors.New("invalid_device")
	ErrInvalidAmount  = errors.New("invalid_amount")
	ErrQuotaExhausted = errors.New("quota_exhausted")
)
