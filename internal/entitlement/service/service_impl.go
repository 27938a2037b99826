package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/densematrix/resumeforge/internal/clock"
	"github.com/densematrix/resumeforge/internal/config"
	"github.com/densematrix/resumeforge/internal/entitlement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  domain.Repository
	Clock clock.Clock
	Cfg   config.Config
}

// Service is the entitlement ledger: it decides eligibility and performs the
// atomic consume and credit transitions.
type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	clk   clock.Clock
	limit int64
	loc   *time.Location
}

func NewService(p Params) domain.Service {
	loc, err := time.LoadLocation(strings.TrimSpace(p.Cfg.FreeTierTimezone))
	if err != nil || loc == nil {
		loc = time.UTC
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("entitlement.service"),
		repo:  p.Repo,
		clk:   p.Clock,
		limit: int64(p.Cfg.FreeDailyGenerations),
		loc:   loc,
	}
}

func (s *Service) Evaluate(ctx context.Context, deviceID string) (domain.Decision, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return domain.Decision{}, domain.ErrInvalidDevice
	}

	ent, err := s.repo.GetOrCreate(ctx, s.db, deviceID)
	if err != nil {
		return domain.Decision{}, err
	}
	used, err := s.repo.DailyUsage(ctx, s.db, deviceID, s.dayKey())
	if err != nil {
		return domain.Decision{}, err
	}

	decision := domain.Decision{
		TokensRemaining: ent.TokensRemaining,
		DailyUsed:       used,
		DailyLimit:      s.limit,
	}
	switch {
	case ent.TokensRemaining > 0:
		decision.Eligible = true
		decision.Tier = domain.TierPaid
	case used < s.limit:
		decision.Eligible = true
		decision.Tier = domain.TierFree
	default:
		decision.Tier = domain.TierExhausted
	}
	return decision, nil
}

// Consume re-derives eligibility at mutation time: the tier reported by an
// earlier Evaluate is advisory only. The paid pool is tried first so free
// quota survives for zero-balance days.
func (s *Service) Consume(ctx context.Context, deviceID string) (domain.Tier, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return "", domain.ErrInvalidDevice
	}

	if _, err := s.repo.GetOrCreate(ctx, s.db, deviceID); err != nil {
		return "", err
	}

	_, err := s.repo.MutateBalance(ctx, s.db, deviceID, -1)
	if err == nil {
		return domain.TierPaid, nil
	}
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		return "", err
	}

	_, drawn, err := s.repo.IncrementDailyUsage(ctx, s.db, deviceID, s.dayKey(), s.limit)
	if err != nil {
		return "", err
	}
	if !drawn {
		return domain.TierExhausted, domain.ErrQuotaExhausted
	}
	return domain.TierFree, nil
}

func (s *Service) Credit(ctx context.Context, deviceID string, amount int64) (int64, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return 0, domain.ErrInvalidDevice
	}
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}

	if _, err := s.repo.GetOrCreate(ctx, s.db, deviceID); err != nil {
		return 0, err
	}
	ent, err := s.repo.Credit(ctx, s.db, deviceID, amount)
	if err != nil {
		return 0, err
	}
	s.log.Info("tokens credited",
		zap.String("device_id", deviceID),
		zap.Int64("amount", amount),
		zap.Int64("balance", ent.TokensRemaining),
	)
	return ent.TokensRemaining, nil
}

func (s *Service) dayKey() string {
	return s.clk.Now().In(s.loc).Format("2006-01-02")
}
