package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/densematrix/resumeforge/internal/entitlement/domain"
	"github.com/densematrix/resumeforge/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct {
	genID *snowflake.Node
}

func New(genID *snowflake.Node) domain.Repository {
	return &repo{genID: genID}
}

func (r *repo) GetOrCreate(ctx context.Context, conn *gorm.DB, deviceID string) (*domain.Entitlement, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, domain.ErrInvalidDevice
	}

	now := time.Now().UTC()
	row := domain.Entitlement{
		ID:        r.genID.Generate(),
		DeviceID:  deviceID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	// Creation race resolved by the unique key: losers fall through to the read.
	if err := conn.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "device_id"}}, DoNothing: true}).
		Create(&row).Error; err != nil && !db.IsDuplicateKeyErr(err) {
		return nil, err
	}

	var out domain.Entitlement
	if err := conn.WithContext(ctx).Where("device_id = ?", deviceID).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *repo) DailyUsage(ctx context.Context, conn *gorm.DB, deviceID, day string) (int64, error) {
	var row domain.DailyUsage
	err := conn.WithContext(ctx).
		Where("device_id = ? AND date = ?", deviceID, day).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return row.GenerationsUsed, nil
}

func (r *repo) IncrementDailyUsage(ctx context.Context, conn *gorm.DB, deviceID, day string, limit int64) (int64, bool, error) {
	drawn, err := r.incrementGuarded(ctx, conn, deviceID, day, limit)
	if err != nil || !drawn {
		return 0, false, err
	}
	count, err := r.DailyUsage(ctx, conn, deviceID, day)
	if err != nil {
		return 0, false, err
	}
	return count, true, nil
}

// incrementGuarded is the enforcement point for the daily ceiling: the
// increment and the limit check are one statement, so concurrent callers can
// never push the counter past limit.
func (r *repo) incrementGuarded(ctx context.Context, conn *gorm.DB, deviceID, day string, limit int64) (bool, error) {
	now := time.Now().UTC()

	update := func() (bool, error) {
		res := conn.WithContext(ctx).Exec(
			`UPDATE daily_usage
			 SET generations_used = generations_used + 1, updated_at = ?
			 WHERE device_id = ? AND date = ? AND generations_used < ?`,
			now, deviceID, day, limit,
		)
		return res.RowsAffected > 0, res.Error
	}

	if ok, err := update(); err != nil || ok {
		return ok, err
	}
	if limit < 1 {
		return false, nil
	}

	row := domain.DailyUsage{
		ID:              r.genID.Generate(),
		DeviceID:        deviceID,
		Date:            day,
		GenerationsUsed: 1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	res := conn.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "device_id"}, {Name: "date"}},
			DoNothing: true,
		}).
		Create(&row)
	if res.Error != nil && !db.IsDuplicateKeyErr(res.Error) {
		return false, res.Error
	}
	if res.Error == nil && res.RowsAffected > 0 {
		return true, nil
	}

	// Lost the insert race: another caller created today's row. One retry of
	// the guarded update settles it either way.
	return update()
}

func (r *repo) MutateBalance(ctx context.Context, conn *gorm.DB, deviceID string, delta int64) (*domain.Entitlement, error) {
	res := conn.WithContext(ctx).Exec(
		`UPDATE entitlements
		 SET tokens_remaining = tokens_remaining + ?, updated_at = ?
		 WHERE device_id = ? AND tokens_remaining + ? >= 0`,
		delta, time.Now().UTC(), deviceID, delta,
	)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, domain.ErrInsufficientBalance
	}
	return r.reload(ctx, conn, deviceID)
}

func (r *repo) Credit(ctx context.Context, conn *gorm.DB, deviceID string, amount int64) (*domain.Entitlement, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	res := conn.WithContext(ctx).Exec(
		`UPDATE entitlements
		 SET tokens_remaining = tokens_remaining + ?, total_purchased = total_purchased + ?, updated_at = ?
		 WHERE device_id = ?`,
		amount, amount, time.Now().UTC(), deviceID,
	)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.reload(ctx, conn, deviceID)
}

func (r *repo) InsertTransaction(ctx context.Context, conn *gorm.DB, txn *domain.PaymentTransaction) (bool, error) {
	if txn == nil {
		return false, errors.New("missing_transaction")
	}
	if txn.ID == 0 {
		txn.ID = r.genID.Generate()
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}
	res := conn.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "checkout_id"}}, DoNothing: true}).
		Create(txn)
	if res.Error != nil {
		if db.IsDuplicateKeyErr(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) reload(ctx context.Context, conn *gorm.DB, deviceID string) (*domain.Entitlement, error) {
	var out domain.Entitlement
	if err := conn.WithContext(ctx).Where("device_id = ?", deviceID).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}
