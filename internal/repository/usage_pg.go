package repository

import (
	"context"
	"time"

	"github.com/GoPolymarket/polyfactory/internal/service"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const dayLayout = "2006-01-02"

// PostgresUsageRepo keeps per-caller daily deposit counters.
type PostgresUsageRepo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewPostgresUsageRepo(db *DB) *PostgresUsageRepo {
	return &PostgresUsageRepo{db: db.Gorm, now: time.Now}
}

// ReserveDailyUsage locks the caller's row for the day, checks limits and
// books the deposit in one transaction.
func (r *PostgresUsageRepo) ReserveDailyUsage(ctx context.Context, caller string, amount decimal.Decimal, limits service.UsageLimits) (service.DailyUsage, bool, error) {
	day := r.now().UTC().Format(dayLayout)
	var (
		usage    service.DailyUsage
		reserved bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := usageRow{Caller: caller, Day: day, Volume: decimal.Zero}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
			return err
		}
		var row usageRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("caller = ? AND day = ?", caller, day).
			First(&row).Error; err != nil {
			return err
		}
		usage = service.DailyUsage{Deposits: row.Deposits, Volume: row.Volume}
		if limits.Breach(usage, amount) != "" {
			return nil
		}
		if err := tx.Model(&usageRow{}).
			Where("caller = ? AND day = ?", caller, day).
			Updates(map[string]interface{}{
				"deposits": gorm.Expr("deposits + 1"),
				"volume":   gorm.Expr("volume + ?", amount),
			}).Error; err != nil {
			return err
		}
		reserved = true
		return nil
	})
	if err != nil {
		return usage, false, err
	}
	return usage, reserved, nil
}

// AddDailyUsage adjusts both counters in one upsert.
func (r *PostgresUsageRepo) AddDailyUsage(ctx context.Context, caller string, deposits int, amount decimal.Decimal) error {
	row := usageRow{
		Caller:   caller,
		Day:      r.now().UTC().Format(dayLayout),
		Deposits: deposits,
		Volume:   amount,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "caller"}, {Name: "day"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"deposits": gorm.Expr("deposit_daily_usage.deposits + ?", deposits),
			"volume":   gorm.Expr("deposit_daily_usage.volume + ?", amount),
		}),
	}).Create(&row).Error
}

func (r *PostgresUsageRepo) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := r.now().UTC().Add(-olderThan).Format(dayLayout)
	return r.db.WithContext(ctx).Where("day < ?", cutoff).Delete(&usageRow{}).Error
}
