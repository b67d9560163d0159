package repository

import (
	"context"
	"time"

	"github.com/GoPolymarket/polyfactory/internal/middleware"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresIdempotencyStore struct {
	db *gorm.DB
}

func NewPostgresIdempotencyStore(db *DB) *PostgresIdempotencyStore {
	return &PostgresIdempotencyStore{db: db.Gorm}
}

func (s *PostgresIdempotencyStore) GetOrLock(ctx context.Context, key string) (*middleware.IdempotencyRecord, bool) {
	row := idempotencyRow{Key: key, Processing: true, CreatedAt: time.Now().UTC()}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error == nil && res.RowsAffected > 0 {
		return nil, false
	}

	var existing idempotencyRow
	if err := s.db.WithContext(ctx).Where("key = ?", key).First(&existing).Error; err != nil {
		return nil, false
	}
	return &middleware.IdempotencyRecord{
		Status:     existing.StatusCode,
		Body:       existing.ResponseBody,
		CreatedAt:  existing.CreatedAt,
		Processing: existing.Processing,
	}, true
}

func (s *PostgresIdempotencyStore) Save(ctx context.Context, key string, status int, body []byte) {
	_ = s.db.WithContext(ctx).Model(&idempotencyRow{}).Where("key = ?", key).Updates(map[string]interface{}{
		"status_code":   status,
		"response_body": body,
		"processing":    false,
	}).Error
}

func (s *PostgresIdempotencyStore) Unlock(ctx context.Context, key string) {
	_ = s.db.WithContext(ctx).Where("key = ?", key).Delete(&idempotencyRow{}).Error
}

func (s *PostgresIdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	return s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&idempotencyRow{}).Error
}
