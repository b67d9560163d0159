package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/GoPolymarket/polyfactory/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresEventRepo struct {
	db *gorm.DB
}

func NewPostgresEventRepo(db *DB) *PostgresEventRepo {
	return &PostgresEventRepo{db: db.Gorm}
}

func (r *PostgresEventRepo) Insert(ctx context.Context, e model.Event) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return err
	}
	row := eventRow{
		ID:        e.ID,
		Type:      string(e.Type),
		Entity:    e.Entity,
		Actor:     e.Actor,
		Data:      data,
		CreatedAt: e.CreatedAt,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

func (r *PostgresEventRepo) List(ctx context.Context, filter model.EventFilter) ([]model.Event, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query := r.db.WithContext(ctx).Model(&eventRow{})
	if filter.Entity != "" {
		query = query.Where("LOWER(entity) = LOWER(?)", filter.Entity)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", string(filter.Type))
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at <= ?", *filter.To)
	}

	var rows []eventRow
	if err := query.Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	events := make([]model.Event, 0, len(rows))
	for _, row := range rows {
		e := model.Event{
			ID:        row.ID,
			Type:      model.EventType(row.Type),
			Entity:    row.Entity,
			Actor:     row.Actor,
			CreatedAt: row.CreatedAt,
		}
		if len(row.Data) > 0 {
			_ = json.Unmarshal(row.Data, &e.Data)
		}
		events = append(events, e)
	}
	return events, nil
}

func (r *PostgresEventRepo) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	return r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&eventRow{}).Error
}
