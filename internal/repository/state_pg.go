package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/GoPolymarket/polyfactory/internal/factory"
	"github.com/GoPolymarket/polyfactory/internal/market"
	"github.com/GoPolymarket/polyfactory/internal/reputation"
	"github.com/GoPolymarket/polyfactory/internal/service"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostgresStateStore keeps one JSON snapshot row per ledger, factory and
// market.
type PostgresStateStore struct {
	db *gorm.DB
}

func NewPostgresStateStore(db *DB) *PostgresStateStore {
	return &PostgresStateStore{db: db.Gorm}
}

func (s *PostgresStateStore) SaveLedger(ctx context.Context, snap reputation.Snapshot) error {
	return saveLedger(s.db.WithContext(ctx), snap)
}

func (s *PostgresStateStore) SaveFactory(ctx context.Context, snap factory.Snapshot) error {
	return saveFactory(s.db.WithContext(ctx), snap)
}

func (s *PostgresStateStore) SaveMarket(ctx context.Context, snap market.Snapshot) error {
	return saveMarket(s.db.WithContext(ctx), snap)
}

// SaveResolution writes a finalized market together with the factory and
// ledger it reported to. Either all three rows change or none do.
func (s *PostgresStateStore) SaveResolution(ctx context.Context, m market.Snapshot, f factory.Snapshot, l reputation.Snapshot) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := saveMarket(tx, m); err != nil {
			return fmt.Errorf("save market %s: %w", m.ID.Hex(), err)
		}
		if err := saveFactory(tx, f); err != nil {
			return fmt.Errorf("save factory %s: %w", f.Address.Hex(), err)
		}
		if err := saveLedger(tx, l); err != nil {
			return fmt.Errorf("save ledger %s: %w", l.Address.Hex(), err)
		}
		return nil
	})
}

func saveLedger(db *gorm.DB, snap reputation.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	row := ledgerRow{
		Address:   snap.Address.Hex(),
		Owner:     snap.Owner.Hex(),
		Payload:   payload,
		UpdatedAt: time.Now().UTC(),
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"owner", "payload", "updated_at"}),
	}).Create(&row).Error
}

func saveFactory(db *gorm.DB, snap factory.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	row := factoryRow{
		Address:   snap.Address.Hex(),
		Ledger:    snap.Ledger.Hex(),
		Payload:   payload,
		UpdatedAt: time.Now().UTC(),
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"ledger", "payload", "updated_at"}),
	}).Create(&row).Error
}

func saveMarket(db *gorm.DB, snap market.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	row := marketRow{
		Address:   snap.ID.Hex(),
		Factory:   snap.Factory.Hex(),
		Creator:   snap.Creator.Hex(),
		State:     string(snap.State),
		Payload:   payload,
		CreatedAt: snap.CreatedAt,
		UpdatedAt: time.Now().UTC(),
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "payload", "updated_at"}),
	}).Create(&row).Error
}

// Load returns the most recently written deployment. An empty database
// yields a zero State.
func (s *PostgresStateStore) Load(ctx context.Context) (service.State, error) {
	var state service.State
	db := s.db.WithContext(ctx)

	var lr ledgerRow
	if err := db.Order("updated_at DESC").First(&lr).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return state, nil
		}
		return state, err
	}
	var ledger reputation.Snapshot
	if err := json.Unmarshal(lr.Payload, &ledger); err != nil {
		return state, fmt.Errorf("decode ledger %s: %w", lr.Address, err)
	}
	state.Ledger = &ledger

	var fr factoryRow
	if err := db.Where("ledger = ?", lr.Address).Order("updated_at DESC").First(&fr).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return state, nil
		}
		return state, err
	}
	var fac factory.Snapshot
	if err := json.Unmarshal(fr.Payload, &fac); err != nil {
		return state, fmt.Errorf("decode factory %s: %w", fr.Address, err)
	}
	state.Factory = &fac

	var rows []marketRow
	if err := db.Where("factory = ?", fr.Address).Order("created_at ASC").Find(&rows).Error; err != nil {
		return state, err
	}
	state.Markets = make([]market.Snapshot, 0, len(rows))
	for _, r := range rows {
		var m market.Snapshot
		if err := json.Unmarshal(r.Payload, &m); err != nil {
			return state, fmt.Errorf("decode market %s: %w", r.Address, err)
		}
		state.Markets = append(state.Markets, m)
	}
	return state, nil
}

// MarketsByCreator lists persisted markets for one creator, newest first.
func (s *PostgresStateStore) MarketsByCreator(ctx context.Context, creator string, limit int) ([]market.Snapshot, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var rows []marketRow
	if err := s.db.WithContext(ctx).Where("creator = ?", creator).Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]market.Snapshot, 0, len(rows))
	for _, r := range rows {
		var m market.Snapshot
		if err := json.Unmarshal(r.Payload, &m); err != nil {
			return nil, fmt.Errorf("decode market %s: %w", r.Address, err)
		}
		out = append(out, m)
	}
	return out, nil
}
