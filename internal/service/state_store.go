package service

import (
	"context"
	"sort"
	"sync"

	"github.com/GoPolymarket/polyfactory/internal/factory"
	"github.com/GoPolymarket/polyfactory/internal/market"
	"github.com/GoPolymarket/polyfactory/internal/reputation"
	"github.com/ethereum/go-ethereum/common"
)

// State is everything needed to rebuild the platform at boot.
type State struct {
	Ledger  *reputation.Snapshot
	Factory *factory.Snapshot
	Markets []market.Snapshot
}

// StateStore persists entity snapshots. Saves are upserts keyed by address.
type StateStore interface {
	SaveLedger(ctx context.Context, s reputation.Snapshot) error
	SaveFactory(ctx context.Context, s factory.Snapshot) error
	SaveMarket(ctx context.Context, s market.Snapshot) error
	// SaveResolution stores a finalized market with the factory and ledger
	// it reported to, atomically.
	SaveResolution(ctx context.Context, m market.Snapshot, f factory.Snapshot, l reputation.Snapshot) error
	Load(ctx context.Context) (State, error)
}

// MemoryStateStore keeps snapshots in process. It backs tests and runs
// without a database.
type MemoryStateStore struct {
	mu      sync.RWMutex
	ledger  *reputation.Snapshot
	factory *factory.Snapshot
	markets map[common.Address]market.Snapshot
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{markets: make(map[common.Address]market.Snapshot)}
}

func (s *MemoryStateStore) SaveLedger(_ context.Context, snap reputation.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger = &snap
	return nil
}

func (s *MemoryStateStore) SaveFactory(_ context.Context, snap factory.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factory = &snap
	return nil
}

func (s *MemoryStateStore) SaveMarket(_ context.Context, snap market.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[snap.ID] = snap
	return nil
}

func (s *MemoryStateStore) SaveResolution(_ context.Context, m market.Snapshot, f factory.Snapshot, l reputation.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[m.ID] = m
	s.factory = &f
	s.ledger = &l
	return nil
}

func (s *MemoryStateStore) Load(_ context.Context) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := State{Ledger: s.ledger, Factory: s.factory}
	for _, m := range s.markets {
		st.Markets = append(st.Markets, m)
	}
	sort.Slice(st.Markets, func(i, j int) bool { return st.Markets[i].CreatedAt.Before(st.Markets[j].CreatedAt) })
	return st, nil
}
