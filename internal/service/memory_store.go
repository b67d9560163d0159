package service

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryUsageStore is the in-process UsageRepo used when Redis is not
// configured.
type MemoryUsageStore struct {
	mu          sync.Mutex
	dailyVolume map[string]decimal.Decimal // Key: caller:YYYY-MM-DD
	dailyCount  map[string]int
	now         func() time.Time
}

func NewMemoryUsageStore() *MemoryUsageStore {
	return &MemoryUsageStore{
		dailyVolume: make(map[string]decimal.Decimal),
		dailyCount:  make(map[string]int),
		now:         time.Now,
	}
}

func (s *MemoryUsageStore) ReserveDailyUsage(ctx context.Context, caller string, amount decimal.Decimal, limits UsageLimits) (DailyUsage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.makeKey(caller)
	usage := DailyUsage{Deposits: s.dailyCount[key], Volume: s.dailyVolume[key]}
	if limits.Breach(usage, amount) != "" {
		return usage, false, nil
	}
	s.dailyVolume[key] = usage.Volume.Add(amount)
	s.dailyCount[key] = usage.Deposits + 1
	return usage, true, nil
}

func (s *MemoryUsageStore) AddDailyUsage(ctx context.Context, caller string, deposits int, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.makeKey(caller)
	s.dailyVolume[key] = s.dailyVolume[key].Add(amount)
	s.dailyCount[key] += deposits
	return nil
}

func (s *MemoryUsageStore) makeKey(caller string) string {
	return caller + ":" + s.now().UTC().Format("2006-01-02")
}
