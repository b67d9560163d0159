package reputation

import (
	"fmt"

	"github.com/GoPolymarket/polyfactory/internal/model"
	"github.com/ethereum/go-ethereum/common"
)

// Snapshot is the persisted form of a ledger.
type Snapshot struct {
	Address common.Address           `json:"address"`
	Owner   common.Address           `json:"owner"`
	Bounds  Bounds                   `json:"bounds"`
	Scores  map[common.Address]int64 `json:"scores"`
	Writers []common.Address         `json:"writers"`
}

func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	scores := make(map[common.Address]int64, len(l.scores))
	for id, s := range l.scores {
		scores[id] = s
	}
	writers := make([]common.Address, 0, len(l.writers))
	for w := range l.writers {
		writers = append(writers, w)
	}
	sortAddresses(writers)

	return Snapshot{
		Address: l.address,
		Owner:   l.owner,
		Bounds:  l.bounds,
		Scores:  scores,
		Writers: writers,
	}
}

// Restore rebuilds a ledger from a snapshot under the given bounds. Scores
// outside them are clamped, which only happens when the configured bounds were
// tightened between runs.
func Restore(s Snapshot, bounds Bounds, notifier model.Notifier) (*Ledger, error) {
	l, err := NewLedger(s.Address, s.Owner, bounds, notifier)
	if err != nil {
		return nil, fmt.Errorf("restore ledger: %w", err)
	}
	for id, score := range s.Scores {
		if v := l.bounds.Clamp(score); v != 0 {
			l.scores[id] = v
		}
	}
	for _, w := range s.Writers {
		l.writers[w] = struct{}{}
	}
	return l, nil
}
