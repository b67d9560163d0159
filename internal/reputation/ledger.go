// Package reputation holds the creator trust ledger. Scores are read by
// anyone and written only by factories the ledger owner has whitelisted.
package reputation

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/GoPolymarket/polyfactory/internal/model"
	"github.com/ethereum/go-ethereum/common"
)

const (
	DefaultMinScore int64 = -100
	DefaultMaxScore int64 = 1000
)

// Bounds is the closed interval every score is clamped to.
type Bounds struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// Contains reports whether v lies within the bounds.
func (b Bounds) Contains(v int64) bool {
	return v >= b.Min && v <= b.Max
}

// Clamp returns v limited to the bounds.
func (b Bounds) Clamp(v int64) int64 {
	if v < b.Min {
		return b.Min
	}
	if v > b.Max {
		return b.Max
	}
	return v
}

// Adjustment describes one applied score change.
type Adjustment struct {
	Identity  common.Address `json:"identity"`
	Requested int64          `json:"requested"`
	Applied   int64          `json:"applied"`
	Previous  int64          `json:"previous"`
	Score     int64          `json:"score"`
}

type Ledger struct {
	mu       sync.RWMutex
	address  common.Address
	owner    common.Address
	bounds   Bounds
	scores   map[common.Address]int64
	writers  map[common.Address]struct{}
	notifier model.Notifier
}

// NewLedger creates an empty ledger. The zero score must lie within bounds so
// unseen identities are representable.
func NewLedger(address, owner common.Address, bounds Bounds, notifier model.Notifier) (*Ledger, error) {
	if owner == (common.Address{}) {
		return nil, fmt.Errorf("ledger owner: %w", model.ErrInvalidAddress)
	}
	if bounds.Min > 0 || bounds.Max < 0 || bounds.Min > bounds.Max {
		return nil, fmt.Errorf("reputation bounds [%d,%d] must contain 0", bounds.Min, bounds.Max)
	}
	if notifier == nil {
		notifier = model.Discard
	}
	return &Ledger{
		address:  address,
		owner:    owner,
		bounds:   bounds,
		scores:   make(map[common.Address]int64),
		writers:  make(map[common.Address]struct{}),
		notifier: notifier,
	}, nil
}

func (l *Ledger) Address() common.Address { return l.address }
func (l *Ledger) Owner() common.Address   { return l.owner }
func (l *Ledger) Bounds() Bounds          { return l.bounds }

// WhitelistFactory grants factory the right to adjust scores. Adding an
// existing writer is a no-op and returns changed=false.
func (l *Ledger) WhitelistFactory(caller, factory common.Address) (bool, error) {
	if caller != l.owner {
		return false, fmt.Errorf("whitelist %s: %w", factory.Hex(), model.ErrNotOwner)
	}
	if factory == (common.Address{}) {
		return false, fmt.Errorf("whitelist: %w", model.ErrInvalidAddress)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.writers[factory]; ok {
		return false, nil
	}
	l.writers[factory] = struct{}{}
	l.notify(model.EventWriterAdded, caller, map[string]any{"writer": factory.Hex()})
	return true, nil
}

// RevokeFactory removes factory from the writer set. Subsequent writes from it
// fail with ErrNotWriter.
func (l *Ledger) RevokeFactory(caller, factory common.Address) (bool, error) {
	if caller != l.owner {
		return false, fmt.Errorf("revoke %s: %w", factory.Hex(), model.ErrNotOwner)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.writers[factory]; !ok {
		return false, nil
	}
	delete(l.writers, factory)
	l.notify(model.EventWriterRemoved, caller, map[string]any{"writer": factory.Hex()})
	return true, nil
}

// AdjustReputation applies delta to identity's score, clamped to the ledger
// bounds. It fails closed for callers outside the writer set.
func (l *Ledger) AdjustReputation(caller, identity common.Address, delta int64) (Adjustment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.writers[caller]; !ok {
		return Adjustment{}, fmt.Errorf("adjust %s: %w", identity.Hex(), model.ErrNotWriter)
	}
	if identity == (common.Address{}) {
		return Adjustment{}, fmt.Errorf("adjust: %w", model.ErrInvalidAddress)
	}

	prev := l.scores[identity]
	next := l.bounds.Clamp(saturatingAdd(prev, delta))
	if next == 0 {
		delete(l.scores, identity)
	} else {
		l.scores[identity] = next
	}

	adj := Adjustment{
		Identity:  identity,
		Requested: delta,
		Applied:   next - prev,
		Previous:  prev,
		Score:     next,
	}
	l.notify(model.EventScoreAdjusted, caller, map[string]any{
		"identity":  identity.Hex(),
		"requested": delta,
		"applied":   adj.Applied,
		"previous":  prev,
		"score":     next,
	})
	return adj, nil
}

// ScoreOf never fails; unseen identities score 0.
func (l *Ledger) ScoreOf(identity common.Address) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.scores[identity]
}

func (l *Ledger) IsWriter(addr common.Address) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.writers[addr]
	return ok
}

// Writers returns the writer set in address order.
func (l *Ledger) Writers() []common.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]common.Address, 0, len(l.writers))
	for w := range l.writers {
		out = append(out, w)
	}
	sortAddresses(out)
	return out
}

func (l *Ledger) notify(t model.EventType, actor common.Address, data map[string]any) {
	l.notifier.Notify(model.Event{
		Type:   t,
		Entity: l.address.Hex(),
		Actor:  actor.Hex(),
		Data:   data,
	})
}

func saturatingAdd(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	if b < 0 && a < math.MinInt64-b {
		return math.MinInt64
	}
	return a + b
}

func sortAddresses(addrs []common.Address) {
	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i][:], addrs[j][:]) < 0
	})
}
