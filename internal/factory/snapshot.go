package factory

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/GoPolymarket/polyfactory/internal/market"
	"github.com/GoPolymarket/polyfactory/internal/model"
	"github.com/ethereum/go-ethereum/common"
)

// Snapshot is the persisted form of a factory. Market state is persisted
// separately, one snapshot per market.
type Snapshot struct {
	Address        common.Address   `json:"address"`
	Owner          common.Address   `json:"owner"`
	Template       common.Address   `json:"template"`
	Ledger         common.Address   `json:"ledger"`
	Threshold      int64            `json:"creation_threshold"`
	AcceptedTokens []common.Address `json:"accepted_tokens"`
	Markets        []common.Address `json:"markets"`
	Reported       []common.Address `json:"reported"`
	Nonce          uint64           `json:"nonce"`
}

func (f *Factory) Snapshot() Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()

	s := Snapshot{
		Address:        f.address,
		Owner:          f.owner,
		Template:       f.template.Address(),
		Ledger:         f.ledger.Address(),
		Threshold:      f.threshold,
		AcceptedTokens: f.tokensLocked(),
		Markets:        make([]common.Address, 0, len(f.deployed)),
		Reported:       make([]common.Address, 0, len(f.reported)),
		Nonce:          f.nonce,
	}
	for _, m := range f.deployed {
		s.Markets = append(s.Markets, m.ID())
	}
	for r := range f.reported {
		s.Reported = append(s.Reported, r)
	}
	sort.Slice(s.Reported, func(i, j int) bool { return bytes.Compare(s.Reported[i][:], s.Reported[j][:]) < 0 })
	return s
}

// Restore rebuilds a factory and its markets. Delta policy and oracle come
// from the current configuration; creation order comes from the snapshot.
func Restore(s Snapshot, deltas DeltaPolicy, oracle common.Address, template *market.Template, ledger Ledger, markets []market.Snapshot, notifier model.Notifier) (*Factory, error) {
	if s.Template != template.Address() {
		return nil, fmt.Errorf("restore factory: template %s, want %s", s.Template.Hex(), template.Address().Hex())
	}
	f, err := New(Config{
		Address:        s.Address,
		Owner:          s.Owner,
		Oracle:         oracle,
		Threshold:      ledger.Bounds().Clamp(s.Threshold),
		AcceptedTokens: s.AcceptedTokens,
		Deltas:         deltas,
	}, template, ledger, notifier)
	if err != nil {
		return nil, fmt.Errorf("restore factory: %w", err)
	}

	byID := make(map[common.Address]market.Snapshot, len(markets))
	for _, ms := range markets {
		byID[ms.ID] = ms
	}
	for _, id := range s.Markets {
		ms, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("restore factory: market %s has no snapshot", id.Hex())
		}
		if ms.Factory != f.address {
			return nil, fmt.Errorf("restore factory: market %s belongs to %s", id.Hex(), ms.Factory.Hex())
		}
		m, err := template.Restore(ms, f, f.notifier)
		if err != nil {
			return nil, err
		}
		f.deployed = append(f.deployed, m)
		f.index[id] = deployment{market: m, creator: m.Creator()}
	}
	for _, r := range s.Reported {
		f.reported[r] = struct{}{}
	}
	f.nonce = s.Nonce
	if f.nonce < uint64(len(f.deployed)) {
		f.nonce = uint64(len(f.deployed))
	}
	return f, nil
}
