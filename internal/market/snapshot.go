package market

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/GoPolymarket/polyfactory/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Position is a holder's balance in one market.
type Position struct {
	Holder  common.Address `json:"holder"`
	Yes     *uint256.Int   `json:"yes"`
	No      *uint256.Int   `json:"no"`
	Claimed *uint256.Int   `json:"claimed"`
}

// Snapshot is the full state of a market, used both as the API read model and
// as the persisted form.
type Snapshot struct {
	ID                 common.Address    `json:"id"`
	Template           common.Address    `json:"template"`
	Factory            common.Address    `json:"factory"`
	Creator            common.Address    `json:"creator"`
	Resolver           common.Address    `json:"resolver"`
	CollateralToken    common.Address    `json:"collateral_token"`
	Question           string            `json:"question"`
	ResolutionDeadline time.Time         `json:"resolution_deadline"`
	CreatedAt          time.Time         `json:"created_at"`
	State              model.MarketState `json:"state"`
	Outcome            model.Outcome     `json:"outcome,omitempty"`
	Proposal           *Proposal         `json:"proposal,omitempty"`
	FinalizedAt        *time.Time        `json:"finalized_at,omitempty"`
	ReputationDelta    int64             `json:"reputation_delta"`
	TotalPool          *uint256.Int      `json:"total_pool"`
	YesShares          *uint256.Int      `json:"yes_shares"`
	NoShares           *uint256.Int      `json:"no_shares"`
	PaidOut            *uint256.Int      `json:"paid_out"`
	// Remaining is pool minus payouts. Once every holder has claimed it is
	// the rounding dust left by floor division.
	Remaining *uint256.Int `json:"remaining"`
	Positions []Position   `json:"positions,omitempty"`
}

// Snapshot copies the market state. Positions are included only when
// withPositions is set.
func (m *Market) Snapshot(withPositions bool) Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Snapshot{
		ID:                 m.id,
		Template:           m.template.address,
		Factory:            m.factory,
		Creator:            m.creator,
		Resolver:           m.resolver,
		CollateralToken:    m.token,
		Question:           m.question,
		ResolutionDeadline: m.deadline,
		CreatedAt:          m.createdAt,
		State:              m.state,
		Outcome:            m.outcome,
		ReputationDelta:    m.delta,
		TotalPool:          m.pool.Clone(),
		YesShares:          m.yesShares.Clone(),
		NoShares:           m.noShares.Clone(),
		PaidOut:            m.paidOut.Clone(),
		Remaining:          new(uint256.Int).Sub(&m.pool, &m.paidOut),
	}
	if m.proposal != nil {
		p := *m.proposal
		s.Proposal = &p
	}
	if !m.finalizedAt.IsZero() {
		t := m.finalizedAt
		s.FinalizedAt = &t
	}
	if withPositions {
		s.Positions = make([]Position, 0, len(m.positions))
		for holder, pos := range m.positions {
			s.Positions = append(s.Positions, exportPosition(holder, pos))
		}
		sort.Slice(s.Positions, func(i, j int) bool {
			return bytes.Compare(s.Positions[i].Holder[:], s.Positions[j].Holder[:]) < 0
		})
	}
	return s
}

// Position never fails; unknown holders have an all-zero position.
func (m *Market) Position(holder common.Address) Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos, ok := m.positions[holder]
	if !ok {
		pos = &position{}
	}
	return exportPosition(holder, pos)
}

func exportPosition(holder common.Address, pos *position) Position {
	return Position{
		Holder:  holder,
		Yes:     pos.yes.Clone(),
		No:      pos.no.Clone(),
		Claimed: pos.claimed.Clone(),
	}
}

// Restore rebuilds a market from its snapshot, checking that the persisted
// totals are consistent with the pool and the positions.
func (t *Template) Restore(s Snapshot, reporter Reporter, notifier model.Notifier) (*Market, error) {
	if s.Template != t.address {
		return nil, fmt.Errorf("restore market %s: template %s, want %s", s.ID.Hex(), s.Template.Hex(), t.address.Hex())
	}
	m := t.Instantiate(Init{
		ID:                 s.ID,
		Factory:            s.Factory,
		Creator:            s.Creator,
		Resolver:           s.Resolver,
		CollateralToken:    s.CollateralToken,
		Question:           s.Question,
		ResolutionDeadline: s.ResolutionDeadline,
		CreatedAt:          s.CreatedAt,
		Reporter:           reporter,
		Notifier:           notifier,
	})
	m.state = s.State
	m.outcome = s.Outcome
	m.delta = s.ReputationDelta
	if s.Proposal != nil {
		p := *s.Proposal
		m.proposal = &p
	}
	if s.FinalizedAt != nil {
		m.finalizedAt = s.FinalizedAt.UTC()
	}
	if m.state == model.StateResolving && m.proposal == nil {
		return nil, fmt.Errorf("restore market %s: resolving without a proposal", s.ID.Hex())
	}

	// Totals are kept as minted; claims zero positions but never totals.
	setOrZero(&m.pool, s.TotalPool)
	setOrZero(&m.yesShares, s.YesShares)
	setOrZero(&m.noShares, s.NoShares)
	setOrZero(&m.paidOut, s.PaidOut)

	var yes, no, claimed uint256.Int
	for _, p := range s.Positions {
		pos := &position{}
		setOrZero(&pos.yes, p.Yes)
		setOrZero(&pos.no, p.No)
		setOrZero(&pos.claimed, p.Claimed)
		m.positions[p.Holder] = pos
		yes.Add(&yes, &pos.yes)
		no.Add(&no, &pos.no)
		claimed.Add(&claimed, &pos.claimed)
	}
	if minted := new(uint256.Int).Add(&m.yesShares, &m.noShares); !minted.Eq(&m.pool) {
		return nil, fmt.Errorf("restore market %s: shares %s do not match pool %s", s.ID.Hex(), minted.Dec(), m.pool.Dec())
	}
	if !m.paidOut.Eq(&claimed) {
		return nil, fmt.Errorf("restore market %s: paid out %s, positions claimed %s", s.ID.Hex(), m.paidOut.Dec(), claimed.Dec())
	}
	if yes.Gt(&m.yesShares) || no.Gt(&m.noShares) {
		return nil, fmt.Errorf("restore market %s: positions exceed minted shares", s.ID.Hex())
	}
	return m, nil
}

func setOrZero(dst, src *uint256.Int) {
	if src == nil {
		dst.Clear()
		return
	}
	dst.Set(src)
}
