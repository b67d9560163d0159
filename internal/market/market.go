package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GoPolymarket/polyfactory/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Proposal is a pending resolution awaiting confirmation.
type Proposal struct {
	Proposer    common.Address `json:"proposer"`
	Outcome     model.Outcome  `json:"outcome"`
	EvidenceRef string         `json:"evidence_ref,omitempty"`
	ProposedAt  time.Time      `json:"proposed_at"`
}

type position struct {
	yes     uint256.Int
	no      uint256.Int
	claimed uint256.Int
}

func (p *position) side(o model.Outcome) *uint256.Int {
	if o == model.OutcomeYes {
		return &p.yes
	}
	return &p.no
}

func (p *position) empty() bool {
	return p.yes.IsZero() && p.no.IsZero()
}

type Market struct {
	mu sync.RWMutex

	template  *Template
	id        common.Address
	factory   common.Address
	creator   common.Address
	resolver  common.Address
	token     common.Address
	question  string
	deadline  time.Time
	createdAt time.Time
	reporter  Reporter
	notifier  model.Notifier

	state       model.MarketState
	outcome     model.Outcome
	proposal    *Proposal
	finalizedAt time.Time
	delta       int64

	pool      uint256.Int
	yesShares uint256.Int
	noShares  uint256.Int
	paidOut   uint256.Int
	positions map[common.Address]*position
}

func (m *Market) ID() common.Address       { return m.id }
func (m *Market) Creator() common.Address  { return m.creator }
func (m *Market) Resolver() common.Address { return m.resolver }
func (m *Market) Template() *Template      { return m.template }

func (m *Market) State() model.MarketState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Market) totalFor(o model.Outcome) *uint256.Int {
	if o == model.OutcomeYes {
		return &m.yesShares
	}
	return &m.noShares
}

// Deposit escrows amount and mints the same number of shares on outcome.
func (m *Market) Deposit(caller common.Address, outcome model.Outcome, amount *uint256.Int, now time.Time) (*uint256.Int, error) {
	if !outcome.Tradable() {
		return nil, fmt.Errorf("deposit on %q: %w", outcome, model.ErrInvalidOutcome)
	}
	if amount == nil || amount.IsZero() || amount.Lt(&m.template.rules.MinDeposit) {
		return nil, fmt.Errorf("deposit below minimum %s: %w", m.template.rules.MinDeposit.Dec(), model.ErrInvalidAmount)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != model.StateOpen {
		return nil, fmt.Errorf("deposit while %s: %w", m.state, model.ErrTradingClosed)
	}
	if !now.Before(m.deadline) {
		return nil, fmt.Errorf("deposit after deadline: %w", model.ErrTradingClosed)
	}

	// Pool bounds every other counter, so checking it alone rules out overflow.
	pool, overflow := new(uint256.Int).AddOverflow(&m.pool, amount)
	if overflow {
		return nil, fmt.Errorf("deposit overflows pool: %w", model.ErrInvalidAmount)
	}

	pos, ok := m.positions[caller]
	if !ok {
		pos = &position{}
		m.positions[caller] = pos
	}
	held := pos.side(outcome)
	held.Add(held, amount)
	total := m.totalFor(outcome)
	total.Add(total, amount)
	m.pool.Set(pool)

	m.notify(model.EventDeposit, caller, map[string]any{
		"outcome":    string(outcome),
		"amount":     amount.Dec(),
		"total_pool": m.pool.Dec(),
	})
	return amount.Clone(), nil
}

// ProposeResolution moves an OPEN market to RESOLVING. The creator and the
// resolver may propose any outcome at any time, but only the resolver can
// confirm it. Anyone else may only propose once the deadline has passed and
// their proposal is always INVALID; the creator or resolver may still replace
// such a fallback proposal while it is pending.
func (m *Market) ProposeResolution(caller common.Address, outcome model.Outcome, evidenceRef string, now time.Time) (Proposal, error) {
	switch outcome {
	case model.OutcomeYes, model.OutcomeNo, model.OutcomeInvalid:
	default:
		return Proposal{}, fmt.Errorf("propose %q: %w", outcome, model.ErrInvalidOutcome)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case model.StateResolved, model.StateVoid:
		return Proposal{}, fmt.Errorf("propose: %w", model.ErrAlreadyResolved)
	case model.StateResolving:
		if !m.stewardLocked(caller) || m.stewardLocked(m.proposal.Proposer) {
			return Proposal{}, fmt.Errorf("propose: %w", model.ErrAlreadyProposed)
		}
	}

	if !m.stewardLocked(caller) {
		if now.Before(m.deadline) {
			return Proposal{}, fmt.Errorf("propose before %s: %w", m.deadline.Format(time.RFC3339), model.ErrDeadlineNotReached)
		}
		outcome = model.OutcomeInvalid
	}

	p := Proposal{
		Proposer:    caller,
		Outcome:     outcome,
		EvidenceRef: evidenceRef,
		ProposedAt:  now.UTC(),
	}
	m.proposal = &p
	m.state = model.StateResolving

	m.notify(model.EventResolutionProposed, caller, map[string]any{
		"outcome":      string(outcome),
		"evidence_ref": evidenceRef,
	})
	return p, nil
}

// FinalizeResolution settles the market. The factory is told about the
// outcome first; if it refuses, nothing here changes.
func (m *Market) FinalizeResolution(ctx context.Context, caller common.Address, now time.Time) (model.MarketState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.deadline.Add(m.template.rules.ConfirmationGrace)
	expired := !now.Before(cutoff)

	next := model.StateVoid
	outcome := model.OutcomeInvalid
	switch m.state {
	case model.StateResolved, model.StateVoid:
		return m.state, fmt.Errorf("finalize: %w", model.ErrAlreadyResolved)
	case model.StateOpen:
		if !expired {
			return m.state, fmt.Errorf("finalize: %w", model.ErrNotResolving)
		}
	case model.StateResolving:
		if !expired {
			if caller != m.resolver {
				return m.state, fmt.Errorf("finalize: %w", model.ErrNotResolver)
			}
			if m.proposal.Outcome.Tradable() {
				next = model.StateResolved
				outcome = m.proposal.Outcome
			}
		}
	}

	accurate := next == model.StateResolved
	delta, err := m.reporter.ReportResolution(ctx, m.id, Report{
		Outcome:   outcome,
		Accurate:  accurate,
		Confirmer: caller,
		Funded:    m.fundedByOthersLocked(),
	})
	if err != nil {
		return m.state, fmt.Errorf("report resolution: %w", err)
	}

	m.state = next
	m.outcome = outcome
	m.finalizedAt = now.UTC()
	m.delta = delta

	evt := model.EventMarketVoided
	if next == model.StateResolved {
		evt = model.EventMarketResolved
	}
	m.notify(evt, caller, map[string]any{
		"outcome":          string(outcome),
		"accurate":         accurate,
		"reputation_delta": delta,
	})
	return next, nil
}

func (m *Market) stewardLocked(addr common.Address) bool {
	return addr == m.creator || addr == m.resolver
}

func (m *Market) fundedByOthersLocked() bool {
	var own uint256.Int
	if pos, ok := m.positions[m.creator]; ok {
		own.Add(&pos.yes, &pos.no)
	}
	return m.pool.Gt(&own)
}

// Claim pays holder their share of the pool and zeroes their position.
func (m *Market) Claim(holder common.Address) (*uint256.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Terminal() {
		return nil, fmt.Errorf("claim while %s: %w", m.state, model.ErrNotFinal)
	}
	pos, ok := m.positions[holder]
	if !ok || pos.empty() {
		return nil, fmt.Errorf("claim %s: %w", holder.Hex(), model.ErrNothingToClaim)
	}

	payout, err := m.payoutFor(pos)
	if err != nil {
		return nil, err
	}
	paid, overflow := new(uint256.Int).AddOverflow(&m.paidOut, payout)
	if overflow || paid.Gt(&m.pool) {
		return nil, fmt.Errorf("claim %s of %s: %w", payout.Dec(), m.pool.Dec(), model.ErrOverdraft)
	}

	m.paidOut.Set(paid)
	pos.claimed.Add(&pos.claimed, payout)
	pos.yes.Clear()
	pos.no.Clear()

	m.notify(model.EventClaim, holder, map[string]any{
		"payout":   payout.Dec(),
		"paid_out": m.paidOut.Dec(),
	})
	return payout, nil
}

// payoutFor must be called with the lock held.
func (m *Market) payoutFor(pos *position) (*uint256.Int, error) {
	refund := new(uint256.Int).Add(&pos.yes, &pos.no)
	if m.state == model.StateVoid {
		return refund, nil
	}

	totalWin := m.totalFor(m.outcome)
	if totalWin.IsZero() {
		// Nobody backed the winning side.
		return refund, nil
	}
	win := pos.side(m.outcome)
	if win.IsZero() {
		return nil, fmt.Errorf("no %s shares: %w", m.outcome, model.ErrNothingToClaim)
	}
	payout, overflow := new(uint256.Int).MulDivOverflow(win, &m.pool, totalWin)
	if overflow {
		return nil, fmt.Errorf("payout: %w", model.ErrOverdraft)
	}
	return payout, nil
}

func (m *Market) notify(t model.EventType, actor common.Address, data map[string]any) {
	m.notifier.Notify(model.Event{
		Type:   t,
		Entity: m.id.Hex(),
		Actor:  actor.Hex(),
		Data:   data,
	})
}
