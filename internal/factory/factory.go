// Package factory deploys markets for creators whose reputation clears the
// creation threshold, and relays each market's resolution back to the ledger.
package factory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/GoPolymarket/polyfactory/internal/market"
	"github.com/GoPolymarket/polyfactory/internal/model"
	"github.com/GoPolymarket/polyfactory/internal/reputation"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Ledger is the part of the reputation ledger a factory depends on.
type Ledger interface {
	Address() common.Address
	Bounds() reputation.Bounds
	ScoreOf(identity common.Address) int64
	AdjustReputation(caller, identity common.Address, delta int64) (reputation.Adjustment, error)
}

// DeltaPolicy maps a resolution to the creator's reputation change.
type DeltaPolicy struct {
	Clean    int64 `json:"clean"`
	Disputed int64 `json:"disputed"`
	Void     int64 `json:"void"`
	MaxAbs   int64 `json:"max_abs"`
}

func DefaultDeltaPolicy() DeltaPolicy {
	return DeltaPolicy{Clean: 10, Disputed: -5, Void: -15, MaxAbs: 50}
}

// Delta returns the creator's adjustment for a report, clamped to ±MaxAbs.
// A positive delta is only granted when the confirmer is not the creator and
// someone other than the creator funded the pool.
func (p DeltaPolicy) Delta(r market.Report, creator common.Address) int64 {
	var d int64
	switch {
	case r.Outcome.Tradable() && r.Accurate:
		d = p.Clean
	case r.Outcome.Tradable():
		// Reserved for a dispute window; markets report every tradable
		// outcome as accurate today.
		d = p.Disputed
	default:
		d = p.Void
	}
	if d > 0 && (r.Confirmer == creator || !r.Funded) {
		d = 0
	}
	if p.MaxAbs > 0 {
		if d > p.MaxAbs {
			d = p.MaxAbs
		}
		if d < -p.MaxAbs {
			d = -p.MaxAbs
		}
	}
	return d
}

// Config holds the construction parameters of a factory.
type Config struct {
	Address common.Address
	Owner   common.Address
	// Oracle is the default resolver of new markets. The owner stands in
	// when it is unset.
	Oracle common.Address
	// Threshold is the minimum score needed to create a market.
	Threshold int64
	// AcceptedTokens restricts collateral. Empty accepts any non-zero token.
	AcceptedTokens []common.Address
	Deltas         DeltaPolicy
}

// CreateParams are the caller-supplied market parameters.
type CreateParams struct {
	Question           string
	CollateralToken    common.Address
	ResolutionDeadline time.Time
	// Resolver defaults to the factory oracle. It can never be the caller.
	Resolver common.Address
}

type deployment struct {
	market  *market.Market
	creator common.Address
}

type Factory struct {
	mu sync.RWMutex

	address  common.Address
	owner    common.Address
	oracle   common.Address
	template *market.Template
	ledger   Ledger
	deltas   DeltaPolicy
	notifier model.Notifier

	threshold int64
	tokens    map[common.Address]struct{}
	deployed  []*market.Market
	index     map[common.Address]deployment
	reported  map[common.Address]struct{}
	nonce     uint64
}

func New(cfg Config, template *market.Template, ledger Ledger, notifier model.Notifier) (*Factory, error) {
	if cfg.Owner == (common.Address{}) {
		return nil, fmt.Errorf("factory owner: %w", model.ErrInvalidAddress)
	}
	if template == nil || ledger == nil {
		return nil, fmt.Errorf("factory needs a template and a ledger")
	}
	if !ledger.Bounds().Contains(cfg.Threshold) {
		return nil, fmt.Errorf("creation threshold %d: %w", cfg.Threshold, model.ErrInvalidPolicy)
	}
	if cfg.Deltas.MaxAbs < 0 {
		return nil, fmt.Errorf("delta policy max_abs %d must not be negative", cfg.Deltas.MaxAbs)
	}
	if notifier == nil {
		notifier = model.Discard
	}
	f := &Factory{
		address:   cfg.Address,
		owner:     cfg.Owner,
		oracle:    cfg.Oracle,
		template:  template,
		ledger:    ledger,
		deltas:    cfg.Deltas,
		notifier:  notifier,
		threshold: cfg.Threshold,
		tokens:    make(map[common.Address]struct{}, len(cfg.AcceptedTokens)),
		index:     make(map[common.Address]deployment),
		reported:  make(map[common.Address]struct{}),
	}
	for _, t := range cfg.AcceptedTokens {
		if t == (common.Address{}) {
			return nil, fmt.Errorf("accepted token: %w", model.ErrInvalidAddress)
		}
		f.tokens[t] = struct{}{}
	}
	return f, nil
}

func (f *Factory) Address() common.Address    { return f.address }
func (f *Factory) Owner() common.Address      { return f.owner }
func (f *Factory) Template() *market.Template { return f.template }
func (f *Factory) Deltas() DeltaPolicy        { return f.deltas }

// DefaultResolver is the resolver assigned to markets created without one.
func (f *Factory) DefaultResolver() common.Address { return f.defaultResolver() }

// CreateMarket deploys a new market owned by caller. The owner bypasses the
// reputation threshold.
func (f *Factory) CreateMarket(ctx context.Context, caller common.Address, p CreateParams, now time.Time) (*market.Market, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	question := strings.TrimSpace(p.Question)
	if question == "" {
		return nil, fmt.Errorf("create market: %w", model.ErrEmptyQuestion)
	}
	if !p.ResolutionDeadline.After(now) {
		return nil, fmt.Errorf("create market: %w", model.ErrInvalidDeadline)
	}
	if p.CollateralToken == (common.Address{}) {
		return nil, fmt.Errorf("collateral token: %w", model.ErrInvalidAddress)
	}
	resolver := p.Resolver
	if resolver == (common.Address{}) {
		resolver = f.defaultResolver()
	}
	if resolver == caller {
		return nil, fmt.Errorf("resolver %s: %w", resolver.Hex(), model.ErrSelfResolution)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if caller != f.owner {
		if score := f.ledger.ScoreOf(caller); score < f.threshold {
			return nil, fmt.Errorf("score %d below %d: %w", score, f.threshold, model.ErrReputationTooLow)
		}
	}
	if !f.acceptsLocked(p.CollateralToken) {
		return nil, fmt.Errorf("collateral %s: %w", p.CollateralToken.Hex(), model.ErrTokenRejected)
	}

	id := crypto.CreateAddress(f.address, f.nonce)
	m := f.template.Instantiate(market.Init{
		ID:                 id,
		Factory:            f.address,
		Creator:            caller,
		Resolver:           resolver,
		CollateralToken:    p.CollateralToken,
		Question:           question,
		ResolutionDeadline: p.ResolutionDeadline,
		CreatedAt:          now,
		Reporter:           f,
		Notifier:           f.notifier,
	})
	f.nonce++
	f.deployed = append(f.deployed, m)
	f.index[id] = deployment{market: m, creator: caller}

	f.notify(model.EventMarketCreated, caller, map[string]any{
		"market":              id.Hex(),
		"question":            question,
		"resolver":            resolver.Hex(),
		"collateral_token":    p.CollateralToken.Hex(),
		"resolution_deadline": p.ResolutionDeadline.UTC(),
	})
	return m, nil
}

// ReportResolution is called by a deployed market while it finalizes. It
// applies the creator's reputation delta at most once per market.
func (f *Factory) ReportResolution(ctx context.Context, reporter common.Address, r market.Report) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	d, ok := f.index[reporter]
	if !ok {
		return 0, fmt.Errorf("report from %s: %w", reporter.Hex(), model.ErrNotOwnedMarket)
	}
	if _, done := f.reported[reporter]; done {
		return 0, fmt.Errorf("report from %s: %w", reporter.Hex(), model.ErrAlreadyReported)
	}

	delta := f.deltas.Delta(r, d.creator)
	adj, err := f.ledger.AdjustReputation(f.address, d.creator, delta)
	if err != nil {
		return 0, fmt.Errorf("adjust creator %s: %w", d.creator.Hex(), err)
	}
	f.reported[reporter] = struct{}{}

	f.notify(model.EventResolutionReported, reporter, map[string]any{
		"market":    reporter.Hex(),
		"creator":   d.creator.Hex(),
		"outcome":   string(r.Outcome),
		"accurate":  r.Accurate,
		"confirmer": r.Confirmer.Hex(),
		"funded":    r.Funded,
		"delta":     adj.Applied,
		"score":     adj.Score,
	})
	return adj.Applied, nil
}

func (f *Factory) defaultResolver() common.Address {
	if f.oracle != (common.Address{}) {
		return f.oracle
	}
	return f.owner
}

// SetCreationPolicy replaces the creation threshold and returns the old one.
func (f *Factory) SetCreationPolicy(caller common.Address, threshold int64) (int64, error) {
	if caller != f.owner {
		return 0, fmt.Errorf("set creation policy: %w", model.ErrNotOwner)
	}
	if b := f.ledger.Bounds(); !b.Contains(threshold) {
		return 0, fmt.Errorf("threshold %d outside [%d,%d]: %w", threshold, b.Min, b.Max, model.ErrInvalidPolicy)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	prev := f.threshold
	f.threshold = threshold
	f.notify(model.EventPolicyChanged, caller, map[string]any{
		"previous":  prev,
		"threshold": threshold,
	})
	return prev, nil
}

func (f *Factory) Threshold() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.threshold
}

// AcceptToken adds token to the collateral allow-list.
func (f *Factory) AcceptToken(caller, token common.Address) (bool, error) {
	if caller != f.owner {
		return false, fmt.Errorf("accept token: %w", model.ErrNotOwner)
	}
	if token == (common.Address{}) {
		return false, fmt.Errorf("accept token: %w", model.ErrInvalidAddress)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.tokens[token]; ok {
		return false, nil
	}
	f.tokens[token] = struct{}{}
	f.notify(model.EventTokenAccepted, caller, map[string]any{"token": token.Hex()})
	return true, nil
}

// RejectToken removes token from the allow-list. Markets already using it
// are unaffected.
func (f *Factory) RejectToken(caller, token common.Address) (bool, error) {
	if caller != f.owner {
		return false, fmt.Errorf("reject token: %w", model.ErrNotOwner)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.tokens[token]; !ok {
		return false, nil
	}
	delete(f.tokens, token)
	f.notify(model.EventTokenRejected, caller, map[string]any{"token": token.Hex()})
	return true, nil
}

func (f *Factory) AcceptsToken(token common.Address) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.acceptsLocked(token)
}

func (f *Factory) acceptsLocked(token common.Address) bool {
	if len(f.tokens) == 0 {
		return token != (common.Address{})
	}
	_, ok := f.tokens[token]
	return ok
}

func (f *Factory) AcceptedTokens() []common.Address {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.tokensLocked()
}

func (f *Factory) tokensLocked() []common.Address {
	out := make([]common.Address, 0, len(f.tokens))
	for t := range f.tokens {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

// Market looks up a deployed market by address.
func (f *Factory) Market(id common.Address) (*market.Market, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	d, ok := f.index[id]
	if !ok {
		return nil, fmt.Errorf("market %s: %w", id.Hex(), model.ErrMarketNotFound)
	}
	return d.market, nil
}

// Markets returns a page of deployed markets in creation order.
func (f *Factory) Markets(offset, limit int) []*market.Market {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if offset < 0 {
		offset = 0
	}
	if offset >= len(f.deployed) {
		return []*market.Market{}
	}
	end := len(f.deployed)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]*market.Market, end-offset)
	copy(out, f.deployed[offset:end])
	return out
}

func (f *Factory) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.deployed)
}

// IsDeployed reports whether addr is a market created by this factory.
func (f *Factory) IsDeployed(addr common.Address) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.index[addr]
	return ok
}

// Info is the public description of a factory.
type Info struct {
	Address        common.Address   `json:"address"`
	Owner          common.Address   `json:"owner"`
	Resolver       common.Address   `json:"default_resolver"`
	Template       common.Address   `json:"template"`
	Ledger         common.Address   `json:"ledger"`
	Threshold      int64            `json:"creation_threshold"`
	AcceptedTokens []common.Address `json:"accepted_tokens"`
	Deltas         DeltaPolicy      `json:"delta_policy"`
	MarketCount    int              `json:"market_count"`
}

func (f *Factory) Info() Info {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return Info{
		Address:        f.address,
		Owner:          f.owner,
		Resolver:       f.defaultResolver(),
		Template:       f.template.Address(),
		Ledger:         f.ledger.Address(),
		Threshold:      f.threshold,
		AcceptedTokens: f.tokensLocked(),
		Deltas:         f.deltas,
		MarketCount:    len(f.deployed),
	}
}

func (f *Factory) notify(t model.EventType, actor common.Address, data map[string]any) {
	f.notifier.Notify(model.Event{
		Type:   t,
		Entity: f.address.Hex(),
		Actor:  actor.Hex(),
		Data:   data,
	})
}
