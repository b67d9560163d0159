package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GoPolymarket/polyfactory/internal/factory"
	"github.com/GoPolymarket/polyfactory/internal/market"
	"github.com/GoPolymarket/polyfactory/internal/model"
	"github.com/GoPolymarket/polyfactory/internal/pkg/logger"
	"github.com/GoPolymarket/polyfactory/internal/pkg/metrics"
	"github.com/GoPolymarket/polyfactory/internal/reputation"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Deploy nonces of the owner account.
const (
	nonceLedger uint64 = iota
	nonceTemplate
	nonceFactory
)

// DeployOptions configures the boot-time deployment.
type DeployOptions struct {
	Network        string
	Owner          common.Address
	Oracle         common.Address
	Bounds         reputation.Bounds
	Rules          market.Rules
	Threshold      int64
	AcceptedTokens []common.Address
	Deltas         factory.DeltaPolicy
}

// Deployment is the summary printed at boot.
type Deployment struct {
	Network  string         `json:"network"`
	Owner    common.Address `json:"owner"`
	Ledger   common.Address `json:"ledger"`
	Template common.Address `json:"template"`
	Factory  common.Address `json:"factory"`
	Restored bool           `json:"restored"`
	Markets  int            `json:"markets"`
}

// Platform is the single entry point handlers use. It runs core operations,
// applies the pre-trade guard, records metrics and persists snapshots of
// whatever a successful operation touched.
type Platform struct {
	deployment Deployment
	ledger     *reputation.Ledger
	factory    *factory.Factory
	guard      *DepositGuard
	store      StateStore
	now        func() time.Time

	persistMu sync.Mutex
	// unsaved holds finalized markets whose resolution write failed.
	unsaved map[common.Address]*market.Market
}

// Boot restores the platform from store, or deploys it fresh when the store
// is empty: ledger, template and factory at the owner's first three nonces,
// then the factory is whitelisted as a ledger writer.
func Boot(ctx context.Context, opts DeployOptions, store StateStore, notifier model.Notifier, guard *DepositGuard) (*Platform, error) {
	if store == nil {
		store = NewMemoryStateStore()
	}
	state, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	p := &Platform{guard: guard, store: store, now: time.Now}
	if state.Ledger != nil && state.Factory != nil {
		if err := p.restore(opts, state, notifier); err != nil {
			return nil, err
		}
		logger.Info("platform restored", "ledger", p.deployment.Ledger.Hex(), "factory", p.deployment.Factory.Hex(), "markets", len(state.Markets))
		return p, nil
	}

	if err := p.deploy(opts, notifier); err != nil {
		return nil, err
	}
	p.persistLedger(ctx)
	p.persistFactory(ctx)
	logger.Info("platform deployed", "ledger", p.deployment.Ledger.Hex(), "factory", p.deployment.Factory.Hex())
	return p, nil
}

func (p *Platform) deploy(opts DeployOptions, notifier model.Notifier) error {
	if opts.Owner == (common.Address{}) {
		return fmt.Errorf("deploy owner: %w", model.ErrInvalidAddress)
	}
	ledgerAddr := crypto.CreateAddress(opts.Owner, nonceLedger)
	templateAddr := crypto.CreateAddress(opts.Owner, nonceTemplate)
	factoryAddr := crypto.CreateAddress(opts.Owner, nonceFactory)

	ledger, err := reputation.NewLedger(ledgerAddr, opts.Owner, opts.Bounds, notifier)
	if err != nil {
		return fmt.Errorf("deploy ledger: %w", err)
	}
	tmpl := market.NewTemplate(templateAddr, opts.Rules)
	f, err := factory.New(factory.Config{
		Address:        factoryAddr,
		Owner:          opts.Owner,
		Oracle:         opts.Oracle,
		Threshold:      opts.Threshold,
		AcceptedTokens: opts.AcceptedTokens,
		Deltas:         opts.Deltas,
	}, tmpl, ledger, notifier)
	if err != nil {
		return fmt.Errorf("deploy factory: %w", err)
	}
	if _, err := ledger.WhitelistFactory(opts.Owner, factoryAddr); err != nil {
		return fmt.Errorf("whitelist factory: %w", err)
	}

	p.ledger = ledger
	p.factory = f
	p.deployment = Deployment{
		Network:  opts.Network,
		Owner:    opts.Owner,
		Ledger:   ledgerAddr,
		Template: templateAddr,
		Factory:  factoryAddr,
	}
	return nil
}

func (p *Platform) restore(opts DeployOptions, state State, notifier model.Notifier) error {
	ledger, err := reputation.Restore(*state.Ledger, opts.Bounds, notifier)
	if err != nil {
		return err
	}
	tmpl := market.NewTemplate(state.Factory.Template, opts.Rules)
	f, err := factory.Restore(*state.Factory, opts.Deltas, opts.Oracle, tmpl, ledger, state.Markets, notifier)
	if err != nil {
		return err
	}
	if opts.Owner != (common.Address{}) && opts.Owner != ledger.Owner() {
		logger.Warn("configured owner differs from persisted owner, keeping persisted", "configured", opts.Owner.Hex(), "persisted", ledger.Owner().Hex())
	}

	p.ledger = ledger
	p.factory = f
	p.deployment = Deployment{
		Network:  opts.Network,
		Owner:    ledger.Owner(),
		Ledger:   ledger.Address(),
		Template: tmpl.Address(),
		Factory:  f.Address(),
		Restored: true,
	}
	return nil
}

func (p *Platform) Deployment() Deployment {
	d := p.deployment
	d.Markets = p.factory.Count()
	return d
}

func (p *Platform) Ledger() *reputation.Ledger { return p.ledger }
func (p *Platform) Factory() *factory.Factory  { return p.factory }

// --- Ledger ---

type LedgerInfo struct {
	Address common.Address    `json:"address"`
	Owner   common.Address    `json:"owner"`
	Bounds  reputation.Bounds `json:"bounds"`
	Writers []common.Address  `json:"writers"`
}

func (p *Platform) LedgerInfo() LedgerInfo {
	return LedgerInfo{
		Address: p.ledger.Address(),
		Owner:   p.ledger.Owner(),
		Bounds:  p.ledger.Bounds(),
		Writers: p.ledger.Writers(),
	}
}

type Reputation struct {
	Address   common.Address `json:"address"`
	Score     int64          `json:"score"`
	Threshold int64          `json:"creation_threshold"`
	CanCreate bool           `json:"can_create"`
}

func (p *Platform) Reputation(addr common.Address) Reputation {
	score := p.ledger.ScoreOf(addr)
	threshold := p.factory.Threshold()
	return Reputation{
		Address:   addr,
		Score:     score,
		Threshold: threshold,
		CanCreate: score >= threshold || addr == p.factory.Owner(),
	}
}

func (p *Platform) WhitelistFactory(ctx context.Context, caller, writer common.Address) (bool, error) {
	changed, err := p.ledger.WhitelistFactory(caller, writer)
	if err != nil {
		return false, p.reject(err)
	}
	if changed {
		p.persistLedger(ctx)
	}
	return changed, nil
}

func (p *Platform) RevokeFactory(ctx context.Context, caller, writer common.Address) (bool, error) {
	changed, err := p.ledger.RevokeFactory(caller, writer)
	if err != nil {
		return false, p.reject(err)
	}
	if changed {
		p.persistLedger(ctx)
	}
	return changed, nil
}

// --- Factory ---

func (p *Platform) FactoryInfo() factory.Info {
	return p.factory.Info()
}

func (p *Platform) SetCreationPolicy(ctx context.Context, caller common.Address, threshold int64) (int64, error) {
	prev, err := p.factory.SetCreationPolicy(caller, threshold)
	if err != nil {
		return 0, p.reject(err)
	}
	p.persistFactory(ctx)
	return prev, nil
}

func (p *Platform) AcceptToken(ctx context.Context, caller, token common.Address) (bool, error) {
	changed, err := p.factory.AcceptToken(caller, token)
	if err != nil {
		return false, p.reject(err)
	}
	if changed {
		p.persistFactory(ctx)
	}
	return changed, nil
}

func (p *Platform) RejectToken(ctx context.Context, caller, token common.Address) (bool, error) {
	changed, err := p.factory.RejectToken(caller, token)
	if err != nil {
		return false, p.reject(err)
	}
	if changed {
		p.persistFactory(ctx)
	}
	return changed, nil
}

// --- Markets ---

// MarketView is a market snapshot plus its implied odds.
type MarketView struct {
	market.Snapshot
	Odds market.Odds `json:"odds"`
}

func view(m *market.Market) MarketView {
	return MarketView{Snapshot: m.Snapshot(false), Odds: m.Odds()}
}

func (p *Platform) CreateMarket(ctx context.Context, caller common.Address, params factory.CreateParams) (MarketView, error) {
	m, err := p.factory.CreateMarket(ctx, caller, params, p.now())
	if err != nil {
		return MarketView{}, p.reject(err)
	}
	metrics.MarketsCreated.Inc()
	p.persistMarket(ctx, m)
	p.persistFactory(ctx)
	return view(m), nil
}

func (p *Platform) ListMarkets(offset, limit int) ([]MarketView, int) {
	markets := p.factory.Markets(offset, limit)
	out := make([]MarketView, 0, len(markets))
	for _, m := range markets {
		out = append(out, view(m))
	}
	return out, p.factory.Count()
}

func (p *Platform) GetMarket(id common.Address) (MarketView, error) {
	m, err := p.factory.Market(id)
	if err != nil {
		return MarketView{}, err
	}
	return view(m), nil
}

func (p *Platform) Position(id, holder common.Address) (market.Position, error) {
	m, err := p.factory.Market(id)
	if err != nil {
		return market.Position{}, err
	}
	return m.Position(holder), nil
}

// DepositResult reports minted shares and the caller's resulting position.
type DepositResult struct {
	Shares   *uint256.Int    `json:"shares"`
	Position market.Position `json:"position"`
}

func (p *Platform) Deposit(ctx context.Context, caller, id common.Address, outcome model.Outcome, amount *uint256.Int) (DepositResult, error) {
	m, err := p.factory.Market(id)
	if err != nil {
		return DepositResult{}, p.reject(err)
	}
	if amount == nil || amount.IsZero() {
		return DepositResult{}, p.reject(fmt.Errorf("deposit: %w", model.ErrInvalidAmount))
	}
	release, err := p.guard.Reserve(ctx, caller, amount)
	if err != nil {
		return DepositResult{}, err
	}
	shares, err := m.Deposit(caller, outcome, amount, p.now())
	if err != nil {
		release()
		return DepositResult{}, p.reject(err)
	}
	metrics.Deposits.WithLabelValues(string(outcome)).Inc()
	p.persistMarket(ctx, m)
	return DepositResult{Shares: shares, Position: m.Position(caller)}, nil
}

func (p *Platform) ProposeResolution(ctx context.Context, caller, id common.Address, outcome model.Outcome, evidenceRef string) (market.Proposal, error) {
	m, err := p.factory.Market(id)
	if err != nil {
		return market.Proposal{}, p.reject(err)
	}
	prop, err := m.ProposeResolution(caller, outcome, evidenceRef, p.now())
	if err != nil {
		return market.Proposal{}, p.reject(err)
	}
	p.persistMarket(ctx, m)
	return prop, nil
}

func (p *Platform) FinalizeResolution(ctx context.Context, caller, id common.Address) (MarketView, error) {
	m, err := p.factory.Market(id)
	if err != nil {
		return MarketView{}, p.reject(err)
	}
	state, err := m.FinalizeResolution(ctx, caller, p.now())
	if err != nil {
		return MarketView{}, p.reject(err)
	}
	v := view(m)
	metrics.Resolutions.WithLabelValues(string(state)).Inc()
	switch {
	case v.ReputationDelta > 0:
		metrics.ReputationAdjustments.WithLabelValues("up").Inc()
	case v.ReputationDelta < 0:
		metrics.ReputationAdjustments.WithLabelValues("down").Inc()
	default:
		metrics.ReputationAdjustments.WithLabelValues("none").Inc()
	}
	p.persistResolution(ctx, m)
	return v, nil
}

// ClaimResult is the payout and the holder's final position.
type ClaimResult struct {
	Payout   *uint256.Int    `json:"payout"`
	Position market.Position `json:"position"`
}

func (p *Platform) Claim(ctx context.Context, caller, id common.Address) (ClaimResult, error) {
	m, err := p.factory.Market(id)
	if err != nil {
		return ClaimResult{}, p.reject(err)
	}
	payout, err := m.Claim(caller)
	if err != nil {
		return ClaimResult{}, p.reject(err)
	}
	metrics.Claims.Inc()
	p.persistMarket(ctx, m)
	return ClaimResult{Payout: payout, Position: m.Position(caller)}, nil
}

// --- helpers ---

func (p *Platform) reject(err error) error {
	var de *model.Error
	if errors.As(err, &de) {
		metrics.Rejects.WithLabelValues(de.Code).Inc()
	}
	return err
}

// Snapshots are taken under persistMu so a slower writer can never overwrite
// a newer snapshot with an older one.
func (p *Platform) persistLedger(ctx context.Context) {
	p.persistMu.Lock()
	defer p.persistMu.Unlock()
	if !p.flushLocked(ctx) {
		metrics.PersistFailures.WithLabelValues("ledger").Inc()
		return
	}
	if err := p.store.SaveLedger(ctx, p.ledger.Snapshot()); err != nil {
		metrics.PersistFailures.WithLabelValues("ledger").Inc()
		logger.LogError(ctx, err, "persist ledger failed")
	}
}

func (p *Platform) persistFactory(ctx context.Context) {
	p.persistMu.Lock()
	defer p.persistMu.Unlock()
	if !p.flushLocked(ctx) {
		metrics.PersistFailures.WithLabelValues("factory").Inc()
		return
	}
	if err := p.store.SaveFactory(ctx, p.factory.Snapshot()); err != nil {
		metrics.PersistFailures.WithLabelValues("factory").Inc()
		logger.LogError(ctx, err, "persist factory failed")
	}
}

// persistMarket writes one market. Finalized markets go through the
// resolution path so their row never lands without the matching ledger.
func (p *Platform) persistMarket(ctx context.Context, m *market.Market) {
	if m.State().Terminal() {
		p.persistResolution(ctx, m)
		return
	}
	p.persistMu.Lock()
	defer p.persistMu.Unlock()
	if err := p.store.SaveMarket(ctx, m.Snapshot(true)); err != nil {
		metrics.PersistFailures.WithLabelValues("market").Inc()
		logger.LogError(ctx, err, "persist market failed", "market", m.ID().Hex())
	}
}

// persistResolution writes the market, factory and ledger a finalization
// touched in one store call. A failed write leaves the store at the previous
// consistent state; the market stays queued and is retried before any later
// factory or ledger write.
func (p *Platform) persistResolution(ctx context.Context, m *market.Market) {
	p.persistMu.Lock()
	defer p.persistMu.Unlock()
	if p.unsaved == nil {
		p.unsaved = make(map[common.Address]*market.Market)
	}
	p.unsaved[m.ID()] = m
	p.flushLocked(ctx)
}

func (p *Platform) flushLocked(ctx context.Context) bool {
	for id, m := range p.unsaved {
		if err := p.store.SaveResolution(ctx, m.Snapshot(true), p.factory.Snapshot(), p.ledger.Snapshot()); err != nil {
			metrics.PersistFailures.WithLabelValues("resolution").Inc()
			logger.LogError(ctx, err, "persist resolution failed", "market", id.Hex(), "pending", len(p.unsaved))
			return false
		}
		delete(p.unsaved, id)
	}
	return true
}
