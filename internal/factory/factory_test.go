package factory

import (
	"context"
	"testing"
	"time"

	"github.com/GoPolymarket/polyfactory/internal/market"
	"github.com/GoPolymarket/polyfactory/internal/model"
	"github.com/GoPolymarket/polyfactory/internal/reputation"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	alice   = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob     = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol   = common.HexToAddress("0x0000000000000000000000000000000000000ca1")
	oracle  = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	usdc    = common.HexToAddress("0x0000000000000000000000000000000000005dc0")
	dai     = common.HexToAddress("0x0000000000000000000000000000000000000da1")
	now     = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	closeAt = now.Add(48 * time.Hour)
)

type fixture struct {
	ledger  *reputation.Ledger
	factory *Factory
}

func newFixture(t *testing.T, threshold int64) fixture {
	t.Helper()
	ledgerAddr := crypto.CreateAddress(owner, 0)
	tmplAddr := crypto.CreateAddress(owner, 1)
	factoryAddr := crypto.CreateAddress(owner, 2)

	l, err := reputation.NewLedger(ledgerAddr, owner, reputation.Bounds{Min: -100, Max: 1000}, nil)
	require.NoError(t, err)
	tmpl := market.NewTemplate(tmplAddr, market.Rules{})
	f, err := New(Config{
		Address:        factoryAddr,
		Owner:          owner,
		Oracle:         oracle,
		Threshold:      threshold,
		AcceptedTokens: []common.Address{usdc},
		Deltas:         DefaultDeltaPolicy(),
	}, tmpl, l, nil)
	require.NoError(t, err)
	_, err = l.WhitelistFactory(owner, factoryAddr)
	require.NoError(t, err)
	return fixture{ledger: l, factory: f}
}

// seed gives identity a score by routing a write through a throwaway writer.
func (fx fixture) seed(t *testing.T, identity common.Address, score int64) {
	t.Helper()
	writer := common.HexToAddress("0x5eed")
	_, err := fx.ledger.WhitelistFactory(owner, writer)
	require.NoError(t, err)
	_, err = fx.ledger.AdjustReputation(writer, identity, score-fx.ledger.ScoreOf(identity))
	require.NoError(t, err)
	_, err = fx.ledger.RevokeFactory(owner, writer)
	require.NoError(t, err)
}

func params(question string) CreateParams {
	return CreateParams{Question: question, CollateralToken: usdc, ResolutionDeadline: closeAt}
}

func TestCreateMarketEnforcesThreshold(t *testing.T) {
	fx := newFixture(t, 50)
	ctx := context.Background()

	fx.seed(t, alice, 49)
	_, err := fx.factory.CreateMarket(ctx, alice, params("q"), now)
	assert.ErrorIs(t, err, model.ErrReputationTooLow)
	assert.Equal(t, 0, fx.factory.Count())

	fx.seed(t, alice, 50)
	m, err := fx.factory.CreateMarket(ctx, alice, params("q"), now)
	require.NoError(t, err, "score equal to threshold may create")
	assert.Equal(t, alice, m.Creator())
	assert.Equal(t, oracle, m.Resolver(), "resolver defaults to the oracle")

	_, err = fx.factory.CreateMarket(ctx, owner, params("owner market"), now)
	assert.NoError(t, err, "owner bypasses the threshold")
	assert.Equal(t, 2, fx.factory.Count())
}

func TestCreatorCannotResolveOwnMarket(t *testing.T) {
	fx := newFixture(t, 0)
	ctx := context.Background()

	p := params("q")
	p.Resolver = alice
	_, err := fx.factory.CreateMarket(ctx, alice, p, now)
	assert.ErrorIs(t, err, model.ErrSelfResolution)

	_, err = fx.factory.CreateMarket(ctx, oracle, params("q"), now)
	assert.ErrorIs(t, err, model.ErrSelfResolution, "the oracle cannot default to itself")

	p.Resolver = bob
	m, err := fx.factory.CreateMarket(ctx, alice, p, now)
	require.NoError(t, err)
	assert.Equal(t, bob, m.Resolver())
	assert.Equal(t, 1, fx.factory.Count())
}

func TestOwnerIsDefaultResolverWithoutOracle(t *testing.T) {
	l, err := reputation.NewLedger(crypto.CreateAddress(owner, 0), owner, reputation.Bounds{Min: -100, Max: 1000}, nil)
	require.NoError(t, err)
	f, err := New(Config{
		Address: crypto.CreateAddress(owner, 2),
		Owner:   owner,
		Deltas:  DefaultDeltaPolicy(),
	}, market.NewTemplate(crypto.CreateAddress(owner, 1), market.Rules{}), l, nil)
	require.NoError(t, err)
	assert.Equal(t, owner, f.DefaultResolver())

	m, err := f.CreateMarket(context.Background(), alice, params("q"), now)
	require.NoError(t, err)
	assert.Equal(t, owner, m.Resolver())

	_, err = f.CreateMarket(context.Background(), owner, params("q"), now)
	assert.ErrorIs(t, err, model.ErrSelfResolution)
}

func TestSelfResolvedMarketsEarnNothing(t *testing.T) {
	fx := newFixture(t, 100)
	ctx := context.Background()
	fx.seed(t, alice, 100)

	for i := 0; i < 10; i++ {
		m, err := fx.factory.CreateMarket(ctx, alice, params("empty"), now)
		require.NoError(t, err)
		_, err = m.ProposeResolution(alice, model.OutcomeYes, "", now)
		require.NoError(t, err)

		_, err = m.FinalizeResolution(ctx, alice, now)
		assert.ErrorIs(t, err, model.ErrNotResolver)

		state, err := m.FinalizeResolution(ctx, oracle, now)
		require.NoError(t, err)
		assert.Equal(t, model.StateResolved, state)
		assert.Equal(t, int64(0), m.Snapshot(false).ReputationDelta, "nobody else funded the pool")
	}
	assert.Equal(t, int64(100), fx.ledger.ScoreOf(alice))

	// collateral from the creator alone does not count as funding
	m, err := fx.factory.CreateMarket(ctx, alice, params("self funded"), now)
	require.NoError(t, err)
	_, err = m.Deposit(alice, model.OutcomeYes, uint256.NewInt(500), now)
	require.NoError(t, err)
	_, err = m.ProposeResolution(alice, model.OutcomeYes, "", now)
	require.NoError(t, err)
	_, err = m.FinalizeResolution(ctx, oracle, now)
	require.NoError(t, err)
	assert.Equal(t, int64(100), fx.ledger.ScoreOf(alice))

	// a stale self-proposal still voids once the grace period runs out
	m, err = fx.factory.CreateMarket(ctx, alice, params("stale"), now)
	require.NoError(t, err)
	_, err = m.ProposeResolution(alice, model.OutcomeYes, "", now)
	require.NoError(t, err)
	state, err := m.FinalizeResolution(ctx, alice, closeAt)
	require.NoError(t, err)
	assert.Equal(t, model.StateVoid, state)
	assert.Equal(t, int64(85), fx.ledger.ScoreOf(alice))
}

func TestCreateMarketValidatesParams(t *testing.T) {
	fx := newFixture(t, 0)
	ctx := context.Background()

	cases := []struct {
		name string
		p    CreateParams
		want error
	}{
		{"empty question", CreateParams{Question: "  ", CollateralToken: usdc, ResolutionDeadline: closeAt}, model.ErrEmptyQuestion},
		{"deadline now", CreateParams{Question: "q", CollateralToken: usdc, ResolutionDeadline: now}, model.ErrInvalidDeadline},
		{"deadline past", CreateParams{Question: "q", CollateralToken: usdc, ResolutionDeadline: now.Add(-time.Second)}, model.ErrInvalidDeadline},
		{"zero token", CreateParams{Question: "q", ResolutionDeadline: closeAt}, model.ErrInvalidAddress},
		{"token not accepted", CreateParams{Question: "q", CollateralToken: dai, ResolutionDeadline: closeAt}, model.ErrTokenRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fx.factory.CreateMarket(ctx, alice, tc.p, now)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Equal(t, 0, fx.factory.Count())
}

func TestMarketAddressesFollowCreationNonce(t *testing.T) {
	fx := newFixture(t, 0)
	ctx := context.Background()

	first, err := fx.factory.CreateMarket(ctx, alice, params("a"), now)
	require.NoError(t, err)
	second, err := fx.factory.CreateMarket(ctx, bob, params("b"), now)
	require.NoError(t, err)

	assert.Equal(t, crypto.CreateAddress(fx.factory.Address(), 0), first.ID())
	assert.Equal(t, crypto.CreateAddress(fx.factory.Address(), 1), second.ID())
	assert.Same(t, fx.factory.Template(), first.Template())

	page := fx.factory.Markets(0, 1)
	require.Len(t, page, 1)
	assert.Equal(t, first.ID(), page[0].ID())
	assert.Len(t, fx.factory.Markets(1, 0), 1)
	assert.Empty(t, fx.factory.Markets(5, 10))

	got, err := fx.factory.Market(second.ID())
	require.NoError(t, err)
	assert.Same(t, second, got)
	_, err = fx.factory.Market(common.HexToAddress("0xdead"))
	assert.ErrorIs(t, err, model.ErrMarketNotFound)
}

func TestCleanResolutionRewardsCreator(t *testing.T) {
	fx := newFixture(t, 50)
	ctx := context.Background()
	fx.seed(t, alice, 60)

	m, err := fx.factory.CreateMarket(ctx, alice, params("Will ETH close above 5k?"), now)
	require.NoError(t, err)

	_, err = m.Deposit(bob, model.OutcomeYes, uint256.NewInt(100), now)
	require.NoError(t, err)
	_, err = m.Deposit(carol, model.OutcomeNo, uint256.NewInt(50), now)
	require.NoError(t, err)

	_, err = m.ProposeResolution(alice, model.OutcomeYes, "ipfs://evidence", now.Add(time.Hour))
	require.NoError(t, err)
	state, err := m.FinalizeResolution(ctx, oracle, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, model.StateResolved, state)
	assert.Equal(t, int64(70), fx.ledger.ScoreOf(alice))

	payout, err := m.Claim(bob)
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(150), payout)
	_, err = m.Claim(carol)
	assert.ErrorIs(t, err, model.ErrNothingToClaim)
}

func TestAbandonedMarketPenalizesCreator(t *testing.T) {
	fx := newFixture(t, 0)
	ctx := context.Background()

	m, err := fx.factory.CreateMarket(ctx, alice, params("abandoned"), now)
	require.NoError(t, err)
	_, err = m.Deposit(bob, model.OutcomeYes, uint256.NewInt(40), now)
	require.NoError(t, err)

	_, err = m.ProposeResolution(carol, model.OutcomeYes, "", now)
	assert.ErrorIs(t, err, model.ErrDeadlineNotReached)

	p, err := m.ProposeResolution(carol, model.OutcomeYes, "", closeAt)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeInvalid, p.Outcome)

	state, err := m.FinalizeResolution(ctx, carol, closeAt)
	require.NoError(t, err)
	assert.Equal(t, model.StateVoid, state)
	assert.Equal(t, int64(-15), fx.ledger.ScoreOf(alice))

	refund, err := m.Claim(bob)
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(40), refund)
}

func TestReportResolutionIsScopedToDeployedMarkets(t *testing.T) {
	fx := newFixture(t, 0)
	ctx := context.Background()

	for _, outcome := range []model.Outcome{model.OutcomeYes, model.OutcomeNo, model.OutcomeInvalid} {
		for _, accurate := range []bool{true, false} {
			r := market.Report{Outcome: outcome, Accurate: accurate, Confirmer: oracle, Funded: true}
			_, err := fx.factory.ReportResolution(ctx, carol, r)
			assert.ErrorIs(t, err, model.ErrNotOwnedMarket)
		}
	}
	assert.Equal(t, int64(0), fx.ledger.ScoreOf(carol))

	m, err := fx.factory.CreateMarket(ctx, alice, params("q"), now)
	require.NoError(t, err)
	delta, err := fx.factory.ReportResolution(ctx, m.ID(), market.Report{Outcome: model.OutcomeNo, Confirmer: oracle, Funded: true})
	require.NoError(t, err)
	assert.Equal(t, int64(-5), delta)

	_, err = fx.factory.ReportResolution(ctx, m.ID(), market.Report{Outcome: model.OutcomeYes, Accurate: true, Confirmer: oracle, Funded: true})
	assert.ErrorIs(t, err, model.ErrAlreadyReported)
	assert.Equal(t, int64(-5), fx.ledger.ScoreOf(alice))
}

func TestRevokedFactoryRollsBackResolution(t *testing.T) {
	fx := newFixture(t, 0)
	ctx := context.Background()

	m, err := fx.factory.CreateMarket(ctx, alice, params("q"), now)
	require.NoError(t, err)
	_, err = m.Deposit(bob, model.OutcomeYes, uint256.NewInt(10), now)
	require.NoError(t, err)
	_, err = m.ProposeResolution(alice, model.OutcomeYes, "", now)
	require.NoError(t, err)

	_, err = fx.ledger.RevokeFactory(owner, fx.factory.Address())
	require.NoError(t, err)

	state, err := m.FinalizeResolution(ctx, oracle, now)
	assert.ErrorIs(t, err, model.ErrNotWriter)
	assert.Equal(t, model.StateResolving, state)
	assert.Equal(t, model.StateResolving, m.State())
	assert.Equal(t, int64(0), fx.ledger.ScoreOf(alice))

	_, err = fx.ledger.WhitelistFactory(owner, fx.factory.Address())
	require.NoError(t, err)
	state, err = m.FinalizeResolution(ctx, oracle, now)
	require.NoError(t, err)
	assert.Equal(t, model.StateResolved, state)
	assert.Equal(t, int64(10), fx.ledger.ScoreOf(alice))
}

func TestSetCreationPolicy(t *testing.T) {
	fx := newFixture(t, 0)

	_, err := fx.factory.SetCreationPolicy(alice, 10)
	assert.ErrorIs(t, err, model.ErrNotOwner)

	_, err = fx.factory.SetCreationPolicy(owner, 1001)
	assert.ErrorIs(t, err, model.ErrInvalidPolicy)

	prev, err := fx.factory.SetCreationPolicy(owner, 25)
	require.NoError(t, err)
	assert.Equal(t, int64(0), prev)
	assert.Equal(t, int64(25), fx.factory.Threshold())

	_, err = fx.factory.CreateMarket(context.Background(), alice, params("q"), now)
	assert.ErrorIs(t, err, model.ErrReputationTooLow)
}

func TestAcceptedTokens(t *testing.T) {
	fx := newFixture(t, 0)

	_, err := fx.factory.AcceptToken(alice, dai)
	assert.ErrorIs(t, err, model.ErrNotOwner)

	changed, err := fx.factory.AcceptToken(owner, dai)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, fx.factory.AcceptsToken(dai))

	changed, err = fx.factory.RejectToken(owner, usdc)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []common.Address{dai}, fx.factory.AcceptedTokens())

	_, err = fx.factory.CreateMarket(context.Background(), alice, params("q"), now)
	assert.ErrorIs(t, err, model.ErrTokenRejected)
}

func TestDeltaPolicyClamps(t *testing.T) {
	p := DeltaPolicy{Clean: 80, Disputed: -5, Void: -90, MaxAbs: 50}
	report := func(o model.Outcome, accurate bool) market.Report {
		return market.Report{Outcome: o, Accurate: accurate, Confirmer: oracle, Funded: true}
	}
	assert.Equal(t, int64(50), p.Delta(report(model.OutcomeYes, true), alice))
	assert.Equal(t, int64(-5), p.Delta(report(model.OutcomeNo, false), alice))
	assert.Equal(t, int64(-50), p.Delta(report(model.OutcomeInvalid, false), alice))
	assert.Equal(t, int64(-50), p.Delta(report(model.OutcomeInvalid, true), alice))
}

func TestDeltaPolicyWithholdsRewardFromSelfDealing(t *testing.T) {
	p := DefaultDeltaPolicy()
	clean := market.Report{Outcome: model.OutcomeYes, Accurate: true, Confirmer: oracle, Funded: true}
	assert.Equal(t, int64(10), p.Delta(clean, alice))

	self := clean
	self.Confirmer = alice
	assert.Equal(t, int64(0), p.Delta(self, alice))

	empty := clean
	empty.Funded = false
	assert.Equal(t, int64(0), p.Delta(empty, alice))

	void := market.Report{Outcome: model.OutcomeInvalid, Confirmer: alice}
	assert.Equal(t, int64(-15), p.Delta(void, alice), "penalties still apply")
}

func TestSnapshotRestore(t *testing.T) {
	fx := newFixture(t, 0)
	ctx := context.Background()

	m, err := fx.factory.CreateMarket(ctx, alice, params("q"), now)
	require.NoError(t, err)
	_, err = fx.factory.CreateMarket(ctx, bob, params("r"), now)
	require.NoError(t, err)
	_, err = m.ProposeResolution(alice, model.OutcomeNo, "", now)
	require.NoError(t, err)
	_, err = m.FinalizeResolution(ctx, oracle, now)
	require.NoError(t, err)

	var markets []market.Snapshot
	for _, mk := range fx.factory.Markets(0, 0) {
		markets = append(markets, mk.Snapshot(true))
	}
	restored, err := Restore(fx.factory.Snapshot(), DefaultDeltaPolicy(), oracle, fx.factory.Template(), fx.ledger, markets, nil)
	require.NoError(t, err)

	assert.Equal(t, fx.factory.Snapshot(), restored.Snapshot())
	assert.Equal(t, fx.factory.Info(), restored.Info())

	_, err = restored.ReportResolution(ctx, m.ID(), market.Report{Outcome: model.OutcomeNo, Accurate: true, Confirmer: oracle})
	assert.ErrorIs(t, err, model.ErrAlreadyReported)

	next, err := restored.CreateMarket(ctx, carol, params("s"), now)
	require.NoError(t, err)
	assert.Equal(t, crypto.CreateAddress(restored.Address(), 2), next.ID())

	_, err = Restore(fx.factory.Snapshot(), DefaultDeltaPolicy(), oracle, fx.factory.Template(), fx.ledger, markets[:1], nil)
	assert.Error(t, err)
}
