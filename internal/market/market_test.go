package market

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/GoPolymarket/polyfactory/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	creator  = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	resolver = common.HexToAddress("0x00000000000000000000000000000000000000c2")
	alice    = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	stranger = common.HexToAddress("0x0000000000000000000000000000000000000ccc")

	start    = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	deadline = start.Add(24 * time.Hour)
)

type fakeReporter struct {
	reports []Report
	err     error
}

func (f *fakeReporter) ReportResolution(_ context.Context, _ common.Address, r Report) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.reports = append(f.reports, r)
	if r.Accurate {
		return 10, nil
	}
	return -15, nil
}

func newTestMarket(t *testing.T, rules Rules) (*Market, *fakeReporter) {
	t.Helper()
	rep := &fakeReporter{}
	tmpl := NewTemplate(common.HexToAddress("0x7e3"), rules)
	m := tmpl.Instantiate(Init{
		ID:                 common.HexToAddress("0x3a"),
		Factory:            common.HexToAddress("0xfac"),
		Creator:            creator,
		Resolver:           resolver,
		CollateralToken:    common.HexToAddress("0x05dc"),
		Question:           "Will it rain?",
		ResolutionDeadline: deadline,
		CreatedAt:          start,
		Reporter:           rep,
	})
	return m, rep
}

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func deposit(t *testing.T, m *Market, who common.Address, o model.Outcome, amount uint64) {
	t.Helper()
	_, err := m.Deposit(who, o, u(amount), start)
	require.NoError(t, err)
}

func TestDepositMintsSharesOneToOne(t *testing.T) {
	m, _ := newTestMarket(t, Rules{})

	shares, err := m.Deposit(alice, model.OutcomeYes, u(100), start)
	require.NoError(t, err)
	assert.Equal(t, u(100), shares)

	deposit(t, m, alice, model.OutcomeNo, 7)
	deposit(t, m, bob, model.OutcomeNo, 50)

	s := m.Snapshot(false)
	assert.Equal(t, u(157), s.TotalPool)
	assert.Equal(t, u(100), s.YesShares)
	assert.Equal(t, u(57), s.NoShares)

	pos := m.Position(alice)
	assert.Equal(t, u(100), pos.Yes)
	assert.Equal(t, u(7), pos.No)
	assert.True(t, m.Position(stranger).Yes.IsZero())
}

func TestDepositRejections(t *testing.T) {
	m, _ := newTestMarket(t, Rules{MinDeposit: *u(10)})

	_, err := m.Deposit(alice, model.OutcomeInvalid, u(10), start)
	assert.ErrorIs(t, err, model.ErrInvalidOutcome)

	_, err = m.Deposit(alice, model.OutcomeYes, u(0), start)
	assert.ErrorIs(t, err, model.ErrInvalidAmount)

	_, err = m.Deposit(alice, model.OutcomeYes, nil, start)
	assert.ErrorIs(t, err, model.ErrInvalidAmount)

	_, err = m.Deposit(alice, model.OutcomeYes, u(9), start)
	assert.ErrorIs(t, err, model.ErrInvalidAmount)

	_, err = m.Deposit(alice, model.OutcomeYes, u(10), start)
	assert.NoError(t, err, "deposit equal to the minimum is accepted")

	_, err = m.Deposit(alice, model.OutcomeYes, u(10), deadline)
	assert.ErrorIs(t, err, model.ErrTradingClosed)

	_, err = m.ProposeResolution(creator, model.OutcomeYes, "", start)
	require.NoError(t, err)
	_, err = m.Deposit(alice, model.OutcomeYes, u(10), start)
	assert.ErrorIs(t, err, model.ErrTradingClosed)

	assert.Equal(t, u(10), m.Snapshot(false).TotalPool)
}

func TestDepositOverflowLeavesPoolUnchanged(t *testing.T) {
	m, _ := newTestMarket(t, Rules{})
	ceiling := new(uint256.Int).SetAllOne()

	_, err := m.Deposit(alice, model.OutcomeYes, ceiling, start)
	require.NoError(t, err)
	_, err = m.Deposit(bob, model.OutcomeNo, u(1), start)
	assert.ErrorIs(t, err, model.ErrInvalidAmount)
	assert.Equal(t, ceiling, m.Snapshot(false).TotalPool)
	assert.True(t, m.Position(bob).No.IsZero())
}

func TestProposeResolutionPermissions(t *testing.T) {
	t.Run("stranger before deadline", func(t *testing.T) {
		m, _ := newTestMarket(t, Rules{})
		_, err := m.ProposeResolution(stranger, model.OutcomeYes, "", start)
		assert.ErrorIs(t, err, model.ErrDeadlineNotReached)
		assert.Equal(t, model.StateOpen, m.State())
	})

	t.Run("stranger after deadline is forced to invalid", func(t *testing.T) {
		m, _ := newTestMarket(t, Rules{})
		p, err := m.ProposeResolution(stranger, model.OutcomeYes, "ipfs://x", deadline)
		require.NoError(t, err)
		assert.Equal(t, model.OutcomeInvalid, p.Outcome)
		assert.Equal(t, model.StateResolving, m.State())
	})

	t.Run("creator and resolver any time", func(t *testing.T) {
		for _, who := range []common.Address{creator, resolver} {
			m, _ := newTestMarket(t, Rules{})
			p, err := m.ProposeResolution(who, model.OutcomeNo, "", start)
			require.NoError(t, err)
			assert.Equal(t, model.OutcomeNo, p.Outcome)
			assert.Equal(t, who, p.Proposer)
		}
	})

	t.Run("second proposal", func(t *testing.T) {
		m, _ := newTestMarket(t, Rules{})
		_, err := m.ProposeResolution(creator, model.OutcomeYes, "", start)
		require.NoError(t, err)
		_, err = m.ProposeResolution(resolver, model.OutcomeNo, "", start)
		assert.ErrorIs(t, err, model.ErrAlreadyProposed)
	})

	t.Run("resolver replaces a stranger's fallback proposal", func(t *testing.T) {
		m, _ := newTestMarket(t, Rules{ConfirmationGrace: time.Hour})
		_, err := m.ProposeResolution(stranger, model.OutcomeYes, "", deadline)
		require.NoError(t, err)
		_, err = m.ProposeResolution(bob, model.OutcomeNo, "", deadline)
		assert.ErrorIs(t, err, model.ErrAlreadyProposed, "only the creator or resolver may replace it")

		p, err := m.ProposeResolution(resolver, model.OutcomeNo, "", deadline.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, model.OutcomeNo, p.Outcome)
		assert.Equal(t, resolver, p.Proposer)

		_, err = m.ProposeResolution(stranger, model.OutcomeInvalid, "", deadline.Add(2*time.Minute))
		assert.ErrorIs(t, err, model.ErrAlreadyProposed)
	})

	t.Run("bad outcome", func(t *testing.T) {
		m, _ := newTestMarket(t, Rules{})
		_, err := m.ProposeResolution(creator, model.Outcome("MAYBE"), "", start)
		assert.ErrorIs(t, err, model.ErrInvalidOutcome)
	})
}

func TestFinalizeByResolverReportsAccurate(t *testing.T) {
	m, rep := newTestMarket(t, Rules{})
	_, err := m.ProposeResolution(creator, model.OutcomeYes, "", start)
	require.NoError(t, err)

	_, err = m.FinalizeResolution(context.Background(), creator, start)
	assert.ErrorIs(t, err, model.ErrNotResolver)
	assert.Empty(t, rep.reports)

	state, err := m.FinalizeResolution(context.Background(), resolver, start)
	require.NoError(t, err)
	assert.Equal(t, model.StateResolved, state)
	require.Len(t, rep.reports, 1)
	assert.Equal(t, Report{Outcome: model.OutcomeYes, Accurate: true, Confirmer: resolver}, rep.reports[0])

	s := m.Snapshot(false)
	assert.Equal(t, model.OutcomeYes, s.Outcome)
	assert.Equal(t, int64(10), s.ReputationDelta)
	require.NotNil(t, s.FinalizedAt)
}

func TestReportFlagsOutsideFunding(t *testing.T) {
	finalize := func(t *testing.T, depositors ...common.Address) Report {
		t.Helper()
		m, rep := newTestMarket(t, Rules{})
		for _, who := range depositors {
			deposit(t, m, who, model.OutcomeYes, 5)
		}
		_, err := m.ProposeResolution(creator, model.OutcomeYes, "", start)
		require.NoError(t, err)
		_, err = m.FinalizeResolution(context.Background(), resolver, start)
		require.NoError(t, err)
		require.Len(t, rep.reports, 1)
		return rep.reports[0]
	}

	assert.False(t, finalize(t).Funded)
	assert.False(t, finalize(t, creator).Funded)
	assert.True(t, finalize(t, creator, alice).Funded)
}

func TestResolverConfirmsWithinGrace(t *testing.T) {
	m, rep := newTestMarket(t, Rules{ConfirmationGrace: time.Hour})
	deposit(t, m, alice, model.OutcomeYes, 10)
	_, err := m.ProposeResolution(creator, model.OutcomeYes, "", deadline.Add(10*time.Minute))
	require.NoError(t, err)

	_, err = m.FinalizeResolution(context.Background(), stranger, deadline.Add(20*time.Minute))
	assert.ErrorIs(t, err, model.ErrNotResolver, "nobody can void while the resolver still has time")

	state, err := m.FinalizeResolution(context.Background(), resolver, deadline.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, model.StateResolved, state)
	assert.True(t, rep.reports[0].Accurate)
}

func TestFinalizeVoidPaths(t *testing.T) {
	t.Run("confirmed invalid", func(t *testing.T) {
		m, rep := newTestMarket(t, Rules{})
		_, err := m.ProposeResolution(resolver, model.OutcomeInvalid, "", start)
		require.NoError(t, err)
		state, err := m.FinalizeResolution(context.Background(), resolver, start)
		require.NoError(t, err)
		assert.Equal(t, model.StateVoid, state)
		assert.False(t, rep.reports[0].Accurate)
	})

	t.Run("open market before grace", func(t *testing.T) {
		m, rep := newTestMarket(t, Rules{ConfirmationGrace: time.Hour})
		_, err := m.FinalizeResolution(context.Background(), stranger, deadline.Add(30*time.Minute))
		assert.ErrorIs(t, err, model.ErrNotResolving)
		assert.Empty(t, rep.reports)
	})

	t.Run("open market after grace", func(t *testing.T) {
		m, rep := newTestMarket(t, Rules{ConfirmationGrace: time.Hour})
		state, err := m.FinalizeResolution(context.Background(), stranger, deadline.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, model.StateVoid, state)
		assert.Equal(t, model.OutcomeInvalid, rep.reports[0].Outcome)
	})

	t.Run("unconfirmed proposal after grace", func(t *testing.T) {
		m, rep := newTestMarket(t, Rules{})
		_, err := m.ProposeResolution(creator, model.OutcomeYes, "", start)
		require.NoError(t, err)
		state, err := m.FinalizeResolution(context.Background(), stranger, deadline)
		require.NoError(t, err)
		assert.Equal(t, model.StateVoid, state)
		assert.False(t, rep.reports[0].Accurate)
	})
}

func TestFinalizeReportFailureLeavesMarketUntouched(t *testing.T) {
	m, rep := newTestMarket(t, Rules{})
	deposit(t, m, alice, model.OutcomeYes, 10)
	_, err := m.ProposeResolution(creator, model.OutcomeYes, "", start)
	require.NoError(t, err)
	before := m.Snapshot(true)

	rep.err = model.ErrNotWriter
	state, err := m.FinalizeResolution(context.Background(), resolver, start)
	assert.ErrorIs(t, err, model.ErrNotWriter)
	assert.Equal(t, model.StateResolving, state)
	assert.Equal(t, before, m.Snapshot(true))

	_, err = m.Claim(alice)
	assert.ErrorIs(t, err, model.ErrNotFinal)

	rep.err = nil
	state, err = m.FinalizeResolution(context.Background(), resolver, start)
	require.NoError(t, err)
	assert.Equal(t, model.StateResolved, state)
}

func TestTerminalStatesAreFinal(t *testing.T) {
	m, rep := newTestMarket(t, Rules{})
	_, err := m.ProposeResolution(creator, model.OutcomeNo, "", start)
	require.NoError(t, err)
	_, err = m.FinalizeResolution(context.Background(), resolver, start)
	require.NoError(t, err)

	for _, at := range []time.Time{start, deadline, deadline.Add(time.Hour)} {
		for _, who := range []common.Address{creator, resolver, stranger} {
			_, err := m.ProposeResolution(who, model.OutcomeYes, "", at)
			assert.ErrorIs(t, err, model.ErrAlreadyResolved)
			state, err := m.FinalizeResolution(context.Background(), who, at)
			assert.ErrorIs(t, err, model.ErrAlreadyResolved)
			assert.Equal(t, model.StateResolved, state)
			_, err = m.Deposit(who, model.OutcomeYes, u(1), at)
			assert.ErrorIs(t, err, model.ErrTradingClosed)
		}
	}
	assert.Len(t, rep.reports, 1)
	assert.Equal(t, model.OutcomeNo, m.Snapshot(false).Outcome)
}

func TestClaimWinnerTakesPool(t *testing.T) {
	m, _ := newTestMarket(t, Rules{})
	deposit(t, m, alice, model.OutcomeYes, 100)
	deposit(t, m, bob, model.OutcomeNo, 50)

	_, err := m.Claim(alice)
	assert.ErrorIs(t, err, model.ErrNotFinal)

	_, err = m.ProposeResolution(creator, model.OutcomeYes, "", start)
	require.NoError(t, err)
	_, err = m.FinalizeResolution(context.Background(), resolver, start)
	require.NoError(t, err)

	payout, err := m.Claim(alice)
	require.NoError(t, err)
	assert.Equal(t, u(150), payout)

	_, err = m.Claim(alice)
	assert.ErrorIs(t, err, model.ErrNothingToClaim)

	_, err = m.Claim(bob)
	var derr *model.Error
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, model.KindExhausted, derr.Kind)

	s := m.Snapshot(false)
	assert.Equal(t, u(150), s.PaidOut)
	assert.True(t, s.Remaining.IsZero())
	assert.Equal(t, u(150), m.Position(alice).Claimed)
}

func TestClaimRefundsWhenNobodyWon(t *testing.T) {
	m, _ := newTestMarket(t, Rules{})
	deposit(t, m, alice, model.OutcomeNo, 30)
	deposit(t, m, bob, model.OutcomeNo, 12)

	_, err := m.ProposeResolution(resolver, model.OutcomeYes, "", start)
	require.NoError(t, err)
	_, err = m.FinalizeResolution(context.Background(), resolver, start)
	require.NoError(t, err)

	payout, err := m.Claim(alice)
	require.NoError(t, err)
	assert.Equal(t, u(30), payout)
	payout, err = m.Claim(bob)
	require.NoError(t, err)
	assert.Equal(t, u(12), payout)
}

func TestClaimRefundsOnVoid(t *testing.T) {
	m, _ := newTestMarket(t, Rules{})
	deposit(t, m, alice, model.OutcomeYes, 30)
	deposit(t, m, alice, model.OutcomeNo, 5)
	deposit(t, m, bob, model.OutcomeNo, 12)

	_, err := m.FinalizeResolution(context.Background(), stranger, deadline)
	require.NoError(t, err)

	payout, err := m.Claim(alice)
	require.NoError(t, err)
	assert.Equal(t, u(35), payout)

	_, err = m.Claim(stranger)
	assert.ErrorIs(t, err, model.ErrNothingToClaim)
}

func TestClaimsConserveCollateral(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	holders := []common.Address{alice, bob, creator, resolver, stranger}

	for round := 0; round < 50; round++ {
		m, _ := newTestMarket(t, Rules{})
		var deposited uint64
		for i := 0; i < 1+rng.Intn(20); i++ {
			amount := uint64(1 + rng.Intn(1000))
			side := model.OutcomeYes
			if rng.Intn(2) == 0 {
				side = model.OutcomeNo
			}
			deposit(t, m, holders[rng.Intn(len(holders))], side, amount)
			deposited += amount
		}
		require.Equal(t, u(deposited), m.Snapshot(false).TotalPool)

		outcome := []model.Outcome{model.OutcomeYes, model.OutcomeNo, model.OutcomeInvalid}[rng.Intn(3)]
		_, err := m.ProposeResolution(resolver, outcome, "", start)
		require.NoError(t, err)
		_, err = m.FinalizeResolution(context.Background(), resolver, start)
		require.NoError(t, err)

		paid := new(uint256.Int)
		for _, h := range holders {
			payout, err := m.Claim(h)
			if err != nil {
				require.ErrorIs(t, err, model.ErrNothingToClaim)
				continue
			}
			paid.Add(paid, payout)
		}
		s := m.Snapshot(false)
		assert.True(t, paid.Cmp(u(deposited)) <= 0, "round %d paid %s of %d", round, paid.Dec(), deposited)
		assert.Equal(t, paid, s.PaidOut)
		assert.Equal(t, new(uint256.Int).Sub(u(deposited), paid), s.Remaining)
		if outcome == model.OutcomeInvalid {
			assert.True(t, s.Remaining.IsZero(), "void refunds everything")
		}
	}
}

func TestOdds(t *testing.T) {
	m, _ := newTestMarket(t, Rules{})
	odds := m.Odds()
	assert.True(t, odds.Yes.Equal(decimal.NewFromFloat(0.5)))

	deposit(t, m, alice, model.OutcomeYes, 75)
	deposit(t, m, bob, model.OutcomeNo, 25)
	odds = m.Odds()
	assert.True(t, odds.Yes.Equal(decimal.NewFromFloat(0.75)), odds.Yes.String())
	assert.True(t, odds.No.Equal(decimal.NewFromFloat(0.25)), odds.No.String())
}

func TestSnapshotRestore(t *testing.T) {
	m, _ := newTestMarket(t, Rules{})
	deposit(t, m, alice, model.OutcomeYes, 100)
	deposit(t, m, bob, model.OutcomeNo, 50)
	_, err := m.ProposeResolution(creator, model.OutcomeYes, "", start)
	require.NoError(t, err)
	_, err = m.FinalizeResolution(context.Background(), resolver, start)
	require.NoError(t, err)
	_, err = m.Claim(alice)
	require.NoError(t, err)

	snap := m.Snapshot(true)
	restored, err := m.Template().Restore(snap, &fakeReporter{}, nil)
	require.NoError(t, err)
	assert.Equal(t, snap, restored.Snapshot(true))

	_, err = restored.Claim(alice)
	assert.ErrorIs(t, err, model.ErrNothingToClaim)

	snap.PaidOut = u(1)
	_, err = m.Template().Restore(snap, &fakeReporter{}, nil)
	assert.Error(t, err)
}
