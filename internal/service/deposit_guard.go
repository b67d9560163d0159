package service

import (
	"context"
	"fmt"

	"github.com/GoPolymarket/polyfactory/internal/pkg/apperrors"
	"github.com/GoPolymarket/polyfactory/internal/pkg/logger"
	"github.com/GoPolymarket/polyfactory/internal/pkg/metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// DailyUsage is what a caller has deposited during the current UTC day.
type DailyUsage struct {
	Deposits int
	Volume   decimal.Decimal
}

// UsageLimits caps DailyUsage. A zero field disables that cap.
type UsageLimits struct {
	MaxDeposits int
	MaxVolume   decimal.Decimal
}

// Breach names the cap one more deposit of amount would exceed, or returns
// an empty string when it fits.
func (l UsageLimits) Breach(u DailyUsage, amount decimal.Decimal) string {
	if l.MaxVolume.IsPositive() && u.Volume.Add(amount).GreaterThan(l.MaxVolume) {
		return "daily_volume_limit"
	}
	if l.MaxDeposits > 0 && u.Deposits+1 > l.MaxDeposits {
		return "daily_deposit_count"
	}
	return ""
}

// UsageRepo tracks per-caller deposit usage for the current UTC day.
type UsageRepo interface {
	// ReserveDailyUsage books one deposit of amount unless that breaches
	// limits. Check and write happen atomically. It returns the usage seen
	// before the reservation and whether the deposit was booked.
	ReserveDailyUsage(ctx context.Context, caller string, amount decimal.Decimal, limits UsageLimits) (DailyUsage, bool, error)
	// AddDailyUsage adjusts the counters. Negative values hand a reservation
	// back.
	AddDailyUsage(ctx context.Context, caller string, deposits int, amount decimal.Decimal) error
}

// DepositGuard runs the pre-trade checks that sit outside the market rules.
type DepositGuard struct {
	repo   UsageRepo
	limits UsageLimits
}

// NewDepositGuard builds a guard. A zero maxVolume or maxDeposits disables
// that limit.
func NewDepositGuard(repo UsageRepo, maxVolume decimal.Decimal, maxDeposits int) *DepositGuard {
	return &DepositGuard{repo: repo, limits: UsageLimits{MaxDeposits: maxDeposits, MaxVolume: maxVolume}}
}

func (g *DepositGuard) enabled() bool {
	return g != nil && g.repo != nil && (g.limits.MaxVolume.IsPositive() || g.limits.MaxDeposits > 0)
}

func noRelease() {}

// Reserve books a deposit against the caller's daily caps before it runs.
// If the deposit then fails, the returned release hands the quota back.
func (g *DepositGuard) Reserve(ctx context.Context, caller common.Address, amount *uint256.Int) (func(), error) {
	if !g.enabled() {
		return noRelease, nil
	}
	value := decimal.NewFromBigInt(amount.ToBig(), 0)
	usage, ok, err := g.repo.ReserveDailyUsage(ctx, caller.Hex(), value, g.limits)
	if err != nil {
		return nil, fmt.Errorf("deposit guard: %w", err)
	}
	if !ok {
		return nil, g.reject(usage, value)
	}

	return func() {
		if err := g.repo.AddDailyUsage(context.WithoutCancel(ctx), caller.Hex(), -1, value.Neg()); err != nil {
			logger.LogError(ctx, err, "release deposit usage failed", "caller", caller.Hex())
		}
	}, nil
}

func (g *DepositGuard) reject(usage DailyUsage, value decimal.Decimal) error {
	reason := g.limits.Breach(usage, value)
	if reason == "" {
		// the repo saw a concurrent write we did not
		reason = "daily_deposit_count"
	}
	metrics.Rejects.WithLabelValues(reason).Inc()
	if reason == "daily_volume_limit" {
		return apperrors.NewRiskReject(fmt.Sprintf("daily deposit limit exceeded (curr: %s, new: %s, max: %s)",
			usage.Volume, value, g.limits.MaxVolume))
	}
	return apperrors.NewRiskReject(fmt.Sprintf("daily deposit count exceeded (curr: %d, max: %d)",
		usage.Deposits, g.limits.MaxDeposits))
}
