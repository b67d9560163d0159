package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/GoPolymarket/polyfactory/internal/config"
	"github.com/GoPolymarket/polyfactory/internal/factory"
	"github.com/GoPolymarket/polyfactory/internal/market"
	"github.com/GoPolymarket/polyfactory/internal/reputation"
	"github.com/GoPolymarket/polyfactory/internal/service"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// deployOptions turns configuration into the boot-time deployment.
func deployOptions(cfg *config.Config) (service.DeployOptions, error) {
	if !common.IsHexAddress(cfg.Deploy.Owner) {
		return service.DeployOptions{}, fmt.Errorf("deploy.owner %q is not an address", cfg.Deploy.Owner)
	}

	tokens := make([]common.Address, 0, len(cfg.Factory.AcceptedTokens))
	for _, raw := range cfg.Factory.AcceptedTokens {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !common.IsHexAddress(raw) {
			return service.DeployOptions{}, fmt.Errorf("factory.accepted_tokens: %q is not an address", raw)
		}
		tokens = append(tokens, common.HexToAddress(raw))
	}

	var oracle common.Address
	if s := strings.TrimSpace(cfg.Factory.Oracle); s != "" {
		if !common.IsHexAddress(s) {
			return service.DeployOptions{}, fmt.Errorf("factory.oracle %q is not an address", s)
		}
		oracle = common.HexToAddress(s)
	}

	var rules market.Rules
	if s := strings.TrimSpace(cfg.Market.MinDeposit); s != "" {
		v, err := uint256.FromDecimal(s)
		if err != nil {
			return service.DeployOptions{}, fmt.Errorf("market.min_deposit %q: %w", s, err)
		}
		rules.MinDeposit = *v
	}
	rules.ConfirmationGrace = time.Duration(cfg.Market.ConfirmationGraceSeconds) * time.Second

	return service.DeployOptions{
		Network:        cfg.Deploy.Network,
		Owner:          common.HexToAddress(cfg.Deploy.Owner),
		Bounds:         reputation.Bounds{Min: cfg.Ledger.MinScore, Max: cfg.Ledger.MaxScore},
		Rules:          rules,
		Oracle:         oracle,
		Threshold:      cfg.Factory.CreationThreshold,
		AcceptedTokens: tokens,
		Deltas: factory.DeltaPolicy{
			Clean:    cfg.Factory.DeltaClean,
			Disputed: cfg.Factory.DeltaDisputed,
			Void:     cfg.Factory.DeltaVoid,
			MaxAbs:   cfg.Factory.DeltaMaxAbs,
		},
	}, nil
}

// depositCap parses risk.max_daily_deposit; empty means no volume cap.
func depositCap(cfg *config.Config) (decimal.Decimal, error) {
	s := strings.TrimSpace(cfg.Risk.MaxDailyDeposit)
	if s == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("risk.max_daily_deposit %q: %w", s, err)
	}
	if v.IsNegative() {
		return decimal.Zero, fmt.Errorf("risk.max_daily_deposit must not be negative")
	}
	return v, nil
}
