package model

import (
	"fmt"
	"strings"
)

// Outcome is a binary market side, or INVALID when a resolver evidences the
// question as indeterminate.
type Outcome string

const (
	OutcomeYes     Outcome = "YES"
	OutcomeNo      Outcome = "NO"
	OutcomeInvalid Outcome = "INVALID"
)

// ParseOutcome accepts YES/NO/INVALID in any case.
func ParseOutcome(raw string) (Outcome, error) {
	switch o := Outcome(strings.ToUpper(strings.TrimSpace(raw))); o {
	case OutcomeYes, OutcomeNo, OutcomeInvalid:
		return o, nil
	default:
		return "", fmt.Errorf("outcome %q: %w", raw, ErrInvalidOutcome)
	}
}

// Tradable reports whether shares can be issued for the outcome.
func (o Outcome) Tradable() bool {
	return o == OutcomeYes || o == OutcomeNo
}

// MarketState is the resolution state machine position of a market.
type MarketState string

const (
	StateOpen      MarketState = "OPEN"
	StateResolving MarketState = "RESOLVING"
	StateResolved  MarketState = "RESOLVED"
	StateVoid      MarketState = "VOID"
)

// Terminal reports whether no further transition is possible.
func (s MarketState) Terminal() bool {
	return s == StateResolved || s == StateVoid
}
