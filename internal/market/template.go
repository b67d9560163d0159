// Package market implements the per-question binary market: a pari-mutuel
// pool of YES/NO shares with a propose/confirm resolution flow that reports
// back to the factory that deployed it.
package market

import (
	"context"
	"time"

	"github.com/GoPolymarket/polyfactory/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Report is what a market tells its factory when it finalizes.
type Report struct {
	Outcome model.Outcome
	// Accurate is set when a tradable proposal was confirmed by the resolver.
	Accurate  bool
	Confirmer common.Address
	// Funded is set when someone other than the creator has collateral in the
	// pool.
	Funded bool
}

// Reporter is the factory side of a market. It is called exactly once per
// market, before the terminal state is committed, and returns the reputation
// delta that was applied to the creator.
type Reporter interface {
	ReportResolution(ctx context.Context, market common.Address, r Report) (int64, error)
}

// Rules are the economic parameters shared by every market of a template.
type Rules struct {
	MinDeposit        uint256.Int
	ConfirmationGrace time.Duration
}

// Template is the immutable implementation every market instance shares.
type Template struct {
	address common.Address
	rules   Rules
}

func NewTemplate(address common.Address, rules Rules) *Template {
	if rules.MinDeposit.IsZero() {
		rules.MinDeposit.SetOne()
	}
	if rules.ConfirmationGrace < 0 {
		rules.ConfirmationGrace = 0
	}
	return &Template{address: address, rules: rules}
}

func (t *Template) Address() common.Address { return t.address }
func (t *Template) Rules() Rules            { return t.rules }

// Init carries the per-instance parameters fixed at creation.
type Init struct {
	ID                 common.Address
	Factory            common.Address
	Creator            common.Address
	Resolver           common.Address
	CollateralToken    common.Address
	Question           string
	ResolutionDeadline time.Time
	CreatedAt          time.Time
	Reporter           Reporter
	Notifier           model.Notifier
}

// Instantiate returns a fresh OPEN market referencing t.
func (t *Template) Instantiate(init Init) *Market {
	notifier := init.Notifier
	if notifier == nil {
		notifier = model.Discard
	}
	return &Market{
		template:  t,
		id:        init.ID,
		factory:   init.Factory,
		creator:   init.Creator,
		resolver:  init.Resolver,
		token:     init.CollateralToken,
		question:  init.Question,
		deadline:  init.ResolutionDeadline.UTC(),
		createdAt: init.CreatedAt.UTC(),
		reporter:  init.Reporter,
		notifier:  notifier,
		state:     model.StateOpen,
		positions: make(map[common.Address]*position),
	}
}
