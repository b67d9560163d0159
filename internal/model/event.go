package model

import (
	"strings"
	"time"
)

type EventType string

const (
	EventWriterAdded        EventType = "ledger.writer_added"
	EventWriterRemoved      EventType = "ledger.writer_removed"
	EventScoreAdjusted      EventType = "ledger.score_adjusted"
	EventMarketCreated      EventType = "factory.market_created"
	EventPolicyChanged      EventType = "factory.policy_changed"
	EventTokenAccepted      EventType = "factory.token_accepted"
	EventTokenRejected      EventType = "factory.token_rejected"
	EventResolutionReported EventType = "factory.resolution_reported"
	EventDeposit            EventType = "market.deposit"
	EventResolutionProposed EventType = "market.resolution_proposed"
	EventMarketResolved     EventType = "market.resolved"
	EventMarketVoided       EventType = "market.voided"
	EventClaim              EventType = "market.claimed"
)

// Event is an append-only record of a committed core transition. Entity is
// the address of the ledger, factory or market that emitted it.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Entity    string         `json:"entity"`
	Actor     string         `json:"actor,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Notifier receives events after a transition has been committed. It must not
// block and must not call back into the emitting entity.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

// Discard drops every event.
var Discard Notifier = NotifierFunc(func(Event) {})

// EventFilter narrows event listings. Zero fields match everything.
type EventFilter struct {
	Entity string
	Type   EventType
	Limit  int
	From   *time.Time
	To     *time.Time
}

// Matches reports whether e passes the filter, ignoring Limit.
func (f EventFilter) Matches(e Event) bool {
	if f.Entity != "" && !strings.EqualFold(f.Entity, e.Entity) {
		return false
	}
	if f.Type != "" && f.Type != e.Type {
		return false
	}
	if f.From != nil && e.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && e.CreatedAt.After(*f.To) {
		return false
	}
	return true
}
