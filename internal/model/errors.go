package model

// ErrorKind is the coarse failure class every core error belongs to.
type ErrorKind string

const (
	KindUnauthorized  ErrorKind = "UNAUTHORIZED"
	KindInvalidState  ErrorKind = "INVALID_STATE"
	KindInvalidParams ErrorKind = "INVALID_PARAMS"
	KindNotFound      ErrorKind = "NOT_FOUND"
	KindExhausted     ErrorKind = "EXHAUSTED"
)

// Error is a domain failure with a stable code. Sentinels below are compared
// with errors.Is; callers wrap them with fmt.Errorf("...: %w", ErrX).
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind ErrorKind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	// Unauthorized
	ErrNotOwner         = newError(KindUnauthorized, "NOT_OWNER", "caller is not the owner")
	ErrNotWriter        = newError(KindUnauthorized, "NOT_WRITER", "caller is not a whitelisted writer")
	ErrReputationTooLow = newError(KindUnauthorized, "REPUTATION_TOO_LOW", "reputation too low to create a market")
	ErrNotResolver      = newError(KindUnauthorized, "NOT_RESOLVER", "caller is not the market resolver")

	// Invalid state
	ErrAlreadyResolved    = newError(KindInvalidState, "ALREADY_RESOLVED", "market already resolved")
	ErrAlreadyReported    = newError(KindInvalidState, "ALREADY_REPORTED", "resolution already reported")
	ErrDeadlineNotReached = newError(KindInvalidState, "DEADLINE_NOT_REACHED", "resolution deadline not reached")
	ErrTradingClosed      = newError(KindInvalidState, "TRADING_CLOSED", "market is not accepting deposits")
	ErrAlreadyProposed    = newError(KindInvalidState, "ALREADY_PROPOSED", "a resolution is already pending")
	ErrNotFinal           = newError(KindInvalidState, "NOT_FINAL", "market is not resolved yet")
	ErrNotResolving       = newError(KindInvalidState, "NOT_RESOLVING", "no resolution is pending and the grace period is still running")

	// Invalid params
	ErrInvalidOutcome  = newError(KindInvalidParams, "INVALID_OUTCOME", "invalid outcome")
	ErrInvalidAmount   = newError(KindInvalidParams, "INVALID_AMOUNT", "invalid amount")
	ErrInvalidDeadline = newError(KindInvalidParams, "INVALID_DEADLINE", "resolution deadline must be in the future")
	ErrTokenRejected   = newError(KindInvalidParams, "TOKEN_NOT_ACCEPTED", "collateral token is not accepted")
	ErrInvalidAddress  = newError(KindInvalidParams, "INVALID_ADDRESS", "invalid address")
	ErrEmptyQuestion   = newError(KindInvalidParams, "EMPTY_QUESTION", "question is required")
	ErrSelfResolution  = newError(KindInvalidParams, "RESOLVER_IS_CREATOR", "market creator cannot be its resolver")
	ErrInvalidPolicy   = newError(KindInvalidParams, "INVALID_THRESHOLD", "threshold outside reputation bounds")

	// Not found
	ErrNotOwnedMarket = newError(KindNotFound, "NOT_OWNED_MARKET", "market was not deployed by this factory")
	ErrMarketNotFound = newError(KindNotFound, "MARKET_NOT_FOUND", "market not found")

	// Exhausted
	ErrNothingToClaim = newError(KindExhausted, "NOTHING_TO_CLAIM", "nothing to claim")
	ErrOverdraft      = newError(KindExhausted, "OVERDRAFT", "claim exceeds pool")
)
