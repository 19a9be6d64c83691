package paper

import "errors"

// Domain errors returned by the store and executor. The HTTP layer maps
// these to status codes; everything else surfaces as an internal error.
var (
	// ErrNotFound: portfolio or proposal does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidAmount: zero/negative quantity or cash where positive is required.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientCash: a buy or withdrawal would overdraw the portfolio.
	ErrInsufficientCash = errors.New("insufficient cash")

	// ErrInsufficientShares: a sell exceeds the held quantity.
	ErrInsufficientShares = errors.New("insufficient shares")

	// ErrProposalNotPending: transition attempted out of a terminal state.
	ErrProposalNotPending = errors.New("proposal not pending")

	// ErrPriceUnavailable: the oracle could not quote; transient, the
	// proposal stays pending and approval may be retried.
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrInconsistent: a ledger invariant was violated. The affected
	// portfolio is failed closed and refuses further mutation.
	ErrInconsistent = errors.New("ledger inconsistency")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
