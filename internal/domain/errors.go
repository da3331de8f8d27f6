package domain

import "errors"

var (
	// ErrQuoteUnavailable means no provider could produce a price for a symbol.
	ErrQuoteUnavailable = errors.New("quote unavailable")

	// ErrUserNotFound means the user id does not resolve to a simulation account.
	ErrUserNotFound = errors.New("user not found")

	// ErrHoldingNotFound means the user has no position in the requested symbol.
	ErrHoldingNotFound = errors.New("holding not found")

	// ErrInsufficientShares means a sell requested more shares than held.
	ErrInsufficientShares = errors.New("insufficient shares")

	// ErrInsufficientFunds means a buy would drive the cash balance negative.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrStoreConflict means a conditional update lost against a concurrent
	// mutation of the same holding. Callers may retry against fresh state.
	ErrStoreConflict = errors.New("store conflict")
)
