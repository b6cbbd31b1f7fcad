package ports

import (
	"errors"
	"fmt"
)

// Application-level errors. Adapters wrap infrastructure errors with these
// so the engine and the control surface can branch on errors.Is.
var (
	// General Errors
	ErrUnknown         = errors.New("unknown error occurred")
	ErrInvalidRequest  = errors.New("invalid request parameters or format")
	ErrNotFound        = errors.New("resource not found")
	ErrTimeout         = errors.New("operation timed out")
	ErrContextCanceled = errors.New("operation canceled via context")

	// Exchange Specific Errors
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrInsufficientFunds    = errors.New("insufficient margin for order")
	ErrOrderNotFound        = errors.New("order not found on the exchange")
	ErrOrderPlacementFailed = errors.New("failed to place order")
	ErrOrderCancelFailed    = errors.New("failed to cancel order")

	// Storage Specific Errors
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrQueryFailed    = errors.New("database query failed")
	ErrUpdateFailed   = errors.New("database update failed")

	// ErrInvalidSettings rejects a settings patch whose result fails validation.
	ErrInvalidSettings = fmt.Errorf("%w: settings rejected", ErrInvalidRequest)
	// ErrOpenTradeExists is returned when a second OPEN trade is added for a symbol.
	ErrOpenTradeExists = fmt.Errorf("%w: open trade exists for symbol", ErrDuplicateEntry)
)
