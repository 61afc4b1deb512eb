package ports

import "errors"

// Standard application-level errors.
// Adapters wrap underlying infrastructure errors with these so the engine can
// branch on the failure class without knowing the backend.
var (
	// General
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Engine lifecycle
	ErrAlreadyRunning = errors.New("engine is already running")
	ErrNotRunning     = errors.New("engine is not running")

	// Trading failure classes. Each one aborts at most the current trade
	// attempt, never the tick.
	ErrDataUnavailable     = errors.New("price feed cannot supply a price")
	ErrInvalidNumeric      = errors.New("computed value is NaN or non-finite")
	ErrInsufficientBalance = errors.New("insufficient balance for trade")
	ErrNoAssetToSell       = errors.New("no asset quantity available to sell")
	ErrExecutionFailed     = errors.New("order placement failed")

	// Exchange
	ErrNotConnected         = errors.New("exchange client is not connected")
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")

	// Database
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrDBConnection   = errors.New("database connection error")
	ErrQueryFailed    = errors.New("database query failed")
	ErrUpdateFailed   = errors.New("database update failed")
)
