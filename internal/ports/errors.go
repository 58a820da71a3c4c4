package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Market / Execution Specific Errors
	ErrMarketUnavailable    = errors.New("market data endpoint is unavailable")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("execution endpoint authentication failed")
	ErrNoLiquidity          = errors.New("no liquidity at the requested price")
	ErrOrderRejected        = errors.New("order submission rejected")

	// Ledger Specific Errors
	ErrDuplicateEntry    = errors.New("ledger record already exists")
	ErrDuplicateTrade    = errors.New("trade event was already processed")
	ErrAlreadyReferred   = errors.New("user already has a referrer")
	ErrSelfReferral      = errors.New("a user cannot refer themselves")
	ErrCodeTaken         = errors.New("referral code is already taken")
	ErrCodeExhausted     = errors.New("could not generate a unique referral code")
	ErrInvalidCode       = errors.New("referral code format is invalid")
	ErrDBConnection      = errors.New("database connection error")
	ErrQueryFailed       = errors.New("database query failed")
	ErrUpdateFailed      = errors.New("database update failed")
)
