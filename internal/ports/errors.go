package ports

import "errors"

// Standard application-level errors.
// Adapters wrap underlying infrastructure errors with these standard errors.
var (
	// General errors
	ErrUnknown         = errors.New("unknown error occurred")
	ErrInvalidRequest  = errors.New("invalid request parameters or format")
	ErrNotFound        = errors.New("resource not found")
	ErrTimeout         = errors.New("operation timed out")
	ErrContextCanceled = errors.New("operation canceled via context")

	// Lifecycle errors
	ErrAlreadyProcessed = errors.New("entity is no longer pending (stale version or terminal state)")
	ErrExpired          = errors.New("entity expired before execution")

	// Execution pipeline errors, one per failure point
	ErrQuoteUnavailable    = errors.New("swap venue returned no usable quote")
	ErrPriceImpactExceeded = errors.New("price impact exceeds the critical threshold")
	ErrSlippageExceeded    = errors.New("quoted slippage exceeds the configured ceiling")
	ErrSignatureDenied     = errors.New("signer refused or failed to sign the transaction")
	ErrSubmissionFailed    = errors.New("transaction submission failed")
	ErrConfirmationTimeout = errors.New("transaction confirmation timed out")

	// External collaborator errors
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the upstream service")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("upstream authentication failed (check API keys)")
	ErrInsufficientFunds    = errors.New("insufficient funds for operation")
	ErrOrderPlacementFailed = errors.New("failed to place order")

	// Persistence errors
	ErrPersistence    = errors.New("persistent ledger operation failed")
	ErrDuplicateEntry = errors.New("ledger record already exists")
)
