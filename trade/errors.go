package trade

import "errors"

var (
	// ErrGatewayUnavailable aborts a cycle: without a balance nothing can be sized.
	ErrGatewayUnavailable    = errors.New("gateway unavailable")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrMarketDataUnavailable = errors.New("market data unavailable")
	ErrOrderSubmissionFailed = errors.New("order submission failed")
	ErrFillTimeout           = errors.New("order not filled in time")
	ErrPersistenceFailure    = errors.New("persistence failure")
)
