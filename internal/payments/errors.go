package payments

import "errors"

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrBadSignature  = errors.New("payment signature mismatch")
	ErrInvalidOrder  = errors.New("invalid order request")

	// ErrNotConfigured means no gateway credentials were supplied at startup.
	ErrNotConfigured = errors.New("payments not configured")

	// ErrProviderBadRequest means the gateway rejected the order request.
	// ErrProviderUnavailable means the gateway itself failed.
	ErrProviderBadRequest  = errors.New("payment provider rejected the request")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
)
