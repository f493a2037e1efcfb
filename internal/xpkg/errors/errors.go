package errors

import "errors"

// Error taxonomy for the client. REST and push failures are mapped to one
// of these sentinels at the boundary; view-facing code branches with
// errors.Is and never sees raw transport errors.
var (
	ErrValidation = errors.New("invalid input")
	ErrAuth       = errors.New("session expired or unauthorized")
	ErrNotFound   = errors.New("resource not found")
	ErrNetwork    = errors.New("network failure")
	ErrServer     = errors.New("server failure")

	ErrPaymentProvider  = errors.New("payment provider failure")
	ErrPaymentCancelled = errors.New("payment cancelled")

	ErrNoSession = errors.New("no active session")
)
