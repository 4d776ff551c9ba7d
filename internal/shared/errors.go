package shared

import "errors"

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates a status precondition was not met.
	ErrInvalidState = errors.New("invalid state")
	// ErrExpired indicates a deadline has already passed.
	ErrExpired = errors.New("expired")
	// ErrValidation indicates malformed or inconsistent input.
	ErrValidation = errors.New("validation failed")
	// ErrStore indicates an underlying persistence failure.
	ErrStore = errors.New("store failure")
	// ErrProvider indicates the payment provider is unreachable or rejected the call.
	ErrProvider = errors.New("payment provider failure")
)
