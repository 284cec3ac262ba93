// Package apperrors defines the error taxonomy used across the pipeline
// (spec.md §7). Callers compare with errors.Is; wrapped causes are retrievable
// with errors.Unwrap/errors.As.
package apperrors

import "errors"

// Sentinel errors forming the pipeline's closed error taxonomy.
var (
	// ErrValidation marks a request that failed structural/semantic validation.
	// Surfaced immediately to the caller; never enters the pipeline.
	ErrValidation = errors.New("validation error")

	// ErrAuthorization marks a caller acting outside their permitted scope
	// (e.g. not a participant of the conversation).
	ErrAuthorization = errors.New("authorization error")

	// ErrNotFound marks a missing entity.
	ErrNotFound = errors.New("not found")

	// ErrCircuitOpen is returned by the Message Store Gateway when the
	// circuit breaker is open; the Ingest Path reroutes to the fallback queue.
	ErrCircuitOpen = errors.New("circuit open")

	// ErrTransientBroker marks a retryable stream-broker failure. append()
	// retries internally; exhaustion surfaces this to the caller.
	ErrTransientBroker = errors.New("transient broker error")

	// ErrTransientStore marks a retryable store failure observed through the
	// circuit breaker.
	ErrTransientStore = errors.New("transient store error")

	// ErrUnrecoverable marks a failure a worker cannot retry its way out of;
	// the record is routed to the dead-letter stream.
	ErrUnrecoverable = errors.New("unrecoverable error")

	// ErrRateLimited marks inbound back-pressure applied to a sender.
	ErrRateLimited = errors.New("rate limited")

	// ErrAuth marks a failed identity-claim verification at socket handshake.
	ErrAuth = errors.New("auth error")

	// ErrStoreUnavailable marks the stream broker being unreachable beyond
	// append's embedded retry budget.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Code maps a taxonomy error to the wire-level code used in message_error
// and HTTP 4xx responses.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrAuthorization):
		return "AUTHORIZATION_ERROR"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrCircuitOpen):
		return "CIRCUIT_OPEN"
	case errors.Is(err, ErrTransientBroker):
		return "TRANSIENT_BROKER_ERROR"
	case errors.Is(err, ErrTransientStore):
		return "TRANSIENT_STORE_ERROR"
	case errors.Is(err, ErrUnrecoverable):
		return "UNRECOVERABLE"
	case errors.Is(err, ErrRateLimited):
		return "RATE_LIMITED"
	case errors.Is(err, ErrAuth):
		return "AUTH_ERROR"
	case errors.Is(err, ErrStoreUnavailable):
		return "STORE_UNAVAILABLE"
	default:
		return "UNKNOWN"
	}
}

// Retryable reports whether a worker should re-attempt on this error rather
// than route straight to the dead-letter stream.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransientBroker) ||
		errors.Is(err, ErrTransientStore) ||
		errors.Is(err, ErrCircuitOpen) ||
		errors.Is(err, ErrStoreUnavailable)
}
