package service

import "fmt"

// ErrorKind is the closed set of failure categories a saga can report.
// Transport and storage error types never cross the service boundary; they
// are folded into one of these kinds before returning.
type ErrorKind int

const (
	// KindInvalidInput: malformed request, rejected before any state change.
	KindInvalidInput ErrorKind = iota
	// KindIdempotencyConflict: key reused with a different payload, or a
	// prior terminal outcome that cannot be replayed.
	KindIdempotencyConflict
	// KindRequestInFlight: a duplicate submission while the original is
	// still being processed.
	KindRequestInFlight
	// KindBusinessRejected: the order was refused on business grounds
	// (insufficient stock, unknown product, catalog mismatch). Terminal.
	KindBusinessRejected
	// KindNotFound: the referenced order does not exist for this user.
	KindNotFound
	// KindConcurrencyConflict: stale concurrency token; re-read and retry.
	KindConcurrencyConflict
	// KindUnavailable: a dependency failed; the request may be retried
	// later (with a fresh idempotency key where one was consumed).
	KindUnavailable
)

// Error is the saga-boundary error: a stable client-facing message tagged
// with its kind, optionally wrapping the internal cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func invalidInput(message string) *Error {
	return &Error{Kind: KindInvalidInput, Message: message}
}

func idempotencyConflict(message string) *Error {
	return &Error{Kind: KindIdempotencyConflict, Message: message}
}

func requestInFlight(message string) *Error {
	return &Error{Kind: KindRequestInFlight, Message: message}
}

func businessRejected(message string, cause error) *Error {
	return &Error{Kind: KindBusinessRejected, Message: message, Err: cause}
}

func unavailable(message string, cause error) *Error {
	return &Error{Kind: KindUnavailable, Message: message, Err: cause}
}
