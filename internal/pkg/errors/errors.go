package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConflict marks an optimistic write race. The transaction runner
	// retries on it; everyone else treats it as terminal.
	ErrConflict = errors.New("write conflict")
	// ErrRetryLimitExceeded wraps ErrConflict once the retry budget is spent.
	ErrRetryLimitExceeded = errors.New("retry limit exceeded")
	// ErrUnsupported marks a query shape the selected backend cannot
	// express. Never downgraded to an empty result.
	ErrUnsupported = errors.New("unsupported operation")
	// ErrBackend marks a storage/query backend failure.
	ErrBackend = errors.New("backend failure")
)
