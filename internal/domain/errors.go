package domain

import "errors"

// Typed error kinds surfaced at the adapter and router boundaries.
// Callers match them with errors.Is; wrapping with fmt.Errorf("%w") keeps
// the kind visible while adding call-site context.
var (
	// ErrUnavailable - the source is disabled, does not implement the
	// capability, or every source has been exhausted.
	ErrUnavailable = errors.New("source unavailable")

	// ErrRateLimited - the vendor signalled a quota; the caller backs off
	// and retries or falls through to the next source.
	ErrRateLimited = errors.New("rate limited")

	// ErrTimeout - a deadline expired at router or run scope.
	ErrTimeout = errors.New("timeout")

	// ErrFormat - a row failed canonicalization. The row is dropped and the
	// batch continues; this kind only surfaces when the whole response is
	// unusable.
	ErrFormat = errors.New("format error")

	// ErrIO - a store or network failure.
	ErrIO = errors.New("io error")

	// ErrNotFound - a single-row read found nothing. Only expected where
	// absence is a legitimate result.
	ErrNotFound = errors.New("not found")
)

// IsRetryable reports whether the error kind is worth retrying on the same
// source (rate limits back off; IO may be transient).
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrIO)
}

// IsRecoverable reports whether the router should fall through to the next
// source rather than surface the error.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrFormat) ||
		errors.Is(err, ErrIO)
}
