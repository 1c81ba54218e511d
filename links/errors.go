package links

import "errors"

var (
	// ErrInvalidInput: malformed or oversized URL. Rejected before any store or cache access.
	ErrInvalidInput = errors.New("invalid input")
	// ErrRateLimited: write throttled, nothing changed.
	ErrRateLimited = errors.New("rate limited")
	// ErrNotFound: unknown code.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateConflict: allocation race still unresolved after the retry budget. Retryable.
	ErrDuplicateConflict = errors.New("duplicate conflict")
	// ErrStoreUnavailable: store timeout or connection failure.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrAllocationExhausted: the code space cannot hold another code.
	ErrAllocationExhausted = errors.New("allocation exhausted")

	// ErrURLConflict is returned by InsertUnique when the URL already has a code.
	ErrURLConflict = errors.New("url already shortened")
	// ErrCodeConflict is returned by InsertUnique when the code is taken.
	ErrCodeConflict = errors.New("code already taken")
)
