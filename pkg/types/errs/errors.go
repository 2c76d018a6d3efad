package errs

import "errors"

// The error kinds every layer speaks. Store adapters map driver failures
// onto these; controllers map them onto HTTP statuses. Nothing in between
// interprets store errors any further.
var (
	// ErrInvalidInput is a caller error: the image name is missing or
	// contains no usable characters.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType is a caller error: the file extension is not in
	// the configured allow-set.
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrRecordNotFound means the requested name (or key) does not exist.
	ErrRecordNotFound = errors.New("record not found")

	// ErrEmptyStore means a random pick was requested over zero records.
	// Distinct from ErrRecordNotFound: no specific name was asked for.
	ErrEmptyStore = errors.New("no records in store")

	// ErrInconsistent means a live metadata record references a blob that
	// is missing. Surfaced at read time so "never existed" and "data
	// corruption" stay distinguishable.
	ErrInconsistent = errors.New("stores are inconsistent")

	// ErrStoreUnavailable is a transient infrastructure failure; safe for
	// the caller to retry.
	ErrStoreUnavailable = errors.New("store unavailable")
)
