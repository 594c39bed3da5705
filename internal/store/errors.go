package store

import "errors"

// Sentinel errors returned by Store implementations. Any other error means the
// store itself failed (I/O, lock timeout, closed database, cancelled context).
var (
	// ErrNotFound is returned when a row lookup matches nothing.
	ErrNotFound = errors.New("store: not found")

	// ErrAlreadyExists is returned when an insert violates a uniqueness constraint.
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrGuardFailed is returned when a guarded write matched no row because
	// its precondition no longer holds (e.g. no copy left to take).
	ErrGuardFailed = errors.New("store: guard condition not met")
)

// IsStoreFailure reports whether err is a store failure rather than one of
// the sentinel outcomes above.
func IsStoreFailure(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrAlreadyExists) && !errors.Is(err, ErrGuardFailed)
}
