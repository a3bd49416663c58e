// Package apperr defines the sentinel error kinds shared across innerlogd's
// components, in the same errors.Is/errors.As convention the teacher's
// persistence package reaches for (ErrNotFound/ErrForbidden-style sentinels
// wrapped with context via fmt.Errorf("...: %w", ...)).
package apperr

import "errors"

var (
	// ErrInputInvalid marks a caller-supplied input that fails validation
	// (malformed entry text, unknown fingerprint, etc).
	ErrInputInvalid = errors.New("input invalid")
	// ErrNotFound marks a lookup that found no matching row.
	ErrNotFound = errors.New("not found")
	// ErrForbidden marks a lookup that found a row owned by a different user.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict marks a write that lost a race (e.g. duplicate sequence number).
	ErrConflict = errors.New("conflict")
	// ErrOverloaded marks a bounded resource (analysis queue, semaphore) at
	// capacity; callers should retry later rather than block indefinitely.
	ErrOverloaded = errors.New("overloaded")
	// ErrModelFault marks a model provider failure (timeout, 5xx, malformed
	// output) distinct from a caller input error.
	ErrModelFault = errors.New("model fault")
	// ErrStoreFault marks a relational/vector/cache store failure distinct
	// from a not-found/conflict outcome.
	ErrStoreFault = errors.New("store fault")
	// ErrCancelled marks an operation that ended because its context was
	// cancelled or its deadline exceeded.
	ErrCancelled = errors.New("cancelled")
)

// Is reports whether err wraps target anywhere in its chain.
func Is(err, target error) bool { return errors.Is(err, target) }
