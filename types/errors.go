package types

import "errors"

// Sentinel errors shared across the walkmate engine.
//
// These errors provide type-safe error checking using errors.Is(). Components
// wrap external errors with context using fmt.Errorf("...: %w", err) and keep
// these sentinels in the chain for callers to branch on.
var (
	// ErrWalkNotFound is returned when the requested walk document does not exist.
	ErrWalkNotFound = errors.New("walk not found")

	// ErrRotationConflict is returned when a rotation commit is rejected
	// because the walk document advanced after it was read. It means another
	// invocation already rotated the walk this cycle; the attempt should be
	// abandoned silently.
	ErrRotationConflict = errors.New("rotation already committed by another writer")
)
