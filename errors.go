package walkmate

import "errors"

var (
	// ErrInvalidConfig indicates the orchestrator configuration failed validation.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrStoreRequired indicates New was called without a walk store.
	ErrStoreRequired = errors.New("walk store is required")

	// ErrNotifierRequired indicates New was called without a notifier.
	ErrNotifierRequired = errors.New("notifier is required")

	// ErrAlreadyStarted indicates Start was called on a running orchestrator.
	ErrAlreadyStarted = errors.New("orchestrator already started")

	// ErrNotStarted indicates Stop was called on a stopped orchestrator.
	ErrNotStarted = errors.New("orchestrator not started")
)
