// Package gatewayerr defines the error kinds shared by the store, feature
// managers, and the gateway RPC layer.
//
// Handlers return these sentinels (wrapped with context via fmt.Errorf's
// %w) rather than ad-hoc errors so the Gateway RPC layer can translate them
// into the wire failure shape without inspecting message text.
package gatewayerr

import "errors"

var (
	// ErrInvalidInput means caller-supplied arguments failed schema or value checks.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound means a referenced entity (tool, memory id, task id, guide id) is absent.
	ErrNotFound = errors.New("not found")

	// ErrCycleDetected means a task-parent assignment would create a cycle.
	ErrCycleDetected = errors.New("cycle detected")

	// ErrConflict means a uniqueness violation (duplicate provider id, duplicate tool name).
	ErrConflict = errors.New("conflict")

	// ErrUnavailable means an external provider disconnected mid-call.
	ErrUnavailable = errors.New("unavailable")

	// ErrTimeout means a call exceeded its deadline.
	ErrTimeout = errors.New("timeout")

	// ErrInternal means a store-level or indexer invariant was violated.
	ErrInternal = errors.New("internal error")

	// ErrToolNotFound means the requested tool name has no live descriptor.
	ErrToolNotFound = errors.New("tool not found")
)

// Is reports whether err wraps target, delegating to errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
