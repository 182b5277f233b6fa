// Package errors defines every exported error sentinel for the resketch
// module.
//
// This is the single source of truth for error values. The packages that
// return errors — the root sketch package and internal/kll — import from
// here, so errors.Is checks work across package boundaries regardless of
// which layer produced the failure.
package errors

import "errors"

// Construction and configuration errors.
var (
	// ErrInvalidConfig is returned by Config.Validate when depth, width, k,
	// or the row seed count is out of range.
	ErrInvalidConfig = errors.New("resketch: invalid configuration")
)

// Structural-operation errors: ConfigMismatch, InvalidWidth, Overflow.
var (
	// ErrConfigMismatch is returned by Merge when the two sketches disagree
	// on depth, k, partition seed, or row seeds, and by KLL.Merge when the
	// two compactors disagree on k.
	ErrConfigMismatch = errors.New("resketch: configuration mismatch")

	// ErrInvalidWidth is returned by Expand/Shrink/Split when the requested
	// width violates the operation's precondition.
	ErrInvalidWidth = errors.New("resketch: invalid width")

	// ErrOverflow is returned when a width/memory computation would overflow
	// a 32-bit quantity.
	ErrOverflow = errors.New("resketch: arithmetic overflow")
)

// Lifecycle errors.
var (
	// ErrConsumed is returned by any mutating or query method called on a
	// sketch that has already been consumed by Merge or Split.
	ErrConsumed = errors.New("resketch: sketch already consumed by merge or split")
)
