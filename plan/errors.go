/*
errors.go - Centralized error types for the plan engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match with errors.Is / errors.As; structured types carry the
  entity kind and id for messages.

ERROR CATEGORIES:
  1. Lookup errors     - Missing entities (NotFoundError)
  2. Integrity errors  - Dangling references that cascades should prevent
  3. Snapshot errors   - Unrecognized or corrupt persisted state
  4. Input errors      - Invalid entities rejected before reaching the store

USAGE:
  if errors.Is(err, ErrNotFound) { ... }

  var nf *NotFoundError
  if errors.As(err, &nf) { log.Printf("missing %s %s", nf.Kind, nf.ID) }
*/
package plan

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a lookup by id has no match.
	ErrNotFound = errors.New("not found")

	// ErrReferential is returned when an operation would leave or has found
	// a dangling reference. Cascading deletes keep this out of normal flow.
	ErrReferential = errors.New("referential integrity violation")

	// ErrDuplicateBalance is returned when a second recorded balance is
	// added for the same (account, date) pair at the same granularity.
	ErrDuplicateBalance = errors.New("balance already recorded for date")

	// ErrUnrecognizedSnapshotVersion is fatal at load time: the snapshot
	// comes from a future or unknown schema. Callers fall back to a blank
	// store rather than guessing.
	ErrUnrecognizedSnapshotVersion = errors.New("unrecognized snapshot version")

	// ErrInvalidEntity is returned when an entity fails field validation
	// before it reaches the store.
	ErrInvalidEntity = errors.New("invalid entity")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError identifies which entity was missing.
type NotFoundError struct {
	Kind string // "person", "account", "balance", "strategy", "rule"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ReferentialError describes a dangling reference.
type ReferentialError struct {
	Kind       string
	ID         string
	TargetKind string
	TargetID   string
}

func (e *ReferentialError) Error() string {
	return fmt.Sprintf("%s %q references missing %s %q", e.Kind, e.ID, e.TargetKind, e.TargetID)
}

func (e *ReferentialError) Unwrap() error { return ErrReferential }

// SnapshotVersionError reports the version that could not be handled.
type SnapshotVersionError struct {
	Found   int
	Current int
}

func (e *SnapshotVersionError) Error() string {
	return fmt.Sprintf("snapshot version %d not recognized (current is %d)", e.Found, e.Current)
}

func (e *SnapshotVersionError) Unwrap() error { return ErrUnrecognizedSnapshotVersion }

// ValidationError reports a field-level problem in user input. The store
// rejects invalid entities with this before mutating anything.
type ValidationError struct {
	Kind    string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s %s", e.Kind, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidEntity }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsClientError returns true if the error is due to invalid caller input
// rather than engine state.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidEntity) ||
		errors.Is(err, ErrDuplicateBalance) ||
		errors.Is(err, ErrNotFound)
}
