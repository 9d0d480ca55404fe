/*
errors.go - Error taxonomy for the hour bank

ERROR CATEGORIES:
  1. ValidationError - caller input rejected before any write (HTTP 400)
  2. NotFoundError - entry, collaborator or bulk operation missing (HTTP 404)
  3. ReconciliationFailure - the engine could not restore invariants; the
     surrounding mutation has been rolled back (HTTP 500)

Each structured error unwraps to a sentinel so callers can use errors.Is
without caring about the concrete type.
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation = errors.New("validation failed")

	ErrNotFound             = errors.New("not found")
	ErrEntryNotFound        = fmt.Errorf("entry %w", ErrNotFound)
	ErrCollaboratorNotFound = fmt.Errorf("collaborator %w", ErrNotFound)
	ErrBulkNotFound         = fmt.Errorf("bulk operation %w", ErrNotFound)

	ErrReconciliation = errors.New("reconciliation failed")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError names the offending field and why it was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InsufficientBalanceError is returned when a manual day usage would take the
// balance below zero.
type InsufficientBalanceError struct {
	CollaboratorID CollaboratorID
	Available      int
	Requested      int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for collaborator %d: available %d days, requested %d",
		e.CollaboratorID, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrValidation }

type NotFoundError struct {
	Kind string
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	switch e.Kind {
	case "entry":
		return ErrEntryNotFound
	case "collaborator":
		return ErrCollaboratorNotFound
	case "bulk operation":
		return ErrBulkNotFound
	}
	return ErrNotFound
}

func EntryNotFound(id EntryID) error {
	return &NotFoundError{Kind: "entry", ID: int64(id)}
}

func CollaboratorNotFound(id CollaboratorID) error {
	return &NotFoundError{Kind: "collaborator", ID: int64(id)}
}

func BulkNotFound(id BulkID) error {
	return &NotFoundError{Kind: "bulk operation", ID: int64(id)}
}

// ReconciliationFailure wraps any error raised while the engine ran.
type ReconciliationFailure struct {
	CollaboratorID CollaboratorID
	Err            error
}

func (e *ReconciliationFailure) Error() string {
	return fmt.Sprintf("reconciliation failed for collaborator %d: %v", e.CollaboratorID, e.Err)
}

func (e *ReconciliationFailure) Unwrap() []error { return []error{ErrReconciliation, e.Err} }

// =============================================================================
// HELPERS
// =============================================================================

func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsReconciliation(err error) bool { return errors.Is(err, ErrReconciliation) }
