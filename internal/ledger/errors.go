package ledger

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrInvalidInput marks non-positive quantities or malformed identifiers.
	ErrInvalidInput = errors.New("ledger: invalid input")

	// ErrBusy means the per-product lock could not be acquired within the
	// contention window. The operation had no effect; callers may retry.
	ErrBusy = errors.New("ledger: product busy, retry")

	ErrCommitmentNotFound  = errors.New("ledger: commitment not found")
	ErrCommitmentNotActive = errors.New("ledger: commitment is not active")
)

// InsufficientStockError reports a reservation or adjustment that would
// oversubscribe a product. Available is the quantity the caller could still
// get; the coordinator uses it to clamp line-item edits.
type InsufficientStockError struct {
	ProductID uuid.UUID
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s (requested: %d, available: %d)",
		e.ProductID, e.Requested, e.Available)
}

// TransitionRejectedError reports a stage transition that required
// fulfillment and failed; every deduction was rolled back and the source
// stays in its prior stage.
type TransitionRejectedError struct {
	SourceType string
	SourceID   uuid.UUID
	Cause      error
}

func (e *TransitionRejectedError) Error() string {
	return fmt.Sprintf("stage transition rejected for %s %s: %v", e.SourceType, e.SourceID, e.Cause)
}

func (e *TransitionRejectedError) Unwrap() error { return e.Cause }
