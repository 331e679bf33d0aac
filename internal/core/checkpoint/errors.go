// Package checkpoint defines domain-specific errors
package checkpoint

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrInvalidID   = errors.New("invalid checkpoint ID")
	ErrEmptyName   = errors.New("checkpoint name is required")
	ErrNilSnapshot = errors.New("checkpoint snapshot cannot be nil")
	ErrUnknownID   = errors.New("checkpoint not in active set")
	ErrNoActive    = errors.New("no active checkpoint")
	ErrStoreFailed = errors.New("savepoint store operation failed")
)

// IntegrityError reports a stack/savepoint mismatch. It is fatal to the
// enclosing day simulation: the outer checkpoint rolls back and the date
// cursor does not advance.
type IntegrityError struct {
	Op           string
	CheckpointID uuid.UUID
	Err          error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("checkpoint integrity violation in %s (%s): %v", e.Op, e.CheckpointID, e.Err)
}

func (e *IntegrityError) Unwrap() error { return e.Err }

// Integrity wraps err as a fatal IntegrityError.
func Integrity(op string, id uuid.UUID, err error) *IntegrityError {
	return &IntegrityError{Op: op, CheckpointID: id, Err: err}
}
