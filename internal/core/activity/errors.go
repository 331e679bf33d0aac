// Package activity defines domain-specific errors
package activity

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Domain errors - defined once, used everywhere
var (
	ErrInvalidID      = errors.New("invalid activity ID")
	ErrInvalidKind    = errors.New("invalid activity kind")
	ErrMissingTeam    = errors.New("activity team ID is required")
	ErrNilResult      = errors.New("activity result cannot be nil")
	ErrResultAttached = errors.New("activity already has a result")
	ErrResultMismatch = errors.New("result belongs to a different activity")
	ErrEmptyFailure   = errors.New("failure result must carry an error message")
	ErrNoExecutor     = errors.New("no executor registered for activity kind")
)

// ExecError wraps a failure raised by an activity's executor. It is
// recoverable: the scheduler isolates it inside the activity's nested
// checkpoint and collects it as data, it never escapes day simulation.
type ExecError struct {
	ActivityID uuid.UUID
	Kind       Kind
	Err        error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("activity %s (%s) failed: %v", e.ActivityID, e.Kind, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }
