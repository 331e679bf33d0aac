// Package calendar defines domain-specific errors
package calendar

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNilActivity       = errors.New("activity cannot be nil")
	ErrDuplicateActivity = errors.New("activity already scheduled")
	ErrUnknownActivity   = errors.New("activity not scheduled")
	ErrInvalidPolicy     = errors.New("invalid conflict policy")
	ErrPastDate          = errors.New("cannot schedule before the current day")
	ErrHorizonExhausted  = errors.New("no free date within reschedule horizon")
	ErrForceDisabled     = errors.New("force policy is not enabled on this scheduler")
)

// ConflictError reports a scheduling collision under PolicyReject. It is
// recoverable: the caller may retry under a different policy or date.
type ConflictError struct {
	Date       time.Time
	ActivityID uuid.UUID
	ExistingID uuid.UUID
	TeamID     string
	Resource   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("scheduling conflict on %s: team %q resource %q already taken by %s",
		e.Date.Format("2006-01-02"), e.TeamID, e.Resource, e.ExistingID)
}
