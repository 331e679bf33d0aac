package activity

import (
	"time"

	"github.com/google/uuid"
)

// Result is the structured outcome of executing one activity. A result is
// attached to exactly one activity and is write-once: nothing mutates a
// result after construction.
type Result struct {
	ActivityID uuid.UUID      `json:"activity_id"`
	Success    bool           `json:"success"`
	Payload    map[string]any `json:"payload,omitempty"`
	Err        string         `json:"error,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// NewResult builds a success result carrying the kind-specific payload.
func NewResult(activityID uuid.UUID, payload map[string]any) *Result {
	return &Result{
		ActivityID: activityID,
		Success:    true,
		Payload:    payload,
		Timestamp:  time.Now().UTC(),
	}
}

// NewFailureResult builds a failure result recording the error message.
func NewFailureResult(activityID uuid.UUID, err error) *Result {
	r := &Result{
		ActivityID: activityID,
		Success:    false,
		Timestamp:  time.Now().UTC(),
	}
	if err != nil {
		r.Err = err.Error()
	}
	return r
}

// Validate ensures result integrity.
func (r *Result) Validate() error {
	if r.ActivityID == uuid.Nil {
		return ErrInvalidID
	}
	if !r.Success && r.Err == "" {
		return ErrEmptyFailure
	}
	return nil
}
