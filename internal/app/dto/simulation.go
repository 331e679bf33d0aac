// Package dto carries the requests, configuration, and structured results
// exchanged between the scheduling engine and its callers. The engine
// never formats output; the reporting layer reads these structs.
package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/yangxiaofu/the-owners-sim-sub008/internal/core/activity"
	"github.com/yangxiaofu/the-owners-sim-sub008/internal/core/calendar"
	"github.com/yangxiaofu/the-owners-sim-sub008/internal/core/season"
)

// FailurePolicy controls whether an activity-level failure aborts the
// whole day or is collected while the day continues.
type FailurePolicy string

const (
	// FailureContinue collects failures and keeps executing; independent
	// teams' activities on the same day must not block one another.
	FailureContinue FailurePolicy = "continue"

	// FailureAbortDay rolls back the entire day on the first failure.
	FailureAbortDay FailurePolicy = "abort_day"
)

// SimulationConfig configures a scheduler instance.
type SimulationConfig struct {
	ConflictPolicy        calendar.ConflictPolicy `json:"conflict_policy" validate:"required"`
	RescheduleHorizonDays int                     `json:"reschedule_horizon_days" validate:"gte=0"`
	FailurePolicy         FailurePolicy           `json:"failure_policy"`
	Workers               int                     `json:"workers" validate:"gte=0"`

	// AllowForce gates calendar.PolicyForce; tests set it, production
	// wiring never does.
	AllowForce bool `json:"allow_force"`
}

// Validate applies defaults and rejects invalid combinations.
func (c *SimulationConfig) Validate() error {
	if c.ConflictPolicy == "" {
		c.ConflictPolicy = calendar.PolicyReject
	}
	if !c.ConflictPolicy.Valid() {
		return calendar.ErrInvalidPolicy
	}
	if c.ConflictPolicy == calendar.PolicyForce && !c.AllowForce {
		return calendar.ErrForceDisabled
	}
	if c.RescheduleHorizonDays <= 0 {
		c.RescheduleHorizonDays = calendar.DefaultRescheduleHorizonDays
	}
	if c.FailurePolicy == "" {
		c.FailurePolicy = FailureContinue
	}
	if c.FailurePolicy != FailureContinue && c.FailurePolicy != FailureAbortDay {
		return ErrInvalidFailurePolicy
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	return nil
}

// ScheduleAck acknowledges a successful insertion. Rescheduled is set when
// the conflict policy moved the activity forward from its requested date.
type ScheduleAck struct {
	ActivityID   uuid.UUID `json:"activity_id"`
	Date         time.Time `json:"date"`
	Rescheduled  bool      `json:"rescheduled"`
	OriginalDate time.Time `json:"original_date,omitempty"`
}

// DayStatus is the terminal status of one simulated day.
type DayStatus string

const (
	DayStatusCompleted DayStatus = "completed"
	DayStatusAborted   DayStatus = "aborted"
)

// SimulationState labels the simulate-day state machine stages; results
// report the transitions taken for observability.
type SimulationState string

const (
	StateIdle          SimulationState = "idle"
	StateCheckpointing SimulationState = "checkpointing"
	StateExecuting     SimulationState = "executing"
	StateProcessing    SimulationState = "processing"
	StateCommitting    SimulationState = "committing"
	StateRollingBack   SimulationState = "rolling_back"
)

// ActivityOutcome summarizes one successfully executed activity.
type ActivityOutcome struct {
	ActivityID uuid.UUID      `json:"activity_id"`
	Kind       activity.Kind  `json:"kind"`
	TeamID     string         `json:"team_id"`
	Payload    map[string]any `json:"payload,omitempty"`
	Duration   time.Duration  `json:"duration"`
}

// ActivityFailure records one isolated activity failure. Stage is
// "execute" when the activity's own computation failed and "process" when
// the result pipeline rejected its outcome.
type ActivityFailure struct {
	ActivityID uuid.UUID     `json:"activity_id"`
	Kind       activity.Kind `json:"kind"`
	TeamID     string        `json:"team_id"`
	Stage      string        `json:"stage"`
	Error      string        `json:"error"`
}

// DaySimulationResult summarizes one advance-day call.
type DaySimulationResult struct {
	Date          time.Time         `json:"date"`
	Status        DayStatus         `json:"status"`
	States        []SimulationState `json:"states"`
	Outcomes      []ActivityOutcome `json:"outcomes"`
	Failures      []ActivityFailure `json:"failures"`
	PhaseAdvanced bool              `json:"phase_advanced"`
	Phase         season.Phase      `json:"phase"`
	StartTime     time.Time         `json:"start_time"`
	EndTime       time.Time         `json:"end_time"`
	Duration      time.Duration     `json:"duration"`
}

// AdvanceReport accumulates per-day results from advance-week or
// advance-to-date runs. Halted is set when a day failed fatally before
// the target was reached.
type AdvanceReport struct {
	From   time.Time              `json:"from"`
	To     time.Time              `json:"to"`
	Days   []*DaySimulationResult `json:"days"`
	Halted bool                   `json:"halted"`
	Error  string                 `json:"error,omitempty"`
}
