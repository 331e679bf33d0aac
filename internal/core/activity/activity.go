// Package activity provides the core activity domain entities and interfaces
// following Clean Architecture principles with zero external dependencies
// beyond identity generation.
package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind is the discriminated activity kind. The set is closed: the result
// pipeline dispatches exhaustively over these values.
type Kind string

const (
	KindGame            Kind = "game"
	KindTraining        Kind = "training"
	KindScouting        Kind = "scouting"
	KindRest            Kind = "rest"
	KindAdministrative  Kind = "administrative"
	KindDeadline        Kind = "deadline"
	KindMilestone       Kind = "milestone"
	KindContractSigning Kind = "contract_signing"
	KindContractRelease Kind = "contract_release"
	KindTrade           Kind = "trade"
)

// Kinds lists every valid activity kind.
var Kinds = []Kind{
	KindGame, KindTraining, KindScouting, KindRest,
	KindAdministrative, KindDeadline, KindMilestone,
	KindContractSigning, KindContractRelease, KindTrade,
}

// Valid reports whether k is a known activity kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Priority returns the same-day execution rank for the kind. Lower ranks
// execute first: Game > Training > Scouting > Rest > administrative-class
// kinds (administrative, deadline, milestone, contract and trade
// transactions all share the lowest rank).
func (k Kind) Priority() int {
	switch k {
	case KindGame:
		return 0
	case KindTraining:
		return 1
	case KindScouting:
		return 2
	case KindRest:
		return 3
	default:
		return 4
	}
}

// Activity represents a single unit of scheduled work for one calendar day.
// PRINCIPLES:
// - KISS: Simple struct with clear fields
// - SRP: Only responsible for activity identity and scheduling data
//
// An activity is immutable once created except for its completion flag and
// its write-once result. It is never rescheduled in place; conflict
// resolution creates a new activity at a new date instead.
type Activity struct {
	ID        uuid.UUID `json:"id"`
	Kind      Kind      `json:"kind"`
	Date      time.Time `json:"date"`
	TeamID    string    `json:"team_id"`
	Resource  string    `json:"resource"`
	Seq       uint64    `json:"seq"`
	Completed bool      `json:"completed"`
	Result    *Result   `json:"result,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// Meta carries kind-specific inputs fixed at creation time, e.g. the
	// opponent for a game or the player for a contract action.
	Meta map[string]string `json:"meta,omitempty"`
}

// New creates an activity for the given kind, day, team and resource.
// The date is normalized to UTC midnight.
func New(kind Kind, date time.Time, teamID, resource string) (*Activity, error) {
	if !kind.Valid() {
		return nil, ErrInvalidKind
	}
	if teamID == "" {
		return nil, ErrMissingTeam
	}
	return &Activity{
		ID:        uuid.New(),
		Kind:      kind,
		Date:      Day(date),
		TeamID:    teamID,
		Resource:  resource,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// CloneAt returns a fresh activity with its own identity scheduled at the
// given day, preserving kind, team, resource and meta. Conflict
// resolution uses it instead of moving an activity in place.
func (a *Activity) CloneAt(date time.Time) *Activity {
	clone := &Activity{
		ID:        uuid.New(),
		Kind:      a.Kind,
		Date:      Day(date),
		TeamID:    a.TeamID,
		Resource:  a.Resource,
		CreatedAt: time.Now().UTC(),
	}
	if len(a.Meta) > 0 {
		clone.Meta = make(map[string]string, len(a.Meta))
		for k, v := range a.Meta {
			clone.Meta[k] = v
		}
	}
	return clone
}

// Day truncates t to UTC midnight, the granularity of the calendar.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Complete attaches the write-once result and marks the activity done.
func (a *Activity) Complete(r *Result) error {
	if r == nil {
		return ErrNilResult
	}
	if a.Completed || a.Result != nil {
		return ErrResultAttached
	}
	if r.ActivityID != a.ID {
		return ErrResultMismatch
	}
	a.Result = r
	a.Completed = true
	return nil
}

// ConflictsWith reports whether b competes for the same day/resource slot:
// same team on the same day, with an overlapping resource. An empty
// resource on either side conflicts with anything the team does that day.
func (a *Activity) ConflictsWith(b *Activity) bool {
	if b == nil || a.TeamID != b.TeamID || !a.Date.Equal(b.Date) {
		return false
	}
	if a.Resource == "" || b.Resource == "" {
		return true
	}
	return a.Resource == b.Resource
}

// Validate ensures activity integrity.
func (a *Activity) Validate() error {
	if a.ID == uuid.Nil {
		return ErrInvalidID
	}
	if !a.Kind.Valid() {
		return ErrInvalidKind
	}
	if a.TeamID == "" {
		return ErrMissingTeam
	}
	return nil
}

// View exposes read-only season-wide state to activity executors. The
// concrete implementation lives with the season state; executors must not
// mutate anything behind it (all mutation goes through the result
// pipeline).
type View interface {
	// CurrentDay returns the calendar day being simulated.
	CurrentDay() time.Time

	// SeasonPhase returns the current phase name.
	SeasonPhase() string

	// Record returns the win/loss/tie record for a team.
	Record(teamID string) (wins, losses, ties int)
}

// Executor is the capability contract for a single activity kind: compute
// the activity's outcome payload without touching season-wide state.
// PRINCIPLES:
// - ISP: Single-method interface
// - DIP: The scheduler depends on this abstraction, domain logic providers
//   register concrete implementations per kind
type Executor interface {
	Execute(ctx context.Context, act *Activity, view View) (map[string]any, error)
}
