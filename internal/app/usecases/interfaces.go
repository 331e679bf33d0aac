// Package usecases wires the calendar, checkpoint manager, executors and
// result pipeline into the advance-one-day state machine.
package usecases

import (
	"context"

	"github.com/google/uuid"

	"github.com/yangxiaofu/the-owners-sim-sub008/internal/core/activity"
	"github.com/yangxiaofu/the-owners-sim-sub008/internal/core/checkpoint"
	"github.com/yangxiaofu/the-owners-sim-sub008/internal/core/season"
)

// ActivityStore is the durable surface for activities and their results.
// Record writes happen inside the current transaction scope; the
// checkpoint manager alone issues savepoint commands.
type ActivityStore interface {
	checkpoint.SavepointStore

	// SaveActivity persists an activity row and returns its record id.
	SaveActivity(ctx context.Context, act *activity.Activity) (string, error)

	// SaveResult persists a result row and returns its record id.
	SaveResult(ctx context.Context, res *activity.Result) (string, error)

	// MarkCompleted flips the durable completion flag.
	MarkCompleted(ctx context.Context, id uuid.UUID) error
}

// CheckpointManager is the transaction boundary the scheduler drives.
type CheckpointManager interface {
	Create(ctx context.Context, name string) (*checkpoint.Checkpoint, error)
	Commit(ctx context.Context, id uuid.UUID) error
	Rollback(ctx context.Context, id uuid.UUID) error
	Track(recordID string) error
	Active() int
}

// ResultProcessor applies one activity kind's outcome to season-wide
// state. Implementations must be idempotent under replay: re-processing
// the same result after a rollback must leave state identical to a single
// invocation.
type ResultProcessor interface {
	Process(res *activity.Result, act *activity.Activity, state *season.State) error
}
