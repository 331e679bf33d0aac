package usecases

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/yangxiaofu/the-owners-sim-sub008/internal/core/activity"
	"github.com/yangxiaofu/the-owners-sim-sub008/internal/core/season"
)

// ErrNoProcessor reports a kind with no registered result processor.
var ErrNoProcessor = errors.New("no processor registered for activity kind")

// ProcessingError wraps a processor failure. It aborts the failing
// activity's nested checkpoint only; the rest of the day continues under
// the default failure policy.
type ProcessingError struct {
	ActivityID uuid.UUID
	Kind       activity.Kind
	Err        error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing %s result for %s failed: %v", e.Kind, e.ActivityID, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// ResultPipeline routes each activity result to the processor registered
// for its kind. The pipeline itself carries no domain knowledge beyond
// dispatch and error mapping.
// PRINCIPLES:
// - SRP: Handles only result dispatch
// - OCP: Extensible per kind via Register
type ResultPipeline struct {
	processors map[activity.Kind]ResultProcessor
}

// NewResultPipeline creates a pipeline with the built-in processors
// registered for every kind.
func NewResultPipeline() *ResultPipeline {
	p := &ResultPipeline{processors: make(map[activity.Kind]ResultProcessor)}
	p.Register(activity.KindGame, &GameProcessor{})
	p.Register(activity.KindTraining, &TrainingProcessor{})
	p.Register(activity.KindScouting, &ScoutingProcessor{})
	p.Register(activity.KindRest, &RestProcessor{})
	admin := &AdministrativeProcessor{}
	for _, k := range []activity.Kind{
		activity.KindAdministrative, activity.KindDeadline, activity.KindMilestone,
		activity.KindContractSigning, activity.KindContractRelease, activity.KindTrade,
	} {
		p.Register(k, admin)
	}
	return p
}

// Register installs a processor for a kind, replacing any previous one.
func (p *ResultPipeline) Register(kind activity.Kind, proc ResultProcessor) {
	p.processors[kind] = proc
}

// Process applies the result to season state through the processor
// registered for the activity's kind.
func (p *ResultPipeline) Process(res *activity.Result, act *activity.Activity, state *season.State) error {
	proc, ok := p.processors[act.Kind]
	if !ok {
		return &ProcessingError{ActivityID: act.ID, Kind: act.Kind, Err: ErrNoProcessor}
	}
	if err := proc.Process(res, act, state); err != nil {
		return &ProcessingError{ActivityID: act.ID, Kind: act.Kind, Err: err}
	}
	return nil
}
