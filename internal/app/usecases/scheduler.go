package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/yangxiaofu/the-owners-sim-sub008/internal/app/dto"
	"github.com/yangxiaofu/the-owners-sim-sub008/internal/core/activity"
	"github.com/yangxiaofu/the-owners-sim-sub008/internal/core/calendar"
	"github.com/yangxiaofu/the-owners-sim-sub008/internal/core/season"
	"github.com/yangxiaofu/the-owners-sim-sub008/internal/infrastructure/metrics"
)

// Scheduler owns the calendar index and the current-day cursor, and drives
// the advance-one-day state machine that ties the checkpoint manager,
// activity executors and result pipeline together.
//
// Day advancement is single-threaded: SimulateDay holds the scheduler's
// lock for the whole day, so two drivers can never move the same cursor
// concurrently.
type Scheduler struct {
	cfg         dto.SimulationConfig
	index       *calendar.Index
	state       *season.State
	checkpoints CheckpointManager
	store       ActivityStore
	pipeline    *ResultPipeline
	executors   *ExecutorRegistry
	log         *slog.Logger
	mu          sync.Mutex
}

// NewScheduler wires a scheduler. The pipeline and executor registry fall
// back to the built-ins when nil. Force conflict policy is refused unless
// the config explicitly allows it.
func NewScheduler(
	cfg dto.SimulationConfig,
	state *season.State,
	store ActivityStore,
	checkpoints CheckpointManager,
	pipeline *ResultPipeline,
	executors *ExecutorRegistry,
	logger *slog.Logger,
) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if pipeline == nil {
		pipeline = NewResultPipeline()
	}
	if executors == nil {
		executors = NewExecutorRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:         cfg,
		index:       calendar.NewIndex(),
		state:       state,
		checkpoints: checkpoints,
		store:       store,
		pipeline:    pipeline,
		executors:   executors,
		log:         logger,
	}, nil
}

// CurrentDate returns the day cursor.
func (s *Scheduler) CurrentDate() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.CurrentDate
}

// State exposes the season state to the reporting layer. Callers must
// treat it as read-only.
func (s *Scheduler) State() *season.State { return s.state }

// Scheduled returns the number of activities in the calendar index.
func (s *Scheduler) Scheduled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Len()
}

// ScheduleActivity inserts the activity into the calendar, resolving any
// date/resource conflict per the configured policy. The only side effect
// beyond the index mutation is the durable activity row.
func (s *Scheduler) ScheduleActivity(ctx context.Context, act *activity.Activity) (*dto.ScheduleAck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if act == nil {
		return nil, calendar.ErrNilActivity
	}
	if err := act.Validate(); err != nil {
		return nil, err
	}
	if act.Date.Before(s.state.CurrentDate) {
		return nil, fmt.Errorf("%w: %s is before %s", calendar.ErrPastDate,
			act.Date.Format("2006-01-02"), s.state.CurrentDate.Format("2006-01-02"))
	}

	ack := &dto.ScheduleAck{ActivityID: act.ID, Date: act.Date}
	if existing := s.index.Conflicting(act); existing != nil {
		metrics.IncScheduleConflicts()
		switch s.cfg.ConflictPolicy {
		case calendar.PolicyReject:
			return nil, &calendar.ConflictError{
				Date:       act.Date,
				ActivityID: act.ID,
				ExistingID: existing.ID,
				TeamID:     act.TeamID,
				Resource:   act.Resource,
			}
		case calendar.PolicyReschedule:
			moved, err := s.rescheduleForward(act)
			if err != nil {
				return nil, err
			}
			ack = &dto.ScheduleAck{
				ActivityID:   moved.ID,
				Date:         moved.Date,
				Rescheduled:  true,
				OriginalDate: act.Date,
			}
			act = moved
			metrics.IncReschedules()
		case calendar.PolicyForce:
			// Insert regardless; gated behind cfg.AllowForce at
			// construction time.
		}
	}

	if err := s.index.Insert(act); err != nil {
		return nil, err
	}
	if recID, err := s.store.SaveActivity(ctx, act); err != nil {
		// Keep index and store consistent.
		_ = s.index.Remove(act.ID)
		return nil, err
	} else if trackErr := s.checkpoints.Track(recID); trackErr != nil {
		// No active checkpoint outside day simulation; nothing to track.
		s.log.Debug("activity row not tracked", "record", recID)
	}
	return ack, nil
}

// rescheduleForward finds the first free day within the horizon and
// returns a new activity scheduled there. The original is never moved in
// place.
func (s *Scheduler) rescheduleForward(act *activity.Activity) (*activity.Activity, error) {
	for offset := 1; offset <= s.cfg.RescheduleHorizonDays; offset++ {
		candidate := act.CloneAt(act.Date.AddDate(0, 0, offset))
		if s.index.Conflicting(candidate) == nil {
			return candidate, nil
		}
	}
	return nil, fmt.Errorf("%w: %d days from %s", calendar.ErrHorizonExhausted,
		s.cfg.RescheduleHorizonDays, act.Date.Format("2006-01-02"))
}

// SimulateDay executes every activity scheduled for the given day inside
// an outer checkpoint, isolating each activity in a nested checkpoint.
// Activity-level failures are collected as data and never escape as
// errors; only checkpoint integrity and store failures do, and those roll
// the whole day back, leaving the cursor unchanged so the call is
// idempotently retryable.
func (s *Scheduler) SimulateDay(ctx context.Context, date time.Time) (*dto.DaySimulationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	date = activity.Day(date)
	if !date.Equal(s.state.CurrentDate) {
		return nil, fmt.Errorf("%w: cursor is at %s, got %s", dto.ErrNotCurrentDay,
			s.state.CurrentDate.Format("2006-01-02"), date.Format("2006-01-02"))
	}

	res := &dto.DaySimulationResult{
		Date:      date,
		StartTime: time.Now().UTC(),
		States:    []dto.SimulationState{dto.StateIdle, dto.StateCheckpointing},
	}

	outer, err := s.checkpoints.Create(ctx, "advance_day")
	if err != nil {
		return nil, err
	}

	due := s.index.Due(date)
	// Stable sort: priority rank first, original insertion order within a
	// rank. Never nondeterministic.
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].Kind.Priority() < due[j].Kind.Priority()
	})

	res.States = append(res.States, dto.StateExecuting)

	// With workers > 1 the outcome computation runs in a bounded pool
	// before any state is touched; the nested-checkpoint application
	// below stays strictly serial either way.
	var pre []computed
	if s.cfg.Workers > 1 {
		pre = computeAll(ctx, s.executors, due, s.state, s.cfg.Workers)
	}

	res.States = append(res.States, dto.StateProcessing)

	type completion struct {
		act *activity.Activity
		res *activity.Result
	}
	var completions []completion
	var fatal error
	aborted := false

	for i, act := range due {
		if err := ctx.Err(); err != nil {
			fatal = err
			break
		}

		nested, err := s.checkpoints.Create(ctx, "activity:"+string(act.Kind))
		if err != nil {
			fatal = err
			break
		}

		var payload map[string]any
		var execErr error
		if pre != nil {
			payload, execErr = pre[i].payload, pre[i].err
		} else {
			payload, execErr = s.executors.Execute(ctx, act, s.state)
		}

		start := time.Now()
		failure := func(stage string, cause error) error {
			if rbErr := s.checkpoints.Rollback(ctx, nested.ID); rbErr != nil {
				return rbErr
			}
			metrics.AddActivityFailures(1)
			res.Failures = append(res.Failures, dto.ActivityFailure{
				ActivityID: act.ID,
				Kind:       act.Kind,
				TeamID:     act.TeamID,
				Stage:      stage,
				Error:      cause.Error(),
			})
			return nil
		}

		if execErr != nil {
			execErr = &activity.ExecError{ActivityID: act.ID, Kind: act.Kind, Err: execErr}
			if fatal = failure("execute", execErr); fatal != nil {
				break
			}
			if s.cfg.FailurePolicy == dto.FailureAbortDay {
				aborted = true
				break
			}
			continue
		}

		result := activity.NewResult(act.ID, payload)
		recID, err := s.store.SaveResult(ctx, result)
		if err == nil {
			if trackErr := s.checkpoints.Track(recID); trackErr != nil {
				fatal = trackErr
				break
			}
			err = s.pipeline.Process(result, act, s.state)
		}
		if err == nil {
			err = s.store.MarkCompleted(ctx, act.ID)
		}
		if err != nil {
			if fatal = failure("process", err); fatal != nil {
				break
			}
			if s.cfg.FailurePolicy == dto.FailureAbortDay {
				aborted = true
				break
			}
			continue
		}

		if err := s.checkpoints.Commit(ctx, nested.ID); err != nil {
			fatal = err
			break
		}
		completions = append(completions, completion{act: act, res: result})
		res.Outcomes = append(res.Outcomes, dto.ActivityOutcome{
			ActivityID: act.ID,
			Kind:       act.Kind,
			TeamID:     act.TeamID,
			Payload:    payload,
			Duration:   time.Since(start),
		})
	}

	// Phase advancement runs under its own nested checkpoint once every
	// activity of the current stage is accounted for.
	if fatal == nil && !aborted && s.state.PhaseComplete() {
		pcp, err := s.checkpoints.Create(ctx, "phase_advance")
		if err != nil {
			fatal = err
		} else if s.state.AdvancePhase() {
			if err := s.checkpoints.Commit(ctx, pcp.ID); err != nil {
				fatal = err
			} else {
				res.PhaseAdvanced = true
			}
		}
	}

	if fatal != nil || aborted {
		res.States = append(res.States, dto.StateRollingBack, dto.StateIdle)
		if rbErr := s.checkpoints.Rollback(ctx, outer.ID); rbErr != nil {
			s.log.Error("outer checkpoint rollback failed", "error", rbErr)
			if fatal == nil {
				fatal = rbErr
			}
		}
		metrics.IncRollbacks()
		if fatal != nil {
			return nil, fatal
		}
		res.Status = dto.DayStatusAborted
		res.Phase = s.state.Phase
		res.EndTime = time.Now().UTC()
		res.Duration = res.EndTime.Sub(res.StartTime)
		s.log.Warn("day aborted", "date", date.Format("2006-01-02"),
			"failures", len(res.Failures))
		return res, nil
	}

	res.States = append(res.States, dto.StateCommitting)
	s.state.CurrentDate = date.AddDate(0, 0, 1)
	s.state.DaysSimulated++

	if err := s.checkpoints.Commit(ctx, outer.ID); err != nil {
		res.States = append(res.States, dto.StateRollingBack, dto.StateIdle)
		if rbErr := s.checkpoints.Rollback(ctx, outer.ID); rbErr != nil {
			s.log.Error("outer checkpoint rollback failed", "error", rbErr)
		}
		metrics.IncRollbacks()
		return nil, err
	}

	// The day is durable; only now flip the in-memory completion flags so
	// a rolled-back day leaves activities executable on retry.
	for _, c := range completions {
		if err := c.act.Complete(c.res); err != nil {
			s.log.Warn("completion flag not set", "activity", c.act.ID, "error", err)
		}
	}

	res.Status = dto.DayStatusCompleted
	res.Phase = s.state.Phase
	res.EndTime = time.Now().UTC()
	res.Duration = res.EndTime.Sub(res.StartTime)

	metrics.IncDaysSimulated()
	metrics.AddActivitiesExecuted(int64(len(res.Outcomes)))
	s.log.Info("day simulated",
		"date", date.Format("2006-01-02"),
		"executed", len(res.Outcomes),
		"failures", len(res.Failures),
		"phase", res.Phase,
		"phase_advanced", res.PhaseAdvanced)
	return res, nil
}

// AdvanceToDate simulates day by day until the cursor reaches target or a
// day fails fatally, returning the accumulated per-day results either way.
func (s *Scheduler) AdvanceToDate(ctx context.Context, target time.Time) (*dto.AdvanceReport, error) {
	target = activity.Day(target)
	report := &dto.AdvanceReport{From: s.CurrentDate(), To: target}
	if !target.After(report.From) {
		return nil, dto.ErrTargetInPast
	}

	for s.CurrentDate().Before(target) {
		day, err := s.SimulateDay(ctx, s.CurrentDate())
		if err != nil {
			report.Halted = true
			report.Error = err.Error()
			return report, err
		}
		report.Days = append(report.Days, day)
		if day.Status == dto.DayStatusAborted {
			// The cursor did not move; retrying would loop forever.
			report.Halted = true
			report.Error = "day aborted by failure policy"
			return report, nil
		}
	}
	return report, nil
}

// AdvanceWeek advances seven days from the cursor.
func (s *Scheduler) AdvanceWeek(ctx context.Context) (*dto.AdvanceReport, error) {
	return s.AdvanceToDate(ctx, s.CurrentDate().AddDate(0, 0, 7))
}
