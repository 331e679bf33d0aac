package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yangxiaofu/the-owners-sim-sub008/internal/adapters/repository/memory"
	"github.com/yangxiaofu/the-owners-sim-sub008/internal/app/dto"
	"github.com/yangxiaofu/the-owners-sim-sub008/internal/app/services"
	"github.com/yangxiaofu/the-owners-sim-sub008/internal/core/activity"
	"github.com/yangxiaofu/the-owners-sim-sub008/internal/core/calendar"
	"github.com/yangxiaofu/the-owners-sim-sub008/internal/core/checkpoint"
	"github.com/yangxiaofu/the-owners-sim-sub008/internal/core/season"
)

type harness struct {
	sched    *Scheduler
	state    *season.State
	store    *memory.Store
	pipeline *ResultPipeline
}

func newHarness(t *testing.T, cfg dto.SimulationConfig) *harness {
	t.Helper()
	state := season.NewState(testDay)
	store := memory.NewStore()
	pipeline := NewResultPipeline()
	mgr := services.NewCheckpointManager(store, state, slog.Default())
	sched, err := NewScheduler(cfg, state, store, mgr, pipeline, NewExecutorRegistry(), slog.Default())
	require.NoError(t, err)
	return &harness{sched: sched, state: state, store: store, pipeline: pipeline}
}

func schedule(t *testing.T, h *harness, kind activity.Kind, team, resource string, day time.Time, meta map[string]string) *activity.Activity {
	t.Helper()
	act, err := activity.New(kind, day, team, resource)
	require.NoError(t, err)
	act.Meta = meta
	_, err = h.sched.ScheduleActivity(context.Background(), act)
	require.NoError(t, err)
	return act
}

// failingProcessor fails for one team and delegates otherwise.
type failingProcessor struct {
	team     string
	delegate ResultProcessor
}

func (p *failingProcessor) Process(res *activity.Result, act *activity.Activity, state *season.State) error {
	if act.TeamID == p.team {
		return errors.New("fatigue model diverged")
	}
	return p.delegate.Process(res, act, state)
}

func TestScheduleActivity(t *testing.T) {
	ctx := context.Background()

	t.Run("acks and persists", func(t *testing.T) {
		h := newHarness(t, dto.SimulationConfig{})
		act, err := activity.New(activity.KindTraining, testDay, "lions", "field-a")
		require.NoError(t, err)

		ack, err := h.sched.ScheduleActivity(ctx, act)
		require.NoError(t, err)
		assert.Equal(t, act.ID, ack.ActivityID)
		assert.False(t, ack.Rescheduled)
		assert.Equal(t, 1, h.sched.Scheduled())
		assert.True(t, h.store.Has("activity:"+act.ID.String()))
	})

	t.Run("reject policy returns ConflictError and leaves index unchanged", func(t *testing.T) {
		h := newHarness(t, dto.SimulationConfig{ConflictPolicy: calendar.PolicyReject})
		schedule(t, h, activity.KindGame, "lions", "stadium", testDay, map[string]string{"opponent": "bears"})

		dup, err := activity.New(activity.KindTraining, testDay, "lions", "stadium")
		require.NoError(t, err)
		_, err = h.sched.ScheduleActivity(ctx, dup)

		var ce *calendar.ConflictError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "lions", ce.TeamID)
		assert.Equal(t, 1, h.sched.Scheduled())
	})

	t.Run("reschedule policy moves forward to first free day", func(t *testing.T) {
		h := newHarness(t, dto.SimulationConfig{ConflictPolicy: calendar.PolicyReschedule})
		schedule(t, h, activity.KindGame, "lions", "stadium", testDay, map[string]string{"opponent": "bears"})

		dup, err := activity.New(activity.KindTraining, testDay, "lions", "stadium")
		require.NoError(t, err)
		ack, err := h.sched.ScheduleActivity(ctx, dup)
		require.NoError(t, err)

		assert.True(t, ack.Rescheduled)
		assert.Equal(t, testDay, ack.OriginalDate)
		assert.Equal(t, testDay.AddDate(0, 0, 1), ack.Date)
		assert.NotEqual(t, dup.ID, ack.ActivityID)
		assert.Equal(t, 2, h.sched.Scheduled())
	})

	t.Run("reschedule horizon exhausts", func(t *testing.T) {
		h := newHarness(t, dto.SimulationConfig{ConflictPolicy: calendar.PolicyReschedule, RescheduleHorizonDays: 2})
		for offset := 0; offset <= 2; offset++ {
			schedule(t, h, activity.KindRest, "lions", "", testDay.AddDate(0, 0, offset), nil)
		}

		blocked, err := activity.New(activity.KindTraining, testDay, "lions", "field-a")
		require.NoError(t, err)
		_, err = h.sched.ScheduleActivity(ctx, blocked)
		assert.ErrorIs(t, err, calendar.ErrHorizonExhausted)
	})

	t.Run("force policy requires explicit enablement", func(t *testing.T) {
		state := season.NewState(testDay)
		store := memory.NewStore()
		mgr := services.NewCheckpointManager(store, state, slog.Default())
		_, err := NewScheduler(dto.SimulationConfig{ConflictPolicy: calendar.PolicyForce},
			state, store, mgr, nil, nil, slog.Default())
		assert.ErrorIs(t, err, calendar.ErrForceDisabled)
	})

	t.Run("force policy inserts over conflicts when allowed", func(t *testing.T) {
		h := newHarness(t, dto.SimulationConfig{ConflictPolicy: calendar.PolicyForce, AllowForce: true})
		schedule(t, h, activity.KindGame, "lions", "stadium", testDay, map[string]string{"opponent": "bears"})
		schedule(t, h, activity.KindTraining, "lions", "stadium", testDay, nil)
		assert.Equal(t, 2, h.sched.Scheduled())
	})

	t.Run("rejects retroactive scheduling", func(t *testing.T) {
		h := newHarness(t, dto.SimulationConfig{})
		act, err := activity.New(activity.KindRest, testDay.AddDate(0, 0, -1), "lions", "")
		require.NoError(t, err)
		_, err = h.sched.ScheduleActivity(ctx, act)
		assert.ErrorIs(t, err, calendar.ErrPastDate)
	})
}

func TestSimulateDay(t *testing.T) {
	ctx := context.Background()

	t.Run("game executes first, trainings in insertion order", func(t *testing.T) {
		h := newHarness(t, dto.SimulationConfig{})
		t1 := schedule(t, h, activity.KindTraining, "bears", "field-b", testDay, nil)
		t2 := schedule(t, h, activity.KindTraining, "packers", "field-p", testDay, nil)
		t3 := schedule(t, h, activity.KindTraining, "vikings", "field-v", testDay, nil)
		game := schedule(t, h, activity.KindGame, "lions", "stadium", testDay, map[string]string{"opponent": "eagles"})

		res, err := h.sched.SimulateDay(ctx, testDay)
		require.NoError(t, err)

		require.Len(t, res.Outcomes, 4)
		assert.Equal(t, game.ID, res.Outcomes[0].ActivityID)
		assert.Equal(t, t1.ID, res.Outcomes[1].ActivityID)
		assert.Equal(t, t2.ID, res.Outcomes[2].ActivityID)
		assert.Equal(t, t3.ID, res.Outcomes[3].ActivityID)
		assert.Equal(t, dto.DayStatusCompleted, res.Status)
		assert.Empty(t, res.Failures)
	})

	t.Run("processor failure is isolated, day still advances", func(t *testing.T) {
		h := newHarness(t, dto.SimulationConfig{})
		h.pipeline.Register(activity.KindTraining, &failingProcessor{
			team:     "packers",
			delegate: &TrainingProcessor{},
		})

		schedule(t, h, activity.KindTraining, "bears", "field-b", testDay, nil)
		failed := schedule(t, h, activity.KindTraining, "packers", "field-p", testDay, nil)
		schedule(t, h, activity.KindTraining, "vikings", "field-v", testDay, nil)
		schedule(t, h, activity.KindGame, "lions", "stadium", testDay, map[string]string{"opponent": "eagles"})

		res, err := h.sched.SimulateDay(ctx, testDay)
		require.NoError(t, err)

		assert.Len(t, res.Outcomes, 3)
		require.Len(t, res.Failures, 1)
		assert.Equal(t, failed.ID, res.Failures[0].ActivityID)
		assert.Equal(t, "process", res.Failures[0].Stage)
		assert.Equal(t, testDay.AddDate(0, 0, 1), h.sched.CurrentDate())

		// Atomicity: the failed activity's result row was rolled back.
		assert.False(t, h.store.Has("result:"+failed.ID.String()))
		// Its in-memory completion flag never flipped either.
		assert.False(t, failed.Completed)
	})

	t.Run("abort policy rolls the whole day back", func(t *testing.T) {
		h := newHarness(t, dto.SimulationConfig{FailurePolicy: dto.FailureAbortDay})
		h.pipeline.Register(activity.KindTraining, &failingProcessor{
			team:     "packers",
			delegate: &TrainingProcessor{},
		})
		game := schedule(t, h, activity.KindGame, "lions", "stadium", testDay, map[string]string{"opponent": "eagles"})
		schedule(t, h, activity.KindTraining, "packers", "field-p", testDay, nil)

		res, err := h.sched.SimulateDay(ctx, testDay)
		require.NoError(t, err)

		assert.Equal(t, dto.DayStatusAborted, res.Status)
		assert.Equal(t, testDay, h.sched.CurrentDate())
		// The game's standings update was discarded with the outer
		// checkpoint.
		assert.Empty(t, h.state.Standings)
		assert.False(t, h.store.Has("result:"+game.ID.String()))
	})

	t.Run("wrong date is rejected", func(t *testing.T) {
		h := newHarness(t, dto.SimulationConfig{})
		_, err := h.sched.SimulateDay(ctx, testDay.AddDate(0, 0, 3))
		assert.ErrorIs(t, err, dto.ErrNotCurrentDay)
	})

	t.Run("empty day advances the cursor", func(t *testing.T) {
		h := newHarness(t, dto.SimulationConfig{})
		res, err := h.sched.SimulateDay(ctx, testDay)
		require.NoError(t, err)
		assert.Empty(t, res.Outcomes)
		assert.Equal(t, 1, h.state.DaysSimulated)
		assert.Equal(t, testDay.AddDate(0, 0, 1), h.sched.CurrentDate())
	})

	t.Run("phase advances under its own checkpoint", func(t *testing.T) {
		h := newHarness(t, dto.SimulationConfig{})
		h.state.Phase = season.PhaseRegularSeason
		h.state.RegularSeasonGames = 1
		schedule(t, h, activity.KindGame, "lions", "stadium", testDay, map[string]string{"opponent": "bears"})

		res, err := h.sched.SimulateDay(ctx, testDay)
		require.NoError(t, err)
		assert.True(t, res.PhaseAdvanced)
		assert.Equal(t, season.PhasePlayoffs, res.Phase)
		assert.NotEmpty(t, h.state.Bracket)
	})

	t.Run("state machine stages are reported in order", func(t *testing.T) {
		h := newHarness(t, dto.SimulationConfig{})
		res, err := h.sched.SimulateDay(ctx, testDay)
		require.NoError(t, err)
		assert.Equal(t, []dto.SimulationState{
			dto.StateIdle, dto.StateCheckpointing, dto.StateExecuting,
			dto.StateProcessing, dto.StateCommitting,
		}, res.States)
	})
}

// releaseFailStore wraps the memory store and fails the outer release to
// force a fatal commit error.
type releaseFailStore struct {
	*memory.Store
	failOn string
}

func (s *releaseFailStore) Release(ctx context.Context, name string) error {
	if name == s.failOn {
		return errors.New("store connection lost")
	}
	return s.Store.Release(ctx, name)
}

func TestSimulateDayFatal(t *testing.T) {
	ctx := context.Background()

	t.Run("outer commit failure leaves cursor unchanged and is retryable", func(t *testing.T) {
		state := season.NewState(testDay)
		store := &releaseFailStore{Store: memory.NewStore(), failOn: "sp_1"}
		mgr := services.NewCheckpointManager(store, state, slog.Default())
		sched, err := NewScheduler(dto.SimulationConfig{}, state, store, mgr, nil, nil, slog.Default())
		require.NoError(t, err)

		act, err := activity.New(activity.KindRest, testDay, "lions", "")
		require.NoError(t, err)
		_, err = sched.ScheduleActivity(ctx, act)
		require.NoError(t, err)

		_, err = sched.SimulateDay(ctx, testDay)
		var ie *checkpoint.IntegrityError
		require.ErrorAs(t, err, &ie)
		assert.Equal(t, testDay, sched.CurrentDate())
		assert.Equal(t, 0, state.DaysSimulated)
		assert.Equal(t, 0, state.ActivitiesExecuted)
		assert.Equal(t, 0, mgr.Active())

		// Retry succeeds once the store recovers.
		store.failOn = ""
		res, err := sched.SimulateDay(ctx, testDay)
		require.NoError(t, err)
		assert.Equal(t, dto.DayStatusCompleted, res.Status)
		assert.Len(t, res.Outcomes, 1)
		assert.Equal(t, testDay.AddDate(0, 0, 1), sched.CurrentDate())
	})

	t.Run("cancelled context rolls the day back", func(t *testing.T) {
		h := newHarness(t, dto.SimulationConfig{})
		schedule(t, h, activity.KindRest, "lions", "", testDay, nil)

		cancelled, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := h.sched.SimulateDay(cancelled, testDay)
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, testDay, h.sched.CurrentDate())
	})
}

func TestDeterminism(t *testing.T) {
	run := func() []uuid.UUID {
		h := newHarness(t, dto.SimulationConfig{})
		teams := []string{"bears", "packers", "vikings"}
		for i, team := range teams {
			act, err := activity.New(activity.KindTraining, testDay, team, fmt.Sprintf("field-%d", i))
			require.NoError(t, err)
			act.ID = uuid.MustParse(fmt.Sprintf("00000000-0000-0000-0000-00000000000%d", i+1))
			_, err = h.sched.ScheduleActivity(context.Background(), act)
			require.NoError(t, err)
		}
		game, err := activity.New(activity.KindGame, testDay, "lions", "stadium")
		require.NoError(t, err)
		game.ID = uuid.MustParse("00000000-0000-0000-0000-000000000009")
		game.Meta = map[string]string{"opponent": "eagles"}
		_, err = h.sched.ScheduleActivity(context.Background(), game)
		require.NoError(t, err)

		res, err := h.sched.SimulateDay(context.Background(), testDay)
		require.NoError(t, err)
		ids := make([]uuid.UUID, 0, len(res.Outcomes))
		for _, o := range res.Outcomes {
			ids = append(ids, o.ActivityID)
		}
		return ids
	}

	first := run()
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, run(), "execution order must be stable across runs")
	}
}

func TestAdvance(t *testing.T) {
	ctx := context.Background()

	t.Run("advance week simulates seven days", func(t *testing.T) {
		h := newHarness(t, dto.SimulationConfig{})
		report, err := h.sched.AdvanceWeek(ctx)
		require.NoError(t, err)
		assert.Len(t, report.Days, 7)
		assert.False(t, report.Halted)
		assert.Equal(t, testDay.AddDate(0, 0, 7), h.sched.CurrentDate())
		assert.Equal(t, 7, h.state.DaysSimulated)
	})

	t.Run("advance to date rejects past targets", func(t *testing.T) {
		h := newHarness(t, dto.SimulationConfig{})
		_, err := h.sched.AdvanceToDate(ctx, testDay)
		assert.ErrorIs(t, err, dto.ErrTargetInPast)
	})

	t.Run("halts when a day aborts", func(t *testing.T) {
		h := newHarness(t, dto.SimulationConfig{FailurePolicy: dto.FailureAbortDay})
		h.pipeline.Register(activity.KindTraining, &failingProcessor{
			team:     "packers",
			delegate: &TrainingProcessor{},
		})
		schedule(t, h, activity.KindTraining, "packers", "field-p", testDay.AddDate(0, 0, 2), nil)

		report, err := h.sched.AdvanceToDate(ctx, testDay.AddDate(0, 0, 5))
		require.NoError(t, err)
		assert.True(t, report.Halted)
		assert.Len(t, report.Days, 3)
		assert.Equal(t, testDay.AddDate(0, 0, 2), h.sched.CurrentDate())
	})
}
