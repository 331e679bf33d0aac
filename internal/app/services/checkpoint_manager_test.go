package services

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yangxiaofu/the-owners-sim-sub008/internal/core/activity"
	"github.com/yangxiaofu/the-owners-sim-sub008/internal/core/checkpoint"
	"github.com/yangxiaofu/the-owners-sim-sub008/internal/core/season"
)

// fakeStore records savepoint traffic and tracked-record deletions.
type fakeStore struct {
	savepoints []string
	released   []string
	rolledBack []string
	deleted    []string
	failOn     string
}

func (f *fakeStore) Savepoint(_ context.Context, name string) error {
	if f.failOn == "savepoint" {
		return errors.New("disk full")
	}
	f.savepoints = append(f.savepoints, name)
	return nil
}

func (f *fakeStore) Release(_ context.Context, name string) error {
	if f.failOn == "release" {
		return errors.New("disk full")
	}
	f.released = append(f.released, name)
	return nil
}

func (f *fakeStore) RollbackTo(_ context.Context, name string) error {
	if f.failOn == "rollback" {
		return errors.New("disk full")
	}
	f.rolledBack = append(f.rolledBack, name)
	return nil
}

func (f *fakeStore) DeleteRecord(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func newManager(t *testing.T) (*CheckpointManager, *fakeStore, *season.State) {
	t.Helper()
	store := &fakeStore{}
	state := season.NewState(time.Date(2025, 9, 8, 0, 0, 0, 0, time.UTC))
	mgr := NewCheckpointManager(store, state, slog.Default())
	return mgr, store, state
}

func TestCreate(t *testing.T) {
	t.Run("links parent to stack top", func(t *testing.T) {
		mgr, _, _ := newManager(t)
		ctx := context.Background()

		outer, err := mgr.Create(ctx, "advance_day")
		require.NoError(t, err)
		inner, err := mgr.Create(ctx, "activity")
		require.NoError(t, err)

		assert.Equal(t, uuid.Nil, outer.Parent)
		assert.Equal(t, outer.ID, inner.Parent)
		assert.Equal(t, []uuid.UUID{inner.ID}, outer.Children)
		assert.Equal(t, 2, mgr.Active())
	})

	t.Run("store failure surfaces as integrity error", func(t *testing.T) {
		mgr, store, _ := newManager(t)
		store.failOn = "savepoint"

		_, err := mgr.Create(context.Background(), "advance_day")
		var ie *checkpoint.IntegrityError
		require.ErrorAs(t, err, &ie)
		assert.Equal(t, 0, mgr.Active())
	})
}

func TestCommit(t *testing.T) {
	t.Run("commits descendants depth-first", func(t *testing.T) {
		mgr, store, _ := newManager(t)
		ctx := context.Background()

		outer, err := mgr.Create(ctx, "advance_day")
		require.NoError(t, err)
		_, err = mgr.Create(ctx, "activity-1")
		require.NoError(t, err)
		_, err = mgr.Create(ctx, "activity-2")
		require.NoError(t, err)

		require.NoError(t, mgr.Commit(ctx, outer.ID))
		assert.Equal(t, 0, mgr.Active())
		// Innermost savepoints release first.
		assert.Equal(t, []string{"sp_3", "sp_2", "sp_1"}, store.released)
	})

	t.Run("merges tracked records into parent", func(t *testing.T) {
		mgr, store, _ := newManager(t)
		ctx := context.Background()

		outer, err := mgr.Create(ctx, "advance_day")
		require.NoError(t, err)
		inner, err := mgr.Create(ctx, "activity")
		require.NoError(t, err)
		require.NoError(t, mgr.Track("result:abc"))

		require.NoError(t, mgr.Commit(ctx, inner.ID))
		assert.Equal(t, []string{"result:abc"}, outer.Records)

		// Rolling back the parent must still clean up the committed
		// child's records.
		require.NoError(t, mgr.Rollback(ctx, outer.ID))
		assert.Equal(t, []string{"result:abc"}, store.deleted)
	})

	t.Run("unknown id is an integrity error", func(t *testing.T) {
		mgr, _, _ := newManager(t)
		err := mgr.Commit(context.Background(), uuid.New())
		var ie *checkpoint.IntegrityError
		require.ErrorAs(t, err, &ie)
		assert.ErrorIs(t, err, checkpoint.ErrUnknownID)
	})
}

func TestRollback(t *testing.T) {
	t.Run("pops everything newer than the target", func(t *testing.T) {
		mgr, store, _ := newManager(t)
		ctx := context.Background()

		a, err := mgr.Create(ctx, "a")
		require.NoError(t, err)
		b, err := mgr.Create(ctx, "b")
		require.NoError(t, err)
		require.NoError(t, mgr.Track("record:b"))
		c, err := mgr.Create(ctx, "c")
		require.NoError(t, err)
		require.NoError(t, mgr.Track("record:c"))

		require.NoError(t, mgr.Rollback(ctx, a.ID))
		assert.Equal(t, 0, mgr.Active())
		// One savepoint rollback targeting A covers B and C too.
		assert.Equal(t, []string{a.Savepoint}, store.rolledBack)
		assert.ElementsMatch(t, []string{"record:b", "record:c"}, store.deleted)

		// B and C are gone from the active set.
		var ie *checkpoint.IntegrityError
		require.ErrorAs(t, mgr.Commit(ctx, b.ID), &ie)
		require.ErrorAs(t, mgr.Commit(ctx, c.ID), &ie)
	})

	t.Run("restores the paired snapshot", func(t *testing.T) {
		mgr, _, state := newManager(t)
		ctx := context.Background()

		cp, err := mgr.Create(ctx, "advance_day")
		require.NoError(t, err)

		state.AppendLedger(season.LedgerEntry{
			ActivityID: uuid.New(), Kind: activity.KindGame,
			Date: state.CurrentDate, TeamID: "lions",
		})
		state.Team("lions").Wins = 1
		state.CurrentDate = state.CurrentDate.AddDate(0, 0, 1)

		require.NoError(t, mgr.Rollback(ctx, cp.ID))
		assert.Equal(t, 0, state.ActivitiesExecuted)
		assert.Empty(t, state.Standings)
		assert.Equal(t, time.Date(2025, 9, 8, 0, 0, 0, 0, time.UTC), state.CurrentDate)
	})

	t.Run("middle rollback keeps older checkpoints", func(t *testing.T) {
		mgr, _, _ := newManager(t)
		ctx := context.Background()

		a, err := mgr.Create(ctx, "a")
		require.NoError(t, err)
		b, err := mgr.Create(ctx, "b")
		require.NoError(t, err)
		_, err = mgr.Create(ctx, "c")
		require.NoError(t, err)

		require.NoError(t, mgr.Rollback(ctx, b.ID))
		assert.Equal(t, 1, mgr.Active())
		assert.Equal(t, a.ID, mgr.Current().ID)
	})

	t.Run("unknown id is an integrity error", func(t *testing.T) {
		mgr, _, _ := newManager(t)
		err := mgr.Rollback(context.Background(), uuid.New())
		var ie *checkpoint.IntegrityError
		require.ErrorAs(t, err, &ie)
	})
}

func TestTrack(t *testing.T) {
	mgr, _, _ := newManager(t)
	assert.ErrorIs(t, mgr.Track("record:x"), checkpoint.ErrNoActive)
}
