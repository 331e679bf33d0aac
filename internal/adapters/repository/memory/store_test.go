package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yangxiaofu/the-owners-sim-sub008/internal/core/activity"
)

func newActivity(t *testing.T, kind activity.Kind, team string) *activity.Activity {
	t.Helper()
	act, err := activity.New(kind, time.Date(2025, 9, 8, 0, 0, 0, 0, time.UTC), team, "")
	require.NoError(t, err)
	return act
}

func TestSavepointLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("rollback undoes writes since the savepoint", func(t *testing.T) {
		s := NewStore()
		before := newActivity(t, activity.KindGame, "lions")
		_, err := s.SaveActivity(ctx, before)
		require.NoError(t, err)

		require.NoError(t, s.Savepoint(ctx, "sp_1"))
		after := newActivity(t, activity.KindTraining, "bears")
		afterID, err := s.SaveActivity(ctx, after)
		require.NoError(t, err)
		require.True(t, s.Has(afterID))

		require.NoError(t, s.RollbackTo(ctx, "sp_1"))
		assert.False(t, s.Has(afterID))
		got, err := s.GetActivity(ctx, before.ID)
		require.NoError(t, err)
		assert.Equal(t, before.ID, got.ID)
	})

	t.Run("rollback restores overwritten rows", func(t *testing.T) {
		s := NewStore()
		act := newActivity(t, activity.KindRest, "lions")
		_, err := s.SaveActivity(ctx, act)
		require.NoError(t, err)

		require.NoError(t, s.Savepoint(ctx, "sp_1"))
		require.NoError(t, s.MarkCompleted(ctx, act.ID))
		require.NoError(t, s.RollbackTo(ctx, "sp_1"))

		got, err := s.GetActivity(ctx, act.ID)
		require.NoError(t, err)
		assert.False(t, got.Completed)
	})

	t.Run("release keeps writes and discards later savepoints", func(t *testing.T) {
		s := NewStore()
		require.NoError(t, s.Savepoint(ctx, "sp_1"))
		require.NoError(t, s.Savepoint(ctx, "sp_2"))
		id, err := s.SaveActivity(ctx, newActivity(t, activity.KindScouting, "lions"))
		require.NoError(t, err)

		require.NoError(t, s.Release(ctx, "sp_1"))
		assert.True(t, s.Has(id))
		assert.ErrorIs(t, s.RollbackTo(ctx, "sp_2"), ErrUnknownSavepoint)
	})

	t.Run("nested rollback only undoes the inner scope", func(t *testing.T) {
		s := NewStore()
		require.NoError(t, s.Savepoint(ctx, "outer"))
		outerID, err := s.SaveActivity(ctx, newActivity(t, activity.KindGame, "lions"))
		require.NoError(t, err)

		require.NoError(t, s.Savepoint(ctx, "inner"))
		innerID, err := s.SaveActivity(ctx, newActivity(t, activity.KindGame, "bears"))
		require.NoError(t, err)

		require.NoError(t, s.RollbackTo(ctx, "inner"))
		assert.True(t, s.Has(outerID))
		assert.False(t, s.Has(innerID))
	})

	t.Run("unknown and duplicate savepoints error", func(t *testing.T) {
		s := NewStore()
		assert.ErrorIs(t, s.Release(ctx, "nope"), ErrUnknownSavepoint)
		require.NoError(t, s.Savepoint(ctx, "sp_1"))
		assert.ErrorIs(t, s.Savepoint(ctx, "sp_1"), ErrDuplicateSavepoint)
	})
}

func TestDeleteRecord(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	id, err := s.SaveActivity(ctx, newActivity(t, activity.KindGame, "lions"))
	require.NoError(t, err)

	require.NoError(t, s.DeleteRecord(ctx, id))
	assert.False(t, s.Has(id))
	// Deleting a missing record is a no-op.
	assert.NoError(t, s.DeleteRecord(ctx, id))
}

func TestResults(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	act := newActivity(t, activity.KindTraining, "lions")

	recID, err := s.SaveResult(ctx, activity.NewResult(act.ID, map[string]any{"fatigue_delta": 2}))
	require.NoError(t, err)
	assert.True(t, s.Has(recID))
}

func TestListPending(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	done := newActivity(t, activity.KindGame, "lions")
	_, err := s.SaveActivity(ctx, done)
	require.NoError(t, err)
	require.NoError(t, s.MarkCompleted(ctx, done.ID))

	open := newActivity(t, activity.KindTraining, "bears")
	_, err = s.SaveActivity(ctx, open)
	require.NoError(t, err)

	pending, err := s.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, open.ID, pending[0].ID)
}
