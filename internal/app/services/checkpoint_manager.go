// Package services provides the application services sitting between the
// scheduler use case and the core domain: checkpoint stack management over
// a savepoint store.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/yangxiaofu/the-owners-sim-sub008/internal/core/checkpoint"
	"github.com/yangxiaofu/the-owners-sim-sub008/internal/core/season"
)

// CheckpointManager owns the active-checkpoint stack. Although checkpoints
// carry parent/child links, rollback semantics are strictly stack-shaped:
// rolling back a checkpoint discards every checkpoint created after it.
// Parent links are kept for depth-first commit ordering only.
// PRINCIPLES:
// - SRP: Manages checkpoint lifecycle, knows nothing about activities
// - DIP: Depends on the checkpoint.SavepointStore abstraction
type CheckpointManager struct {
	store checkpoint.SavepointStore
	state *season.State
	stack []*checkpoint.Checkpoint
	seq   uint64
	log   *slog.Logger
}

// NewCheckpointManager creates a manager bound to the live season state it
// snapshots and restores.
func NewCheckpointManager(store checkpoint.SavepointStore, state *season.State, logger *slog.Logger) *CheckpointManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &CheckpointManager{
		store: store,
		state: state,
		log:   logger,
	}
}

// Create opens a checkpoint for the named operation: a store savepoint
// paired with a deep-copy snapshot of the season state, pushed onto the
// active stack. The parent is the current top of the stack, if any.
func (m *CheckpointManager) Create(ctx context.Context, name string) (*checkpoint.Checkpoint, error) {
	m.seq++
	spName := fmt.Sprintf("sp_%d", m.seq)

	parent := uuid.Nil
	if top := m.top(); top != nil {
		parent = top.ID
	}

	snap := m.state.Snapshot()
	if err := snap.Validate(); err != nil {
		// A modeling bug, not a transaction-safety violation; log and
		// keep going.
		m.log.Warn("checkpoint snapshot failed validation",
			"checkpoint", name, "error", err)
	}

	cp, err := checkpoint.New(name, spName, parent, snap)
	if err != nil {
		return nil, err
	}

	if err := m.store.Savepoint(ctx, spName); err != nil {
		return nil, checkpoint.Integrity("create", cp.ID, fmt.Errorf("%w: %v", checkpoint.ErrStoreFailed, err))
	}

	if top := m.top(); top != nil {
		top.AddChild(cp.ID)
	}
	m.stack = append(m.stack, cp)
	m.log.Debug("checkpoint created", "checkpoint", name, "id", cp.ID, "depth", len(m.stack))
	return cp, nil
}

// Track appends a created-record id to the innermost active checkpoint so
// rollback can clean it up.
func (m *CheckpointManager) Track(recordID string) error {
	top := m.top()
	if top == nil {
		return checkpoint.ErrNoActive
	}
	top.Track(recordID)
	return nil
}

// Commit commits the checkpoint, recursively committing all of its
// uncommitted descendants first (depth-first, which on a stack means top
// down). Committing is irreversible; tracked records migrate to the
// parent so an ancestor rollback still removes them.
func (m *CheckpointManager) Commit(ctx context.Context, id uuid.UUID) error {
	pos := m.find(id)
	if pos < 0 {
		return checkpoint.Integrity("commit", id, checkpoint.ErrUnknownID)
	}

	for i := len(m.stack) - 1; i >= pos; i-- {
		cp := m.stack[i]
		if err := m.store.Release(ctx, cp.Savepoint); err != nil {
			return checkpoint.Integrity("commit", cp.ID, fmt.Errorf("%w: %v", checkpoint.ErrStoreFailed, err))
		}
		if i > 0 {
			// Records created under a committed child still belong to the
			// enclosing scope until that scope commits.
			m.stack[i-1].Records = append(m.stack[i-1].Records, cp.Records...)
		}
		m.log.Debug("checkpoint committed", "checkpoint", cp.Name, "id", cp.ID)
	}
	m.stack = m.stack[:pos]
	return nil
}

// Rollback restores the checkpoint's paired snapshot into live state,
// reverses the store savepoint, deletes every record tracked by the
// checkpoint and everything created after it, and pops the contiguous
// stack suffix starting at the checkpoint.
func (m *CheckpointManager) Rollback(ctx context.Context, id uuid.UUID) error {
	pos := m.find(id)
	if pos < 0 {
		return checkpoint.Integrity("rollback", id, checkpoint.ErrUnknownID)
	}
	target := m.stack[pos]

	if err := m.store.RollbackTo(ctx, target.Savepoint); err != nil {
		return checkpoint.Integrity("rollback", target.ID, fmt.Errorf("%w: %v", checkpoint.ErrStoreFailed, err))
	}

	// Tracked-record cleanup covers the target and every newer
	// checkpoint, committed children included (their records were merged
	// upward on commit). DeleteRecord tolerates ids the savepoint
	// rollback already removed.
	for i := len(m.stack) - 1; i >= pos; i-- {
		for _, rec := range m.stack[i].Records {
			if err := m.store.DeleteRecord(ctx, rec); err != nil {
				m.log.Warn("tracked record cleanup failed", "record", rec, "error", err)
			}
		}
	}

	m.state.Restore(target.Snapshot)
	dropped := len(m.stack) - pos
	m.stack = m.stack[:pos]
	m.log.Debug("checkpoint rolled back",
		"checkpoint", target.Name, "id", target.ID, "dropped", dropped)
	return nil
}

// Active returns the number of checkpoints on the stack.
func (m *CheckpointManager) Active() int { return len(m.stack) }

// Current returns the innermost active checkpoint, or nil.
func (m *CheckpointManager) Current() *checkpoint.Checkpoint { return m.top() }

func (m *CheckpointManager) top() *checkpoint.Checkpoint {
	if len(m.stack) == 0 {
		return nil
	}
	return m.stack[len(m.stack)-1]
}

func (m *CheckpointManager) find(id uuid.UUID) int {
	for i, cp := range m.stack {
		if cp.ID == id {
			return i
		}
	}
	return -1
}
