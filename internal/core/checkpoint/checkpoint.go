// Package checkpoint provides the core checkpoint domain entity and the
// savepoint-store port, following Clean Architecture principles: no
// knowledge of schedulers, activities, or concrete stores.
package checkpoint

import (
	"time"

	"github.com/google/uuid"

	"github.com/yangxiaofu/the-owners-sim-sub008/internal/core/season"
)

// Checkpoint is one nested save-point: a persistent-store savepoint paired
// with an immutable in-memory season snapshot.
// PRINCIPLES:
// - KISS: Simple struct with clear fields
// - SRP: Only responsible for checkpoint data structure
//
// Child and tracked-record lists are append-only until the checkpoint is
// committed or rolled back, at which point the manager removes it from the
// active set. Parent links exist for commit ordering only; rollback is
// strictly stack-shaped (everything newer than the target is discarded).
type Checkpoint struct {
	ID        uuid.UUID        `json:"id"`
	Name      string           `json:"name"`
	Savepoint string           `json:"savepoint"`
	Parent    uuid.UUID        `json:"parent,omitempty"`
	Children  []uuid.UUID      `json:"children,omitempty"`
	Records   []string         `json:"records,omitempty"`
	Snapshot  *season.Snapshot `json:"snapshot"`
	CreatedAt time.Time        `json:"created_at"`
}

// New creates a checkpoint for the named operation. parent is uuid.Nil
// for an outermost checkpoint.
func New(name, savepoint string, parent uuid.UUID, snap *season.Snapshot) (*Checkpoint, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	if snap == nil {
		return nil, ErrNilSnapshot
	}
	return &Checkpoint{
		ID:        uuid.New(),
		Name:      name,
		Savepoint: savepoint,
		Parent:    parent,
		Snapshot:  snap,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Track appends a persistent-record id created under this checkpoint, for
// cleanup on rollback.
func (c *Checkpoint) Track(recordID string) {
	if recordID == "" {
		return
	}
	c.Records = append(c.Records, recordID)
}

// AddChild links a nested checkpoint for depth-first commit ordering.
func (c *Checkpoint) AddChild(id uuid.UUID) {
	c.Children = append(c.Children, id)
}

// Validate ensures checkpoint integrity.
func (c *Checkpoint) Validate() error {
	if c.ID == uuid.Nil {
		return ErrInvalidID
	}
	if c.Name == "" {
		return ErrEmptyName
	}
	if c.Snapshot == nil {
		return ErrNilSnapshot
	}
	return nil
}
