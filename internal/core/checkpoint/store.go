package checkpoint

import "context"

// SavepointStore is the persistence port the checkpoint manager drives.
// The manager is the only component issuing savepoint commands; every
// other component performs plain record CRUD inside the current
// transaction scope.
// PRINCIPLES:
// - ISP: Interface segregation with ≤5 methods
// - DIP: Core domain depends on interface, not implementations
type SavepointStore interface {
	// Savepoint establishes a named savepoint at the current write
	// position.
	Savepoint(ctx context.Context, name string) error

	// Release commits the named savepoint into its enclosing scope,
	// discarding it and any savepoints established after it.
	Release(ctx context.Context, name string) error

	// RollbackTo undoes every write made since the named savepoint was
	// established, discarding it and any later savepoints.
	RollbackTo(ctx context.Context, name string) error

	// DeleteRecord removes a tracked record if it still exists. Deleting
	// an unknown id is a no-op: rollback may already have removed it.
	DeleteRecord(ctx context.Context, id string) error
}
