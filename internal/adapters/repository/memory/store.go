// Package memory provides an in-memory SavepointStore backed by an undo
// journal, mirroring SQL savepoint semantics: rollback undoes every write
// since the named savepoint, release folds the savepoint into its
// enclosing scope.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yangxiaofu/the-owners-sim-sub008/internal/core/activity"
	"github.com/yangxiaofu/the-owners-sim-sub008/pkg/serialization"
)

var (
	ErrUnknownSavepoint   = errors.New("unknown savepoint")
	ErrDuplicateSavepoint = errors.New("savepoint name already in use")
	ErrUnknownRecord      = errors.New("record not found")
)

// undo reverses one record write.
type undo struct {
	id      string
	prev    []byte
	existed bool
}

type savepoint struct {
	name string
	mark int // journal length when the savepoint was taken
}

// Store is a thread-safe in-memory record store with savepoint support.
// It is the default store for tests and stand-alone CLI runs.
type Store struct {
	mu         sync.Mutex
	records    map[string][]byte
	journal    []undo
	savepoints []savepoint
	serializer *serialization.Serializer
}

// NewStore creates an empty store using the default serializer.
func NewStore() *Store {
	return &Store{
		records:    make(map[string][]byte),
		serializer: serialization.DefaultSerializer(),
	}
}

// Savepoint implements checkpoint.SavepointStore.
func (s *Store) Savepoint(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sp := range s.savepoints {
		if sp.name == name {
			return fmt.Errorf("%w: %s", ErrDuplicateSavepoint, name)
		}
	}
	s.savepoints = append(s.savepoints, savepoint{name: name, mark: len(s.journal)})
	return nil
}

// Release implements checkpoint.SavepointStore. Like SQL RELEASE, it also
// discards any savepoints established after the named one; their writes
// are kept.
func (s *Store) Release(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.find(name)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSavepoint, name)
	}
	s.savepoints = s.savepoints[:idx]
	return nil
}

// RollbackTo implements checkpoint.SavepointStore: undoes every write
// journaled since the named savepoint and discards it along with any
// later savepoints.
func (s *Store) RollbackTo(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.find(name)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSavepoint, name)
	}
	mark := s.savepoints[idx].mark
	for i := len(s.journal) - 1; i >= mark; i-- {
		u := s.journal[i]
		if u.existed {
			s.records[u.id] = u.prev
		} else {
			delete(s.records, u.id)
		}
	}
	s.journal = s.journal[:mark]
	s.savepoints = s.savepoints[:idx]
	return nil
}

// DeleteRecord implements checkpoint.SavepointStore. Deleting an id the
// savepoint rollback already removed is a no-op.
func (s *Store) DeleteRecord(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.records[id]
	if !ok {
		return nil
	}
	s.journal = append(s.journal, undo{id: id, prev: prev, existed: true})
	delete(s.records, id)
	return nil
}

// SaveActivity persists the activity and returns its record id.
func (s *Store) SaveActivity(_ context.Context, act *activity.Activity) (string, error) {
	data, err := s.serializer.Serialize(act)
	if err != nil {
		return "", err
	}
	id := activityRecordID(act.ID)
	s.put(id, data)
	return id, nil
}

// SaveResult persists the result and returns its record id.
func (s *Store) SaveResult(_ context.Context, res *activity.Result) (string, error) {
	data, err := s.serializer.Serialize(res)
	if err != nil {
		return "", err
	}
	id := resultRecordID(res.ActivityID)
	s.put(id, data)
	return id, nil
}

// MarkCompleted flips the durable completion flag on the activity row.
func (s *Store) MarkCompleted(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	recID := activityRecordID(id)
	data, ok := s.records[recID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRecord, recID)
	}
	var act activity.Activity
	if err := s.serializer.Deserialize(data, &act); err != nil {
		return err
	}
	act.Completed = true
	updated, err := s.serializer.Serialize(&act)
	if err != nil {
		return err
	}
	s.journal = append(s.journal, undo{id: recID, prev: data, existed: true})
	s.records[recID] = updated
	return nil
}

// GetActivity loads one durable activity row.
func (s *Store) GetActivity(_ context.Context, id uuid.UUID) (*activity.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.records[activityRecordID(id)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRecord, id)
	}
	var act activity.Activity
	if err := s.serializer.Deserialize(data, &act); err != nil {
		return nil, err
	}
	return &act, nil
}

// ListPending returns every stored activity not yet completed, for
// calendar rehydration on startup.
func (s *Store) ListPending(_ context.Context) ([]*activity.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*activity.Activity
	for id, data := range s.records {
		if !strings.HasPrefix(id, "activity:") {
			continue
		}
		var act activity.Activity
		if err := s.serializer.Deserialize(data, &act); err != nil {
			return nil, err
		}
		if !act.Completed {
			out = append(out, &act)
		}
	}
	return out, nil
}

// ListByDay returns every stored activity scheduled for the given day.
func (s *Store) ListByDay(ctx context.Context, date time.Time) ([]*activity.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day := activity.Day(date)
	var out []*activity.Activity
	for id, data := range s.records {
		if !strings.HasPrefix(id, "activity:") {
			continue
		}
		var act activity.Activity
		if err := s.serializer.Deserialize(data, &act); err != nil {
			return nil, err
		}
		if act.Date.Equal(day) {
			out = append(out, &act)
		}
	}
	return out, nil
}

// Has reports whether a record id exists. Test helper.
func (s *Store) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[id]
	return ok
}

// Len returns the number of stored records. Test helper.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *Store) put(id string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, existed := s.records[id]
	s.journal = append(s.journal, undo{id: id, prev: prev, existed: existed})
	s.records[id] = data
}

func (s *Store) find(name string) int {
	for i, sp := range s.savepoints {
		if sp.name == name {
			return i
		}
	}
	return -1
}

func activityRecordID(id uuid.UUID) string { return "activity:" + id.String() }
func resultRecordID(id uuid.UUID) string   { return "result:" + id.String() }
