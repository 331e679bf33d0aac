// Package calendar provides the date index that is the single source of
// truth for "what happens on day D", plus the conflict policies governing
// contested date/resource slots.
package calendar

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/yangxiaofu/the-owners-sim-sub008/internal/core/activity"
)

// Index maps each calendar day to the ordered set of activities scheduled
// for it. Insertion order is preserved; priority ordering is applied at
// execution time by the scheduler. An activity id appears under exactly
// one date at any time.
//
// The index is owned by exactly one scheduler instance and is not safe
// for concurrent use; callers go through the scheduler's methods.
type Index struct {
	days map[time.Time][]*activity.Activity
	byID map[uuid.UUID]time.Time
	seq  uint64
}

// NewIndex creates an empty calendar index.
func NewIndex() *Index {
	return &Index{
		days: make(map[time.Time][]*activity.Activity),
		byID: make(map[uuid.UUID]time.Time),
	}
}

// Insert places the activity under its date and assigns its insertion
// sequence number. The caller resolves conflicts first; Insert only
// guards identity invariants.
func (ix *Index) Insert(a *activity.Activity) error {
	if a == nil {
		return ErrNilActivity
	}
	if err := a.Validate(); err != nil {
		return err
	}
	if _, ok := ix.byID[a.ID]; ok {
		return ErrDuplicateActivity
	}
	ix.seq++
	a.Seq = ix.seq
	day := activity.Day(a.Date)
	ix.days[day] = append(ix.days[day], a)
	ix.byID[a.ID] = day
	return nil
}

// Remove deletes the activity from the index.
func (ix *Index) Remove(id uuid.UUID) error {
	day, ok := ix.byID[id]
	if !ok {
		return ErrUnknownActivity
	}
	delete(ix.byID, id)
	slot := ix.days[day]
	for i, a := range slot {
		if a.ID == id {
			ix.days[day] = append(slot[:i:i], slot[i+1:]...)
			break
		}
	}
	if len(ix.days[day]) == 0 {
		delete(ix.days, day)
	}
	return nil
}

// Conflicting returns the first already-scheduled activity that competes
// with a for its date/resource slot, or nil if the slot is free.
func (ix *Index) Conflicting(a *activity.Activity) *activity.Activity {
	for _, existing := range ix.days[activity.Day(a.Date)] {
		if existing.ConflictsWith(a) {
			return existing
		}
	}
	return nil
}

// Due returns the activities scheduled for the given day in insertion
// order. The returned slice is a copy; mutating it does not affect the
// index.
func (ix *Index) Due(date time.Time) []*activity.Activity {
	slot := ix.days[activity.Day(date)]
	out := make([]*activity.Activity, len(slot))
	copy(out, slot)
	return out
}

// DateOf reports the day the activity is currently scheduled under.
func (ix *Index) DateOf(id uuid.UUID) (time.Time, bool) {
	day, ok := ix.byID[id]
	return day, ok
}

// Len returns the total number of scheduled activities.
func (ix *Index) Len() int {
	return len(ix.byID)
}

// Days returns every day with at least one scheduled activity, ascending.
func (ix *Index) Days() []time.Time {
	out := make([]time.Time, 0, len(ix.days))
	for day := range ix.days {
		out = append(out, day)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
