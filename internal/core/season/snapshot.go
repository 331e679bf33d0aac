package season

import (
	"fmt"
	"time"

	"github.com/yangxiaofu/the-owners-sim-sub008/internal/core/activity"
)

// Snapshot is an immutable deep copy of the season state fields a
// checkpoint protects. Restoring a snapshot fully overwrites the live
// fields it captures; there is no partial merge.
type Snapshot struct {
	Phase              Phase                              `json:"phase" msgpack:"phase" validate:"required"`
	CurrentDate        time.Time                          `json:"current_date" msgpack:"current_date" validate:"required"`
	Ledger             map[activity.Kind][]LedgerEntry    `json:"ledger" msgpack:"ledger"`
	Standings          map[string]TeamRecord              `json:"standings" msgpack:"standings"`
	Bracket            []Matchup                          `json:"bracket" msgpack:"bracket"`
	ActivitiesExecuted int                                `json:"activities_executed" msgpack:"activities_executed" validate:"gte=0"`
	DaysSimulated      int                                `json:"days_simulated" msgpack:"days_simulated" validate:"gte=0"`
	TakenAt            time.Time                          `json:"taken_at" msgpack:"taken_at"`
}

// Snapshot captures the current state as an immutable deep copy.
func (s *State) Snapshot() *Snapshot {
	standings := make(map[string]TeamRecord, len(s.Standings))
	for id, rec := range s.Standings {
		standings[id] = *rec
	}
	return &Snapshot{
		Phase:              s.Phase,
		CurrentDate:        s.CurrentDate,
		Ledger:             cloneLedger(s.Ledger),
		Standings:          standings,
		Bracket:            append([]Matchup(nil), s.Bracket...),
		ActivitiesExecuted: s.ActivitiesExecuted,
		DaysSimulated:      s.DaysSimulated,
		TakenAt:            time.Now().UTC(),
	}
}

// Restore overwrites the live state with the snapshot's captured fields.
// The snapshot itself stays untouched: restored collections are copies.
func (s *State) Restore(sn *Snapshot) {
	s.Phase = sn.Phase
	s.CurrentDate = sn.CurrentDate
	s.Ledger = cloneLedger(sn.Ledger)
	standings := make(map[string]*TeamRecord, len(sn.Standings))
	for id, rec := range sn.Standings {
		cp := rec
		standings[id] = &cp
	}
	s.Standings = standings
	s.Bracket = append([]Matchup(nil), sn.Bracket...)
	s.ActivitiesExecuted = sn.ActivitiesExecuted
	s.DaysSimulated = sn.DaysSimulated
}

// Validate checks the captured state for modeling bugs: unknown phase,
// negative counters, or a ledger that disagrees with the declared total.
// Callers log these rather than failing — they indicate a bug to fix, not
// a transaction-safety violation.
func (sn *Snapshot) Validate() error {
	if !sn.Phase.Valid() {
		return fmt.Errorf("%w: phase %q", ErrInvalidSnapshot, sn.Phase)
	}
	if sn.ActivitiesExecuted < 0 || sn.DaysSimulated < 0 {
		return fmt.Errorf("%w: negative counter (executed=%d days=%d)",
			ErrInvalidSnapshot, sn.ActivitiesExecuted, sn.DaysSimulated)
	}
	total := 0
	for _, entries := range sn.Ledger {
		total += len(entries)
	}
	if total != sn.ActivitiesExecuted {
		return fmt.Errorf("%w: ledger holds %d entries, declared total is %d",
			ErrInvalidSnapshot, total, sn.ActivitiesExecuted)
	}
	return nil
}
