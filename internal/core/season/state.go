package season

import (
	"time"

	"github.com/google/uuid"

	"github.com/yangxiaofu/the-owners-sim-sub008/internal/core/activity"
)

// TeamRecord is one team's standing line.
type TeamRecord struct {
	TeamID        string `json:"team_id"`
	Wins          int    `json:"wins"`
	Losses        int    `json:"losses"`
	Ties          int    `json:"ties"`
	PointsFor     int    `json:"points_for"`
	PointsAgainst int    `json:"points_against"`
}

// LedgerEntry records one completed activity in the season ledger. The
// ledger is keyed by activity id within each kind, which is what makes
// result processing idempotent under replay.
type LedgerEntry struct {
	ActivityID uuid.UUID     `json:"activity_id"`
	Kind       activity.Kind `json:"kind"`
	Date       time.Time     `json:"date"`
	TeamID     string        `json:"team_id"`
	Note       string        `json:"note,omitempty"`
}

// Matchup is one derived playoff-bracket pairing.
type Matchup struct {
	Round  int    `json:"round"`
	HomeID string `json:"home_id"`
	AwayID string `json:"away_id"`
}

// State is the live in-memory season simulation state. It is owned by one
// scheduler; all mutation flows through the result pipeline and phase
// advancement inside checkpoints, so a checkpoint rollback can restore it
// wholesale from a snapshot.
type State struct {
	Phase              Phase
	CurrentDate        time.Time
	Ledger             map[activity.Kind][]LedgerEntry
	Standings          map[string]*TeamRecord
	Bracket            []Matchup
	ActivitiesExecuted int
	DaysSimulated      int

	// RegularSeasonGames is the per-phase completion target: once this
	// many game ledger entries exist the regular season is done.
	RegularSeasonGames int
}

// NewState creates season state positioned at the given start day.
func NewState(start time.Time) *State {
	return &State{
		Phase:       PhasePreseason,
		CurrentDate: activity.Day(start),
		Ledger:      make(map[activity.Kind][]LedgerEntry),
		Standings:   make(map[string]*TeamRecord),
	}
}

// HasLedgerEntry reports whether the activity has already been applied.
// Processors use this as their replay guard.
func (s *State) HasLedgerEntry(kind activity.Kind, id uuid.UUID) bool {
	for _, e := range s.Ledger[kind] {
		if e.ActivityID == id {
			return true
		}
	}
	return false
}

// AppendLedger adds a completed-activity entry and bumps the executed
// counter. It is a no-op for an activity id already present under the
// kind, keeping replay idempotent.
func (s *State) AppendLedger(e LedgerEntry) {
	if s.HasLedgerEntry(e.Kind, e.ActivityID) {
		return
	}
	s.Ledger[e.Kind] = append(s.Ledger[e.Kind], e)
	s.ActivitiesExecuted++
}

// Team returns the standings line for a team, creating it on first use.
func (s *State) Team(teamID string) *TeamRecord {
	rec, ok := s.Standings[teamID]
	if !ok {
		rec = &TeamRecord{TeamID: teamID}
		s.Standings[teamID] = rec
	}
	return rec
}

// CurrentDay implements activity.View.
func (s *State) CurrentDay() time.Time { return s.CurrentDate }

// SeasonPhase implements activity.View.
func (s *State) SeasonPhase() string { return string(s.Phase) }

// Record implements activity.View.
func (s *State) Record(teamID string) (wins, losses, ties int) {
	if rec, ok := s.Standings[teamID]; ok {
		return rec.Wins, rec.Losses, rec.Ties
	}
	return 0, 0, 0
}

// PhaseComplete reports whether the current phase's completion predicate
// holds. Only the regular season has a data-driven predicate; the other
// phases advance through explicit milestone activities.
func (s *State) PhaseComplete() bool {
	if s.Phase != PhaseRegularSeason || s.RegularSeasonGames <= 0 {
		return false
	}
	return len(s.Ledger[activity.KindGame]) >= s.RegularSeasonGames
}

// AdvancePhase moves to the next phase and derives the playoff bracket
// when entering the playoffs.
func (s *State) AdvancePhase() bool {
	next, ok := s.Phase.Next()
	if !ok {
		return false
	}
	s.Phase = next
	if next == PhasePlayoffs {
		s.Bracket = s.deriveBracket()
	}
	return true
}

// deriveBracket seeds round one by win count, best against worst.
func (s *State) deriveBracket() []Matchup {
	seeds := make([]*TeamRecord, 0, len(s.Standings))
	for _, rec := range s.Standings {
		seeds = append(seeds, rec)
	}
	sortRecords(seeds)
	var bracket []Matchup
	for i, j := 0, len(seeds)-1; i < j; i, j = i+1, j-1 {
		bracket = append(bracket, Matchup{Round: 1, HomeID: seeds[i].TeamID, AwayID: seeds[j].TeamID})
	}
	return bracket
}

// sortRecords orders by wins desc, then point differential desc, then
// team id for a stable tiebreak.
func sortRecords(recs []*TeamRecord) {
	for i := 1; i < len(recs); i++ {
		for j := i; j > 0 && less(recs[j], recs[j-1]); j-- {
			recs[j], recs[j-1] = recs[j-1], recs[j]
		}
	}
}

func less(a, b *TeamRecord) bool {
	if a.Wins != b.Wins {
		return a.Wins > b.Wins
	}
	da, db := a.PointsFor-a.PointsAgainst, b.PointsFor-b.PointsAgainst
	if da != db {
		return da > db
	}
	return a.TeamID < b.TeamID
}

// Clone returns a structural deep copy of the state.
func (s *State) Clone() *State {
	out := &State{
		Phase:              s.Phase,
		CurrentDate:        s.CurrentDate,
		Ledger:             cloneLedger(s.Ledger),
		Standings:          cloneStandings(s.Standings),
		Bracket:            append([]Matchup(nil), s.Bracket...),
		ActivitiesExecuted: s.ActivitiesExecuted,
		DaysSimulated:      s.DaysSimulated,
		RegularSeasonGames: s.RegularSeasonGames,
	}
	return out
}

func cloneLedger(in map[activity.Kind][]LedgerEntry) map[activity.Kind][]LedgerEntry {
	out := make(map[activity.Kind][]LedgerEntry, len(in))
	for k, entries := range in {
		out[k] = append([]LedgerEntry(nil), entries...)
	}
	return out
}

func cloneStandings(in map[string]*TeamRecord) map[string]*TeamRecord {
	out := make(map[string]*TeamRecord, len(in))
	for id, rec := range in {
		cp := *rec
		out[id] = &cp
	}
	return out
}
