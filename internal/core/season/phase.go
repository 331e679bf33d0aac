// Package season holds the in-memory season-wide simulation state and its
// immutable snapshots. Snapshots are structural deep copies: restoring one
// can never alias into state that has since been mutated.
package season

// Phase is the season stage marker.
type Phase string

const (
	PhasePreseason     Phase = "preseason"
	PhaseRegularSeason Phase = "regular_season"
	PhasePlayoffs      Phase = "playoffs"
	PhaseOffseason     Phase = "offseason"
)

// Phases lists every valid phase in progression order.
var Phases = []Phase{PhasePreseason, PhaseRegularSeason, PhasePlayoffs, PhaseOffseason}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	for _, known := range Phases {
		if p == known {
			return true
		}
	}
	return false
}

// Next returns the phase that follows p. The offseason is terminal.
func (p Phase) Next() (Phase, bool) {
	for i, known := range Phases {
		if p == known && i+1 < len(Phases) {
			return Phases[i+1], true
		}
	}
	return p, false
}
