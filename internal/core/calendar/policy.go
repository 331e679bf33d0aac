package calendar

// ConflictPolicy governs what happens when two activities compete for the
// same date/resource slot.
type ConflictPolicy string

const (
	// PolicyReject fails the insertion with a ConflictError.
	PolicyReject ConflictPolicy = "reject"

	// PolicyReschedule searches forward day-by-day, bounded by the
	// scheduler's horizon, for the first free date.
	PolicyReschedule ConflictPolicy = "reschedule"

	// PolicyForce inserts regardless of conflicts. Test/debug only; the
	// scheduler refuses it unless explicitly enabled.
	PolicyForce ConflictPolicy = "force"
)

// Valid reports whether p is a known conflict policy.
func (p ConflictPolicy) Valid() bool {
	switch p {
	case PolicyReject, PolicyReschedule, PolicyForce:
		return true
	}
	return false
}

// DefaultRescheduleHorizonDays bounds the forward search under
// PolicyReschedule.
const DefaultRescheduleHorizonDays = 14
