// Package metrics publishes engine counters via expvar.
package metrics

import (
	"expvar"
)

// Scheduler metrics.
var (
	daysSimulated      = new(expvar.Int)
	activitiesExecuted = new(expvar.Int)
	activityFailures   = new(expvar.Int)
	rollbacks          = new(expvar.Int)
	scheduleConflicts  = new(expvar.Int)
	reschedules        = new(expvar.Int)
	computeWorkers     = new(expvar.Int)
)

func init() {
	expvar.Publish("ownersim_days_simulated_total", daysSimulated)
	expvar.Publish("ownersim_activities_executed_total", activitiesExecuted)
	expvar.Publish("ownersim_activity_failures_total", activityFailures)
	expvar.Publish("ownersim_rollbacks_total", rollbacks)
	expvar.Publish("ownersim_schedule_conflicts_total", scheduleConflicts)
	expvar.Publish("ownersim_reschedules_total", reschedules)
	expvar.Publish("ownersim_compute_workers", computeWorkers)
}

// Scheduler helpers
func IncDaysSimulated()             { daysSimulated.Add(1) }
func AddActivitiesExecuted(n int64) { activitiesExecuted.Add(n) }
func AddActivityFailures(n int64)   { activityFailures.Add(n) }
func IncRollbacks()                 { rollbacks.Add(1) }
func IncScheduleConflicts()         { scheduleConflicts.Add(1) }
func IncReschedules()               { reschedules.Add(1) }
func SetComputeWorkers(n int)       { computeWorkers.Set(int64(n)) }
