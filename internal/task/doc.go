// Package task runs the periodic drivers (alert ticks, schedule refreshes)
// on cron triggers.
//
// Each task has a reentrancy guard: a trigger that fires while the previous
// run is still in flight is skipped, not queued. Runs get a timeout and
// panics are recovered, so one bad run never stops the schedule.
package task
