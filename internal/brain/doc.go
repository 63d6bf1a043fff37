// Package brain runs the control loop and the daily maintenance
// schedule.
//
// The Orchestrator drives one cycle at a time through collect,
// estimate, decide, execute and record; the ResetScheduler zeroes
// per-device daily counters at local midnight with restart catch-up.
package brain
