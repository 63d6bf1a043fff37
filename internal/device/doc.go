// Package device tracks the controllable greenhouse actuators and their
// persisted runtime state.
//
// The Registry is the single mutation gate: every activation,
// deactivation and counter reset flows through it, and every state
// change is persisted via the Repository before the in-memory cache is
// updated or the caller acknowledged. A crash between persistence and
// acknowledgment therefore errs on the side of recorded-but-unreported,
// never the reverse.
//
// Daily counters (on-time minutes, activation count) accumulate per
// local calendar day and are reset by the brain's scheduler at local
// midnight, with a catch-up on restart driven by the persisted
// last_reset_day stamp.
package device
