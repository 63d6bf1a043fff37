// Package executor applies decisions to devices through a fixed safety
// gate: known device, not already active, minimum interval elapsed,
// duration clamped. State persists before hardware is touched, and every
// activation arms an auto-shutoff timer mirrored by the relay firmware's
// own run limit.
package executor
