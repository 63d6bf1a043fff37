// Package trend fits linear trends over sensor sample windows.
//
// The estimator performs ordinary least squares over elapsed time and
// reports slope per hour, fit quality (R²), and a direction classified
// against a per-measurement stable band. Estimates can be projected
// forward for proactive decisions.
//
// The package is pure: no I/O, no clock reads, no external dependencies.
package trend
