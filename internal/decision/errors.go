package decision

import "errors"

// Sentinel errors for reasoner calls. Any of these causes the
// orchestrator to fall back to the local policy.
var (
	// ErrReasonerTimeout indicates the reasoner did not answer within
	// the per-attempt timeout.
	ErrReasonerTimeout = errors.New("decision: reasoner timeout")

	// ErrReasonerUnavailable indicates the reasoner could not be
	// reached after all attempts.
	ErrReasonerUnavailable = errors.New("decision: reasoner unavailable")

	// ErrSchemaViolation indicates the reasoner answered with a payload
	// that failed validation. Such a decision is never executed.
	ErrSchemaViolation = errors.New("decision: reasoner response failed validation")
)
