package executor

import "errors"

var (
	// ErrUnknownDevice is returned when a decision names a device that
	// is not configured.
	ErrUnknownDevice = errors.New("executor: unknown device")

	// ErrIntervalTooSoon is returned when a device is commanded on
	// before its minimum off-interval has elapsed.
	ErrIntervalTooSoon = errors.New("executor: minimum interval not elapsed")

	// ErrDeliveryFailed is returned when the relay command could not be
	// published after state was persisted.
	ErrDeliveryFailed = errors.New("executor: command delivery failed")

	// ErrInvalidAction is returned for decisions carrying an action the
	// executor does not know.
	ErrInvalidAction = errors.New("executor: invalid action")
)
