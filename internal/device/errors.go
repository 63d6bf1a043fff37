package device

import "errors"

// Sentinel errors for device operations.
var (
	// ErrDeviceNotFound indicates an unknown device ID.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrAlreadyActive indicates an activation of a device that is on.
	ErrAlreadyActive = errors.New("device: already active")

	// ErrNotActive indicates a deactivation of a device that is off.
	ErrNotActive = errors.New("device: not active")

	// ErrPersistFailed indicates the repository write failed.
	// The in-memory state is untouched; nothing was acknowledged.
	ErrPersistFailed = errors.New("device: state persistence failed")
)
