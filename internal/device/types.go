package device

import (
	"time"

	"github.com/verdantio/greenhouse-core/internal/infrastructure/config"
)

// Category identifies what a device does to the greenhouse environment.
type Category string

const (
	// Pump adds soil moisture.
	Pump Category = "pump"
	// Fan removes heat and humidity.
	Fan Category = "fan"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return c == Pump || c == Fan
}

// Config describes a controllable device (one relay channel).
//
// MaxOnDuration and MinInterval are the hardware protection limits the
// executor enforces: no run longer than MaxOnDuration, no re-activation
// sooner than MinInterval after switching off.
type Config struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Category      Category      `json:"category"`
	MaxOnDuration time.Duration `json:"max_on_duration"`
	MinInterval   time.Duration `json:"min_interval"`
}

// ConfigFrom converts a YAML device entry into a runtime Config.
func ConfigFrom(dc config.DeviceConfig) Config {
	return Config{
		ID:            dc.ID,
		Name:          dc.Name,
		Category:      Category(dc.Category),
		MaxOnDuration: time.Duration(dc.MaxOnMinutes) * time.Minute,
		MinInterval:   time.Duration(dc.MinIntervalMinutes) * time.Minute,
	}
}

// State is the persisted runtime state of a device.
//
// OnTodayMinutes and ActivationsToday accumulate since the last local
// midnight reset; ActivatedAt is set only while the device is on.
type State struct {
	DeviceID         string     `json:"device_id"`
	On               bool       `json:"on"`
	ActivatedAt      *time.Time `json:"activated_at,omitempty"`
	LastOffAt        *time.Time `json:"last_off_at,omitempty"`
	OnTodayMinutes   float64    `json:"on_today_minutes"`
	ActivationsToday int        `json:"activations_today"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// clone returns a deep copy of the state.
func (s State) clone() State {
	out := s
	if s.ActivatedAt != nil {
		t := *s.ActivatedAt
		out.ActivatedAt = &t
	}
	if s.LastOffAt != nil {
		t := *s.LastOffAt
		out.LastOffAt = &t
	}
	return out
}

// Status pairs a device's configuration with its current state.
type Status struct {
	Config Config `json:"config"`
	State  State  `json:"state"`
}
