package decision

import (
	"context"
	"time"

	"github.com/verdantio/greenhouse-core/internal/device"
	"github.com/verdantio/greenhouse-core/internal/forecast"
	"github.com/verdantio/greenhouse-core/internal/telemetry"
	"github.com/verdantio/greenhouse-core/internal/trend"
)

// Action is what a decision asks the executor to do.
type Action string

const (
	ActionActivate   Action = "activate"
	ActionDeactivate Action = "deactivate"
	ActionNone       Action = "none"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionActivate, ActionDeactivate, ActionNone:
		return true
	}
	return false
}

// Source identifies where a decision came from.
type Source string

const (
	SourceReasoner Source = "reasoner"
	SourceFallback Source = "fallback"
	SourceManual   Source = "manual"
)

// Outcome records what the executor did with a decision.
type Outcome string

const (
	OutcomeExecuted Outcome = "executed"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

// Decision is a single control verdict for one cycle.
//
// Duration is meaningful only for activate decisions and is a request:
// the executor clamps it to the device's maximum on-time.
type Decision struct {
	Action     Action        `json:"action"`
	DeviceID   string        `json:"device_id,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	Reason     string        `json:"reason"`
	Confidence float64       `json:"confidence"`
	Source     Source        `json:"source"`
}

// Features is everything a decision maker sees for one cycle.
//
// A measurement absent from Readings is unknown, never zero; its rules
// are skipped. Forecast may be nil.
type Features struct {
	Readings map[telemetry.Measurement]telemetry.Reading `json:"readings"`
	Trends   map[telemetry.Measurement]trend.Estimate    `json:"trends"`
	Forecast *forecast.Snapshot                          `json:"forecast,omitempty"`
	Devices  []device.Status                             `json:"devices"`
}

// DeviceByCategory returns the first configured device of the category.
func (f Features) DeviceByCategory(c device.Category) (device.Status, bool) {
	for _, d := range f.Devices {
		if d.Config.Category == c {
			return d, true
		}
	}
	return device.Status{}, false
}

// Summary condenses Features for the decision trail. Full readings stay
// in InfluxDB; the history row only needs enough to explain the verdict.
type Summary struct {
	Readings     map[string]float64 `json:"readings,omitempty"`
	Slopes       map[string]float64 `json:"slopes,omitempty"`
	TomorrowHigh *float64           `json:"tomorrow_high,omitempty"`
}

// Summarize builds the compact feature summary for a history record.
func (f Features) Summarize() Summary {
	s := Summary{}
	if len(f.Readings) > 0 {
		s.Readings = make(map[string]float64, len(f.Readings))
		for m, r := range f.Readings {
			s.Readings[string(m)] = r.Value
		}
	}
	if len(f.Trends) > 0 {
		s.Slopes = make(map[string]float64, len(f.Trends))
		for m, e := range f.Trends {
			s.Slopes[string(m)] = e.Slope
		}
	}
	if f.Forecast != nil {
		high := f.Forecast.TomorrowHigh
		s.TomorrowHigh = &high
	}
	return s
}

// Record is one row of the decision trail.
type Record struct {
	ID            string    `json:"id"`
	Decision      Decision  `json:"decision"`
	Features      Summary   `json:"features"`
	Outcome       Outcome   `json:"outcome"`
	OutcomeDetail string    `json:"outcome_detail,omitempty"`
	DecidedAt     time.Time `json:"decided_at"`
}

// Maker produces a decision from cycle features.
//
// Implemented by both the fallback Policy and the reasoner Client; the
// orchestrator falls back from the latter to the former on any error.
type Maker interface {
	Decide(ctx context.Context, features Features) (Decision, error)
}
