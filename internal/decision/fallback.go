package decision

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/verdantio/greenhouse-core/internal/device"
	"github.com/verdantio/greenhouse-core/internal/infrastructure/config"
	"github.com/verdantio/greenhouse-core/internal/telemetry"
	"github.com/verdantio/greenhouse-core/internal/trend"
)

// Confidence levels per rule tier.
const (
	confidenceCritical      = 0.95
	confidenceSafetyShutoff = 0.9
	confidenceWarning       = 0.8

	// Proactive confidence scales with trend steepness inside
	// [proactiveBase, proactiveBase+proactiveRange].
	proactiveBase  = 0.6
	proactiveRange = 0.18
)

// proactiveScale normalizes trend steepness per measurement: a slope at
// or beyond the scale yields full proactive confidence.
var proactiveScale = map[telemetry.Measurement]float64{
	telemetry.Temperature:  1.5, // °C/h
	telemetry.Humidity:     4.0, // %/h
	telemetry.SoilMoisture: 1.5, // %/h
}

// Policy is the deterministic rule-based decision maker.
//
// It is the floor the system never drops below: when the reasoner is
// disabled, unreachable or answers garbage, Policy decides. Rules are
// priority-ordered and the first match wins; within a tier the
// measurement order is temperature, then soil moisture, then humidity.
type Policy struct {
	thresholds config.ThresholdsConfig
	durations  config.DurationsConfig
	proactive  config.ProactiveConfig
}

// NewPolicy creates a Policy from the control loop configuration.
func NewPolicy(control config.ControlConfig) *Policy {
	return &Policy{
		thresholds: control.Thresholds,
		durations:  control.Durations,
		proactive:  control.Proactive,
	}
}

// Decide evaluates the rule tiers against the cycle features.
//
// Policy never fails: with nothing to act on it returns an explicit
// none decision. A measurement missing from the readings skips its
// rules rather than being treated as zero.
func (p *Policy) Decide(_ context.Context, f Features) (Decision, error) {
	if d, ok := p.critical(f); ok {
		return d, nil
	}
	if d, ok := p.safetyShutoff(f); ok {
		return d, nil
	}
	if d, ok := p.warning(f); ok {
		return d, nil
	}
	if d, ok := p.proactiveRule(f); ok {
		return d, nil
	}

	return Decision{
		Action:     ActionNone,
		Reason:     "all measurements within optimal range",
		Confidence: confidenceWarning,
		Source:     SourceFallback,
	}, nil
}

// critical handles conditions that threaten the crop right now.
func (p *Policy) critical(f Features) (Decision, bool) {
	if temp, ok := f.Readings[telemetry.Temperature]; ok && temp.Value >= p.thresholds.Temperature.CriticalHigh {
		return p.activate(f, device.Fan, p.durations.CriticalFanMinutes, confidenceCritical,
			fmt.Sprintf("temperature %.1f°C at or above critical %.1f°C", temp.Value, p.thresholds.Temperature.CriticalHigh))
	}
	if soil, ok := f.Readings[telemetry.SoilMoisture]; ok && soil.Value <= p.thresholds.SoilMoisture.CriticalLow {
		return p.activate(f, device.Pump, p.durations.CriticalPumpMinutes, confidenceCritical,
			fmt.Sprintf("soil moisture %.1f%% at or below critical %.1f%%", soil.Value, p.thresholds.SoilMoisture.CriticalLow))
	}
	if hum, ok := f.Readings[telemetry.Humidity]; ok && hum.Value >= p.thresholds.Humidity.CriticalHigh {
		return p.activate(f, device.Fan, p.durations.CriticalFanMinutes, confidenceCritical,
			fmt.Sprintf("humidity %.1f%% at or above critical %.1f%%", hum.Value, p.thresholds.Humidity.CriticalHigh))
	}
	return Decision{}, false
}

// safetyShutoff turns devices off when running them has become harmful.
func (p *Policy) safetyShutoff(f Features) (Decision, bool) {
	if temp, ok := f.Readings[telemetry.Temperature]; ok && temp.Value <= p.thresholds.Temperature.WarningLow {
		if fan, ok := f.DeviceByCategory(device.Fan); ok && fan.State.On {
			return Decision{
				Action:     ActionDeactivate,
				DeviceID:   fan.Config.ID,
				Reason:     fmt.Sprintf("temperature %.1f°C at or below %.1f°C with fan running", temp.Value, p.thresholds.Temperature.WarningLow),
				Confidence: confidenceSafetyShutoff,
				Source:     SourceFallback,
			}, true
		}
	}
	if soil, ok := f.Readings[telemetry.SoilMoisture]; ok && soil.Value >= p.thresholds.SoilMoisture.WarningHigh {
		if pump, ok := f.DeviceByCategory(device.Pump); ok && pump.State.On {
			return Decision{
				Action:     ActionDeactivate,
				DeviceID:   pump.Config.ID,
				Reason:     fmt.Sprintf("soil moisture %.1f%% at or above %.1f%% with pump running", soil.Value, p.thresholds.SoilMoisture.WarningHigh),
				Confidence: confidenceSafetyShutoff,
				Source:     SourceFallback,
			}, true
		}
	}
	return Decision{}, false
}

// warning handles conditions drifting out of the optimal band.
func (p *Policy) warning(f Features) (Decision, bool) {
	if temp, ok := f.Readings[telemetry.Temperature]; ok && temp.Value >= p.thresholds.Temperature.WarningHigh {
		return p.activate(f, device.Fan, p.durations.WarningFanMinutes, confidenceWarning,
			fmt.Sprintf("temperature %.1f°C at or above warning %.1f°C", temp.Value, p.thresholds.Temperature.WarningHigh))
	}
	if soil, ok := f.Readings[telemetry.SoilMoisture]; ok && soil.Value <= p.thresholds.SoilMoisture.WarningLow {
		return p.activate(f, device.Pump, p.durations.WarningPumpMinutes, confidenceWarning,
			fmt.Sprintf("soil moisture %.1f%% at or below warning %.1f%%", soil.Value, p.thresholds.SoilMoisture.WarningLow))
	}
	if hum, ok := f.Readings[telemetry.Humidity]; ok && hum.Value >= p.thresholds.Humidity.WarningHigh {
		return p.activate(f, device.Fan, p.durations.WarningFanMinutes, confidenceWarning,
			fmt.Sprintf("humidity %.1f%% at or above warning %.1f%%", hum.Value, p.thresholds.Humidity.WarningHigh))
	}
	return Decision{}, false
}

// proactiveRule acts before a warning threshold is crossed: reading
// still inside the optimal band, but the trend projected over the
// horizon crosses a warning boundary.
func (p *Policy) proactiveRule(f Features) (Decision, bool) {
	horizon := time.Duration(p.proactive.HorizonHours) * time.Hour
	if f.Forecast != nil && f.Forecast.TomorrowHigh >= p.proactive.HotDayTemp {
		horizon = time.Duration(p.proactive.ExtendedHorizonHours) * time.Hour
	}

	if temp, est, ok := p.trending(f, telemetry.Temperature); ok {
		inBand := temp.Value >= p.thresholds.Temperature.OptimalLow && temp.Value <= p.thresholds.Temperature.OptimalHigh
		if inBand && est.Direction == trend.Rising && est.Project(horizon) >= p.thresholds.Temperature.WarningHigh {
			return p.activate(f, device.Fan, p.durations.ProactiveFanMinutes,
				proactiveConfidence(telemetry.Temperature, est.Slope),
				fmt.Sprintf("temperature %.1f°C rising %.2f°C/h, projected to cross %.1f°C within %s",
					temp.Value, est.Slope, p.thresholds.Temperature.WarningHigh, horizon))
		}
	}
	if soil, est, ok := p.trending(f, telemetry.SoilMoisture); ok {
		inBand := soil.Value >= p.thresholds.SoilMoisture.OptimalLow && soil.Value <= p.thresholds.SoilMoisture.OptimalHigh
		if inBand && est.Direction == trend.Falling && est.Project(horizon) <= p.thresholds.SoilMoisture.WarningLow {
			return p.activate(f, device.Pump, p.durations.ProactivePumpMinutes,
				proactiveConfidence(telemetry.SoilMoisture, est.Slope),
				fmt.Sprintf("soil moisture %.1f%% falling %.2f%%/h, projected to cross %.1f%% within %s",
					soil.Value, -est.Slope, p.thresholds.SoilMoisture.WarningLow, horizon))
		}
	}
	if hum, est, ok := p.trending(f, telemetry.Humidity); ok {
		inBand := hum.Value >= p.thresholds.Humidity.OptimalLow && hum.Value <= p.thresholds.Humidity.OptimalHigh
		if inBand && est.Direction == trend.Rising && est.Project(horizon) >= p.thresholds.Humidity.WarningHigh {
			return p.activate(f, device.Fan, p.durations.ProactiveFanMinutes,
				proactiveConfidence(telemetry.Humidity, est.Slope),
				fmt.Sprintf("humidity %.1f%% rising %.2f%%/h, projected to cross %.1f%% within %s",
					hum.Value, est.Slope, p.thresholds.Humidity.WarningHigh, horizon))
		}
	}
	return Decision{}, false
}

// trending returns the reading and a usable (non-stable) trend estimate.
func (p *Policy) trending(f Features, m telemetry.Measurement) (telemetry.Reading, trend.Estimate, bool) {
	reading, ok := f.Readings[m]
	if !ok {
		return telemetry.Reading{}, trend.Estimate{}, false
	}
	est, ok := f.Trends[m]
	if !ok || est.Direction == trend.Stable {
		return telemetry.Reading{}, trend.Estimate{}, false
	}
	return reading, est, true
}

// activate builds an activation decision for the first configured
// device of the category. No such device means the rule cannot fire.
func (p *Policy) activate(f Features, cat device.Category, minutes int, confidence float64, reason string) (Decision, bool) {
	target, ok := f.DeviceByCategory(cat)
	if !ok {
		return Decision{}, false
	}
	return Decision{
		Action:     ActionActivate,
		DeviceID:   target.Config.ID,
		Duration:   time.Duration(minutes) * time.Minute,
		Reason:     reason,
		Confidence: confidence,
		Source:     SourceFallback,
	}, true
}

// proactiveConfidence maps trend steepness into the proactive band.
func proactiveConfidence(m telemetry.Measurement, slope float64) float64 {
	scale := proactiveScale[m]
	steepness := math.Min(1, math.Abs(slope)/scale)
	return proactiveBase + proactiveRange*steepness
}
