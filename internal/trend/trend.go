package trend

import (
	"errors"
	"math"
	"time"
)

// ErrInsufficientData indicates a window with too few samples or too little
// time span to support a meaningful fit.
var ErrInsufficientData = errors.New("trend: insufficient data for estimate")

// Default fit requirements. A fit over fewer samples or a shorter span is
// noise, not a trend.
const (
	DefaultMinSamples = 3
	DefaultMinSpan    = 30 * time.Minute

	secondsPerHour = 3600.0
)

// Direction classifies the slope of a fitted trend.
type Direction string

const (
	Rising  Direction = "rising"
	Falling Direction = "falling"
	Stable  Direction = "stable"
)

// Sample is a single timestamped observation.
type Sample struct {
	At    time.Time
	Value float64
}

// Estimate is the result of a least-squares fit over a sample window.
//
// Slope is reported per hour. Intercept is the fitted value at the first
// sample in the window.
type Estimate struct {
	Slope       float64
	Intercept   float64
	R2          float64
	Direction   Direction
	SampleCount int
	Span        time.Duration
}

// Confidence returns the fit quality as a value in [0,1].
func (e Estimate) Confidence() float64 {
	if math.IsNaN(e.R2) || e.R2 < 0 {
		return 0
	}
	if e.R2 > 1 {
		return 1
	}
	return e.R2
}

// Project extrapolates the fitted line past the last sample in the window.
//
// The returned value is the fitted value at the end of the window plus
// slope-per-hour times the horizon.
func (e Estimate) Project(horizon time.Duration) float64 {
	atEnd := e.Intercept + e.Slope*e.Span.Hours()
	return atEnd + e.Slope*horizon.Hours()
}

// Estimator fits linear trends over sample windows.
//
// The zero value is not usable; construct with NewEstimator.
type Estimator struct {
	minSamples int
	minSpan    time.Duration
}

// NewEstimator creates an Estimator with the given fit requirements.
// Non-positive arguments fall back to the package defaults.
func NewEstimator(minSamples int, minSpan time.Duration) *Estimator {
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}
	if minSpan <= 0 {
		minSpan = DefaultMinSpan
	}
	return &Estimator{minSamples: minSamples, minSpan: minSpan}
}

// Estimate fits an ordinary least squares line through the samples.
//
// The independent variable is elapsed seconds since the first sample;
// the reported slope is converted to units per hour. Samples must be in
// chronological order.
//
// stableBand is the absolute per-hour slope below which the direction is
// reported as Stable (e.g. 0.5 for temperature °C/h).
//
// Returns ErrInsufficientData when the window holds fewer than the minimum
// samples, spans less than the minimum duration, or has zero time variance.
func (e *Estimator) Estimate(samples []Sample, stableBand float64) (Estimate, error) {
	n := len(samples)
	if n < e.minSamples {
		return Estimate{}, ErrInsufficientData
	}

	first := samples[0].At
	span := samples[n-1].At.Sub(first)
	if span < e.minSpan {
		return Estimate{}, ErrInsufficientData
	}

	// OLS over x = elapsed seconds, y = value.
	var sumX, sumY, sumXX, sumXY float64
	for _, s := range samples {
		x := s.At.Sub(first).Seconds()
		sumX += x
		sumY += s.Value
		sumXX += x * x
		sumXY += x * s.Value
	}

	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		// All samples at the same instant.
		return Estimate{}, ErrInsufficientData
	}

	slopePerSecond := (fn*sumXY - sumX*sumY) / denom
	intercept := (sumY - slopePerSecond*sumX) / fn
	slope := slopePerSecond * secondsPerHour

	r2 := rSquared(samples, first, slopePerSecond, intercept)

	return Estimate{
		Slope:       slope,
		Intercept:   intercept,
		R2:          r2,
		Direction:   classify(slope, stableBand),
		SampleCount: n,
		Span:        span,
	}, nil
}

// rSquared computes the coefficient of determination for the fitted line.
// A degenerate fit (zero variance in y) reports 0.
func rSquared(samples []Sample, first time.Time, slopePerSecond, intercept float64) float64 {
	var sumY float64
	for _, s := range samples {
		sumY += s.Value
	}
	mean := sumY / float64(len(samples))

	var ssTot, ssRes float64
	for _, s := range samples {
		x := s.At.Sub(first).Seconds()
		predicted := intercept + slopePerSecond*x
		ssTot += (s.Value - mean) * (s.Value - mean)
		ssRes += (s.Value - predicted) * (s.Value - predicted)
	}

	if ssTot == 0 {
		return 0
	}
	r2 := 1 - ssRes/ssTot
	if r2 < 0 {
		return 0
	}
	return r2
}

// classify maps a per-hour slope to a direction given the stable band.
func classify(slope, stableBand float64) Direction {
	if stableBand < 0 {
		stableBand = -stableBand
	}
	switch {
	case slope > stableBand:
		return Rising
	case slope < -stableBand:
		return Falling
	default:
		return Stable
	}
}
