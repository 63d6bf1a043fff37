package trend

import (
	"errors"
	"math"
	"testing"
	"time"
)

// mkSamples builds a sample series starting at t0 with the given spacing,
// applying fn to the sample index to produce values.
func mkSamples(t0 time.Time, spacing time.Duration, n int, fn func(i int) float64) []Sample {
	samples := make([]Sample, n)
	for i := 0; i < n; i++ {
		samples[i] = Sample{
			At:    t0.Add(time.Duration(i) * spacing),
			Value: fn(i),
		}
	}
	return samples
}

func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func TestEstimate_PerfectLinearRise(t *testing.T) {
	est := NewEstimator(3, 30*time.Minute)
	t0 := time.Date(2026, 7, 14, 12, 0, 0, 0, time.UTC)

	// +2 units per hour: samples every 30 minutes, +1 per sample.
	samples := mkSamples(t0, 30*time.Minute, 5, func(i int) float64 {
		return 20.0 + float64(i)
	})

	e, err := est.Estimate(samples, 0.5)
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}

	if !almostEqual(e.Slope, 2.0, 1e-9) {
		t.Errorf("Slope = %v, want 2.0", e.Slope)
	}
	if !almostEqual(e.Intercept, 20.0, 1e-9) {
		t.Errorf("Intercept = %v, want 20.0", e.Intercept)
	}
	if !almostEqual(e.R2, 1.0, 1e-9) {
		t.Errorf("R2 = %v, want 1.0", e.R2)
	}
	if e.Direction != Rising {
		t.Errorf("Direction = %v, want rising", e.Direction)
	}
	if e.SampleCount != 5 {
		t.Errorf("SampleCount = %d, want 5", e.SampleCount)
	}
	if e.Span != 2*time.Hour {
		t.Errorf("Span = %v, want 2h", e.Span)
	}
}

func TestEstimate_Falling(t *testing.T) {
	est := NewEstimator(3, 30*time.Minute)
	t0 := time.Date(2026, 7, 14, 12, 0, 0, 0, time.UTC)

	// −1.3 units per hour over 4 hours.
	samples := mkSamples(t0, time.Hour, 5, func(i int) float64 {
		return 45.0 - 1.3*float64(i)
	})

	e, err := est.Estimate(samples, 1.0)
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}
	if !almostEqual(e.Slope, -1.3, 1e-9) {
		t.Errorf("Slope = %v, want -1.3", e.Slope)
	}
	if e.Direction != Falling {
		t.Errorf("Direction = %v, want falling", e.Direction)
	}
}

func TestEstimate_StableWithinBand(t *testing.T) {
	est := NewEstimator(3, 30*time.Minute)
	t0 := time.Date(2026, 7, 14, 12, 0, 0, 0, time.UTC)

	// +0.3 per hour, inside the ±0.5 stable band.
	samples := mkSamples(t0, time.Hour, 4, func(i int) float64 {
		return 22.0 + 0.3*float64(i)
	})

	e, err := est.Estimate(samples, 0.5)
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}
	if e.Direction != Stable {
		t.Errorf("Direction = %v, want stable", e.Direction)
	}
}

func TestEstimate_TooFewSamples(t *testing.T) {
	est := NewEstimator(3, 30*time.Minute)
	t0 := time.Date(2026, 7, 14, 12, 0, 0, 0, time.UTC)

	samples := mkSamples(t0, time.Hour, 2, func(i int) float64 { return float64(i) })

	_, err := est.Estimate(samples, 0.5)
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("Estimate() error = %v, want ErrInsufficientData", err)
	}
}

func TestEstimate_SpanTooShort(t *testing.T) {
	est := NewEstimator(3, 30*time.Minute)
	t0 := time.Date(2026, 7, 14, 12, 0, 0, 0, time.UTC)

	// 5 samples but only 20 minutes of span.
	samples := mkSamples(t0, 5*time.Minute, 5, func(i int) float64 { return float64(i) })

	_, err := est.Estimate(samples, 0.5)
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("Estimate() error = %v, want ErrInsufficientData", err)
	}
}

func TestEstimate_ZeroTimeVariance(t *testing.T) {
	est := NewEstimator(3, 0)
	t0 := time.Date(2026, 7, 14, 12, 0, 0, 0, time.UTC)

	samples := []Sample{
		{At: t0, Value: 1},
		{At: t0, Value: 2},
		{At: t0, Value: 3},
	}

	// minSpan falls back to the default; identical timestamps mean zero span.
	_, err := est.Estimate(samples, 0.5)
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("Estimate() error = %v, want ErrInsufficientData", err)
	}
}

func TestEstimate_ConstantSeries(t *testing.T) {
	est := NewEstimator(3, 30*time.Minute)
	t0 := time.Date(2026, 7, 14, 12, 0, 0, 0, time.UTC)

	samples := mkSamples(t0, time.Hour, 4, func(int) float64 { return 50.0 })

	e, err := est.Estimate(samples, 1.0)
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}
	if !almostEqual(e.Slope, 0, 1e-9) {
		t.Errorf("Slope = %v, want 0", e.Slope)
	}
	if e.Direction != Stable {
		t.Errorf("Direction = %v, want stable", e.Direction)
	}
	// Degenerate fit: zero variance in y reports R² of 0.
	if e.R2 != 0 {
		t.Errorf("R2 = %v, want 0", e.R2)
	}
	if e.Confidence() != 0 {
		t.Errorf("Confidence() = %v, want 0", e.Confidence())
	}
}

func TestEstimate_NoisySeriesR2(t *testing.T) {
	est := NewEstimator(3, 30*time.Minute)
	t0 := time.Date(2026, 7, 14, 12, 0, 0, 0, time.UTC)

	// Rising with alternating noise: R² should be high but below 1.
	noise := []float64{0.2, -0.2, 0.1, -0.1, 0.15}
	samples := mkSamples(t0, time.Hour, 5, func(i int) float64 {
		return 30.0 + 2.0*float64(i) + noise[i]
	})

	e, err := est.Estimate(samples, 0.5)
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}
	if e.R2 <= 0.9 || e.R2 >= 1.0 {
		t.Errorf("R2 = %v, want in (0.9, 1.0)", e.R2)
	}
	if e.Confidence() != e.R2 {
		t.Errorf("Confidence() = %v, want %v", e.Confidence(), e.R2)
	}
}

func TestProject(t *testing.T) {
	est := NewEstimator(3, 30*time.Minute)
	t0 := time.Date(2026, 7, 14, 12, 0, 0, 0, time.UTC)

	// Soil moisture falling 1.3 %/h from 45% over a 4 h window.
	samples := mkSamples(t0, time.Hour, 5, func(i int) float64 {
		return 45.0 - 1.3*float64(i)
	})

	e, err := est.Estimate(samples, 1.0)
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}

	// Last sample is 39.8; 6 h ahead should be 32.0, 12 h ahead 24.2.
	if got := e.Project(6 * time.Hour); !almostEqual(got, 32.0, 1e-9) {
		t.Errorf("Project(6h) = %v, want 32.0", got)
	}
	if got := e.Project(12 * time.Hour); !almostEqual(got, 24.2, 1e-9) {
		t.Errorf("Project(12h) = %v, want 24.2", got)
	}
}

func TestNewEstimator_Defaults(t *testing.T) {
	est := NewEstimator(0, 0)
	if est.minSamples != DefaultMinSamples {
		t.Errorf("minSamples = %d, want %d", est.minSamples, DefaultMinSamples)
	}
	if est.minSpan != DefaultMinSpan {
		t.Errorf("minSpan = %v, want %v", est.minSpan, DefaultMinSpan)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		slope      float64
		stableBand float64
		want       Direction
	}{
		{"rising above band", 1.0, 0.5, Rising},
		{"falling below band", -1.0, 0.5, Falling},
		{"inside band positive", 0.4, 0.5, Stable},
		{"inside band negative", -0.4, 0.5, Stable},
		{"exactly at band", 0.5, 0.5, Stable},
		{"negative band treated as absolute", 1.0, -0.5, Rising},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.slope, tt.stableBand); got != tt.want {
				t.Errorf("classify(%v, %v) = %v, want %v", tt.slope, tt.stableBand, got, tt.want)
			}
		})
	}
}
