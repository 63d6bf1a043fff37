package telemetry

import (
	"sync"
	"time"

	"github.com/verdantio/greenhouse-core/internal/trend"
)

// maxSamplesPerMeasurement bounds the in-memory history ring.
// At a 15 minute cycle this covers well over a week of samples.
const maxSamplesPerMeasurement = 1000

// Store holds the latest reading and a bounded history per measurement.
//
// All methods are safe for concurrent use. The store is memory-only;
// long-term history lives in InfluxDB.
type Store struct {
	mu      sync.RWMutex
	latest  map[Measurement]Reading
	history map[Measurement][]trend.Sample
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		latest:  make(map[Measurement]Reading),
		history: make(map[Measurement][]trend.Sample),
	}
}

// Put records a reading as the latest for its measurement and appends it
// to the history ring.
func (s *Store) Put(r Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.latest[r.Measurement] = r

	ring := append(s.history[r.Measurement], trend.Sample{At: r.RecordedAt, Value: r.Value})
	if len(ring) > maxSamplesPerMeasurement {
		ring = ring[len(ring)-maxSamplesPerMeasurement:]
	}
	s.history[r.Measurement] = ring
}

// Latest returns the most recent reading for a measurement.
func (s *Store) Latest(m Measurement) (Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.latest[m]
	return r, ok
}

// Snapshot returns the latest reading of every measurement.
func (s *Store) Snapshot(now time.Time) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	readings := make(map[Measurement]Reading, len(s.latest))
	for m, r := range s.latest {
		readings[m] = r
	}
	return Snapshot{Readings: readings, TakenAt: now}
}

// Fresh returns the latest readings no older than maxAge at now.
//
// Stale measurements are simply absent from the snapshot; the decision
// layer skips their rules rather than treating them as zero.
func (s *Store) Fresh(now time.Time, maxAge time.Duration) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	readings := make(map[Measurement]Reading, len(s.latest))
	for m, r := range s.latest {
		if r.Age(now) <= maxAge {
			readings[m] = r
		}
	}
	return Snapshot{Readings: readings, TakenAt: now}
}

// Series returns the history samples for a measurement within the window
// ending at now, oldest first.
func (s *Store) Series(m Measurement, now time.Time, window time.Duration) []trend.Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ring := s.history[m]
	cutoff := now.Add(-window)

	// Ring is chronological; find the first in-window sample.
	start := len(ring)
	for i, sample := range ring {
		if !sample.At.Before(cutoff) {
			start = i
			break
		}
	}

	out := make([]trend.Sample, len(ring)-start)
	copy(out, ring[start:])
	return out
}
