package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments for the control loop.
//
// Each Metrics value carries its own registry so tests can create
// isolated instances without collisions on the default registry.
type Metrics struct {
	registry *prometheus.Registry

	// CyclesTotal counts completed control cycles by result.
	// Result is "ok", "degraded" (cycle ran on partial data) or "failed".
	CyclesTotal *prometheus.CounterVec

	// DecisionsTotal counts decisions by source and action.
	DecisionsTotal *prometheus.CounterVec

	// RejectionsTotal counts commands refused by the safety gate, by reason.
	RejectionsTotal *prometheus.CounterVec

	// ClampsTotal counts duration clamps applied by the safety gate.
	ClampsTotal *prometheus.CounterVec

	// ReasonerFailuresTotal counts reasoner calls that fell through to
	// the fallback policy (timeouts, bad payloads, exhausted retries).
	ReasonerFailuresTotal prometheus.Counter

	// DeviceOn reports the current relay state per device (1 on, 0 off).
	DeviceOn *prometheus.GaugeVec

	// LastTelemetryTimestamp is the unix-second timestamp of the last
	// accepted sensor reading. 0 until the first reading arrives.
	LastTelemetryTimestamp prometheus.Gauge

	// CycleDuration observes wall-clock time per control cycle.
	CycleDuration prometheus.Histogram
}

// New creates a Metrics instance with a fresh registry.
//
// The registry includes the standard Go runtime and process collectors
// alongside the greenhouse instruments.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		CyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "greenhouse_cycles_total",
			Help: "Total number of control cycles by result (ok, degraded, failed).",
		}, []string{"result"}),

		DecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "greenhouse_decisions_total",
			Help: "Total number of decisions by source (reasoner, fallback, manual) and action.",
		}, []string{"source", "action"}),

		RejectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "greenhouse_rejections_total",
			Help: "Total number of commands refused by the safety gate, by reason.",
		}, []string{"reason"}),

		ClampsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "greenhouse_clamps_total",
			Help: "Total number of duration clamps applied by the safety gate, by device.",
		}, []string{"device_id"}),

		ReasonerFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "greenhouse_reasoner_failures_total",
			Help: "Total number of reasoner calls that fell through to the fallback policy.",
		}),

		DeviceOn: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "greenhouse_device_on",
			Help: "Current relay state per device. 1 when on, 0 when off.",
		}, []string{"device_id"}),

		LastTelemetryTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "greenhouse_last_telemetry_timestamp_seconds",
			Help: "Unix timestamp (seconds) of the last accepted sensor reading. 0 if none received yet.",
		}),

		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "greenhouse_cycle_duration_seconds",
			Help:    "Wall-clock duration of control cycles in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Handler returns an http.Handler serving the registry in the
// Prometheus exposition format. Mount it at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordDeviceState updates the per-device relay gauge.
func (m *Metrics) RecordDeviceState(deviceID string, isOn bool) {
	v := 0.0
	if isOn {
		v = 1.0
	}
	m.DeviceOn.WithLabelValues(deviceID).Set(v)
}
