package brain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/verdantio/greenhouse-core/internal/decision"
	"github.com/verdantio/greenhouse-core/internal/device"
	"github.com/verdantio/greenhouse-core/internal/executor"
	"github.com/verdantio/greenhouse-core/internal/forecast"
	"github.com/verdantio/greenhouse-core/internal/infrastructure/config"
	"github.com/verdantio/greenhouse-core/internal/infrastructure/metrics"
	"github.com/verdantio/greenhouse-core/internal/telemetry"
	"github.com/verdantio/greenhouse-core/internal/trend"
)

// ErrNoTelemetry is returned by a cycle that found no fresh readings.
var ErrNoTelemetry = errors.New("brain: no fresh telemetry")

// Loop timing defaults.
const (
	defaultCycleInterval = 15 * time.Minute
	defaultMaxReadingAge = 30 * time.Minute
	defaultTrendWindow   = 3 * time.Hour
)

// stableBands holds the per-measurement slope magnitude below which a
// trend counts as stable.
var stableBands = map[telemetry.Measurement]float64{
	telemetry.Temperature:  0.5, // °C/h
	telemetry.Humidity:     2.0, // %/h
	telemetry.SoilMoisture: 1.0, // %/h
}

// TelemetryStore supplies fresh readings and sample series.
type TelemetryStore interface {
	Fresh(now time.Time, maxAge time.Duration) telemetry.Snapshot
	Series(m telemetry.Measurement, now time.Time, window time.Duration) []trend.Sample
}

// Forecaster supplies the weather snapshot. Optional.
type Forecaster interface {
	Snapshot(ctx context.Context) (*forecast.Snapshot, error)
}

// CommandExecutor applies decisions through the safety gate.
type CommandExecutor interface {
	Execute(ctx context.Context, d decision.Decision) (executor.Result, error)
}

// DeviceLister supplies current device statuses for the feature set.
type DeviceLister interface {
	Statuses() []device.Status
}

// Archiver records decision outcomes and device runtime in the
// time-series archive. Optional.
type Archiver interface {
	WriteDecisionOutcome(source, action, deviceID string, confidence float64, outcome string)
	WriteDeviceRuntime(deviceID string, isOn bool, onTodayMinutes float64, activationsToday int)
}

// Logger is the minimal logging interface the orchestrator needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Orchestrator runs the control loop: collect, estimate, decide,
// execute, record.
//
// The reasoner decides when configured and sane; the fallback policy
// decides otherwise. Exactly one cycle runs at a time.
type Orchestrator struct {
	store     TelemetryStore
	estimator *trend.Estimator
	forecast  Forecaster
	reasoner  decision.Maker
	fallback  decision.Maker
	executor  CommandExecutor
	devices   DeviceLister
	history   decision.HistoryRepository
	metrics   *metrics.Metrics
	archiver  Archiver
	logger    Logger

	cycleInterval time.Duration
	maxReadingAge time.Duration
	trendWindow   time.Duration

	now   func() time.Time
	newID func() string

	cycleMu sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithReasoner sets the external reasoner. Without one every cycle uses
// the fallback policy directly.
func WithReasoner(maker decision.Maker) Option {
	return func(o *Orchestrator) { o.reasoner = maker }
}

// WithForecaster sets the weather source.
func WithForecaster(f Forecaster) Option {
	return func(o *Orchestrator) { o.forecast = f }
}

// WithArchiver sets the time-series archive sink.
func WithArchiver(a Archiver) Option {
	return func(o *Orchestrator) { o.archiver = a }
}

// WithMetrics sets the Prometheus instruments.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger sets the orchestrator's logger.
func WithLogger(logger Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates an Orchestrator.
func New(
	control config.ControlConfig,
	store TelemetryStore,
	fallback decision.Maker,
	exec CommandExecutor,
	devices DeviceLister,
	history decision.HistoryRepository,
	opts ...Option,
) *Orchestrator {
	interval := defaultCycleInterval
	if control.CycleIntervalMinutes > 0 {
		interval = time.Duration(control.CycleIntervalMinutes) * time.Minute
	}
	maxAge := defaultMaxReadingAge
	if control.MaxReadingAgeMinutes > 0 {
		maxAge = time.Duration(control.MaxReadingAgeMinutes) * time.Minute
	}
	window := defaultTrendWindow
	if control.Trend.WindowHours > 0 {
		window = time.Duration(control.Trend.WindowHours) * time.Hour
	}

	minSpan := time.Duration(control.Trend.MinSpanMinutes) * time.Minute

	o := &Orchestrator{
		store:         store,
		estimator:     trend.NewEstimator(control.Trend.MinSamples, minSpan),
		fallback:      fallback,
		executor:      exec,
		devices:       devices,
		history:       history,
		logger:        noopLogger{},
		cycleInterval: interval,
		maxReadingAge: maxAge,
		trendWindow:   window,
		now:           time.Now,
		newID:         func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes cycles at the configured interval until ctx is
// cancelled. The first cycle runs immediately.
func (o *Orchestrator) Run(ctx context.Context) {
	o.logger.Info("control loop started", "interval", o.cycleInterval.String())

	if _, err := o.RunCycle(ctx); err != nil {
		o.logger.Warn("cycle failed", "error", err)
	}

	ticker := time.NewTicker(o.cycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("control loop stopped")
			return
		case <-ticker.C:
			if _, err := o.RunCycle(ctx); err != nil {
				o.logger.Warn("cycle failed", "error", err)
			}
		}
	}
}

// RunCycle executes one control cycle and returns its history record.
//
// A cycle with zero fresh readings decides nothing, records a failed
// cycle and returns ErrNoTelemetry. Any other path produces a record
// with the executor's outcome; executor rejections and failures are
// recorded, not returned as errors.
func (o *Orchestrator) RunCycle(ctx context.Context) (decision.Record, error) {
	o.cycleMu.Lock()
	defer o.cycleMu.Unlock()

	start := o.now()
	defer func() {
		if o.metrics != nil {
			o.metrics.CycleDuration.Observe(o.now().Sub(start).Seconds())
		}
	}()

	features, degraded := o.collect(ctx, start)
	if len(features.Readings) == 0 {
		record := decision.Record{
			ID: o.newID(),
			Decision: decision.Decision{
				Action: decision.ActionNone,
				Reason: "no fresh telemetry",
				Source: decision.SourceFallback,
			},
			Outcome:       decision.OutcomeFailed,
			OutcomeDetail: fmt.Sprintf("no readings younger than %s", o.maxReadingAge),
			DecidedAt:     start,
		}
		o.appendRecord(ctx, record)
		o.countCycle("failed")
		return record, ErrNoTelemetry
	}

	d := o.decide(ctx, features)
	if o.metrics != nil {
		o.metrics.DecisionsTotal.WithLabelValues(string(d.Source), string(d.Action)).Inc()
	}

	result, execErr := o.executor.Execute(ctx, d)
	if execErr != nil {
		o.logger.Warn("execution unsuccessful", "action", d.Action, "device_id", d.DeviceID, "error", execErr)
	}
	o.observeResult(d, result, execErr)

	record := decision.Record{
		ID:            o.newID(),
		Decision:      d,
		Features:      features.Summarize(),
		Outcome:       result.Outcome,
		OutcomeDetail: result.Detail,
		DecidedAt:     start,
	}
	o.appendRecord(ctx, record)

	o.publishDeviceState()
	if degraded {
		o.countCycle("degraded")
	} else {
		o.countCycle("ok")
	}

	o.logger.Info("cycle complete", "action", d.Action, "device_id", d.DeviceID, "source", d.Source, "outcome", record.Outcome)
	return record, nil
}

// collect builds the cycle's feature set. degraded reports that the
// cycle ran on partial data (missing measurements).
func (o *Orchestrator) collect(ctx context.Context, start time.Time) (decision.Features, bool) {
	snapshot := o.store.Fresh(start, o.maxReadingAge)

	features := decision.Features{
		Readings: make(map[telemetry.Measurement]telemetry.Reading),
		Trends:   make(map[telemetry.Measurement]trend.Estimate),
		Devices:  o.devices.Statuses(),
	}

	for _, m := range telemetry.Controlled {
		reading, ok := snapshot.Get(m)
		if !ok {
			o.logger.Debug("no fresh reading", "measurement", m)
			continue
		}
		features.Readings[m] = reading

		samples := o.store.Series(m, start, o.trendWindow)
		est, err := o.estimator.Estimate(samples, stableBands[m])
		if err != nil {
			o.logger.Debug("no trend estimate", "measurement", m, "reason", err)
			continue
		}
		features.Trends[m] = est
	}

	if o.forecast != nil {
		snap, err := o.forecast.Snapshot(ctx)
		if err != nil {
			o.logger.Warn("forecast unavailable", "error", err)
		} else {
			features.Forecast = snap
		}
	}

	return features, len(features.Readings) < len(telemetry.Controlled)
}

// decide asks the reasoner first and falls back to the policy on any
// reasoner error.
func (o *Orchestrator) decide(ctx context.Context, features decision.Features) decision.Decision {
	if o.reasoner != nil {
		d, err := o.reasoner.Decide(ctx, features)
		if err == nil {
			return d
		}
		o.logger.Warn("reasoner failed, using fallback policy", "error", err)
		if o.metrics != nil {
			o.metrics.ReasonerFailuresTotal.Inc()
		}
	}

	d, err := o.fallback.Decide(ctx, features)
	if err != nil {
		// The policy cannot fail; treat a failure as an explicit none.
		o.logger.Error("fallback policy failed", "error", err)
		return decision.Decision{
			Action: decision.ActionNone,
			Reason: fmt.Sprintf("fallback policy error: %v", err),
			Source: decision.SourceFallback,
		}
	}
	return d
}

func (o *Orchestrator) observeResult(d decision.Decision, result executor.Result, execErr error) {
	if o.metrics != nil {
		if result.Outcome == decision.OutcomeRejected {
			o.metrics.RejectionsTotal.WithLabelValues(rejectionReason(execErr)).Inc()
		}
		if result.Clamped {
			o.metrics.ClampsTotal.WithLabelValues(d.DeviceID).Inc()
		}
	}
	if o.archiver != nil && d.Action != decision.ActionNone {
		o.archiver.WriteDecisionOutcome(string(d.Source), string(d.Action), d.DeviceID, d.Confidence, string(result.Outcome))
	}
}

func (o *Orchestrator) appendRecord(ctx context.Context, record decision.Record) {
	if err := o.history.Append(ctx, record); err != nil {
		o.logger.Error("appending decision record failed", "error", err)
	}
}

func (o *Orchestrator) publishDeviceState() {
	if o.metrics == nil && o.archiver == nil {
		return
	}
	for _, s := range o.devices.Statuses() {
		if o.metrics != nil {
			o.metrics.RecordDeviceState(s.Config.ID, s.State.On)
		}
		if o.archiver != nil {
			o.archiver.WriteDeviceRuntime(s.Config.ID, s.State.On, s.State.OnTodayMinutes, s.State.ActivationsToday)
		}
	}
}

func (o *Orchestrator) countCycle(result string) {
	if o.metrics != nil {
		o.metrics.CyclesTotal.WithLabelValues(result).Inc()
	}
}

// rejectionReason maps a gate error to a stable metric label.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, executor.ErrUnknownDevice):
		return "unknown_device"
	case errors.Is(err, device.ErrAlreadyActive):
		return "already_active"
	case errors.Is(err, executor.ErrIntervalTooSoon):
		return "interval"
	case errors.Is(err, device.ErrNotActive):
		return "not_active"
	default:
		return "other"
	}
}
