package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/verdantio/greenhouse-core/internal/decision"
	"github.com/verdantio/greenhouse-core/internal/device"
)

// Every delivery or persistence failure raises a warning; alerts
// escalate to critical at this many consecutive failures for the same
// device.
const failureAlertThreshold = 2

// Registry is the device state gate the executor drives.
type Registry interface {
	Get(id string) (device.Config, bool)
	GetState(id string) (device.State, error)
	Activate(ctx context.Context, id string, at time.Time) error
	Deactivate(ctx context.Context, id string, at time.Time) error
	RollbackActivation(ctx context.Context, id string, at time.Time) error
}

// Relay sends on/off commands to hardware.
type Relay interface {
	TurnOn(deviceID string, duration time.Duration) error
	TurnOff(deviceID string) error
}

// Alerter raises operational alerts.
type Alerter interface {
	Critical(source, message, deviceID string)
	Warning(source, message, deviceID string)
}

// Logger is the minimal logging interface the executor needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopAlerter struct{}

func (noopAlerter) Critical(string, string, string) {}
func (noopAlerter) Warning(string, string, string)  {}

// Result is what the executor did with a decision.
type Result struct {
	Outcome         decision.Outcome
	Detail          string
	AppliedDuration time.Duration
	Clamped         bool
}

// Executor is the safety gate between decisions and hardware.
//
// Every activation passes the same fixed gate order regardless of who
// decided it: device known, not already on, minimum interval elapsed,
// duration clamped to the device maximum. State is persisted through the
// registry BEFORE any relay command goes out; a persistence failure
// means no hardware command.
type Executor struct {
	registry Registry
	relay    Relay
	alerter  Alerter
	logger   Logger
	dryRun   bool
	now      func() time.Time

	mu       sync.Mutex
	timers   map[string]*time.Timer
	failures map[string]int
	closed   bool
}

// Option configures an Executor.
type Option func(*Executor)

// WithDryRun suppresses registry mutation and relay commands; gates are
// still evaluated so a dry run exercises the full decision path.
func WithDryRun(dryRun bool) Option {
	return func(e *Executor) { e.dryRun = dryRun }
}

// WithAlerter sets the alert sink.
func WithAlerter(alerter Alerter) Option {
	return func(e *Executor) {
		if alerter != nil {
			e.alerter = alerter
		}
	}
}

// WithLogger sets the executor's logger.
func WithLogger(logger Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Executor.
func New(registry Registry, relay Relay, opts ...Option) *Executor {
	e := &Executor{
		registry: registry,
		relay:    relay,
		alerter:  noopAlerter{},
		logger:   noopLogger{},
		now:      time.Now,
		timers:   make(map[string]*time.Timer),
		failures: make(map[string]int),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute applies one decision. The returned Result always carries an
// outcome suitable for the decision trail; the error adds detail for
// rejected and failed outcomes.
func (e *Executor) Execute(ctx context.Context, d decision.Decision) (Result, error) {
	switch d.Action {
	case decision.ActionNone:
		return Result{Outcome: decision.OutcomeExecuted, Detail: "no action"}, nil
	case decision.ActionActivate:
		return e.activate(ctx, d)
	case decision.ActionDeactivate:
		return e.deactivate(ctx, d)
	default:
		return Result{Outcome: decision.OutcomeRejected, Detail: fmt.Sprintf("invalid action %q", d.Action)},
			fmt.Errorf("%w: %q", ErrInvalidAction, d.Action)
	}
}

func (e *Executor) activate(ctx context.Context, d decision.Decision) (Result, error) {
	cfg, ok := e.registry.Get(d.DeviceID)
	if !ok {
		return Result{Outcome: decision.OutcomeRejected, Detail: fmt.Sprintf("unknown device %q", d.DeviceID)},
			fmt.Errorf("%w: %q", ErrUnknownDevice, d.DeviceID)
	}

	state, err := e.registry.GetState(d.DeviceID)
	if err != nil {
		return Result{Outcome: decision.OutcomeRejected, Detail: fmt.Sprintf("unknown device %q", d.DeviceID)},
			fmt.Errorf("%w: %q", ErrUnknownDevice, d.DeviceID)
	}
	if state.On {
		return Result{Outcome: decision.OutcomeRejected, Detail: "device already active"},
			fmt.Errorf("%w: %s", device.ErrAlreadyActive, d.DeviceID)
	}

	now := e.now()
	if state.LastOffAt != nil && cfg.MinInterval > 0 {
		if elapsed := now.Sub(*state.LastOffAt); elapsed < cfg.MinInterval {
			detail := fmt.Sprintf("last off %s ago, minimum interval %s", elapsed.Round(time.Second), cfg.MinInterval)
			return Result{Outcome: decision.OutcomeRejected, Detail: detail},
				fmt.Errorf("%w: %s", ErrIntervalTooSoon, detail)
		}
	}

	applied := d.Duration
	clamped := false
	var detail string
	if cfg.MaxOnDuration > 0 && applied > cfg.MaxOnDuration {
		detail = fmt.Sprintf("duration clamped from %s to %s", applied, cfg.MaxOnDuration)
		applied = cfg.MaxOnDuration
		clamped = true
		e.logger.Warn("duration clamped", "device_id", d.DeviceID, "requested", d.Duration.String(), "applied", applied.String())
	}

	if e.dryRun {
		e.logger.Info("dry-run: would activate", "device_id", d.DeviceID, "duration", applied.String(), "reason", d.Reason)
		return Result{Outcome: decision.OutcomeExecuted, Detail: "dry-run", AppliedDuration: applied, Clamped: clamped}, nil
	}

	if err := e.registry.Activate(ctx, d.DeviceID, now); err != nil {
		e.recordFailure(d.DeviceID, err)
		return Result{Outcome: decision.OutcomeFailed, Detail: fmt.Sprintf("state persistence failed: %v", err)},
			fmt.Errorf("activating %s: %w", d.DeviceID, err)
	}

	if err := e.relay.TurnOn(d.DeviceID, applied); err != nil {
		// State says on but hardware never heard the command: restore
		// the pre-activation state. A plain deactivate would stamp
		// LastOffAt and interval-gate the retry of a run that never
		// happened.
		if rbErr := e.registry.RollbackActivation(ctx, d.DeviceID, e.now()); rbErr != nil {
			e.logger.Error("rollback after delivery failure", "device_id", d.DeviceID, "error", rbErr)
		}
		e.recordFailure(d.DeviceID, err)
		return Result{Outcome: decision.OutcomeFailed, Detail: fmt.Sprintf("command delivery failed: %v", err)},
			fmt.Errorf("%w: %s: %w", ErrDeliveryFailed, d.DeviceID, err)
	}

	e.clearFailures(d.DeviceID)
	e.scheduleShutoff(d.DeviceID, applied)
	e.logger.Info("device activated", "device_id", d.DeviceID, "duration", applied.String(), "source", d.Source, "confidence", d.Confidence)

	if d.Confidence >= 0.95 {
		e.alerter.Critical("executor", fmt.Sprintf("critical activation of %s: %s", d.DeviceID, d.Reason), d.DeviceID)
	}

	return Result{Outcome: decision.OutcomeExecuted, Detail: detail, AppliedDuration: applied, Clamped: clamped}, nil
}

func (e *Executor) deactivate(ctx context.Context, d decision.Decision) (Result, error) {
	if _, ok := e.registry.Get(d.DeviceID); !ok {
		return Result{Outcome: decision.OutcomeRejected, Detail: fmt.Sprintf("unknown device %q", d.DeviceID)},
			fmt.Errorf("%w: %q", ErrUnknownDevice, d.DeviceID)
	}

	state, err := e.registry.GetState(d.DeviceID)
	if err != nil {
		return Result{Outcome: decision.OutcomeRejected, Detail: fmt.Sprintf("unknown device %q", d.DeviceID)},
			fmt.Errorf("%w: %q", ErrUnknownDevice, d.DeviceID)
	}
	if !state.On {
		return Result{Outcome: decision.OutcomeRejected, Detail: "device not active"},
			fmt.Errorf("%w: %s", device.ErrNotActive, d.DeviceID)
	}

	if e.dryRun {
		e.logger.Info("dry-run: would deactivate", "device_id", d.DeviceID, "reason", d.Reason)
		return Result{Outcome: decision.OutcomeExecuted, Detail: "dry-run"}, nil
	}

	e.cancelShutoff(d.DeviceID)

	if err := e.registry.Deactivate(ctx, d.DeviceID, e.now()); err != nil {
		e.recordFailure(d.DeviceID, err)
		return Result{Outcome: decision.OutcomeFailed, Detail: fmt.Sprintf("state persistence failed: %v", err)},
			fmt.Errorf("deactivating %s: %w", d.DeviceID, err)
	}

	if err := e.relay.TurnOff(d.DeviceID); err != nil {
		// Registry already shows off; the relay firmware's own run
		// timer is the backstop until the command can be repeated.
		e.recordFailure(d.DeviceID, err)
		return Result{Outcome: decision.OutcomeFailed, Detail: fmt.Sprintf("command delivery failed: %v", err)},
			fmt.Errorf("%w: %s: %w", ErrDeliveryFailed, d.DeviceID, err)
	}

	e.clearFailures(d.DeviceID)
	e.logger.Info("device deactivated", "device_id", d.DeviceID, "source", d.Source)
	return Result{Outcome: decision.OutcomeExecuted}, nil
}

// scheduleShutoff arms the auto-shutoff timer for an activation. The
// relay firmware has its own run timer; this keeps the registry's view
// in step when the run expires.
func (e *Executor) scheduleShutoff(deviceID string, duration time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if t, ok := e.timers[deviceID]; ok {
		t.Stop()
	}
	e.timers[deviceID] = time.AfterFunc(duration, func() { e.autoShutoff(deviceID) })
}

func (e *Executor) cancelShutoff(deviceID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.timers[deviceID]; ok {
		t.Stop()
		delete(e.timers, deviceID)
	}
}

func (e *Executor) autoShutoff(deviceID string) {
	e.mu.Lock()
	delete(e.timers, deviceID)
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.registry.Deactivate(ctx, deviceID, e.now()); err != nil {
		if errors.Is(err, device.ErrNotActive) {
			return // already turned off elsewhere
		}
		e.logger.Error("auto-shutoff state update failed", "device_id", deviceID, "error", err)
		return
	}
	if err := e.relay.TurnOff(deviceID); err != nil {
		e.logger.Error("auto-shutoff delivery failed", "device_id", deviceID, "error", err)
	}
	e.logger.Info("auto-shutoff: run expired", "device_id", deviceID)
}

func (e *Executor) recordFailure(deviceID string, err error) {
	e.mu.Lock()
	e.failures[deviceID]++
	count := e.failures[deviceID]
	e.mu.Unlock()

	e.logger.Error("execution failure", "device_id", deviceID, "consecutive", count, "error", err)
	if count >= failureAlertThreshold {
		e.alerter.Critical("executor", fmt.Sprintf("%d consecutive failures for %s: %v", count, deviceID, err), deviceID)
		return
	}
	e.alerter.Warning("executor", fmt.Sprintf("execution failure for %s: %v", deviceID, err), deviceID)
}

func (e *Executor) clearFailures(deviceID string) {
	e.mu.Lock()
	delete(e.failures, deviceID)
	e.mu.Unlock()
}

// Close stops all pending auto-shutoff timers.
func (e *Executor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	for id, t := range e.timers {
		t.Stop()
		delete(e.timers, id)
	}
}
