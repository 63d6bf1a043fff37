package device

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registry is the single mutation gate for device state.
//
// It holds the configured devices, caches their states in memory, and
// routes every state change through the Repository BEFORE the cache is
// updated. A state that was never persisted is never acknowledged and
// never reaches hardware.
type Registry struct {
	repo    Repository
	configs map[string]Config

	mu     sync.RWMutex
	states map[string]State
}

// NewRegistry creates a Registry for the configured devices.
// Call Init before use to hydrate states from the repository.
func NewRegistry(repo Repository, configs []Config) *Registry {
	cm := make(map[string]Config, len(configs))
	for _, c := range configs {
		cm[c.ID] = c
	}
	return &Registry{
		repo:    repo,
		configs: cm,
		states:  make(map[string]State),
	}
}

// Init hydrates the state cache from the repository, creating zero
// states for devices seen for the first time.
func (r *Registry) Init(ctx context.Context, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id := range r.configs {
		state, err := r.repo.GetState(ctx, id)
		switch {
		case err == nil:
			r.states[id] = *state
		case errors.Is(err, ErrDeviceNotFound):
			fresh := State{DeviceID: id, UpdatedAt: now}
			if err := r.repo.SaveState(ctx, &fresh); err != nil {
				return fmt.Errorf("%w: %w", ErrPersistFailed, err)
			}
			r.states[id] = fresh
		default:
			return fmt.Errorf("loading state for %s: %w", id, err)
		}
	}
	return nil
}

// Get returns the configuration for a device.
func (r *Registry) Get(id string) (Config, bool) {
	c, ok := r.configs[id]
	return c, ok
}

// List returns all device configurations, ordered by ID.
func (r *Registry) List() []Config {
	out := make([]Config, 0, len(r.configs))
	for _, c := range r.configs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetState returns a copy of a device's current state.
func (r *Registry) GetState(id string) (State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.states[id]
	if !ok {
		return State{}, ErrDeviceNotFound
	}
	return state.clone(), nil
}

// Statuses returns config+state pairs for all devices, ordered by ID.
func (r *Registry) Statuses() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Status, 0, len(r.configs))
	for id, c := range r.configs {
		out = append(out, Status{Config: c, State: r.states[id].clone()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Config.ID < out[j].Config.ID })
	return out
}

// Activate marks a device on as of the given time.
//
// The next state is persisted before the cache is touched. On repository
// failure the cache is left unchanged and ErrPersistFailed is returned:
// the caller must not send a hardware command.
func (r *Registry) Activate(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.states[id]
	if !ok {
		return ErrDeviceNotFound
	}
	if current.On {
		return ErrAlreadyActive
	}

	next := current.clone()
	next.On = true
	activatedAt := at
	next.ActivatedAt = &activatedAt
	next.ActivationsToday++
	next.UpdatedAt = at

	if err := r.repo.SaveState(ctx, &next); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}

	r.states[id] = next
	return nil
}

// Deactivate marks a device off as of the given time and accrues the
// completed run into the daily on-time counter.
func (r *Registry) Deactivate(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.states[id]
	if !ok {
		return ErrDeviceNotFound
	}
	if !current.On {
		return ErrNotActive
	}

	next := current.clone()
	next.On = false
	if next.ActivatedAt != nil {
		next.OnTodayMinutes += at.Sub(*next.ActivatedAt).Minutes()
	}
	next.ActivatedAt = nil
	lastOff := at
	next.LastOffAt = &lastOff
	next.UpdatedAt = at

	if err := r.repo.SaveState(ctx, &next); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}

	r.states[id] = next
	return nil
}

// RollbackActivation undoes an activation whose hardware command never
// went out. The pre-activation state is restored: no LastOffAt stamp,
// no on-time accrual, and the activation count is wound back, so the
// device stays immediately eligible for a retry.
func (r *Registry) RollbackActivation(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.states[id]
	if !ok {
		return ErrDeviceNotFound
	}
	if !current.On {
		return ErrNotActive
	}

	next := current.clone()
	next.On = false
	next.ActivatedAt = nil
	if next.ActivationsToday > 0 {
		next.ActivationsToday--
	}
	next.UpdatedAt = at

	if err := r.repo.SaveState(ctx, &next); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}

	r.states[id] = next
	return nil
}

// ResetDailyCounters zeroes every device's daily counters and records
// the reset day, persisting atomically before the cache is updated.
func (r *Registry) ResetDailyCounters(ctx context.Context, day string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.repo.ResetDailyCounters(ctx, day, at); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}

	for id, state := range r.states {
		next := state.clone()
		next.OnTodayMinutes = 0
		next.ActivationsToday = 0
		next.UpdatedAt = at
		r.states[id] = next
	}
	return nil
}

// LastResetDay returns the persisted reset day stamp ("" if none).
func (r *Registry) LastResetDay(ctx context.Context) (string, error) {
	return r.repo.LastResetDay(ctx)
}
