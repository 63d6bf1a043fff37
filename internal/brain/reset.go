package brain

import (
	"context"
	"time"
)

const dayFormat = "2006-01-02"

// resetRetryDelay is how long to wait before retrying a failed
// midnight reset.
const resetRetryDelay = time.Minute

// CounterRegistry is the registry surface the reset scheduler drives.
type CounterRegistry interface {
	ResetDailyCounters(ctx context.Context, day string, at time.Time) error
	LastResetDay(ctx context.Context) (string, error)
}

// ResetScheduler zeroes the per-device daily counters at local
// midnight. The last reset day is persisted, so a core that was down at
// midnight catches up on its next start.
type ResetScheduler struct {
	registry   CounterRegistry
	location   *time.Location
	logger     Logger
	now        func() time.Time
	retryDelay time.Duration
}

// NewResetScheduler creates a scheduler for the site's timezone.
func NewResetScheduler(registry CounterRegistry, location *time.Location, logger Logger) *ResetScheduler {
	if logger == nil {
		logger = noopLogger{}
	}
	return &ResetScheduler{
		registry:   registry,
		location:   location,
		logger:     logger,
		now:        time.Now,
		retryDelay: resetRetryDelay,
	}
}

// Run performs a catch-up reset if one was missed, then resets at every
// local midnight until ctx is cancelled.
func (s *ResetScheduler) Run(ctx context.Context) {
	if err := s.CatchUp(ctx); err != nil {
		s.logger.Error("daily counter catch-up failed", "error", err)
	}

	for {
		next := nextMidnight(s.now().In(s.location))
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if !s.resetWithRetry(ctx) {
				return
			}
		}
	}
}

// resetWithRetry resets the counters for the current local day,
// retrying transient failures on a short timer instead of writing the
// day off until the next midnight. Returns false when ctx is
// cancelled.
func (s *ResetScheduler) resetWithRetry(ctx context.Context) bool {
	for {
		day := s.now().In(s.location).Format(dayFormat)
		err := s.registry.ResetDailyCounters(ctx, day, s.now())
		if err == nil {
			s.logger.Info("daily counters reset", "day", day)
			return true
		}
		s.logger.Error("daily counter reset failed", "error", err, "retry_in", s.retryDelay.String())

		retry := time.NewTimer(s.retryDelay)
		select {
		case <-ctx.Done():
			retry.Stop()
			return false
		case <-retry.C:
		}
	}
}

// CatchUp resets the counters if the persisted reset day is not today.
// Safe to call on every start.
func (s *ResetScheduler) CatchUp(ctx context.Context) error {
	today := s.now().In(s.location).Format(dayFormat)

	last, err := s.registry.LastResetDay(ctx)
	if err != nil {
		return err
	}
	if last == today {
		return nil
	}

	if err := s.registry.ResetDailyCounters(ctx, today, s.now()); err != nil {
		return err
	}
	s.logger.Info("daily counters reset (catch-up)", "day", today, "previous", last)
	return nil
}

// nextMidnight returns the first instant of the next calendar day in
// t's location.
func nextMidnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1)
}
