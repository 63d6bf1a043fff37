package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/verdantio/greenhouse-core/internal/infrastructure/config"
)

// Default reasoner call settings.
const (
	defaultReasonerTimeout = 120 * time.Second
	defaultMaxAttempts     = 3
	defaultRetryDelay      = 2 * time.Second

	maxResponseBytes = 64 << 10
)

// reasonerResponse is the wire format the reasoner must answer with.
type reasonerResponse struct {
	Action          string  `json:"action"`
	DeviceID        string  `json:"device_id"`
	DurationMinutes float64 `json:"duration_minutes"`
	Confidence      float64 `json:"confidence"`
	Reason          string  `json:"reason"`
}

// Client calls an external HTTP reasoner for decisions.
//
// The reasoner is advisory and untrusted: every response passes strict
// schema validation before it can reach the executor, and any failure
// (transport, timeout, validation) lets the caller fall back to Policy.
type Client struct {
	url         string
	http        *http.Client
	timeout     time.Duration
	maxAttempts int
	retryDelay  time.Duration

	// knownDevices gates the device_id field of responses.
	knownDevices map[string]bool
}

// NewClient creates a reasoner client.
//
// deviceIDs lists the configured devices; a response naming any other
// device fails validation.
func NewClient(cfg config.ReasonerConfig, deviceIDs []string) *Client {
	timeout := defaultReasonerTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	attempts := defaultMaxAttempts
	if cfg.MaxAttempts > 0 {
		attempts = cfg.MaxAttempts
	}
	delay := defaultRetryDelay
	if cfg.RetryDelaySeconds > 0 {
		delay = time.Duration(cfg.RetryDelaySeconds) * time.Second
	}

	known := make(map[string]bool, len(deviceIDs))
	for _, id := range deviceIDs {
		known[id] = true
	}

	return &Client{
		url:          cfg.URL,
		http:         &http.Client{},
		timeout:      timeout,
		maxAttempts:  attempts,
		retryDelay:   delay,
		knownDevices: known,
	}
}

// Decide posts the cycle features to the reasoner and validates the
// answer. Transport failures are retried up to the attempt limit with a
// fixed delay; validation failures are not retried (a reasoner that
// answers garbage once will answer garbage again).
func (c *Client) Decide(ctx context.Context, features Features) (Decision, error) {
	body, err := json.Marshal(features)
	if err != nil {
		return Decision{}, fmt.Errorf("encoding features: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return Decision{}, fmt.Errorf("%w: %w", ErrReasonerUnavailable, ctx.Err())
			case <-time.After(c.retryDelay):
			}
		}

		decision, err := c.attempt(ctx, body)
		if err == nil {
			return decision, nil
		}
		if errors.Is(err, ErrSchemaViolation) {
			return Decision{}, err
		}
		lastErr = err
	}

	return Decision{}, fmt.Errorf("%w: %d attempts: %w", ErrReasonerUnavailable, c.maxAttempts, lastErr)
}

func (c *Client) attempt(ctx context.Context, body []byte) (Decision, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Decision{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || attemptCtx.Err() == context.DeadlineExceeded {
			return Decision{}, fmt.Errorf("%w after %v", ErrReasonerTimeout, c.timeout)
		}
		return Decision{}, fmt.Errorf("calling reasoner: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Decision{}, fmt.Errorf("reasoner returned status %d", resp.StatusCode)
	}

	var raw reasonerResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&raw); err != nil {
		return Decision{}, fmt.Errorf("%w: malformed JSON: %w", ErrSchemaViolation, err)
	}

	return c.validate(raw)
}

// validate enforces the response schema. Every field is checked; a
// reasoner answer that fails any check never reaches the executor.
func (c *Client) validate(raw reasonerResponse) (Decision, error) {
	action := Action(raw.Action)
	if !action.Valid() {
		return Decision{}, fmt.Errorf("%w: unknown action %q", ErrSchemaViolation, raw.Action)
	}
	if raw.Confidence < 0 || raw.Confidence > 1 {
		return Decision{}, fmt.Errorf("%w: confidence %v outside [0,1]", ErrSchemaViolation, raw.Confidence)
	}
	if raw.Reason == "" {
		return Decision{}, fmt.Errorf("%w: empty reason", ErrSchemaViolation)
	}

	switch action {
	case ActionActivate:
		if !c.knownDevices[raw.DeviceID] {
			return Decision{}, fmt.Errorf("%w: unknown device %q", ErrSchemaViolation, raw.DeviceID)
		}
		if raw.DurationMinutes <= 0 {
			return Decision{}, fmt.Errorf("%w: activate requires positive duration, got %v", ErrSchemaViolation, raw.DurationMinutes)
		}
	case ActionDeactivate:
		if !c.knownDevices[raw.DeviceID] {
			return Decision{}, fmt.Errorf("%w: unknown device %q", ErrSchemaViolation, raw.DeviceID)
		}
		if raw.DurationMinutes != 0 {
			return Decision{}, fmt.Errorf("%w: deactivate must not carry a duration", ErrSchemaViolation)
		}
	case ActionNone:
		if raw.DeviceID != "" {
			return Decision{}, fmt.Errorf("%w: none must not name a device", ErrSchemaViolation)
		}
		if raw.DurationMinutes != 0 {
			return Decision{}, fmt.Errorf("%w: none must not carry a duration", ErrSchemaViolation)
		}
	}

	return Decision{
		Action:     action,
		DeviceID:   raw.DeviceID,
		Duration:   time.Duration(raw.DurationMinutes * float64(time.Minute)),
		Reason:     raw.Reason,
		Confidence: raw.Confidence,
		Source:     SourceReasoner,
	}, nil
}
