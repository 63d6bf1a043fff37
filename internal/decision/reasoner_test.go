package decision

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/verdantio/greenhouse-core/internal/infrastructure/config"
)

func newTestClient(url string) *Client {
	return NewClient(config.ReasonerConfig{
		Enabled:           true,
		URL:               url,
		TimeoutSeconds:    2,
		MaxAttempts:       3,
		RetryDelaySeconds: 1,
	}, []string{"pump_01", "fan_01"})
}

// === Successful decisions ===

func TestClientDecide_Activate(t *testing.T) {
	var gotBody Features
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		json.NewEncoder(w).Encode(reasonerResponse{
			Action:          "activate",
			DeviceID:        "pump_01",
			DurationMinutes: 20,
			Confidence:      0.85,
			Reason:          "soil drying faster than usual",
		})
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	d, err := c.Decide(context.Background(), Features{})
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}

	if d.Action != ActionActivate || d.DeviceID != "pump_01" {
		t.Errorf("Decide() = %+v, want activate pump_01", d)
	}
	if d.Duration != 20*time.Minute {
		t.Errorf("Duration = %v, want 20m", d.Duration)
	}
	if d.Source != SourceReasoner {
		t.Errorf("Source = %v, want reasoner", d.Source)
	}
}

func TestClientDecide_None(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(reasonerResponse{
			Action:     "none",
			Confidence: 0.9,
			Reason:     "conditions nominal",
		})
	}))
	defer server.Close()

	d, err := newTestClient(server.URL).Decide(context.Background(), Features{})
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if d.Action != ActionNone || d.DeviceID != "" || d.Duration != 0 {
		t.Errorf("Decide() = %+v, want bare none", d)
	}
}

// === Schema validation ===

func TestClientDecide_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		resp reasonerResponse
	}{
		{
			name: "unknown action",
			resp: reasonerResponse{Action: "irrigate", DeviceID: "pump_01", DurationMinutes: 10, Confidence: 0.8, Reason: "x"},
		},
		{
			name: "unknown device",
			resp: reasonerResponse{Action: "activate", DeviceID: "heater_99", DurationMinutes: 10, Confidence: 0.8, Reason: "x"},
		},
		{
			name: "confidence above one",
			resp: reasonerResponse{Action: "activate", DeviceID: "pump_01", DurationMinutes: 10, Confidence: 1.2, Reason: "x"},
		},
		{
			name: "negative confidence",
			resp: reasonerResponse{Action: "none", Confidence: -0.1, Reason: "x"},
		},
		{
			name: "empty reason",
			resp: reasonerResponse{Action: "none", Confidence: 0.8},
		},
		{
			name: "activate without duration",
			resp: reasonerResponse{Action: "activate", DeviceID: "pump_01", Confidence: 0.8, Reason: "x"},
		},
		{
			name: "activate with negative duration",
			resp: reasonerResponse{Action: "activate", DeviceID: "pump_01", DurationMinutes: -5, Confidence: 0.8, Reason: "x"},
		},
		{
			name: "deactivate with duration",
			resp: reasonerResponse{Action: "deactivate", DeviceID: "fan_01", DurationMinutes: 10, Confidence: 0.8, Reason: "x"},
		},
		{
			name: "none naming a device",
			resp: reasonerResponse{Action: "none", DeviceID: "fan_01", Confidence: 0.8, Reason: "x"},
		},
		{
			name: "none with duration",
			resp: reasonerResponse{Action: "none", DurationMinutes: 10, Confidence: 0.8, Reason: "x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				json.NewEncoder(w).Encode(tt.resp)
			}))
			defer server.Close()

			_, err := newTestClient(server.URL).Decide(context.Background(), Features{})
			if !errors.Is(err, ErrSchemaViolation) {
				t.Errorf("Decide() error = %v, want ErrSchemaViolation", err)
			}
			if calls.Load() != 1 {
				t.Errorf("server called %d times, want 1 (validation failures are not retried)", calls.Load())
			}
		})
	}
}

func TestClientDecide_MalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"action": "activ`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Decide(context.Background(), Features{})
	if !errors.Is(err, ErrSchemaViolation) {
		t.Errorf("Decide() error = %v, want ErrSchemaViolation", err)
	}
}

// === Retries ===

func TestClientDecide_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(reasonerResponse{
			Action:     "none",
			Confidence: 0.7,
			Reason:     "recovered",
		})
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	c.retryDelay = time.Millisecond

	d, err := c.Decide(context.Background(), Features{})
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if d.Action != ActionNone {
		t.Errorf("Action = %v, want none", d.Action)
	}
	if calls.Load() != 3 {
		t.Errorf("server called %d times, want 3", calls.Load())
	}
}

func TestClientDecide_UnavailableAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	c.retryDelay = time.Millisecond

	_, err := c.Decide(context.Background(), Features{})
	if !errors.Is(err, ErrReasonerUnavailable) {
		t.Errorf("Decide() error = %v, want ErrReasonerUnavailable", err)
	}
	if calls.Load() != 3 {
		t.Errorf("server called %d times, want 3", calls.Load())
	}
}

func TestClientDecide_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	c := NewClient(config.ReasonerConfig{
		URL:         server.URL,
		MaxAttempts: 1,
	}, nil)
	c.timeout = 50 * time.Millisecond

	_, err := c.Decide(context.Background(), Features{})
	if !errors.Is(err, ErrReasonerUnavailable) {
		t.Errorf("Decide() error = %v, want ErrReasonerUnavailable wrapping the timeout", err)
	}
	if !errors.Is(err, ErrReasonerTimeout) {
		t.Errorf("Decide() error = %v, want ErrReasonerTimeout in the chain", err)
	}
}

func TestClientDecide_ContextCancelledDuringRetryDelay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	c.retryDelay = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Decide(ctx, Features{})
	if !errors.Is(err, ErrReasonerUnavailable) {
		t.Errorf("Decide() error = %v, want ErrReasonerUnavailable", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Decide() error = %v, want context deadline in the chain", err)
	}
}
