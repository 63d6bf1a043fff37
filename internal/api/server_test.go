package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/verdantio/greenhouse-core/internal/decision"
	"github.com/verdantio/greenhouse-core/internal/device"
	"github.com/verdantio/greenhouse-core/internal/executor"
	"github.com/verdantio/greenhouse-core/internal/infrastructure/config"
	"github.com/verdantio/greenhouse-core/internal/infrastructure/logging"
	"github.com/verdantio/greenhouse-core/internal/telemetry"
)

const deviceSchema = `
CREATE TABLE device_states (
	device_id         TEXT PRIMARY KEY,
	is_on             INTEGER NOT NULL DEFAULT 0,
	activated_at      TEXT,
	last_off_at       TEXT,
	on_today_minutes  REAL NOT NULL DEFAULT 0,
	activations_today INTEGER NOT NULL DEFAULT 0,
	updated_at        TEXT NOT NULL
);
CREATE TABLE control_state (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

type fakeExecutor struct {
	mu     sync.Mutex
	result executor.Result
	err    error
	seen   []decision.Decision
}

func (f *fakeExecutor) Execute(_ context.Context, d decision.Decision) (executor.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, d)
	return f.result, f.err
}

type memoryHistory struct {
	mu      sync.Mutex
	records []decision.Record
}

func (m *memoryHistory) Append(_ context.Context, record decision.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}

func (m *memoryHistory) List(_ context.Context, filter decision.ListFilter) ([]decision.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if filter.DeviceID == "" {
		return append([]decision.Record(nil), m.records...), nil
	}
	var out []decision.Record
	for _, r := range m.records {
		if r.Decision.DeviceID == filter.DeviceID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryHistory) Latest(_ context.Context, _ int) ([]decision.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.records) == 0 {
		return nil, nil
	}
	return []decision.Record{m.records[len(m.records)-1]}, nil
}

type testServer struct {
	server   *Server
	http     *httptest.Server
	executor *fakeExecutor
	history  *memoryHistory
	store    *telemetry.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec(deviceSchema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}

	registry := device.NewRegistry(device.NewSQLiteRepository(db), []device.Config{
		{ID: "pump_01", Name: "Irrigation pump", Category: device.Pump, MaxOnDuration: 60 * time.Minute, MinInterval: 15 * time.Minute},
		{ID: "fan_01", Name: "Exhaust fan", Category: device.Fan, MaxOnDuration: 120 * time.Minute, MinInterval: 10 * time.Minute},
	})
	if err := registry.Init(context.Background(), time.Now()); err != nil {
		t.Fatalf("initialising registry: %v", err)
	}

	exec := &fakeExecutor{result: executor.Result{Outcome: decision.OutcomeExecuted}}
	history := &memoryHistory{}
	store := telemetry.NewStore()

	s, err := New(Deps{
		Config:   config.APIConfig{},
		Logger:   logging.Default(),
		Registry: registry,
		Store:    store,
		Executor: exec,
		History:  history,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ts := httptest.NewServer(s.buildRouter())
	t.Cleanup(ts.Close)

	return &testServer{server: s, http: ts, executor: exec, history: history, store: store}
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

// === Health and status ===

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.http.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]any
	decodeBody(t, resp, &body)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
}

func TestHandleStatus(t *testing.T) {
	ts := newTestServer(t)
	ts.store.Put(telemetry.Reading{
		Measurement: telemetry.Temperature,
		Value:       24.5,
		Unit:        "°C",
		SensorID:    "node_01",
		RecordedAt:  time.Now(),
	})
	ts.history.Append(context.Background(), decision.Record{
		ID:        "dec-001",
		Decision:  decision.Decision{Action: decision.ActionNone, Reason: "nominal", Source: decision.SourceFallback},
		Outcome:   decision.OutcomeExecuted,
		DecidedAt: time.Now(),
	})

	resp, err := http.Get(ts.http.URL + "/api/v1/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Readings map[string]telemetry.Reading `json:"readings"`
		Devices  []device.Status              `json:"devices"`
		Last     *decision.Record             `json:"last_decision"`
	}
	decodeBody(t, resp, &body)

	if body.Readings["temperature"].Value != 24.5 {
		t.Errorf("readings = %v", body.Readings)
	}
	if len(body.Devices) != 2 {
		t.Errorf("devices = %d, want 2", len(body.Devices))
	}
	if body.Last == nil || body.Last.ID != "dec-001" {
		t.Errorf("last_decision = %v", body.Last)
	}
}

// === Devices ===

func TestHandleListDevices(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.http.URL + "/api/v1/devices")
	if err != nil {
		t.Fatalf("GET /devices: %v", err)
	}

	var body struct {
		Devices []device.Status `json:"devices"`
		Count   int             `json:"count"`
	}
	decodeBody(t, resp, &body)

	if body.Count != 2 {
		t.Fatalf("count = %d, want 2", body.Count)
	}
	if body.Devices[0].Config.ID != "fan_01" || body.Devices[1].Config.ID != "pump_01" {
		t.Errorf("devices out of ID order: %s, %s", body.Devices[0].Config.ID, body.Devices[1].Config.ID)
	}
}

func TestHandleGetDevice(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.http.URL + "/api/v1/devices/pump_01")
	if err != nil {
		t.Fatalf("GET /devices/pump_01: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var status device.Status
	decodeBody(t, resp, &status)
	if status.Config.ID != "pump_01" || status.State.On {
		t.Errorf("status = %+v", status)
	}
}

func TestHandleGetDeviceNotFound(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.http.URL + "/api/v1/devices/heater_99")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

// === Manual commands ===

func postCommand(t *testing.T, ts *testServer, deviceID string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("encoding body: %v", err)
	}
	resp, err := http.Post(
		fmt.Sprintf("%s/api/v1/devices/%s/command", ts.http.URL, deviceID),
		"application/json",
		bytes.NewReader(payload),
	)
	if err != nil {
		t.Fatalf("POST command: %v", err)
	}
	return resp
}

func TestHandleDeviceCommandActivate(t *testing.T) {
	ts := newTestServer(t)

	resp := postCommand(t, ts, "pump_01", commandRequest{Action: "activate", DurationMinutes: 10})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var record decision.Record
	decodeBody(t, resp, &record)
	if record.Decision.Source != decision.SourceManual {
		t.Errorf("Source = %v, want manual", record.Decision.Source)
	}
	if record.Outcome != decision.OutcomeExecuted {
		t.Errorf("Outcome = %v, want executed", record.Outcome)
	}

	if len(ts.executor.seen) != 1 {
		t.Fatalf("executor called %d times, want 1", len(ts.executor.seen))
	}
	got := ts.executor.seen[0]
	if got.DeviceID != "pump_01" || got.Duration != 10*time.Minute || got.Confidence != 1.0 {
		t.Errorf("decision = %+v", got)
	}

	if len(ts.history.records) != 1 {
		t.Error("manual command not appended to decision trail")
	}
}

func TestHandleDeviceCommandRejected(t *testing.T) {
	ts := newTestServer(t)
	ts.executor.result = executor.Result{Outcome: decision.OutcomeRejected, Detail: "device already active"}
	ts.executor.err = device.ErrAlreadyActive

	resp := postCommand(t, ts, "pump_01", commandRequest{Action: "activate", DurationMinutes: 10})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestHandleDeviceCommandValidation(t *testing.T) {
	tests := []struct {
		name string
		body commandRequest
	}{
		{name: "unknown action", body: commandRequest{Action: "toggle"}},
		{name: "activate without duration", body: commandRequest{Action: "activate"}},
		{name: "deactivate with duration", body: commandRequest{Action: "deactivate", DurationMinutes: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)

			resp := postCommand(t, ts, "pump_01", tt.body)
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
			if len(ts.executor.seen) != 0 {
				t.Error("executor called for an invalid request")
			}
		})
	}
}

// === Decisions ===

func TestHandleListDecisions(t *testing.T) {
	ts := newTestServer(t)
	for i := 0; i < 3; i++ {
		ts.history.Append(context.Background(), decision.Record{
			ID:        fmt.Sprintf("dec-%03d", i),
			Decision:  decision.Decision{Action: decision.ActionNone, Reason: "nominal", Source: decision.SourceFallback},
			Outcome:   decision.OutcomeExecuted,
			DecidedAt: time.Now(),
		})
	}

	resp, err := http.Get(ts.http.URL + "/api/v1/decisions")
	if err != nil {
		t.Fatalf("GET /decisions: %v", err)
	}

	var body struct {
		Decisions []decision.Record `json:"decisions"`
		Count     int               `json:"count"`
	}
	decodeBody(t, resp, &body)
	if body.Count != 3 {
		t.Errorf("count = %d, want 3", body.Count)
	}
}

func TestHandleListDecisionsBadLimit(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.http.URL + "/api/v1/decisions?limit=abc")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
