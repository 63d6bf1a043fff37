package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/verdantio/greenhouse-core/internal/infrastructure/config"
)

// fixedNow is the reference "now" for all tests: midday UTC.
var fixedNow = time.Date(2026, 7, 14, 12, 0, 0, 0, time.UTC)

// newTestServer serves canned /weather and /forecast responses and counts
// requests per endpoint.
func newTestServer(t *testing.T, failing *atomic.Bool) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/weather", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if failing != nil && failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if r.URL.Query().Get("appid") == "" {
			t.Error("missing appid query parameter")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"main": map[string]any{"temp": 29.5, "humidity": 40.0},
		})
	})
	mux.HandleFunc("/forecast", func(w http.ResponseWriter, r *http.Request) {
		if failing != nil && failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		// Three-hour slots across tomorrow with a 38° peak.
		tomorrow := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)
		list := []map[string]any{}
		temps := []struct{ min, max float64 }{
			{22, 24}, {24, 28}, {30, 35}, {34, 38}, {33, 36}, {28, 31},
		}
		for i, tt := range temps {
			list = append(list, map[string]any{
				"dt":   tomorrow.Add(time.Duration(i*3) * time.Hour).Unix(),
				"main": map[string]any{"temp_min": tt.min, "temp_max": tt.max},
				"pop":  0.1 * float64(i),
			})
		}
		json.NewEncoder(w).Encode(map[string]any{"list": list})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &calls
}

func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	cfg := config.ForecastConfig{
		Enabled:         true,
		BaseURL:         srv.URL,
		APIKey:          "test-key",
		TimeoutSeconds:  5,
		CacheTTLMinutes: 30,
		MaxStaleMinutes: 180,
	}
	c := NewClient(cfg, 35.1856, 33.3823, time.UTC)
	c.now = func() time.Time { return fixedNow }
	return c
}

func TestSnapshot(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	c := testClient(t, srv)

	snap, err := c.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	if snap.Current.Temp != 29.5 {
		t.Errorf("Current.Temp = %v, want 29.5", snap.Current.Temp)
	}
	if snap.Current.Humidity != 40.0 {
		t.Errorf("Current.Humidity = %v, want 40.0", snap.Current.Humidity)
	}
	if snap.TomorrowHigh != 38 {
		t.Errorf("TomorrowHigh = %v, want 38", snap.TomorrowHigh)
	}
	if snap.TomorrowLow != 22 {
		t.Errorf("TomorrowLow = %v, want 22", snap.TomorrowLow)
	}
	if snap.PrecipProbability != 50 {
		t.Errorf("PrecipProbability = %v, want 50", snap.PrecipProbability)
	}
	if !snap.FetchedAt.Equal(fixedNow) {
		t.Errorf("FetchedAt = %v, want %v", snap.FetchedAt, fixedNow)
	}
}

func TestSnapshot_Disabled(t *testing.T) {
	c := NewClient(config.ForecastConfig{Enabled: false}, 0, 0, time.UTC)

	_, err := c.Snapshot(context.Background())
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Snapshot() error = %v, want ErrDisabled", err)
	}
}

func TestSnapshot_CacheWithinTTL(t *testing.T) {
	srv, calls := newTestServer(t, nil)
	c := testClient(t, srv)

	if _, err := c.Snapshot(context.Background()); err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if _, err := c.Snapshot(context.Background()); err != nil {
		t.Fatalf("Snapshot() second call error = %v", err)
	}

	if got := calls.Load(); got != 1 {
		t.Errorf("provider /weather calls = %d, want 1 (second served from cache)", got)
	}
}

func TestSnapshot_RefetchAfterTTL(t *testing.T) {
	srv, calls := newTestServer(t, nil)
	c := testClient(t, srv)

	if _, err := c.Snapshot(context.Background()); err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	// Advance past the 30 minute TTL.
	c.now = func() time.Time { return fixedNow.Add(31 * time.Minute) }
	if _, err := c.Snapshot(context.Background()); err != nil {
		t.Fatalf("Snapshot() after TTL error = %v", err)
	}

	if got := calls.Load(); got != 2 {
		t.Errorf("provider /weather calls = %d, want 2", got)
	}
}

func TestSnapshot_ServesStaleOnFailure(t *testing.T) {
	var failing atomic.Bool
	srv, _ := newTestServer(t, &failing)
	c := testClient(t, srv)

	first, err := c.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	// Provider goes down; cache is 1 h old (past TTL, within MaxStale).
	failing.Store(true)
	c.now = func() time.Time { return fixedNow.Add(time.Hour) }

	stale, err := c.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() with stale cache error = %v", err)
	}
	if stale.TomorrowHigh != first.TomorrowHigh {
		t.Errorf("stale snapshot differs from cached: %v != %v", stale.TomorrowHigh, first.TomorrowHigh)
	}
}

func TestSnapshot_UnavailablePastMaxStale(t *testing.T) {
	var failing atomic.Bool
	srv, _ := newTestServer(t, &failing)
	c := testClient(t, srv)

	if _, err := c.Snapshot(context.Background()); err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	// Cache is 4 h old, past the 3 h MaxStale.
	failing.Store(true)
	c.now = func() time.Time { return fixedNow.Add(4 * time.Hour) }

	_, err := c.Snapshot(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Snapshot() error = %v, want ErrUnavailable", err)
	}
}

func TestSnapshot_NoCacheProviderDown(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	srv, _ := newTestServer(t, &failing)
	c := testClient(t, srv)

	_, err := c.Snapshot(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Snapshot() error = %v, want ErrUnavailable", err)
	}
}

func TestSnapshot_NoTomorrowEntries(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/weather", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"main": map[string]any{"temp": 20.0, "humidity": 50.0}})
	})
	mux.HandleFunc("/forecast", func(w http.ResponseWriter, _ *http.Request) {
		// Entries only for today.
		fmt.Fprintf(w, `{"list":[{"dt":%d,"main":{"temp_min":20,"temp_max":25},"pop":0}]}`, fixedNow.Unix())
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.Snapshot(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Snapshot() error = %v, want ErrUnavailable", err)
	}
}
