package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_IsolatedRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	m1 := New()
	m2 := New()

	m1.CyclesTotal.WithLabelValues("ok").Inc()

	if got := testutil.ToFloat64(m2.CyclesTotal.WithLabelValues("ok")); got != 0 {
		t.Errorf("second instance counter = %v, want 0", got)
	}
}

func TestCounters(t *testing.T) {
	m := New()

	m.CyclesTotal.WithLabelValues("ok").Inc()
	m.CyclesTotal.WithLabelValues("ok").Inc()
	m.CyclesTotal.WithLabelValues("failed").Inc()
	m.DecisionsTotal.WithLabelValues("fallback", "activate").Inc()
	m.RejectionsTotal.WithLabelValues("min_interval").Inc()
	m.ReasonerFailuresTotal.Inc()

	if got := testutil.ToFloat64(m.CyclesTotal.WithLabelValues("ok")); got != 2 {
		t.Errorf("cycles_total{result=ok} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CyclesTotal.WithLabelValues("failed")); got != 1 {
		t.Errorf("cycles_total{result=failed} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("fallback", "activate")); got != 1 {
		t.Errorf("decisions_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ReasonerFailuresTotal); got != 1 {
		t.Errorf("reasoner_failures_total = %v, want 1", got)
	}
}

func TestRecordDeviceState(t *testing.T) {
	m := New()

	m.RecordDeviceState("pump_01", true)
	if got := testutil.ToFloat64(m.DeviceOn.WithLabelValues("pump_01")); got != 1 {
		t.Errorf("device_on{pump_01} = %v, want 1", got)
	}

	m.RecordDeviceState("pump_01", false)
	if got := testutil.ToFloat64(m.DeviceOn.WithLabelValues("pump_01")); got != 0 {
		t.Errorf("device_on{pump_01} = %v, want 0", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.CyclesTotal.WithLabelValues("ok").Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	m.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "greenhouse_cycles_total") {
		t.Error("exposition output missing greenhouse_cycles_total")
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Error("exposition output missing runtime collector metrics")
	}
}
