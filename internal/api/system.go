package api

import (
	"net/http"

	"github.com/verdantio/greenhouse-core/internal/decision"
)

// handleHealth returns liveness plus subsystem connectivity.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	subsystems := map[string]any{}
	if s.broker != nil {
		subsystems["mqtt"] = map[string]any{"connected": s.broker.IsConnected()}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    s.version,
		"subsystems": subsystems,
	})
}

// handleStatus returns the current view of the greenhouse: latest
// readings, device states, the cached forecast and the most recent
// decision (whose feature summary carries the trend slopes the loop
// last acted on).
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	snapshot := s.store.Snapshot(now)

	response := map[string]any{
		"taken_at": snapshot.TakenAt,
		"readings": snapshot.Readings,
		"devices":  s.registry.Statuses(),
	}

	if s.forecast != nil {
		if fc, err := s.forecast.Snapshot(r.Context()); err == nil {
			response["forecast"] = fc
		}
	}

	latest, err := s.history.Latest(r.Context(), 1)
	if err != nil {
		s.logger.Error("loading latest decision", "error", err)
	} else if len(latest) > 0 {
		response["last_decision"] = latest[0]
	}

	writeJSON(w, http.StatusOK, response)
}

// handleListDecisions returns the decision trail, newest first.
//
// Query parameters: limit, offset, device.
func (s *Server) handleListDecisions(w http.ResponseWriter, r *http.Request) {
	filter := decision.ListFilter{
		DeviceID: r.URL.Query().Get("device"),
	}

	var ok bool
	if filter.Limit, ok = queryInt(r, "limit"); !ok {
		writeBadRequest(w, "limit must be an integer")
		return
	}
	if filter.Offset, ok = queryInt(r, "offset"); !ok {
		writeBadRequest(w, "offset must be an integer")
		return
	}

	records, err := s.history.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing decisions", "error", err)
		writeInternalError(w, "failed to load decision history")
		return
	}
	if records == nil {
		records = []decision.Record{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"decisions": records,
		"count":     len(records),
	})
}
