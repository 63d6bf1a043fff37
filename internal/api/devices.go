package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/verdantio/greenhouse-core/internal/decision"
	"github.com/verdantio/greenhouse-core/internal/device"
	"github.com/verdantio/greenhouse-core/internal/executor"
)

// commandRequest is the body of POST /devices/{id}/command.
type commandRequest struct {
	Action          string  `json:"action"`
	DurationMinutes float64 `json:"duration_minutes,omitempty"`
	Reason          string  `json:"reason,omitempty"`
}

// handleListDevices returns all configured devices with their states.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	statuses := s.registry.Statuses()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": statuses,
		"count":   len(statuses),
	})
}

// handleGetDevice returns one device's configuration and state.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cfg, ok := s.registry.Get(id)
	if !ok {
		writeNotFound(w, fmt.Sprintf("device %q not found", id))
		return
	}
	state, err := s.registry.GetState(id)
	if err != nil {
		writeNotFound(w, fmt.Sprintf("device %q not found", id))
		return
	}

	writeJSON(w, http.StatusOK, device.Status{Config: cfg, State: state})
}

// handleDeviceCommand applies a manual override through the executor.
//
// Manual commands pass the same safety gate as loop decisions and are
// appended to the decision trail with source "manual".
func (s *Server) handleDeviceCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	action := decision.Action(req.Action)
	switch action {
	case decision.ActionActivate:
		if req.DurationMinutes <= 0 {
			writeBadRequest(w, "activate requires a positive duration_minutes")
			return
		}
	case decision.ActionDeactivate:
		if req.DurationMinutes != 0 {
			writeBadRequest(w, "deactivate does not take a duration")
			return
		}
	default:
		writeBadRequest(w, fmt.Sprintf("action must be activate or deactivate, got %q", req.Action))
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "manual override via API"
	}

	d := decision.Decision{
		Action:     action,
		DeviceID:   id,
		Duration:   time.Duration(req.DurationMinutes * float64(time.Minute)),
		Reason:     reason,
		Confidence: 1.0,
		Source:     decision.SourceManual,
	}

	result, execErr := s.executor.Execute(r.Context(), d)

	record := decision.Record{
		ID:            s.newID(),
		Decision:      d,
		Outcome:       result.Outcome,
		OutcomeDetail: result.Detail,
		DecidedAt:     s.now(),
	}
	if err := s.history.Append(r.Context(), record); err != nil {
		s.logger.Error("appending manual decision record", "error", err)
	}

	switch result.Outcome {
	case decision.OutcomeExecuted:
		writeJSON(w, http.StatusOK, record)
	case decision.OutcomeRejected:
		status := http.StatusConflict
		if errors.Is(execErr, executor.ErrUnknownDevice) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, record)
	default:
		writeJSON(w, http.StatusBadGateway, record)
	}
}

// queryInt parses an optional integer query parameter. Missing values
// are 0; a malformed value fails.
func queryInt(r *http.Request, key string) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
