package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bher20/meterledger/internal/auth"
	"github.com/bher20/meterledger/internal/billing"
	"github.com/bher20/meterledger/internal/meter"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	settings, err := s.usage.Settings(r.Context(), id.OwnerID)
	if err != nil {
		writeServiceError(w, r, err, http.StatusUnprocessableEntity)
		return
	}
	_ = writeJSON(w, http.StatusOK, settingsJSON{Settings: settings})
}

// handleUpdateSettings applies a partial update. Values may be JSON strings or
// numbers; null resets a key to its default.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid_argument", "invalid JSON body: "+err.Error())
		return
	}
	// Accept the same envelope GET returns.
	if inner, ok := body["settings"].(map[string]any); ok && len(body) == 1 {
		body = inner
	}

	values := make(map[string]string, len(body))
	for k, v := range body {
		switch tv := v.(type) {
		case nil:
			values[k] = ""
		case string:
			values[k] = tv
		case json.Number:
			values[k] = tv.String()
		default:
			writeAPIError(w, http.StatusBadRequest, "invalid_argument", fmt.Sprintf("setting %q must be a string or number", k))
			return
		}
	}

	settings, err := s.usage.UpdateSettings(r.Context(), id.OwnerID, values)
	if err != nil {
		writeServiceError(w, r, err, http.StatusBadRequest)
		return
	}
	_ = writeJSON(w, http.StatusOK, settingsJSON{Settings: settings})
}

func (s *Server) handlePeriod(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	day, ok := s.dayParam(w, r)
	if !ok {
		return
	}
	p, err := s.usage.Period(r.Context(), id.OwnerID, day)
	if err != nil {
		writeServiceError(w, r, err, http.StatusUnprocessableEntity)
		return
	}
	_ = writeJSON(w, http.StatusOK, newPeriodJSON(p))
}

// handleStats reports statistics for the billing period active today, or on
// ?date= when given.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	day, ok := s.dayParam(w, r)
	if !ok {
		return
	}
	stats, err := s.usage.Statistics(r.Context(), id.OwnerID, day)
	if err != nil {
		writeServiceError(w, r, err, http.StatusUnprocessableEntity)
		return
	}
	_ = writeJSON(w, http.StatusOK, billing.NewReport(stats))
}

func (s *Server) handleLatestStats(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	snap, err := s.usage.LatestSnapshot(r.Context(), id.OwnerID)
	if err != nil {
		writeServiceError(w, r, err, http.StatusUnprocessableEntity)
		return
	}
	if snap == nil {
		writeAPIError(w, http.StatusNotFound, "not_found", "no statistics snapshot yet")
		return
	}
	w.Header().Set("Last-Modified", snap.ComputedAt.UTC().Format(http.TimeFormat))
	w.Header().Set("X-Snapshot-Id", strconv.FormatUint(uint64(snap.ID), 10))
	_ = writeJSON(w, http.StatusOK, snapshotJSON{
		ComputedAt: snap.ComputedAt.UTC().Format(time.RFC3339),
		Report:     json.RawMessage(snap.Payload),
	})
}

func (s *Server) dayParam(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	v := strings.TrimSpace(r.URL.Query().Get("date"))
	if v == "" {
		return s.usage.Today(), true
	}
	day, err := meter.ParseDate(v)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid_argument", "invalid date")
		return time.Time{}, false
	}
	return day, true
}
