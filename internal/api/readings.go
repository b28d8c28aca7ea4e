package api

import (
	"net/http"
	"strings"

	"github.com/bher20/meterledger/internal/auth"
	"github.com/bher20/meterledger/internal/meter"
	"github.com/bher20/meterledger/internal/usage"
)

// handleListReadings lists the caller's readings between ?start and ?end
// (inclusive ISO dates). A missing bound defaults to the current billing
// period.
func (s *Server) handleListReadings(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	q := r.URL.Query()

	p, err := s.usage.Period(r.Context(), id.OwnerID, s.usage.Today())
	if err != nil {
		writeServiceError(w, r, err, http.StatusUnprocessableEntity)
		return
	}
	start, end := p.Start, p.End
	if v := strings.TrimSpace(q.Get("start")); v != "" {
		if start, err = meter.ParseDate(v); err != nil {
			writeAPIError(w, http.StatusBadRequest, "invalid_argument", "invalid start")
			return
		}
	}
	if v := strings.TrimSpace(q.Get("end")); v != "" {
		if end, err = meter.ParseDate(v); err != nil {
			writeAPIError(w, http.StatusBadRequest, "invalid_argument", "invalid end")
			return
		}
	}
	if end.Before(start) {
		writeAPIError(w, http.StatusBadRequest, "invalid_argument", "invalid range: start must not be after end")
		return
	}

	readings, err := s.usage.ListReadings(r.Context(), id.OwnerID, start, end)
	if err != nil {
		writeServiceError(w, r, err, http.StatusUnprocessableEntity)
		return
	}
	out := make([]readingJSON, 0, len(readings))
	for _, rd := range readings {
		out = append(out, newReadingJSON(rd))
	}
	_ = writeJSON(w, http.StatusOK, listReadingsJSON{
		Start:    start.Format(meter.DateLayout),
		End:      end.Format(meter.DateLayout),
		Readings: out,
	})
}

func (s *Server) handleCreateReading(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	var in usage.NewReading
	if err := decodeJSON(r, &in); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid_argument", "invalid JSON body: "+err.Error())
		return
	}
	rd, err := s.usage.AddReading(r.Context(), id.OwnerID, in)
	if err != nil {
		writeServiceError(w, r, err, http.StatusBadRequest)
		return
	}
	_ = writeJSON(w, http.StatusCreated, newReadingJSON(rd))
}

func (s *Server) handleDeleteReading(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	if err := s.usage.DeleteReading(r.Context(), id.OwnerID, r.PathValue("id")); err != nil {
		writeServiceError(w, r, err, http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteOwner removes every reading, setting and snapshot of the caller.
func (s *Server) handleDeleteOwner(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	if err := s.usage.DeleteOwner(r.Context(), id.OwnerID); err != nil {
		writeServiceError(w, r, err, http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
