package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/bher20/meterledger/internal/billing"
	"github.com/bher20/meterledger/internal/meter"
	"github.com/bher20/meterledger/internal/usage"
)

type apiErrorJSON struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

type readingJSON struct {
	ID         string  `json:"id"`
	Value      float64 `json:"value"`
	Date       string  `json:"date"`
	Time       string  `json:"time"`
	RecordedAt string  `json:"recorded_at"`
}

type listReadingsJSON struct {
	Start    string        `json:"start"`
	End      string        `json:"end"`
	Readings []readingJSON `json:"readings"`
}

type settingsJSON struct {
	Settings map[string]string `json:"settings"`
}

type periodJSON struct {
	Start        string `json:"start"`
	End          string `json:"end"`
	DaysInPeriod int    `json:"days_in_period"`
}

type snapshotJSON struct {
	ComputedAt string          `json:"computed_at"`
	Report     json.RawMessage `json:"report"`
}

func newReadingJSON(r meter.Reading) readingJSON {
	return readingJSON{
		ID:         r.ID,
		Value:      r.Value,
		Date:       r.Date.Format(meter.DateLayout),
		Time:       r.Time,
		RecordedAt: r.RecordedAt.UTC().Format(time.RFC3339),
	}
}

func newPeriodJSON(p billing.Period) periodJSON {
	pr := billing.NewPeriodReport(p)
	return periodJSON{Start: pr.Start, End: pr.End, DaysInPeriod: p.Days()}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	reqID := w.Header().Get("X-Request-Id")
	_ = writeJSON(w, status, apiErrorJSON{
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

func onAuthError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeAPIError(w, status, code, message)
}

// writeServiceError maps usage and billing errors onto HTTP responses.
// configStatus is used for tariff configuration errors.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, configStatus int) {
	switch {
	case billing.IsConfigError(err):
		code := "invalid_configuration"
		if configStatus == http.StatusBadRequest {
			code = "invalid_argument"
		}
		writeAPIError(w, configStatus, code, err.Error())
	case errors.Is(err, usage.ErrInvalidInput):
		writeAPIError(w, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(err, usage.ErrReadingNotFound):
		writeAPIError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		log.Printf("api: %s %s failed: %v", r.Method, r.URL.Path, err)
		writeAPIError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
