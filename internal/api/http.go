package api

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bher20/meterledger/internal/api/swagger"
	"github.com/bher20/meterledger/internal/auth"
	"github.com/bher20/meterledger/internal/metrics"
	"github.com/bher20/meterledger/internal/storage"
	"github.com/bher20/meterledger/internal/usage"
)

// Server serves the meterledger HTTP API.
type Server struct {
	usage *usage.Service
	authz *auth.Service
	store storage.Storage
	mux   *http.ServeMux
}

// NewServer wires the API routes, metrics and health endpoints.
func NewServer(svc *usage.Service, authz *auth.Service, st storage.Storage) *Server {
	s := &Server{
		usage: svc,
		authz: authz,
		store: st,
		mux:   http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /livez", s.handleLivez)
	s.mux.HandleFunc("GET /readyz", s.handleReadyz)
	s.mux.Handle("GET /openapi.yaml", swagger.Handler())

	s.api("GET /api/v1/readings", auth.ObjReadings, auth.ActRead, s.handleListReadings)
	s.api("POST /api/v1/readings", auth.ObjReadings, auth.ActWrite, s.handleCreateReading)
	s.api("DELETE /api/v1/readings/{id}", auth.ObjReadings, auth.ActWrite, s.handleDeleteReading)
	s.api("GET /api/v1/settings", auth.ObjSettings, auth.ActRead, s.handleGetSettings)
	s.api("PUT /api/v1/settings", auth.ObjSettings, auth.ActWrite, s.handleUpdateSettings)
	s.api("GET /api/v1/period", auth.ObjStats, auth.ActRead, s.handlePeriod)
	s.api("GET /api/v1/stats", auth.ObjStats, auth.ActRead, s.handleStats)
	s.api("GET /api/v1/stats/latest", auth.ObjStats, auth.ActRead, s.handleLatestStats)
	s.api("DELETE /api/v1/owner", auth.ObjOwner, auth.ActDelete, s.handleDeleteOwner)
}

// api registers an owner-scoped route behind identity and permission checks.
func (s *Server) api(pattern, obj, act string, h http.HandlerFunc) {
	route := pattern[strings.Index(pattern, " ")+1:]
	method := pattern[:strings.Index(pattern, " ")]

	var handler http.Handler = h
	handler = s.authz.RequirePermission(obj, act, onAuthError, handler)
	handler = s.authz.Middleware(onAuthError, handler)

	s.mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		metrics.RequestsTotal.WithLabelValues(route).Inc()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			metrics.RequestDurationSeconds.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
			if rec.status >= 400 {
				metrics.RequestErrorsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
			}
		}()
		handler.ServeHTTP(rec, r)
	}))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reqID := r.Header.Get("X-Request-Id")
	if reqID == "" {
		reqID = newRequestID()
	}

	w.Header().Set("X-Request-Id", reqID)
	rr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	defer func() {
		if rec := recover(); rec != nil {
			rr.status = http.StatusInternalServerError
			if !rr.wroteHeader {
				writeAPIError(rr, http.StatusInternalServerError, "internal", "internal error")
			}
			log.Printf("api: panic handling %s %s req_id=%s: %v\n%s",
				r.Method, r.URL.Path, reqID, rec, debug.Stack(),
			)
		}

		switch r.URL.Path {
		case "/healthz", "/livez", "/readyz", "/metrics":
		default:
			log.Printf("api: %s %s -> %d (%s) req_id=%s",
				r.Method, r.URL.Path, rr.status, time.Since(start).Truncate(time.Millisecond), reqID,
			)
		}
	}()

	s.mux.ServeHTTP(rr, r)
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.status = status
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseWriter.Write(p)
}

func newRequestID() string {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "000000000000"
	}
	return hex.EncodeToString(b[:])
}
