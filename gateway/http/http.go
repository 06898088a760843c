// Package http provides the REST surface of the Vuege gateway.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	verrors "github.com/bondalen/vuege/errors"
	"github.com/bondalen/vuege/gateway"
	"github.com/bondalen/vuege/metric"
	"github.com/bondalen/vuege/monitor"
	"github.com/bondalen/vuege/service"
)

// getOrGenerateRequestID extracts the request ID from headers or
// generates a new one for tracing a request across log lines.
func getOrGenerateRequestID(r *http.Request) string {
	if reqID := r.Header.Get("X-Request-ID"); reqID != "" {
		return reqID
	}
	return uuid.NewString()
}

// Dependencies carries everything the gateway server needs.
type Dependencies struct {
	Geocoding      *service.Geocoding
	Validation     *service.Validation
	Enrichment     *service.Enrichment
	Tracker        *monitor.Tracker
	Metrics        *metric.Metrics
	MetricsHandler http.Handler
	Logger         *slog.Logger
}

// Server is the HTTP gateway in front of the provider services.
type Server struct {
	cfg    gateway.Config
	deps   Dependencies
	logger *slog.Logger
	server *http.Server

	running atomic.Bool

	requestsTotal  atomic.Uint64
	requestsFailed atomic.Uint64
}

// NewServer creates a gateway server. The configuration is validated and
// defaulted; geocoding, validation, enrichment, and the tracker are
// required.
func NewServer(cfg gateway.Config, deps Dependencies) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, verrors.WrapInvalid(err, "Server", "NewServer", "config validation")
	}
	if deps.Geocoding == nil || deps.Validation == nil || deps.Enrichment == nil {
		return nil, verrors.WrapFatal(verrors.ErrMissingConfig, "Server", "NewServer",
			"all provider services are required")
	}
	if deps.Tracker == nil {
		return nil, verrors.WrapFatal(verrors.ErrMissingConfig, "Server", "NewServer",
			"monitor tracker is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: deps.Logger.With("component", "gateway"),
	}
	s.server = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

// routes builds the request mux with all endpoints registered.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/geocode", s.handleGeocode)
	mux.HandleFunc("GET /api/v1/geocode/reverse", s.handleReverseGeocode)
	mux.HandleFunc("GET /api/v1/validate/email", s.handleValidate(s.deps.Validation.ValidateEmail))
	mux.HandleFunc("GET /api/v1/validate/phone", s.handleValidate(s.deps.Validation.ValidatePhone))
	mux.HandleFunc("GET /api/v1/validate/address", s.handleValidate(s.deps.Validation.ValidateAddress))
	mux.HandleFunc("GET /api/v1/enrich/company", s.handleEnrichCompany)
	mux.HandleFunc("GET /api/v1/enrich/registration", s.handleEnrichRegistration)
	mux.HandleFunc("GET /api/v1/providers/health", s.handleProvidersHealth)
	mux.HandleFunc("GET /api/v1/providers/health/{name}", s.handleProviderHealth)
	mux.HandleFunc("GET /api/v1/providers/statistics", s.handleStatistics)
	mux.HandleFunc("POST /api/v1/providers/statistics/reset", s.handleResetStatistics)
	mux.HandleFunc("GET /healthz", s.handleLiveness)

	if s.deps.MetricsHandler != nil {
		mux.Handle("GET /metrics", s.deps.MetricsHandler)
	}

	return s.middleware(mux)
}

// middleware wraps the mux with request ID propagation, CORS, access
// logging, and metrics.
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := getOrGenerateRequestID(r)
		w.Header().Set("X-Request-ID", requestID)

		if s.cfg.EnableCORS {
			s.applyCORS(w, r)
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}

		s.requestsTotal.Add(1)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if rec.status >= http.StatusInternalServerError {
			s.requestsFailed.Add(1)
		}
		if s.deps.Metrics != nil {
			s.deps.Metrics.RecordHTTPRequest(r.Method, r.URL.Path, rec.status, time.Since(start))
		}
		s.logger.Info("Request handled",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// applyCORS applies CORS headers to the response.
func (s *Server) applyCORS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")

	allowed := false
	for _, allowedOrigin := range s.cfg.CORSOrigins {
		if allowedOrigin == "*" || allowedOrigin == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}

	if origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
	} else {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// Start begins serving. It blocks until the listener closes; a clean
// shutdown returns nil.
func (s *Server) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return verrors.WrapInvalid(fmt.Errorf("server already running"),
			"Server", "Start", "duplicate start")
	}

	s.logger.Info("Gateway listening", "addr", s.cfg.Addr())
	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return verrors.WrapFatal(err, "Server", "Start",
			fmt.Sprintf("failed to serve on %s", s.cfg.Addr()))
	}
	return nil
}

// Shutdown drains in-flight requests, bounded by the configured shutdown
// timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Gateway shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return verrors.WrapTransient(err, "Server", "Shutdown", "drain connections")
	}
	return nil
}

// Handler exposes the routed handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// writeResult serializes one completed call result. Completed results are
// always HTTP 200; the outcome lives in the result's status field.
func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, result *service.CallResult) {
	if !result.IsSuccess() {
		s.logger.Debug("Call completed without a usable result",
			"path", r.URL.Path,
			"result_status", result.Status)
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		s.writeError(w, http.StatusBadRequest, "address query parameter is required")
		return
	}
	s.writeResult(w, r, s.deps.Geocoding.Geocode(r.Context(), address))
}

func (s *Server) handleReverseGeocode(w http.ResponseWriter, r *http.Request) {
	latitude, err := parseCoordinate(r, "lat")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	longitude, err := parseCoordinate(r, "lon")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeResult(w, r, s.deps.Geocoding.ReverseGeocode(r.Context(), latitude, longitude))
}

// handleValidate adapts one validation operation into a handler reading
// the shared value query parameter.
func (s *Server) handleValidate(validate func(context.Context, string) *service.CallResult) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		value := r.URL.Query().Get("value")
		if value == "" {
			s.writeError(w, http.StatusBadRequest, "value query parameter is required")
			return
		}
		s.writeResult(w, r, validate(r.Context(), value))
	}
}

func (s *Server) handleEnrichCompany(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		s.writeError(w, http.StatusBadRequest, "name query parameter is required")
		return
	}
	s.writeResult(w, r, s.deps.Enrichment.EnrichCompany(r.Context(), name))
}

func (s *Server) handleEnrichRegistration(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "id query parameter is required")
		return
	}
	s.writeResult(w, r, s.deps.Enrichment.EnrichByRegistrationID(r.Context(), id))
}

func (s *Server) handleProvidersHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.deps.Tracker.CheckAll(r.Context()))
}

func (s *Server) handleProviderHealth(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	health, err := s.deps.Tracker.CheckHealth(r.Context(), name)
	if err != nil {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown provider %q", name))
		return
	}
	s.writeJSON(w, http.StatusOK, health)
}

func (s *Server) handleStatistics(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.deps.Tracker.Statistics())
}

func (s *Server) handleResetStatistics(w http.ResponseWriter, _ *http.Request) {
	s.deps.Tracker.ResetStatistics()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// handleLiveness reports gateway process liveness. Provider availability
// is intentionally excluded; a down upstream must not fail the gateway's
// own liveness probe.
func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"requests_total":  s.requestsTotal.Load(),
		"requests_failed": s.requestsFailed.Load(),
	})
}

// parseCoordinate reads a required float query parameter.
func parseCoordinate(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, fmt.Errorf("%s query parameter is required", name)
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number", name)
	}
	return value, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Response write failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSON(w, statusCode, map[string]any{
		"error":  message,
		"status": statusCode,
	})
}
