// Package ops serves the operational HTTP surface every stage exposes:
// dependency health checks, Prometheus metrics, and read-only delivery
// analytics for on-call diagnosis. It is not a public API.
package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/relaypoint/notifier/internal/analytics"
	"github.com/relaypoint/notifier/internal/metrics"
)

// checkTimeout bounds one dependency probe.
const checkTimeout = 2 * time.Second

// Check probes one dependency.
type Check func(ctx context.Context) error

// CheckResult is one dependency's probe outcome.
type CheckResult struct {
	Status       string `json:"status"` // "up" or "down"
	ResponseTime string `json:"response_time,omitempty"`
	Error        string `json:"error,omitempty"`
}

// HealthResponse is the /health body.
type HealthResponse struct {
	Status    string                 `json:"status"` // "healthy" or "unhealthy"
	Timestamp string                 `json:"timestamp"`
	Uptime    string                 `json:"uptime,omitempty"`
	Checks    map[string]CheckResult `json:"checks"`
}

// Server is the per-stage ops HTTP server.
type Server struct {
	addr      string
	lg        zerolog.Logger
	checks    map[string]Check
	reader    *analytics.Reader // nil when the stage has no database
	startedAt time.Time

	srv *http.Server
}

// NewServer builds an ops server; reader may be nil.
func NewServer(addr string, reader *analytics.Reader, lg zerolog.Logger) *Server {
	return &Server{
		addr:      addr,
		lg:        lg.With().Str("component", "ops").Logger(),
		checks:    make(map[string]Check),
		reader:    reader,
		startedAt: time.Now(),
	}
}

// AddCheck registers a named dependency probe.
func (s *Server) AddCheck(name string, c Check) {
	s.checks[name] = c
}

// Router builds the chi router. Exposed so tests can drive it directly.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	if s.reader != nil {
		r.Route("/analytics", func(r chi.Router) {
			r.Get("/summary", s.handleSummary)
			r.Get("/failed", s.handleFailed)
			r.Get("/users/{userID}/deliveries", s.handleUserDeliveries)
			r.Get("/events/{eventID}/deliveries", s.handleEventDeliveries)
		})
	}
	return r
}

// Start serves in a goroutine until Shutdown.
func (s *Server) Start() {
	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		s.lg.Info().Str("addr", s.addr).Msg("ops server listening")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.lg.Error().Err(err).Msg("ops server failed")
		}
	}()
}

// Shutdown drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.startedAt).String(),
		Checks:    make(map[string]CheckResult, len(s.checks)),
	}

	for name, check := range s.checks {
		result := runCheck(r.Context(), check)
		resp.Checks[name] = result
		if result.Status != "up" {
			resp.Status = "unhealthy"
		}
	}

	code := http.StatusOK
	if resp.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func runCheck(ctx context.Context, check Check) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	if err := check(ctx); err != nil {
		return CheckResult{
			Status:       "down",
			ResponseTime: time.Since(start).String(),
			Error:        err.Error(),
		}
	}
	return CheckResult{
		Status:       "up",
		ResponseTime: time.Since(start).String(),
	}
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	period := queryInt(r, "period_hours", 24)
	summary, err := s.reader.Summary(r.Context(), period)
	if err != nil {
		s.serverError(w, err, "analytics summary failed")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleFailed(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	rows, err := s.reader.FailedDeliveries(r.Context(), limit)
	if err != nil {
		s.serverError(w, err, "failed deliveries query failed")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleUserDeliveries(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	limit := queryInt(r, "limit", 50)
	rows, err := s.reader.UserDeliveries(r.Context(), userID, limit)
	if err != nil {
		s.serverError(w, err, "user deliveries query failed")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleEventDeliveries(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	rows, err := s.reader.DeliveriesByEventID(r.Context(), eventID)
	if err != nil {
		s.serverError(w, err, "event deliveries query failed")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) serverError(w http.ResponseWriter, err error, msg string) {
	s.lg.Error().Err(err).Msg(msg)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
