// Package api exposes the time entry flows over HTTP/JSON.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"calsync/internal/config"
	"calsync/internal/metrics"
	"calsync/internal/models"
	"calsync/internal/service"
)

// TimeEntries is the service surface the handlers call.
type TimeEntries interface {
	Location() *time.Location
	TicketsEnabled() bool
	Events(ctx context.Context, rng models.Range) ([]models.CalendarOccurrence, error)
	CreateMeetings(ctx context.Context, rng models.Range, opts service.Options) (*service.Result, error)
	CreateProductive(ctx context.Context, requests []models.ProductiveRequest, opts service.Options) (*service.Result, error)
	CreateRecurring(ctx context.Context, templates []models.RecurringTemplate, opts service.Options) (*service.Result, error)
	Tickets(ctx context.Context, rng models.Range) ([]models.TicketsOnDay, error)
	CreateFromTickets(ctx context.Context, rng models.Range, opts service.Options) (*service.TicketsResult, error)
	Runs(ctx context.Context, limit int) ([]*models.SubmissionRun, error)
	Run(ctx context.Context, id string) (*models.SubmissionRun, error)
}

const requestIDHeader = "X-Request-ID"

// HTTPServer serves the calsync API.
type HTTPServer struct {
	cfg    config.APIConfig
	svc    TimeEntries
	auth   *HTTPAuth
	server *http.Server
	now    func() time.Time
	logger *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, svc TimeEntries, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "http").Logger()
	srv := &HTTPServer{
		cfg:    cfg,
		svc:    svc,
		auth:   NewHTTPAuth(cfg),
		now:    time.Now,
		logger: &l,
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth.Wrap)
		r.Use(s.requestTimeout)

		r.Get("/calendar/events", s.handleEvents)
		r.Post("/time-entries/meetings", s.handleCreateMeetings)
		r.Post("/time-entries/productive", s.handleCreateProductive)
		r.Post("/time-entries/recurring", s.handleCreateRecurring)
		r.Post("/time-entries/tickets", s.handleCreateFromTickets)
		r.Get("/tickets", s.handleTickets)
		r.Get("/runs", s.handleRuns)
		r.Get("/runs/{id}", s.handleRun)
	})
	return r
}

// Handler returns the routed handler, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Addr() string {
	return s.server.Addr
}

func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		metrics.IncHTTP(route)

		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func (s *HTTPServer) requestTimeout(next http.Handler) http.Handler {
	if s.cfg.HTTP.RequestTimeout <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HTTP.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
