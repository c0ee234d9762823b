// Package apihttp serves the bridge status API.
package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"efd-cmms-bridge/internal/auth"
	maintenanceapp "efd-cmms-bridge/internal/maintenance/application"
	masterdata "efd-cmms-bridge/internal/masterdata/domain"
	monitoringapp "efd-cmms-bridge/internal/monitoring/application"
	monitoring "efd-cmms-bridge/internal/monitoring/domain"
	"efd-cmms-bridge/internal/report"
)

const timeLayout = time.RFC3339

// Sweeper runs and reports PM sweeps.
type Sweeper interface {
	Sweep(ctx context.Context) (maintenanceapp.Report, error)
	LastReport() (maintenanceapp.Report, bool)
}

// Poller runs one pass over channels.
type Poller interface {
	PollAll(ctx context.Context, channels []masterdata.MonitorChannel) ([]monitoringapp.PollResult, error)
}

// CheckpointLister lists persisted checkpoints.
type CheckpointLister interface {
	Checkpoints(ctx context.Context) ([]monitoring.CheckpointRecord, error)
}

// ReportBuilder builds current-values snapshots.
type ReportBuilder interface {
	Build(ctx context.Context, channels []masterdata.MonitorChannel) (report.Snapshot, error)
}

// Server wires the status routes.
type Server struct {
	router      chi.Router
	channels    *masterdata.ChannelSet
	checkpoints CheckpointLister
	sweeper     Sweeper
	poller      Poller
	reports     ReportBuilder
	auth        *auth.Middleware
	metrics     http.Handler
	logger      *slog.Logger
	timeout     time.Duration
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAuth protects /api routes with the JWT middleware.
func WithAuth(mw *auth.Middleware) Option {
	return func(s *Server) {
		s.auth = mw
	}
}

// WithPoller enables POST /api/v1/polls.
func WithPoller(p Poller) Option {
	return func(s *Server) {
		s.poller = p
	}
}

// WithReports enables GET /api/v1/reports/current.
func WithReports(b ReportBuilder) Option {
	return func(s *Server) {
		s.reports = b
	}
}

// WithMetricsHandler overrides the /metrics handler.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		if h != nil {
			s.metrics = h
		}
	}
}

// WithRequestTimeout bounds request handling.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewServer constructs the status server.
func NewServer(channels *masterdata.ChannelSet, checkpoints CheckpointLister, sweeper Sweeper, opts ...Option) (*Server, error) {
	if channels == nil {
		return nil, errors.New("api: nil channel set")
	}
	if checkpoints == nil {
		return nil, errors.New("api: nil checkpoint lister")
	}
	if sweeper == nil {
		return nil, errors.New("api: nil sweeper")
	}
	s := &Server{
		channels:    channels,
		checkpoints: checkpoints,
		sweeper:     sweeper,
		metrics:     promhttp.Handler(),
		logger:      slog.Default(),
		timeout:     2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))
	r.Use(s.logRequests)
	if s.auth != nil {
		r.Use(s.auth.Wrap)
	}

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.metrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/channels", s.handleChannels)
		r.Get("/checkpoints", s.handleCheckpoints)
		r.Get("/sweeps/last", s.handleLastSweep)
		r.Post("/sweeps", s.handleSweep)
		if s.poller != nil {
			r.Post("/polls", s.handlePoll)
		}
		if s.reports != nil {
			r.Get("/reports/current", s.handleReport)
		}
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("api: encode response", "err", err)
		}
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
