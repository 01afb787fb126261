// Package httpapi exposes the transition engine, enrollment, dashboards and
// risk analysis over JSON/HTTP.
package httpapi

import (
	"context"
	"herdbook/internal/core"
	"herdbook/internal/enrollment"
	"herdbook/internal/photos"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Engine is the subset of core.Service the API drives.
type Engine interface {
	RegisterUser(ctx context.Context, user core.User) (core.User, core.Result, error)
	ReportStolen(ctx context.Context, animalID, reporterID string) (core.Outcome, error)
	RecoverAnimal(ctx context.Context, animalID string) (core.Outcome, error)
	MarkDead(ctx context.Context, animalID string) (core.Outcome, error)
	HomeSlaughter(ctx context.Context, animalID string) (core.Outcome, error)
	InitiateTransfer(ctx context.Context, animalID, fromUserID, toUserID string) (core.Outcome, error)
	AcceptTransfer(ctx context.Context, requestID string) (core.Outcome, error)
	RejectTransfer(ctx context.Context, requestID string) (core.Outcome, error)
	TransferToButchery(ctx context.Context, animalID, fromButcheryID, toButcheryID string, weight float64) (core.Outcome, error)
	LogSlaughter(ctx context.Context, record core.ButcheryRecord) (core.Outcome, error)

	GetUser(id string) (core.User, bool)
	ListUsers() []core.User
	GetAnimal(id string) (core.Animal, bool)
	ListAnimals() []core.Animal
	FindAnimalBySerial(ctx context.Context, serial string) (core.Animal, bool)
	ListAlerts(scope string) []core.Alert
	ListTransferRequests() []core.TransferRequest
	ListButcheryRecords() []core.ButcheryRecord
	View(ctx context.Context, fn func(core.TransactionView) error) error
}

var _ Engine = (*core.Service)(nil)

// Enroller registers animals from uploaded photos.
type Enroller interface {
	Enroll(ctx context.Context, req enrollment.Request) (enrollment.Result, error)
}

// RiskAnalyzer produces a theft-risk assessment for a county.
type RiskAnalyzer interface {
	AssessRisk(ctx context.Context, theftCount int, location string) string
}

// Server routes HTTP requests to the engine.
type Server struct {
	engine   Engine
	enroller Enroller
	risk     RiskAnalyzer
	photos   photos.Store
	logger   *slog.Logger
	gatherer prometheus.Gatherer
	profiler bool
	validate *validator.Validate
	router   chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and error logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsGatherer exposes gatherer at GET /metrics.
func WithMetricsGatherer(gatherer prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = gatherer }
}

// WithPhotoStore serves stored animal photos under /animals/{id}/photos.
func WithPhotoStore(store photos.Store) Option {
	return func(s *Server) { s.photos = store }
}

// WithProfiler mounts pprof and expvar under /debug.
func WithProfiler() Option {
	return func(s *Server) { s.profiler = true }
}

// New wires the router.
func New(engine Engine, enroller Enroller, risk RiskAnalyzer, opts ...Option) *Server {
	s := &Server{
		engine:   engine,
		enroller: enroller,
		risk:     risk,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	if s.profiler {
		r.Mount("/debug", middleware.Profiler())
	}

	r.Route("/users", func(r chi.Router) {
		r.Get("/", s.handleListUsers)
		r.Post("/", s.handleCreateUser)
		r.Get("/{id}", s.handleGetUser)
		r.Get("/{id}/dashboard", s.handleDashboard)
	})
	r.Route("/animals", func(r chi.Router) {
		r.Get("/", s.handleListAnimals)
		r.Post("/", s.handleEnroll)
		r.Get("/{id}", s.handleGetAnimal)
		r.Get("/{id}/photos", s.handleListPhotos)
		r.Get("/{id}/photos/{index}", s.handleGetPhoto)
		r.Post("/{id}/stolen", s.handleReportStolen)
		r.Post("/{id}/recover", s.handleTransition(s.engine.RecoverAnimal))
		r.Post("/{id}/dead", s.handleTransition(s.engine.MarkDead))
		r.Post("/{id}/home-slaughter", s.handleTransition(s.engine.HomeSlaughter))
		r.Post("/{id}/transfers", s.handleInitiateTransfer)
		r.Post("/{id}/butchery-transfer", s.handleButcheryTransfer)
	})
	r.Route("/transfers", func(r chi.Router) {
		r.Get("/", s.handleListTransfers)
		r.Post("/{id}/accept", s.handleTransition(s.engine.AcceptTransfer))
		r.Post("/{id}/reject", s.handleTransition(s.engine.RejectTransfer))
	})
	r.Route("/slaughter-records", func(r chi.Router) {
		r.Get("/", s.handleListSlaughterRecords)
		r.Post("/", s.handleLogSlaughter)
	})
	r.Get("/alerts", s.handleListAlerts)
	r.Get("/risk/{county}", s.handleRisk)
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
