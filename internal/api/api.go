// Package api provides HTTP handlers and the main API server logic for the
// journey service.
//
// It exposes RESTful endpoints for creating journey records, completing
// their title and review stages, and browsing an owner's gallery. The API
// integrates with the journey manager, the GenAI client, and the webhook
// dispatcher's counters.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/emoseum/journey/internal/journey"
	"github.com/emoseum/journey/internal/models"
	"github.com/emoseum/journey/internal/webhook"
)

// DefaultAddr is the default listen address for the API server.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// DocentGenerator produces a review message for a record. Implemented by
// the genai client; nil disables server-side generation.
type DocentGenerator interface {
	GenerateDocentMessage(ctx context.Context, rec *models.JourneyRecord) (models.ReviewMessage, error)
}

// SyncStats exposes delivery counters from the webhook dispatcher.
type SyncStats interface {
	Stats() webhook.Stats
}

// Server is the HTTP API server.
type Server struct {
	mgr     *journey.Manager
	gen     DocentGenerator
	sync    SyncStats
	httpSrv *http.Server
}

// NewServer creates an API server over the journey manager. The generator
// and stats provider may be nil.
func NewServer(mgr *journey.Manager, gen DocentGenerator, sync SyncStats, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Server{mgr: mgr, gen: gen, sync: sync}
	s.httpSrv = &http.Server{
		Addr:    cfg.Addr,
		Handler: s.Handler(),
	}
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /gallery", s.createRecordHandler)
	mux.HandleFunc("GET /gallery", s.listRecordsHandler)
	mux.HandleFunc("GET /gallery/{id}", s.getRecordHandler)
	mux.HandleFunc("POST /gallery/{id}/title", s.completeTitleHandler)
	mux.HandleFunc("POST /gallery/{id}/review", s.completeReviewHandler)
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /status", s.statusHandler)
	return mux
}

// Start begins serving HTTP requests. It blocks until the server stops.
func (s *Server) Start() error {
	slog.Info("Server.Start: journey API listening", "addr", s.httpSrv.Addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Server.Shutdown: stopping journey API")
	return s.httpSrv.Shutdown(ctx)
}
