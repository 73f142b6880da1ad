package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meltforce/liftlog/internal/estimator"
	"github.com/meltforce/liftlog/internal/history"
	"github.com/meltforce/liftlog/internal/storage"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	db      *storage.DB
	history *history.Store
	cache   *estimator.Cache
	log     *slog.Logger
	apiKey  string
	router  chi.Router
}

// New creates a new Server with all routes configured.
func New(db *storage.DB, hist *history.Store, cache *estimator.Cache, apiKey string, log *slog.Logger) *Server {
	s := &Server{
		db:      db,
		history: hist,
		cache:   cache,
		log:     log,
		apiKey:  apiKey,
		router:  chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)

	// Read endpoints (no auth, tsnet handles access)
	s.router.Get("/api/v1/sessions", s.handleListSessions)
	s.router.Get("/api/v1/sessions/records", s.handleSessionRecords)
	s.router.Get("/api/v1/exercises", s.handleListExercises)
	s.router.Get("/api/v1/exercises/{name}/history", s.handleExerciseHistory)
	s.router.Get("/api/v1/exercises/{name}/week", s.handleWeekPerformance)
	s.router.Get("/api/v1/estimates", s.handleListEstimates)
	s.router.Get("/api/v1/estimates/{name}", s.handleGetEstimate)
	s.router.Get("/api/v1/export", s.handleExport)
	s.router.Get("/api/v1/integrity", s.handleIntegrity)

	// Mutations (API key required)
	s.router.Group(func(r chi.Router) {
		r.Use(APIKeyAuth(s.apiKey))
		r.Post("/api/v1/sets", s.handleLogSet)
		r.Delete("/api/v1/sessions", s.handleDeleteSession)
		r.Post("/api/v1/sessions/move", s.handleMoveSession)
		r.Put("/api/v1/estimates/{name}/override", s.handleSetOverride)
		r.Delete("/api/v1/estimates/{name}/override", s.handleClearOverride)
		r.Post("/api/v1/import", s.handleImport)
		r.Post("/api/v1/compact", s.handleCompact)
	})
}
