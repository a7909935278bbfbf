package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/voltbora/volt/internal/ingest/alpha"
	"github.com/voltbora/volt/internal/metrics"
	"github.com/voltbora/volt/internal/models"
	"github.com/voltbora/volt/internal/storage"
	"github.com/voltbora/volt/internal/tracker"
)

// History reads and records workout sessions.
type History interface {
	GetWorkoutHistory(ctx context.Context, userID, limit int) ([]models.WorkoutSession, bool, error)
	Record(ctx context.Context, s models.WorkoutSession) (bool, error)
}

// ImportLogs records import outcomes. Only the hosted store keeps them.
type ImportLogs interface {
	InsertImportLog(ctx context.Context, log storage.ImportLog) (int64, error)
	QueryImportLogs(ctx context.Context, userID, limit int) ([]storage.ImportLog, error)
}

// Pinger reports hosted store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the HTTP API. Imports, Health, Metrics,
// MetricsHandler and MCP are optional.
type Deps struct {
	Trackers       *tracker.Factory
	History        History
	Alpha          *alpha.Provider
	Imports        ImportLogs
	Health         Pinger
	Metrics        *metrics.Manager
	MetricsHandler http.Handler
	MCP            http.Handler
	Location       *time.Location
	HistoryLimit   int
	APIKey         string
	Log            *slog.Logger
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	deps     Deps
	log      *slog.Logger
	identity *tailnetIdentity
	router   chi.Router
}

// New creates a new Server with all routes configured.
func New(deps Deps) *Server {
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	s := &Server{
		deps:   deps,
		log:    deps.Log,
		router: chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SetTailscale resolves request identity from tailnet peers instead of the
// X-User-ID header. Each tailnet login maps to one registered user.
func (s *Server) SetTailscale(who WhoIser, users UserRegistry) {
	s.identity = &tailnetIdentity{who: who, users: users}
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	if s.deps.Metrics != nil {
		s.router.Use(RequestMetrics(s.deps.Metrics))
	}
	s.router.Use(CORS)

	s.router.Get("/healthz", s.handleHealth)
	if s.deps.MetricsHandler != nil {
		s.router.Handle("/metrics", s.deps.MetricsHandler)
	}

	s.router.Group(func(r chi.Router) {
		r.Use(s.Identity)

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/progress", s.handleProgress)
			r.Get("/achievements", s.handleAchievements)
			r.Get("/streak", s.handleStreak)
			r.Get("/workouts", s.handleListWorkouts)
			r.Get("/leaderboard", s.handleLeaderboard)
			r.Get("/imports", s.handleImportLogs)

			// Writes (API key required)
			r.Group(func(r chi.Router) {
				r.Use(APIKeyAuth(s.deps.APIKey))
				r.Post("/workouts", s.handleRecordWorkouts)
				r.Post("/workouts/import/alpha", s.handleAlphaImport)
				r.Post("/logout", s.handleLogout)
			})
		})

		if s.deps.MCP != nil {
			r.Handle("/mcp", s.deps.MCP)
		}
	})
}
