package server

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"berichtsheft/internal/config"
	"berichtsheft/internal/domain"
	"berichtsheft/internal/moodle"
	"berichtsheft/internal/untis"
)

// GenerateResult is what one full report-generation run produces.
type GenerateResult struct {
	WeekStart string `json:"weekStart"`
	Path      string `json:"path"`
	Content   string `json:"content"`
}

// GenerateFunc runs the whole weekly pipeline for the given week start.
// Injected by the composition root so the server stays a thin surface.
type GenerateFunc func(ctx context.Context, weekStart time.Time) (GenerateResult, error)

// Server is the local HTTP surface over the fetch-and-report pipeline.
// It binds to localhost; there is no auth layer of its own.
type Server struct {
	cfg      config.Config
	db       *sql.DB
	untis    *untis.Client
	moodle   *moodle.Client
	generate GenerateFunc
}

func New(cfg config.Config, db *sql.DB, untisClient *untis.Client, moodleClient *moodle.Client, generate GenerateFunc) *Server {
	return &Server{
		cfg:      cfg,
		db:       db,
		untis:    untisClient,
		moodle:   moodleClient,
		generate: generate,
	}
}

// Router wires all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if s.cfg.PrometheusOn {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			metricsHandler().ServeHTTP(w, r)
		})
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/untis/search-school", s.handleSearchSchool)
		r.Post("/untis/login", s.handleLogin)
		r.Post("/untis/logout", s.handleLogout)
		r.Post("/untis/timetable-week", s.handleTimetableWeek)
		r.Post("/moodle/data", s.handleMoodleData)
		r.Post("/report/generate", s.handleGenerateReport)
		r.Get("/reports", s.handleListReports)
		r.Get("/reports/{week}", s.handleGetReport)
	})

	return r
}

// fallbackCandidates converts the configured fallback list.
func (s *Server) fallbackCandidates() []domain.TenantCandidate {
	var out []domain.TenantCandidate
	for _, f := range s.cfg.UntisFallbackCandidates {
		out = append(out, domain.TenantCandidate{TenantID: f.TenantID, Server: f.Server})
	}
	return out
}
