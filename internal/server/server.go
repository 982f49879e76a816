package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thinkscotty/prophet/internal/config"
	"github.com/thinkscotty/prophet/internal/database"
	"github.com/thinkscotty/prophet/internal/questions"
	"github.com/thinkscotty/prophet/internal/rss"
	"github.com/thinkscotty/prophet/internal/scheduler"
)

type Server struct {
	cfg        config.Config
	db         *database.DB
	sched      *scheduler.Scheduler
	snapshots  *questions.SnapshotStore
	discoverer *rss.Client
	gatherer   prometheus.Gatherer
	version    string
	httpSrv    *http.Server
}

// New creates the admin API server. A nil gatherer serves the default
// registry; a nil discoverer disables feed discovery.
func New(cfg config.Config, db *database.DB, sched *scheduler.Scheduler, snapshots *questions.SnapshotStore, discoverer *rss.Client, gatherer prometheus.Gatherer, version string) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		cfg:        cfg,
		db:         db,
		sched:      sched,
		snapshots:  snapshots,
		discoverer: discoverer,
		gatherer:   gatherer,
		version:    version,
	}
}

// Handler returns the routed handler wrapped in the standard middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.routes(mux)
	return requestIDMiddleware(loggingMiddleware(recoveryMiddleware(mux)))
}

// Start sets up routes and starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  config.Seconds(s.cfg.Server.ReadTimeoutSeconds, 0),
		WriteTimeout: config.Seconds(s.cfg.Server.WriteTimeoutSeconds, 0),
	}

	slog.Info("Starting server", "addr", addr)
	return s.httpSrv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("POST /api/scrape-all", s.handleScrapeAll)
	mux.HandleFunc("GET /api/scrape/progress", s.handleScrapeProgress)
	mux.HandleFunc("GET /api/posts", s.handlePosts)

	mux.HandleFunc("POST /api/questions/generate", s.handleGenerate)
	mux.HandleFunc("POST /api/questions/generate-mock", s.handleGenerateMock)
	mux.HandleFunc("GET /api/questions", s.handleQuestions)
	mux.HandleFunc("PATCH /api/questions", s.handleQuestionSelect)
	mux.HandleFunc("GET /api/questions/files", s.handleSnapshotList)
	mux.HandleFunc("GET /api/questions/files/{name}", s.handleSnapshotLoad)
	mux.HandleFunc("DELETE /api/questions/files/{name}", s.handleSnapshotDelete)

	mux.HandleFunc("GET /api/sources", s.handleSources)
	mux.HandleFunc("PUT /api/sources/{kind}", s.handleSourcesReplace)
	mux.HandleFunc("GET /api/sources/suggest", s.handleSourcesSuggest)
	mux.HandleFunc("POST /api/sources/rss/discover", s.handleFeedDiscover)

	mux.HandleFunc("GET /api/runs", s.handleRuns)
}
