// Package server exposes stored content, sources and ingestion triggers over
// a small JSON API, next to the health, stats and Prometheus endpoints.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/deusflow/technews/internal/ingest"
	"github.com/deusflow/technews/internal/logger"
	"github.com/deusflow/technews/internal/metrics"
	"github.com/deusflow/technews/internal/model"
)

// Store is the part of the repository the API reads and writes.
type Store interface {
	List(ctx context.Context, f model.ContentFilter) (*model.ContentPage, error)
	Get(ctx context.Context, id int64) (*model.Content, error)
	MarkRead(ctx context.Context, id int64, duration int) error
	MarkUnread(ctx context.Context, id int64) error
	ToggleBookmark(ctx context.Context, id int64) (bool, error)
	History(ctx context.Context, limit int) ([]model.ReadingHistory, error)
	Categories(ctx context.Context) ([]model.Category, error)
	ListSources(ctx context.Context, categoryID *int64) ([]model.Source, error)
	CreateSource(ctx context.Context, src model.Source) (*model.Source, error)
	SourceStats(ctx context.Context, id int64) (*model.SourceStats, error)
	SetActive(ctx context.Context, id int64, active bool) error
	Ping(ctx context.Context) error
}

// FeedValidator checks that a URL serves a usable feed before it is stored.
type FeedValidator interface {
	Validate(ctx context.Context, url string) error
}

// Ingester runs ingestion on demand.
type Ingester interface {
	FetchOne(ctx context.Context, sourceID int64) (ingest.Report, error)
	FetchAll(ctx context.Context) (ingest.Summary, error)
	SummarizeMissing(ctx context.Context) (int, error)
}

type Server struct {
	store   Store
	feeds   FeedValidator
	ingest  Ingester
	metrics *metrics.Metrics
	log     *slog.Logger
	srv     *http.Server
}

func New(addr string, store Store, feeds FeedValidator, ing Ingester, m *metrics.Metrics) *Server {
	s := &Server{
		store:   store,
		feeds:   feeds,
		ingest:  ing,
		metrics: m,
		log:     logger.With("component", "http"),
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
	}
	return s
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/content", s.listContent)
	mux.HandleFunc("GET /api/content/{id}", s.getContent)
	mux.HandleFunc("POST /api/content/{id}/read", s.markRead)
	mux.HandleFunc("POST /api/content/{id}/unread", s.markUnread)
	mux.HandleFunc("POST /api/content/{id}/bookmark", s.toggleBookmark)
	mux.HandleFunc("GET /api/history", s.history)
	mux.HandleFunc("GET /api/categories", s.categories)

	mux.HandleFunc("GET /api/sources", s.listSources)
	mux.HandleFunc("POST /api/sources", s.createSource)
	mux.HandleFunc("GET /api/sources/{id}/stats", s.sourceStats)
	mux.HandleFunc("POST /api/sources/{id}/active", s.setActive)
	mux.HandleFunc("POST /api/sources/{id}/fetch", s.fetchSource)

	mux.HandleFunc("POST /api/fetch", s.fetchAll)
	mux.HandleFunc("POST /api/summaries", s.summarize)

	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /stats", s.stats)
	mux.Handle("GET /metrics", s.metrics.Handler())

	return s.logRequests(mux)
}

// Start serves in the background until Shutdown is called.
func (s *Server) Start() {
	go func() {
		s.log.Info("http server starting", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server error", "error", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("http server stopping")
	return s.srv.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}
