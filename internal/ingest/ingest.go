// Package ingest drives feed ingestion: fetch, extract, classify and persist
// per source, bounded fan-out across sources, retention sweeps and deferred
// summarization.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/deusflow/technews/internal/classify"
	"github.com/deusflow/technews/internal/lease"
	"github.com/deusflow/technews/internal/logger"
	"github.com/deusflow/technews/internal/metrics"
	"github.com/deusflow/technews/internal/model"
)

// Repository is the storage the orchestrator needs.
type Repository interface {
	classify.Index
	Upsert(ctx context.Context, e model.Entry, sourceID int64, categories []string) (*model.Content, bool, error)
	MarkSummary(ctx context.Context, id int64, text string) error
	MissingSummaries(ctx context.Context, limit int) ([]model.Content, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time, keepBookmarked bool) (int64, error)
	ListActiveSources(ctx context.Context) ([]model.Source, error)
	GetSource(ctx context.Context, id int64) (*model.Source, error)
	UpdateLastFetched(ctx context.Context, id int64, at time.Time) error
	RecentTitles(ctx context.Context, since time.Time) ([]string, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, src model.Source) ([]model.Entry, error)
}

type Extractor interface {
	NeedsBackfill(e model.Entry) bool
	Backfill(ctx context.Context, e model.Entry) (model.Entry, error)
}

type Summarizer interface {
	Enabled() bool
	Summarize(ctx context.Context, text string) (string, error)
	ResetBudget()
}

type Options struct {
	MaxConcurrent  int
	LeaseTTL       time.Duration
	Cutoff         time.Time // zero disables the cutoff
	DedupWindow    time.Duration
	Retention      time.Duration
	KeepBookmarked bool
	SummaryBatch   int
}

type Orchestrator struct {
	repo       Repository
	fetcher    Fetcher
	extractor  Extractor
	engine     *classify.Engine
	summarizer Summarizer
	metrics    *metrics.Metrics
	leases     *lease.Table
	opts       Options
	log        *slog.Logger
	now        func() time.Time
}

func New(repo Repository, fetcher Fetcher, extractor Extractor, engine *classify.Engine, opts Options) *Orchestrator {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 5
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = 10 * time.Minute
	}
	if opts.DedupWindow <= 0 {
		opts.DedupWindow = 72 * time.Hour
	}
	if opts.Retention <= 0 {
		opts.Retention = 30 * 24 * time.Hour
	}
	if opts.SummaryBatch < 1 {
		opts.SummaryBatch = 20
	}
	return &Orchestrator{
		repo:      repo,
		fetcher:   fetcher,
		extractor: extractor,
		engine:    engine,
		metrics:   metrics.Global,
		leases:    lease.New(time.Minute),
		opts:      opts,
		log:       logger.With("component", "ingest"),
		now:       time.Now,
	}
}

// WithSummarizer enables deferred summarization.
func (o *Orchestrator) WithSummarizer(s Summarizer) *Orchestrator {
	o.summarizer = s
	return o
}

func (o *Orchestrator) WithMetrics(m *metrics.Metrics) *Orchestrator {
	o.metrics = m
	return o
}

// Close stops the lease sweeper.
func (o *Orchestrator) Close() {
	o.leases.Stop()
}
