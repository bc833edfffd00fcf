// Package app wires configuration, storage, ingestion and the HTTP API into
// the running service.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/deusflow/technews/internal/classify"
	"github.com/deusflow/technews/internal/config"
	"github.com/deusflow/technews/internal/ingest"
	"github.com/deusflow/technews/internal/logger"
	"github.com/deusflow/technews/internal/metrics"
	"github.com/deusflow/technews/internal/rss"
	"github.com/deusflow/technews/internal/scraper"
	"github.com/deusflow/technews/internal/server"
	"github.com/deusflow/technews/internal/storage"
	"github.com/deusflow/technews/internal/summary"
)

type Mode int

const (
	// ModeServe runs the scheduler and the HTTP API until the context ends.
	ModeServe Mode = iota
	// ModeOnce runs one fetch-all cycle plus summarization and returns.
	ModeOnce
	// ModeSweep runs one retention sweep and returns.
	ModeSweep
)

type service struct {
	store   *storage.Store
	fetcher *rss.Fetcher
	orch    *ingest.Orchestrator
	close   func()
}

// Run starts the service in the given mode.
func Run(ctx context.Context, cfg *config.Config, mode Mode) error {
	svc, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.close()

	switch mode {
	case ModeOnce:
		sum, err := svc.orch.RunCycle(ctx)
		if err != nil {
			return err
		}
		logger.Info("single cycle finished",
			"cycle", sum.Cycle,
			"sources", len(sum.Sources),
			"failed", sum.Failed,
			"accepted", sum.Totals.Accepted,
			"updated", sum.Totals.Updated,
			"rejected", sum.Totals.Rejected)
		return nil
	case ModeSweep:
		_, err := svc.orch.Sweep(ctx)
		return err
	}

	if cfg.EnableHTTP {
		srv := server.New(cfg.HTTPAddr, svc.store, svc.fetcher, svc.orch, metrics.Global)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http shutdown failed", "error", err)
			}
		}()
	}

	logger.Info("scheduler started", "fetch_interval", cfg.FetchInterval, "sweep_interval", cfg.SweepInterval)
	ingest.NewScheduler(svc.orch, cfg.FetchInterval, cfg.SweepInterval).Run(ctx)
	return nil
}

func build(ctx context.Context, cfg *config.Config) (*service, error) {
	catalog, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}
	engine, err := classify.NewEngine(catalog.Rules())
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := seed(ctx, store, catalog); err != nil {
		store.Close()
		return nil, err
	}

	summarizer, closeSummarizer, err := summary.New(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("summarizer: %w", err)
	}
	if !summarizer.Enabled() {
		logger.Warn("no summarization credential configured, summaries disabled")
	}

	fetcher := rss.NewFetcher(cfg.RequestTimeout, cfg.UserAgent)
	extractor := scraper.NewExtractor(cfg.ExtractTimeout, cfg.UserAgent, cfg.MinBodyChars)
	orch := ingest.New(store, fetcher, extractor, engine, ingest.Options{
		MaxConcurrent:  cfg.MaxConcurrentFetches,
		LeaseTTL:       cfg.LeaseTTL,
		Cutoff:         cfg.IngestCutoff,
		DedupWindow:    cfg.DedupWindow,
		Retention:      cfg.RetentionAge(),
		KeepBookmarked: cfg.RetentionKeepBookmarked,
		SummaryBatch:   cfg.MaxSummariesPerRun,
	}).WithSummarizer(summarizer)

	return &service{
		store:   store,
		fetcher: fetcher,
		orch:    orch,
		close: func() {
			orch.Close()
			closeSummarizer()
			if err := store.Close(); err != nil {
				logger.Error("failed to close storage", "error", err)
			}
		},
	}, nil
}

// seed inserts catalog categories and sources that are not stored yet.
func seed(ctx context.Context, store *storage.Store, catalog *config.Catalog) error {
	cats, err := store.SeedCategories(ctx, catalog.SeedCategories())
	if err != nil {
		return fmt.Errorf("seed categories: %w", err)
	}
	sources, err := store.SeedSources(ctx, catalog.SeedSources())
	if err != nil {
		return fmt.Errorf("seed sources: %w", err)
	}
	if cats > 0 || sources > 0 {
		logger.Info("catalog seeded", "categories", cats, "sources", sources)
	}
	return nil
}
