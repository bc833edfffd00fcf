package ingest

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/deusflow/technews/internal/model"
	"github.com/deusflow/technews/internal/ratelimit"
)

// summaryWorkers bounds concurrent summarization calls; the summarizer's
// budget does the actual pacing.
const summaryWorkers = 2

// Sweep deletes content older than the retention age, keeping bookmarked
// items when configured to.
func (o *Orchestrator) Sweep(ctx context.Context) (int64, error) {
	cutoff := o.now().Add(-o.opts.Retention)
	n, err := o.repo.PurgeOlderThan(ctx, cutoff, o.opts.KeepBookmarked)
	if err != nil {
		o.log.Error("retention sweep failed", "error", err)
		return 0, &model.PersistenceError{Op: "purge", Err: err}
	}
	o.metrics.RecordPurged(n)
	o.log.Info("retention sweep finished", "deleted", n, "cutoff", cutoff, "keep_bookmarked", o.opts.KeepBookmarked)
	return n, nil
}

// SummarizeMissing summarizes up to SummaryBatch stored items that have no
// generated summary yet and returns how many were stored. Without a
// configured summarizer it does nothing. A failed item keeps its summary
// as it is.
func (o *Orchestrator) SummarizeMissing(ctx context.Context) (int, error) {
	if o.summarizer == nil || !o.summarizer.Enabled() {
		return 0, nil
	}
	o.summarizer.ResetBudget()

	items, err := o.repo.MissingSummaries(ctx, o.opts.SummaryBatch)
	if err != nil {
		return 0, &model.PersistenceError{Op: "missing summaries", Err: err}
	}
	if len(items) == 0 {
		return 0, nil
	}

	var (
		done      int64
		exhausted atomic.Bool
	)
	g := new(errgroup.Group)
	g.SetLimit(summaryWorkers)
	for _, c := range items {
		g.Go(func() error {
			if exhausted.Load() {
				return nil
			}
			text, err := o.summarizer.Summarize(ctx, c.SummaryText())
			if errors.Is(err, ratelimit.ErrExhausted) {
				exhausted.Store(true)
				return nil
			}
			if err != nil {
				o.metrics.RecordSummary(false)
				o.log.Warn("summary failed", "content_id", c.ID, "error", &model.SummarizationError{ContentID: c.ID, Err: err})
				return nil
			}
			if err := o.repo.MarkSummary(ctx, c.ID, text); err != nil {
				o.log.Error("failed to store summary", "content_id", c.ID, "error", err)
				return nil
			}
			o.metrics.RecordSummary(true)
			atomic.AddInt64(&done, 1)
			return nil
		})
	}
	_ = g.Wait()

	o.log.Info("summaries generated", "stored", done, "candidates", len(items))
	return int(done), nil
}
