package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/deusflow/technews/internal/classify"
	"github.com/deusflow/technews/internal/model"
	"github.com/deusflow/technews/internal/rss"
)

// FetchOne ingests a single source. If the source is already being fetched
// the call is a no-op returning model.ErrInFlight. Per-source failures are
// reported in Report.Err, not as the returned error.
func (o *Orchestrator) FetchOne(ctx context.Context, sourceID int64) (Report, error) {
	src, err := o.repo.GetSource(ctx, sourceID)
	if err != nil {
		return Report{SourceID: sourceID}, err
	}

	r, ok := o.guarded(ctx, *src, o.titleSet(ctx))
	if !ok {
		return r, model.ErrInFlight
	}
	o.record(r)
	return r, nil
}

// FetchAll ingests every active source with at most MaxConcurrent in
// flight. One source's failure never stops the others; the returned error
// is only set when the source list itself cannot be read.
func (o *Orchestrator) FetchAll(ctx context.Context) (Summary, error) {
	sum := Summary{Cycle: uuid.NewString(), Started: o.now()}
	sum.Totals.Reasons = map[model.RejectReason]int{}
	log := o.log.With("cycle", sum.Cycle)

	sources, err := o.repo.ListActiveSources(ctx)
	if err != nil {
		o.metrics.SetError(err.Error())
		return sum, &model.PersistenceError{Op: "list active sources", Err: err}
	}
	log.Info("fetch cycle started", "sources", len(sources))

	titles := o.titleSet(ctx)
	reports := make([]Report, len(sources))
	skipped := make([]bool, len(sources))

	g := new(errgroup.Group)
	g.SetLimit(o.opts.MaxConcurrent)
	for i, src := range sources {
		g.Go(func() error {
			r, ok := o.guarded(ctx, src, titles)
			reports[i], skipped[i] = r, !ok
			return nil
		})
	}
	_ = g.Wait()

	for i, r := range reports {
		if skipped[i] {
			sum.InFlight++
			continue
		}
		o.record(r)
		sum.Sources = append(sum.Sources, r)
		sum.Totals.add(r)
		if r.Err != nil {
			sum.Failed++
		}
	}
	sum.Duration = o.now().Sub(sum.Started)
	o.metrics.RecordCycleTime(sum.Duration)

	if len(sum.Sources) > 0 && sum.Failed == len(sum.Sources) {
		o.metrics.SetError("all sources failed")
	} else {
		o.metrics.SetLastRun()
	}

	log.Info("fetch cycle finished",
		"sources", len(sum.Sources),
		"failed", sum.Failed,
		"in_flight", sum.InFlight,
		"fetched", sum.Totals.Fetched,
		"accepted", sum.Totals.Accepted,
		"updated", sum.Totals.Updated,
		"rejected", sum.Totals.Rejected,
		"errored", sum.Totals.Errored,
		"duration", sum.Duration)
	return sum, nil
}

// guarded runs one source under its lease. ok is false when another fetch
// of the same source holds the lease.
func (o *Orchestrator) guarded(ctx context.Context, src model.Source, titles *classify.TitleSet) (Report, bool) {
	token, ok := o.leases.Acquire(src.ID, o.opts.LeaseTTL)
	if !ok {
		o.log.Info("fetch already in flight, skipping", "source", src.URL)
		return newReport(src), false
	}
	defer o.leases.Release(src.ID, token)

	done := make(chan struct{})
	defer close(done)
	go o.keepLease(src.ID, token, done)

	return o.fetchSource(ctx, src, titles), true
}

// keepLease renews the lease until done is closed, so a fetch that runs
// longer than LeaseTTL is never joined by a second one.
func (o *Orchestrator) keepLease(id int64, token string, done <-chan struct{}) {
	ticker := time.NewTicker(max(o.opts.LeaseTTL/3, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !o.leases.Renew(id, token, o.opts.LeaseTTL) {
				o.log.Warn("lost fetch lease", "source_id", id)
				return
			}
		case <-done:
			return
		}
	}
}

// titleSet seeds title dedup with recently stored titles. A lookup failure
// only weakens dedup, so it is logged and an empty set is used.
func (o *Orchestrator) titleSet(ctx context.Context) *classify.TitleSet {
	titles, err := o.repo.RecentTitles(ctx, o.now().Add(-o.opts.DedupWindow))
	if err != nil {
		o.log.Warn("could not load recent titles", "error", err)
	}
	return o.engine.NewTitleSet(titles...)
}

// fetchSource always updates the source's last-fetched time, whatever
// happened to its entries.
func (o *Orchestrator) fetchSource(ctx context.Context, src model.Source, titles *classify.TitleSet) (r Report) {
	r = newReport(src)
	log := o.log.With("source", src.URL)

	defer func() {
		// recorded even when ctx was cancelled mid-cycle
		uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := o.repo.UpdateLastFetched(uctx, src.ID, o.now()); err != nil {
			log.Error("failed to update last fetched", "error", err)
			r.fail(&model.PersistenceError{Op: "update last fetched", Err: err})
		}
	}()

	entries, err := o.fetcher.Fetch(ctx, src)
	if err != nil {
		log.Error("fetch failed", "error", err)
		r.fail(err)
		return r
	}
	r.Fetched = len(entries)

	entries, r.Skipped = rss.ApplyCutoff(entries, o.opts.Cutoff)

	for _, e := range entries {
		if err := o.ingestEntry(ctx, src, titles, e, &r); err != nil {
			var pe *model.PersistenceError
			if errors.As(err, &pe) {
				log.Error("storage failure, abandoning source", "guid", e.GUID, "error", err)
				r.Errored++
				r.fail(err)
				break
			}
			log.Warn("entry failed", "guid", e.GUID, "error", err)
			r.Errored++
		}
	}

	log.Info("source fetched",
		"fetched", r.Fetched,
		"accepted", r.Accepted,
		"updated", r.Updated,
		"rejected", r.Rejected,
		"errored", r.Errored,
		"skipped", r.Skipped)
	return r
}

func (o *Orchestrator) ingestEntry(ctx context.Context, src model.Source, titles *classify.TitleSet, e model.Entry, r *Report) error {
	e = o.backfill(ctx, e)

	d, err := o.engine.Classify(ctx, o.repo, titles, src, e)
	if err != nil {
		return err
	}

	switch d.Verdict {
	case classify.Reject:
		r.reject(d.Rejection.Reason)
		o.log.Debug("entry rejected", "source", src.URL, "title", e.Title, "reason", d.Rejection.Reason, "detail", d.Rejection.Detail)
		return nil
	case classify.Update:
		if _, _, err := o.repo.Upsert(ctx, e, src.ID, nil); err != nil {
			return &model.PersistenceError{Op: "upsert", Err: err}
		}
		r.Updated++
		return nil
	}

	categories := append([]string{d.Category}, d.Extra...)
	_, created, err := o.repo.Upsert(ctx, e, src.ID, categories)
	if err != nil {
		return &model.PersistenceError{Op: "upsert", Err: err}
	}
	if created {
		r.Accepted++
	} else {
		// another cycle stored the same guid after our lookup
		r.Updated++
	}
	return nil
}

// backfill extracts page text for thin entries. Known entries whose stored
// body is already full are not fetched again; the stored body is carried
// over instead.
func (o *Orchestrator) backfill(ctx context.Context, e model.Entry) model.Entry {
	if o.extractor == nil || !o.extractor.NeedsBackfill(e) {
		return e
	}

	if existing, err := o.repo.FindByGUID(ctx, e.GUID); err == nil && existing != nil {
		stored := model.Entry{BodyText: existing.BodyText}
		if !o.extractor.NeedsBackfill(stored) {
			e.BodyText = existing.BodyText
			return e
		}
	}

	out, err := o.extractor.Backfill(ctx, e)
	if err != nil {
		o.log.Warn("extraction failed, keeping feed body", "link", e.Link, "error", err)
		return e
	}
	return out
}

func (o *Orchestrator) record(r Report) {
	o.metrics.RecordEntries(r.Fetched, r.Accepted, r.Updated, r.Rejected, r.Errored)
	for reason, n := range r.Reasons {
		o.metrics.RecordRejection(string(reason), n)
	}
	if r.Err != nil {
		o.metrics.RecordSourceError(r.Source)
	}
}
