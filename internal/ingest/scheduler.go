package ingest

import (
	"context"
	"time"
)

// RunCycle fetches all sources and then summarizes new content.
func (o *Orchestrator) RunCycle(ctx context.Context) (Summary, error) {
	sum, err := o.FetchAll(ctx)
	if err != nil {
		return sum, err
	}
	if _, err := o.SummarizeMissing(ctx); err != nil {
		o.log.Error("summarization pass failed", "error", err)
	}
	return sum, nil
}

// Scheduler triggers fetch cycles and retention sweeps on fixed intervals.
type Scheduler struct {
	o          *Orchestrator
	fetchEvery time.Duration
	sweepEvery time.Duration
}

func NewScheduler(o *Orchestrator, fetchEvery, sweepEvery time.Duration) *Scheduler {
	return &Scheduler{o: o, fetchEvery: fetchEvery, sweepEvery: sweepEvery}
}

// Run blocks until ctx is done. The first fetch cycle starts immediately;
// cycles never overlap each other.
func (s *Scheduler) Run(ctx context.Context) {
	fetch := time.NewTicker(s.fetchEvery)
	defer fetch.Stop()
	sweep := time.NewTicker(s.sweepEvery)
	defer sweep.Stop()

	s.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			s.o.log.Info("scheduler stopped")
			return
		case <-fetch.C:
			s.cycle(ctx)
		case <-sweep.C:
			if _, err := s.o.Sweep(ctx); err != nil {
				s.o.log.Error("scheduled sweep failed", "error", err)
			}
		}
	}
}

func (s *Scheduler) cycle(ctx context.Context) {
	if _, err := s.o.RunCycle(ctx); err != nil {
		s.o.log.Error("scheduled fetch failed", "error", err)
	}
}
