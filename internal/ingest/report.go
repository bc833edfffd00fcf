package ingest

import (
	"time"

	"github.com/deusflow/technews/internal/model"
)

// Report counts what happened to one source's entries in one cycle.
type Report struct {
	SourceID int64                      `json:"source_id"`
	Source   string                     `json:"source"`
	Fetched  int                        `json:"fetched"`
	Accepted int                        `json:"accepted"`
	Updated  int                        `json:"updated"`
	Rejected int                        `json:"rejected"`
	Errored  int                        `json:"errored"`
	Skipped  int                        `json:"skipped"`
	Reasons  map[model.RejectReason]int `json:"reasons,omitempty"`
	Err      error                      `json:"-"`
	Error    string                     `json:"error,omitempty"`
}

func newReport(src model.Source) Report {
	return Report{SourceID: src.ID, Source: src.URL, Reasons: map[model.RejectReason]int{}}
}

func (r *Report) reject(reason model.RejectReason) {
	r.Rejected++
	r.Reasons[reason]++
}

func (r *Report) fail(err error) {
	if r.Err == nil {
		r.Err = err
		r.Error = err.Error()
	}
}

func (r *Report) add(other Report) {
	r.Fetched += other.Fetched
	r.Accepted += other.Accepted
	r.Updated += other.Updated
	r.Rejected += other.Rejected
	r.Errored += other.Errored
	r.Skipped += other.Skipped
	for k, v := range other.Reasons {
		r.Reasons[k] += v
	}
}

// Summary aggregates a fetch-all cycle. Failed counts sources whose cycle
// failed; sources skipped because a fetch was already in flight are not
// failures.
type Summary struct {
	Cycle    string        `json:"cycle"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration_ns"`
	Sources  []Report      `json:"sources"`
	Totals   Report        `json:"totals"`
	Failed   int           `json:"failed"`
	InFlight int           `json:"in_flight"`
}
