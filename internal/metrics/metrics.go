package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	mu sync.RWMutex

	// Counters
	EntriesFetched     int64
	EntriesAccepted    int64
	EntriesUpdated     int64
	EntriesRejected    int64
	EntriesErrored     int64
	SourcesFailed      int64
	SummariesGenerated int64
	SummariesFailed    int64
	ContentPurged      int64

	// Timings
	LastCycleDuration    time.Duration
	AverageCycleDuration time.Duration
	TotalCycleDuration   time.Duration
	CycleCount           int64

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool

	registry     *prometheus.Registry
	entries      *prometheus.CounterVec
	rejections   *prometheus.CounterVec
	sourceErrors *prometheus.CounterVec
	summaries    *prometheus.CounterVec
	purged       prometheus.Counter
	cycles       prometheus.Histogram
}

var Global = New()

// New returns metrics backed by their own Prometheus registry.
func New() *Metrics {
	m := &Metrics{
		IsHealthy: true,
		registry:  prometheus.NewRegistry(),
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "technews_entries_total",
			Help: "Feed entries by pipeline outcome.",
		}, []string{"outcome"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "technews_rejections_total",
			Help: "Rejected entries by reason.",
		}, []string{"reason"}),
		sourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "technews_source_errors_total",
			Help: "Failed source fetch cycles.",
		}, []string{"source"}),
		summaries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "technews_summaries_total",
			Help: "Summarization attempts by result.",
		}, []string{"result"}),
		purged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "technews_content_purged_total",
			Help: "Content rows removed by the retention sweep.",
		}),
		cycles: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "technews_fetch_cycle_seconds",
			Help:    "Duration of fetch-all cycles.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}
	m.registry.MustRegister(m.entries, m.rejections, m.sourceErrors, m.summaries, m.purged, m.cycles)
	return m
}

// RecordEntries adds the per-outcome counts of one source cycle.
func (m *Metrics) RecordEntries(fetched, accepted, updated, rejected, errored int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EntriesFetched += int64(fetched)
	m.EntriesAccepted += int64(accepted)
	m.EntriesUpdated += int64(updated)
	m.EntriesRejected += int64(rejected)
	m.EntriesErrored += int64(errored)

	m.entries.WithLabelValues("fetched").Add(float64(fetched))
	m.entries.WithLabelValues("accepted").Add(float64(accepted))
	m.entries.WithLabelValues("updated").Add(float64(updated))
	m.entries.WithLabelValues("rejected").Add(float64(rejected))
	m.entries.WithLabelValues("errored").Add(float64(errored))
}

func (m *Metrics) RecordRejection(reason string, n int) {
	m.rejections.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) RecordSourceError(source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SourcesFailed++
	m.sourceErrors.WithLabelValues(source).Inc()
}

func (m *Metrics) RecordSummary(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ok {
		m.SummariesGenerated++
		m.summaries.WithLabelValues("ok").Inc()
		return
	}
	m.SummariesFailed++
	m.summaries.WithLabelValues("failed").Inc()
}

func (m *Metrics) RecordPurged(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ContentPurged += n
	m.purged.Add(float64(n))
}

func (m *Metrics) RecordCycleTime(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastCycleDuration = duration
	m.TotalCycleDuration += duration
	m.CycleCount++
	m.AverageCycleDuration = m.TotalCycleDuration / time.Duration(m.CycleCount)
	m.cycles.Observe(duration.Seconds())
}

func (m *Metrics) SetLastRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IsHealthy
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"entries_fetched":       m.EntriesFetched,
		"entries_accepted":      m.EntriesAccepted,
		"entries_updated":       m.EntriesUpdated,
		"entries_rejected":      m.EntriesRejected,
		"entries_errored":       m.EntriesErrored,
		"sources_failed":        m.SourcesFailed,
		"summaries_generated":   m.SummariesGenerated,
		"summaries_failed":      m.SummariesFailed,
		"content_purged":        m.ContentPurged,
		"last_cycle_time_ms":    m.LastCycleDuration.Milliseconds(),
		"average_cycle_time_ms": m.AverageCycleDuration.Milliseconds(),
		"cycle_count":           m.CycleCount,
		"last_run_time":         m.LastRunTime.Format(time.RFC3339),
		"last_error_time":       m.LastErrorTime.Format(time.RFC3339),
		"last_error":            m.LastError,
		"is_healthy":            m.IsHealthy,
	}
}
