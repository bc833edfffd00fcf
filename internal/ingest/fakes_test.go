package ingest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/deusflow/technews/internal/classify"
	"github.com/deusflow/technews/internal/model"
	"github.com/deusflow/technews/internal/ratelimit"
)

type fakeRepo struct {
	mu          sync.Mutex
	sources     map[int64]*model.Source
	content     map[string]*model.Content
	nextID      int64
	lastFetched map[int64]time.Time
	failUpsert  map[int64]error // by source id
	listErr     error

	purgeCutoff time.Time
	purgeKeep   bool
	purged      int64
	summaries   map[int64]string
}

func newFakeRepo(sources ...model.Source) *fakeRepo {
	r := &fakeRepo{
		sources:     map[int64]*model.Source{},
		content:     map[string]*model.Content{},
		lastFetched: map[int64]time.Time{},
		failUpsert:  map[int64]error{},
		summaries:   map[int64]string{},
	}
	for i := range sources {
		s := sources[i]
		r.sources[s.ID] = &s
	}
	return r
}

func (r *fakeRepo) FindByGUID(_ context.Context, guid string) (*model.Content, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.content[guid]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, model.ErrNotFound
}

func (r *fakeRepo) Upsert(_ context.Context, e model.Entry, sourceID int64, categories []string) (*model.Content, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failUpsert[sourceID]; err != nil {
		return nil, false, err
	}
	if c, ok := r.content[e.GUID]; ok {
		c.Title, c.BodyText, c.ImageURL = e.Title, e.BodyText, e.ImageURL
		cp := *c
		return &cp, false, nil
	}
	if len(categories) == 0 {
		return nil, false, errors.New("no category")
	}
	r.nextID++
	c := &model.Content{ID: r.nextID, GUID: e.GUID, Title: e.Title, BodyText: e.BodyText, SourceID: sourceID}
	for _, name := range categories {
		c.Categories = append(c.Categories, model.Category{Name: name})
	}
	r.content[e.GUID] = c
	cp := *c
	return &cp, true, nil
}

func (r *fakeRepo) MarkSummary(_ context.Context, id int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.content {
		if c.ID == id {
			c.Summary, c.Summarized = text, true
			r.summaries[id] = text
			return nil
		}
	}
	return model.ErrNotFound
}

func (r *fakeRepo) MissingSummaries(_ context.Context, limit int) ([]model.Content, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Content
	for _, c := range r.content {
		if !c.Summarized {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeRepo) PurgeOlderThan(_ context.Context, cutoff time.Time, keep bool) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purgeCutoff, r.purgeKeep = cutoff, keep
	return r.purged, nil
}

func (r *fakeRepo) ListActiveSources(context.Context) ([]model.Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []model.Source
	for _, s := range r.sources {
		if s.Active {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeRepo) GetSource(_ context.Context, id int64) (*model.Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sources[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, model.ErrNotFound
}

func (r *fakeRepo) UpdateLastFetched(ctx context.Context, id int64, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastFetched[id] = at
	return nil
}

func (r *fakeRepo) RecentTitles(context.Context, time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, c := range r.content {
		out = append(out, c.Title)
	}
	return out, nil
}

func (r *fakeRepo) stored(guid string) (*model.Content, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.content[guid]
	return c, ok
}

type fakeFetcher struct {
	mu      sync.Mutex
	entries map[string][]model.Entry
	errs    map[string]error
	calls   map[string]int
	// when set, Fetch signals entered and waits on release
	entered chan struct{}
	release chan struct{}
	delay   time.Duration
	active  int
	peak    int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{entries: map[string][]model.Entry{}, errs: map[string]error{}, calls: map[string]int{}}
}

func (f *fakeFetcher) Fetch(_ context.Context, src model.Source) ([]model.Entry, error) {
	f.mu.Lock()
	f.calls[src.URL]++
	f.active++
	if f.active > f.peak {
		f.peak = f.active
	}
	entered, release, delay := f.entered, f.release, f.delay
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if entered != nil {
		entered <- struct{}{}
		<-release
	}
	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[src.URL]; err != nil {
		return nil, &model.FetchError{Source: src.URL, Err: err}
	}
	return f.entries[src.URL], nil
}

func (f *fakeFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

type fakeExtractor struct {
	mu       sync.Mutex
	minChars int
	text     string
	err      error
	calls    int
}

func (x *fakeExtractor) NeedsBackfill(e model.Entry) bool {
	return len([]rune(e.BodyText)) < x.minChars
}

func (x *fakeExtractor) Backfill(_ context.Context, e model.Entry) (model.Entry, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.calls++
	if x.err != nil {
		return e, &model.ExtractionError{Link: e.Link, Err: x.err}
	}
	e.BodyText = x.text
	return e, nil
}

type fakeSummarizer struct {
	mu      sync.Mutex
	enabled bool
	fail    map[string]bool
	limit   int
	used    int
	resets  int
}

func (s *fakeSummarizer) Enabled() bool { return s.enabled }

func (s *fakeSummarizer) ResetBudget() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.used = 0
	s.resets++
}

func (s *fakeSummarizer) Summarize(_ context.Context, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.limit > 0 && s.used >= s.limit {
		return "", ratelimit.ErrExhausted
	}
	s.used++
	if s.fail[text] {
		return "", errors.New("upstream 500")
	}
	return "摘要 " + text, nil
}

func testRules() classify.Rules {
	return classify.Rules{
		TitleWeight:         3,
		BodyWeight:          1,
		MinScore:            2,
		SimilarityThreshold: 0.9,
		Blacklist:           []string{"股市", "stock market"},
		Categories: []classify.CategoryRule{
			{Name: "AI", Keywords: []classify.Keyword{{Term: "openai", Weight: 1}, {Term: "llm", Weight: 1}, {Term: "模型", Weight: 1}}},
			{Name: "Technology", Keywords: []classify.Keyword{{Term: "chip", Weight: 1}, {Term: "芯片", Weight: 1}}},
		},
	}
}

func (r *fakeRepo) purgeCall() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.purgeCutoff, r.purgeKeep
}

func (r *fakeRepo) fetchedAt(id int64) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.lastFetched[id]
	return t, ok
}
