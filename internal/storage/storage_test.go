package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/technews/internal/model"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.SeedCategories(context.Background(), []model.Category{
		{Name: "AI", Color: "#6366f1"},
		{Name: "Technology", Color: "#3b82f6"},
		{Name: "Developer", Color: "#14b8a6"},
	})
	require.NoError(t, err)
	return s
}

func newSource(t *testing.T, s *Store, url, category string) *model.Source {
	t.Helper()
	src, err := s.CreateSource(context.Background(), model.Source{Name: url, URL: url, Category: category, Active: true})
	require.NoError(t, err)
	return src
}

func ptr[T any](v T) *T { return &v }

// clock returns a settable time source for the store.
func clock(s *Store, start time.Time) *time.Time {
	now := start
	s.now = func() time.Time { return now }
	return &now
}

func TestOpenRejectsUnknownScheme(t *testing.T) {
	_, err := Open(context.Background(), "mysql://x")
	assert.Error(t, err)
}

func TestUpsertIsIdempotentAndPreservesFlags(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	src := newSource(t, s, "https://feed.test/a", "AI")

	entry := model.Entry{GUID: "g1", Title: "OpenAI ships", Link: "https://x.test/1", BodyText: "first body", Summary: "teaser"}
	c, created, err := s.Upsert(ctx, entry, src.ID, []string{"AI", "Developer"})
	require.NoError(t, err)
	assert.True(t, created)
	require.Len(t, c.Categories, 2)
	assert.Equal(t, "AI", c.Categories[0].Name)

	require.NoError(t, s.MarkRead(ctx, c.ID, 12))
	on, err := s.ToggleBookmark(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, on)

	entry.BodyText = "second body"
	again, created, err := s.Upsert(ctx, entry, src.ID, nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, c.ID, again.ID)
	assert.Equal(t, "second body", again.BodyText)
	assert.True(t, again.IsRead)
	assert.True(t, again.IsBookmarked)
	assert.Len(t, again.Categories, 2)

	page, err := s.List(ctx, model.ContentFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestUpsertKeepsGeneratedSummary(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	c, _, err := s.Upsert(ctx, model.Entry{GUID: "g", Title: "t", Summary: "feed teaser"}, 0, []string{"AI"})
	require.NoError(t, err)
	assert.False(t, c.Summarized)

	missing, err := s.MissingSummaries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, missing, 1)

	require.NoError(t, s.MarkSummary(ctx, c.ID, "生成的摘要"))
	c, _, err = s.Upsert(ctx, model.Entry{GUID: "g", Title: "t", Summary: "new teaser"}, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "生成的摘要", c.Summary)
	assert.True(t, c.Summarized)

	missing, err = s.MissingSummaries(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, missing)

	assert.ErrorIs(t, s.MarkSummary(ctx, 999, "x"), model.ErrNotFound)
}

func TestUpsertNewContentNeedsCategory(t *testing.T) {
	s := newStore(t)
	_, _, err := s.Upsert(context.Background(), model.Entry{GUID: "g", Title: "t"}, 0, []string{"Gardening"})
	assert.Error(t, err)

	_, err = s.FindByGUID(context.Background(), "g")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestFindByGUID(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, _, err := s.Upsert(ctx, model.Entry{GUID: "urn:1", Title: "t"}, 0, []string{"ai"})
	require.NoError(t, err)

	c, err := s.FindByGUID(ctx, "urn:1")
	require.NoError(t, err)
	assert.Equal(t, "t", c.Title)

	_, err = s.FindByGUID(ctx, "urn:2")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestListFiltersAndOrder(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := clock(s, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	a := newSource(t, s, "https://feed.test/a", "AI")
	b := newSource(t, s, "https://feed.test/b", "Technology")

	older := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)

	undated, _, err := s.Upsert(ctx, model.Entry{GUID: "u", Title: "Undated kernel news"}, b.ID, []string{"Technology"})
	require.NoError(t, err)
	*now = now.Add(time.Minute)
	old, _, err := s.Upsert(ctx, model.Entry{GUID: "o", Title: "Older LLM paper", Published: &older}, a.ID, []string{"AI"})
	require.NoError(t, err)
	*now = now.Add(time.Minute)
	fresh, _, err := s.Upsert(ctx, model.Entry{GUID: "n", Title: "Newer chip", BodyText: "An LLM accelerator", Published: &newer}, b.ID, []string{"Technology", "AI"})
	require.NoError(t, err)

	page, err := s.List(ctx, model.ContentFilter{})
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	assert.Equal(t, []int64{fresh.ID, old.ID, undated.ID}, ids(page.Items))
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, model.DefaultPageSize, page.PageSize)

	aiCat := fresh.Categories[1].ID
	page, err = s.List(ctx, model.ContentFilter{CategoryID: &aiCat})
	require.NoError(t, err)
	assert.Equal(t, []int64{fresh.ID, old.ID}, ids(page.Items))

	page, err = s.List(ctx, model.ContentFilter{SourceID: &b.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	page, err = s.List(ctx, model.ContentFilter{Search: "llm"})
	require.NoError(t, err)
	assert.Equal(t, []int64{fresh.ID, old.ID}, ids(page.Items))

	require.NoError(t, s.MarkRead(ctx, old.ID, 0))
	page, err = s.List(ctx, model.ContentFilter{IsRead: ptr(false)})
	require.NoError(t, err)
	assert.Equal(t, []int64{fresh.ID, undated.ID}, ids(page.Items))

	_, err = s.ToggleBookmark(ctx, undated.ID)
	require.NoError(t, err)
	page, err = s.List(ctx, model.ContentFilter{IsBookmarked: ptr(true)})
	require.NoError(t, err)
	assert.Equal(t, []int64{undated.ID}, ids(page.Items))

	page, err = s.List(ctx, model.ContentFilter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, []int64{undated.ID}, ids(page.Items))

	page, err = s.List(ctx, model.ContentFilter{Search: "nothing matches"})
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Zero(t, page.Total)
}

func ids(items []model.Content) []int64 {
	out := make([]int64, len(items))
	for i, c := range items {
		out[i] = c.ID
	}
	return out
}

func TestReadStateAndHistory(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := clock(s, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	c, _, err := s.Upsert(ctx, model.Entry{GUID: "g", Title: "t"}, 0, []string{"AI"})
	require.NoError(t, err)

	require.NoError(t, s.MarkRead(ctx, c.ID, 30))
	*now = now.Add(time.Hour)
	require.NoError(t, s.MarkRead(ctx, c.ID, 45))

	hist, err := s.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, 45, hist[0].Duration)
	assert.Equal(t, time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC), hist[0].ReadAt)

	require.NoError(t, s.MarkUnread(ctx, c.ID))
	got, err := s.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, got.IsRead)

	marked, err := s.ToggleBookmark(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, marked)
	marked, err = s.ToggleBookmark(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, marked)

	assert.ErrorIs(t, s.MarkRead(ctx, 404, 0), model.ErrNotFound)
	assert.ErrorIs(t, s.MarkUnread(ctx, 404), model.ErrNotFound)
	_, err = s.ToggleBookmark(ctx, 404)
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = s.Get(ctx, 404)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestPurgeKeepsBookmarked(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := clock(s, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	old, _, err := s.Upsert(ctx, model.Entry{GUID: "old", Title: "old"}, 0, []string{"AI"})
	require.NoError(t, err)
	kept, _, err := s.Upsert(ctx, model.Entry{GUID: "kept", Title: "kept"}, 0, []string{"AI"})
	require.NoError(t, err)
	require.NoError(t, s.MarkRead(ctx, old.ID, 5))
	_, err = s.ToggleBookmark(ctx, kept.ID)
	require.NoError(t, err)

	*now = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	fresh, _, err := s.Upsert(ctx, model.Entry{GUID: "fresh", Title: "fresh"}, 0, []string{"AI"})
	require.NoError(t, err)

	n, err := s.PurgeOlderThan(ctx, now.AddDate(0, 0, -30), true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.Get(ctx, old.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = s.Get(ctx, kept.ID)
	assert.NoError(t, err)
	_, err = s.Get(ctx, fresh.ID)
	assert.NoError(t, err)

	hist, err := s.History(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, hist)

	n, err = s.PurgeOlderThan(ctx, now.AddDate(0, 0, -30), false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRecentTitles(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	now := clock(s, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	_, _, err := s.Upsert(ctx, model.Entry{GUID: "a", Title: "Old title"}, 0, []string{"AI"})
	require.NoError(t, err)
	*now = now.Add(96 * time.Hour)
	_, _, err = s.Upsert(ctx, model.Entry{GUID: "b", Title: "New title"}, 0, []string{"AI"})
	require.NoError(t, err)

	titles, err := s.RecentTitles(ctx, now.Add(-72*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"New title"}, titles)
}

func TestSources(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	clock(s, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	src, err := s.CreateSource(ctx, model.Source{Name: "Lab", URL: "https://lab.test/rss", Category: "AI", Trust: model.TrustSpecialized, Active: true})
	require.NoError(t, err)
	assert.Equal(t, "AI", src.Category)
	assert.Equal(t, model.TrustSpecialized, src.Trust)
	assert.Nil(t, src.LastFetched)

	_, err = s.CreateSource(ctx, model.Source{URL: "https://lab.test/rss"})
	assert.ErrorIs(t, err, model.ErrDuplicateSource)
	_, err = s.CreateSource(ctx, model.Source{URL: "https://other.test/rss", Category: "Gardening"})
	assert.ErrorIs(t, err, model.ErrUnknownCategory)

	other := newSource(t, s, "https://agg.test/rss", "Technology")
	require.NoError(t, s.SetActive(ctx, other.ID, false))

	active, err := s.ListActiveSources(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, src.ID, active[0].ID)

	all, err := s.ListSources(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	byCat, err := s.ListSources(ctx, &src.CategoryID)
	require.NoError(t, err)
	assert.Len(t, byCat, 1)

	fetched := time.Date(2024, 2, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpdateLastFetched(ctx, src.ID, fetched))
	assert.ErrorIs(t, s.UpdateLastFetched(ctx, 404, fetched), model.ErrNotFound)

	c, _, err := s.Upsert(ctx, model.Entry{GUID: "a", Title: "a"}, src.ID, []string{"AI"})
	require.NoError(t, err)
	_, _, err = s.Upsert(ctx, model.Entry{GUID: "b", Title: "b"}, src.ID, []string{"AI"})
	require.NoError(t, err)
	require.NoError(t, s.MarkRead(ctx, c.ID, 0))

	stats, err := s.SourceStats(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Unread)
	require.NotNil(t, stats.LastFetched)
	assert.Equal(t, fetched, *stats.LastFetched)

	_, err = s.SourceStats(ctx, 404)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSeedingIsIdempotent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	n, err := s.SeedCategories(ctx, []model.Category{{Name: "AI", Color: "#000000"}, {Name: "Cloud", Color: "#06b6d4"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	cats, err := s.Categories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 4)
	assert.Equal(t, "#6366f1", cats[0].Color, "existing rows are not overwritten")

	seed := []model.Source{
		{Name: "Lab", URL: "https://lab.test/rss", Category: "AI", Trust: model.TrustSpecialized, Active: true},
		{Name: "Agg", URL: "https://agg.test/rss", Category: "Cloud", Active: false},
	}
	n, err = s.SeedSources(ctx, seed)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = s.SeedSources(ctx, seed)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.SeedSources(ctx, []model.Source{{URL: "https://x.test", Category: "Nope"}})
	assert.Error(t, err)
}
