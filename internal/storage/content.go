package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/deusflow/technews/internal/model"
)

const contentColumns = "c.id, c.guid, c.title, c.summary, c.summarized, c.content_html, c.content_text, c.link, " +
	"c.image_url, c.author, c.published_date, c.source_url, c.source_id, c.is_read, c.is_bookmarked, c.created_at, c.updated_at"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanContent(row rowScanner) (*model.Content, error) {
	var (
		c                model.Content
		summary          sql.NullString
		sourceID         sql.NullInt64
		published        nullTime
		created, updated nullTime
	)
	err := row.Scan(&c.ID, &c.GUID, &c.Title, &summary, &c.Summarized, &c.BodyHTML, &c.BodyText, &c.Link,
		&c.ImageURL, &c.Author, &published, &c.SourceURL, &sourceID, &c.IsRead, &c.IsBookmarked, &created, &updated)
	if err != nil {
		return nil, err
	}
	c.Summary = summary.String
	c.SourceID = sourceID.Int64
	c.Published = published.ptr()
	c.CreatedAt = created.Time
	c.UpdatedAt = updated.Time
	return &c, nil
}

// FindByGUID returns model.ErrNotFound when no content has guid.
func (s *Store) FindByGUID(ctx context.Context, guid string) (*model.Content, error) {
	row := s.sb.Select(contentColumns).From("content c").Where(sq.Eq{"c.guid": guid}).
		RunWith(s.db).QueryRowContext(ctx)
	c, err := scanContent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find content: %w", err)
	}
	return c, nil
}

// Get returns one content item with its categories.
func (s *Store) Get(ctx context.Context, id int64) (*model.Content, error) {
	row := s.sb.Select(contentColumns).From("content c").Where(sq.Eq{"c.id": id}).
		RunWith(s.db).QueryRowContext(ctx)
	c, err := scanContent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get content: %w", err)
	}
	items := []model.Content{*c}
	if err := s.attachCategories(ctx, items); err != nil {
		return nil, err
	}
	return &items[0], nil
}

// Upsert inserts entry or, when its GUID exists, refreshes the mutable
// fields in a single statement. Read and bookmark flags are never touched
// and an AI summary is kept. categories are linked by name, the first being
// primary; a new row needs at least one known category.
func (s *Store) Upsert(ctx context.Context, e model.Entry, sourceID int64, categories []string) (*model.Content, bool, error) {
	var (
		id      int64
		created bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var existing int64
		err := s.sb.Select("id").From("content").Where(sq.Eq{"guid": e.GUID}).
			RunWith(tx).QueryRowContext(ctx).Scan(&existing)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			created = true
		case err != nil:
			return fmt.Errorf("failed to look up guid: %w", err)
		}

		catIDs, err := s.categoryIDs(ctx, tx, categories)
		if err != nil {
			return err
		}
		if created && len(catIDs) == 0 {
			return fmt.Errorf("content %q has no known category (got %v)", e.GUID, categories)
		}

		now := s.ts(s.now())
		var summary interface{}
		if e.Summary != "" {
			summary = e.Summary
		}
		var src interface{}
		if sourceID > 0 {
			src = sourceID
		}

		q := s.sb.Insert("content").
			Columns("guid", "title", "summary", "content_html", "content_text", "link", "image_url", "author",
				"published_date", "source_url", "source_id", "created_at", "updated_at").
			Values(e.GUID, e.Title, summary, e.BodyHTML, e.BodyText, e.Link, e.ImageURL, e.Author,
				s.tsPtr(e.Published), e.SourceURL, src, now, now).
			Suffix(`ON CONFLICT (guid) DO UPDATE SET
				title = excluded.title,
				summary = CASE WHEN content.summarized THEN content.summary ELSE excluded.summary END,
				content_html = excluded.content_html,
				content_text = excluded.content_text,
				link = excluded.link,
				image_url = excluded.image_url,
				author = excluded.author,
				published_date = excluded.published_date,
				updated_at = excluded.updated_at
				RETURNING id`)
		if err := q.RunWith(tx).QueryRowContext(ctx).Scan(&id); err != nil {
			return fmt.Errorf("failed to upsert content: %w", err)
		}

		for i, catID := range catIDs {
			_, err := s.sb.Insert("content_category").
				Columns("content_id", "category_id", "is_primary").
				Values(id, catID, i == 0 && created).
				Suffix("ON CONFLICT (content_id, category_id) DO NOTHING").
				RunWith(tx).ExecContext(ctx)
			if err != nil {
				return fmt.Errorf("failed to link category: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return c, created, nil
}

func (s *Store) categoryIDs(ctx context.Context, tx *sql.Tx, names []string) ([]int64, error) {
	var ids []int64
	seen := make(map[int64]bool)
	for _, name := range names {
		var id int64
		err := s.sb.Select("id").From("categories").Where("LOWER(name) = ?", strings.ToLower(name)).
			RunWith(tx).QueryRowContext(ctx).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve category %q: %w", name, err)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// MarkSummary stores a generated summary.
func (s *Store) MarkSummary(ctx context.Context, id int64, text string) error {
	res, err := s.sb.Update("content").
		Set("summary", text).
		Set("summarized", true).
		Set("updated_at", s.ts(s.now())).
		Where(sq.Eq{"id": id}).
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to store summary: %w", err)
	}
	return expectOne(res)
}

// MissingSummaries returns up to limit items, newest first, that have not
// been summarized yet.
func (s *Store) MissingSummaries(ctx context.Context, limit int) ([]model.Content, error) {
	rows, err := s.sb.Select(contentColumns).From("content c").
		Where(sq.Eq{"c.summarized": false}).
		OrderBy("c.created_at DESC", "c.id DESC").
		Limit(uint64(limit)).
		RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query unsummarized content: %w", err)
	}
	return collect(rows)
}

// RecentTitles returns titles of content created at or after since.
func (s *Store) RecentTitles(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.sb.Select("title").From("content").
		Where(sq.GtOrEq{"created_at": s.ts(since)}).
		RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent titles: %w", err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		titles = append(titles, t)
	}
	return titles, rows.Err()
}

// List returns one page of content matching f.
func (s *Store) List(ctx context.Context, f model.ContentFilter) (*model.ContentPage, error) {
	f = f.Normalize()

	var where sq.And
	if f.CategoryID != nil {
		where = append(where, sq.Expr("c.id IN (SELECT content_id FROM content_category WHERE category_id = ?)", *f.CategoryID))
	}
	if f.SourceID != nil {
		where = append(where, sq.Eq{"c.source_id": *f.SourceID})
	}
	if f.IsRead != nil {
		where = append(where, sq.Eq{"c.is_read": *f.IsRead})
	}
	if f.IsBookmarked != nil {
		where = append(where, sq.Eq{"c.is_bookmarked": *f.IsBookmarked})
	}
	if f.Search != "" {
		p := "%" + strings.ToLower(f.Search) + "%"
		where = append(where, sq.Or{
			sq.Expr("LOWER(c.title) LIKE ?", p),
			sq.Expr("LOWER(COALESCE(c.summary, '')) LIKE ?", p),
			sq.Expr("LOWER(c.content_text) LIKE ?", p),
		})
	}

	page := &model.ContentPage{Page: f.Page, PageSize: f.PageSize, Items: []model.Content{}}

	count := s.sb.Select("COUNT(*)").From("content c")
	if len(where) > 0 {
		count = count.Where(where)
	}
	if err := count.RunWith(s.db).QueryRowContext(ctx).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("failed to count content: %w", err)
	}

	q := s.sb.Select(contentColumns).From("content c").
		OrderBy("c.published_date IS NULL", "c.published_date DESC", "c.created_at DESC", "c.id DESC").
		Limit(uint64(f.PageSize)).
		Offset(uint64(f.Offset()))
	if len(where) > 0 {
		q = q.Where(where)
	}
	rows, err := q.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list content: %w", err)
	}
	items, err := collect(rows)
	if err != nil {
		return nil, err
	}
	if err := s.attachCategories(ctx, items); err != nil {
		return nil, err
	}
	if items != nil {
		page.Items = items
	}
	return page, nil
}

func collect(rows *sql.Rows) ([]model.Content, error) {
	defer rows.Close()
	var out []model.Content
	for rows.Next() {
		c, err := scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan content: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// attachCategories fills Categories for items, primary first.
func (s *Store) attachCategories(ctx context.Context, items []model.Content) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]int64, len(items))
	index := make(map[int64]int, len(items))
	for i, c := range items {
		ids[i] = c.ID
		index[c.ID] = i
		items[i].Categories = []model.Category{}
	}

	rows, err := s.sb.Select("cc.content_id", "cat.id", "cat.name", "cat.description", "cat.color", "cat.created_at").
		From("content_category cc").
		Join("categories cat ON cat.id = cc.category_id").
		Where(sq.Eq{"cc.content_id": ids}).
		OrderBy("cc.is_primary DESC", "cat.id").
		RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to load categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			contentID int64
			cat       model.Category
			created   nullTime
		)
		if err := rows.Scan(&contentID, &cat.ID, &cat.Name, &cat.Description, &cat.Color, &created); err != nil {
			return fmt.Errorf("failed to scan category: %w", err)
		}
		cat.CreatedAt = created.Time
		i := index[contentID]
		items[i].Categories = append(items[i].Categories, cat)
	}
	return rows.Err()
}

// MarkRead sets the read flag and appends a reading history record.
func (s *Store) MarkRead(ctx context.Context, id int64, duration int) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := s.sb.Update("content").Set("is_read", true).Where(sq.Eq{"id": id}).
			RunWith(tx).ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to mark read: %w", err)
		}
		if err := expectOne(res); err != nil {
			return err
		}
		_, err = s.sb.Insert("reading_history").
			Columns("content_id", "read_at", "read_duration").
			Values(id, s.ts(s.now()), duration).
			RunWith(tx).ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to record history: %w", err)
		}
		return nil
	})
}

func (s *Store) MarkUnread(ctx context.Context, id int64) error {
	res, err := s.sb.Update("content").Set("is_read", false).Where(sq.Eq{"id": id}).
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark unread: %w", err)
	}
	return expectOne(res)
}

// ToggleBookmark flips the bookmark flag and returns the new value.
func (s *Store) ToggleBookmark(ctx context.Context, id int64) (bool, error) {
	var state bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := s.sb.Select("is_bookmarked").From("content").Where(sq.Eq{"id": id}).
			RunWith(tx).QueryRowContext(ctx).Scan(&state)
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read bookmark: %w", err)
		}
		state = !state
		_, err = s.sb.Update("content").Set("is_bookmarked", state).Where(sq.Eq{"id": id}).
			RunWith(tx).ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to toggle bookmark: %w", err)
		}
		return nil
	})
	return state, err
}

// History returns the latest reading records, newest first.
func (s *Store) History(ctx context.Context, limit int) ([]model.ReadingHistory, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.sb.Select("id", "content_id", "read_at", "read_duration").From("reading_history").
		OrderBy("read_at DESC", "id DESC").
		Limit(uint64(limit)).
		RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	out := []model.ReadingHistory{}
	for rows.Next() {
		var (
			h      model.ReadingHistory
			readAt nullTime
		)
		if err := rows.Scan(&h.ID, &h.ContentID, &readAt, &h.Duration); err != nil {
			return nil, err
		}
		h.ReadAt = readAt.Time
		out = append(out, h)
	}
	return out, rows.Err()
}

// PurgeOlderThan deletes content created before cutoff together with its
// history and category links, and returns the number of content rows removed.
func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time, keepBookmarked bool) (int64, error) {
	cond := sq.And{sq.Lt{"created_at": s.ts(cutoff)}}
	if keepBookmarked {
		cond = append(cond, sq.Eq{"is_bookmarked": false})
	}
	// plain ? placeholders; the outer builder rewrites them
	sub, args, err := sq.Select("id").From("content").Where(cond).ToSql()
	if err != nil {
		return 0, err
	}

	var deleted int64
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"reading_history", "content_category"} {
			_, err := s.sb.Delete(table).Where("content_id IN ("+sub+")", args...).
				RunWith(tx).ExecContext(ctx)
			if err != nil {
				return fmt.Errorf("failed to purge %s: %w", table, err)
			}
		}
		res, err := s.sb.Delete("content").Where(cond).RunWith(tx).ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to purge content: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}
