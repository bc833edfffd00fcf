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

const sourceColumns = "s.id, s.name, s.url, s.description, s.category_id, COALESCE(cat.name, ''), s.trust, s.is_active, s.last_fetched, s.created_at"

func (s *Store) selectSources() sq.SelectBuilder {
	return s.sb.Select(sourceColumns).From("sources s").LeftJoin("categories cat ON cat.id = s.category_id")
}

func scanSource(row rowScanner) (*model.Source, error) {
	var (
		src         model.Source
		categoryID  sql.NullInt64
		trust       string
		lastFetched nullTime
		created     nullTime
	)
	err := row.Scan(&src.ID, &src.Name, &src.URL, &src.Description, &categoryID, &src.Category, &trust,
		&src.Active, &lastFetched, &created)
	if err != nil {
		return nil, err
	}
	src.CategoryID = categoryID.Int64
	if src.Trust, err = model.ParseTrustLevel(trust); err != nil {
		return nil, err
	}
	src.LastFetched = lastFetched.ptr()
	src.CreatedAt = created.Time
	return &src, nil
}

func collectSources(rows *sql.Rows) ([]model.Source, error) {
	defer rows.Close()
	out := []model.Source{}
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		out = append(out, *src)
	}
	return out, rows.Err()
}

// ListActiveSources returns sources with the active flag set, by id.
func (s *Store) ListActiveSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.selectSources().Where(sq.Eq{"s.is_active": true}).OrderBy("s.id").
		RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sources: %w", err)
	}
	return collectSources(rows)
}

// ListSources returns all sources ordered by name, optionally in one category.
func (s *Store) ListSources(ctx context.Context, categoryID *int64) ([]model.Source, error) {
	q := s.selectSources().OrderBy("s.name", "s.id")
	if categoryID != nil {
		q = q.Where(sq.Eq{"s.category_id": *categoryID})
	}
	rows, err := q.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	return collectSources(rows)
}

func (s *Store) GetSource(ctx context.Context, id int64) (*model.Source, error) {
	src, err := scanSource(s.selectSources().Where(sq.Eq{"s.id": id}).RunWith(s.db).QueryRowContext(ctx))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return src, nil
}

// CreateSource registers src. The category may be given by id or name.
// A URL that is already registered yields model.ErrDuplicateSource.
func (s *Store) CreateSource(ctx context.Context, src model.Source) (*model.Source, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := s.sb.Select("COUNT(*)").From("sources").Where(sq.Eq{"url": src.URL}).
			RunWith(tx).QueryRowContext(ctx).Scan(&n); err != nil {
			return fmt.Errorf("failed to check source url: %w", err)
		}
		if n > 0 {
			return model.ErrDuplicateSource
		}

		catID, err := s.resolveCategory(ctx, tx, src)
		if err != nil {
			return err
		}
		name := src.Name
		if name == "" {
			name = src.URL
		}
		return s.sb.Insert("sources").
			Columns("name", "url", "description", "category_id", "trust", "is_active", "created_at").
			Values(name, src.URL, src.Description, catID, src.Trust.String(), src.Active, s.ts(s.now())).
			Suffix("RETURNING id").
			RunWith(tx).QueryRowContext(ctx).Scan(&id)
	})
	if err != nil {
		if !errors.Is(err, model.ErrDuplicateSource) && isUniqueViolation(err) {
			return nil, model.ErrDuplicateSource
		}
		return nil, err
	}
	return s.GetSource(ctx, id)
}

func (s *Store) resolveCategory(ctx context.Context, tx *sql.Tx, src model.Source) (interface{}, error) {
	switch {
	case src.CategoryID > 0:
		return src.CategoryID, nil
	case src.Category != "":
		ids, err := s.categoryIDs(ctx, tx, []string{src.Category})
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, fmt.Errorf("%w %q", model.ErrUnknownCategory, src.Category)
		}
		return ids[0], nil
	}
	return nil, nil
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

func (s *Store) SetActive(ctx context.Context, id int64, active bool) error {
	res, err := s.sb.Update("sources").Set("is_active", active).Where(sq.Eq{"id": id}).
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to update source: %w", err)
	}
	return expectOne(res)
}

func (s *Store) UpdateLastFetched(ctx context.Context, id int64, at time.Time) error {
	res, err := s.sb.Update("sources").Set("last_fetched", s.ts(at)).Where(sq.Eq{"id": id}).
		RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to update last fetched: %w", err)
	}
	return expectOne(res)
}

// SourceStats counts a source's content and unread content.
func (s *Store) SourceStats(ctx context.Context, id int64) (*model.SourceStats, error) {
	src, err := s.GetSource(ctx, id)
	if err != nil {
		return nil, err
	}
	stats := &model.SourceStats{SourceID: src.ID, Name: src.Name, LastFetched: src.LastFetched}
	err = s.sb.Select("COUNT(*)", "COALESCE(SUM(CASE WHEN is_read THEN 0 ELSE 1 END), 0)").
		From("content").Where(sq.Eq{"source_id": id}).
		RunWith(s.db).QueryRowContext(ctx).Scan(&stats.Total, &stats.Unread)
	if err != nil {
		return nil, fmt.Errorf("failed to count source content: %w", err)
	}
	return stats, nil
}

func (s *Store) Categories(ctx context.Context) ([]model.Category, error) {
	rows, err := s.sb.Select("id", "name", "description", "color", "created_at").From("categories").
		OrderBy("id").RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	out := []model.Category{}
	for rows.Next() {
		var (
			c       model.Category
			created nullTime
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Color, &created); err != nil {
			return nil, err
		}
		c.CreatedAt = created.Time
		out = append(out, c)
	}
	return out, rows.Err()
}

// SeedCategories inserts categories whose names are not present yet and
// returns how many were added. Existing rows are left as they are.
func (s *Store) SeedCategories(ctx context.Context, cats []model.Category) (int, error) {
	added := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, c := range cats {
			res, err := s.sb.Insert("categories").
				Columns("name", "description", "color", "created_at").
				Values(c.Name, c.Description, c.Color, s.ts(s.now())).
				Suffix("ON CONFLICT (name) DO NOTHING").
				RunWith(tx).ExecContext(ctx)
			if err != nil {
				return fmt.Errorf("failed to seed category %q: %w", c.Name, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				added++
			}
		}
		return nil
	})
	return added, err
}

// SeedSources inserts sources whose URLs are not registered yet. Category
// names must already exist.
func (s *Store) SeedSources(ctx context.Context, sources []model.Source) (int, error) {
	added := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, src := range sources {
			catID, err := s.resolveCategory(ctx, tx, src)
			if err != nil {
				return fmt.Errorf("source %q: %w", src.URL, err)
			}
			res, err := s.sb.Insert("sources").
				Columns("name", "url", "description", "category_id", "trust", "is_active", "created_at").
				Values(src.Name, src.URL, src.Description, catID, src.Trust.String(), src.Active, s.ts(s.now())).
				Suffix("ON CONFLICT (url) DO NOTHING").
				RunWith(tx).ExecContext(ctx)
			if err != nil {
				return fmt.Errorf("failed to seed source %q: %w", src.URL, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				added++
			}
		}
		return nil
	})
	return added, err
}
