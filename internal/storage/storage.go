// Package storage is the relational content repository and source registry.
// It runs on PostgreSQL in production and on SQLite for local use and tests.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/deusflow/technews/internal/logger"
)

type dialect int

const (
	dialectPostgres dialect = iota
	dialectSQLite
)

// Store implements the content repository and source registry.
type Store struct {
	db      *sql.DB
	dialect dialect
	sb      sq.StatementBuilderType
	now     func() time.Time
}

// Open connects to dsn and creates the schema if needed. postgres:// and
// postgresql:// select PostgreSQL; sqlite://path (or sqlite://:memory:)
// selects SQLite.
func Open(ctx context.Context, dsn string) (*Store, error) {
	var (
		s = &Store{now: time.Now}
		driver, source string
	)
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		s.dialect = dialectPostgres
		driver, source = "postgres", dsn
		s.sb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	case strings.HasPrefix(dsn, "sqlite://"):
		s.dialect = dialectSQLite
		driver, source = "sqlite", sqliteSource(strings.TrimPrefix(dsn, "sqlite://"))
		s.sb = sq.StatementBuilder.PlaceholderFormat(sq.Question)
	default:
		return nil, fmt.Errorf("unsupported database url %q", dsn)
	}

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if s.dialect == dialectSQLite {
		// one writer; also keeps a :memory: database alive across calls
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}
	s.db = db

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("database connected", "driver", driver)
	return s, nil
}

func sqliteSource(path string) string {
	if path == "" || path == ":memory:" {
		return "file::memory:?_pragma=foreign_keys(1)"
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return "file:" + path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) initSchema(ctx context.Context) error {
	stmts := postgresSchema
	if s.dialect == dialectSQLite {
		stmts = sqliteSchema
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// ts converts t to the value stored in timestamp columns.
func (s *Store) ts(t time.Time) interface{} {
	t = t.UTC()
	if s.dialect == dialectSQLite {
		return t.Format(sqliteTimeLayout)
	}
	return t
}

func (s *Store) tsPtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return s.ts(*t)
}

// Fixed width so stored values compare correctly as text.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000"

var timeLayouts = []string{
	sqliteTimeLayout,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

// nullTime scans timestamps from either driver.
type nullTime struct {
	Time  time.Time
	Valid bool
}

func (n *nullTime) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		n.Valid = false
		return nil
	case time.Time:
		n.Time, n.Valid = v.UTC(), true
		return nil
	case []byte:
		return n.parse(string(v))
	case string:
		return n.parse(v)
	}
	return fmt.Errorf("cannot scan %T into timestamp", src)
}

func (n *nullTime) parse(v string) error {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			n.Time, n.Valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", v)
}

func (n nullTime) ptr() *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logger.Warn("rollback failed", "error", rbErr)
		}
		return err
	}
	return tx.Commit()
}
