package storage

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS categories (
		id BIGSERIAL PRIMARY KEY,
		name TEXT UNIQUE NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		color TEXT NOT NULL DEFAULT '#007bff',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS sources (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		url TEXT UNIQUE NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category_id BIGINT REFERENCES categories(id),
		trust TEXT NOT NULL DEFAULT 'broad',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		last_fetched TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS content (
		id BIGSERIAL PRIMARY KEY,
		guid TEXT UNIQUE NOT NULL,
		title TEXT NOT NULL,
		summary TEXT,
		summarized BOOLEAN NOT NULL DEFAULT FALSE,
		content_html TEXT NOT NULL DEFAULT '',
		content_text TEXT NOT NULL DEFAULT '',
		link TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		author TEXT NOT NULL DEFAULT '',
		published_date TIMESTAMPTZ,
		source_url TEXT NOT NULL DEFAULT '',
		source_id BIGINT REFERENCES sources(id),
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		is_bookmarked BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_content_published ON content(published_date)`,
	`CREATE INDEX IF NOT EXISTS idx_content_created ON content(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_content_source ON content(source_id)`,
	`CREATE TABLE IF NOT EXISTS content_category (
		content_id BIGINT NOT NULL REFERENCES content(id),
		category_id BIGINT NOT NULL REFERENCES categories(id),
		is_primary BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (content_id, category_id)
	)`,
	`CREATE TABLE IF NOT EXISTS reading_history (
		id BIGSERIAL PRIMARY KEY,
		content_id BIGINT NOT NULL REFERENCES content(id),
		read_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		read_duration INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_history_read_at ON reading_history(read_at)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS categories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		color TEXT NOT NULL DEFAULT '#007bff',
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		url TEXT UNIQUE NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category_id INTEGER REFERENCES categories(id),
		trust TEXT NOT NULL DEFAULT 'broad',
		is_active INTEGER NOT NULL DEFAULT 1,
		last_fetched TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS content (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		guid TEXT UNIQUE NOT NULL,
		title TEXT NOT NULL,
		summary TEXT,
		summarized INTEGER NOT NULL DEFAULT 0,
		content_html TEXT NOT NULL DEFAULT '',
		content_text TEXT NOT NULL DEFAULT '',
		link TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		author TEXT NOT NULL DEFAULT '',
		published_date TEXT,
		source_url TEXT NOT NULL DEFAULT '',
		source_id INTEGER REFERENCES sources(id),
		is_read INTEGER NOT NULL DEFAULT 0,
		is_bookmarked INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_content_published ON content(published_date)`,
	`CREATE INDEX IF NOT EXISTS idx_content_created ON content(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_content_source ON content(source_id)`,
	`CREATE TABLE IF NOT EXISTS content_category (
		content_id INTEGER NOT NULL REFERENCES content(id),
		category_id INTEGER NOT NULL REFERENCES categories(id),
		is_primary INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (content_id, category_id)
	)`,
	`CREATE TABLE IF NOT EXISTS reading_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		content_id INTEGER NOT NULL REFERENCES content(id),
		read_at TEXT NOT NULL,
		read_duration INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_history_read_at ON reading_history(read_at)`,
}
