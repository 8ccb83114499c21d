package capture

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// currentSchemaVersion is bumped when a schema change needs data
// migration rather than a plain additive CREATE TABLE IF NOT EXISTS.
const currentSchemaVersion = 1

// pruneBatchSize bounds how many rows a single cleanup DELETE touches
// before re-checking, so a large backlog never holds the writer lock for
// one unbounded transaction.
const pruneBatchSize = 500

const schema = `
CREATE TABLE IF NOT EXISTS content_store (
	hash             TEXT PRIMARY KEY,
	content          BLOB    NOT NULL,
	content_type     TEXT    NOT NULL,
	byte_size        INTEGER NOT NULL,
	created_at       INTEGER NOT NULL,
	last_accessed_at INTEGER NOT NULL,
	access_count     INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_content_store_accessed ON content_store(last_accessed_at);

CREATE TABLE IF NOT EXISTS clipboard_captures (
	id              TEXT PRIMARY KEY,
	content_hash    TEXT    NOT NULL,
	content_preview TEXT    NOT NULL,
	source_url      TEXT,
	source_title    TEXT,
	captured_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_clipboard_time ON clipboard_captures(captured_at DESC);

CREATE TABLE IF NOT EXISTS browse_captures (
	id                   TEXT PRIMARY KEY,
	url                  TEXT    NOT NULL,
	page_title           TEXT,
	entered_at           INTEGER NOT NULL,
	left_at              INTEGER,
	scroll_depth_percent INTEGER
);
CREATE INDEX IF NOT EXISTS idx_browse_time ON browse_captures(entered_at DESC);
CREATE INDEX IF NOT EXISTS idx_browse_url ON browse_captures(url);

CREATE TABLE IF NOT EXISTS search_captures (
	id             TEXT PRIMARY KEY,
	query          TEXT    NOT NULL,
	search_engine  TEXT    NOT NULL,
	result_clicked TEXT,
	timestamp      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_search_time ON search_captures(timestamp DESC);

CREATE TABLE IF NOT EXISTS ai_exchange_captures (
	id               TEXT PRIMARY KEY,
	question_hash    TEXT    NOT NULL,
	question_preview TEXT    NOT NULL,
	answer_hash      TEXT    NOT NULL,
	answer_preview   TEXT    NOT NULL,
	model            TEXT    NOT NULL,
	context_doc_id   TEXT,
	timestamp        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ai_exchange_time ON ai_exchange_captures(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_ai_exchange_doc ON ai_exchange_captures(context_doc_id);

CREATE TABLE IF NOT EXISTS doc_edit_captures (
	id           TEXT PRIMARY KEY,
	doc_id       TEXT    NOT NULL,
	doc_title    TEXT    NOT NULL,
	edit_preview TEXT    NOT NULL,
	char_delta   INTEGER NOT NULL,
	started_at   INTEGER NOT NULL,
	ended_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_doc_edit_time ON doc_edit_captures(ended_at DESC);
CREATE INDEX IF NOT EXISTS idx_doc_edit_doc ON doc_edit_captures(doc_id);

CREATE TABLE IF NOT EXISTS source_links (
	id               TEXT PRIMARY KEY,
	doc_id           TEXT    NOT NULL,
	section_path     TEXT,
	content_hash     TEXT    NOT NULL,
	content_preview  TEXT,
	created_at       INTEGER NOT NULL,
	confidence_score REAL    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_source_links_doc ON source_links(doc_id);

CREATE TABLE IF NOT EXISTS linked_sources (
	id                TEXT PRIMARY KEY,
	link_id           TEXT    NOT NULL REFERENCES source_links(id) ON DELETE CASCADE,
	source_type       TEXT    NOT NULL,
	source_id         TEXT    NOT NULL,
	contribution_type TEXT    NOT NULL,
	timestamp         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_linked_sources_link ON linked_sources(link_id);

CREATE TABLE IF NOT EXISTS capture_config (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS work_blocks (
	id            TEXT PRIMARY KEY,
	context_type  TEXT    NOT NULL,
	context_id    TEXT,
	context_title TEXT,
	started_at    INTEGER NOT NULL,
	ended_at      INTEGER NOT NULL,
	duration_secs INTEGER NOT NULL,
	auto_summary  TEXT,
	edit_count    INTEGER NOT NULL DEFAULT 0,
	browse_count  INTEGER NOT NULL DEFAULT 0,
	research_urls TEXT    NOT NULL DEFAULT '[]',
	user_summary  TEXT,
	notes         TEXT,
	tags          TEXT    NOT NULL DEFAULT '[]',
	is_pinned     INTEGER NOT NULL DEFAULT 0,
	is_manual     INTEGER NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_work_blocks_ended ON work_blocks(ended_at DESC);
CREATE INDEX IF NOT EXISTS idx_work_blocks_context ON work_blocks(context_type, context_id);

CREATE TABLE IF NOT EXISTS workstream_sessions (
	id         TEXT PRIMARY KEY,
	title      TEXT,
	started_at INTEGER NOT NULL,
	ended_at   INTEGER,
	block_ids  TEXT    NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_sessions_started ON workstream_sessions(started_at DESC);

CREATE TABLE IF NOT EXISTS milestones (
	id             TEXT PRIMARY KEY,
	context_type   TEXT    NOT NULL,
	context_id     TEXT    NOT NULL,
	milestone_type TEXT    NOT NULL,
	timestamp      INTEGER NOT NULL,
	note           TEXT
);
CREATE INDEX IF NOT EXISTS idx_milestones_context ON milestones(context_type, context_id);
CREATE INDEX IF NOT EXISTS idx_milestones_time ON milestones(timestamp DESC);
`

// Store is the single SQLite-backed persistence boundary for the capture
// and provenance layers. The connection pool is capped at one connection
// so every statement is naturally serialized — there is exactly one
// writer, matching the single-process daemon model.
type Store struct {
	db   *sql.DB
	path string
}

// OpenStore opens or creates a SQLite database at path with WAL mode and
// foreign keys enabled (linked_sources cascades off source_links).
func OpenStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA cache_size = -2000",
		"PRAGMA auto_vacuum = 2",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, path: path}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	if err := os.Chmod(path, 0o600); err != nil {
		slog.Warn("failed to tighten database file permissions", "error", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate advances the schema via PRAGMA user_version. There is only one
// version today; future migrations add a case between the stored version
// and currentSchemaVersion.
func (s *Store) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if version >= currentSchemaVersion {
		return nil
	}
	_, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion))
	return err
}
