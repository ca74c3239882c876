// Package store persists inkwright state in SQLite: projects, resources and
// their chunks, token count caches, artefact version history, and agent run
// transparency logs.
package store

import (
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Store wraps the SQLite database. Safe for concurrent use; entity IDs are
// ULIDs, so ascending ID order is also creation order.
type Store struct {
	db     *sql.DB
	logger *zap.Logger

	mu      sync.Mutex
	entropy *rand.Rand
}

// Open opens or creates the database at dbPath and applies the schema.
func Open(dbPath string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("store")

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY churn under concurrent runs.
	db.SetMaxOpenConns(1)

	s := &Store{
		db:      db,
		logger:  logger,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Debug("store opened", zap.String("path", dbPath))
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// NewID returns a fresh ULID. ULIDs sort lexicographically by creation
// time, which the planner relies on for stable ascending-ID tie-breaks.
func (s *Store) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id               TEXT PRIMARY KEY,
		name             TEXT NOT NULL,
		default_model_id TEXT NOT NULL,
		created_at       TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS resources (
		id         TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id),
		label      TEXT NOT NULL,
		category   TEXT NOT NULL,
		origin     TEXT NOT NULL,
		text       TEXT NOT NULL,
		active     INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_resources_project ON resources(project_id, active);

	CREATE TABLE IF NOT EXISTS resource_chunks (
		id             TEXT PRIMARY KEY,
		resource_id    TEXT NOT NULL REFERENCES resources(id) ON DELETE CASCADE,
		sequence_index INTEGER NOT NULL,
		text           TEXT NOT NULL,
		token_count    INTEGER NOT NULL,
		UNIQUE (resource_id, sequence_index)
	);

	CREATE TABLE IF NOT EXISTS token_cache (
		resource_id  TEXT NOT NULL REFERENCES resources(id) ON DELETE CASCADE,
		model_id     TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		token_count  INTEGER NOT NULL,
		PRIMARY KEY (resource_id, model_id)
	);

	CREATE TABLE IF NOT EXISTS summaries (
		resource_id TEXT PRIMARY KEY REFERENCES resources(id) ON DELETE CASCADE,
		text        TEXT NOT NULL,
		created_at  TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS style_profiles (
		project_id TEXT PRIMARY KEY REFERENCES projects(id),
		text       TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS artefacts (
		id                 TEXT PRIMARY KEY,
		project_id         TEXT NOT NULL UNIQUE REFERENCES projects(id),
		title              TEXT NOT NULL,
		current_version_id TEXT,
		created_at         TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS artefact_versions (
		id             TEXT PRIMARY KEY,
		artefact_id    TEXT NOT NULL REFERENCES artefacts(id),
		created_at     TEXT NOT NULL,
		created_by     TEXT NOT NULL,
		prompt_summary TEXT NOT NULL DEFAULT '',
		content        TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_versions_artefact ON artefact_versions(artefact_id, id);

	CREATE TABLE IF NOT EXISTS agent_runs (
		id              TEXT PRIMARY KEY,
		project_id      TEXT NOT NULL REFERENCES projects(id),
		artefact_id     TEXT NOT NULL REFERENCES artefacts(id),
		agent_type      TEXT NOT NULL,
		status          TEXT NOT NULL DEFAULT 'running',
		iteration_count INTEGER NOT NULL DEFAULT 0,
		started_at      TEXT NOT NULL,
		completed_at    TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_artefact ON agent_runs(artefact_id, status);

	CREATE TABLE IF NOT EXISTS agent_run_logs (
		id              TEXT PRIMARY KEY,
		agent_run_id    TEXT NOT NULL REFERENCES agent_runs(id),
		iteration_index INTEGER NOT NULL,
		role            TEXT NOT NULL,
		content         TEXT NOT NULL,
		tokens_used     INTEGER,
		created_at      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_run_logs_run ON agent_run_logs(agent_run_id, iteration_index, id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

func now() time.Time {
	return time.Now().UTC()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
