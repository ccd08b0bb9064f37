/*
Package sqlite persists plan snapshots to a local SQLite database.

PURPOSE:
  The engine is memory-resident; this store is the single-device
  durability layer behind autosave and import/export. Each save appends
  one versioned snapshot row, so restarting the server restores the
  latest plan and older rows double as a short undo history.

KEY TABLE:
  snapshots: append-only rows of (schema version, store version, payload)

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging): readers never block
  the autosave writer and crash recovery is cleaner.

USAGE:
  store, err := sqlite.New("./plan.db")
  if err != nil { log.Fatal(err) }
  defer store.Close()

  data, _ := planStore.ToSnapshot()
  _ = store.SaveSnapshot(ctx, plan.SnapshotVersion, planStore.Version(), data)

SEE ALSO:
  - plan/snapshot.go: The payload format
  - api/scheduler.go: The autosave loop driving SaveSnapshot
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNoSnapshot is returned by LoadLatest when nothing has been saved yet.
var ErrNoSnapshot = errors.New("no snapshot stored")

// Store persists snapshot blobs.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New opens (or creates) the database and runs migrations.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Append-only snapshot history. The newest row is the live plan.
	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		schema_version INTEGER NOT NULL,
		store_version INTEGER NOT NULL,
		payload BLOB NOT NULL,
		saved_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_saved_at
		ON snapshots(saved_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveSnapshot appends a snapshot row.
func (s *Store) SaveSnapshot(ctx context.Context, schemaVersion int, storeVersion uint64, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (schema_version, store_version, payload, saved_at)
		VALUES (?, ?, ?, ?)`,
		schemaVersion, int64(storeVersion), payload, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LoadLatest returns the most recently saved snapshot payload.
func (s *Store) LoadLatest(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var payload []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM snapshots ORDER BY id DESC LIMIT 1`,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return payload, nil
}

// Record describes one stored snapshot, payload excluded.
type Record struct {
	ID            int64
	SchemaVersion int
	StoreVersion  uint64
	SavedAt       time.Time
}

// History lists stored snapshots, newest first.
func (s *Store) History(ctx context.Context, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, schema_version, store_version, saved_at
		FROM snapshots ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var storeVersion int64
		var savedAt string
		if err := rows.Scan(&r.ID, &r.SchemaVersion, &storeVersion, &savedAt); err != nil {
			return nil, err
		}
		r.StoreVersion = uint64(storeVersion)
		r.SavedAt, _ = time.Parse(time.RFC3339, savedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Prune keeps the newest n snapshots and deletes the rest.
func (s *Store) Prune(ctx context.Context, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if keep < 1 {
		keep = 1
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM snapshots WHERE id NOT IN (
			SELECT id FROM snapshots ORDER BY id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}
	return nil
}
