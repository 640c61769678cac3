/*
Package sqlite provides a SQLite-backed RecordStore and AuditLog.

PURPOSE:
  Persists the path-addressed records (attendance, leaveRequests, salaries)
  and the append-only audit log in one SQLite file. In production the same
  patterns apply to PostgreSQL with minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  generic.RecordStore: Read/Write/CompareAndWrite/Delete/List/Subscribe
  generic.AuditLog:    Append/Query

KEY TABLES:
  records:   one row per path, value is the JSON document, version counts
             writes since the row was created
  audit_log: who did what when; never updated or deleted

PREFIX LISTING:
  List("leaveRequests/alice") selects paths in the half-open range
  ["leaveRequests/alice/", "leaveRequests/alice0"). '0' is the byte after
  '/', so the range covers exactly the descendants and uses the primary key
  index. LIKE is avoided because usernames may contain '_' or '%'.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single open connection, which
  also keeps ":memory:" databases shared across calls. CompareAndWrite
  checks and writes inside one SQL transaction.

WAL MODE:
  Opened with WAL (Write-Ahead Logging): readers don't block the writer.

SUBSCRIBE:
  See watch.go. Changes are discovered by polling so writes from another
  process sharing the file are seen too.

USAGE:
  store, err := sqlite.New("./data/workforce.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/workforce-engine/generic"
)

// Store implements generic.RecordStore and generic.AuditLog using SQLite.
type Store struct {
	db    *sql.DB
	mu    sync.RWMutex
	clock generic.Clock

	watch *watcher
}

var (
	_ generic.RecordStore = (*Store)(nil)
	_ generic.AuditLog    = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	store.watch = newWatcher(store, DefaultPollInterval)

	return store, nil
}

// WithClock pins the UpdatedAt stamp for tests.
func (s *Store) WithClock(c generic.Clock) *Store {
	s.clock = c
	return s
}

// Close stops the watcher and closes the database connection.
func (s *Store) Close() error {
	s.watch.stop()
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Path-addressed records
	CREATE TABLE IF NOT EXISTS records (
		path TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		version INTEGER NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Audit log (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		timestamp TEXT NOT NULL,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		subject TEXT NOT NULL,
		reference TEXT,
		before_json TEXT,
		after_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_subject
		ON audit_log(subject, timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_actor
		ON audit_log(actor, timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RECORD STORE (generic.RecordStore interface)
// =============================================================================

// Read returns the record at path, or ok=false when there is none.
func (s *Store) Read(ctx context.Context, path string) (generic.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok, err := readRecord(ctx, s.db, path)
	if err != nil {
		return generic.Record{}, false, generic.StoreFailure("read", path, err)
	}
	return rec, ok, nil
}

// Write overwrites the record at path and bumps its version.
func (s *Store) Write(ctx context.Context, path string, value []byte) (generic.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return generic.Record{}, generic.StoreFailure("write", path, err)
	}
	defer tx.Rollback()

	current, _, err := readRecord(ctx, tx, path)
	if err != nil {
		return generic.Record{}, generic.StoreFailure("write", path, err)
	}
	rec, err := s.upsert(ctx, tx, path, value, current.Version+1)
	if err != nil {
		return generic.Record{}, err
	}
	if err := tx.Commit(); err != nil {
		return generic.Record{}, generic.StoreFailure("write", path, err)
	}
	return rec, nil
}

// CompareAndWrite writes only if the stored version equals version.
// version 0 requires that no record exists yet.
func (s *Store) CompareAndWrite(ctx context.Context, path string, value []byte, version int64) (generic.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return generic.Record{}, generic.StoreFailure("write", path, err)
	}
	defer tx.Rollback()

	current, _, err := readRecord(ctx, tx, path)
	if err != nil {
		return generic.Record{}, generic.StoreFailure("write", path, err)
	}
	if current.Version != version {
		return generic.Record{}, &generic.ConflictError{Path: path, Expected: version, Actual: current.Version}
	}
	rec, err := s.upsert(ctx, tx, path, value, version+1)
	if err != nil {
		return generic.Record{}, err
	}
	if err := tx.Commit(); err != nil {
		return generic.Record{}, generic.StoreFailure("write", path, err)
	}
	return rec, nil
}

func (s *Store) upsert(ctx context.Context, tx *sql.Tx, path string, value []byte, version int64) (generic.Record, error) {
	rec := generic.Record{
		Path:      path,
		Value:     append([]byte(nil), value...),
		Version:   version,
		UpdatedAt: s.clock.Now(),
	}

	query := `
		INSERT INTO records (path, value, version, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			value = excluded.value,
			version = excluded.version,
			updated_at = excluded.updated_at
	`
	_, err := tx.ExecContext(ctx, query,
		rec.Path,
		string(rec.Value),
		rec.Version,
		rec.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return generic.Record{}, generic.StoreFailure("write", path, err)
	}
	return rec, nil
}

// Delete removes the record at path. Deleting a missing path is not an error.
func (s *Store) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE path = ?", path); err != nil {
		return generic.StoreFailure("delete", path, err)
	}
	return nil
}

// List returns every record strictly under prefix, in path order. An empty
// prefix lists everything.
func (s *Store) List(ctx context.Context, prefix string) ([]generic.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT path, value, version, updated_at FROM records`
	var args []any
	if prefix != "" {
		lo, hi := prefixRange(prefix)
		query += ` WHERE path >= ? AND path < ?`
		args = append(args, lo, hi)
	}
	query += ` ORDER BY path ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, generic.StoreFailure("list", prefix, err)
	}
	defer rows.Close()

	var result []generic.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, generic.StoreFailure("list", prefix, err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, generic.StoreFailure("list", prefix, err)
	}
	return result, nil
}

// Subscribe calls fn for changes at or under path, as seen by the poller.
func (s *Store) Subscribe(path string, fn func(generic.ChangeEvent)) func() {
	return s.watch.subscribe(path, fn)
}

// =============================================================================
// AUDIT LOG (generic.AuditLog interface)
// =============================================================================

// Append inserts an audit entry. There is no update or delete.
func (s *Store) Append(ctx context.Context, entry generic.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO audit_log
		(id, timestamp, actor, action, subject, reference, before_json, after_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.Timestamp.UTC().Format(time.RFC3339Nano),
		entry.Actor,
		string(entry.Action),
		entry.Subject,
		nullString(entry.Reference),
		nullString(entry.Before),
		nullString(entry.After),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// Query returns matching entries in append order.
func (s *Store) Query(ctx context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if filter.Subject != nil {
		where = append(where, "subject = ?")
		args = append(args, *filter.Subject)
	}
	if filter.Actor != nil {
		where = append(where, "actor = ?")
		args = append(args, *filter.Actor)
	}
	if len(filter.Actions) > 0 {
		marks := make([]string, len(filter.Actions))
		for i, a := range filter.Actions {
			marks[i] = "?"
			args = append(args, string(a))
		}
		where = append(where, "action IN ("+strings.Join(marks, ", ")+")")
	}

	query := `
		SELECT id, timestamp, actor, action, subject, reference, before_json, after_json
		FROM audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	// Time bounds are applied in Go: RFC3339Nano text does not sort
	// lexically when fractional second widths differ.
	var result []generic.AuditEntry
	for rows.Next() {
		var (
			e                        generic.AuditEntry
			ts, action               string
			reference, before, after sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &e.Actor, &action, &e.Subject, &reference, &before, &after); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("failed to parse audit timestamp %q: %w", ts, err)
		}
		e.Action = generic.AuditAction(action)
		e.Reference = reference.String
		e.Before = before.String
		e.After = after.String

		if !filter.Matches(e) {
			continue
		}
		result = append(result, e)
		if filter.Limit > 0 && len(result) == filter.Limit {
			break
		}
	}
	return result, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func readRecord(ctx context.Context, db queryer, path string) (generic.Record, bool, error) {
	row := db.QueryRowContext(ctx,
		"SELECT path, value, version, updated_at FROM records WHERE path = ?", path)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.Record{}, false, nil
	}
	if err != nil {
		return generic.Record{}, false, err
	}
	return rec, true, nil
}

func scanRecord(row scanner) (generic.Record, error) {
	var (
		rec       generic.Record
		value     string
		updatedAt string
	)
	if err := row.Scan(&rec.Path, &value, &rec.Version, &updatedAt); err != nil {
		return generic.Record{}, err
	}
	rec.Value = []byte(value)
	t, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return generic.Record{}, fmt.Errorf("failed to parse updated_at %q: %w", updatedAt, err)
	}
	rec.UpdatedAt = t
	return rec, nil
}

// prefixRange returns [lo, hi) covering every path strictly under prefix.
func prefixRange(prefix string) (string, string) {
	p := strings.TrimSuffix(prefix, "/")
	return p + "/", p + "0"
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
