package journal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists journal entries to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sqlx.DB
	mu     sync.RWMutex
	closed bool
}

type sqliteRow struct {
	ID         string `db:"id"`
	UnitID     string `db:"unit_id"`
	EventType  string `db:"event_type"`
	OccurredAt string `db:"occurred_at"`
	Payload    []byte `db:"payload"`
}

func (r sqliteRow) entry() (Entry, error) {
	at, err := time.Parse(time.RFC3339Nano, r.OccurredAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parse occurred_at of %s: %w", r.ID, err)
	}
	return Entry{
		ID:         r.ID,
		UnitID:     r.UnitID,
		EventType:  r.EventType,
		OccurredAt: at,
		Payload:    r.Payload,
	}, nil
}

// NewSQLiteStore creates a new SQLite journal.
// The path should be a file path (e.g., "./events.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and writes serialized.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS event_journal (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			unit_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			occurred_at TEXT NOT NULL,
			payload BLOB NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	for _, idx := range []string{
		`CREATE INDEX IF NOT EXISTS idx_event_journal_unit_id ON event_journal(unit_id)`,
		`CREATE INDEX IF NOT EXISTS idx_event_journal_event_type ON event_journal(event_type)`,
	} {
		if _, err := db.Exec(idx); err != nil {
			db.Close()
			return nil, fmt.Errorf("create index: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, entries ...Entry) error {
	if err := validate(entries); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	rows := make([]sqliteRow, len(entries))
	for i, e := range entries {
		rows[i] = sqliteRow{
			ID:         e.ID,
			UnitID:     e.UnitID,
			EventType:  e.EventType,
			OccurredAt: e.OccurredAt.UTC().Format(time.RFC3339Nano),
			Payload:    storedPayload(e.Payload),
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	for _, row := range rows {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO event_journal (id, unit_id, event_type, occurred_at, payload)
			VALUES (:id, :unit_id, :event_type, :occurred_at, :payload)
		`, row); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("append entry %s: %w", row.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, unitID string) ([]Entry, error) {
	return s.query(ctx, "unit_id", unitID)
}

// ListByType implements Store.
func (s *SQLiteStore) ListByType(ctx context.Context, eventType string) ([]Entry, error) {
	return s.query(ctx, "event_type", eventType)
}

// query selects by one indexed column. column is never user input.
func (s *SQLiteStore) query(ctx context.Context, column, value string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var rows []sqliteRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, unit_id, event_type, occurred_at, payload
		FROM event_journal
		WHERE `+column+` = ?
		ORDER BY seq
	`, value)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	entries := make([]Entry, len(rows))
	for i, r := range rows {
		e, err := r.entry()
		if err != nil {
			return nil, err
		}
		entries[i] = e
	}
	return entries, nil
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM event_journal`); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}
