package journal

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	dialectPostgres = "postgres"
	defaultTable    = "event_journal"

	colSeq        = "seq"
	colID         = "id"
	colUnitID     = "unit_id"
	colEventType  = "event_type"
	colOccurredAt = "occurred_at"
	colPayload    = "payload"
)

// PostgresStore persists journal entries to PostgreSQL through a pgx pool.
type PostgresStore struct {
	pool    *pgxpool.Pool
	owned   bool
	table   string
	builder goqu.DialectWrapper

	mu     sync.RWMutex
	closed bool
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithTable sets the journal table name. The default is "event_journal".
func WithTable(name string) PostgresOption {
	return func(s *PostgresStore) {
		if name != "" {
			s.table = name
		}
	}
}

// NewPostgresStore connects to dsn and prepares the journal table.
// The store owns the pool and closes it on Close.
func NewPostgresStore(ctx context.Context, dsn string, opts ...PostgresOption) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewPostgresStoreFromPool(ctx, pool, opts...)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewPostgresStoreFromPool prepares the journal table on an existing pool.
// The caller keeps ownership of pool.
func NewPostgresStoreFromPool(ctx context.Context, pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("postgres pool must not be nil")
	}
	s := &PostgresStore{
		pool:    pool,
		table:   defaultTable,
		builder: goqu.Dialect(dialectPostgres),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	table := pgx.Identifier{s.table}.Sanitize()
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + table + ` (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			unit_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL,
			payload JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS ` + pgx.Identifier{s.table + "_unit_id_idx"}.Sanitize() +
			` ON ` + table + ` (unit_id)`,
		`CREATE INDEX IF NOT EXISTS ` + pgx.Identifier{s.table + "_event_type_idx"}.Sanitize() +
			` ON ` + table + ` (event_type)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate journal table: %w", err)
		}
	}
	return nil
}

// Append implements Store.
func (s *PostgresStore) Append(ctx context.Context, entries ...Entry) error {
	if err := validate(entries); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}

	rows := make([]any, len(entries))
	for i, e := range entries {
		rows[i] = goqu.Record{
			colID:         e.ID,
			colUnitID:     e.UnitID,
			colEventType:  e.EventType,
			colOccurredAt: e.OccurredAt.UTC(),
			colPayload:    string(storedPayload(e.Payload)),
		}
	}

	sqlQuery, args, err := s.builder.Insert(s.table).Prepared(true).Rows(rows...).ToSQL()
	if err != nil {
		return fmt.Errorf("build append query: %w", err)
	}
	if _, err := s.pool.Exec(ctx, sqlQuery, args...); err != nil {
		return fmt.Errorf("append entries: %w", err)
	}
	return nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context, unitID string) ([]Entry, error) {
	return s.query(ctx, goqu.Ex{colUnitID: unitID})
}

// ListByType implements Store.
func (s *PostgresStore) ListByType(ctx context.Context, eventType string) ([]Entry, error) {
	return s.query(ctx, goqu.Ex{colEventType: eventType})
}

func (s *PostgresStore) query(ctx context.Context, where goqu.Ex) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	sqlQuery, args, err := s.builder.From(s.table).
		Prepared(true).
		Select(colID, colUnitID, colEventType, colOccurredAt, colPayload).
		Where(where).
		Order(goqu.I(colSeq).Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	rows, err := s.pool.Query(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UnitID, &e.EventType, &e.OccurredAt, &e.Payload); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.OccurredAt = e.OccurredAt.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// Count implements Store.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	sqlQuery, _, err := s.builder.From(s.table).Select(goqu.COUNT(goqu.Star())).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}

	var n int
	if err := s.pool.QueryRow(ctx, sqlQuery).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

// Close implements Store. The pool is closed only if the store created it.
func (s *PostgresStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.owned {
		s.pool.Close()
	}
	return nil
}
