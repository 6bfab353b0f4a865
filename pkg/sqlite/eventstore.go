// Package sqlite provides SQLite-backed implementations of the event log,
// snapshot store and projection status store. It uses the pure Go driver,
// so there are no CGo dependencies.
package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/corebank/ledger/pkg/eventsourcing"
	"github.com/corebank/ledger/pkg/sqlite/migrate"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// EventStore is a SQLite-based implementation of eventsourcing.EventStore.
type EventStore struct {
	db *sql.DB
	mu sync.RWMutex
}

type eventStoreConfig struct {
	dsn          string
	maxOpenConns int
	maxIdleConns int
	walMode      bool
	autoMigrate  bool
}

func defaultEventStoreConfig() eventStoreConfig {
	return eventStoreConfig{
		dsn:          "ledger.db",
		maxOpenConns: 25,
		maxIdleConns: 5,
		walMode:      true,
		autoMigrate:  true,
	}
}

// EventStoreOption configures an EventStore.
type EventStoreOption func(*eventStoreConfig)

// WithDSN sets the data source name (file path or ":memory:" for in-memory).
func WithDSN(dsn string) EventStoreOption {
	return func(c *eventStoreConfig) {
		c.dsn = dsn
	}
}

// WithMemoryDatabase uses an in-memory database, mainly for tests.
func WithMemoryDatabase() EventStoreOption {
	return func(c *eventStoreConfig) {
		c.dsn = ":memory:"
	}
}

// WithMaxOpenConns sets the maximum number of open connections.
func WithMaxOpenConns(n int) EventStoreOption {
	return func(c *eventStoreConfig) {
		c.maxOpenConns = n
	}
}

// WithMaxIdleConns sets the maximum number of idle connections in the pool.
func WithMaxIdleConns(n int) EventStoreOption {
	return func(c *eventStoreConfig) {
		c.maxIdleConns = n
	}
}

// WithWALMode enables write-ahead logging for better concurrency.
// Not available for :memory: databases.
func WithWALMode(enabled bool) EventStoreOption {
	return func(c *eventStoreConfig) {
		c.walMode = enabled
	}
}

// WithAutoMigrate runs pending schema migrations on startup.
func WithAutoMigrate(enabled bool) EventStoreOption {
	return func(c *eventStoreConfig) {
		c.autoMigrate = enabled
	}
}

// NewEventStore opens a SQLite event store with the given options.
func NewEventStore(opts ...EventStoreOption) (*EventStore, error) {
	config := defaultEventStoreConfig()
	for _, opt := range opts {
		opt(&config)
	}

	db, err := sql.Open("sqlite", config.dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// An in-memory database exists per connection; the pool must be pinned
	// to a single connection or each query may see a different database.
	if config.dsn == ":memory:" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(config.maxOpenConns)
		db.SetMaxIdleConns(config.maxIdleConns)
	}
	db.SetConnMaxLifetime(time.Hour)

	store := &EventStore{db: db}

	if config.walMode {
		if err := store.setWALMode(); err != nil {
			db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
	}

	if config.autoMigrate {
		if err := store.RunMigrations(); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	return store, nil
}

func (s *EventStore) setWALMode() error {
	_, err := s.db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = NORMAL;
		PRAGMA foreign_keys = ON;
	`)
	return err
}

// RunMigrations applies pending schema migrations.
func (s *EventStore) RunMigrations() error {
	m := migrate.New(s.db, "schema_migrations")
	if err := m.LoadFromFS(migrationsFS, "migrations"); err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	return m.Up()
}

// Append durably persists a single event as one atomic unit.
//
// The version pre-check inside the transaction catches most lost races
// early; the UNIQUE index on (aggregate_id, event_number) is the
// authoritative guard, so a conflicting insert that slips past the check
// still fails and is reported as ErrConcurrencyConflict.
func (s *EventStore) Append(event *eventsourcing.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var currentVersion int64
	err = tx.QueryRow(
		`SELECT COALESCE(MAX(event_number), 0) FROM events WHERE aggregate_id = ?`,
		event.AggregateID,
	).Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("check current version: %w", err)
	}
	if currentVersion != event.EventNumber-1 {
		return eventsourcing.ErrConcurrencyConflict
	}

	_, err = tx.Exec(`
		INSERT INTO events (event_id, aggregate_id, aggregate_type, event_type, event_number, version, timestamp, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.AggregateID,
		event.AggregateType,
		event.EventType,
		event.EventNumber,
		event.Version,
		event.Timestamp.UnixNano(),
		event.Data,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return eventsourcing.ErrConcurrencyConflict
		}
		return fmt.Errorf("insert event: %w", err)
	}

	return tx.Commit()
}

// LoadEvents loads the events for an aggregate with version strictly
// greater than afterVersion, ascending by version.
func (s *EventStore) LoadEvents(aggregateID string, afterVersion int64) ([]*eventsourcing.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT event_id, aggregate_id, aggregate_type, event_type, event_number, version, timestamp, data
		FROM events
		WHERE aggregate_id = ? AND event_number > ?
		ORDER BY event_number ASC`,
		aggregateID, afterVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// LoadAllEvents loads events across all aggregates ordered by
// (timestamp, event number), for global replay.
func (s *EventStore) LoadAllEvents(offset, limit int) ([]*eventsourcing.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT event_id, aggregate_id, aggregate_type, event_type, event_number, version, timestamp, data
		FROM events
		ORDER BY timestamp ASC, event_number ASC
		LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("query all events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// CountEvents returns the total number of events in the store.
func (s *EventStore) CountEvents() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

// GetAggregateVersion returns the current version of an aggregate,
// 0 if the aggregate doesn't exist.
func (s *EventStore) GetAggregateVersion(aggregateID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var version int64
	err := s.db.QueryRow(
		`SELECT COALESCE(MAX(event_number), 0) FROM events WHERE aggregate_id = ?`,
		aggregateID,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("get aggregate version: %w", err)
	}
	return version, nil
}

// DB returns the underlying database handle for co-located stores
// (snapshots, read models, projection status).
func (s *EventStore) DB() *sql.DB {
	return s.db
}

// Close closes the event store and releases resources.
func (s *EventStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func scanEvents(rows *sql.Rows) ([]*eventsourcing.Event, error) {
	var events []*eventsourcing.Event
	for rows.Next() {
		var evt eventsourcing.Event
		var ts int64
		err := rows.Scan(
			&evt.ID,
			&evt.AggregateID,
			&evt.AggregateType,
			&evt.EventType,
			&evt.EventNumber,
			&evt.Version,
			&ts,
			&evt.Data,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		evt.Timestamp = time.Unix(0, ts).UTC()
		events = append(events, &evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT ||
		code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
