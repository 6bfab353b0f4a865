package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/corebank/ledger/pkg/eventsourcing"
)

// SnapshotStore implements eventsourcing.SnapshotStore using SQLite.
// It keeps a single row per aggregate; saving replaces any prior snapshot.
type SnapshotStore struct {
	db *sql.DB
}

// NewSnapshotStore creates a snapshot store on an existing database handle,
// typically the event store's via EventStore.DB().
func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// SaveSnapshot upserts the snapshot for an aggregate (last-write-wins).
func (s *SnapshotStore) SaveSnapshot(snapshot *eventsourcing.Snapshot) error {
	metadata, err := snapshot.Metadata.MarshalMetadata()
	if err != nil {
		return fmt.Errorf("marshal snapshot metadata: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO snapshots (aggregate_id, aggregate_type, version, data, created_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(aggregate_id) DO UPDATE SET
			aggregate_type = excluded.aggregate_type,
			version = excluded.version,
			data = excluded.data,
			created_at = excluded.created_at,
			metadata = excluded.metadata`,
		snapshot.AggregateID,
		snapshot.AggregateType,
		snapshot.Version,
		snapshot.Data,
		snapshot.CreatedAt.UnixNano(),
		sql.NullString{String: metadata, Valid: metadata != ""},
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// GetLatestSnapshot retrieves the snapshot for an aggregate.
func (s *SnapshotStore) GetLatestSnapshot(aggregateID string) (*eventsourcing.Snapshot, error) {
	var (
		snapshot  eventsourcing.Snapshot
		createdAt int64
		metadata  sql.NullString
	)
	err := s.db.QueryRow(`
		SELECT aggregate_id, aggregate_type, version, data, created_at, metadata
		FROM snapshots
		WHERE aggregate_id = ?`,
		aggregateID,
	).Scan(
		&snapshot.AggregateID,
		&snapshot.AggregateType,
		&snapshot.Version,
		&snapshot.Data,
		&createdAt,
		&metadata,
	)
	if err == sql.ErrNoRows {
		return nil, eventsourcing.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest snapshot: %w", err)
	}

	snapshot.CreatedAt = time.Unix(0, createdAt).UTC()
	if metadata.Valid && metadata.String != "" {
		m, err := eventsourcing.UnmarshalMetadata(metadata.String)
		if err != nil {
			return nil, fmt.Errorf("unmarshal snapshot metadata: %w", err)
		}
		snapshot.Metadata = m
	}
	return &snapshot, nil
}
