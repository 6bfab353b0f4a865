package eventsourcing

import (
	"encoding/json"
	"time"
)

// Snapshot represents a serialized aggregate state at a specific version.
// Only the latest snapshot per aggregate is retained; stale snapshots are
// harmless because events past the snapshot version are replayed on top.
type Snapshot struct {
	AggregateID   string
	AggregateType string
	Version       int64
	Data          []byte
	CreatedAt     time.Time
	Metadata      *SnapshotMetadata
}

// SnapshotMetadata contains information about the snapshot.
type SnapshotMetadata struct {
	Size          int64  `json:"size"`
	EventCount    int64  `json:"event_count"`
	SnapshotType  string `json:"snapshot_type"`
	SchemaVersion string `json:"schema_version"`
}

// MarshalMetadata serializes the snapshot metadata to JSON.
func (m *SnapshotMetadata) MarshalMetadata() (string, error) {
	if m == nil {
		return "", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// UnmarshalMetadata deserializes the snapshot metadata from JSON.
func UnmarshalMetadata(data string) (*SnapshotMetadata, error) {
	if data == "" {
		return nil, nil
	}
	var m SnapshotMetadata
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// SnapshotStore defines the interface for snapshot persistence.
type SnapshotStore interface {
	// SaveSnapshot upserts the snapshot for an aggregate, replacing any
	// prior one (last-write-wins).
	SaveSnapshot(snapshot *Snapshot) error

	// GetLatestSnapshot retrieves the most recent snapshot for an aggregate.
	// Returns ErrSnapshotNotFound if none exists.
	GetLatestSnapshot(aggregateID string) (*Snapshot, error)
}

// SnapshotStrategy decides when a snapshot should be taken.
type SnapshotStrategy interface {
	// ShouldSnapshot reports whether a snapshot should be taken after an
	// event with the given sequence number was persisted.
	ShouldSnapshot(version int64) bool
}

// IntervalSnapshotStrategy snapshots whenever the event number is a
// multiple of Interval.
type IntervalSnapshotStrategy struct {
	Interval int64
}

// NewIntervalSnapshotStrategy creates a strategy that snapshots every N events.
func NewIntervalSnapshotStrategy(interval int64) *IntervalSnapshotStrategy {
	return &IntervalSnapshotStrategy{Interval: interval}
}

func (s *IntervalSnapshotStrategy) ShouldSnapshot(version int64) bool {
	if s.Interval <= 0 {
		return false
	}
	return version%s.Interval == 0
}

// Snapshotter is implemented by aggregates that can be snapshotted.
type Snapshotter interface {
	// MarshalSnapshot serializes the aggregate state to bytes.
	MarshalSnapshot() ([]byte, error)

	// UnmarshalSnapshot restores the aggregate state from bytes.
	UnmarshalSnapshot(data []byte) error
}
