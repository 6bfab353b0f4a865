package eventsourcing

import (
	"context"
	"time"
)

// Projection builds a read model from events. Handle must be idempotent:
// replaying an already-applied event must not change the read model again.
type Projection interface {
	// Name returns the unique name of this projection.
	Name() string

	// Handle applies one event to the read model.
	Handle(ctx context.Context, event *Event) error

	// Reset clears the projection state, for rebuilding.
	Reset(ctx context.Context) error
}

// ProjectionStatus represents the operational status of a projection.
type ProjectionStatus string

const (
	// ProjectionStatusReady indicates the projection is up-to-date.
	ProjectionStatusReady ProjectionStatus = "READY"

	// ProjectionStatusRebuilding indicates a rebuild is in progress.
	ProjectionStatusRebuilding ProjectionStatus = "REBUILDING"

	// ProjectionStatusFailed indicates the projection hit an error.
	ProjectionStatusFailed ProjectionStatus = "FAILED"
)

// ProjectionState tracks the operational state of a projection.
type ProjectionState struct {
	ProjectionName string
	Status         ProjectionStatus
	Message        string
	UpdatedAt      time.Time
	Progress       *RebuildProgress
}

// RebuildProgress tracks progress during a projection rebuild.
type RebuildProgress struct {
	EventsProcessed int64     `json:"events_processed"`
	TotalEvents     int64     `json:"total_events"`
	StartedAt       time.Time `json:"started_at"`
}

// ProjectionStatusStore persists projection status for monitoring.
type ProjectionStatusStore interface {
	// Save saves the projection status.
	Save(state *ProjectionState) error

	// Load loads the projection status. A projection with no recorded
	// status is reported as READY.
	Load(projectionName string) (*ProjectionState, error)
}
