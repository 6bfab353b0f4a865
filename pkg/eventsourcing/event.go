package eventsourcing

import "time"

// Event represents a domain event that has occurred in the system.
// Events are immutable facts about state changes: once appended to an
// EventStore they are never updated or deleted.
type Event struct {
	// ID is the unique identifier for this event (lexicographically sortable).
	ID string

	// AggregateID is the identifier of the aggregate this event belongs to.
	AggregateID string

	// AggregateType is the type name of the aggregate (e.g. "BankAccount").
	AggregateType string

	// EventType is the kind of event (e.g. "AccountCreated").
	EventType string

	// EventNumber is the 1-based, gapless per-aggregate sequence number.
	// (AggregateID, EventNumber) is unique across the store.
	EventNumber int64

	// Version is the aggregate's logical clock after applying this event.
	// It always equals EventNumber at append time.
	Version int64

	// Timestamp is when the event was created.
	Timestamp time.Time

	// Data is the JSON-encoded, kind-specific payload of the event.
	Data []byte
}

// EventStore defines the interface for persisting and retrieving events.
type EventStore interface {
	// Append durably persists a single event as one atomic unit.
	// Returns ErrConcurrencyConflict if an event already exists for
	// (AggregateID, EventNumber); the uniqueness constraint at the storage
	// layer is the authoritative guard against racing writers.
	Append(event *Event) error

	// LoadEvents loads the events for an aggregate with version strictly
	// greater than afterVersion, ascending by version. Empty if none.
	LoadEvents(aggregateID string, afterVersion int64) ([]*Event, error)

	// LoadAllEvents loads events across all aggregates ordered by
	// (timestamp, event number), for global replay. Paged by offset/limit.
	LoadAllEvents(offset, limit int) ([]*Event, error)

	// CountEvents returns the total number of events in the store.
	CountEvents() (int64, error)

	// GetAggregateVersion returns the current version of an aggregate.
	// Returns 0 if the aggregate doesn't exist.
	GetAggregateVersion(aggregateID string) (int64, error)

	// Close closes the event store and releases resources.
	Close() error
}
