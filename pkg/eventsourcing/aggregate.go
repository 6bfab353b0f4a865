package eventsourcing

import "github.com/corebank/ledger/pkg/idgen"

// Aggregate defines the interface that all aggregates must implement.
type Aggregate interface {
	// ID returns the unique identifier of the aggregate.
	ID() string

	// Type returns the type name of the aggregate.
	Type() string

	// Version returns the current version of the aggregate.
	Version() int64

	// UncommittedEvents returns events produced but not yet persisted.
	UncommittedEvents() []*Event

	// ClearUncommittedEvents clears the uncommitted events after they've
	// been persisted.
	ClearUncommittedEvents()
}

// AggregateRoot provides base functionality for all aggregates.
// Embed it in concrete aggregate implementations.
type AggregateRoot struct {
	id                string
	aggregateType     string
	version           int64
	uncommittedEvents []*Event
}

// NewAggregateRoot creates a new aggregate root with the given ID and type.
func NewAggregateRoot(id, aggregateType string) AggregateRoot {
	return AggregateRoot{
		id:            id,
		aggregateType: aggregateType,
	}
}

// ID returns the aggregate's unique identifier.
func (a *AggregateRoot) ID() string {
	return a.id
}

// Type returns the aggregate's type name.
func (a *AggregateRoot) Type() string {
	return a.aggregateType
}

// Version returns the aggregate's current version.
// Version 0 means the aggregate does not exist yet.
func (a *AggregateRoot) Version() int64 {
	return a.version
}

// UncommittedEvents returns events that haven't been persisted yet.
func (a *AggregateRoot) UncommittedEvents() []*Event {
	return a.uncommittedEvents
}

// ClearUncommittedEvents clears the uncommitted events list.
func (a *AggregateRoot) ClearUncommittedEvents() {
	a.uncommittedEvents = nil
}

// Record creates a new event at the next sequence number and queues it as
// uncommitted. The caller is responsible for mutating aggregate state with
// the same deterministic apply function used during replay.
func (a *AggregateRoot) Record(eventType string, data []byte) *Event {
	evt := &Event{
		ID:            idgen.NewID(),
		AggregateID:   a.id,
		AggregateType: a.aggregateType,
		EventType:     eventType,
		EventNumber:   a.version + 1,
		Version:       a.version + 1,
		Timestamp:     Now(),
		Data:          data,
	}
	a.uncommittedEvents = append(a.uncommittedEvents, evt)
	a.version++
	return evt
}

// LoadFromHistory advances the aggregate's version past the given events.
// The concrete aggregate applies the event payloads; the root only tracks
// the logical clock, which advances strictly by 1 per applied event.
func (a *AggregateRoot) LoadFromHistory(events []*Event) {
	for _, evt := range events {
		if evt.Version <= a.version {
			continue
		}
		a.version = evt.Version
	}
}
