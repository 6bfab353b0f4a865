package sqlite

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/corebank/ledger/pkg/eventsourcing"
	"github.com/corebank/ledger/pkg/idgen"
)

func newTestStore(t *testing.T) *EventStore {
	t.Helper()
	store, err := NewEventStore(WithMemoryDatabase())
	if err != nil {
		t.Fatalf("create event store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testEvent(aggregateID string, number int64) *eventsourcing.Event {
	return &eventsourcing.Event{
		ID:            idgen.NewID(),
		AggregateID:   aggregateID,
		AggregateType: "BankAccount",
		EventType:     "MoneyDeposited",
		EventNumber:   number,
		Version:       number,
		Timestamp:     time.Now().UTC(),
		Data:          []byte(fmt.Sprintf(`{"amount":"%d"}`, number)),
	}
}

func TestEventStoreAppendAndLoad(t *testing.T) {
	store := newTestStore(t)

	for i := int64(1); i <= 3; i++ {
		if err := store.Append(testEvent("acc-1", i)); err != nil {
			t.Fatalf("append event %d: %v", i, err)
		}
	}

	events, err := store.LoadEvents("acc-1", 0)
	if err != nil {
		t.Fatalf("load events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, evt := range events {
		if evt.EventNumber != int64(i+1) {
			t.Errorf("event %d: expected number %d, got %d", i, i+1, evt.EventNumber)
		}
		if evt.AggregateID != "acc-1" {
			t.Errorf("event %d: unexpected aggregate ID %s", i, evt.AggregateID)
		}
	}
}

func TestEventStoreLoadAfterVersion(t *testing.T) {
	store := newTestStore(t)

	for i := int64(1); i <= 5; i++ {
		if err := store.Append(testEvent("acc-1", i)); err != nil {
			t.Fatalf("append event %d: %v", i, err)
		}
	}

	events, err := store.LoadEvents("acc-1", 3)
	if err != nil {
		t.Fatalf("load events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events after version 3, got %d", len(events))
	}
	if events[0].EventNumber != 4 || events[1].EventNumber != 5 {
		t.Errorf("expected events 4 and 5, got %d and %d",
			events[0].EventNumber, events[1].EventNumber)
	}
}

func TestEventStoreConcurrencyConflict(t *testing.T) {
	store := newTestStore(t)

	if err := store.Append(testEvent("acc-1", 1)); err != nil {
		t.Fatalf("append: %v", err)
	}

	t.Run("DuplicateEventNumber", func(t *testing.T) {
		err := store.Append(testEvent("acc-1", 1))
		if !errors.Is(err, eventsourcing.ErrConcurrencyConflict) {
			t.Fatalf("expected ErrConcurrencyConflict, got %v", err)
		}
	})

	t.Run("GapInEventNumbers", func(t *testing.T) {
		err := store.Append(testEvent("acc-1", 5))
		if !errors.Is(err, eventsourcing.ErrConcurrencyConflict) {
			t.Fatalf("expected ErrConcurrencyConflict, got %v", err)
		}
	})

	t.Run("LoserDidNotPersist", func(t *testing.T) {
		count, err := store.CountEvents()
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if count != 1 {
			t.Fatalf("expected 1 event after conflicts, got %d", count)
		}
	})
}

func TestEventStoreStreamsAreIndependent(t *testing.T) {
	store := newTestStore(t)

	if err := store.Append(testEvent("acc-1", 1)); err != nil {
		t.Fatalf("append acc-1: %v", err)
	}
	// The same event number in a different stream is not a conflict.
	if err := store.Append(testEvent("acc-2", 1)); err != nil {
		t.Fatalf("append acc-2: %v", err)
	}

	version, err := store.GetAggregateVersion("acc-2")
	if err != nil {
		t.Fatalf("get version: %v", err)
	}
	if version != 1 {
		t.Fatalf("expected version 1, got %d", version)
	}
}

func TestEventStoreGlobalOrder(t *testing.T) {
	store := newTestStore(t)

	base := time.Now().UTC()
	// Interleave two streams with increasing timestamps.
	for i := int64(1); i <= 3; i++ {
		evtA := testEvent("acc-a", i)
		evtA.Timestamp = base.Add(time.Duration(2*i) * time.Millisecond)
		if err := store.Append(evtA); err != nil {
			t.Fatalf("append acc-a %d: %v", i, err)
		}
		evtB := testEvent("acc-b", i)
		evtB.Timestamp = base.Add(time.Duration(2*i+1) * time.Millisecond)
		if err := store.Append(evtB); err != nil {
			t.Fatalf("append acc-b %d: %v", i, err)
		}
	}

	events, err := store.LoadAllEvents(0, 100)
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(events) != 6 {
		t.Fatalf("expected 6 events, got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].Timestamp.Before(events[i-1].Timestamp) {
			t.Fatalf("events out of global order at index %d", i)
		}
	}

	t.Run("Pagination", func(t *testing.T) {
		page, err := store.LoadAllEvents(4, 2)
		if err != nil {
			t.Fatalf("load page: %v", err)
		}
		if len(page) != 2 {
			t.Fatalf("expected 2 events, got %d", len(page))
		}
		if !page[0].Timestamp.Equal(events[4].Timestamp) {
			t.Errorf("pagination returned wrong slice of the log")
		}
	})
}

func TestEventStoreVersionOfMissingAggregate(t *testing.T) {
	store := newTestStore(t)

	version, err := store.GetAggregateVersion("nope")
	if err != nil {
		t.Fatalf("get version: %v", err)
	}
	if version != 0 {
		t.Fatalf("expected version 0 for missing aggregate, got %d", version)
	}
}

func TestEventStoreParallelAppendsOneWinner(t *testing.T) {
	store := newTestStore(t)

	if err := store.Append(testEvent("acc-1", 1)); err != nil {
		t.Fatalf("append event 1: %v", err)
	}

	// Race many goroutines on the same next sequence number. Exactly one
	// append may land; every other writer must see a concurrency conflict.
	const contenders = 16
	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for w := 0; w < contenders; w++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.Append(testEvent("acc-1", 2))
		}(w)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, eventsourcing.ErrConcurrencyConflict):
			conflicts++
		default:
			t.Fatalf("unexpected append error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly 1 winning append, got %d", wins)
	}
	if conflicts != contenders-1 {
		t.Fatalf("expected %d conflicts, got %d", contenders-1, conflicts)
	}

	events, err := store.LoadEvents("acc-1", 0)
	if err != nil {
		t.Fatalf("load events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events in the log, got %d", len(events))
	}
	if events[1].EventNumber != 2 {
		t.Fatalf("expected event number 2, got %d", events[1].EventNumber)
	}
}

func TestEventStoreTimestampPrecision(t *testing.T) {
	store := newTestStore(t)

	evt := testEvent("acc-1", 1)
	evt.Timestamp = time.Date(2024, 6, 1, 12, 0, 0, 123456789, time.UTC)
	if err := store.Append(evt); err != nil {
		t.Fatalf("append: %v", err)
	}

	events, err := store.LoadEvents("acc-1", 0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !events[0].Timestamp.Equal(evt.Timestamp) {
		t.Fatalf("timestamp lost precision: want %v, got %v",
			evt.Timestamp, events[0].Timestamp)
	}
	if loc := events[0].Timestamp.Location(); loc != time.UTC {
		t.Fatalf("timestamp zone: want UTC, got %v", loc)
	}
}
