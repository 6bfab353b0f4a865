package account

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/corebank/ledger/pkg/eventsourcing"
	"github.com/corebank/ledger/pkg/sqlite"
)

func newTestRepository(t *testing.T, interval int64) (*Repository, *sqlite.EventStore) {
	t.Helper()
	store, err := sqlite.NewEventStore(sqlite.WithMemoryDatabase())
	if err != nil {
		t.Fatalf("create event store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	var strategy eventsourcing.SnapshotStrategy
	if interval > 0 {
		strategy = eventsourcing.NewIntervalSnapshotStrategy(interval)
	}
	repo := NewRepository(store, sqlite.NewSnapshotStore(store.DB()), strategy, nil, nil, nil)
	return repo, store
}

func TestRepositorySaveAndLoad(t *testing.T) {
	repo, _ := newTestRepository(t, 0)
	ctx := context.Background()

	acct := mustCreate(t, "acc-1", "100")
	if err := acct.Deposit(decimal.NewFromInt(25), "first", "tx-1"); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := repo.Save(ctx, acct); err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(acct.UncommittedEvents()) != 0 {
		t.Errorf("uncommitted events not cleared after save")
	}

	loaded, err := repo.Load(ctx, "acc-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Balance().String() != "125" {
		t.Errorf("expected balance 125, got %s", loaded.Balance())
	}
	if loaded.Version() != 2 {
		t.Errorf("expected version 2, got %d", loaded.Version())
	}
}

func TestRepositoryLoadMissingAccount(t *testing.T) {
	repo, _ := newTestRepository(t, 0)

	_, err := repo.Load(context.Background(), "missing")
	if !errors.Is(err, eventsourcing.ErrAggregateNotFound) {
		t.Fatalf("expected ErrAggregateNotFound, got %v", err)
	}
}

func TestRepositorySnapshotEquivalence(t *testing.T) {
	// With an interval of 3, a snapshot lands at versions 3 and 6.
	repo, store := newTestRepository(t, 3)
	ctx := context.Background()

	acct := mustCreate(t, "acc-1", "0")
	if err := repo.Save(ctx, acct); err != nil {
		t.Fatalf("save create: %v", err)
	}

	for i := 1; i <= 6; i++ {
		loaded, err := repo.Load(ctx, "acc-1")
		if err != nil {
			t.Fatalf("load %d: %v", i, err)
		}
		if err := loaded.Deposit(decimal.NewFromInt(10), "dep", txID(i)); err != nil {
			t.Fatalf("deposit %d: %v", i, err)
		}
		if err := repo.Save(ctx, loaded); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	snapshots := sqlite.NewSnapshotStore(store.DB())
	snapshot, err := snapshots.GetLatestSnapshot("acc-1")
	if err != nil {
		t.Fatalf("expected a snapshot: %v", err)
	}
	if snapshot.Version != 6 {
		t.Errorf("expected snapshot at version 6, got %d", snapshot.Version)
	}

	// Loading through the snapshot must match a full replay.
	viaSnapshot, err := repo.Load(ctx, "acc-1")
	if err != nil {
		t.Fatalf("load via snapshot: %v", err)
	}

	events, err := store.LoadEvents("acc-1", 0)
	if err != nil {
		t.Fatalf("load events: %v", err)
	}
	viaReplay := New("acc-1")
	if err := viaReplay.Replay(events); err != nil {
		t.Fatalf("replay: %v", err)
	}

	if viaSnapshot.Balance().String() != viaReplay.Balance().String() {
		t.Errorf("snapshot load balance %s != replay balance %s",
			viaSnapshot.Balance(), viaReplay.Balance())
	}
	if viaSnapshot.Version() != viaReplay.Version() {
		t.Errorf("snapshot load version %d != replay version %d",
			viaSnapshot.Version(), viaReplay.Version())
	}
}

func TestRepositoryConflictPropagates(t *testing.T) {
	repo, _ := newTestRepository(t, 0)
	ctx := context.Background()

	first := mustCreate(t, "acc-1", "0")
	if err := repo.Save(ctx, first); err != nil {
		t.Fatalf("save: %v", err)
	}

	// A second writer built from the same (now stale) version loses.
	stale := mustCreate(t, "acc-1", "0")
	err := repo.Save(ctx, stale)
	if !errors.Is(err, eventsourcing.ErrConcurrencyConflict) {
		t.Fatalf("expected ErrConcurrencyConflict, got %v", err)
	}
}

func txID(i int) string {
	return "tx-" + string(rune('a'+i))
}
