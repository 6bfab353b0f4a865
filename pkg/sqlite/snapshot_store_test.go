package sqlite

import (
	"errors"
	"testing"
	"time"

	"github.com/corebank/ledger/pkg/eventsourcing"
)

func TestSnapshotStoreSaveAndLoad(t *testing.T) {
	store := newTestStore(t)
	snapshots := NewSnapshotStore(store.DB())

	snapshot := &eventsourcing.Snapshot{
		AggregateID:   "acc-1",
		AggregateType: "BankAccount",
		Version:       50,
		Data:          []byte(`{"balance":"100.50"}`),
		CreatedAt:     time.Now().UTC(),
		Metadata: &eventsourcing.SnapshotMetadata{
			Size:          20,
			EventCount:    50,
			SnapshotType:  "json",
			SchemaVersion: "1.0",
		},
	}
	if err := snapshots.SaveSnapshot(snapshot); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}

	loaded, err := snapshots.GetLatestSnapshot("acc-1")
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if loaded.Version != 50 {
		t.Errorf("expected version 50, got %d", loaded.Version)
	}
	if string(loaded.Data) != string(snapshot.Data) {
		t.Errorf("snapshot data mismatch: %s", loaded.Data)
	}
	if loaded.Metadata == nil || loaded.Metadata.EventCount != 50 {
		t.Errorf("snapshot metadata not preserved: %+v", loaded.Metadata)
	}
}

func TestSnapshotStoreKeepsLatestOnly(t *testing.T) {
	store := newTestStore(t)
	snapshots := NewSnapshotStore(store.DB())

	for _, version := range []int64{50, 100} {
		err := snapshots.SaveSnapshot(&eventsourcing.Snapshot{
			AggregateID:   "acc-1",
			AggregateType: "BankAccount",
			Version:       version,
			Data:          []byte(`{}`),
			CreatedAt:     time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("save snapshot v%d: %v", version, err)
		}
	}

	loaded, err := snapshots.GetLatestSnapshot("acc-1")
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if loaded.Version != 100 {
		t.Fatalf("expected latest snapshot v100, got v%d", loaded.Version)
	}
}

func TestSnapshotStoreNotFound(t *testing.T) {
	store := newTestStore(t)
	snapshots := NewSnapshotStore(store.DB())

	_, err := snapshots.GetLatestSnapshot("missing")
	if !errors.Is(err, eventsourcing.ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound, got %v", err)
	}
}

func TestProjectionStatusStore(t *testing.T) {
	store := newTestStore(t)
	statuses, err := NewProjectionStatusStore(store.DB())
	if err != nil {
		t.Fatalf("create status store: %v", err)
	}

	t.Run("DefaultsToReady", func(t *testing.T) {
		state, err := statuses.Load("account_view")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if state.Status != eventsourcing.ProjectionStatusReady {
			t.Fatalf("expected READY default, got %s", state.Status)
		}
	})

	t.Run("RoundTripsProgress", func(t *testing.T) {
		saved := &eventsourcing.ProjectionState{
			ProjectionName: "account_view",
			Status:         eventsourcing.ProjectionStatusRebuilding,
			UpdatedAt:      time.Now().UTC(),
			Progress: &eventsourcing.RebuildProgress{
				EventsProcessed: 10,
				TotalEvents:     42,
				StartedAt:       time.Now().UTC(),
			},
		}
		if err := statuses.Save(saved); err != nil {
			t.Fatalf("save: %v", err)
		}

		state, err := statuses.Load("account_view")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if state.Status != eventsourcing.ProjectionStatusRebuilding {
			t.Errorf("expected REBUILDING, got %s", state.Status)
		}
		if state.Progress == nil || state.Progress.TotalEvents != 42 {
			t.Errorf("progress not preserved: %+v", state.Progress)
		}
	})
}
