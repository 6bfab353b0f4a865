package account

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/corebank/ledger/pkg/eventsourcing"
	"github.com/corebank/ledger/pkg/observability"
)

// Repository loads and persists Account aggregates. Loading reads the
// latest snapshot (if any) and replays the tail of events on top; saving
// appends each produced event, hands it to the projection, and snapshots
// at the configured interval.
type Repository struct {
	events     eventsourcing.EventStore
	snapshots  eventsourcing.SnapshotStore
	strategy   eventsourcing.SnapshotStrategy
	projection eventsourcing.Projection
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewRepository creates a repository. projection may be nil when no read
// models are maintained (some tests do this).
func NewRepository(
	events eventsourcing.EventStore,
	snapshots eventsourcing.SnapshotStore,
	strategy eventsourcing.SnapshotStrategy,
	projection eventsourcing.Projection,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NopMetrics()
	}
	return &Repository{
		events:     events,
		snapshots:  snapshots,
		strategy:   strategy,
		projection: projection,
		logger:     logger,
		metrics:    metrics,
	}
}

// Load rehydrates an account from snapshot plus tail events.
// Returns eventsourcing.ErrAggregateNotFound if the account has no events.
func (r *Repository) Load(ctx context.Context, id string) (*Account, error) {
	r.metrics.AggregateLoads.Add(ctx, 1)

	acct := New(id)
	fromVersion := int64(0)

	snapshot, err := r.snapshots.GetLatestSnapshot(id)
	switch {
	case err == nil:
		if err := acct.UnmarshalSnapshot(snapshot.Data); err != nil {
			// A corrupt snapshot is recoverable: fall back to full replay.
			r.logger.Warn("snapshot unreadable, replaying full history",
				"aggregate_id", id, "error", err)
			acct = New(id)
		} else {
			acct.LoadFromHistory([]*eventsourcing.Event{{Version: snapshot.Version}})
			fromVersion = snapshot.Version
			r.metrics.SnapshotHits.Add(ctx, 1)
		}
	case err == eventsourcing.ErrSnapshotNotFound:
		r.metrics.SnapshotMisses.Add(ctx, 1)
	default:
		r.logger.Warn("snapshot load failed, replaying full history",
			"aggregate_id", id, "error", err)
	}

	events, err := r.events.LoadEvents(id, fromVersion)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	if len(events) == 0 && fromVersion == 0 {
		return nil, eventsourcing.ErrAggregateNotFound
	}

	if err := acct.Replay(events); err != nil {
		return nil, fmt.Errorf("replay events: %w", err)
	}
	return acct, nil
}

// Save persists the aggregate's uncommitted events in order. For each
// event: append to the log (ErrConcurrencyConflict propagates unmodified),
// project it synchronously, and snapshot when the sequence number hits the
// interval. A failure partway leaves earlier events durably applied and
// projected; the caller must reload rather than trust in-memory state.
//
// Projection failures do not fail the save: the event log is the source of
// truth, the read models stay stale until a rebuild.
func (r *Repository) Save(ctx context.Context, acct *Account) error {
	for _, evt := range acct.UncommittedEvents() {
		if err := r.events.Append(evt); err != nil {
			return err
		}
		r.metrics.EventsAppended.Add(ctx, 1)

		if r.projection != nil {
			if err := r.projection.Handle(ctx, evt); err != nil {
				r.metrics.ProjectionErrors.Add(ctx, 1)
				r.logger.Error("projection failed, read models stale until rebuild",
					"projection", r.projection.Name(),
					"aggregate_id", evt.AggregateID,
					"event_type", evt.EventType,
					"event_number", evt.EventNumber,
					"error", err)
			}
		}

		if r.strategy != nil && r.strategy.ShouldSnapshot(evt.EventNumber) {
			if err := r.snapshot(ctx, acct.ID()); err != nil {
				// Snapshots are a load-time optimization only.
				r.logger.Warn("snapshot failed",
					"aggregate_id", acct.ID(), "error", err)
			}
		}
	}
	acct.ClearUncommittedEvents()
	return nil
}

// snapshot reloads the aggregate from durable storage and persists its
// state, so the snapshot never includes effects of unpersisted events.
func (r *Repository) snapshot(ctx context.Context, id string) error {
	fresh, err := r.Load(ctx, id)
	if err != nil {
		return fmt.Errorf("reload for snapshot: %w", err)
	}

	data, err := fresh.MarshalSnapshot()
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	err = r.snapshots.SaveSnapshot(&eventsourcing.Snapshot{
		AggregateID:   fresh.ID(),
		AggregateType: fresh.Type(),
		Version:       fresh.Version(),
		Data:          data,
		CreatedAt:     eventsourcing.Now(),
		Metadata: &eventsourcing.SnapshotMetadata{
			Size:          int64(len(data)),
			EventCount:    fresh.Version(),
			SnapshotType:  "json",
			SchemaVersion: "1.0",
		},
	})
	if err != nil {
		return err
	}
	r.metrics.SnapshotWrites.Add(ctx, 1)
	return nil
}
