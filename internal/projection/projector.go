package projection

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/corebank/ledger/internal/account"
	"github.com/corebank/ledger/pkg/eventsourcing"
	"github.com/corebank/ledger/pkg/observability"
)

// ProjectionName identifies the account read model projection.
const ProjectionName = "account_view"

// rebuildBatchSize is how many events a rebuild loads per round trip.
const rebuildBatchSize = 500

// Projector applies BankAccount events to the read model tables. Handle is
// idempotent and safe against out-of-order delivery: each event carries a
// version, and events at or below the summary's stored version are skipped.
type Projector struct {
	db      *sql.DB
	store   *ReadModelStore
	events  eventsourcing.EventStore
	status  eventsourcing.ProjectionStatusStore
	logger  *slog.Logger
	metrics *observability.Metrics

	rebuildMu sync.Mutex
}

var _ eventsourcing.Projection = (*Projector)(nil)

// NewProjector creates a projector over the given read model store. A fresh
// store starts READY; a persisted FAILED or REBUILDING status survives a
// restart so operators see that a rebuild is still required.
func NewProjector(
	db *sql.DB,
	store *ReadModelStore,
	events eventsourcing.EventStore,
	status eventsourcing.ProjectionStatusStore,
	logger *slog.Logger,
	metrics *observability.Metrics,
) (*Projector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NopMetrics()
	}
	p := &Projector{
		db:      db,
		store:   store,
		events:  events,
		status:  status,
		logger:  logger,
		metrics: metrics,
	}
	state, err := status.Load(ProjectionName)
	if err != nil {
		return nil, err
	}
	if state.Status == eventsourcing.ProjectionStatusReady {
		if err := p.setStatus(eventsourcing.ProjectionStatusReady, "", nil); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Name implements eventsourcing.Projection.
func (p *Projector) Name() string { return ProjectionName }

// Handle applies one event inside a single transaction. Re-delivery of an
// already-applied event is a no-op.
func (p *Projector) Handle(ctx context.Context, event *eventsourcing.Event) error {
	payload, err := account.DecodePayload(event)
	if err != nil {
		return err
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin projection tx: %w", err)
	}
	defer tx.Rollback()

	applied, err := p.handleTx(tx, event, payload)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit projection tx: %w", err)
	}

	if applied {
		p.metrics.ProjectionApplies.Add(ctx, 1)
	} else {
		p.metrics.ProjectionSkips.Add(ctx, 1)
	}
	return nil
}

func (p *Projector) handleTx(tx *sql.Tx, event *eventsourcing.Event, payload account.EventPayload) (bool, error) {
	switch pl := payload.(type) {
	case account.AccountCreated:
		// A replayed create must not clobber a summary that has already
		// advanced past version 1.
		res, err := tx.Exec(`
			INSERT INTO account_summary (account_id, owner_name, balance, currency, status, version)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(account_id) DO NOTHING`,
			event.AggregateID, pl.OwnerName, pl.InitialBalance.String(),
			pl.Currency, string(account.StatusOpen), event.Version)
		if err != nil {
			return false, fmt.Errorf("insert account summary: %w", err)
		}
		n, _ := res.RowsAffected()
		return n > 0, nil

	case account.MoneyDeposited:
		return p.applyTransaction(tx, event, "DEPOSIT", pl.Amount, pl.Description, pl.TransactionID, false)

	case account.MoneyWithdrawn:
		return p.applyTransaction(tx, event, "WITHDRAWAL", pl.Amount, pl.Description, pl.TransactionID, true)

	case account.AccountClosed:
		res, err := tx.Exec(`
			UPDATE account_summary SET status = ?, version = ?
			WHERE account_id = ? AND version < ?`,
			string(account.StatusClosed), event.Version, event.AggregateID, event.Version)
		if err != nil {
			return false, fmt.Errorf("close account summary: %w", err)
		}
		n, _ := res.RowsAffected()
		return n > 0, nil

	default:
		return false, fmt.Errorf("unhandled payload type %T", payload)
	}
}

// applyTransaction advances the balance and records the history row. The
// version guard on the summary is what makes re-delivery a no-op; the
// history insert is keyed by transaction ID for the same reason. Balance
// arithmetic happens in Go so amounts never pass through SQLite floats.
func (p *Projector) applyTransaction(tx *sql.Tx, event *eventsourcing.Event, kind string, amount decimal.Decimal, description, transactionID string, debit bool) (bool, error) {
	var stored string
	var version int64
	err := tx.QueryRow(`SELECT balance, version FROM account_summary WHERE account_id = ?`,
		event.AggregateID).Scan(&stored, &version)
	if err == sql.ErrNoRows {
		return false, fmt.Errorf("no summary for account %s", event.AggregateID)
	}
	if err != nil {
		return false, fmt.Errorf("read balance: %w", err)
	}
	if version >= event.Version {
		return false, nil
	}

	balance, err := decimal.NewFromString(stored)
	if err != nil {
		return false, fmt.Errorf("parse balance %q: %w", stored, err)
	}
	if debit {
		balance = balance.Sub(amount)
	} else {
		balance = balance.Add(amount)
	}

	_, err = tx.Exec(`UPDATE account_summary SET balance = ?, version = ? WHERE account_id = ?`,
		balance.String(), event.Version, event.AggregateID)
	if err != nil {
		return false, fmt.Errorf("update balance: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO transaction_history (transaction_id, account_id, type, amount, description, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(transaction_id) DO NOTHING`,
		transactionID, event.AggregateID, kind, amount.String(), description,
		event.Timestamp.UnixNano())
	if err != nil {
		return false, fmt.Errorf("insert transaction history: %w", err)
	}
	return true, nil
}

// Reset clears every read model row.
func (p *Projector) Reset(ctx context.Context) error {
	return p.store.reset()
}

// Rebuild drops the read models and replays the full event log in global
// order. Only one rebuild runs at a time; concurrent writes keep landing
// through Apply and are deduplicated by the version guard.
func (p *Projector) Rebuild(ctx context.Context) error {
	p.rebuildMu.Lock()
	defer p.rebuildMu.Unlock()

	start := time.Now()
	total, err := p.events.CountEvents()
	if err != nil {
		return fmt.Errorf("count events: %w", err)
	}

	progress := &eventsourcing.RebuildProgress{
		TotalEvents: total,
		StartedAt:   start,
	}
	if err := p.setStatus(eventsourcing.ProjectionStatusRebuilding, "", progress); err != nil {
		return err
	}
	p.logger.Info("projection rebuild started",
		"projection", ProjectionName, "total_events", total)

	if err := p.rebuild(ctx, progress); err != nil {
		p.metrics.ProjectionErrors.Add(ctx, 1)
		if serr := p.setStatus(eventsourcing.ProjectionStatusFailed, err.Error(), progress); serr != nil {
			p.logger.Error("recording rebuild failure", "error", serr)
		}
		return err
	}

	if err := p.setStatus(eventsourcing.ProjectionStatusReady, "", nil); err != nil {
		return err
	}
	p.metrics.RebuildDuration.Record(ctx, time.Since(start).Seconds())
	p.logger.Info("projection rebuild finished",
		"projection", ProjectionName,
		"events", progress.EventsProcessed,
		"duration", time.Since(start))
	return nil
}

func (p *Projector) rebuild(ctx context.Context, progress *eventsourcing.RebuildProgress) error {
	if err := p.Reset(ctx); err != nil {
		return err
	}

	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		events, err := p.events.LoadAllEvents(offset, rebuildBatchSize)
		if err != nil {
			return fmt.Errorf("load events at offset %d: %w", offset, err)
		}
		if len(events) == 0 {
			return nil
		}
		for _, evt := range events {
			if err := p.Handle(ctx, evt); err != nil {
				return fmt.Errorf("apply event %s: %w", evt.ID, err)
			}
			progress.EventsProcessed++
		}
		offset += len(events)
	}
}

// Status returns the projection's current operational state.
func (p *Projector) Status() (*eventsourcing.ProjectionState, error) {
	return p.status.Load(ProjectionName)
}

func (p *Projector) setStatus(status eventsourcing.ProjectionStatus, message string, progress *eventsourcing.RebuildProgress) error {
	return p.status.Save(&eventsourcing.ProjectionState{
		ProjectionName: ProjectionName,
		Status:         status,
		Message:        message,
		UpdatedAt:      eventsourcing.Now(),
		Progress:       progress,
	})
}
