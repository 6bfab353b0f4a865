// Package query serves the read side: account summaries and transaction
// history from the projected read models, plus event-log introspection and
// point-in-time balances computed by replay.
package query

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/corebank/ledger/internal/account"
	"github.com/corebank/ledger/internal/projection"
	"github.com/corebank/ledger/pkg/eventsourcing"
)

// TransactionPage is one page of an account's transaction history.
type TransactionPage struct {
	Items       []*projection.TransactionRecord `json:"items"`
	CurrentPage int                             `json:"currentPage"`
	PageSize    int                             `json:"pageSize"`
	Total       int                             `json:"total"`
}

// BalanceAtResult is a balance reconstructed as of a point in time.
type BalanceAtResult struct {
	AccountID string          `json:"accountId"`
	BalanceAt decimal.Decimal `json:"balanceAt"`
	Currency  string          `json:"currency"`
	Timestamp time.Time       `json:"timestamp"`
	Version   int64           `json:"version"`
}

// ProjectionHealth reports one projection's status against the event log.
type ProjectionHealth struct {
	Name        string                         `json:"name"`
	Status      eventsourcing.ProjectionStatus `json:"status"`
	Message     string                         `json:"message,omitempty"`
	UpdatedAt   time.Time                      `json:"updatedAt"`
	Progress    *eventsourcing.RebuildProgress `json:"progress,omitempty"`
	TotalEvents int64                          `json:"totalEvents"`

	// Lag is always zero: projection runs synchronously on the write path.
	Lag int64 `json:"lag"`
}

// Service answers queries. Summaries and history come from the read
// models; point-in-time balances bypass them and replay the event log.
type Service struct {
	events    eventsourcing.EventStore
	readModel *projection.ReadModelStore
	projector *projection.Projector
}

// NewService creates a query service.
func NewService(events eventsourcing.EventStore, readModel *projection.ReadModelStore, projector *projection.Projector) *Service {
	return &Service{
		events:    events,
		readModel: readModel,
		projector: projector,
	}
}

// AccountSummary returns the projected summary for one account.
// Returns projection.ErrSummaryNotFound if no such account was projected.
func (s *Service) AccountSummary(ctx context.Context, accountID string) (*projection.AccountSummary, error) {
	return s.readModel.GetSummary(accountID)
}

// Transactions returns one page of the account's transaction history,
// newest first.
func (s *Service) Transactions(ctx context.Context, accountID string, page, pageSize int) (*TransactionPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	records, total, err := s.readModel.ListTransactions(accountID, page, pageSize)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []*projection.TransactionRecord{}
	}
	return &TransactionPage{
		Items:       records,
		CurrentPage: page,
		PageSize:    pageSize,
		Total:       total,
	}, nil
}

// Events returns the raw event stream of one account in order.
// Returns eventsourcing.ErrAggregateNotFound if the account has no events.
func (s *Service) Events(ctx context.Context, accountID string) ([]*eventsourcing.Event, error) {
	events, err := s.events.LoadEvents(accountID, 0)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, eventsourcing.ErrAggregateNotFound
	}
	return events, nil
}

// BalanceAt reconstructs the account's balance as of the given instant by
// replaying only the events recorded at or before it. The read models are
// not consulted. Returns eventsourcing.ErrAggregateNotFound if the account
// did not exist yet at that time.
func (s *Service) BalanceAt(ctx context.Context, accountID string, at time.Time) (*BalanceAtResult, error) {
	events, err := s.events.LoadEvents(accountID, 0)
	if err != nil {
		return nil, err
	}

	var upTo []*eventsourcing.Event
	for _, evt := range events {
		if evt.Timestamp.After(at) {
			break
		}
		upTo = append(upTo, evt)
	}
	if len(upTo) == 0 {
		return nil, eventsourcing.ErrAggregateNotFound
	}

	acct := account.New(accountID)
	if err := acct.Replay(upTo); err != nil {
		return nil, err
	}
	return &BalanceAtResult{
		AccountID: accountID,
		BalanceAt: acct.Balance(),
		Currency:  acct.Currency(),
		Timestamp: at,
		Version:   acct.Version(),
	}, nil
}

// ProjectionStatus reports the read model projection's operational state
// together with the size of the event log it tracks.
func (s *Service) ProjectionStatus(ctx context.Context) ([]*ProjectionHealth, error) {
	total, err := s.events.CountEvents()
	if err != nil {
		return nil, err
	}

	state, err := s.projector.Status()
	if err != nil {
		return nil, err
	}
	return []*ProjectionHealth{{
		Name:        state.ProjectionName,
		Status:      state.Status,
		Message:     state.Message,
		UpdatedAt:   state.UpdatedAt,
		Progress:    state.Progress,
		TotalEvents: total,
		Lag:         0,
	}}, nil
}
