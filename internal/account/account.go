// Package account implements the BankAccount aggregate: a pure in-memory
// state machine whose state is fully derived from its event history.
package account

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/corebank/ledger/pkg/eventsourcing"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle status of an account.
type Status string

const (
	// StatusOpen means the account accepts deposits and withdrawals.
	StatusOpen Status = "OPEN"

	// StatusClosed is terminal; no further commands succeed.
	StatusClosed Status = "CLOSED"
)

// Account is the BankAccount aggregate. An instance lives only for the
// duration of one command: it is rehydrated from snapshot plus events,
// mutated, persisted, and discarded.
type Account struct {
	eventsourcing.AggregateRoot

	ownerName string
	balance   decimal.Decimal
	currency  string
	status    Status

	// processedTransactions makes deposit/withdraw retries no-ops. It is
	// serialized into snapshots as an explicit list of identifiers.
	processedTransactions map[string]struct{}
}

var (
	_ eventsourcing.Aggregate   = (*Account)(nil)
	_ eventsourcing.Snapshotter = (*Account)(nil)
)

// New creates an empty, uninitialized account aggregate.
func New(id string) *Account {
	return &Account{
		AggregateRoot:         eventsourcing.NewAggregateRoot(id, AggregateType),
		processedTransactions: make(map[string]struct{}),
	}
}

// OwnerName returns the account owner's name.
func (a *Account) OwnerName() string { return a.ownerName }

// Balance returns the current balance.
func (a *Account) Balance() decimal.Decimal { return a.balance }

// Currency returns the ISO 4217 currency code.
func (a *Account) Currency() string { return a.currency }

// Status returns the lifecycle status; empty for an uninitialized account.
func (a *Account) Status() Status { return a.status }

// Create opens the account. The aggregate must not have any prior events.
func (a *Account) Create(ownerName string, initialBalance decimal.Decimal, currency string) error {
	if a.Version() > 0 {
		return ErrAccountExists
	}
	if initialBalance.IsNegative() {
		return ErrInvalidAmount
	}
	return a.raise(AccountCreated{
		OwnerName:      ownerName,
		InitialBalance: initialBalance,
		Currency:       currency,
	})
}

// Deposit adds money to an open account. Submitting the same transaction
// identifier again is a no-op, not an error.
func (a *Account) Deposit(amount decimal.Decimal, description, transactionID string) error {
	if a.status != StatusOpen {
		return ErrAccountClosed
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if _, done := a.processedTransactions[transactionID]; done {
		return nil
	}
	return a.raise(MoneyDeposited{
		Amount:        amount,
		Description:   description,
		TransactionID: transactionID,
	})
}

// Withdraw removes money from an open account, with the same transaction
// idempotency as Deposit.
func (a *Account) Withdraw(amount decimal.Decimal, description, transactionID string) error {
	if a.status != StatusOpen {
		return ErrAccountClosed
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if _, done := a.processedTransactions[transactionID]; done {
		return nil
	}
	if a.balance.LessThan(amount) {
		return ErrInsufficientFunds
	}
	return a.raise(MoneyWithdrawn{
		Amount:        amount,
		Description:   description,
		TransactionID: transactionID,
	})
}

// Close terminates the account. The balance must be exactly zero.
func (a *Account) Close(reason string) error {
	if a.status == StatusClosed {
		return ErrAlreadyClosed
	}
	if a.status != StatusOpen {
		return ErrAccountClosed
	}
	if !a.balance.IsZero() {
		return ErrNonZeroBalance
	}
	return a.raise(AccountClosed{Reason: reason})
}

// raise records a new event and applies it through the same deterministic
// transition used during replay, so business rules live only in the
// command methods above.
func (a *Account) raise(payload EventPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", payload.EventType(), err)
	}
	a.Record(payload.EventType(), data)
	a.mutate(payload)
	return nil
}

// mutate is the pure (state, event) -> state transition. It never
// validates: validation happened before the event was created, and
// replayed events are facts.
func (a *Account) mutate(payload EventPayload) {
	switch p := payload.(type) {
	case AccountCreated:
		a.ownerName = p.OwnerName
		a.balance = p.InitialBalance
		a.currency = p.Currency
		a.status = StatusOpen
	case MoneyDeposited:
		a.balance = a.balance.Add(p.Amount)
		a.processedTransactions[p.TransactionID] = struct{}{}
	case MoneyWithdrawn:
		a.balance = a.balance.Sub(p.Amount)
		a.processedTransactions[p.TransactionID] = struct{}{}
	case AccountClosed:
		a.status = StatusClosed
	}
}

// Replay applies historical events onto the current state.
func (a *Account) Replay(events []*eventsourcing.Event) error {
	for _, evt := range events {
		payload, err := DecodePayload(evt)
		if err != nil {
			return err
		}
		a.mutate(payload)
	}
	a.LoadFromHistory(events)
	return nil
}

// snapshotState is the serialized snapshot layout. The processed
// transaction identifiers are stored as an explicit sorted list.
type snapshotState struct {
	AccountID             string          `json:"accountId"`
	OwnerName             string          `json:"ownerName"`
	Balance               decimal.Decimal `json:"balance"`
	Currency              string          `json:"currency"`
	Status                Status          `json:"status"`
	ProcessedTransactions []string        `json:"processedTransactions"`
}

// MarshalSnapshot implements eventsourcing.Snapshotter.
func (a *Account) MarshalSnapshot() ([]byte, error) {
	txIDs := make([]string, 0, len(a.processedTransactions))
	for id := range a.processedTransactions {
		txIDs = append(txIDs, id)
	}
	sort.Strings(txIDs)

	return json.Marshal(snapshotState{
		AccountID:             a.ID(),
		OwnerName:             a.ownerName,
		Balance:               a.balance,
		Currency:              a.currency,
		Status:                a.status,
		ProcessedTransactions: txIDs,
	})
}

// UnmarshalSnapshot implements eventsourcing.Snapshotter. The version is
// restored separately by the repository from the snapshot record.
func (a *Account) UnmarshalSnapshot(data []byte) error {
	var state snapshotState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("unmarshal snapshot: %w", err)
	}
	a.ownerName = state.OwnerName
	a.balance = state.Balance
	a.currency = state.Currency
	a.status = state.Status
	a.processedTransactions = make(map[string]struct{}, len(state.ProcessedTransactions))
	for _, id := range state.ProcessedTransactions {
		a.processedTransactions[id] = struct{}{}
	}
	return nil
}
