package account

import (
	"encoding/json"
	"fmt"

	"github.com/corebank/ledger/pkg/eventsourcing"
	"github.com/shopspring/decimal"
)

// AggregateType is the aggregate type name recorded on every event.
const AggregateType = "BankAccount"

// Event kinds produced by the BankAccount aggregate.
const (
	EventTypeAccountCreated = "AccountCreated"
	EventTypeMoneyDeposited = "MoneyDeposited"
	EventTypeMoneyWithdrawn = "MoneyWithdrawn"
	EventTypeAccountClosed  = "AccountClosed"
)

// EventPayload is the closed set of payload types for BankAccount events.
// DecodePayload fails on any kind outside this set, so adding a new event
// kind forces every switch over EventPayload to be revisited.
type EventPayload interface {
	EventType() string
}

// AccountCreated records the opening of a new account.
type AccountCreated struct {
	OwnerName      string          `json:"ownerName"`
	InitialBalance decimal.Decimal `json:"initialBalance"`
	Currency       string          `json:"currency"`
}

func (AccountCreated) EventType() string { return EventTypeAccountCreated }

// MoneyDeposited records money added to an account.
type MoneyDeposited struct {
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	TransactionID string          `json:"transactionId"`
}

func (MoneyDeposited) EventType() string { return EventTypeMoneyDeposited }

// MoneyWithdrawn records money removed from an account.
type MoneyWithdrawn struct {
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	TransactionID string          `json:"transactionId"`
}

func (MoneyWithdrawn) EventType() string { return EventTypeMoneyWithdrawn }

// AccountClosed records the terminal closure of an account.
type AccountClosed struct {
	Reason string `json:"reason"`
}

func (AccountClosed) EventType() string { return EventTypeAccountClosed }

// DecodePayload deserializes an event's payload by kind.
func DecodePayload(evt *eventsourcing.Event) (EventPayload, error) {
	switch evt.EventType {
	case EventTypeAccountCreated:
		var p AccountCreated
		if err := json.Unmarshal(evt.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", evt.EventType, err)
		}
		return p, nil
	case EventTypeMoneyDeposited:
		var p MoneyDeposited
		if err := json.Unmarshal(evt.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", evt.EventType, err)
		}
		return p, nil
	case EventTypeMoneyWithdrawn:
		var p MoneyWithdrawn
		if err := json.Unmarshal(evt.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", evt.EventType, err)
		}
		return p, nil
	case EventTypeAccountClosed:
		var p AccountClosed
		if err := json.Unmarshal(evt.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", evt.EventType, err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", evt.EventType)
	}
}
