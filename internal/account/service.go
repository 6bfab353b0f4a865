package account

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/corebank/ledger/pkg/eventsourcing"
	"github.com/corebank/ledger/pkg/observability"
)

// maxConflictRetries bounds how often a command is retried after losing an
// optimistic concurrency race. Each retry reloads current state and
// re-evaluates the business rules against it.
const maxConflictRetries = 3

// EventPublisher notifies downstream consumers of committed events.
// Publication is best effort: the event log is already durable.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *eventsourcing.Event) error
}

// Service executes account commands: it validates input, loads the
// aggregate, invokes the domain operation, persists the outcome and
// retries on concurrency conflicts.
type Service struct {
	repo      *Repository
	publisher EventPublisher
	logger    *slog.Logger
	metrics   *observability.Metrics
	tracer    trace.Tracer
}

// NewService creates a command service. publisher may be nil.
func NewService(repo *Repository, publisher EventPublisher, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NopMetrics()
	}
	return &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
		tracer:    otel.Tracer("ledger.account"),
	}
}

// CreateAccount opens a new account. The caller supplies the account ID so
// the operation can be retried safely; creating an existing account returns
// ErrAccountExists.
func (s *Service) CreateAccount(ctx context.Context, accountID, ownerName string, initialBalance decimal.Decimal, currency string) error {
	if err := validateAccountID(accountID); err != nil {
		return err
	}
	if ownerName == "" {
		return &ValidationError{Field: "ownerName", Reason: "must not be empty"}
	}
	if initialBalance.IsNegative() {
		return &ValidationError{Field: "initialBalance", Reason: "must not be negative"}
	}
	if !govalidator.IsISO4217(currency) {
		return &ValidationError{Field: "currency", Reason: "must be an ISO 4217 currency code"}
	}

	return s.execute(ctx, "CreateAccount", accountID, func(acct *Account) error {
		return acct.Create(ownerName, initialBalance, currency)
	})
}

// Deposit adds funds to an open account. Repeated calls with the same
// transactionID are applied once.
func (s *Service) Deposit(ctx context.Context, accountID string, amount decimal.Decimal, description, transactionID string) error {
	if err := validateAccountID(accountID); err != nil {
		return err
	}
	if err := validateTransaction(amount, transactionID); err != nil {
		return err
	}

	return s.execute(ctx, "Deposit", accountID, func(acct *Account) error {
		return acct.Deposit(amount, description, transactionID)
	})
}

// Withdraw removes funds from an open account, subject to the overdraft
// rule. Repeated calls with the same transactionID are applied once.
func (s *Service) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal, description, transactionID string) error {
	if err := validateAccountID(accountID); err != nil {
		return err
	}
	if err := validateTransaction(amount, transactionID); err != nil {
		return err
	}

	return s.execute(ctx, "Withdraw", accountID, func(acct *Account) error {
		return acct.Withdraw(amount, description, transactionID)
	})
}

// CloseAccount closes an account with a zero balance.
func (s *Service) CloseAccount(ctx context.Context, accountID, reason string) error {
	if err := validateAccountID(accountID); err != nil {
		return err
	}

	return s.execute(ctx, "CloseAccount", accountID, func(acct *Account) error {
		return acct.Close(reason)
	})
}

// execute runs one command against the aggregate, retrying on optimistic
// concurrency conflicts with freshly loaded state.
func (s *Service) execute(ctx context.Context, command, accountID string, fn func(*Account) error) error {
	ctx, span := s.tracer.Start(ctx, "account."+command,
		trace.WithAttributes(attribute.String("account.id", accountID)))
	defer span.End()

	attrs := metric.WithAttributes(attribute.String("command", command))
	start := time.Now()
	s.metrics.CommandTotal.Add(ctx, 1, attrs)

	err := s.executeOnce(ctx, command, accountID, fn)
	for attempt := 1; errors.Is(err, eventsourcing.ErrConcurrencyConflict) && attempt <= maxConflictRetries; attempt++ {
		s.logger.Debug("concurrency conflict, retrying command",
			"command", command, "account_id", accountID, "attempt", attempt)
		err = s.executeOnce(ctx, command, accountID, fn)
	}

	s.metrics.CommandDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	if err != nil {
		s.metrics.CommandErrors.Add(ctx, 1, attrs)
		span.RecordError(err)
		return err
	}
	return nil
}

func (s *Service) executeOnce(ctx context.Context, command, accountID string, fn func(*Account) error) error {
	acct, err := s.repo.Load(ctx, accountID)
	if errors.Is(err, eventsourcing.ErrAggregateNotFound) {
		// Only creation may start from a blank aggregate.
		if command != "CreateAccount" {
			return err
		}
		acct = New(accountID)
	} else if err != nil {
		return err
	}

	if err := fn(acct); err != nil {
		return err
	}

	committed := acct.UncommittedEvents()
	if err := s.repo.Save(ctx, acct); err != nil {
		// Two concurrent creates race on event number 1; the loser sees a
		// conflict, but to the caller the account simply already exists.
		if command == "CreateAccount" && errors.Is(err, eventsourcing.ErrConcurrencyConflict) {
			return ErrAccountExists
		}
		return err
	}

	s.publish(ctx, committed)
	return nil
}

func (s *Service) publish(ctx context.Context, events []*eventsourcing.Event) {
	if s.publisher == nil {
		return
	}
	for _, evt := range events {
		if err := s.publisher.PublishEvent(ctx, evt); err != nil {
			s.logger.Warn("event publication failed",
				"event_type", evt.EventType,
				"aggregate_id", evt.AggregateID,
				"error", err)
			continue
		}
		s.metrics.EventsPublished.Add(ctx, 1)
	}
}

func validateAccountID(accountID string) error {
	if accountID == "" {
		return &ValidationError{Field: "accountId", Reason: "must not be empty"}
	}
	return nil
}

func validateTransaction(amount decimal.Decimal, transactionID string) error {
	if !amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if transactionID == "" {
		return &ValidationError{Field: "transactionId", Reason: "must not be empty"}
	}
	return nil
}
