package account

import (
	"errors"
	"fmt"
)

// Business rule violations. These are rejected by the aggregate before any
// event is produced, so a command that fails with one of these has no
// partial effect.
var (
	// ErrAccountExists is returned when creating an account whose
	// identifier already has events.
	ErrAccountExists = errors.New("account already exists")

	// ErrAccountClosed is returned when depositing to or withdrawing from
	// a closed account.
	ErrAccountClosed = errors.New("account is closed")

	// ErrInvalidAmount is returned when an amount is zero or negative.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInsufficientFunds is returned when a withdrawal exceeds the balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAlreadyClosed is returned when closing an account twice.
	ErrAlreadyClosed = errors.New("account is already closed")

	// ErrNonZeroBalance is returned when closing an account that still
	// holds funds.
	ErrNonZeroBalance = errors.New("account balance must be zero to close")
)

// ValidationError reports malformed or out-of-range command input,
// rejected before the aggregate is even loaded.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsBusinessRuleViolation reports whether err is one of the aggregate's
// business rule errors.
func IsBusinessRuleViolation(err error) bool {
	return errors.Is(err, ErrAccountExists) ||
		errors.Is(err, ErrAccountClosed) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrAlreadyClosed) ||
		errors.Is(err, ErrNonZeroBalance)
}
