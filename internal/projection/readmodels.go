package projection

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrSummaryNotFound is returned when no account summary row exists.
var ErrSummaryNotFound = errors.New("account summary not found")

// AccountSummary is the per-account read model row.
type AccountSummary struct {
	AccountID string          `json:"accountId"`
	OwnerName string          `json:"ownerName"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	Status    string          `json:"status"`
	Version   int64           `json:"version"`
}

// TransactionRecord is one entry in the transaction history read model.
type TransactionRecord struct {
	TransactionID string          `json:"transactionId"`
	AccountID     string          `json:"accountId"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	Timestamp     time.Time       `json:"timestamp"`
}

const createReadModelTables = `
CREATE TABLE IF NOT EXISTS account_summary (
	account_id TEXT PRIMARY KEY,
	owner_name TEXT NOT NULL,
	balance TEXT NOT NULL,
	currency TEXT NOT NULL,
	status TEXT NOT NULL,
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS transaction_history (
	transaction_id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	type TEXT NOT NULL,
	amount TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	timestamp INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transaction_history_account
	ON transaction_history (account_id, timestamp);
`

// ReadModelStore owns the denormalized query tables. Balances are stored
// as decimal strings so they round-trip without float loss.
type ReadModelStore struct {
	db *sql.DB
}

// NewReadModelStore prepares the read model tables on the given handle.
func NewReadModelStore(db *sql.DB) (*ReadModelStore, error) {
	if _, err := db.Exec(createReadModelTables); err != nil {
		return nil, fmt.Errorf("create read model tables: %w", err)
	}
	return &ReadModelStore{db: db}, nil
}

// GetSummary returns the summary row for one account.
func (s *ReadModelStore) GetSummary(accountID string) (*AccountSummary, error) {
	row := s.db.QueryRow(`
		SELECT account_id, owner_name, balance, currency, status, version
		FROM account_summary WHERE account_id = ?`, accountID)

	var summary AccountSummary
	var balance string
	err := row.Scan(&summary.AccountID, &summary.OwnerName, &balance,
		&summary.Currency, &summary.Status, &summary.Version)
	if err == sql.ErrNoRows {
		return nil, ErrSummaryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query account summary: %w", err)
	}
	summary.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("parse balance %q: %w", balance, err)
	}
	return &summary, nil
}

// ListTransactions returns one page of an account's transaction history,
// newest first, together with the total number of entries.
func (s *ReadModelStore) ListTransactions(accountID string, page, pageSize int) ([]*TransactionRecord, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	var total int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM transaction_history WHERE account_id = ?`,
		accountID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT transaction_id, account_id, type, amount, description, timestamp
		FROM transaction_history
		WHERE account_id = ?
		ORDER BY timestamp DESC, transaction_id DESC
		LIMIT ? OFFSET ?`, accountID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var records []*TransactionRecord
	for rows.Next() {
		var rec TransactionRecord
		var amount string
		var ts int64
		if err := rows.Scan(&rec.TransactionID, &rec.AccountID, &rec.Type,
			&amount, &rec.Description, &ts); err != nil {
			return nil, 0, fmt.Errorf("scan transaction: %w", err)
		}
		rec.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, 0, fmt.Errorf("parse amount %q: %w", amount, err)
		}
		rec.Timestamp = time.Unix(0, ts).UTC()
		records = append(records, &rec)
	}
	return records, total, rows.Err()
}

// reset drops all read model rows. Used by full rebuilds.
func (s *ReadModelStore) reset() error {
	if _, err := s.db.Exec(`DELETE FROM account_summary`); err != nil {
		return fmt.Errorf("reset account_summary: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM transaction_history`); err != nil {
		return fmt.Errorf("reset transaction_history: %w", err)
	}
	return nil
}
