package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corebank/ledger/internal/account"
	"github.com/corebank/ledger/internal/projection"
	"github.com/corebank/ledger/internal/query"
	"github.com/corebank/ledger/pkg/sqlite"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := sqlite.NewEventStore(sqlite.WithMemoryDatabase())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	readModel, err := projection.NewReadModelStore(store.DB())
	require.NoError(t, err)
	statusStore, err := sqlite.NewProjectionStatusStore(store.DB())
	require.NoError(t, err)
	projector, err := projection.NewProjector(store.DB(), readModel, store, statusStore, nil, nil)
	require.NoError(t, err)

	repo := account.NewRepository(store, sqlite.NewSnapshotStore(store.DB()),
		nil, projector, nil, nil)
	commands := account.NewService(repo, nil, nil, nil)
	queries := query.NewService(store, readModel, projector)

	return New(":0", commands, queries, projector, nil)
}

func do(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func createAccount(t *testing.T, srv *Server, id, balance string) {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/api/accounts", map[string]any{
		"accountId":      id,
		"ownerName":      "Alice",
		"initialBalance": balance,
		"currency":       "EUR",
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
}

func TestCreateAccountEndpoint(t *testing.T) {
	srv := newTestServer(t)
	createAccount(t, srv, "acc-1", "100")

	t.Run("DuplicateIs409", func(t *testing.T) {
		rec := do(t, srv, http.MethodPost, "/api/accounts", map[string]any{
			"accountId":      "acc-1",
			"ownerName":      "Mallory",
			"initialBalance": "0",
			"currency":       "EUR",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("BadCurrencyIs400", func(t *testing.T) {
		rec := do(t, srv, http.MethodPost, "/api/accounts", map[string]any{
			"accountId":      "acc-2",
			"ownerName":      "Bob",
			"initialBalance": "0",
			"currency":       "XX",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("MalformedBodyIs400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/accounts",
			bytes.NewBufferString("{nope"))
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDepositWithdrawEndpoints(t *testing.T) {
	srv := newTestServer(t)
	createAccount(t, srv, "acc-1", "100")

	rec := do(t, srv, http.MethodPost, "/api/accounts/acc-1/deposit", map[string]any{
		"amount":        "50",
		"description":   "salary",
		"transactionId": "tx-1",
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = do(t, srv, http.MethodPost, "/api/accounts/acc-1/withdraw", map[string]any{
		"amount":        "30",
		"description":   "rent",
		"transactionId": "tx-2",
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	t.Run("SummaryReflectsWrites", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/api/accounts/acc-1", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var summary projection.AccountSummary
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
		assert.Equal(t, "120", summary.Balance.String())
	})

	t.Run("OverdraftIs409", func(t *testing.T) {
		rec := do(t, srv, http.MethodPost, "/api/accounts/acc-1/withdraw", map[string]any{
			"amount":        "100000",
			"transactionId": "tx-3",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("MissingAccountIs404", func(t *testing.T) {
		rec := do(t, srv, http.MethodPost, "/api/accounts/nope/deposit", map[string]any{
			"amount":        "1",
			"transactionId": "tx-4",
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("ZeroAmountIs400", func(t *testing.T) {
		rec := do(t, srv, http.MethodPost, "/api/accounts/acc-1/deposit", map[string]any{
			"amount":        "0",
			"transactionId": "tx-5",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCloseEndpoint(t *testing.T) {
	srv := newTestServer(t)
	createAccount(t, srv, "acc-1", "0")

	rec := do(t, srv, http.MethodPost, "/api/accounts/acc-1/close", map[string]any{
		"reason": "leaving",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	t.Run("DepositAfterCloseIs409", func(t *testing.T) {
		rec := do(t, srv, http.MethodPost, "/api/accounts/acc-1/deposit", map[string]any{
			"amount":        "1",
			"transactionId": "tx-1",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestEventsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	createAccount(t, srv, "acc-1", "10")

	rec := do(t, srv, http.MethodGet, "/api/accounts/acc-1/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// The body is a bare JSON array, not a wrapper object.
	var events []eventView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, account.EventTypeAccountCreated, events[0].EventType)
	assert.Equal(t, int64(1), events[0].EventNumber)

	t.Run("MissingAccountIs404", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/api/accounts/nope/events", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestTransactionsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	createAccount(t, srv, "acc-1", "1000")

	for i := 1; i <= 3; i++ {
		rec := do(t, srv, http.MethodPost, "/api/accounts/acc-1/deposit", map[string]any{
			"amount":        "10",
			"transactionId": fmt.Sprintf("tx-%d", i),
		})
		require.Equal(t, http.StatusAccepted, rec.Code)
	}

	rec := do(t, srv, http.MethodGet, "/api/accounts/acc-1/transactions?page=1&pageSize=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Field names are part of the wire contract.
	var page struct {
		Items       []*projection.TransactionRecord `json:"items"`
		CurrentPage int                             `json:"currentPage"`
		PageSize    int                             `json:"pageSize"`
		Total       int                             `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 1, page.CurrentPage)
	assert.Equal(t, 2, page.PageSize)
}

func TestBalanceAtEndpoint(t *testing.T) {
	srv := newTestServer(t)
	createAccount(t, srv, "acc-1", "100")

	at := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)
	rec := do(t, srv, http.MethodGet, "/api/accounts/acc-1/balance-at/"+at, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Contains(t, result, "balanceAt")
	assert.Equal(t, `"100"`, string(result["balanceAt"]))

	t.Run("BadTimestampIs400", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/api/accounts/acc-1/balance-at/yesterday", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("BeforeCreationIs404", func(t *testing.T) {
		past := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
		rec := do(t, srv, http.MethodGet, "/api/accounts/acc-1/balance-at/"+past, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestProjectionEndpoints(t *testing.T) {
	srv := newTestServer(t)
	createAccount(t, srv, "acc-1", "5")

	t.Run("Status", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/api/projections/status", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			TotalEventsInStore int64                     `json:"totalEventsInStore"`
			Projections        []*query.ProjectionHealth `json:"projections"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, int64(1), body.TotalEventsInStore)
		require.Len(t, body.Projections, 1)
		assert.Equal(t, projection.ProjectionName, body.Projections[0].Name)
		assert.Equal(t, int64(0), body.Projections[0].Lag)
	})

	t.Run("RebuildIs202", func(t *testing.T) {
		rec := do(t, srv, http.MethodPost, "/api/projections/rebuild", nil)
		assert.Equal(t, http.StatusAccepted, rec.Code)
	})
}
