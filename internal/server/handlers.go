package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/corebank/ledger/internal/account"
	"github.com/corebank/ledger/internal/projection"
	"github.com/corebank/ledger/pkg/eventsourcing"
)

type createAccountRequest struct {
	AccountID      string          `json:"accountId"`
	OwnerName      string          `json:"ownerName"`
	InitialBalance decimal.Decimal `json:"initialBalance"`
	Currency       string          `json:"currency"`
}

type transactionRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	TransactionID string          `json:"transactionId"`
}

type closeRequest struct {
	Reason string `json:"reason"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := s.commands.CreateAccount(r.Context(), req.AccountID, req.OwnerName, req.InitialBalance, req.Currency)
	s.respondCommand(w, r, err, map[string]string{"accountId": req.AccountID})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	accountID := chi.URLParam(r, "accountID")
	err := s.commands.Deposit(r.Context(), accountID, req.Amount, req.Description, req.TransactionID)
	s.respondCommand(w, r, err, map[string]string{
		"accountId":     accountID,
		"transactionId": req.TransactionID,
	})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	accountID := chi.URLParam(r, "accountID")
	err := s.commands.Withdraw(r.Context(), accountID, req.Amount, req.Description, req.TransactionID)
	s.respondCommand(w, r, err, map[string]string{
		"accountId":     accountID,
		"transactionId": req.TransactionID,
	})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	var req closeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	accountID := chi.URLParam(r, "accountID")
	err := s.commands.CloseAccount(r.Context(), accountID, req.Reason)
	s.respondCommand(w, r, err, map[string]string{"accountId": accountID})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	summary, err := s.queries.AccountSummary(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// eventView is the API shape of a stored event. Payloads are already
// JSON, so they are embedded verbatim.
type eventView struct {
	EventID     string          `json:"eventId"`
	AccountID   string          `json:"accountId"`
	EventType   string          `json:"eventType"`
	EventNumber int64           `json:"eventNumber"`
	Timestamp   time.Time       `json:"timestamp"`
	Data        json.RawMessage `json:"data"`
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.queries.Events(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// The event history is served as a bare array.
	views := make([]eventView, 0, len(events))
	for _, evt := range events {
		views = append(views, eventView{
			EventID:     evt.ID,
			AccountID:   evt.AggregateID,
			EventType:   evt.EventType,
			EventNumber: evt.EventNumber,
			Timestamp:   evt.Timestamp,
			Data:        json.RawMessage(evt.Data),
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetTransactions(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))

	result, err := s.queries.Transactions(r.Context(), chi.URLParam(r, "accountID"), page, pageSize)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleBalanceAt(w http.ResponseWriter, r *http.Request) {
	at, err := time.Parse(time.RFC3339, chi.URLParam(r, "timestamp"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "timestamp must be RFC 3339"})
		return
	}

	result, err := s.queries.BalanceAt(r.Context(), chi.URLParam(r, "accountID"), at)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	go func() {
		if err := s.projector.Rebuild(context.Background()); err != nil {
			s.logger.Error("projection rebuild failed", "error", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "rebuild started"})
}

func (s *Server) handleProjectionStatus(w http.ResponseWriter, r *http.Request) {
	health, err := s.queries.ProjectionStatus(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var total int64
	if len(health) > 0 {
		total = health[0].TotalEvents
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"totalEventsInStore": total,
		"projections":        health,
	})
}

// respondCommand maps a command outcome to 202 or an error status.
func (s *Server) respondCommand(w http.ResponseWriter, r *http.Request, err error, body any) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, body)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var valErr *account.ValidationError

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &valErr):
		status = http.StatusBadRequest
	case errors.Is(err, eventsourcing.ErrAggregateNotFound),
		errors.Is(err, projection.ErrSummaryNotFound):
		status = http.StatusNotFound
	case account.IsBusinessRuleViolation(err),
		errors.Is(err, eventsourcing.ErrConcurrencyConflict):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
