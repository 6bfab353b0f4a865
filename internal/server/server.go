// Package server exposes the ledger over HTTP: commands and queries under
// /api, with JSON bodies throughout.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/corebank/ledger/internal/account"
	"github.com/corebank/ledger/internal/projection"
	"github.com/corebank/ledger/internal/query"
)

// Server is the HTTP front end. It implements runner.Service.
type Server struct {
	commands  *account.Service
	queries   *query.Service
	projector *projection.Projector
	logger    *slog.Logger
	httpSrv   *http.Server
}

// New creates the HTTP server on the given listen address.
func New(addr string, commands *account.Service, queries *query.Service, projector *projection.Projector, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		commands:  commands,
		queries:   queries,
		projector: projector,
		logger:    logger,
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/accounts", s.handleCreateAccount)
		r.Route("/accounts/{accountID}", func(r chi.Router) {
			r.Post("/deposit", s.handleDeposit)
			r.Post("/withdraw", s.handleWithdraw)
			r.Post("/close", s.handleClose)
			r.Get("/", s.handleGetAccount)
			r.Get("/events", s.handleGetEvents)
			r.Get("/transactions", s.handleGetTransactions)
			r.Get("/balance-at/{timestamp}", s.handleBalanceAt)
		})
		r.Post("/projections/rebuild", s.handleRebuild)
		r.Get("/projections/status", s.handleProjectionStatus)
	})
	r.Get("/healthz", s.handleHealth)

	return r
}

// Name implements runner.Service.
func (s *Server) Name() string { return "http" }

// Start begins serving. It returns once the listener is accepting; serve
// errors after startup are logged.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", "error", err)
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
		s.logger.Info("http server listening", "addr", s.httpSrv.Addr)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop drains in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
