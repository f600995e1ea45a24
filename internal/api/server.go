// Package api exposes the ledger over a small JSON HTTP surface. Heavy
// work (statement sync) is queued over AMQP; the handlers themselves only
// read state and record manual entries.
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"finledger/internal/core"
	applog "finledger/internal/log"
	"finledger/internal/middleware"
	"finledger/internal/storage"
)

// Store is the slice of the repository the API serves from.
type Store interface {
	CreateAccount(ctx context.Context, a *core.Account) error
	GetAccount(ctx context.Context, id int64) (*core.Account, error)
	ListAccounts(ctx context.Context) ([]core.Account, error)
	ListCategories(ctx context.Context) ([]core.Category, error)
	CreateBudget(ctx context.Context, b *core.Budget) error
	ListActiveBudgets(ctx context.Context) ([]core.Budget, error)
	CreateRecurring(ctx context.Context, rec *core.RecurringTransaction) error
	ListActiveRecurring(ctx context.Context) ([]core.RecurringTransaction, error)
	CreateRule(ctx context.Context, rule *core.ReconciliationRule) error
	ListActiveRules(ctx context.Context) ([]core.ReconciliationRule, error)
	ListTransactions(ctx context.Context, accountID int64, from, to time.Time) ([]storage.StoredTransaction, error)
	ListPendingPlanned(ctx context.Context, dueBy time.Time) ([]core.PlannedTransaction, error)
}

// SyncPublisher queues statement syncs for the worker.
type SyncPublisher interface {
	PublishSyncRequest(ctx context.Context, accountID int64, from, to time.Time) error
}

// Ledger records manual transactions through the same commit path as
// synced ones.
type Ledger interface {
	RecordManualTransaction(ctx context.Context, accountID int64, amount decimal.Decimal, category, description string, date time.Time) (*core.Transaction, error)
}

type Server struct {
	*http.Server
	store   Store
	sync    SyncPublisher
	ledger  Ledger
	limiter *middleware.RateLimiter
}

// Shutdown stops the HTTP server and the rate limiter's cleanup loop.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	return s.Server.Shutdown(ctx)
}

func NewServer(addr string, store Store, sync SyncPublisher, ledger Ledger, logger *applog.Logger) *Server {
	s := &Server{
		store:  store,
		sync:   sync,
		ledger: ledger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)
	mux.HandleFunc("GET /accounts", s.handleListAccounts)
	mux.HandleFunc("POST /accounts", s.handleCreateAccount)
	mux.HandleFunc("GET /categories", s.handleListCategories)
	mux.HandleFunc("GET /budgets", s.handleListBudgets)
	mux.HandleFunc("POST /budgets", s.handleCreateBudget)
	mux.HandleFunc("GET /recurring", s.handleListRecurring)
	mux.HandleFunc("POST /recurring", s.handleCreateRecurring)
	mux.HandleFunc("GET /rules", s.handleListRules)
	mux.HandleFunc("POST /rules", s.handleCreateRule)
	mux.HandleFunc("GET /transactions", s.handleListTransactions)
	mux.HandleFunc("POST /transactions", s.handleCreateTransaction)
	mux.HandleFunc("GET /planned", s.handleListPlanned)
	mux.HandleFunc("POST /sync", s.handleTriggerSync)

	s.limiter = middleware.NewRateLimiter(120)
	var handler http.Handler = mux
	handler = applog.Middleware(logger.WithComponent(applog.ComponentHTTP))(handler)
	handler = s.limiter.Middleware(handler)
	handler = middleware.RequestID(handler)

	s.Server = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps the domain error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case core.IsValidation(err),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrNegativeAmount),
		errors.Is(err, core.ErrInvalidInterval),
		errors.Is(err, core.ErrInvalidFrequency):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case core.IsConflict(err):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case core.IsState(err):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case errors.Is(err, sql.ErrNoRows):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
