// Package services orchestrates the domain: statement sync, recurring
// execution and budget tracking sit here, between transport and storage.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"finledger/internal/amqp"
	"finledger/internal/core"
	"finledger/internal/ingest"
	"finledger/internal/provider"
	"finledger/internal/reconcile"
	"finledger/internal/storage"
)

// SyncStore is the slice of the repository the sync service needs.
type SyncStore interface {
	GetAccount(ctx context.Context, id int64) (*core.Account, error)
	ListActiveRules(ctx context.Context) ([]core.ReconciliationRule, error)
	ListActiveBudgets(ctx context.Context) ([]core.Budget, error)
	ListUnlinkedBetween(ctx context.Context, from, to time.Time) ([]storage.StoredTransaction, error)
	CommitSyncBatch(ctx context.Context, batch storage.SyncBatch) (int, error)
}

// AlertPublisher fans out budget alerts after a batch commit.
type AlertPublisher interface {
	PublishBudgetAlert(ctx context.Context, alert *amqp.BudgetAlert) error
}

// SyncReport summarizes one account sync.
type SyncReport struct {
	Ingested   int
	Duplicates int
	Malformed  int
	Transfers  int
	Alerts     int
}

// SyncService pulls an account's statement from the provider, normalizes
// and deduplicates it, reconciles transfers against recent history, rolls
// spend into budgets, and commits everything as one batch.
type SyncService struct {
	store    SyncStore
	client   provider.Client
	pipeline *ingest.Pipeline
	alerts   AlertPublisher
	tracker  BudgetTracker
}

func NewSyncService(store SyncStore, client provider.Client, pipeline *ingest.Pipeline, alerts AlertPublisher) *SyncService {
	return &SyncService{
		store:    store,
		client:   client,
		pipeline: pipeline,
		alerts:   alerts,
	}
}

// reconcilePad widens the candidate window so cross-account legs just
// outside the sync range can still match.
const reconcilePad = 7 * 24 * time.Hour

// SyncAccount runs one sync for the account over [from, to].
func (s *SyncService) SyncAccount(ctx context.Context, accountID int64, from, to time.Time) (*SyncReport, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account %d: %w", accountID, err)
	}
	if account.Source == core.SourceManual {
		return nil, &core.StateError{Entity: "account", Reason: "manual accounts have no statement provider"}
	}

	externalID := account.ExternalID()
	entries, err := s.client.ListTransactions(ctx, externalID, from, to)
	if err != nil {
		return nil, fmt.Errorf("fetch statement: %w", err)
	}

	txs, result, err := s.pipeline.Normalize(ctx, externalID, entries)
	if err != nil {
		return nil, fmt.Errorf("normalize statement: %w", err)
	}

	report := &SyncReport{
		Ingested:   result.Ingested,
		Duplicates: result.Duplicates,
		Malformed:  result.Malformed,
	}
	if len(txs) == 0 {
		slog.InfoContext(ctx, "Sync found nothing new",
			"account_id", accountID,
			"duplicates", result.Duplicates,
			"malformed", result.Malformed)
		return report, nil
	}

	links, updates, err := s.reconcile(ctx, accountID, txs, from, to)
	if err != nil {
		return nil, err
	}
	report.Transfers = len(links)

	budgets, err := s.store.ListActiveBudgets(ctx)
	if err != nil {
		return nil, fmt.Errorf("load budgets: %w", err)
	}
	changedBudgets, alerts := s.tracker.ApplySpend(ctx, budgets, txs)
	report.Alerts = len(alerts)

	for _, tx := range txs {
		account.ApplyTransaction(tx.Amount, tx.Date)
	}

	deltas := categoryTotals(txs)
	addCommissionDeltas(deltas, links)

	batch := storage.SyncBatch{
		Account:         account,
		NewTransactions: make([]storage.StoredTransaction, 0, len(txs)),
		TransferUpdates: updates,
		CategoryDeltas:  deltas,
		Budgets:         changedBudgets,
	}
	for i := range txs {
		batch.NewTransactions = append(batch.NewTransactions, storage.StoredTransaction{
			Transaction: txs[i],
			AccountID:   accountID,
		})
	}

	if _, err := s.store.CommitSyncBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("commit sync batch: %w", err)
	}
	s.pipeline.MarkCommitted(txs)

	// Alerts go out only after the spend they describe is durable.
	for _, alert := range alerts {
		if err := s.alerts.PublishBudgetAlert(ctx, alert); err != nil {
			slog.ErrorContext(ctx, "Failed to publish budget alert",
				"budget_id", alert.BudgetID,
				"error", err)
		}
	}

	slog.InfoContext(ctx, "Account synced",
		"account_id", accountID,
		"ingested", report.Ingested,
		"duplicates", report.Duplicates,
		"malformed", report.Malformed,
		"transfers", report.Transfers,
		"alerts", report.Alerts)
	return report, nil
}

// reconcile matches the fresh transactions against unlinked history in a
// padded window. It returns the links and the transfer-field updates for
// legs that already live in storage.
func (s *SyncService) reconcile(ctx context.Context, accountID int64, txs []core.Transaction, from, to time.Time) ([]reconcile.Link, []*core.Transaction, error) {
	rules, err := s.store.ListActiveRules(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load reconciliation rules: %w", err)
	}
	if len(rules) == 0 {
		return nil, nil, nil
	}

	matcher, err := reconcile.NewMatcher(rules)
	if err != nil {
		return nil, nil, fmt.Errorf("build matcher: %w", err)
	}

	stored, err := s.store.ListUnlinkedBetween(ctx, from.Add(-reconcilePad), to.Add(reconcilePad))
	if err != nil {
		return nil, nil, fmt.Errorf("load reconciliation candidates: %w", err)
	}

	legs := make([]reconcile.Leg, 0, len(txs)+len(stored))
	for i := range txs {
		legs = append(legs, reconcile.Leg{Tx: &txs[i], AccountID: accountID})
	}
	fresh := map[string]bool{}
	for i := range txs {
		fresh[txs[i].Hash] = true
	}
	for i := range stored {
		if fresh[stored[i].Hash] {
			continue
		}
		legs = append(legs, reconcile.Leg{Tx: &stored[i].Transaction, AccountID: stored[i].AccountID})
	}

	links := matcher.Reconcile(legs)

	// Fresh legs carry their transfer fields into the insert; stored legs
	// need an explicit update.
	var updates []*core.Transaction
	for _, link := range links {
		for _, leg := range []*core.Transaction{link.Debit, link.Credit} {
			if !fresh[leg.Hash] {
				updates = append(updates, leg)
			}
		}
	}
	return links, updates, nil
}

// RecordManualTransaction appends a hand-entered transaction to a manual
// account and rolls it into balances and budgets like any synced one.
func (s *SyncService) RecordManualTransaction(ctx context.Context, accountID int64, amount decimal.Decimal, category, description string, date time.Time) (*core.Transaction, error) {
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account %d: %w", accountID, err)
	}

	id := uuid.NewString()
	tx := core.Transaction{
		TransactionID: id,
		Date:          date.UTC(),
		Amount:        amount,
		Description:   description,
		Category:      category,
		Source:        account.Source,
		Hash:          core.Fingerprint(id, amount, date, account.Source),
		Status:        core.StatusNormal,
	}

	budgets, err := s.store.ListActiveBudgets(ctx)
	if err != nil {
		return nil, fmt.Errorf("load budgets: %w", err)
	}
	changedBudgets, alerts := s.tracker.ApplySpend(ctx, budgets, []core.Transaction{tx})

	account.ApplyTransaction(tx.Amount, tx.Date)

	batch := storage.SyncBatch{
		Account:         account,
		NewTransactions: []storage.StoredTransaction{{Transaction: tx, AccountID: accountID}},
		CategoryDeltas:  categoryTotals([]core.Transaction{tx}),
		Budgets:         changedBudgets,
	}
	if _, err := s.store.CommitSyncBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("commit manual transaction: %w", err)
	}

	for _, alert := range alerts {
		if err := s.alerts.PublishBudgetAlert(ctx, alert); err != nil {
			slog.ErrorContext(ctx, "Failed to publish budget alert",
				"budget_id", alert.BudgetID,
				"error", err)
		}
	}

	slog.InfoContext(ctx, "Manual transaction recorded",
		"account_id", accountID,
		"amount", tx.Amount.String(),
		"category", category)
	return &tx, nil
}

// categoryTotals sums categorized transactions per category for the
// running counters. Uncategorized entries are left out.
func categoryTotals(txs []core.Transaction) map[string]storage.CategoryDelta {
	totals := map[string]storage.CategoryDelta{}
	for _, tx := range txs {
		if tx.Category == "" {
			continue
		}
		d := totals[tx.Category]
		d.Amount = d.Amount.Add(tx.Amount)
		d.Count++
		totals[tx.Category] = d
	}
	return totals
}

// addCommissionDeltas files each transfer residual under its rule's
// commission category, so fees between own accounts still show up in the
// category aggregates.
func addCommissionDeltas(deltas map[string]storage.CategoryDelta, links []reconcile.Link) {
	for _, link := range links {
		if link.Commission.Sign() <= 0 || link.CommissionCategory == "" {
			continue
		}
		d := deltas[link.CommissionCategory]
		d.Amount = d.Amount.Add(link.Commission)
		d.Count++
		deltas[link.CommissionCategory] = d
	}
}
