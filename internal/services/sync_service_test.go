package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finledger/internal/amqp"
	"finledger/internal/core"
	"finledger/internal/ingest"
	"finledger/internal/provider"
	"finledger/internal/storage"
)

type fakeStore struct {
	account   *core.Account
	rules     []core.ReconciliationRule
	budgets   []core.Budget
	stored    []storage.StoredTransaction
	committed []storage.SyncBatch
	commitErr error
	hashes    map[string]bool
}

func (s *fakeStore) GetAccount(ctx context.Context, id int64) (*core.Account, error) {
	if s.account == nil || s.account.ID != id {
		return nil, errors.New("account not found")
	}
	cp := *s.account
	return &cp, nil
}

func (s *fakeStore) ListActiveRules(ctx context.Context) ([]core.ReconciliationRule, error) {
	return s.rules, nil
}

func (s *fakeStore) ListActiveBudgets(ctx context.Context) ([]core.Budget, error) {
	return s.budgets, nil
}

func (s *fakeStore) ListUnlinkedBetween(ctx context.Context, from, to time.Time) ([]storage.StoredTransaction, error) {
	return s.stored, nil
}

func (s *fakeStore) CommitSyncBatch(ctx context.Context, batch storage.SyncBatch) (int, error) {
	if s.commitErr != nil {
		return 0, s.commitErr
	}
	s.committed = append(s.committed, batch)
	return len(batch.NewTransactions), nil
}

func (s *fakeStore) HasFingerprint(ctx context.Context, hash string) (bool, error) {
	return s.hashes[hash], nil
}

type fakeProvider struct {
	entries []provider.StatementEntry
	err     error
}

func (p *fakeProvider) ListAccounts(ctx context.Context) ([]provider.AccountSummary, error) {
	return nil, nil
}

func (p *fakeProvider) ListTransactions(ctx context.Context, accountID string, from, to time.Time) ([]provider.StatementEntry, error) {
	return p.entries, p.err
}

func (p *fakeProvider) ListCurrencyRates(ctx context.Context) ([]provider.RatePair, error) {
	return nil, nil
}

type fakeAlerts struct {
	published []*amqp.BudgetAlert
}

func (a *fakeAlerts) PublishBudgetAlert(ctx context.Context, alert *amqp.BudgetAlert) error {
	a.published = append(a.published, alert)
	return nil
}

func entry(id string, amountMinor int64, ts int64) provider.StatementEntry {
	return provider.StatementEntry{
		ExternalID:       id,
		TimestampSeconds: ts,
		AmountMinor:      amountMinor,
		Description:      "POS purchase",
	}
}

func newSyncFixture(store *fakeStore, client provider.Client) (*SyncService, *fakeAlerts) {
	if store.hashes == nil {
		store.hashes = map[string]bool{}
	}
	alerts := &fakeAlerts{}
	pipeline := ingest.New(store, "monobank")
	return NewSyncService(store, client, pipeline, alerts), alerts
}

var syncWindow = struct{ from, to time.Time }{
	from: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	to:   time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
}

func TestSyncAccountIngestsStatement(t *testing.T) {
	store := &fakeStore{
		account: &core.Account{ID: 1, Name: "Card", Source: "monobank:acc1", Balance: decimal.NewFromInt(100)},
	}
	client := &fakeProvider{entries: []provider.StatementEntry{
		entry("t1", -4550, time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC).Unix()),
		entry("t2", 20000, time.Date(2025, 6, 11, 9, 0, 0, 0, time.UTC).Unix()),
	}}
	svc, _ := newSyncFixture(store, client)

	report, err := svc.SyncAccount(context.Background(), 1, syncWindow.from, syncWindow.to)
	if err != nil {
		t.Fatalf("SyncAccount failed: %v", err)
	}
	if report.Ingested != 2 || report.Duplicates != 0 || report.Malformed != 0 {
		t.Errorf("report = %+v, want 2 ingested", report)
	}

	if len(store.committed) != 1 {
		t.Fatalf("got %d commits, want 1", len(store.committed))
	}
	batch := store.committed[0]
	if len(batch.NewTransactions) != 2 {
		t.Fatalf("got %d new transactions, want 2", len(batch.NewTransactions))
	}
	if batch.NewTransactions[0].AccountID != 1 {
		t.Errorf("transactions must carry the account id")
	}
	// 100 - 45.50 + 200 = 254.50
	if !batch.Account.Balance.Equal(decimal.RequireFromString("254.5")) {
		t.Errorf("balance = %s, want 254.5", batch.Account.Balance)
	}
}

func TestSyncAccountRejectsManualAccount(t *testing.T) {
	store := &fakeStore{
		account: &core.Account{ID: 1, Name: "Cash", Source: core.SourceManual},
	}
	svc, _ := newSyncFixture(store, &fakeProvider{})

	if _, err := svc.SyncAccount(context.Background(), 1, syncWindow.from, syncWindow.to); !core.IsState(err) {
		t.Errorf("expected StateError for manual account, got %v", err)
	}
}

func TestSyncAccountIdempotentReplay(t *testing.T) {
	store := &fakeStore{
		account: &core.Account{ID: 1, Name: "Card", Source: "monobank:acc1"},
	}
	client := &fakeProvider{entries: []provider.StatementEntry{
		entry("t1", -4550, time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC).Unix()),
	}}
	svc, _ := newSyncFixture(store, client)

	first, err := svc.SyncAccount(context.Background(), 1, syncWindow.from, syncWindow.to)
	if err != nil {
		t.Fatalf("first sync failed: %v", err)
	}
	if first.Ingested != 1 {
		t.Fatalf("first sync ingested = %d, want 1", first.Ingested)
	}

	second, err := svc.SyncAccount(context.Background(), 1, syncWindow.from, syncWindow.to)
	if err != nil {
		t.Fatalf("second sync failed: %v", err)
	}
	if second.Ingested != 0 || second.Duplicates != 1 {
		t.Errorf("replay report = %+v, want 0 ingested / 1 duplicate", second)
	}
	if len(store.committed) != 1 {
		t.Errorf("replay must not commit a second batch, got %d", len(store.committed))
	}
}

func TestSyncAccountReconcilesAgainstStoredLeg(t *testing.T) {
	credit := storage.StoredTransaction{
		Transaction: core.Transaction{
			TransactionID: "stored-credit",
			Date:          time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC),
			Amount:        decimal.NewFromInt(490),
			Hash:          "stored-hash",
			Status:        core.StatusNormal,
		},
		AccountID: 2,
	}
	store := &fakeStore{
		account: &core.Account{ID: 1, Name: "Card", Source: "monobank:acc1"},
		rules: []core.ReconciliationRule{{
			Name:                 "card to savings",
			SourceAccountID:      1,
			TargetAccountID:      2,
			MaxDaysDifference:    2,
			MaxCommissionPercent: 3,
			Active:               true,
			CommissionCategory:   "other",
		}},
		stored: []storage.StoredTransaction{credit},
	}
	client := &fakeProvider{entries: []provider.StatementEntry{
		entry("debit", -50000, time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC).Unix()),
	}}
	svc, _ := newSyncFixture(store, client)

	report, err := svc.SyncAccount(context.Background(), 1, syncWindow.from, syncWindow.to)
	if err != nil {
		t.Fatalf("SyncAccount failed: %v", err)
	}
	if report.Transfers != 1 {
		t.Fatalf("transfers = %d, want 1", report.Transfers)
	}

	batch := store.committed[0]
	if len(batch.TransferUpdates) != 1 {
		t.Fatalf("got %d transfer updates, want 1 (the stored leg)", len(batch.TransferUpdates))
	}
	if batch.TransferUpdates[0].TransactionID != "stored-credit" {
		t.Errorf("update targets %q, want stored-credit", batch.TransferUpdates[0].TransactionID)
	}
	if batch.NewTransactions[0].Status != core.StatusTransfer {
		t.Errorf("fresh leg must be inserted already linked")
	}
	if batch.NewTransactions[0].TransferID == "" ||
		batch.NewTransactions[0].TransferID != batch.TransferUpdates[0].TransferID {
		t.Errorf("both legs must share a transfer id")
	}

	// The 10.00 residual between the legs is filed under the rule's
	// commission category.
	commission := batch.CategoryDeltas["other"]
	if !commission.Amount.Equal(decimal.NewFromInt(10)) {
		t.Errorf("commission delta = %s, want 10", commission.Amount)
	}
	if commission.Count != 1 {
		t.Errorf("commission count = %d, want 1", commission.Count)
	}
	larger := batch.NewTransactions[0]
	if !larger.TransferCommission.Equal(decimal.NewFromInt(10)) {
		t.Errorf("larger leg commission = %s, want 10", larger.TransferCommission)
	}
}

func TestSyncAccountPublishesAlertsAfterCommit(t *testing.T) {
	store := &fakeStore{
		account: &core.Account{ID: 1, Name: "Card", Source: "monobank:acc1"},
		budgets: []core.Budget{activeBudget(9, "", 100, 70)},
	}
	client := &fakeProvider{entries: []provider.StatementEntry{
		entry("t1", -1500, time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC).Unix()),
	}}
	svc, alerts := newSyncFixture(store, client)

	report, err := svc.SyncAccount(context.Background(), 1, syncWindow.from, syncWindow.to)
	if err != nil {
		t.Fatalf("SyncAccount failed: %v", err)
	}
	if report.Alerts != 1 || len(alerts.published) != 1 {
		t.Fatalf("expected one published alert, report=%+v published=%d", report, len(alerts.published))
	}
	if alerts.published[0].BudgetID != 9 {
		t.Errorf("alert budget = %d, want 9", alerts.published[0].BudgetID)
	}
}

func TestSyncAccountCommitFailureSuppressesAlerts(t *testing.T) {
	store := &fakeStore{
		account:   &core.Account{ID: 1, Name: "Card", Source: "monobank:acc1"},
		budgets:   []core.Budget{activeBudget(9, "", 100, 70)},
		commitErr: errors.New("disk full"),
	}
	client := &fakeProvider{entries: []provider.StatementEntry{
		entry("t1", -1500, time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC).Unix()),
	}}
	svc, alerts := newSyncFixture(store, client)

	if _, err := svc.SyncAccount(context.Background(), 1, syncWindow.from, syncWindow.to); err == nil {
		t.Fatal("expected commit error")
	}
	if len(alerts.published) != 0 {
		t.Errorf("alerts must not be published when the commit fails")
	}
}

func TestRecordManualTransaction(t *testing.T) {
	store := &fakeStore{
		account: &core.Account{ID: 1, Name: "Cash", Source: core.SourceManual, Balance: decimal.NewFromInt(50)},
		hashes:  map[string]bool{},
	}
	svc, _ := newSyncFixture(store, &fakeProvider{})

	tx, err := svc.RecordManualTransaction(context.Background(), 1,
		decimal.NewFromInt(-20), "dining", "lunch", time.Date(2025, 6, 10, 13, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("RecordManualTransaction failed: %v", err)
	}
	if tx.TransactionID == "" || tx.Hash == "" {
		t.Errorf("manual transaction must get an id and fingerprint")
	}
	if tx.Category != "dining" {
		t.Errorf("category = %q, want dining", tx.Category)
	}

	batch := store.committed[0]
	if !batch.Account.Balance.Equal(decimal.NewFromInt(30)) {
		t.Errorf("balance = %s, want 30", batch.Account.Balance)
	}
	dining := batch.CategoryDeltas["dining"]
	if !dining.Amount.Equal(decimal.NewFromInt(-20)) {
		t.Errorf("category delta = %s, want -20", dining.Amount)
	}
	if dining.Count != 1 {
		t.Errorf("category count = %d, want 1", dining.Count)
	}
}
