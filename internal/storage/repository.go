// Package storage persists the ledger aggregates in SQLite. Monetary
// amounts are stored as decimal strings; the unique constraints on
// transactions.transaction_id, transactions.hash and categories.name back
// the idempotency guarantees of the ingestion pipeline.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finledger/internal/core"
	"finledger/internal/provider"

	_ "modernc.org/sqlite"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// mapConflict translates a sqlite unique-constraint violation into a
// ConflictError so callers can treat it as "already exists".
func mapConflict(err error, entity, key string) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return &core.ConflictError{Entity: entity, Key: key}
	}
	return err
}

func scanDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

// --- accounts ---

func (r *Repository) CreateAccount(ctx context.Context, a *core.Account) error {
	if err := a.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (name, source, balance, group_id, updated_at) VALUES (?, ?, ?, ?, ?)`,
		a.Name, a.Source, a.Balance.String(), a.GroupID, nullableTime(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("create account: %w", mapConflict(err, "account", a.Source))
	}
	a.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("account insert id: %w", err)
	}

	slog.InfoContext(ctx, "Account created", "id", a.ID, "name", a.Name, "source", a.Source)
	return nil
}

func (r *Repository) GetAccount(ctx context.Context, id int64) (*core.Account, error) {
	return r.scanAccount(r.db.QueryRowContext(ctx,
		`SELECT id, name, source, balance, group_id, updated_at FROM accounts WHERE id = ?`, id))
}

func (r *Repository) GetAccountBySource(ctx context.Context, source string) (*core.Account, error) {
	return r.scanAccount(r.db.QueryRowContext(ctx,
		`SELECT id, name, source, balance, group_id, updated_at FROM accounts WHERE source = ?`, source))
}

func (r *Repository) ListAccounts(ctx context.Context) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, source, balance, group_id, updated_at FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []core.Account
	for rows.Next() {
		a, err := r.scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scanAccount(row rowScanner) (*core.Account, error) {
	var a core.Account
	var balance string
	var groupID sql.NullInt64
	var updatedAt sql.NullTime
	if err := row.Scan(&a.ID, &a.Name, &a.Source, &balance, &groupID, &updatedAt); err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	a.Balance = scanDecimal(balance)
	if groupID.Valid {
		a.GroupID = &groupID.Int64
	}
	if updatedAt.Valid {
		a.UpdatedAt = updatedAt.Time
	}
	return &a, nil
}

func (r *Repository) UpdateAccount(ctx context.Context, a core.Account) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET name = ?, balance = ?, group_id = ?, updated_at = ? WHERE id = ?`,
		a.Name, a.Balance.String(), a.GroupID, nullableTime(a.UpdatedAt), a.ID)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return nil
}

// --- categories ---

func (r *Repository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name, amount, tx_count FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []core.Category
	for rows.Next() {
		var c core.Category
		var amount string
		if err := rows.Scan(&c.Name, &amount, &c.Count); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Amount = scanDecimal(amount)
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// --- budgets ---

func (r *Repository) CreateBudget(ctx context.Context, b *core.Budget) error {
	if err := b.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO budgets (name, category, spend_limit, spent, frequency, start_date, end_date, active, alert_threshold, description)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.Name, b.Category, b.Limit.String(), b.Spent.String(), string(b.Frequency),
		b.StartDate.UTC(), nullableTime(b.EndDate), b.Active, b.AlertThreshold, b.Description)
	if err != nil {
		return fmt.Errorf("create budget: %w", err)
	}
	b.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("budget insert id: %w", err)
	}
	return nil
}

func (r *Repository) ListActiveBudgets(ctx context.Context) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, category, spend_limit, spent, frequency, start_date, end_date, active, alert_threshold, description
		 FROM budgets WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list active budgets: %w", err)
	}
	defer rows.Close()

	var budgets []core.Budget
	for rows.Next() {
		var b core.Budget
		var limit, spent, frequency string
		var endDate sql.NullTime
		if err := rows.Scan(&b.ID, &b.Name, &b.Category, &limit, &spent, &frequency,
			&b.StartDate, &endDate, &b.Active, &b.AlertThreshold, &b.Description); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		b.Limit = scanDecimal(limit)
		b.Spent = scanDecimal(spent)
		b.Frequency = core.Frequency(frequency)
		if endDate.Valid {
			b.EndDate = endDate.Time
		}
		budgets = append(budgets, b)
	}
	return budgets, rows.Err()
}

func (r *Repository) UpdateBudget(ctx context.Context, b core.Budget) error {
	return r.updateBudget(ctx, r.db, b)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *Repository) updateBudget(ctx context.Context, ex execer, b core.Budget) error {
	_, err := ex.ExecContext(ctx,
		`UPDATE budgets SET name = ?, category = ?, spend_limit = ?, spent = ?, frequency = ?,
		        start_date = ?, end_date = ?, active = ?, alert_threshold = ?, description = ?
		 WHERE id = ?`,
		b.Name, b.Category, b.Limit.String(), b.Spent.String(), string(b.Frequency),
		b.StartDate.UTC(), nullableTime(b.EndDate), b.Active, b.AlertThreshold, b.Description, b.ID)
	if err != nil {
		return fmt.Errorf("update budget: %w", err)
	}
	return nil
}

// --- reconciliation rules ---

func (r *Repository) CreateRule(ctx context.Context, rule *core.ReconciliationRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO reconciliation_rules (name, source_account_id, target_account_id, counterparty_pattern,
		        account_pattern, max_days_difference, max_commission_percent, active, commission_category)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.Name, rule.SourceAccountID, rule.TargetAccountID, rule.CounterpartyPattern,
		rule.AccountPattern, rule.MaxDaysDifference, rule.MaxCommissionPercent, rule.Active, rule.CommissionCategory)
	if err != nil {
		return fmt.Errorf("create rule: %w", err)
	}
	rule.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("rule insert id: %w", err)
	}
	return nil
}

// ListActiveRules returns active rules ordered by id, which is the stable
// evaluation order the matcher relies on.
func (r *Repository) ListActiveRules(ctx context.Context) ([]core.ReconciliationRule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, source_account_id, target_account_id, counterparty_pattern, account_pattern,
		        max_days_difference, max_commission_percent, active, commission_category
		 FROM reconciliation_rules WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	defer rows.Close()

	var rules []core.ReconciliationRule
	for rows.Next() {
		var rule core.ReconciliationRule
		if err := rows.Scan(&rule.ID, &rule.Name, &rule.SourceAccountID, &rule.TargetAccountID,
			&rule.CounterpartyPattern, &rule.AccountPattern, &rule.MaxDaysDifference,
			&rule.MaxCommissionPercent, &rule.Active, &rule.CommissionCategory); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// --- recurring transactions ---

func (r *Repository) CreateRecurring(ctx context.Context, rec *core.RecurringTransaction) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO recurring_transactions (description, amount, category, account_id, frequency, interval,
		        start_date, end_date, next_occurrence, last_occurrence, occurrence_count, is_active,
		        auto_execute, reminder_days, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Description, rec.Amount.String(), rec.Category, rec.AccountID, string(rec.Frequency), rec.Interval,
		rec.StartDate.UTC(), nullableTime(rec.EndDate), nullableTime(rec.NextOccurrence),
		nullableTime(rec.LastOccurrence), rec.OccurrenceCount, rec.IsActive,
		rec.AutoExecute, rec.ReminderDays, rec.Notes)
	if err != nil {
		return fmt.Errorf("create recurring transaction: %w", err)
	}
	rec.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("recurring insert id: %w", err)
	}
	return nil
}

func (r *Repository) ListActiveRecurring(ctx context.Context) ([]core.RecurringTransaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, description, amount, category, account_id, frequency, interval, start_date, end_date,
		        next_occurrence, last_occurrence, occurrence_count, is_active, auto_execute, reminder_days, notes
		 FROM recurring_transactions WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list active recurring transactions: %w", err)
	}
	defer rows.Close()

	var recs []core.RecurringTransaction
	for rows.Next() {
		var rec core.RecurringTransaction
		var amount, frequency string
		var endDate, next, last sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.Description, &amount, &rec.Category, &rec.AccountID,
			&frequency, &rec.Interval, &rec.StartDate, &endDate, &next, &last,
			&rec.OccurrenceCount, &rec.IsActive, &rec.AutoExecute, &rec.ReminderDays, &rec.Notes); err != nil {
			return nil, fmt.Errorf("scan recurring transaction: %w", err)
		}
		rec.Amount = scanDecimal(amount)
		rec.Frequency = core.Frequency(frequency)
		if endDate.Valid {
			rec.EndDate = endDate.Time
		}
		if next.Valid {
			rec.NextOccurrence = next.Time
		}
		if last.Valid {
			rec.LastOccurrence = last.Time
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// --- transactions ---

// StoredTransaction pairs a transaction with its owning account.
type StoredTransaction struct {
	core.Transaction
	AccountID int64
}

func (r *Repository) HasFingerprint(ctx context.Context, hash string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM transactions WHERE hash = ?`, hash).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check fingerprint: %w", err)
	}
	return n > 0, nil
}

// ListUnlinkedBetween returns transactions without a transfer link whose
// date falls in [from, to]. Used to build the reconciliation candidate
// pool around a freshly ingested batch.
func (r *Repository) ListUnlinkedBetween(ctx context.Context, from, to time.Time) ([]StoredTransaction, error) {
	rows, err := r.db.QueryContext(ctx, selectTransaction+
		` WHERE transfer_id = '' AND date >= ? AND date <= ? ORDER BY date, id`,
		from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("list unlinked transactions: %w", err)
	}
	return scanTransactions(rows)
}

func (r *Repository) ListTransactions(ctx context.Context, accountID int64, from, to time.Time) ([]StoredTransaction, error) {
	rows, err := r.db.QueryContext(ctx, selectTransaction+
		` WHERE account_id = ? AND date >= ? AND date <= ? ORDER BY date, id`,
		accountID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return scanTransactions(rows)
}

const selectTransaction = `SELECT id, transaction_id, account_id, date, amount, description, category,
        source, hash, transfer_id, status, transfer_commission FROM transactions`

func scanTransactions(rows *sql.Rows) ([]StoredTransaction, error) {
	defer rows.Close()

	var txs []StoredTransaction
	for rows.Next() {
		var st StoredTransaction
		var amount, status, commission string
		if err := rows.Scan(&st.Transaction.ID, &st.TransactionID, &st.AccountID, &st.Date, &amount,
			&st.Description, &st.Category, &st.Source, &st.Hash, &st.TransferID, &status, &commission); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		st.Amount = scanDecimal(amount)
		st.Status = core.TransactionStatus(status)
		st.TransferCommission = scanDecimal(commission)
		txs = append(txs, st)
	}
	return txs, rows.Err()
}

// --- currency rates ---

func (r *Repository) UpsertCurrencyRates(ctx context.Context, rates []provider.RatePair) error {
	for _, rate := range rates {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO currency_rates (currency_code_a, currency_code_b, rate_buy, rate_sell, rate_cross, date)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (currency_code_a, currency_code_b) DO UPDATE SET
			        rate_buy = excluded.rate_buy, rate_sell = excluded.rate_sell,
			        rate_cross = excluded.rate_cross, date = excluded.date`,
			rate.CurrencyCodeA, rate.CurrencyCodeB, rate.RateBuy, rate.RateSell, rate.RateCross, rate.Date.UTC())
		if err != nil {
			return fmt.Errorf("upsert currency rate: %w", err)
		}
	}
	return nil
}
