package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"finledger/internal/core"
)

// CategoryDelta is the per-category effect of a batch: the signed amount
// sum and how many entries contributed to it.
type CategoryDelta struct {
	Amount decimal.Decimal
	Count  int64
}

// SyncBatch is the unit of work produced by one account sync: the
// normalized transactions to insert, transfer links discovered by
// reconciliation, category counters and budget spend to roll forward,
// and the refreshed account balance. It commits atomically.
type SyncBatch struct {
	Account         *core.Account
	NewTransactions []StoredTransaction
	TransferUpdates []*core.Transaction
	CategoryDeltas  map[string]CategoryDelta
	Budgets         []core.Budget
}

// CommitSyncBatch applies the batch in a single transaction and returns
// the number of rows actually inserted. Rows hitting a unique constraint
// are skipped, so replaying an overlapping statement window is safe.
func (r *Repository) CommitSyncBatch(ctx context.Context, batch SyncBatch) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin sync batch: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for _, st := range batch.NewTransactions {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO transactions (transaction_id, account_id, date, amount, description, category,
			        source, hash, transfer_id, status, transfer_commission)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			st.TransactionID, st.AccountID, st.Date.UTC(), st.Amount.String(), st.Description, st.Category,
			st.Source, st.Hash, st.TransferID, string(st.Status), st.TransferCommission.String())
		if err != nil {
			mapped := mapConflict(err, "transaction", st.TransactionID)
			var conflict *core.ConflictError
			if errors.As(mapped, &conflict) {
				slog.DebugContext(ctx, "Skipping duplicate transaction", "transaction_id", st.TransactionID)
				continue
			}
			return 0, fmt.Errorf("insert transaction: %w", err)
		}
		inserted++
	}

	for _, t := range batch.TransferUpdates {
		_, err := tx.ExecContext(ctx,
			`UPDATE transactions SET transfer_id = ?, status = ?, transfer_commission = ?
			 WHERE transaction_id = ?`,
			t.TransferID, string(t.Status), t.TransferCommission.String(), t.TransactionID)
		if err != nil {
			return 0, fmt.Errorf("update transfer link: %w", err)
		}
	}

	for name, delta := range batch.CategoryDeltas {
		if err := upsertCategoryDelta(ctx, tx, name, delta); err != nil {
			return 0, err
		}
	}

	for _, b := range batch.Budgets {
		if err := r.updateBudget(ctx, tx, b); err != nil {
			return 0, err
		}
	}

	if batch.Account != nil {
		_, err := tx.ExecContext(ctx,
			`UPDATE accounts SET balance = ?, updated_at = ? WHERE id = ?`,
			batch.Account.Balance.String(), nullableTime(batch.Account.UpdatedAt), batch.Account.ID)
		if err != nil {
			return 0, fmt.Errorf("update account balance: %w", err)
		}
	}

	// A cancelled sync must not half-apply: bail before commit.
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit sync batch: %w", err)
	}

	slog.InfoContext(ctx, "Sync batch committed",
		"inserted", inserted,
		"transfer_updates", len(batch.TransferUpdates),
		"budgets", len(batch.Budgets))
	return inserted, nil
}

// upsertCategoryDelta folds a batch's per-category effect into the running
// aggregates: the signed amount and the entry count.
func upsertCategoryDelta(ctx context.Context, tx *sql.Tx, name string, delta CategoryDelta) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO categories (name, amount, tx_count) VALUES (?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET
		        amount = CAST(CAST(amount AS REAL) + CAST(excluded.amount AS REAL) AS TEXT),
		        tx_count = tx_count + excluded.tx_count`,
		name, delta.Amount.String(), delta.Count)
	if err != nil {
		return fmt.Errorf("update category totals: %w", err)
	}
	return nil
}

// SaveRecurringExecution persists one execution of a recurring
// transaction: the updated schedule, the materialized plan, and, when
// the plan was auto-realized, the ledger transaction plus the account
// balance it moved. All or nothing.
func (r *Repository) SaveRecurringExecution(ctx context.Context, rec core.RecurringTransaction, plan core.PlannedTransaction, realized *StoredTransaction, account *core.Account) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin recurring execution: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE recurring_transactions SET next_occurrence = ?, last_occurrence = ?,
		        occurrence_count = ?, is_active = ? WHERE id = ?`,
		nullableTime(rec.NextOccurrence), nullableTime(rec.LastOccurrence),
		rec.OccurrenceCount, rec.IsActive, rec.ID)
	if err != nil {
		return fmt.Errorf("update recurring transaction: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO planned_transactions (id, recurring_id, account_id, amount, category, description,
		        due_date, status, realized_transaction_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		plan.ID, plan.RecurringID, plan.AccountID, plan.Amount.String(), plan.Category,
		plan.Description, plan.DueDate.UTC(), string(plan.Status), plan.RealizedTransactionID)
	if err != nil {
		return fmt.Errorf("insert planned transaction: %w", mapConflict(err, "planned transaction", plan.ID))
	}

	if realized != nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO transactions (transaction_id, account_id, date, amount, description, category,
			        source, hash, transfer_id, status, transfer_commission)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			realized.TransactionID, realized.AccountID, realized.Date.UTC(), realized.Amount.String(),
			realized.Description, realized.Category, realized.Source, realized.Hash,
			realized.TransferID, string(realized.Status), realized.TransferCommission.String())
		if err != nil {
			return fmt.Errorf("insert realized transaction: %w", mapConflict(err, "transaction", realized.TransactionID))
		}

		// Recurring spend rolls into the category aggregates like any
		// other committed transaction.
		if realized.Category != "" {
			if err := upsertCategoryDelta(ctx, tx, realized.Category,
				CategoryDelta{Amount: realized.Amount, Count: 1}); err != nil {
				return err
			}
		}
	}

	if account != nil {
		_, err = tx.ExecContext(ctx,
			`UPDATE accounts SET balance = ?, updated_at = ? WHERE id = ?`,
			account.Balance.String(), nullableTime(account.UpdatedAt), account.ID)
		if err != nil {
			return fmt.Errorf("update account balance: %w", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit recurring execution: %w", err)
	}

	slog.InfoContext(ctx, "Recurring execution saved",
		"recurring_id", rec.ID,
		"plan_id", plan.ID,
		"auto_realized", realized != nil)
	return nil
}

// --- planned transactions ---

func (r *Repository) CreatePlanned(ctx context.Context, p core.PlannedTransaction) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO planned_transactions (id, recurring_id, account_id, amount, category, description,
		        due_date, status, realized_transaction_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.RecurringID, p.AccountID, p.Amount.String(), p.Category, p.Description,
		p.DueDate.UTC(), string(p.Status), p.RealizedTransactionID)
	if err != nil {
		return fmt.Errorf("create planned transaction: %w", mapConflict(err, "planned transaction", p.ID))
	}
	return nil
}

func (r *Repository) GetPlanned(ctx context.Context, id string) (*core.PlannedTransaction, error) {
	var p core.PlannedTransaction
	var amount, status string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, recurring_id, account_id, amount, category, description, due_date, status, realized_transaction_id
		 FROM planned_transactions WHERE id = ?`, id).
		Scan(&p.ID, &p.RecurringID, &p.AccountID, &amount, &p.Category, &p.Description,
			&p.DueDate, &status, &p.RealizedTransactionID)
	if err != nil {
		return nil, fmt.Errorf("get planned transaction: %w", err)
	}
	p.Amount = scanDecimal(amount)
	p.Status = core.PlannedStatus(status)
	return &p, nil
}

func (r *Repository) ListPendingPlanned(ctx context.Context, dueBy time.Time) ([]core.PlannedTransaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, recurring_id, account_id, amount, category, description, due_date, status, realized_transaction_id
		 FROM planned_transactions WHERE status = ? AND due_date <= ? ORDER BY due_date, id`,
		string(core.PlannedPending), dueBy.UTC())
	if err != nil {
		return nil, fmt.Errorf("list pending planned transactions: %w", err)
	}
	defer rows.Close()

	var plans []core.PlannedTransaction
	for rows.Next() {
		var p core.PlannedTransaction
		var amount, status string
		if err := rows.Scan(&p.ID, &p.RecurringID, &p.AccountID, &amount, &p.Category,
			&p.Description, &p.DueDate, &status, &p.RealizedTransactionID); err != nil {
			return nil, fmt.Errorf("scan planned transaction: %w", err)
		}
		p.Amount = scanDecimal(amount)
		p.Status = core.PlannedStatus(status)
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

func (r *Repository) UpdatePlanned(ctx context.Context, p core.PlannedTransaction) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE planned_transactions SET status = ?, realized_transaction_id = ? WHERE id = ?`,
		string(p.Status), p.RealizedTransactionID, p.ID)
	if err != nil {
		return fmt.Errorf("update planned transaction: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
