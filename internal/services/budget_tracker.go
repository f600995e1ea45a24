package services

import (
	"context"
	"log/slog"
	"time"

	"finledger/internal/amqp"
	"finledger/internal/core"
)

// BudgetTracker rolls transaction spend into the budgets that cover it
// and reports threshold crossings.
type BudgetTracker struct{}

// ApplySpend registers every normal expense against the budgets covering
// its category and date. It returns the budgets that changed and an alert
// for each budget that crossed its threshold during this batch. Transfers
// and commissions never count as spend.
func (BudgetTracker) ApplySpend(ctx context.Context, budgets []core.Budget, txs []core.Transaction) ([]core.Budget, []*amqp.BudgetAlert) {
	touched := make(map[int64]bool)
	var alerts []*amqp.BudgetAlert

	for i := range budgets {
		b := &budgets[i]
		alertedBefore := b.ShouldAlert()

		for _, tx := range txs {
			if !tx.IsExpense() || tx.Status != core.StatusNormal {
				continue
			}
			if !b.Covers(tx.Category, tx.Date) {
				continue
			}
			if err := b.RegisterExpense(tx.Amount.Abs()); err != nil {
				slog.WarnContext(ctx, "Skipping invalid budget spend",
					"budget_id", b.ID,
					"amount", tx.Amount.String(),
					"error", err)
				continue
			}
			touched[b.ID] = true
		}

		if !alertedBefore && b.ShouldAlert() {
			alerts = append(alerts, amqp.NewBudgetAlert(b.ID, b.Name, b.Category, b.UsagePercentage().InexactFloat64()))
		}
	}

	var changed []core.Budget
	for _, b := range budgets {
		if touched[b.ID] {
			changed = append(changed, b)
		}
	}
	return changed, alerts
}

// RolloverDue resets budgets whose period has elapsed and returns the ones
// that were reset.
func (BudgetTracker) RolloverDue(budgets []core.Budget, now time.Time) []core.Budget {
	var reset []core.Budget
	for i := range budgets {
		b := &budgets[i]
		if !b.Active || b.EndDate.IsZero() || now.Before(b.EndDate) {
			continue
		}
		b.ResetPeriod(b.Frequency, b.EndDate)
		reset = append(reset, *b)
	}
	return reset
}
