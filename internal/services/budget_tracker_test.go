package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finledger/internal/core"
)

func activeBudget(id int64, category string, limit, spent int64) core.Budget {
	return core.Budget{
		ID:             id,
		Name:           "budget",
		Category:       category,
		Limit:          decimal.NewFromInt(limit),
		Spent:          decimal.NewFromInt(spent),
		Frequency:      core.Monthly,
		StartDate:      time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		Active:         true,
		AlertThreshold: core.DefaultAlertThreshold,
	}
}

func expense(amount int64, category string, day int) core.Transaction {
	return core.Transaction{
		Amount:   decimal.NewFromInt(amount),
		Category: category,
		Date:     time.Date(2025, 6, day, 10, 0, 0, 0, time.UTC),
		Status:   core.StatusNormal,
	}
}

func TestApplySpendRegistersExpenses(t *testing.T) {
	var tracker BudgetTracker
	budgets := []core.Budget{activeBudget(1, "groceries", 1000, 100)}

	changed, alerts := tracker.ApplySpend(context.Background(), budgets,
		[]core.Transaction{expense(-250, "groceries", 10)})

	if len(changed) != 1 {
		t.Fatalf("got %d changed budgets, want 1", len(changed))
	}
	if !changed[0].Spent.Equal(decimal.NewFromInt(350)) {
		t.Errorf("Spent = %s, want 350", changed[0].Spent)
	}
	if len(alerts) != 0 {
		t.Errorf("got %d alerts, want 0", len(alerts))
	}
}

func TestApplySpendAlertsOnThresholdCrossing(t *testing.T) {
	var tracker BudgetTracker
	budgets := []core.Budget{activeBudget(1, "groceries", 1000, 700)}

	_, alerts := tracker.ApplySpend(context.Background(), budgets,
		[]core.Transaction{expense(-150, "groceries", 10)})

	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}
	if alerts[0].BudgetID != 1 {
		t.Errorf("alert budget = %d, want 1", alerts[0].BudgetID)
	}
	if alerts[0].UsagePercent != 85 {
		t.Errorf("alert usage = %v, want 85", alerts[0].UsagePercent)
	}
}

func TestApplySpendNoRepeatAlert(t *testing.T) {
	var tracker BudgetTracker
	// Already over the threshold before this batch.
	budgets := []core.Budget{activeBudget(1, "groceries", 1000, 900)}

	_, alerts := tracker.ApplySpend(context.Background(), budgets,
		[]core.Transaction{expense(-50, "groceries", 10)})

	if len(alerts) != 0 {
		t.Errorf("budget already alerting must not alert again, got %d", len(alerts))
	}
}

func TestApplySpendIgnoresTransfersAndIncome(t *testing.T) {
	var tracker BudgetTracker
	budgets := []core.Budget{activeBudget(1, "", 1000, 0)}

	transfer := expense(-200, "groceries", 10)
	transfer.Status = core.StatusTransfer
	income := expense(300, "salary", 10)

	changed, _ := tracker.ApplySpend(context.Background(), budgets,
		[]core.Transaction{transfer, income})

	if len(changed) != 0 {
		t.Errorf("transfers and income must not count as spend, changed=%d", len(changed))
	}
}

func TestApplySpendRespectsCategoryAndPeriod(t *testing.T) {
	var tracker BudgetTracker
	budgets := []core.Budget{activeBudget(1, "groceries", 1000, 0)}

	changed, _ := tracker.ApplySpend(context.Background(), budgets, []core.Transaction{
		expense(-100, "transport", 10), // wrong category
		{Amount: decimal.NewFromInt(-100), Category: "groceries", Status: core.StatusNormal,
			Date: time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)}, // outside period
	})

	if len(changed) != 0 {
		t.Errorf("uncovered transactions must not count, changed=%d", len(changed))
	}
}

func TestRolloverDue(t *testing.T) {
	var tracker BudgetTracker
	b := activeBudget(1, "groceries", 1000, 800)
	budgets := []core.Budget{b}

	reset := tracker.RolloverDue(budgets, time.Date(2025, 7, 2, 0, 0, 0, 0, time.UTC))
	if len(reset) != 1 {
		t.Fatalf("got %d reset budgets, want 1", len(reset))
	}
	if !reset[0].Spent.IsZero() {
		t.Errorf("Spent after rollover = %s, want 0", reset[0].Spent)
	}
	if !reset[0].StartDate.Equal(b.EndDate) {
		t.Errorf("new period must start at the old end date")
	}
	if !reset[0].EndDate.Equal(time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("new end date = %v, want 2025-08-01", reset[0].EndDate)
	}

	// Not yet elapsed: untouched.
	if again := tracker.RolloverDue(budgets, time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC)); len(again) != 0 {
		t.Errorf("rolled-over budget must not reset again mid-period")
	}
}
