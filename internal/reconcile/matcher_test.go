package reconcile

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finledger/internal/core"
)

func tx(id string, amount int64, day int) *core.Transaction {
	return &core.Transaction{
		TransactionID: id,
		Date:          time.Date(2025, 6, day, 12, 0, 0, 0, time.UTC),
		Amount:        decimal.NewFromInt(amount),
		Status:        core.StatusNormal,
	}
}

func rule(maxDays int, maxCommission float64) core.ReconciliationRule {
	return core.ReconciliationRule{
		Name:                 "card to savings",
		SourceAccountID:      1,
		TargetAccountID:      2,
		MaxDaysDifference:    maxDays,
		MaxCommissionPercent: maxCommission,
		Active:               true,
		CommissionCategory:   "other",
	}
}

func TestReconcileMatchesWithCommission(t *testing.T) {
	m, err := NewMatcher([]core.ReconciliationRule{rule(2, 3)})
	if err != nil {
		t.Fatalf("NewMatcher failed: %v", err)
	}

	debit := tx("d", -500, 10)
	credit := tx("c", 490, 11)

	links := m.Reconcile([]Leg{{debit, 1}, {credit, 2}})
	if len(links) != 1 {
		t.Fatalf("got %d links, want 1", len(links))
	}
	l := links[0]

	if debit.TransferID == "" || debit.TransferID != credit.TransferID {
		t.Errorf("both legs must share a transfer id, got %q and %q", debit.TransferID, credit.TransferID)
	}
	if debit.Status != core.StatusTransfer || credit.Status != core.StatusTransfer {
		t.Errorf("both legs must be marked as transfer")
	}
	if !l.Commission.Equal(decimal.NewFromInt(10)) {
		t.Errorf("commission = %s, want 10", l.Commission)
	}
	// The residual is recorded on the larger-magnitude leg.
	if !debit.TransferCommission.Equal(decimal.NewFromInt(10)) {
		t.Errorf("larger leg commission = %s, want 10", debit.TransferCommission)
	}
	if !credit.TransferCommission.IsZero() {
		t.Errorf("smaller leg must carry no commission, got %s", credit.TransferCommission)
	}
	if l.Debit != debit || l.Credit != credit {
		t.Errorf("link legs misassigned")
	}
	if l.CommissionCategory != "other" {
		t.Errorf("commission category = %q, want other", l.CommissionCategory)
	}
}

func TestReconcileDateToleranceExceeded(t *testing.T) {
	m, _ := NewMatcher([]core.ReconciliationRule{rule(2, 3)})

	debit := tx("d", -500, 4)
	credit := tx("c", 490, 10) // six days apart

	links := m.Reconcile([]Leg{{debit, 1}, {credit, 2}})
	if len(links) != 0 {
		t.Fatalf("got %d links, want 0", len(links))
	}
	if debit.Status != core.StatusNormal || credit.Status != core.StatusNormal {
		t.Errorf("unmatched legs must stay normal")
	}
	if debit.TransferID != "" || credit.TransferID != "" {
		t.Errorf("unmatched legs must stay unlinked")
	}
}

func TestReconcileCommissionToleranceExceeded(t *testing.T) {
	m, _ := NewMatcher([]core.ReconciliationRule{rule(2, 1)})

	// 2% residual against a 1% tolerance.
	links := m.Reconcile([]Leg{{tx("d", -500, 10), 1}, {tx("c", 490, 11), 2}})
	if len(links) != 0 {
		t.Fatalf("got %d links, want 0", len(links))
	}
}

func TestReconcileRequiresOppositeSigns(t *testing.T) {
	m, _ := NewMatcher([]core.ReconciliationRule{rule(2, 3)})

	links := m.Reconcile([]Leg{{tx("a", -500, 10), 1}, {tx("b", -500, 10), 2}})
	if len(links) != 0 {
		t.Fatalf("same-sign legs must not match")
	}
}

func TestReconcilePrefersCloserDate(t *testing.T) {
	m, _ := NewMatcher([]core.ReconciliationRule{rule(2, 3)})

	debit := tx("d", -500, 10)
	far := tx("far", 500, 12)
	near := tx("near", 500, 10)

	links := m.Reconcile([]Leg{{debit, 1}, {far, 2}, {near, 2}})
	if len(links) != 1 {
		t.Fatalf("got %d links, want 1", len(links))
	}
	if links[0].Credit != near {
		t.Errorf("matcher must prefer the closer-dated candidate")
	}
	if far.TransferID != "" {
		t.Errorf("losing candidate must stay unlinked")
	}
}

func TestReconcilePrefersSmallerCommission(t *testing.T) {
	m, _ := NewMatcher([]core.ReconciliationRule{rule(2, 3)})

	debit := tx("d", -500, 10)
	rough := tx("rough", 490, 10)
	exact := tx("exact", 500, 10)

	links := m.Reconcile([]Leg{{debit, 1}, {rough, 2}, {exact, 2}})
	if len(links) != 1 {
		t.Fatalf("got %d links, want 1", len(links))
	}
	if links[0].Credit != exact {
		t.Errorf("equal dates must fall back to the smaller commission")
	}
	if !links[0].Commission.IsZero() {
		t.Errorf("commission = %s, want 0", links[0].Commission)
	}
}

func TestReconcileGreedyRemovesFromPool(t *testing.T) {
	m, _ := NewMatcher([]core.ReconciliationRule{rule(2, 3)})

	d1 := tx("d1", -500, 10)
	d2 := tx("d2", -500, 10)
	c1 := tx("c1", 500, 10)

	links := m.Reconcile([]Leg{{d1, 1}, {d2, 1}, {c1, 2}})
	if len(links) != 1 {
		t.Fatalf("got %d links, want 1", len(links))
	}
	if d1.TransferID == "" {
		t.Errorf("first-fit: the earlier leg wins the only candidate")
	}
	if d2.TransferID != "" {
		t.Errorf("second debit must stay unmatched once the pool is drained")
	}
}

func TestReconcileCounterpartyPattern(t *testing.T) {
	r := rule(2, 3)
	r.CounterpartyPattern = "(?i)savings"
	m, err := NewMatcher([]core.ReconciliationRule{r})
	if err != nil {
		t.Fatalf("NewMatcher failed: %v", err)
	}

	debit := tx("d", -500, 10)
	wrong := tx("w", 500, 10)
	wrong.Description = "Grocery store"
	right := tx("r", 500, 10)
	right.Description = "To Savings jar"

	links := m.Reconcile([]Leg{{debit, 1}, {wrong, 2}, {right, 2}})
	if len(links) != 1 || links[0].Credit != right {
		t.Errorf("pattern must filter candidates, got %+v", links)
	}
}

func TestReconcileSkipsAlreadyLinked(t *testing.T) {
	m, _ := NewMatcher([]core.ReconciliationRule{rule(2, 3)})

	debit := tx("d", -500, 10)
	taken := tx("t", 500, 10)
	taken.TransferID = "existing"

	links := m.Reconcile([]Leg{{debit, 1}, {taken, 2}})
	if len(links) != 0 {
		t.Fatalf("already linked legs must not re-match")
	}
}

func TestReconcileIgnoresUncoveredAccounts(t *testing.T) {
	m, _ := NewMatcher([]core.ReconciliationRule{rule(2, 3)})

	links := m.Reconcile([]Leg{{tx("d", -500, 10), 1}, {tx("c", 500, 10), 7}})
	if len(links) != 0 {
		t.Fatalf("no rule covers accounts 1 and 7, want no links")
	}
}

func TestNewMatcherRejectsBadPattern(t *testing.T) {
	r := rule(2, 3)
	r.CounterpartyPattern = "("
	if _, err := NewMatcher([]core.ReconciliationRule{r}); !core.IsValidation(err) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestNewMatcherDropsInactiveRules(t *testing.T) {
	r := rule(2, 3)
	r.Active = false
	m, err := NewMatcher([]core.ReconciliationRule{r})
	if err != nil {
		t.Fatalf("NewMatcher failed: %v", err)
	}
	links := m.Reconcile([]Leg{{tx("d", -500, 10), 1}, {tx("c", 500, 10), 2}})
	if len(links) != 0 {
		t.Fatalf("inactive rules must not match")
	}
}
