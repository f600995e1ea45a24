package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestAccountApplyTransaction(t *testing.T) {
	a := Account{Name: "main card", Source: "monobank:abc"}
	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	a.ApplyTransaction(decimal.NewFromInt(250), at)

	if !a.Balance.Equal(decimal.NewFromInt(250)) {
		t.Errorf("Balance = %s, want 250", a.Balance)
	}
	if !a.UpdatedAt.Equal(at) {
		t.Errorf("UpdatedAt = %s, want %s", a.UpdatedAt, at)
	}

	a.ApplyTransaction(decimal.NewFromInt(-100), at.Add(time.Hour))
	if !a.Balance.Equal(decimal.NewFromInt(150)) {
		t.Errorf("Balance after debit = %s, want 150", a.Balance)
	}
}

func TestAccountSetBalance(t *testing.T) {
	a := Account{Name: "cash", Source: SourceManual}
	a.ApplyTransaction(decimal.NewFromInt(10), time.Now())

	at := time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC)
	a.SetBalance(decimal.NewFromInt(777), at)

	if !a.Balance.Equal(decimal.NewFromInt(777)) {
		t.Errorf("Balance = %s, want 777", a.Balance)
	}
	if !a.UpdatedAt.Equal(at) {
		t.Errorf("UpdatedAt = %s, want %s", a.UpdatedAt, at)
	}
}

func TestAccountExternalID(t *testing.T) {
	if got := (Account{Source: "monobank:xyz9"}).ExternalID(); got != "xyz9" {
		t.Errorf("ExternalID = %q, want xyz9", got)
	}
	if got := (Account{Source: SourceManual}).ExternalID(); got != "" {
		t.Errorf("ExternalID for manual account = %q, want empty", got)
	}
}

func TestFingerprintStable(t *testing.T) {
	d := time.Date(2025, 4, 1, 10, 30, 0, 0, time.UTC)
	amount := decimal.NewFromInt(-120)

	a := Fingerprint("ext-1", amount, d, "monobank:acc")
	b := Fingerprint("ext-1", amount, d, "monobank:acc")
	if a != b {
		t.Errorf("same tuple must yield same fingerprint")
	}

	variants := []string{
		Fingerprint("ext-2", amount, d, "monobank:acc"),
		Fingerprint("ext-1", decimal.NewFromInt(-121), d, "monobank:acc"),
		Fingerprint("ext-1", amount, d.Add(time.Second), "monobank:acc"),
		Fingerprint("ext-1", amount, d, "monobank:other"),
	}
	for i, v := range variants {
		if v == a {
			t.Errorf("variant %d must yield a different fingerprint", i)
		}
	}
}

func TestCategoryRegister(t *testing.T) {
	c := Category{Name: "groceries"}
	c.Register(decimal.NewFromInt(-30))
	c.Register(decimal.NewFromInt(-12))

	if !c.Amount.Equal(decimal.NewFromInt(-42)) {
		t.Errorf("Amount = %s, want -42", c.Amount)
	}
	if c.Count != 2 {
		t.Errorf("Count = %d, want 2", c.Count)
	}
}

func TestDefaultCategories(t *testing.T) {
	if len(DefaultCategories) != 15 {
		t.Fatalf("expected 15 default categories, got %d", len(DefaultCategories))
	}
	seen := make(map[string]bool, len(DefaultCategories))
	for _, name := range DefaultCategories {
		if seen[name] {
			t.Errorf("duplicate default category %q", name)
		}
		seen[name] = true
	}
}

func TestReconciliationRuleValidate(t *testing.T) {
	good := ReconciliationRule{
		Name:                 "card to savings",
		SourceAccountID:      1,
		TargetAccountID:      2,
		MaxDaysDifference:    DefaultMaxDaysDifference,
		MaxCommissionPercent: DefaultMaxCommissionPercent,
		CounterpartyPattern:  "(?i)savings",
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []ReconciliationRule{
		{Name: "", SourceAccountID: 1, TargetAccountID: 2},
		{Name: "same accounts", SourceAccountID: 1, TargetAccountID: 1},
		{Name: "bad pattern", SourceAccountID: 1, TargetAccountID: 2, CounterpartyPattern: "("},
		{Name: "negative days", SourceAccountID: 1, TargetAccountID: 2, MaxDaysDifference: -1},
		{Name: "negative percent", SourceAccountID: 1, TargetAccountID: 2, MaxCommissionPercent: -0.5},
	}
	for i, r := range bads {
		if err := r.Validate(); err == nil {
			t.Errorf("case %d expected error", i)
		}
	}
}

func TestPlannedTransactionLifecycle(t *testing.T) {
	p := PlannedTransaction{ID: "p1", Status: PlannedPending}
	if err := p.Realize("tx-1"); err != nil {
		t.Fatalf("Realize failed: %v", err)
	}
	if p.Status != PlannedRealized || p.RealizedTransactionID != "tx-1" {
		t.Errorf("unexpected state after Realize: %+v", p)
	}
	if err := p.Cancel(); err == nil {
		t.Errorf("realized plan must not be cancellable")
	}

	q := PlannedTransaction{ID: "p2", Status: PlannedPending}
	if err := q.Cancel(); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if err := q.Realize("tx-2"); !IsState(err) {
		t.Errorf("expected StateError realizing a cancelled plan, got %v", err)
	}
}
