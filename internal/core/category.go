package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Category aggregates the transactions assigned to it. Names are unique
// per data set; the storage layer enforces the constraint.
type Category struct {
	Name   string
	Amount decimal.Decimal
	Count  int64
}

// DefaultCategories are seeded when a new data set is created.
var DefaultCategories = []string{
	"groceries", "transport", "dining", "health", "entertainment",
	"utilities", "housing", "salary", "gifts", "travel",
	"clothing", "education", "children", "electronics", "other",
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	return nil
}

// Register adds a transaction amount to the running aggregate.
func (c *Category) Register(amount decimal.Decimal) {
	c.Amount = c.Amount.Add(amount)
	c.Count++
}
