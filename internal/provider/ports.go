// Package provider defines the statement provider port consumed by the
// ingestion pipeline, the typed failure taxonomy surfaced to callers, and a
// retry decorator that wraps any implementation with bounded exponential
// backoff.
package provider

import (
	"context"
	"time"
)

// AccountSummary describes one account on the provider side.
type AccountSummary struct {
	ID           string
	Name         string
	IBAN         string
	Type         string
	BalanceMinor int64
}

// StatementEntry is a raw statement record as delivered by the provider.
// Amounts are signed minor currency units; timestamps are epoch seconds.
type StatementEntry struct {
	ExternalID          string
	TimestampSeconds    int64
	AmountMinor         int64
	Description         string
	Comment             string
	CounterpartyName    string
	CounterpartyAccount string
}

// RatePair is a published currency rate. Rates are stored for display
// only; the ledger performs no currency conversion.
type RatePair struct {
	CurrencyCodeA int
	CurrencyCodeB int
	RateBuy       float64
	RateSell      float64
	RateCross     float64
	Date          time.Time
}

// Client is the statement provider contract. Implementations own
// authentication headers and transport concerns; the ledger only needs the
// results and, on failure, the error kind.
type Client interface {
	ListAccounts(ctx context.Context) ([]AccountSummary, error)
	ListTransactions(ctx context.Context, accountID string, from, to time.Time) ([]StatementEntry, error)
	ListCurrencyRates(ctx context.Context) ([]RatePair, error)
}
