// Package ingest normalizes raw statement entries into domain transactions
// and makes re-ingestion idempotent through fingerprint deduplication.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"finledger/internal/cache"
	"finledger/internal/core"
	"finledger/internal/provider"
)

// FingerprintIndex answers whether a dedup fingerprint is already part of
// the data set. Backed by storage; the pipeline keeps an LRU cache in
// front so repeated syncs over overlapping ranges stay cheap.
type FingerprintIndex interface {
	HasFingerprint(ctx context.Context, hash string) (bool, error)
}

// Result summarizes one ingestion run. Malformed entries are skipped per
// entry and counted here rather than failing the run.
type Result struct {
	Ingested   int
	Duplicates int
	Malformed  int
}

// Pipeline converts provider statement entries for one account into
// deduplicated domain transactions, preserving provider order.
type Pipeline struct {
	index        FingerprintIndex
	seen         *cache.LRUCache[struct{}]
	providerName string
}

// New creates a pipeline over the given fingerprint index.
func New(index FingerprintIndex, providerName string) *Pipeline {
	return &Pipeline{
		index:        index,
		seen:         cache.NewLRUCache[struct{}](4096, 24*time.Hour),
		providerName: providerName,
	}
}

// Normalize processes entries in provider order. For each entry it converts
// the minor-unit amount to a decimal, builds the description (appending the
// merchant comment in parentheses when present), assigns the
// "<provider>:<accountId>" source label, and computes the dedup
// fingerprint. Entries whose fingerprint is already known are silently
// skipped, so running the same date range twice produces no duplicates.
// Entries with equal timestamps keep their relative order.
func (p *Pipeline) Normalize(ctx context.Context, accountID string, entries []provider.StatementEntry) ([]core.Transaction, Result, error) {
	var res Result
	source := p.providerName + ":" + accountID

	out := make([]core.Transaction, 0, len(entries))
	batch := make(map[string]bool, len(entries))

	for _, entry := range entries {
		if entry.ExternalID == "" || entry.TimestampSeconds <= 0 {
			res.Malformed++
			slog.WarnContext(ctx, "Skipping malformed statement entry",
				"source", source,
				"external_id", entry.ExternalID,
				"timestamp", entry.TimestampSeconds)
			continue
		}

		amount := core.FromMinorUnits(entry.AmountMinor)
		date := core.FromUnixSeconds(entry.TimestampSeconds)
		hash := core.Fingerprint(entry.ExternalID, amount, date, source)

		dup, err := p.isKnown(ctx, hash, batch)
		if err != nil {
			return nil, res, fmt.Errorf("check fingerprint: %w", err)
		}
		if dup {
			res.Duplicates++
			continue
		}
		batch[hash] = true

		description := entry.Description
		if entry.Comment != "" {
			description = fmt.Sprintf("%s (%s)", description, entry.Comment)
		}

		out = append(out, core.Transaction{
			TransactionID: entry.ExternalID,
			Date:          date,
			Amount:        amount,
			Description:   description,
			Source:        source,
			Hash:          hash,
			Status:        core.StatusNormal,
		})
		res.Ingested++
	}

	slog.InfoContext(ctx, "Statement entries normalized",
		"source", source,
		"ingested", res.Ingested,
		"duplicates", res.Duplicates,
		"malformed", res.Malformed)

	return out, res, nil
}

// Cache exposes the dedup cache so callers can register it for periodic
// expiry sweeps.
func (p *Pipeline) Cache() *cache.LRUCache[struct{}] {
	return p.seen
}

// MarkCommitted records fingerprints of a successfully persisted batch in
// the cache. Called after the storage commit so an aborted batch never
// poisons the dedup index.
func (p *Pipeline) MarkCommitted(txs []core.Transaction) {
	for _, tx := range txs {
		p.seen.Set(tx.Hash, struct{}{})
	}
}

func (p *Pipeline) isKnown(ctx context.Context, hash string, batch map[string]bool) (bool, error) {
	if batch[hash] {
		return true, nil
	}
	if _, ok := p.seen.Get(hash); ok {
		return true, nil
	}
	known, err := p.index.HasFingerprint(ctx, hash)
	if err != nil {
		return false, err
	}
	if known {
		p.seen.Set(hash, struct{}{})
	}
	return known, nil
}
