package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"finledger/internal/core"
	"finledger/internal/storage"
)

// RecurringStore is the slice of the repository the recurring processor
// needs.
type RecurringStore interface {
	ListActiveRecurring(ctx context.Context) ([]core.RecurringTransaction, error)
	GetAccount(ctx context.Context, id int64) (*core.Account, error)
	SaveRecurringExecution(ctx context.Context, rec core.RecurringTransaction, plan core.PlannedTransaction, realized *storage.StoredTransaction, account *core.Account) error
}

// RecurringProcessorConfig holds configuration for the recurring processor
type RecurringProcessorConfig struct {
	// PollInterval is how often to look for due schedules
	PollInterval time.Duration
}

func DefaultRecurringProcessorConfig() RecurringProcessorConfig {
	return RecurringProcessorConfig{
		PollInterval: 15 * time.Minute,
	}
}

// RecurringProcessor periodically executes due recurring transactions:
// each execution materializes a planned transaction and, for auto-execute
// schedules, the realized ledger transaction with its balance effect.
type RecurringProcessor struct {
	store  RecurringStore
	config RecurringProcessorConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewRecurringProcessor(store RecurringStore, config RecurringProcessorConfig) *RecurringProcessor {
	return &RecurringProcessor{
		store:  store,
		config: config,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *RecurringProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("recurring processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Recurring processor started",
		"poll_interval", p.config.PollInterval)
	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *RecurringProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		slog.InfoContext(ctx, "Recurring processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Recurring processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

func (p *RecurringProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *RecurringProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	// Process immediately on startup
	if _, err := p.ProcessDue(ctx, time.Now()); err != nil {
		slog.ErrorContext(ctx, "Recurring processing failed", "error", err)
	}

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.ProcessDue(ctx, time.Now()); err != nil {
				slog.ErrorContext(ctx, "Recurring processing failed", "error", err)
			}
		}
	}
}

// ProcessDue executes every active schedule that is due as of now and
// returns how many were executed. Failures on one schedule never block
// the rest.
func (p *RecurringProcessor) ProcessDue(ctx context.Context, now time.Time) (int, error) {
	recs, err := p.store.ListActiveRecurring(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active recurring transactions: %w", err)
	}

	processed := 0
	for _, rec := range recs {
		if !rec.IsDue(now) {
			continue
		}

		if err := p.executeOne(ctx, rec, now); err != nil {
			slog.ErrorContext(ctx, "Failed to execute recurring transaction",
				"recurring_id", rec.ID,
				"description", rec.Description,
				"error", err)
			continue
		}
		processed++
	}

	slog.InfoContext(ctx, "Recurring processing complete",
		"processed", processed,
		"total_active", len(recs))
	return processed, nil
}

func (p *RecurringProcessor) executeOne(ctx context.Context, rec core.RecurringTransaction, now time.Time) error {
	dueAt := rec.NextOccurrence

	if err := rec.MarkAsExecuted(now); err != nil {
		return err
	}

	plan := core.PlannedTransaction{
		ID:          uuid.NewString(),
		RecurringID: rec.ID,
		AccountID:   rec.AccountID,
		Amount:      rec.Amount,
		Category:    rec.Category,
		Description: rec.Description,
		DueDate:     dueAt,
		Status:      core.PlannedPending,
	}

	var realized *storage.StoredTransaction
	var account *core.Account
	if rec.AutoExecute {
		var err error
		account, err = p.store.GetAccount(ctx, rec.AccountID)
		if err != nil {
			return fmt.Errorf("load account %d: %w", rec.AccountID, err)
		}

		txID := uuid.NewString()
		if err := plan.Realize(txID); err != nil {
			return err
		}

		realized = &storage.StoredTransaction{
			Transaction: core.Transaction{
				TransactionID: txID,
				Date:          now.UTC(),
				Amount:        rec.Amount,
				Description:   rec.Description,
				Category:      rec.Category,
				Source:        account.Source,
				Hash:          core.Fingerprint(txID, rec.Amount, now, account.Source),
				Status:        core.StatusNormal,
			},
			AccountID: rec.AccountID,
		}
		account.ApplyTransaction(rec.Amount, now)
	}

	if err := p.store.SaveRecurringExecution(ctx, rec, plan, realized, account); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Recurring transaction executed",
		"recurring_id", rec.ID,
		"description", rec.Description,
		"amount", rec.Amount.String(),
		"auto_execute", rec.AutoExecute,
		"next_occurrence", rec.NextOccurrence,
		"active", rec.IsActive)
	return nil
}
