package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"finledger/internal/config"
	applog "finledger/internal/log"
	"finledger/internal/services"
	"finledger/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.Config{Component: applog.ComponentRecurring})
	applog.SetDefault(logger)

	logger.Info("Starting recurring-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	processor := services.NewRecurringProcessor(repo, services.RecurringProcessorConfig{
		PollInterval: cfg.RecurringInterval,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start recurring processor", "error", err)
		os.Exit(1)
	}

	// Budget periods roll over on the same cadence as recurring checks.
	go rolloverBudgets(ctx, logger, repo, cfg.RecurringInterval)

	<-ctx.Done()
	logger.Info("Shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := processor.Stop(stopCtx); err != nil {
		logger.Error("Stop failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}

func rolloverBudgets(ctx context.Context, logger *applog.Logger, repo *storage.Repository, interval time.Duration) {
	var tracker services.BudgetTracker

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			budgets, err := repo.ListActiveBudgets(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to list budgets", "error", err)
				continue
			}
			for _, b := range tracker.RolloverDue(budgets, time.Now().UTC()) {
				if err := repo.UpdateBudget(ctx, b); err != nil {
					logger.ErrorContext(ctx, "Failed to reset budget period",
						"budget_id", b.ID,
						"error", err)
					continue
				}
				logger.InfoContext(ctx, "Budget period reset",
					"budget_id", b.ID,
					"name", b.Name,
					"new_end_date", b.EndDate)
			}
		}
	}
}
