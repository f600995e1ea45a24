package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"finledger/internal/amqp"
	"finledger/internal/cache"
	"finledger/internal/config"
	"finledger/internal/core"
	"finledger/internal/ingest"
	applog "finledger/internal/log"
	"finledger/internal/provider"
	"finledger/internal/provider/monobank"
	"finledger/internal/services"
	"finledger/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.Config{Component: "worker"})
	applog.SetDefault(logger)

	logger.Info("Starting finledger-worker")

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

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPSyncQueue, cfg.AMQPAlertQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	providerClient := provider.WithRetry(
		monobank.New(cfg.ProviderBaseURL, cfg.ProviderToken, cfg.ProviderTimeout),
		provider.RetryConfig{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
		})

	pipeline := ingest.New(repo, monobank.ProviderName)
	syncService := services.NewSyncService(repo, providerClient, pipeline, amqpClient)

	cacheManager := cache.NewManager()
	cacheManager.Register(pipeline.Cache())
	cacheManager.StartCleanup(time.Hour)
	defer cacheManager.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// On-demand syncs queued by the API.
	g.Go(func() error {
		err := amqpClient.ConsumeSyncRequests(ctx, func(msg *amqp.SyncRequest) error {
			_, err := syncService.SyncAccount(ctx, msg.AccountID, msg.From, msg.To)
			return err
		})
		if err == context.Canceled {
			return nil
		}
		return err
	})

	// Scheduled sweep over every provider-backed account, plus a currency
	// rate refresh.
	g.Go(func() error {
		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()

		syncAll(ctx, logger, repo, providerClient, syncService, cfg.SyncLookback)
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				syncAll(ctx, logger, repo, providerClient, syncService, cfg.SyncLookback)
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped")
}

func syncAll(ctx context.Context, logger *applog.Logger, repo *storage.Repository, client provider.Client, svc *services.SyncService, lookback time.Duration) {
	accounts, err := repo.ListAccounts(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to list accounts", "error", err)
		return
	}

	now := time.Now().UTC()
	from := now.Add(-lookback)

	for _, account := range accounts {
		if account.Source == core.SourceManual {
			continue
		}
		report, err := svc.SyncAccount(ctx, account.ID, from, now)
		if err != nil {
			logger.ErrorContext(ctx, "Scheduled sync failed",
				"account_id", account.ID,
				"error", err)
			continue
		}
		logger.InfoContext(ctx, "Scheduled sync finished",
			"account_id", account.ID,
			"ingested", report.Ingested,
			"transfers", report.Transfers)
	}

	rates, err := client.ListCurrencyRates(ctx)
	if err != nil {
		logger.WarnContext(ctx, "Failed to fetch currency rates", "error", err)
		return
	}
	if err := repo.UpsertCurrencyRates(ctx, rates); err != nil {
		logger.ErrorContext(ctx, "Failed to store currency rates", "error", err)
	}
}
