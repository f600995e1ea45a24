package provider

import (
	"context"
	"log/slog"
	"time"
)

// RetryConfig bounds the retry policy applied around a provider client.
type RetryConfig struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// BaseDelay is the wait before the first retry; each further retry
	// doubles it.
	BaseDelay time.Duration

	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
	}
}

type retryClient struct {
	inner Client
	cfg   RetryConfig
}

// WithRetry wraps a provider client with bounded exponential backoff.
// Only failures the taxonomy marks retryable (rate-limited, transient) are
// retried; unauthorized and malformed failures return immediately. After
// the attempt budget is exhausted the last error is returned as-is.
func WithRetry(inner Client, cfg RetryConfig) Client {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultRetryConfig().BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultRetryConfig().MaxDelay
	}
	return &retryClient{inner: inner, cfg: cfg}
}

func (c *retryClient) ListAccounts(ctx context.Context) ([]AccountSummary, error) {
	return retry(ctx, c.cfg, "list accounts", func() ([]AccountSummary, error) {
		return c.inner.ListAccounts(ctx)
	})
}

func (c *retryClient) ListTransactions(ctx context.Context, accountID string, from, to time.Time) ([]StatementEntry, error) {
	return retry(ctx, c.cfg, "list transactions", func() ([]StatementEntry, error) {
		return c.inner.ListTransactions(ctx, accountID, from, to)
	})
}

func (c *retryClient) ListCurrencyRates(ctx context.Context) ([]RatePair, error) {
	return retry(ctx, c.cfg, "list currency rates", func() ([]RatePair, error) {
		return c.inner.ListCurrencyRates(ctx)
	})
}

func retry[T any](ctx context.Context, cfg RetryConfig, op string, fn func() (T, error)) (T, error) {
	var zero T
	delay := cfg.BaseDelay
	for attempt := 1; ; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		if !IsRetryable(err) || attempt >= cfg.MaxAttempts {
			return zero, err
		}

		slog.WarnContext(ctx, "Provider call failed, retrying",
			"operation", op,
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
}
