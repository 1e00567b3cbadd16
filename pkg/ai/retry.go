package ai

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// Retry calls fn until it succeeds, returns a fatal error, or the attempts in
// cfg are exhausted. Errors that are neither recoverable nor fatal are
// retried, matching how unclassified network errors usually behave.
func Retry[T any](ctx context.Context, cfg RetryConfig, logger *slog.Logger, op string, fn func(context.Context) (T, error)) (T, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var zero T
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(cfg, attempt)
			logger.Info("Retrying operation",
				slog.String("op", op),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("last_error", lastErr.Error()))

			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return zero, ctx.Err()
				}
			}
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Info("Operation succeeded after retry",
					slog.String("op", op),
					slog.Int("attempts", attempt+1))
			}
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		if IsFatal(err) {
			logger.Error("Fatal error, not retrying",
				slog.String("op", op),
				slog.String("error", err.Error()),
				slog.Int("attempt", attempt+1))
			return zero, err
		}

		logger.Warn("Operation failed",
			slog.String("op", op),
			slog.String("error", err.Error()),
			slog.Int("attempt", attempt+1),
			slog.Int("max_retries", cfg.MaxRetries))
	}

	return zero, fmt.Errorf("%s: exhausted %d retries: %w", op, cfg.MaxRetries, lastErr)
}

// RetryOnce is Retry with OnceRetryConfig: one transparent retry, no delay.
func RetryOnce[T any](ctx context.Context, logger *slog.Logger, op string, fn func(context.Context) (T, error)) (T, error) {
	return Retry(ctx, OnceRetryConfig, logger, op, fn)
}

// backoffDelay computes the delay before the next retry attempt
func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	if cfg.InitialDelay <= 0 {
		return 0
	}

	// Exponential backoff: delay = initialDelay * (backoffFactor ^ (attempt-1))
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.BackoffFactor, float64(attempt-1))

	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	if cfg.JitterPercent > 0 {
		jitterRange := delay * float64(cfg.JitterPercent)
		delay += (rand.Float64() - 0.5) * 2 * jitterRange
	}

	if delay < 0 {
		delay = float64(cfg.InitialDelay)
	}

	return time.Duration(delay)
}
