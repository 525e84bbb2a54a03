package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"nbafetcher/internal/table"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nbafetcher_retries_total",
		Help: "Total number of retry attempts by error type",
	}, []string{"error_type"})

	retryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nbafetcher_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted",
	})
)

// RetryConfig holds the retry policy for a single upstream call.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the backoff before the second attempt; subsequent delays
	// double, capped at MaxDelay.
	BaseDelay time.Duration

	// MaxDelay caps the backoff. Zero means no cap.
	MaxDelay time.Duration
}

// callWithRetry executes fn with bounded retries and exponential backoff.
//
// acquire runs before every attempt, so a retried call re-enters the rate
// limiting budget instead of bypassing it; retries can never storm past the
// limiter. Only transient failures are retried: permanent ones propagate on
// the attempt that produced them. When the budget runs out the returned error
// wraps ErrRetriesExhausted and the last underlying failure.
func callWithRetry(
	ctx context.Context,
	cfg RetryConfig,
	logger zerolog.Logger,
	acquire func(context.Context) error,
	fn func(context.Context) (*table.Table, error),
) (*table.Table, error) {
	var lastErr error
	delay := cfg.BaseDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := acquire(ctx); err != nil {
			return nil, fmt.Errorf("acquire rate limit slot: %w", err)
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info().Int("attempt", attempt).Msg("upstream call succeeded after retry")
			}
			return result, nil
		}

		lastErr = err

		if !IsRetryable(err) {
			return nil, err
		}

		if attempt >= cfg.MaxAttempts {
			break
		}

		errType := string(ErrorTypeUnknown)
		var fe *FetchError
		if errors.As(err, &fe) {
			errType = string(fe.Type)
		}
		retriesTotal.WithLabelValues(errType).Inc()

		// ±20% jitter keeps concurrent retries from synchronizing.
		wait := time.Duration(float64(delay) * (0.8 + rand.Float64()*0.4))

		logger.Debug().
			Err(err).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("retrying upstream call after backoff")

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v (context canceled during backoff: %v)",
				ErrRetriesExhausted, lastErr, ctx.Err())
		case <-time.After(wait):
		}

		delay *= 2
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	retryExhaustedTotal.Inc()
	logger.Warn().
		Err(lastErr).
		Int("max_attempts", cfg.MaxAttempts).
		Msg("retry attempts exhausted")

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, cfg.MaxAttempts, lastErr)
}
