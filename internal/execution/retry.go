package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// RetryingExecutor wraps an Executor with fixed-backoff retries.
// Transient bridge failures are common when the terminal is busy, so
// an order gets a few attempts before the pipeline gives up.
type RetryingExecutor struct {
	inner    Executor
	attempts int
	backoff  time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	logger   zerolog.Logger
}

// NewRetryingExecutor wraps inner with attempts tries and a fixed
// backoff between them.
func NewRetryingExecutor(inner Executor, attempts int, backoff time.Duration, logger zerolog.Logger) *RetryingExecutor {
	if attempts <= 0 {
		attempts = 3
	}
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	return &RetryingExecutor{
		inner:    inner,
		attempts: attempts,
		backoff:  backoff,
		sleep:    sleepCtx,
		logger:   logger.With().Str("component", "retry_executor").Logger(),
	}
}

// PlaceOrder tries the inner executor up to the configured number of
// attempts. Context cancellation aborts immediately.
func (r *RetryingExecutor) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		res, err := r.inner.PlaceOrder(ctx, req)
		if err == nil {
			if attempt > 1 {
				r.logger.Info().Int("attempt", attempt).Str("signal", req.SignalID).
					Msg("Order placed after retry")
			}
			return res, nil
		}
		lastErr = err
		r.logger.Warn().Err(err).Int("attempt", attempt).Int("max", r.attempts).
			Str("signal", req.SignalID).Msg("Order attempt failed")

		if attempt < r.attempts {
			if err := r.sleep(ctx, r.backoff); err != nil {
				return OrderResult{}, err
			}
		}
	}
	return OrderResult{}, fmt.Errorf("%w: %v", ErrRetriesExhausted, lastErr)
}

// ClosePosition passes through with the same retry policy.
func (r *RetryingExecutor) ClosePosition(ctx context.Context, ticket int64) error {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if err := r.inner.ClosePosition(ctx, ticket); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt < r.attempts {
			if err := r.sleep(ctx, r.backoff); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("%w: %v", ErrRetriesExhausted, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ Executor = (*RetryingExecutor)(nil)
