package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/tbbo-ingest/internal/config"
	"github.com/dgnsrekt/tbbo-ingest/internal/model"
)

// RetryPolicy bounds how long a single batch may be retried.
type RetryPolicy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
}

func PolicyFromConfig(cfg config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    cfg.MaxAttempts,
		BaseDelay:      cfg.BackoffBase(),
		MaxDelay:       cfg.MaxBackoff(),
		AttemptTimeout: cfg.AttemptTimeout(),
	}
}

// Backoff returns the delay before retry n (1-based): base * 2^(n-1),
// capped at MaxDelay.
func (p RetryPolicy) Backoff(n int) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < n; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// RetryWriter retries transient failures of the wrapped writer with
// exponential backoff. Rejections are returned immediately.
//
// Each attempt runs on a context detached from the caller's cancellation and
// bounded by AttemptTimeout, so a commit in flight at shutdown completes.
// Cancellation interrupts only the backoff sleep between attempts.
type RetryWriter struct {
	inner  Writer
	policy RetryPolicy
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewRetryWriter(inner Writer, policy RetryPolicy, logger *zap.Logger) *RetryWriter {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &RetryWriter{
		inner:  inner,
		policy: policy,
		logger: logger,
		sleep:  sleepContext,
	}
}

func (w *RetryWriter) Write(ctx context.Context, b *model.Batch) error {
	var lastErr error
	for attempt := 1; attempt <= w.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := w.policy.Backoff(attempt - 1)
			w.logger.Warn("retrying batch",
				zap.String("file", b.FileID),
				zap.Int("seq", b.Seq),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))

			if err := w.sleep(ctx, delay); err != nil {
				return fmt.Errorf("batch %d retry interrupted after %d attempts (last error: %v): %w",
					b.Seq, attempt-1, lastErr, err)
			}
		}

		err := w.attempt(ctx, b)
		if err == nil {
			return nil
		}

		if !IsTransient(err) {
			var se *Error
			if errors.As(err, &se) {
				se.Attempts = attempt
				return err
			}
			return &Error{Kind: KindRejected, Op: "write", Attempts: attempt, Err: err}
		}
		lastErr = err
	}

	return &Error{Kind: KindTransient, Op: "write", Attempts: w.policy.MaxAttempts,
		Err: fmt.Errorf("%w: %w", ErrRetriesExhausted, lastErr)}
}

func (w *RetryWriter) attempt(ctx context.Context, b *model.Batch) error {
	attemptCtx := context.WithoutCancel(ctx)
	if w.policy.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(attemptCtx, w.policy.AttemptTimeout)
		defer cancel()
	}
	return w.inner.Write(attemptCtx, b)
}

// Ping forwards to the wrapped writer when it supports health checks.
func (w *RetryWriter) Ping(ctx context.Context) error {
	if p, ok := w.inner.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (w *RetryWriter) Close() error {
	return w.inner.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
