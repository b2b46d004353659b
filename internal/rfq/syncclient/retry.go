// Package syncclient keeps the local quote view consistent with the remote
// store: bounded retries with linear backoff, a hard timeout per attempt,
// cancellation of superseded requests and a time-boxed signed link cache.
package syncclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-rfq/internal/rfq/entity"
)

// Policy 重试策略
type Policy struct {
	MaxAttempts int
	// BackoffStep is multiplied by the attempt number before the next try.
	BackoffStep time.Duration
	// Timeout bounds each attempt. Zero means no per-attempt bound.
	Timeout time.Duration
	// OnRetry, if set, is called before each backoff wait.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// Retry runs op until it succeeds, the attempts run out, or ctx ends. Every
// failure other than cancellation is retried, timeouts included. Cancellation
// returns an error wrapping entity.ErrCancelled and is never retried.
func Retry[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(p.MaxAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := race(ctx, p.Timeout, op)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || entity.IsCancelled(err) {
			return zero, cancelled(ctx, err)
		}
		lastErr = err
		if attempt == attempts {
			break
		}

		wait := time.Duration(attempt) * p.BackoffStep
		if p.OnRetry != nil {
			p.OnRetry(attempt, wait, err)
		}
		if err := sleep(ctx, wait); err != nil {
			return zero, cancelled(ctx, err)
		}
	}
	return zero, fmt.Errorf("%w（共 %d 次）: %w", entity.ErrRetriesExhausted, attempts, lastErr)
}

// race runs op against a per-attempt deadline. A slow op is abandoned, its
// late result discarded.
func race[T any](ctx context.Context, timeout time.Duration, op func(context.Context) (T, error)) (T, error) {
	var zero T
	actx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		actx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := op(actx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() == nil && errors.Is(r.err, context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w: %w", entity.ErrTimeout, r.err)
		}
		return r.v, r.err
	case <-actx.Done():
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, fmt.Errorf("%w（%s）", entity.ErrTimeout, timeout)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func cancelled(ctx context.Context, err error) error {
	if errors.Is(err, entity.ErrCancelled) {
		return err
	}
	if cause := context.Cause(ctx); cause != nil && cause != err {
		err = cause
	}
	return fmt.Errorf("%w: %w", entity.ErrCancelled, err)
}
