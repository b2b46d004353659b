package syncclient

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-rfq/internal/rfq/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fast = Policy{MaxAttempts: 3, BackoffStep: time.Millisecond, Timeout: time.Second}

func TestRetry_StopsAfterThreeAttempts(t *testing.T) {
	var calls atomic.Int32
	_, err := Retry(context.Background(), fast, func(context.Context) (int, error) {
		calls.Add(1)
		return 0, entity.ErrNetwork
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrRetriesExhausted)
	assert.ErrorIs(t, err, entity.ErrNetwork)
	assert.EqualValues(t, 3, calls.Load())
}

func TestRetry_LinearBackoff(t *testing.T) {
	var waits []time.Duration
	p := fast
	p.BackoffStep = 2 * time.Millisecond
	p.OnRetry = func(_ int, wait time.Duration, _ error) { waits = append(waits, wait) }

	var calls int
	v, err := Retry(context.Background(), p, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("boom")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, []time.Duration{2 * time.Millisecond, 4 * time.Millisecond}, waits)
}

func TestRetry_TimeoutIsRetried(t *testing.T) {
	p := fast
	p.Timeout = 5 * time.Millisecond
	var calls atomic.Int32
	_, err := Retry(context.Background(), p, func(ctx context.Context) (int, error) {
		calls.Add(1)
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, entity.ErrRetriesExhausted)
	assert.ErrorIs(t, err, entity.ErrTimeout)
	assert.EqualValues(t, 3, calls.Load())
}

func TestRetry_AbandonsSlowOperation(t *testing.T) {
	p := Policy{MaxAttempts: 1, Timeout: 5 * time.Millisecond}
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	_, err := Retry(context.Background(), p, func(context.Context) (int, error) {
		<-release // ignores its context
		return 1, nil
	})
	assert.ErrorIs(t, err, entity.ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRetry_CancellationIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	_, err := Retry(context.Background(), fast, func(context.Context) (int, error) {
		calls.Add(1)
		return 0, entity.ErrCancelled
	})
	assert.ErrorIs(t, err, entity.ErrCancelled)
	assert.EqualValues(t, 1, calls.Load())

	ctx, cancel := context.WithCancel(context.Background())
	p := fast
	p.BackoffStep = time.Hour
	p.OnRetry = func(int, time.Duration, error) { cancel() }
	_, err = Retry(ctx, p, func(context.Context) (int, error) {
		return 0, entity.ErrNetwork
	})
	assert.ErrorIs(t, err, entity.ErrCancelled)
	assert.False(t, errors.Is(err, entity.ErrRetriesExhausted))
}

func TestSupersede(t *testing.T) {
	var s Supersede
	ctx1, tok1 := s.Begin(context.Background())
	ctx2, tok2 := s.Begin(context.Background())

	assert.ErrorIs(t, ctx1.Err(), context.Canceled)
	assert.NoError(t, ctx2.Err())
	assert.False(t, s.IsCurrent(tok1))

	applied := ""
	assert.True(t, s.Commit(tok2, func() { applied = "second" }))
	// The stale result arrives last and must be dropped.
	assert.False(t, s.Commit(tok1, func() { applied = "first" }))
	assert.Equal(t, "second", applied)

	s.End(tok2)
	assert.ErrorIs(t, ctx2.Err(), context.Canceled)
}

func TestClasses_SessionsAreIndependent(t *testing.T) {
	var c Classes
	ctxA, _ := c.For("a").Begin(context.Background())
	c.For("b").Begin(context.Background())
	assert.NoError(t, ctxA.Err())
	assert.Same(t, c.For("a"), c.For("a"))
}
