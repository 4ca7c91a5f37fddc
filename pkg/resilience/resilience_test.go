package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream 503")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(cfg CircuitBreakerConfig) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	cb := NewCircuitBreaker("wikipedia", cfg)
	cb.now = clock.Now
	return cb, clock
}

func TestCircuitBreakerOpensAtThreshold(t *testing.T) {
	var transitions []State
	cb, _ := newTestBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     time.Minute,
		OnStateChange:    func(_ string, to State) { transitions = append(transitions, to) },
	})

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(func() error { return errUpstream }), errUpstream)
	}
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, []State{StateOpen}, transitions)
}

func TestCircuitBreakerSuccessResetsCount(t *testing.T) {
	cb, _ := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 2})

	_ = cb.Execute(func() error { return errUpstream })
	require.NoError(t, cb.Execute(func() error { return nil }))
	_ = cb.Execute(func() error { return errUpstream })

	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerIgnoresNonFailures(t *testing.T) {
	errMissing := errors.New("missing article")
	cb, _ := newTestBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return !errors.Is(err, errMissing) },
	})

	for i := 0; i < 5; i++ {
		_ = cb.Execute(func() error { return errMissing })
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	var transitions []State
	cb, clock := newTestBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     10 * time.Second,
		OnStateChange:    func(_ string, to State) { transitions = append(transitions, to) },
	})

	_ = cb.Execute(func() error { return errUpstream })
	clock.Advance(10 * time.Second)

	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second})

	_ = cb.Execute(func() error { return errUpstream })
	clock.Advance(time.Second)
	_ = cb.Execute(func() error { return errUpstream })

	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(func() error { return nil }), ErrCircuitOpen)
}

func TestCircuitBreakerLimitsProbes(t *testing.T) {
	cb, clock := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second})
	_ = cb.Execute(func() error { return errUpstream })
	clock.Advance(time.Second)

	release := make(chan struct{})
	probing := make(chan struct{})
	go func() {
		_ = cb.Execute(func() error {
			close(probing)
			<-release
			return nil
		})
	}()
	<-probing

	assert.ErrorIs(t, cb.Execute(func() error { return nil }), ErrCircuitOpen)
	close(release)
}

func TestCircuitBreakerReset(t *testing.T) {
	cb, _ := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 1})
	_ = cb.Execute(func() error { return errUpstream })
	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, "wikipedia", cb.Name())
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), "fetch", RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errUpstream
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryGivesUp(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), "fetch", RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond}, func(context.Context) error {
		attempts++
		return errUpstream
	})
	assert.ErrorIs(t, err, errUpstream)
	assert.Equal(t, 2, attempts)
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	attempts := 0
	errMissing := errors.New("missing")
	err := Retry(context.Background(), "fetch", RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		Retryable:    func(err error) bool { return !errors.Is(err, errMissing) },
	}, func(context.Context) error {
		attempts++
		return errMissing
	})
	assert.Same(t, errMissing, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryAbortsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	err := Retry(ctx, "fetch", RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour}, func(context.Context) error {
		cancel()
		return errUpstream
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffCapped(t *testing.T) {
	cfg := RetryConfig{InitialDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, backoff(1, cfg))
	assert.Equal(t, 3*time.Second, backoff(5, cfg))
}

func TestWithTimeoutExpires(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, "slow fetch", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "slow fetch")
}

func TestWithTimeoutPassesResult(t *testing.T) {
	err := WithTimeout(context.Background(), time.Second, "fetch", func(context.Context) error {
		return errUpstream
	})
	assert.Same(t, errUpstream, err)
}

func TestWithTimeoutParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WithTimeout(ctx, time.Second, "fetch", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithTimeoutDisabled(t *testing.T) {
	called := false
	require.NoError(t, WithTimeout(context.Background(), 0, "fetch", func(context.Context) error {
		called = true
		return nil
	}))
	assert.True(t, called)
}
