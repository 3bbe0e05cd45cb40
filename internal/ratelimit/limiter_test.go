package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// Test Plan for Limiter:
// - Defaults match the documented tuning
// - First request for a key is not delayed; later ones wait out the remaining spacing
// - Three failures grow the delay 0.3s -> 2.4s; three successes then halve it to 1.2s
// - Delay never exceeds the maximum and never recovers below the base
// - More than five outstanding failures raise the stress multiplier, capped at 3.0
// - Successes decay the global counter and reset stress at zero
// - Reset(key) restores one key; Reset("") clears everything
// - Cancelled context during the spacing sleep releases the slot
// - Concurrency never exceeds maxConcurrent
// - Do records errors and panics as failures and frees the slot

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

func record(l *Limiter, key string, outcomes ...bool) {
	for _, ok := range outcomes {
		l.mu.Lock()
		l.recordLocked(key, ok)
		l.mu.Unlock()
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	l := New()
	status := l.Status()

	assert.Equal(t, 3, status.MaxConcurrent)
	assert.Equal(t, 1.0, status.GlobalStressMultiplier)
	assert.Equal(t, 0, status.GlobalFailures)
	assert.Empty(t, status.Keys)
	assert.Equal(t, 300*time.Millisecond, l.baseDelay)
	assert.Equal(t, 60*time.Second, l.maxDelay)
}

func TestAcquire_SpacingDelay(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := New(WithClock(clock), WithLogger(zaptest.NewLogger(t)))
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, "queries"))
	l.Release("queries", true)
	assert.Empty(t, clock.Sleeps(), "first request is never delayed")

	clock.Advance(100 * time.Millisecond)
	require.NoError(t, l.Acquire(ctx, "queries"))
	l.Release("queries", true)
	assert.Equal(t, []time.Duration{200 * time.Millisecond}, clock.Sleeps())

	// Other keys are spaced independently.
	require.NoError(t, l.Acquire(ctx, "scripts"))
	l.Release("scripts", true)
	assert.Len(t, clock.Sleeps(), 1)

	clock.Advance(time.Second)
	require.NoError(t, l.Acquire(ctx, "queries"))
	l.Release("queries", true)
	assert.Len(t, clock.Sleeps(), 1, "no delay once spacing has elapsed")

	assert.Equal(t, 3, l.Status().Keys["queries"].TotalRequests)
}

func TestBackoffAndRecovery(t *testing.T) {
	t.Parallel()

	l := New(WithClock(newFakeClock()))

	record(l, "automations", false, false, false)
	st := l.Status().Keys["automations"]
	assert.Equal(t, 2400*time.Millisecond, st.CurrentDelay)
	assert.Equal(t, 3, st.ConsecutiveFailures)
	assert.Equal(t, 3, st.TotalFailures)

	record(l, "automations", true, true)
	assert.Equal(t, 2400*time.Millisecond, l.Status().Keys["automations"].CurrentDelay)

	record(l, "automations", true)
	st = l.Status().Keys["automations"]
	assert.Equal(t, 1200*time.Millisecond, st.CurrentDelay)
	assert.Equal(t, 0, st.ConsecutiveFailures)
	assert.Equal(t, 0, st.ConsecutiveSuccesses)
	assert.Equal(t, 3, st.TotalFailures)
}

func TestDelayBounds(t *testing.T) {
	t.Parallel()

	l := New(WithMaxDelay(time.Second))

	record(l, "k", false, false, false, false, false)
	assert.Equal(t, time.Second, l.Status().Keys["k"].CurrentDelay)

	for range 10 {
		record(l, "k", true, true, true)
	}
	assert.Equal(t, 300*time.Millisecond, l.Status().Keys["k"].CurrentDelay)
}

func TestGlobalStress(t *testing.T) {
	t.Parallel()

	l := New()

	record(l, "a", false, false, false, false, false)
	assert.Equal(t, 1.0, l.Status().GlobalStressMultiplier)

	record(l, "b", false)
	assert.InDelta(t, 1.2, l.Status().GlobalStressMultiplier, 1e-9)

	record(l, "b", false)
	assert.InDelta(t, 1.44, l.Status().GlobalStressMultiplier, 1e-9)

	record(l, "c", false, false, false, false, false, false, false, false, false, false)
	assert.InDelta(t, 3.0, l.Status().GlobalStressMultiplier, 1e-9)
	assert.Equal(t, 17, l.Status().GlobalFailures)

	// Stress stays until the global counter drains to zero.
	for range 16 {
		record(l, "c", true)
	}
	assert.InDelta(t, 3.0, l.Status().GlobalStressMultiplier, 1e-9)
	record(l, "c", true)
	assert.Equal(t, 1.0, l.Status().GlobalStressMultiplier)
	assert.Equal(t, 0, l.Status().GlobalFailures)

	record(l, "c", true)
	assert.Equal(t, 0, l.Status().GlobalFailures)
}

func TestStressScalesDelay(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := New(WithClock(clock))
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, "x"))
	l.Release("x", true)

	record(l, "other", false, false, false, false, false, false)
	require.InDelta(t, 1.2, l.Status().GlobalStressMultiplier, 1e-9)

	require.NoError(t, l.Acquire(ctx, "x"))
	l.Release("x", true)
	sleeps := clock.Sleeps()
	require.Len(t, sleeps, 1)
	assert.InDelta(t, float64(360*time.Millisecond), float64(sleeps[0]), 1)
}

func TestReset(t *testing.T) {
	t.Parallel()

	l := New()
	record(l, "a", false, false)
	record(l, "b", false)

	l.Reset("a")
	status := l.Status()
	assert.Equal(t, 300*time.Millisecond, status.Keys["a"].CurrentDelay)
	assert.Equal(t, 0, status.Keys["a"].TotalFailures)
	assert.Equal(t, 600*time.Millisecond, status.Keys["b"].CurrentDelay)
	assert.Equal(t, 3, status.GlobalFailures)

	l.Reset("missing")
	assert.NotContains(t, l.Status().Keys, "missing")

	l.Reset("")
	status = l.Status()
	assert.Empty(t, status.Keys)
	assert.Equal(t, 0, status.GlobalFailures)
	assert.Equal(t, 1.0, status.GlobalStressMultiplier)
}

func TestAcquire_CancelledDuringDelay(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := New(WithClock(clock), WithMaxConcurrent(1))

	require.NoError(t, l.Acquire(context.Background(), "a"))
	l.Release("a", true)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Acquire(cancelled, "a")
	require.ErrorIs(t, err, context.Canceled)

	// The only slot must still be free.
	ctx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()
	require.NoError(t, l.Acquire(ctx, "b"))
	l.Release("b", true)
}

func TestConcurrencyBound(t *testing.T) {
	t.Parallel()

	l := New(WithMaxConcurrent(2), WithBaseDelay(0))
	ctx := context.Background()

	var inFlight, peak atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Do(ctx, "shared", func(context.Context) error {
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				inFlight.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, 8, l.Status().Keys["shared"].TotalRequests)
}

func TestDo_RecordsOutcome(t *testing.T) {
	t.Parallel()

	l := New(WithClock(newFakeClock()), WithMaxConcurrent(1))
	ctx := context.Background()
	boom := errors.New("boom")

	err := l.Do(ctx, "k", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, l.Status().Keys["k"].TotalFailures)

	assert.Panics(t, func() {
		_ = l.Do(ctx, "k", func(context.Context) error { panic("kaboom") })
	})
	assert.Equal(t, 2, l.Status().Keys["k"].TotalFailures)

	require.NoError(t, l.Do(ctx, "k", func(context.Context) error { return nil }))
	st := l.Status().Keys["k"]
	assert.Equal(t, 3, st.TotalRequests)
	assert.Equal(t, 1, st.ConsecutiveSuccesses)
}
