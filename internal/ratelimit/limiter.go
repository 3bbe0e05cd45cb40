package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultMaxConcurrent     = 3
	DefaultBaseDelay         = 300 * time.Millisecond
	DefaultMaxDelay          = 60 * time.Second
	DefaultBackoffMultiplier = 2.0
	DefaultRecoveryThreshold = 3
)

const (
	maxStressMultiplier = 3.0
	stressGrowth        = 1.2
	// Stress starts growing once more than this many failures are outstanding.
	stressFailureThreshold = 5
)

// Clock abstracts time so tests can drive the limiter without sleeping.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type keyState struct {
	consecutiveFailures  int
	consecutiveSuccesses int
	totalRequests        int
	totalFailures        int
	currentDelay         time.Duration
	lastRequest          time.Time
}

// Limiter bounds concurrency with a semaphore and spaces requests per key with
// a delay that grows on failure and recovers after sustained success. A global
// failure counter scales every key's delay while the upstream is under stress.
type Limiter struct {
	maxConcurrent     int
	baseDelay         time.Duration
	maxDelay          time.Duration
	backoffMultiplier float64
	recoveryThreshold int

	sem    *semaphore.Weighted
	clock  Clock
	logger *zap.Logger

	mu             sync.Mutex
	keys           map[string]*keyState
	globalFailures int
	stress         float64
}

// Option configures a Limiter.
type Option func(*Limiter)

func WithMaxConcurrent(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.maxConcurrent = n
		}
	}
}

func WithBaseDelay(d time.Duration) Option {
	return func(l *Limiter) { l.baseDelay = d }
}

func WithMaxDelay(d time.Duration) Option {
	return func(l *Limiter) { l.maxDelay = d }
}

func WithBackoffMultiplier(m float64) Option {
	return func(l *Limiter) {
		if m > 0 {
			l.backoffMultiplier = m
		}
	}
}

func WithRecoveryThreshold(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.recoveryThreshold = n
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(l *Limiter) {
		if c != nil {
			l.clock = c
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a limiter with the default tuning unless overridden.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		maxConcurrent:     DefaultMaxConcurrent,
		baseDelay:         DefaultBaseDelay,
		maxDelay:          DefaultMaxDelay,
		backoffMultiplier: DefaultBackoffMultiplier,
		recoveryThreshold: DefaultRecoveryThreshold,
		clock:             realClock{},
		logger:            zap.NewNop(),
		keys:              make(map[string]*keyState),
		stress:            1.0,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.sem = semaphore.NewWeighted(int64(l.maxConcurrent))
	return l
}

// Acquire takes a concurrency slot and waits out the key's spacing delay.
// On error no slot is held.
func (l *Limiter) Acquire(ctx context.Context, key string) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	l.mu.Lock()
	delay := l.delayLocked(l.stateLocked(key))
	l.mu.Unlock()

	if delay > 0 {
		if err := l.clock.Sleep(ctx, delay); err != nil {
			l.sem.Release(1)
			return err
		}
	}

	l.mu.Lock()
	st := l.stateLocked(key)
	st.lastRequest = l.clock.Now()
	st.totalRequests++
	l.mu.Unlock()

	return nil
}

// Release records the outcome of a request and frees its slot.
func (l *Limiter) Release(key string, success bool) {
	l.mu.Lock()
	l.recordLocked(key, success)
	l.mu.Unlock()

	l.sem.Release(1)
}

// Do runs fn between Acquire and Release. The request counts as a success when
// fn returns nil. A panic in fn is recorded as a failure and re-raised.
func (l *Limiter) Do(ctx context.Context, key string, fn func(ctx context.Context) error) (err error) {
	if err := l.Acquire(ctx, key); err != nil {
		return err
	}

	success := false
	defer func() {
		l.Release(key, success)
	}()

	err = fn(ctx)
	success = err == nil
	return err
}

func (l *Limiter) stateLocked(key string) *keyState {
	st, ok := l.keys[key]
	if !ok {
		st = &keyState{currentDelay: l.baseDelay}
		l.keys[key] = st
	}
	return st
}

func (l *Limiter) delayLocked(st *keyState) time.Duration {
	if st.lastRequest.IsZero() {
		return 0
	}
	want := time.Duration(float64(st.currentDelay) * l.stress)
	elapsed := l.clock.Now().Sub(st.lastRequest)
	if elapsed < want {
		return want - elapsed
	}
	return 0
}

func (l *Limiter) recordLocked(key string, success bool) {
	st := l.stateLocked(key)

	if success {
		st.consecutiveFailures = 0
		st.consecutiveSuccesses++

		if st.consecutiveSuccesses >= l.recoveryThreshold {
			st.currentDelay = max(l.baseDelay, time.Duration(float64(st.currentDelay)/l.backoffMultiplier))
			st.consecutiveSuccesses = 0
		}

		l.globalFailures = max(0, l.globalFailures-1)
		if l.globalFailures == 0 {
			l.stress = 1.0
		}
		return
	}

	st.consecutiveSuccesses = 0
	st.consecutiveFailures++
	st.totalFailures++
	st.currentDelay = min(l.maxDelay, time.Duration(float64(st.currentDelay)*l.backoffMultiplier))

	l.globalFailures++
	if l.globalFailures > stressFailureThreshold {
		l.stress = min(maxStressMultiplier, l.stress*stressGrowth)
	}

	l.logger.Debug("request failed, backing off",
		zap.String("key", key),
		zap.Duration("delay", st.currentDelay),
		zap.Int("global_failures", l.globalFailures),
		zap.Float64("stress", l.stress))
}

// KeyStatus is a point-in-time view of one key.
type KeyStatus struct {
	CurrentDelay         time.Duration `json:"current_delay"`
	ConsecutiveFailures  int           `json:"consecutive_failures"`
	ConsecutiveSuccesses int           `json:"consecutive_successes"`
	TotalRequests        int           `json:"total_requests"`
	TotalFailures        int           `json:"total_failures"`
}

// Status is a point-in-time view of the limiter.
type Status struct {
	MaxConcurrent          int                  `json:"max_concurrent"`
	GlobalStressMultiplier float64              `json:"global_stress_multiplier"`
	GlobalFailures         int                  `json:"global_failures"`
	Keys                   map[string]KeyStatus `json:"extractors"`
}

func (s Status) String() string {
	return fmt.Sprintf("max_concurrent=%d stress=%.2f global_failures=%d keys=%d",
		s.MaxConcurrent, s.GlobalStressMultiplier, s.GlobalFailures, len(s.Keys))
}

// Status returns a snapshot of the limiter state.
func (l *Limiter) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := Status{
		MaxConcurrent:          l.maxConcurrent,
		GlobalStressMultiplier: l.stress,
		GlobalFailures:         l.globalFailures,
		Keys:                   make(map[string]KeyStatus, len(l.keys)),
	}
	for key, st := range l.keys {
		out.Keys[key] = KeyStatus{
			CurrentDelay:         st.currentDelay,
			ConsecutiveFailures:  st.consecutiveFailures,
			ConsecutiveSuccesses: st.consecutiveSuccesses,
			TotalRequests:        st.totalRequests,
			TotalFailures:        st.totalFailures,
		}
	}
	return out
}

// Reset restores a single key to the base delay. An empty key clears every key
// and the global stress state.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if key != "" {
		if _, ok := l.keys[key]; ok {
			l.keys[key] = &keyState{currentDelay: l.baseDelay}
		}
		return
	}

	l.keys = make(map[string]*keyState)
	l.globalFailures = 0
	l.stress = 1.0
}
