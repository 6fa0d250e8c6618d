package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrInvalidLimiter is returned when a limiter is constructed with an
// invalid window or maximum.
var ErrInvalidLimiter = errors.New("invalid limiter configuration")

// WindowLimiter is a generic sliding-window admission primitive.
//
// Each admitted request contributes a weight: 1 for request-count
// limiting, or a token count for token-volume limiting. The limiter
// guarantees that the total admitted weight inside any trailing window
// never exceeds the configured maximum.
//
// # Algorithm
//
//  1. Evict entries older than the window
//  2. Sum the weights of the remaining entries
//  3. Admit iff sum + weight <= max, appending the new entry on success
//
// All three steps happen under a single critical section so concurrent
// callers never observe a stale sum that would let the window overrun.
//
// # Thread Safety
//
// WindowLimiter is thread-safe using sync.Mutex. Eviction is performed
// on every acquire and on every read so the window never retains entries
// older than its duration.
type WindowLimiter struct {
	window time.Duration
	max    int64

	mu      sync.Mutex
	entries []entry

	// now is the clock source, overridable in tests.
	now func() time.Time
}

// entry is a single admitted weight with its admission timestamp.
// Entries are appended in arrival order, so the slice stays sorted by
// timestamp and eviction only trims the head.
type entry struct {
	timestamp time.Time
	weight    int64
}

// NewWindowLimiter creates a sliding-window limiter.
//
// Parameters:
//   - max: Maximum total weight admitted within any trailing window
//   - window: Window duration (e.g., time.Minute)
//
// Construction fails fast on a non-positive max or window; an invalid
// limiter must never surface as a per-request error.
func NewWindowLimiter(max int64, window time.Duration) (*WindowLimiter, error) {
	if max <= 0 {
		return nil, fmt.Errorf("%w: max must be positive, got %d", ErrInvalidLimiter, max)
	}
	if window <= 0 {
		return nil, fmt.Errorf("%w: window must be positive, got %v", ErrInvalidLimiter, window)
	}

	return &WindowLimiter{
		window: window,
		max:    max,
		now:    time.Now,
	}, nil
}

// TryAcquire attempts to admit the given weight.
//
// Returns whether the weight was admitted and the remaining capacity in
// the window after the call. A weight larger than the remaining capacity
// is rejected without consuming anything.
func (l *WindowLimiter) TryAcquire(weight int64) (bool, int64) {
	if weight < 0 {
		weight = 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evictLocked(now)

	sum := l.sumLocked()
	if sum+weight > l.max {
		return false, l.max - sum
	}

	if weight > 0 {
		l.entries = append(l.entries, entry{timestamp: now, weight: weight})
	}
	return true, l.max - sum - weight
}

// Remaining returns the capacity left in the current window.
// Expired entries are evicted before summing.
func (l *WindowLimiter) Remaining() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.evictLocked(l.now())
	return l.max - l.sumLocked()
}

// WouldExceed reports whether admitting the given weight would overrun
// the window, without consuming any capacity.
func (l *WindowLimiter) WouldExceed(weight int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.evictLocked(l.now())
	return l.sumLocked()+weight > l.max
}

// Max returns the configured maximum weight for the window.
func (l *WindowLimiter) Max() int64 {
	return l.max
}

// Reset clears all admitted entries. This is primarily for testing and
// administrative resets.
func (l *WindowLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = l.entries[:0]
}

// evictLocked drops entries older than the window.
// Caller must hold the lock.
func (l *WindowLimiter) evictLocked(now time.Time) {
	cutoff := now.Add(-l.window)

	// Entries are in arrival order; find the first still-live entry.
	i := 0
	for i < len(l.entries) && l.entries[i].timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		l.entries = append(l.entries[:0], l.entries[i:]...)
	}
}

// sumLocked returns the total admitted weight in the window.
// Caller must hold the lock.
func (l *WindowLimiter) sumLocked() int64 {
	var sum int64
	for _, e := range l.entries {
		sum += e.weight
	}
	return sum
}
