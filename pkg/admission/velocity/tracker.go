package velocity

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrInvalidTracker is returned when a tracker is constructed with an
// invalid window or threshold.
var ErrInvalidTracker = errors.New("invalid velocity tracker configuration")

// minBaselineSamples is the number of completed sub-window sums required
// before a baseline exists. With fewer samples the velocity score defaults
// to 1.0 (no signal).
const minBaselineSamples = 10

// maxHistory bounds the baseline history ring.
const maxHistory = 60

// Tracker tracks spend velocity against a rolling baseline.
//
// Spending is accumulated into a deque bounded by the tracking window.
// Completed window-aligned sums feed a baseline history; the velocity
// score is the ratio of the current window sum to the median of that
// history. A score above the spike threshold indicates an anomaly.
//
// The anomaly signal is informational. Callers that hard-block do so at a
// multiple of the spike threshold, which is their policy, not the
// tracker's.
//
// # Thread Safety
//
// Tracker is thread-safe using sync.Mutex.
type Tracker struct {
	window         time.Duration
	spikeThreshold float64

	mu      sync.Mutex
	entries []spend

	// history holds completed sub-window sums for the baseline.
	// Empty sub-windows are not recorded so idle periods do not drag the
	// baseline to zero.
	history      []float64
	currentStart time.Time
	currentSum   float64

	// now is the clock source, overridable in tests.
	now func() time.Time
}

// spend is a single spending event.
type spend struct {
	timestamp time.Time
	amount    float64
}

// NewTracker creates a velocity tracker.
//
// Parameters:
//   - windowMinutes: Rolling window length in minutes
//   - spikeThreshold: Velocity score above which IsAnomaly reports true
func NewTracker(windowMinutes int, spikeThreshold float64) (*Tracker, error) {
	if windowMinutes <= 0 {
		return nil, fmt.Errorf("%w: window must be positive, got %d minutes", ErrInvalidTracker, windowMinutes)
	}
	if spikeThreshold <= 0 {
		return nil, fmt.Errorf("%w: spike threshold must be positive, got %f", ErrInvalidTracker, spikeThreshold)
	}

	return &Tracker{
		window:         time.Duration(windowMinutes) * time.Minute,
		spikeThreshold: spikeThreshold,
		now:            time.Now,
	}, nil
}

// AddSpending records a spending event at the given timestamp.
// Entries older than the window are dropped on every insert.
func (t *Tracker) AddSpending(amount float64, timestamp time.Time) {
	if amount < 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Roll the baseline accumulator when the event crosses into a new
	// window-aligned period.
	start := timestamp.Truncate(t.window)
	if t.currentStart.IsZero() {
		t.currentStart = start
	}
	if start.After(t.currentStart) {
		if t.currentSum > 0 {
			t.history = append(t.history, t.currentSum)
			if len(t.history) > maxHistory {
				t.history = t.history[len(t.history)-maxHistory:]
			}
		}
		t.currentStart = start
		t.currentSum = 0
	}
	t.currentSum += amount

	t.entries = append(t.entries, spend{timestamp: timestamp, amount: amount})
	t.evictLocked(timestamp)
}

// VelocityScore returns the ratio of the current window sum to the
// rolling baseline. Without a baseline (fewer than 10 completed
// sub-window sums) the score defaults to 1.0.
func (t *Tracker) VelocityScore() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.evictLocked(t.now())

	baseline := t.baselineLocked()
	if baseline <= 0 {
		return 1.0
	}

	var current float64
	for _, e := range t.entries {
		current += e.amount
	}

	return current / baseline
}

// IsAnomaly reports whether the current velocity score exceeds the spike
// threshold. This is informational only.
func (t *Tracker) IsAnomaly() bool {
	return t.VelocityScore() > t.spikeThreshold
}

// SpikeThreshold returns the configured spike threshold.
func (t *Tracker) SpikeThreshold() float64 {
	return t.spikeThreshold
}

// Reset clears all entries and the baseline history.
// This is primarily for testing and administrative resets.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = nil
	t.history = nil
	t.currentStart = time.Time{}
	t.currentSum = 0
}

// evictLocked drops entries older than the window.
// Caller must hold the lock.
func (t *Tracker) evictLocked(now time.Time) {
	cutoff := now.Add(-t.window)

	i := 0
	for i < len(t.entries) && t.entries[i].timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		t.entries = append(t.entries[:0], t.entries[i:]...)
	}
}

// baselineLocked returns the median of the baseline history, or 0 when
// fewer than minBaselineSamples sums exist.
// Caller must hold the lock.
func (t *Tracker) baselineLocked() float64 {
	if len(t.history) < minBaselineSamples {
		return 0
	}

	sums := make([]float64, len(t.history))
	copy(sums, t.history)
	sort.Float64s(sums)

	mid := len(sums) / 2
	if len(sums)%2 == 0 {
		return (sums[mid-1] + sums[mid]) / 2
	}
	return sums[mid]
}
