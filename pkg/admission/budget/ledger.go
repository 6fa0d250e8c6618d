package budget

import (
	"sync"
	"time"
)

// DailyKey returns the daily period key ("2006-01-02", UTC) for a time.
func DailyKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// HourlyKey returns the hourly period key ("2006-01-02T15", UTC) for a time.
func HourlyKey(t time.Time) string {
	return t.UTC().Format("2006-01-02T15")
}

// Ledger is an append-only, in-memory spending ledger keyed by daily
// period.
//
// Records are never mutated after Append with one exception: a usage
// correction flips the original record's Superseded flag and appends a
// corrected record, so spend is never double counted and the audit trail
// keeps both the estimate and the actual.
//
// # Thread Safety
//
// Ledger is thread-safe using sync.RWMutex.
type Ledger struct {
	mu sync.RWMutex

	// periods maps daily period key to records in arrival order.
	periods map[string][]*SpendingRecord

	// byRequest maps request ID to its current (non-superseded) record.
	byRequest map[string]*SpendingRecord
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		periods:   make(map[string][]*SpendingRecord),
		byRequest: make(map[string]*SpendingRecord),
	}
}

// Append writes a record to its daily period.
func (l *Ledger) Append(rec *SpendingRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appendLocked(rec)
}

func (l *Ledger) appendLocked(rec *SpendingRecord) {
	key := DailyKey(rec.Timestamp)
	l.periods[key] = append(l.periods[key], rec)
	if rec.RequestID != "" && !rec.Superseded {
		l.byRequest[rec.RequestID] = rec
	}
}

// Correct supersedes the estimate for a request with actual usage.
//
// The original record is marked superseded and a corrected copy with the
// actual token counts and cost is appended. Returns false when no record
// exists for the request ID, in which case nothing is written.
func (l *Ledger) Correct(requestID string, inputTokens, outputTokens int, cost float64, at time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev, ok := l.byRequest[requestID]
	if !ok {
		return false
	}
	prev.Superseded = true

	corrected := &SpendingRecord{
		Timestamp:    at,
		EntityID:     prev.EntityID,
		RequestID:    requestID,
		Model:        prev.Model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Cost:         cost,
		Blocked:      prev.Blocked,
		BlockReason:  prev.BlockReason,
		Corrected:    true,
	}
	l.appendLocked(corrected)
	return true
}

// counts reports whether a record contributes to spend sums.
func counts(rec *SpendingRecord) bool {
	return !rec.Blocked && !rec.Superseded
}

// DailySpend returns the spend for the daily period containing t.
func (l *Ledger) DailySpend(t time.Time) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var sum float64
	for _, rec := range l.periods[DailyKey(t)] {
		if counts(rec) {
			sum += rec.Cost
		}
	}
	return sum
}

// HourlySpend returns the spend for the hourly period containing t.
func (l *Ledger) HourlySpend(t time.Time) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	hour := HourlyKey(t)
	var sum float64
	for _, rec := range l.periods[DailyKey(t)] {
		if counts(rec) && HourlyKey(rec.Timestamp) == hour {
			sum += rec.Cost
		}
	}
	return sum
}

// EntityDailySpend returns one entity's spend for the daily period
// containing t.
func (l *Ledger) EntityDailySpend(entityID string, t time.Time) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var sum float64
	for _, rec := range l.periods[DailyKey(t)] {
		if counts(rec) && rec.EntityID == entityID {
			sum += rec.Cost
		}
	}
	return sum
}

// EntityHourlySpend returns one entity's spend for the hourly period
// containing t.
func (l *Ledger) EntityHourlySpend(entityID string, t time.Time) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	hour := HourlyKey(t)
	var sum float64
	for _, rec := range l.periods[DailyKey(t)] {
		if counts(rec) && rec.EntityID == entityID && HourlyKey(rec.Timestamp) == hour {
			sum += rec.Cost
		}
	}
	return sum
}

// Summarize aggregates the records for a daily or hourly period key.
// An unknown period returns an empty summary, not an error.
func (l *Ledger) Summarize(periodKey string) *SpendingSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	summary := &SpendingSummary{
		PeriodKey: periodKey,
		ByModel:   make(map[string]float64),
		ByEntity:  make(map[string]float64),
	}

	seen := make(map[string]bool)
	for _, rec := range l.recordsForKeyLocked(periodKey) {
		if !seen[rec.RequestID] {
			seen[rec.RequestID] = true
			summary.RequestCount++
			if rec.Blocked {
				summary.BlockedCount++
			}
		}
		if !counts(rec) {
			continue
		}
		summary.TotalSpend += rec.Cost
		summary.InputTokens += rec.InputTokens
		summary.OutputTokens += rec.OutputTokens
		summary.ByModel[rec.Model] += rec.Cost
		summary.ByEntity[rec.EntityID] += rec.Cost
	}
	return summary
}

// ResetPeriod discards the records for a daily or hourly period key.
// Resetting an unknown or already-reset period is a no-op.
func (l *Ledger) ResetPeriod(periodKey string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(periodKey) < len("2006-01-02") {
		return
	}
	if len(periodKey) == len("2006-01-02") {
		for _, rec := range l.periods[periodKey] {
			delete(l.byRequest, rec.RequestID)
		}
		delete(l.periods, periodKey)
		return
	}

	// Hourly reset keeps the rest of the day.
	dayKey := periodKey[:len("2006-01-02")]
	kept := l.periods[dayKey][:0]
	for _, rec := range l.periods[dayKey] {
		if HourlyKey(rec.Timestamp) == periodKey {
			delete(l.byRequest, rec.RequestID)
			continue
		}
		kept = append(kept, rec)
	}
	if len(kept) == 0 {
		delete(l.periods, dayKey)
		return
	}
	l.periods[dayKey] = kept
}

// Snapshot returns a deep copy of the records for a daily period, for
// persistence. Each record is copied by value, so a later correction
// flipping the original's Superseded flag cannot race with a background
// sink write reading the snapshot.
func (l *Ledger) Snapshot(dailyKey string) []*SpendingRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	records := l.periods[dailyKey]
	out := make([]*SpendingRecord, len(records))
	for i, rec := range records {
		c := *rec
		out[i] = &c
	}
	return out
}

// Restore replaces a daily period's records, typically from a sink at
// startup. Existing records for the period are discarded.
func (l *Ledger) Restore(dailyKey string, records []*SpendingRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, rec := range l.periods[dailyKey] {
		delete(l.byRequest, rec.RequestID)
	}
	delete(l.periods, dailyKey)

	for _, rec := range records {
		l.appendLocked(rec)
	}
}

// Periods returns the daily period keys present in the ledger.
func (l *Ledger) Periods() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	keys := make([]string, 0, len(l.periods))
	for key := range l.periods {
		keys = append(keys, key)
	}
	return keys
}

// PruneBefore drops all daily periods strictly older than the cutoff
// day and returns the number of records removed.
func (l *Ledger) PruneBefore(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoffKey := DailyKey(cutoff)
	removed := 0
	for key, records := range l.periods {
		if key < cutoffKey {
			for _, rec := range records {
				delete(l.byRequest, rec.RequestID)
			}
			removed += len(records)
			delete(l.periods, key)
		}
	}
	return removed
}

// recordsForKeyLocked returns the records matching a daily or hourly
// period key. Caller must hold at least a read lock.
func (l *Ledger) recordsForKeyLocked(periodKey string) []*SpendingRecord {
	if len(periodKey) < len("2006-01-02") {
		return nil
	}
	if len(periodKey) == len("2006-01-02") {
		return l.periods[periodKey]
	}

	dayKey := periodKey[:len("2006-01-02")]
	var out []*SpendingRecord
	for _, rec := range l.periods[dayKey] {
		if HourlyKey(rec.Timestamp) == periodKey {
			out = append(out, rec)
		}
	}
	return out
}
