package storage

import (
	"context"
	"sync"

	"mercator-hq/ganymede/pkg/admission/budget"
)

// MemorySink implements budget.Sink with an in-memory map.
//
// It exists for tests and for deployments that accept losing spend
// accounting on restart. All operations are O(1) map accesses plus the
// record copy.
type MemorySink struct {
	mu      sync.RWMutex
	periods map[string][]*budget.SpendingRecord
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{
		periods: make(map[string][]*budget.SpendingRecord),
	}
}

// Save stores the records for a period, replacing previous contents.
func (m *MemorySink) Save(_ context.Context, periodKey string, records []*budget.SpendingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]*budget.SpendingRecord, len(records))
	copy(stored, records)
	m.periods[periodKey] = stored
	return nil
}

// Load returns the records for a period, or an empty slice.
func (m *MemorySink) Load(_ context.Context, periodKey string) ([]*budget.SpendingRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := m.periods[periodKey]
	out := make([]*budget.SpendingRecord, len(records))
	copy(out, records)
	return out, nil
}

// Close is a no-op for the memory sink.
func (m *MemorySink) Close() error {
	return nil
}
