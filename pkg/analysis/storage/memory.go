package storage

import (
	"context"
	"fmt"
	"sync"

	"mercator-hq/ganymede/pkg/detect"
)

// MemoryStore keeps assessments in a map, for tests and memory-only
// deployments. A repeated save for the same request ID overwrites the
// previous assessment.
type MemoryStore struct {
	mu          sync.RWMutex
	assessments map[string]*detect.Assessment
}

// NewMemoryStore creates an empty in-memory assessment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assessments: make(map[string]*detect.Assessment),
	}
}

// SaveAssessment stores one assessment keyed by request ID.
func (m *MemoryStore) SaveAssessment(_ context.Context, a *detect.Assessment) error {
	if a == nil {
		return fmt.Errorf("assessment cannot be nil")
	}
	if a.RequestID == "" {
		return fmt.Errorf("assessment request ID cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.assessments[a.RequestID] = a
	return nil
}

// GetAssessment returns the assessment for a request ID, or nil when
// none exists.
func (m *MemoryStore) GetAssessment(_ context.Context, requestID string) (*detect.Assessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.assessments[requestID], nil
}

// Count returns the number of stored assessments.
func (m *MemoryStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.assessments)
}

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error {
	return nil
}
