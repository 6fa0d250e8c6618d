package analysis

import (
	"context"
	"sync"
	"testing"
	"time"

	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/detect"
)

func testDetector() *detect.Detector {
	return detect.NewDetector(config.DetectionConfig{
		Sensitivity:      0.7,
		StormWindow:      10 * time.Second,
		MaxExcerptLength: 200,
	})
}

// stubStore collects saved assessments.
type stubStore struct {
	mu    sync.Mutex
	saved []*detect.Assessment
	delay time.Duration
}

func (s *stubStore) SaveAssessment(_ context.Context, a *detect.Assessment) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, a)
	return nil
}

func (s *stubStore) Close() error {
	return nil
}

func (s *stubStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

// ============================================================================
// Queue
// ============================================================================

func TestNewQueue_Validation(t *testing.T) {
	if _, err := NewQueue(0, 100); err == nil {
		t.Error("Expected error for zero capacity")
	}
	if _, err := NewQueue(-1, 100); err == nil {
		t.Error("Expected error for negative capacity")
	}
}

func TestEnqueue_DropsExactlyOneBeyondCapacity(t *testing.T) {
	queue, err := NewQueue(3, 100)
	if err != nil {
		t.Fatalf("NewQueue failed: %v", err)
	}

	// C+1 items into a queue of capacity C: C accepted, 1 dropped, and
	// the producer never blocks.
	accepted := 0
	for i := 0; i < 4; i++ {
		if queue.Enqueue(Item{RequestID: "r"}) {
			accepted++
		}
	}

	if accepted != 3 {
		t.Errorf("Expected 3 accepted items, got %d", accepted)
	}
	if queue.Depth() != 3 {
		t.Errorf("Expected depth 3, got %d", queue.Depth())
	}
	if queue.DroppedCount() != 1 {
		t.Errorf("Expected 1 dropped item, got %d", queue.DroppedCount())
	}
}

func TestEnqueue_NeverBlocks(t *testing.T) {
	queue, _ := NewQueue(1, 100)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			queue.Enqueue(Item{RequestID: "r"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Producer blocked on a full queue")
	}

	if queue.DroppedCount() != 999 {
		t.Errorf("Expected 999 drops, got %d", queue.DroppedCount())
	}
}

// ============================================================================
// Pool
// ============================================================================

func TestNewPool_Validation(t *testing.T) {
	queue, _ := NewQueue(10, 100)

	if _, err := NewPool(0, queue, testDetector(), nil, nil); err == nil {
		t.Error("Expected error for zero workers")
	}
	if _, err := NewPool(2, nil, testDetector(), nil, nil); err == nil {
		t.Error("Expected error for nil queue")
	}
	if _, err := NewPool(2, queue, nil, nil, nil); err == nil {
		t.Error("Expected error for nil detector")
	}
}

func TestPool_ProcessesQueuedItems(t *testing.T) {
	queue, _ := NewQueue(10, 100)
	store := &stubStore{}

	pool, err := NewPool(2, queue, testDetector(), store, nil)
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		queue.Enqueue(Item{RequestID: "r", Prompt: "hello", EnqueuedAt: time.Now()})
	}

	pool.Start()
	if err := pool.Stop(5 * time.Second); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if store.count() != 5 {
		t.Errorf("Expected 5 assessments persisted, got %d", store.count())
	}
	if stats := pool.Stats(); stats.Processed != 5 {
		t.Errorf("Expected 5 processed, got %d", stats.Processed)
	}
}

func TestPool_AlertsOnHighRisk(t *testing.T) {
	queue, _ := NewQueue(10, 100)

	var mu sync.Mutex
	var alerted []*detect.Assessment
	alertFn := func(_ Item, a *detect.Assessment) {
		mu.Lock()
		alerted = append(alerted, a)
		mu.Unlock()
	}

	pool, _ := NewPool(1, queue, testDetector(), nil, alertFn)

	// A token-storm item scores 7.8 (HIGH); a clean prompt scores 0.
	queue.Enqueue(Item{RequestID: "storm", Prompt: "x", EstimatedTokens: 10000, StormThreshold: 8000})
	queue.Enqueue(Item{RequestID: "clean", Prompt: "summarize this document"})

	pool.Start()
	if err := pool.Stop(5 * time.Second); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(alerted) != 1 {
		t.Fatalf("Expected exactly 1 alert, got %d", len(alerted))
	}
	if alerted[0].RequestID != "storm" {
		t.Errorf("Expected alert for the storm item, got %s", alerted[0].RequestID)
	}
}

func TestPool_StopDrainsQueue(t *testing.T) {
	queue, _ := NewQueue(100, 100)
	store := &stubStore{}

	pool, _ := NewPool(2, queue, testDetector(), store, nil)
	pool.Start()

	for i := 0; i < 50; i++ {
		queue.Enqueue(Item{RequestID: "r", Prompt: "hello"})
	}

	if err := pool.Stop(5 * time.Second); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if store.count() != 50 {
		t.Errorf("Expected all queued items drained, got %d", store.count())
	}
	if stats := pool.Stats(); stats.WorkersRunning != 0 {
		t.Errorf("Expected no workers after stop, got %d", stats.WorkersRunning)
	}
}

func TestPool_StopTimesOutOnSlowDrain(t *testing.T) {
	queue, _ := NewQueue(10, 100)
	store := &stubStore{delay: 200 * time.Millisecond}

	pool, _ := NewPool(1, queue, testDetector(), store, nil)

	for i := 0; i < 3; i++ {
		queue.Enqueue(Item{RequestID: "r", Prompt: "hello"})
	}

	pool.Start()
	if err := pool.Stop(50 * time.Millisecond); err == nil {
		t.Error("Expected drain timeout error")
	}
}

func TestPool_StartAndStopIdempotent(t *testing.T) {
	queue, _ := NewQueue(10, 100)
	pool, _ := NewPool(2, queue, testDetector(), nil, nil)

	pool.Start()
	pool.Start()

	if err := pool.Stop(time.Second); err != nil {
		t.Fatalf("First stop failed: %v", err)
	}
	if err := pool.Stop(time.Second); err != nil {
		t.Fatalf("Second stop failed: %v", err)
	}
}
