package analysis

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Queue is a bounded FIFO of analysis items.
//
// Enqueue never blocks the producer: when the queue is full the new item
// is dropped and counted, and every Nth drop escalates to an error log
// so saturation is visible without flooding.
type Queue struct {
	items          chan Item
	dropAlertEvery int64
	droppedCount   atomic.Int64
	logger         *slog.Logger
}

// NewQueue creates a bounded queue.
//
// Parameters:
//   - capacity: Maximum queued items; must be positive
//   - dropAlertEvery: Every Nth dropped item logs at error level
func NewQueue(capacity int, dropAlertEvery int64) (*Queue, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("queue capacity must be positive, got %d", capacity)
	}
	if dropAlertEvery <= 0 {
		dropAlertEvery = 100
	}

	return &Queue{
		items:          make(chan Item, capacity),
		dropAlertEvery: dropAlertEvery,
		logger:         slog.Default().With("component", "analysis.queue"),
	}, nil
}

// Enqueue offers an item to the queue and reports whether it was
// accepted. A full queue drops the item; the producer never waits.
func (q *Queue) Enqueue(item Item) bool {
	select {
	case q.items <- item:
		return true
	default:
	}

	dropped := q.droppedCount.Add(1)
	if dropped%q.dropAlertEvery == 0 {
		q.logger.Error("Analysis queue saturated, items are being dropped",
			"dropped_total", dropped,
			"capacity", cap(q.items))
	} else {
		q.logger.Debug("Analysis item dropped, queue full",
			"request_id", item.RequestID)
	}
	return false
}

// Depth returns the number of items currently queued.
func (q *Queue) Depth() int {
	return len(q.items)
}

// Capacity returns the queue's fixed capacity.
func (q *Queue) Capacity() int {
	return cap(q.items)
}

// DroppedCount returns the total number of items dropped so far.
func (q *Queue) DroppedCount() int64 {
	return q.droppedCount.Load()
}
