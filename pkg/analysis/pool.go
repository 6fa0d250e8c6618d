package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/ganymede/pkg/detect"
)

// saveTimeout bounds each assessment store write.
const saveTimeout = 5 * time.Second

// Pool runs the full threat scan on queued items.
//
// Workers wait on the queue and a shutdown signal together, so shutdown
// is cooperative without polling. An in-flight analysis always finishes;
// there are no partial-result states. On Stop, workers keep draining
// queued items until the drain timeout, after which still-queued items
// are discarded.
type Pool struct {
	queue    *Queue
	detector *detect.Detector
	store    Store
	alertFn  AlertFunc
	workers  int

	done  chan struct{}
	abort chan struct{}
	wg    sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once

	processed atomic.Int64
	running   atomic.Int32

	logger *slog.Logger
}

// NewPool creates a worker pool over a queue.
//
// The store and alert function are optional: without a store results are
// only logged, and without an alert function CRITICAL/HIGH findings are
// still logged at error level.
func NewPool(workers int, queue *Queue, detector *detect.Detector, store Store, alertFn AlertFunc) (*Pool, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("worker count must be positive, got %d", workers)
	}
	if queue == nil {
		return nil, fmt.Errorf("queue is required")
	}
	if detector == nil {
		return nil, fmt.Errorf("detector is required")
	}

	return &Pool{
		queue:    queue,
		detector: detector,
		store:    store,
		alertFn:  alertFn,
		workers:  workers,
		done:     make(chan struct{}),
		abort:    make(chan struct{}),
		logger:   slog.Default().With("component", "analysis.pool"),
	}, nil
}

// Start launches the workers. Calling Start twice is a no-op.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker(i)
		}
		p.logger.Info("Analysis workers started", "workers", p.workers)
	})
}

// Stop signals shutdown and waits up to drainTimeout for workers to
// finish. In-flight analyses complete; queued items are drained until
// the timeout, after which the rest are discarded.
func (p *Pool) Stop(drainTimeout time.Duration) error {
	p.stopOnce.Do(func() {
		close(p.done)
	})

	finished := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		p.logger.Info("Analysis workers stopped", "processed", p.processed.Load())
		return nil
	case <-time.After(drainTimeout):
		close(p.abort)
		p.logger.Warn("Analysis drain timed out, discarding queued items",
			"remaining", p.queue.Depth())
		return fmt.Errorf("analysis pool drain timed out after %s", drainTimeout)
	}
}

// Stats is a point-in-time view of the pipeline.
type Stats struct {
	Processed      int64
	Dropped        int64
	QueueDepth     int
	WorkersRunning int
}

// Stats returns current pipeline counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Processed:      p.processed.Load(),
		Dropped:        p.queue.DroppedCount(),
		QueueDepth:     p.queue.Depth(),
		WorkersRunning: int(p.running.Load()),
	}
}

// worker loops until shutdown, then drains what it can.
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	p.running.Add(1)
	defer p.running.Add(-1)

	p.logger.Debug("Analysis worker running", "worker", id)

	for {
		select {
		case item := <-p.queue.items:
			p.process(item)
		case <-p.done:
			p.drain()
			return
		}
	}
}

// drain processes remaining queued items until the queue is empty or the
// abort signal fires.
func (p *Pool) drain() {
	for {
		select {
		case <-p.abort:
			return
		case item := <-p.queue.items:
			p.process(item)
		default:
			return
		}
	}
}

// process runs one item to completion.
func (p *Pool) process(item Item) {
	assessment := p.detector.Analyze(detect.Input{
		RequestID:       item.RequestID,
		Prompt:          item.Prompt,
		Response:        item.Response,
		EstimatedTokens: item.EstimatedTokens,
		StormThreshold:  item.StormThreshold,
	})

	if p.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		if err := p.store.SaveAssessment(ctx, assessment); err != nil {
			p.logger.Warn("Failed to persist assessment",
				"request_id", item.RequestID,
				"error", err)
		}
		cancel()
	}

	if assessment.RiskLevel == detect.RiskCritical || assessment.RiskLevel == detect.RiskHigh {
		p.logger.Error("High-risk request detected",
			"request_id", item.RequestID,
			"entity_id", item.EntityID,
			"risk_score", assessment.RiskScore,
			"risk_level", string(assessment.RiskLevel))
		if p.alertFn != nil {
			p.alertFn(item, assessment)
		}
	}

	p.processed.Add(1)
}
