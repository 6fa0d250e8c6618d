package admission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/ganymede/pkg/admission/budget"
	"mercator-hq/ganymede/pkg/admission/retention"
	"mercator-hq/ganymede/pkg/analysis"
	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/detect"
	"mercator-hq/ganymede/pkg/pricing"
	"mercator-hq/ganymede/pkg/sampling"
	"mercator-hq/ganymede/pkg/tokens"
)

// stormRiskIndicator is the risk indicator contributed to the sampling
// decision when the storm sub-detector flags a request. It matches the
// fixed token-storm severity used by the full scan.
const stormRiskIndicator = 7.8

// State is a capture call's position in its per-call state machine.
type State string

const (
	StateReceived      State = "RECEIVED"
	StateBudgetChecked State = "BUDGET_CHECKED"
	StateBlocked       State = "BLOCKED"
	StateThreatScored  State = "THREAT_SCORED"
	StateSampleDecided State = "SAMPLE_DECIDED"
	StateEnqueued      State = "ENQUEUED"
	StateSkipped       State = "SKIPPED"
	StateReturned      State = "RETURNED"
)

// Request is one LLM call presented for admission.
type Request struct {
	// RequestID identifies the request. Empty gets a generated UUID.
	RequestID string

	// EntityID identifies the caller for quotas and sampling history.
	EntityID string

	// SessionID groups requests belonging to one conversation.
	SessionID string

	// Model is the target model name, resolved against the pricing table.
	Model string

	// Prompt is the inbound prompt text.
	Prompt string

	// Response is the model response, when the caller already has it.
	Response string

	// EstimatedInputTokens overrides the character-based input estimate.
	// Zero means estimate from Prompt.
	EstimatedInputTokens int

	// EstimatedOutputTokens overrides the output estimate. Zero means
	// estimate from Response.
	EstimatedOutputTokens int

	// Metadata carries caller-supplied context for logging.
	Metadata map[string]string
}

// Result is the outcome of one Capture call.
type Result struct {
	// RequestID is the request's ID, generated when the caller supplied
	// none.
	RequestID string

	// State is the terminal state the call reached, BLOCKED or RETURNED.
	State State

	// Decision is the budget guard's admission decision.
	Decision *budget.AdmissionDecision

	// Assessment is the synchronous threat scan. Nil for blocked
	// requests, which never reach the detector.
	Assessment *detect.Assessment

	// Sampled reports whether the request was selected for deep analysis.
	Sampled bool

	// Enqueued reports whether the analysis item was accepted by the
	// queue. A sampled request can still be dropped when the queue is
	// full; that is a metric, not an error.
	Enqueued bool
}

// Options are the controller's pluggable collaborators.
type Options struct {
	// Sink persists the spending ledger. Nil means memory-only.
	Sink budget.Sink

	// Store persists worker assessments. Nil means results are only
	// logged.
	Store analysis.Store

	// AlertFunc is invoked by workers for CRITICAL and HIGH assessments.
	AlertFunc analysis.AlertFunc

	// Registerer receives the controller's metrics. Nil uses the default
	// Prometheus registry.
	Registerer prometheus.Registerer
}

// Controller composes the budget guard, threat detector, sampler, and
// async analysis pipeline into one admission surface.
//
// Capture runs the per-call state machine:
//
//	RECEIVED -> BUDGET_CHECKED -> BLOCKED
//	                           -> THREAT_SCORED -> SAMPLE_DECIDED
//	                              -> ENQUEUED | SKIPPED -> RETURNED
//
// Capture never performs blocking I/O: ledger persistence is write-behind
// and the analysis enqueue is drop-on-full.
//
// The controller takes ownership of the sink and store; Stop closes both.
type Controller struct {
	cfg *config.Config

	table     *pricing.Table
	watcher   *pricing.Watcher
	estimator *tokens.Estimator
	guard     *budget.Guard
	detector  *detect.Detector
	storm     *detect.StormDetector
	sampler   *sampling.Strategy
	queue     *analysis.Queue
	pool      *analysis.Pool
	store     analysis.Store
	scheduler *retention.Scheduler
	metrics   *Metrics

	logger *slog.Logger
}

// NewController builds a controller from configuration.
//
// The configuration is validated as-is; zero-valued limits disable their
// checks. Callers usually start from config.DefaultConfig or config.Load,
// which fill defaults.
func NewController(cfg *config.Config, opts Options) (*Controller, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:       cfg,
		estimator: tokens.NewEstimator(),
		detector:  detect.NewDetector(cfg.Detection),
		storm:     detect.NewStormDetector(cfg.Detection),
		store:     opts.Store,
		metrics:   NewMetrics(opts.Registerer),
		logger:    slog.Default().With("component", "admission-controller"),
	}

	if cfg.PricingPath != "" {
		table, err := pricing.LoadFile(cfg.PricingPath)
		if err != nil {
			return nil, fmt.Errorf("pricing table: %w", err)
		}
		watcher, err := pricing.NewWatcher(table, cfg.PricingPath)
		if err != nil {
			return nil, fmt.Errorf("pricing watcher: %w", err)
		}
		c.table = table
		c.watcher = watcher
	} else {
		c.table = pricing.DefaultTable()
	}

	guard, err := budget.NewGuard(cfg.Budget, c.table, opts.Sink)
	if err != nil {
		return nil, fmt.Errorf("budget guard: %w", err)
	}
	c.guard = guard

	sampler, err := sampling.NewStrategy(cfg.Sampling)
	if err != nil {
		return nil, fmt.Errorf("sampling strategy: %w", err)
	}
	c.sampler = sampler

	queue, err := analysis.NewQueue(cfg.Analysis.QueueCapacity, cfg.Analysis.DropAlertEvery)
	if err != nil {
		return nil, fmt.Errorf("analysis queue: %w", err)
	}
	c.queue = queue

	pool, err := analysis.NewPool(cfg.Analysis.Workers, queue, c.detector, opts.Store, opts.AlertFunc)
	if err != nil {
		return nil, fmt.Errorf("analysis pool: %w", err)
	}
	c.pool = pool

	if cfg.Retention.RetainDays > 0 && cfg.Retention.PruneSchedule != "" {
		var sinkPruner retention.SinkPruner
		if sp, ok := opts.Sink.(retention.SinkPruner); ok {
			sinkPruner = sp
		}
		pruner, err := retention.NewPruner(cfg.Retention, guard.Ledger(), sinkPruner)
		if err != nil {
			return nil, fmt.Errorf("retention pruner: %w", err)
		}
		c.scheduler = retention.NewScheduler(pruner)
	}

	return c, nil
}

// Start launches the analysis workers, the pricing watcher, and the
// retention scheduler. Start is called once; the context bounds the
// background goroutines.
func (c *Controller) Start(ctx context.Context) error {
	c.pool.Start()

	if c.watcher != nil {
		go func() {
			if err := c.watcher.Watch(ctx); err != nil {
				c.logger.Error("Pricing watcher exited", "error", err)
			}
		}()
	}

	if c.scheduler != nil {
		if err := c.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("retention scheduler: %w", err)
		}
	}

	c.logger.Info("Admission controller started",
		"workers", c.cfg.Analysis.Workers,
		"queue_capacity", c.cfg.Analysis.QueueCapacity)
	return nil
}

// Stop shuts the controller down: the scheduler and watcher stop, the
// analysis queue drains up to the configured timeout, and the ledger is
// flushed to the sink.
func (c *Controller) Stop() error {
	var errs []error

	if c.scheduler != nil {
		c.scheduler.Stop()
	}
	if c.watcher != nil {
		if err := c.watcher.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("pricing watcher: %w", err))
		}
	}
	if err := c.pool.Stop(c.cfg.Analysis.DrainTimeout); err != nil {
		errs = append(errs, err)
	}
	if err := c.guard.Close(); err != nil {
		errs = append(errs, fmt.Errorf("budget guard: %w", err))
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("assessment store: %w", err))
		}
	}

	c.logger.Info("Admission controller stopped")
	return errors.Join(errs...)
}

// Capture runs admission for one request: budget checks, the synchronous
// threat scan, the sampling decision, and a non-blocking enqueue for deep
// analysis. The decision is returned immediately regardless of the queue
// outcome.
func (c *Controller) Capture(req Request) *Result {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	inputTokens := req.EstimatedInputTokens
	if inputTokens == 0 {
		inputTokens = c.estimator.EstimateText(req.Prompt, req.Model)
	}
	outputTokens := req.EstimatedOutputTokens
	if outputTokens == 0 && req.Response != "" {
		outputTokens = c.estimator.EstimateText(req.Response, req.Model)
	}
	totalTokens := inputTokens + outputTokens

	c.metrics.RecordCapture()
	c.logger.Debug("Capture received",
		"request_id", req.RequestID,
		"entity_id", req.EntityID,
		"session_id", req.SessionID,
		"model", req.Model,
		"estimated_tokens", totalTokens,
		"metadata", req.Metadata)

	res := &Result{RequestID: req.RequestID, State: StateReceived}

	res.Decision = c.guard.Evaluate(req.RequestID, req.EntityID, req.Model, inputTokens, outputTokens)
	res.State = StateBudgetChecked

	if !res.Decision.Allowed {
		res.State = StateBlocked
		c.metrics.RecordBlocked(string(res.Decision.BlockReason))
		c.updatePipelineGauges()
		return res
	}

	entry := c.table.Resolve(req.Model)
	res.Assessment = c.detector.Analyze(detect.Input{
		RequestID:       req.RequestID,
		Prompt:          req.Prompt,
		Response:        req.Response,
		EstimatedTokens: totalTokens,
		StormThreshold:  entry.TokenStormThreshold,
	})
	res.State = StateThreatScored
	if res.Assessment.RiskScore > 0 {
		c.metrics.RecordThreat(string(res.Assessment.RiskLevel))
	}

	riskIndicators := []float64{res.Assessment.RiskScore}
	verdict := c.storm.Observe(req.Prompt, totalTokens)
	if verdict.IsAttack {
		riskIndicators = append(riskIndicators, stormRiskIndicator)
		c.logger.Warn("Token storm signal",
			"request_id", req.RequestID,
			"entity_id", req.EntityID,
			"confidence", verdict.Confidence,
			"tokens_per_second", verdict.TokensPerSecond)
	}

	res.Sampled = c.sampler.ShouldSample(req.EntityID, riskIndicators)
	res.State = StateSampleDecided
	c.sampler.UpdateEntityRisk(req.EntityID, res.Assessment.RiskScore)

	if res.Sampled {
		c.metrics.RecordSampled()
		res.Enqueued = c.queue.Enqueue(analysis.Item{
			RequestID:       req.RequestID,
			EntityID:        req.EntityID,
			Model:           req.Model,
			Prompt:          req.Prompt,
			Response:        req.Response,
			EstimatedTokens: totalTokens,
			StormThreshold:  entry.TokenStormThreshold,
			EnqueuedAt:      time.Now(),
		})
	}
	if res.Enqueued {
		res.State = StateEnqueued
	} else {
		res.State = StateSkipped
	}

	c.updatePipelineGauges()
	res.State = StateReturned
	return res
}

// RecordActualUsage replaces a request's estimated cost with actual
// usage and returns the actual cost.
func (c *Controller) RecordActualUsage(requestID, entityID, model string, inputTokens, outputTokens int) float64 {
	return c.guard.RecordActualUsage(requestID, entityID, model, inputTokens, outputTokens)
}

// GetSpendingSummary aggregates the ledger for a daily or hourly period
// key.
func (c *Controller) GetSpendingSummary(periodKey string) *budget.SpendingSummary {
	return c.guard.GetSpendingSummary(periodKey)
}

// GetAlerts returns up to limit recent budget alerts, newest first.
func (c *Controller) GetAlerts(limit int) []budget.Alert {
	return c.guard.GetAlerts(limit)
}

// ResetPeriod discards the accounting for a period.
func (c *Controller) ResetPeriod(periodKey string) {
	c.guard.ResetPeriod(periodKey)
}

// PipelineStats returns the analysis pipeline counters.
func (c *Controller) PipelineStats() analysis.Stats {
	return c.pool.Stats()
}

// PricingTable exposes the live pricing table.
func (c *Controller) PricingTable() *pricing.Table {
	return c.table
}

// updatePipelineGauges refreshes the queue and worker gauges.
func (c *Controller) updatePipelineGauges() {
	stats := c.pool.Stats()
	c.metrics.UpdatePipeline(stats.QueueDepth, stats.Dropped, stats.WorkersRunning)
}
