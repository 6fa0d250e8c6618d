package budget

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/ganymede/pkg/admission/ratelimit"
	"mercator-hq/ganymede/pkg/admission/velocity"
	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/pricing"
)

// persistTimeout bounds each background sink write.
const persistTimeout = 5 * time.Second

// Guard enforces budget limits, rate limits, and spend velocity policy
// for incoming requests.
//
// Evaluate runs a fixed sequence of checks in priority order:
//
//  1. Per-request cost limit
//  2. Token-storm threshold (per model)
//  3. Daily budget
//  4. Hourly limit
//  5. Per-entity quotas
//  6. Request rate (sliding window)
//  7. Token rate (sliding window)
//  8. Spend velocity anomaly
//
// The first failing check determines the block reason; the remaining
// checks still run so the decision carries every risk factor. Rate
// limiter capacity is consumed only while the request is still allowed,
// so an already-blocked request cannot burn window capacity.
//
// In-memory state is authoritative. The sink is a write-behind copy:
// sink failures never fail a request.
type Guard struct {
	cfg    config.BudgetConfig
	table  *pricing.Table
	ledger *Ledger
	sink   Sink

	requestLimiter *ratelimit.WindowLimiter
	tokenLimiter   *ratelimit.WindowLimiter
	tracker        *velocity.Tracker

	alerts *AlertLog
	logger *slog.Logger

	// now is the clock source, overridable in tests.
	now func() time.Time
}

// NewGuard creates a budget guard from configuration.
//
// The pricing table is required. The sink may be nil for memory-only
// operation; when present, the current day's ledger is restored from it.
func NewGuard(cfg config.BudgetConfig, table *pricing.Table, sink Sink) (*Guard, error) {
	if table == nil {
		return nil, fmt.Errorf("pricing table is required")
	}

	g := &Guard{
		cfg:    cfg,
		table:  table,
		ledger: NewLedger(),
		sink:   sink,
		alerts: NewAlertLog(),
		logger: slog.Default().With("component", "budget-guard"),
		now:    time.Now,
	}

	if cfg.RequestsPerMinute > 0 {
		limiter, err := ratelimit.NewWindowLimiter(cfg.RequestsPerMinute, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("request rate limiter: %w", err)
		}
		g.requestLimiter = limiter
	}
	if cfg.TokensPerMinute > 0 {
		limiter, err := ratelimit.NewWindowLimiter(cfg.TokensPerMinute, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("token rate limiter: %w", err)
		}
		g.tokenLimiter = limiter
	}

	tracker, err := velocity.NewTracker(cfg.VelocityWindowMinutes, cfg.VelocitySpikeThreshold)
	if err != nil {
		return nil, fmt.Errorf("velocity tracker: %w", err)
	}
	g.tracker = tracker

	if sink != nil {
		g.restoreToday()
	}

	return g, nil
}

// restoreToday loads the current day's records from the sink so restarts
// do not reset budget accounting mid-day.
func (g *Guard) restoreToday() {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	key := DailyKey(g.now())
	records, err := g.sink.Load(ctx, key)
	if err != nil {
		g.logger.Warn("Failed to restore spending ledger, starting empty",
			"period", key,
			"error", err)
		return
	}
	if len(records) == 0 {
		return
	}

	g.ledger.Restore(key, records)
	g.logger.Info("Restored spending ledger",
		"period", key,
		"records", len(records))
}

// Evaluate runs all admission checks for a request and records the
// outcome in the ledger.
//
// Token counts are estimates at this point; callers report actual usage
// through RecordActualUsage after the upstream call completes.
func (g *Guard) Evaluate(requestID, entityID, model string, inputTokens, outputTokens int) *AdmissionDecision {
	now := g.now()
	entry := g.table.Resolve(model)
	cost := entry.Cost(inputTokens, outputTokens)
	totalTokens := inputTokens + outputTokens

	d := &AdmissionDecision{
		RequestID:     requestID,
		Allowed:       true,
		ProjectedCost: cost,
	}

	// block records a failed check. The first block sets the
	// authoritative reason; later blocks only add risk factors.
	block := func(reason BlockReason, factor string) {
		d.RiskFactors = append(d.RiskFactors, factor)
		d.Recommendations = append(d.Recommendations, recommendationFor(reason))
		if d.Allowed {
			d.Allowed = false
			d.BlockReason = reason
		}
	}

	// Check 1: per-request cost limit.
	if g.cfg.PerRequestLimitUSD > 0 && cost > g.cfg.PerRequestLimitUSD {
		block(BlockPerRequestLimit, fmt.Sprintf(
			"projected cost $%.4f exceeds per-request limit $%.2f", cost, g.cfg.PerRequestLimitUSD))
	}

	// Check 2: token-storm threshold for the resolved model, with a
	// warning tier at the configured fraction of the threshold.
	if entry.TokenStormThreshold > 0 {
		switch {
		case totalTokens > entry.TokenStormThreshold:
			block(BlockTokenStorm, fmt.Sprintf(
				"estimated %d tokens exceeds storm threshold %d for model %s",
				totalTokens, entry.TokenStormThreshold, model))
			g.alert(d, SeverityCritical, "token_storm", entityID, requestID,
				fmt.Sprintf("token storm: %d tokens against threshold %d", totalTokens, entry.TokenStormThreshold))
		case float64(totalTokens) >= g.cfg.WarningThreshold*float64(entry.TokenStormThreshold):
			g.alert(d, SeverityWarning, "token_storm_warning", entityID, requestID,
				fmt.Sprintf("token volume %d at %.0f%% of storm threshold %d",
					totalTokens, float64(totalTokens)/float64(entry.TokenStormThreshold)*100, entry.TokenStormThreshold))
		}
	}

	// Check 3: daily budget, with warning and critical tiers below the
	// hard limit.
	dailySpend := g.ledger.DailySpend(now)
	if g.cfg.DailyBudgetUSD > 0 {
		projected := dailySpend + cost
		switch {
		case projected > g.cfg.DailyBudgetUSD:
			block(BlockDailyBudget, fmt.Sprintf(
				"projected daily spend $%.4f exceeds budget $%.2f", projected, g.cfg.DailyBudgetUSD))
		case projected >= g.cfg.CriticalThreshold*g.cfg.DailyBudgetUSD:
			g.alert(d, SeverityCritical, "daily_budget_critical", entityID, requestID,
				fmt.Sprintf("daily spend at %.0f%% of budget", projected/g.cfg.DailyBudgetUSD*100))
		case projected >= g.cfg.WarningThreshold*g.cfg.DailyBudgetUSD:
			g.alert(d, SeverityWarning, "daily_budget_warning", entityID, requestID,
				fmt.Sprintf("daily spend at %.0f%% of budget", projected/g.cfg.DailyBudgetUSD*100))
		}
	}

	// Check 4: hourly limit.
	hourlySpend := g.ledger.HourlySpend(now)
	if g.cfg.HourlyLimitUSD > 0 {
		projected := hourlySpend + cost
		switch {
		case projected > g.cfg.HourlyLimitUSD:
			block(BlockHourlyLimit, fmt.Sprintf(
				"projected hourly spend $%.4f exceeds limit $%.2f", projected, g.cfg.HourlyLimitUSD))
		case projected >= g.cfg.CriticalThreshold*g.cfg.HourlyLimitUSD:
			g.alert(d, SeverityCritical, "hourly_limit_critical", entityID, requestID,
				fmt.Sprintf("hourly spend at %.0f%% of limit", projected/g.cfg.HourlyLimitUSD*100))
		}
	}

	// Check 5: per-entity quotas.
	if entityID != "" {
		if g.cfg.EntityDailyLimitUSD > 0 {
			if g.ledger.EntityDailySpend(entityID, now)+cost > g.cfg.EntityDailyLimitUSD {
				block(BlockEntityQuota, fmt.Sprintf(
					"entity %s daily quota $%.2f exceeded", entityID, g.cfg.EntityDailyLimitUSD))
			}
		}
		if g.cfg.EntityHourlyLimitUSD > 0 {
			if g.ledger.EntityHourlySpend(entityID, now)+cost > g.cfg.EntityHourlyLimitUSD {
				block(BlockEntityQuota, fmt.Sprintf(
					"entity %s hourly quota $%.2f exceeded", entityID, g.cfg.EntityHourlyLimitUSD))
			}
		}
	}

	// Check 6: request rate. Capacity is consumed only while the request
	// is still admissible; blocked requests get a read-only check.
	if g.requestLimiter != nil {
		if d.Allowed {
			allowed, remaining := g.requestLimiter.TryAcquire(1)
			d.RateLimitRemaining = remaining
			if !allowed {
				block(BlockRequestRate, fmt.Sprintf(
					"request rate limit %d/min exceeded", g.cfg.RequestsPerMinute))
			}
		} else {
			d.RateLimitRemaining = g.requestLimiter.Remaining()
			if g.requestLimiter.WouldExceed(1) {
				block(BlockRequestRate, fmt.Sprintf(
					"request rate limit %d/min exceeded", g.cfg.RequestsPerMinute))
			}
		}
	}

	// Check 7: token rate.
	if g.tokenLimiter != nil && totalTokens > 0 {
		weight := int64(totalTokens)
		if d.Allowed {
			if allowed, _ := g.tokenLimiter.TryAcquire(weight); !allowed {
				block(BlockTokenRate, fmt.Sprintf(
					"token rate limit %d/min exceeded", g.cfg.TokensPerMinute))
			}
		} else if g.tokenLimiter.WouldExceed(weight) {
			block(BlockTokenRate, fmt.Sprintf(
				"token rate limit %d/min exceeded", g.cfg.TokensPerMinute))
		}
	}

	// Check 8: spend velocity. The spike threshold only alerts; the hard
	// block engages at a configured multiple of it.
	d.VelocityScore = g.tracker.VelocityScore()
	hardBlockLevel := g.cfg.VelocityHardBlockMultiplier * g.tracker.SpikeThreshold()
	switch {
	case g.cfg.VelocityHardBlockMultiplier > 0 && d.VelocityScore > hardBlockLevel:
		block(BlockVelocityAnomaly, fmt.Sprintf(
			"spend velocity %.1fx baseline exceeds hard-block level %.1fx", d.VelocityScore, hardBlockLevel))
		g.alert(d, SeverityCritical, "velocity_anomaly", entityID, requestID,
			fmt.Sprintf("spend velocity %.1fx baseline", d.VelocityScore))
	case d.VelocityScore > g.tracker.SpikeThreshold():
		d.RiskFactors = append(d.RiskFactors, fmt.Sprintf(
			"spend velocity %.1fx baseline above spike threshold %.1fx",
			d.VelocityScore, g.tracker.SpikeThreshold()))
		g.alert(d, SeverityWarning, "velocity_spike", entityID, requestID,
			fmt.Sprintf("spend velocity %.1fx baseline", d.VelocityScore))
	}

	// Every evaluation leaves a ledger record, blocked or not. Blocked
	// records never count toward spend sums.
	rec := &SpendingRecord{
		Timestamp:    now,
		EntityID:     entityID,
		RequestID:    requestID,
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Cost:         cost,
		Blocked:      !d.Allowed,
		BlockReason:  d.BlockReason,
	}
	g.ledger.Append(rec)
	g.persistAsync(DailyKey(now))

	// Remaining headroom after this request's effect.
	effect := 0.0
	if d.Allowed {
		effect = cost
	}
	if g.cfg.DailyBudgetUSD > 0 {
		d.DailyBudgetRemaining = max(0, g.cfg.DailyBudgetUSD-dailySpend-effect)
	}
	if g.cfg.HourlyLimitUSD > 0 {
		d.HourlyBudgetRemaining = max(0, g.cfg.HourlyLimitUSD-hourlySpend-effect)
	}

	if !d.Allowed {
		g.logger.Warn("Request blocked",
			"request_id", requestID,
			"entity_id", entityID,
			"reason", string(d.BlockReason),
			"projected_cost", cost)
	}

	return d
}

// RecordActualUsage replaces the estimated cost for a request with
// actual usage reported after the upstream call completed.
//
// The original estimate is superseded, never double counted. Actual
// spend also feeds the velocity baseline. Returns the actual cost.
func (g *Guard) RecordActualUsage(requestID, entityID, model string, inputTokens, outputTokens int) float64 {
	now := g.now()
	cost := g.table.Resolve(model).Cost(inputTokens, outputTokens)

	if !g.ledger.Correct(requestID, inputTokens, outputTokens, cost, now) {
		// Usage reported for a request this guard never evaluated, for
		// example after a restart without a sink. Record it anyway so
		// spend accounting stays truthful.
		g.ledger.Append(&SpendingRecord{
			Timestamp:    now,
			EntityID:     entityID,
			RequestID:    requestID,
			Model:        model,
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
			Cost:         cost,
			Corrected:    true,
		})
	}

	g.tracker.AddSpending(cost, now)
	g.persistAsync(DailyKey(now))
	return cost
}

// GetSpendingSummary aggregates the ledger for a daily or hourly period
// key.
func (g *Guard) GetSpendingSummary(periodKey string) *SpendingSummary {
	return g.ledger.Summarize(periodKey)
}

// GetAlerts returns up to limit recent alerts, newest first.
func (g *Guard) GetAlerts(limit int) []Alert {
	return g.alerts.List(limit)
}

// ResetPeriod discards the accounting for a period. Resetting a period
// twice is safe. The reset is propagated to the sink.
func (g *Guard) ResetPeriod(periodKey string) {
	g.ledger.ResetPeriod(periodKey)
	if len(periodKey) >= len("2006-01-02") {
		g.persistAsync(periodKey[:len("2006-01-02")])
	}
}

// Ledger exposes the underlying ledger for retention pruning.
func (g *Guard) Ledger() *Ledger {
	return g.ledger
}

// VelocityTracker exposes the spend velocity tracker.
func (g *Guard) VelocityTracker() *velocity.Tracker {
	return g.tracker
}

// Close flushes the ledger and closes the sink.
func (g *Guard) Close() error {
	if g.sink == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	for _, key := range g.ledger.Periods() {
		if err := g.sink.Save(ctx, key, g.ledger.Snapshot(key)); err != nil {
			g.logger.Error("Failed to flush spending ledger",
				"period", key,
				"error", err)
		}
	}
	return g.sink.Close()
}

// alert records an alert in the log and on the decision.
func (g *Guard) alert(d *AdmissionDecision, severity AlertSeverity, code, entityID, requestID, message string) {
	g.alerts.Add(Alert{
		Timestamp: g.now(),
		Severity:  severity,
		Code:      code,
		Message:   message,
		EntityID:  entityID,
		RequestID: requestID,
	})
	d.Alerts = append(d.Alerts, message)
}

// persistAsync writes a period's records to the sink in the background.
// In-memory state stays authoritative; a sink failure is logged per the
// fail-open policy and the request proceeds.
func (g *Guard) persistAsync(dailyKey string) {
	if g.sink == nil {
		return
	}

	records := g.ledger.Snapshot(dailyKey)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		if err := g.sink.Save(ctx, dailyKey, records); err != nil {
			if g.cfg.FailOpen {
				g.logger.Warn("Spending ledger persistence failed, continuing in-memory",
					"period", dailyKey,
					"error", err)
			} else {
				g.logger.Error("Spending ledger persistence failed",
					"period", dailyKey,
					"error", err)
			}
		}
	}()
}

// recommendationFor maps a block reason to operator guidance.
func recommendationFor(reason BlockReason) string {
	switch reason {
	case BlockPerRequestLimit:
		return "reduce request size or raise per_request_limit_usd"
	case BlockTokenStorm:
		return "inspect the request for cost-exploitation patterns"
	case BlockDailyBudget:
		return "raise daily_budget_usd or wait for the next period"
	case BlockHourlyLimit:
		return "raise hourly_limit_usd or spread load across hours"
	case BlockEntityQuota:
		return "review entity usage or raise its quota"
	case BlockRequestRate:
		return "retry after the sliding window drains"
	case BlockTokenRate:
		return "reduce token volume or retry later"
	case BlockVelocityAnomaly:
		return "investigate the spend spike before retrying"
	default:
		return ""
	}
}
