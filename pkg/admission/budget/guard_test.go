package budget

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/pricing"
)

func testGuard(t *testing.T, cfg config.BudgetConfig) *Guard {
	t.Helper()
	g, err := NewGuard(cfg, pricing.DefaultTable(), nil)
	if err != nil {
		t.Fatalf("NewGuard failed: %v", err)
	}
	return g
}

// minimalBudgetConfig returns a config with only the velocity settings
// populated (required by the tracker); every limit is disabled unless the
// test sets it.
func minimalBudgetConfig() config.BudgetConfig {
	return config.BudgetConfig{
		VelocityWindowMinutes:       10,
		VelocitySpikeThreshold:      3.0,
		VelocityHardBlockMultiplier: 2.0,
		WarningThreshold:            0.8,
		CriticalThreshold:           0.9,
		FailOpen:                    true,
	}
}

// ============================================================================
// Admission scenarios
// ============================================================================

func TestEvaluate_AllowsNormalRequest(t *testing.T) {
	g := testGuard(t, config.DefaultConfig().Budget)

	d := g.Evaluate("r1", "team-a", "gpt-4", 7000, 500)
	if !d.Allowed {
		t.Fatalf("Expected request allowed, got blocked: %s", d.BlockReason)
	}

	// 7000 in at $0.03/1k + 500 out at $0.06/1k.
	if !near(d.ProjectedCost, 0.24) {
		t.Errorf("Expected projected cost 0.24, got %f", d.ProjectedCost)
	}
	if !near(d.DailyBudgetRemaining, 100.00-0.24) {
		t.Errorf("Expected daily remaining %.2f, got %f", 100.00-0.24, d.DailyBudgetRemaining)
	}
}

func TestEvaluate_TokenStormBlocks(t *testing.T) {
	g := testGuard(t, config.DefaultConfig().Budget)

	// 10000 estimated tokens against gpt-4's 8000 storm threshold. The
	// $0.36 cost is well under the per-request limit, so the storm check
	// is the authoritative reason.
	d := g.Evaluate("r1", "team-a", "gpt-4", 8000, 2000)
	if d.Allowed {
		t.Fatal("Expected token storm to block the request")
	}
	if d.BlockReason != BlockTokenStorm {
		t.Errorf("Expected block reason %s, got %s", BlockTokenStorm, d.BlockReason)
	}

	alerts := g.GetAlerts(1)
	if len(alerts) != 1 || alerts[0].Code != "token_storm" || alerts[0].Severity != SeverityCritical {
		t.Errorf("Expected critical token_storm alert, got %+v", alerts)
	}
}

func TestEvaluate_TokenStormWarningTier(t *testing.T) {
	g := testGuard(t, config.DefaultConfig().Budget)

	// 7500 tokens: under gpt-4's 8000 threshold but past the 80% warning
	// tier, so the request is allowed with an alert attached.
	d := g.Evaluate("r1", "team-a", "gpt-4", 7000, 500)
	if !d.Allowed {
		t.Fatalf("Expected request allowed, got %s", d.BlockReason)
	}
	if len(d.Alerts) == 0 {
		t.Error("Expected a storm-threshold warning alert")
	}

	alerts := g.GetAlerts(1)
	if len(alerts) != 1 || alerts[0].Code != "token_storm_warning" {
		t.Errorf("Expected token_storm_warning alert, got %+v", alerts)
	}
}

func TestEvaluate_FirstBlockWinsOverLaterChecks(t *testing.T) {
	cfg := config.DefaultConfig().Budget
	cfg.PerRequestLimitUSD = 0.30

	g := testGuard(t, cfg)

	// Both the per-request limit ($0.36 > $0.30) and the storm threshold
	// fail; the earlier check owns the block reason, the later one still
	// lands in the risk factors.
	d := g.Evaluate("r1", "team-a", "gpt-4", 8000, 2000)
	if d.BlockReason != BlockPerRequestLimit {
		t.Errorf("Expected block reason %s, got %s", BlockPerRequestLimit, d.BlockReason)
	}
	if len(d.RiskFactors) < 2 {
		t.Errorf("Expected both failed checks in risk factors, got %v", d.RiskFactors)
	}
}

func TestEvaluate_RaisingPerRequestLimitNeverBlocks(t *testing.T) {
	// The same request evaluated under an increasing per-request limit:
	// once allowed at some limit, every higher limit must allow it too.
	// 2000 in + 1000 out on gpt-4 costs $0.12.
	limits := []float64{0.05, 0.10, 0.12, 0.13, 0.50, 10.00}

	wasAllowed := false
	for _, limit := range limits {
		cfg := minimalBudgetConfig()
		cfg.PerRequestLimitUSD = limit

		g := testGuard(t, cfg)
		d := g.Evaluate("r1", "team-a", "gpt-4", 2000, 1000)

		if wasAllowed && !d.Allowed {
			t.Fatalf("Allowed at a lower limit but blocked at %.2f (%s)", limit, d.BlockReason)
		}
		if d.Allowed {
			wasAllowed = true
		}
	}

	if !wasAllowed {
		t.Fatal("Expected the request to be allowed at the highest limit")
	}
}

func TestEvaluate_DailyBudget(t *testing.T) {
	cfg := minimalBudgetConfig()
	cfg.DailyBudgetUSD = 0.15

	g := testGuard(t, cfg)

	// $0.12 of spend: allowed, but already at the 80% warning tier.
	d1 := g.Evaluate("r1", "team-a", "gpt-4", 4000, 0)
	if !d1.Allowed {
		t.Fatalf("Expected first request allowed, got %s", d1.BlockReason)
	}
	if len(d1.Alerts) == 0 {
		t.Error("Expected a budget warning alert at 80% of budget")
	}

	// Projected $0.18 exceeds the $0.15 budget.
	d2 := g.Evaluate("r2", "team-a", "gpt-4", 2000, 0)
	if d2.Allowed {
		t.Fatal("Expected second request blocked")
	}
	if d2.BlockReason != BlockDailyBudget {
		t.Errorf("Expected block reason %s, got %s", BlockDailyBudget, d2.BlockReason)
	}

	// The blocked request did not count toward spend, so a $0.03 request
	// landing exactly on the budget is still allowed.
	d3 := g.Evaluate("r3", "team-a", "gpt-4", 1000, 0)
	if !d3.Allowed {
		t.Fatalf("Expected exact-budget request allowed, got %s", d3.BlockReason)
	}
	if !near(d3.DailyBudgetRemaining, 0) {
		t.Errorf("Expected 0 budget remaining, got %f", d3.DailyBudgetRemaining)
	}
}

func TestEvaluate_EntityQuota(t *testing.T) {
	cfg := minimalBudgetConfig()
	cfg.EntityDailyLimitUSD = 0.10

	g := testGuard(t, cfg)

	if d := g.Evaluate("r1", "team-a", "gpt-4", 2000, 0); !d.Allowed {
		t.Fatalf("Expected first entity request allowed, got %s", d.BlockReason)
	}

	d := g.Evaluate("r2", "team-a", "gpt-4", 2000, 0)
	if d.Allowed {
		t.Fatal("Expected entity quota to block")
	}
	if d.BlockReason != BlockEntityQuota {
		t.Errorf("Expected block reason %s, got %s", BlockEntityQuota, d.BlockReason)
	}

	// Quotas are per entity; another entity is unaffected.
	if d := g.Evaluate("r3", "team-b", "gpt-4", 2000, 0); !d.Allowed {
		t.Errorf("Expected other entity allowed, got %s", d.BlockReason)
	}
}

func TestEvaluate_RequestRate(t *testing.T) {
	cfg := minimalBudgetConfig()
	cfg.RequestsPerMinute = 2

	g := testGuard(t, cfg)

	g.Evaluate("r1", "team-a", "gpt-3.5-turbo", 10, 10)
	g.Evaluate("r2", "team-a", "gpt-3.5-turbo", 10, 10)

	d := g.Evaluate("r3", "team-a", "gpt-3.5-turbo", 10, 10)
	if d.Allowed {
		t.Fatal("Expected third request to hit the rate limit")
	}
	if d.BlockReason != BlockRequestRate {
		t.Errorf("Expected block reason %s, got %s", BlockRequestRate, d.BlockReason)
	}
	if d.RateLimitRemaining != 0 {
		t.Errorf("Expected 0 rate capacity remaining, got %d", d.RateLimitRemaining)
	}
}

func TestEvaluate_BlockedRequestDoesNotConsumeRateCapacity(t *testing.T) {
	cfg := minimalBudgetConfig()
	cfg.PerRequestLimitUSD = 0.01
	cfg.RequestsPerMinute = 5

	g := testGuard(t, cfg)

	// Blocked on cost before the rate check; window capacity must be
	// intact afterwards.
	d := g.Evaluate("r1", "team-a", "gpt-4", 5000, 0)
	if d.BlockReason != BlockPerRequestLimit {
		t.Fatalf("Expected per-request block, got %s", d.BlockReason)
	}

	if remaining := g.requestLimiter.Remaining(); remaining != 5 {
		t.Errorf("Expected full rate capacity after blocked request, got %d", remaining)
	}
}

func TestEvaluate_TokenRate(t *testing.T) {
	cfg := minimalBudgetConfig()
	cfg.TokensPerMinute = 100

	g := testGuard(t, cfg)

	if d := g.Evaluate("r1", "team-a", "gpt-3.5-turbo", 30, 30); !d.Allowed {
		t.Fatalf("Expected first request allowed, got %s", d.BlockReason)
	}

	d := g.Evaluate("r2", "team-a", "gpt-3.5-turbo", 30, 30)
	if d.Allowed {
		t.Fatal("Expected token rate to block")
	}
	if d.BlockReason != BlockTokenRate {
		t.Errorf("Expected block reason %s, got %s", BlockTokenRate, d.BlockReason)
	}
}

// seedVelocityBaseline feeds steady window-aligned spending 24 hours in
// the past so the tracker has a baseline of ~1.0 per window.
func seedVelocityBaseline(g *Guard) {
	ts := time.Now().Add(-24 * time.Hour).Truncate(10 * time.Minute)
	for i := 0; i < 12; i++ {
		g.VelocityTracker().AddSpending(1.0, ts)
		ts = ts.Add(10 * time.Minute)
	}
}

func TestEvaluate_VelocitySpikeAlertsOnly(t *testing.T) {
	g := testGuard(t, minimalBudgetConfig())
	seedVelocityBaseline(g)

	// 4x baseline: above the 3.0 spike threshold, below the 6.0 hard
	// block level.
	g.VelocityTracker().AddSpending(4.0, time.Now())

	d := g.Evaluate("r1", "team-a", "gpt-3.5-turbo", 10, 10)
	if !d.Allowed {
		t.Fatalf("Expected spike to alert without blocking, got %s", d.BlockReason)
	}
	if len(d.Alerts) == 0 {
		t.Error("Expected a velocity spike alert")
	}
	if len(d.RiskFactors) == 0 {
		t.Error("Expected the spike in the risk factors")
	}
}

func TestEvaluate_VelocityHardBlock(t *testing.T) {
	g := testGuard(t, minimalBudgetConfig())
	seedVelocityBaseline(g)

	// 20x baseline: beyond multiplier * threshold = 6.0.
	g.VelocityTracker().AddSpending(20.0, time.Now())

	d := g.Evaluate("r1", "team-a", "gpt-3.5-turbo", 10, 10)
	if d.Allowed {
		t.Fatal("Expected velocity anomaly to block")
	}
	if d.BlockReason != BlockVelocityAnomaly {
		t.Errorf("Expected block reason %s, got %s", BlockVelocityAnomaly, d.BlockReason)
	}
	if d.VelocityScore < 6.0 {
		t.Errorf("Expected velocity score above hard-block level, got %f", d.VelocityScore)
	}
}

// ============================================================================
// Usage corrections and summaries
// ============================================================================

func TestRecordActualUsage_NoDoubleCount(t *testing.T) {
	g := testGuard(t, config.DefaultConfig().Budget)

	g.Evaluate("r1", "team-a", "gpt-4", 1000, 0)
	cost := g.RecordActualUsage("r1", "team-a", "gpt-4", 2000, 0)

	if !near(cost, 0.06) {
		t.Errorf("Expected actual cost 0.06, got %f", cost)
	}

	summary := g.GetSpendingSummary(DailyKey(time.Now()))
	if !near(summary.TotalSpend, 0.06) {
		t.Errorf("Expected only the corrected cost counted, got %f", summary.TotalSpend)
	}
	if summary.RequestCount != 1 {
		t.Errorf("Expected 1 request after correction, got %d", summary.RequestCount)
	}
}

func TestRecordActualUsage_UnknownRequestStillCounts(t *testing.T) {
	g := testGuard(t, config.DefaultConfig().Budget)

	g.RecordActualUsage("never-evaluated", "team-a", "gpt-4", 2000, 0)

	summary := g.GetSpendingSummary(DailyKey(time.Now()))
	if !near(summary.TotalSpend, 0.06) {
		t.Errorf("Expected late-reported usage counted, got %f", summary.TotalSpend)
	}
}

func TestResetPeriod_Idempotent(t *testing.T) {
	g := testGuard(t, config.DefaultConfig().Budget)

	g.Evaluate("r1", "team-a", "gpt-4", 1000, 0)
	key := DailyKey(time.Now())

	g.ResetPeriod(key)
	g.ResetPeriod(key)

	if spend := g.GetSpendingSummary(key).TotalSpend; spend != 0 {
		t.Errorf("Expected 0 spend after reset, got %f", spend)
	}
}

// ============================================================================
// Persistence sink
// ============================================================================

type stubSink struct {
	mu      sync.Mutex
	stored  map[string][]*SpendingRecord
	saves   int
	saveErr error
	loadErr error
}

func newStubSink() *stubSink {
	return &stubSink{stored: make(map[string][]*SpendingRecord)}
}

func (s *stubSink) Save(_ context.Context, periodKey string, records []*SpendingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.stored[periodKey] = records
	s.saves++
	return nil
}

func (s *stubSink) Load(_ context.Context, periodKey string) ([]*SpendingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.stored[periodKey], nil
}

func (s *stubSink) Close() error { return nil }

func (s *stubSink) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func TestGuard_RestoresLedgerFromSink(t *testing.T) {
	sink := newStubSink()
	now := time.Now()
	sink.stored[DailyKey(now)] = []*SpendingRecord{
		{Timestamp: now, EntityID: "team-a", RequestID: "r1", Model: "gpt-4", Cost: 0.50},
	}

	g, err := NewGuard(config.DefaultConfig().Budget, pricing.DefaultTable(), sink)
	if err != nil {
		t.Fatalf("NewGuard failed: %v", err)
	}

	summary := g.GetSpendingSummary(DailyKey(now))
	if !near(summary.TotalSpend, 0.50) {
		t.Errorf("Expected restored spend 0.50, got %f", summary.TotalSpend)
	}
}

func TestGuard_WriteBehindPersistence(t *testing.T) {
	sink := newStubSink()

	g, err := NewGuard(config.DefaultConfig().Budget, pricing.DefaultTable(), sink)
	if err != nil {
		t.Fatalf("NewGuard failed: %v", err)
	}

	g.Evaluate("r1", "team-a", "gpt-4", 1000, 0)

	// Persistence is asynchronous; wait for the background save.
	deadline := time.After(3 * time.Second)
	for sink.saveCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("Expected a background sink save")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestGuard_SinkFailureDoesNotBlockRequests(t *testing.T) {
	sink := newStubSink()
	sink.saveErr = errors.New("disk full")
	sink.loadErr = errors.New("disk full")

	g, err := NewGuard(config.DefaultConfig().Budget, pricing.DefaultTable(), sink)
	if err != nil {
		t.Fatalf("NewGuard failed: %v", err)
	}

	if d := g.Evaluate("r1", "team-a", "gpt-4", 1000, 0); !d.Allowed {
		t.Errorf("Expected request allowed despite sink failure, got %s", d.BlockReason)
	}
}

// fieldReadingSink reads every record field on Save, the way a real sink
// serializes records, so the race detector sees any write to a record
// shared with a snapshot. It keeps the highest superseded count observed
// across saves.
type fieldReadingSink struct {
	mu            sync.Mutex
	maxSuperseded int
}

func (s *fieldReadingSink) Save(_ context.Context, _ string, records []*SpendingRecord) error {
	count := 0
	for _, rec := range records {
		if rec.Superseded && rec.Cost >= 0 && rec.RequestID != "" {
			count++
		}
	}
	s.mu.Lock()
	if count > s.maxSuperseded {
		s.maxSuperseded = count
	}
	s.mu.Unlock()
	return nil
}

func (s *fieldReadingSink) Load(_ context.Context, _ string) ([]*SpendingRecord, error) {
	return nil, nil
}

func (s *fieldReadingSink) Close() error { return nil }

func TestGuard_CorrectionsDoNotRaceWithPersistence(t *testing.T) {
	sink := &fieldReadingSink{}
	g, err := NewGuard(config.DefaultConfig().Budget, pricing.DefaultTable(), sink)
	if err != nil {
		t.Fatalf("NewGuard failed: %v", err)
	}

	// Each iteration hands a snapshot to a background save and then
	// corrects the same request, which supersedes the ledger's record
	// while the save may still be reading its own copy.
	for i := 0; i < 100; i++ {
		g.Evaluate("r", "team-a", "gpt-3.5-turbo", 100, 100)
		g.RecordActualUsage("r", "team-a", "gpt-3.5-turbo", 150, 150)
	}

	if err := g.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	// Close flushes synchronously, so the sink has seen the final ledger:
	// every estimate superseded by its correction.
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.maxSuperseded != 100 {
		t.Errorf("Expected 100 superseded estimates in the flushed ledger, got %d", sink.maxSuperseded)
	}
}

func TestGuard_Concurrent(t *testing.T) {
	g := testGuard(t, config.DefaultConfig().Budget)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			d := g.Evaluate("r", "team-a", "gpt-3.5-turbo", 100, 100)
			if d.Allowed {
				g.RecordActualUsage("r", "team-a", "gpt-3.5-turbo", 100, 100)
			}
			_ = g.GetSpendingSummary(DailyKey(time.Now()))
		}(i)
	}
	wg.Wait()
}
