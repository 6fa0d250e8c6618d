package sampling

import (
	"testing"

	"mercator-hq/ganymede/pkg/config"
)

func newTestStrategy(t *testing.T, baseRate float64) *Strategy {
	t.Helper()
	s, err := NewStrategy(config.SamplingConfig{BaseRate: baseRate})
	if err != nil {
		t.Fatalf("NewStrategy failed: %v", err)
	}
	return s
}

func TestNewStrategy_Validation(t *testing.T) {
	if _, err := NewStrategy(config.SamplingConfig{BaseRate: -0.1}); err == nil {
		t.Error("Expected error for negative base rate")
	}
	if _, err := NewStrategy(config.SamplingConfig{BaseRate: 1.5}); err == nil {
		t.Error("Expected error for base rate above 1")
	}
}

func TestShouldSample_HighRiskAlwaysSamples(t *testing.T) {
	s := newTestStrategy(t, 0.0)

	// Base rate zero; only the risk override can select.
	s.randFn = func() float64 { return 0.99 }

	if !s.ShouldSample("team-a", []float64{8.5}) {
		t.Error("Expected unconditional sampling above risk 7.0")
	}
	if !s.ShouldSample("team-a", []float64{6.0, 9.0}) {
		t.Error("Expected unconditional sampling for mean risk 7.5")
	}
	if s.ShouldSample("team-a", []float64{7.0}) {
		t.Error("Expected no unconditional sampling at exactly 7.0")
	}
}

func TestShouldSample_FlatRateWithoutHistory(t *testing.T) {
	s := newTestStrategy(t, 0.1)

	s.randFn = func() float64 { return 0.05 }
	if !s.ShouldSample("fresh-entity", nil) {
		t.Error("Expected sample when roll is under base rate")
	}

	s.randFn = func() float64 { return 0.5 }
	if s.ShouldSample("fresh-entity", nil) {
		t.Error("Expected no sample when roll is over base rate")
	}
}

func TestShouldSample_AdaptiveRateScalesWithHistory(t *testing.T) {
	s := newTestStrategy(t, 0.1)

	// Mean risk 5.0 doubles the base rate: 0.1 * (1 + 5/5) = 0.2.
	for i := 0; i < 4; i++ {
		s.UpdateEntityRisk("team-a", 5.0)
	}

	s.randFn = func() float64 { return 0.15 }
	if !s.ShouldSample("team-a", nil) {
		t.Error("Expected adaptive rate 0.2 to sample a 0.15 roll")
	}

	// The same roll is not sampled for an entity without history.
	if s.ShouldSample("team-b", nil) {
		t.Error("Expected flat rate 0.1 to skip a 0.15 roll")
	}
}

func TestShouldSample_AdaptiveRateCappedAtOne(t *testing.T) {
	s := newTestStrategy(t, 0.9)

	for i := 0; i < 10; i++ {
		s.UpdateEntityRisk("team-a", 10.0)
	}

	// 0.9 * (1 + 10/5) = 2.7, capped to 1.0: every roll samples.
	s.randFn = func() float64 { return 0.9999 }
	if !s.ShouldSample("team-a", nil) {
		t.Error("Expected capped adaptive rate to sample every roll")
	}
}

func TestUpdateEntityRisk_HistoryCapped(t *testing.T) {
	s := newTestStrategy(t, 0.1)

	// 15 old low scores then 10 high ones; only the last 10 remain.
	for i := 0; i < 15; i++ {
		s.UpdateEntityRisk("team-a", 1.0)
	}
	for i := 0; i < 10; i++ {
		s.UpdateEntityRisk("team-a", 9.0)
	}

	meanRisk, ok := s.EntityMeanRisk("team-a")
	if !ok {
		t.Fatal("Expected history for entity")
	}
	if meanRisk != 9.0 {
		t.Errorf("Expected mean 9.0 after old scores dropped, got %f", meanRisk)
	}
}

func TestEntityMeanRisk_NoHistory(t *testing.T) {
	s := newTestStrategy(t, 0.1)

	if _, ok := s.EntityMeanRisk("unknown"); ok {
		t.Error("Expected no history for unknown entity")
	}
}
