package sampling

import (
	"fmt"
	"math/rand"
	"sync"

	"mercator-hq/ganymede/pkg/config"
)

// maxRiskHistory caps the per-entity risk score history.
const maxRiskHistory = 10

// alwaysSampleRisk is the mean risk indicator above which a request is
// sampled unconditionally.
const alwaysSampleRisk = 7.0

// Strategy decides which requests get deep asynchronous analysis.
//
// High-risk requests (mean risk indicator above 7.0) are always sampled.
// Otherwise the sampling rate adapts per entity: entities with a history
// of risky requests are sampled more often than the base rate, up to
// always.
//
// # Thread Safety
//
// Strategy is thread-safe using sync.Mutex.
type Strategy struct {
	baseRate float64

	mu      sync.Mutex
	history map[string][]float64

	// randFn returns a uniform value in [0,1), overridable in tests.
	randFn func() float64
}

// NewStrategy creates a sampling strategy.
func NewStrategy(cfg config.SamplingConfig) (*Strategy, error) {
	if cfg.BaseRate < 0 || cfg.BaseRate > 1 {
		return nil, fmt.Errorf("base rate must be in [0,1], got %f", cfg.BaseRate)
	}

	return &Strategy{
		baseRate: cfg.BaseRate,
		history:  make(map[string][]float64),
		randFn:   rand.Float64,
	}, nil
}

// ShouldSample decides whether a request is selected for deep analysis.
//
// Risk indicators are the scores already known for this request (the
// synchronous assessment); entity history drives the adaptive rate when
// the request itself is not clearly risky.
func (s *Strategy) ShouldSample(entityID string, riskIndicators []float64) bool {
	if len(riskIndicators) > 0 && mean(riskIndicators) > alwaysSampleRisk {
		return true
	}

	s.mu.Lock()
	scores := s.history[entityID]
	var meanRisk float64
	if len(scores) > 0 {
		meanRisk = mean(scores)
	}
	roll := s.randFn()
	s.mu.Unlock()

	if len(scores) == 0 {
		return roll < s.baseRate
	}

	adaptiveRate := s.baseRate * (1 + meanRisk/5)
	if adaptiveRate > 1 {
		adaptiveRate = 1
	}
	return roll < adaptiveRate
}

// UpdateEntityRisk appends a risk score to the entity's history,
// dropping the oldest entry beyond the cap.
func (s *Strategy) UpdateEntityRisk(entityID string, score float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scores := append(s.history[entityID], score)
	if len(scores) > maxRiskHistory {
		scores = scores[len(scores)-maxRiskHistory:]
	}
	s.history[entityID] = scores
}

// EntityMeanRisk returns the mean of the entity's recorded risk scores
// and whether any history exists.
func (s *Strategy) EntityMeanRisk(entityID string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scores := s.history[entityID]
	if len(scores) == 0 {
		return 0, false
	}
	return mean(scores), true
}

// BaseRate returns the configured base sampling rate.
func (s *Strategy) BaseRate() float64 {
	return s.baseRate
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
