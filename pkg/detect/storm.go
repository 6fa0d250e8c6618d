package detect

import (
	"sync"
	"time"

	"mercator-hq/ganymede/pkg/config"
)

// stormRateSaturation is the tokens-per-second rate at which the rate
// component of the storm confidence saturates at 1.0.
const stormRateSaturation = 500.0

// Storm confidence blends phrasing signals with the observed token rate;
// phrasing is the stronger indicator.
const (
	stormSignalWeight = 0.6
	stormRateWeight   = 0.4
)

// StormVerdict is the outcome of one storm observation.
type StormVerdict struct {
	// Confidence is the combined signal in [0,1].
	Confidence float64

	// IsAttack reports whether confidence reached the sensitivity-derived
	// decision threshold.
	IsAttack bool

	// TokensPerSecond is the estimated token rate over the window at
	// observation time.
	TokensPerSecond float64
}

// StormDetector is a lightweight rate-shaping signal for token-storm
// attacks, independent of the full category scan.
//
// It keeps a short sliding window of per-request estimated token counts
// to compute a tokens/sec rate, and combines that with phrasing signals
// (repetition requests, amplification keywords, loop phrasing, large
// numeric amplifiers, recursion language) into a confidence value.
//
// # Thread Safety
//
// StormDetector is thread-safe using sync.Mutex.
type StormDetector struct {
	window    time.Duration
	threshold float64
	signals   []weightedPattern
	maxSignal float64

	mu      sync.Mutex
	samples []tokenSample

	// now is the clock source, overridable in tests.
	now func() time.Time
}

// tokenSample is one observed request's estimated token count.
type tokenSample struct {
	timestamp time.Time
	tokens    int
}

// NewStormDetector creates a storm detector from detection settings.
func NewStormDetector(cfg config.DetectionConfig) *StormDetector {
	window := cfg.StormWindow
	if window <= 0 {
		window = 10 * time.Second
	}

	signals := []weightedPattern{
		pat("repetition_request", `(?i)repeat .{0,20}\b(\d{2,}|many|infinite) times`, 1.0),
		pat("loop_phrasing", `(?i)(forever|infinite loop|never stop|endless(ly)?)`, 0.9),
		pat("recursion_language", `(?i)recursi(ve|on)|call itself|nest(ed)? (itself|repeatedly)`, 0.8),
		pat("amplification_keyword", `(?i)\b(amplify|duplicate|multiply|expand)\b`, 0.6),
		pat("numeric_amplifier", `\b\d{3,}\b`, 0.5),
	}
	var maxSignal float64
	for _, s := range signals {
		maxSignal += s.weight
	}

	return &StormDetector{
		window:    window,
		threshold: ThresholdForSensitivity(cfg.Sensitivity),
		signals:   signals,
		maxSignal: maxSignal,
		now:       time.Now,
	}
}

// ThresholdForSensitivity maps the sensitivity dial to one of four fixed
// decision thresholds. Higher sensitivity means a lower threshold, so
// raising sensitivity never turns an attack verdict into a clean one.
func ThresholdForSensitivity(sensitivity float64) float64 {
	switch {
	case sensitivity >= 0.9:
		return 0.3
	case sensitivity >= 0.7:
		return 0.5
	case sensitivity >= 0.5:
		return 0.7
	default:
		return 0.8
	}
}

// Observe records one request's estimated token count and scores the
// text for storm signals.
func (s *StormDetector) Observe(text string, estimatedTokens int) StormVerdict {
	now := s.now()

	s.mu.Lock()
	s.samples = append(s.samples, tokenSample{timestamp: now, tokens: estimatedTokens})
	s.evictLocked(now)

	var windowTokens int
	for _, sample := range s.samples {
		windowTokens += sample.tokens
	}
	s.mu.Unlock()

	rate := float64(windowTokens) / s.window.Seconds()

	var matched float64
	for _, sig := range s.signals {
		if sig.re.MatchString(text) {
			matched += sig.weight
		}
	}

	signalScore := clamp01(matched / s.maxSignal)
	rateScore := clamp01(rate / stormRateSaturation)
	confidence := clamp01(stormSignalWeight*signalScore + stormRateWeight*rateScore)

	return StormVerdict{
		Confidence:      confidence,
		IsAttack:        confidence >= s.threshold,
		TokensPerSecond: rate,
	}
}

// Threshold returns the decision threshold in effect.
func (s *StormDetector) Threshold() float64 {
	return s.threshold
}

// evictLocked drops samples older than the window.
// Caller must hold the lock.
func (s *StormDetector) evictLocked(now time.Time) {
	cutoff := now.Add(-s.window)

	i := 0
	for i < len(s.samples) && s.samples[i].timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.samples = append(s.samples[:0], s.samples[i:]...)
	}
}
