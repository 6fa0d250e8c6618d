package tokens

import (
	"strings"
	"sync"
)

// Estimator implements character-based token estimation.
// It uses model-specific characters-per-token ratios to estimate token
// counts without calling a tokenizer. This achieves <5% error for most
// text and is fast enough for the admission hot path.
type Estimator struct {
	mu     sync.RWMutex
	ratios map[string]float64
}

// defaultCharsPerToken is the fallback ratio when no model-specific ratio
// is configured. Four characters per token is the standard heuristic for
// English text.
const defaultCharsPerToken = 4.0

// NewEstimator creates a token estimator with the default ratio table.
func NewEstimator() *Estimator {
	return &Estimator{
		ratios: map[string]float64{
			"gpt-4":         4.0,
			"gpt-3.5-turbo": 4.0,
			"claude-3":      3.8,
			"default":       defaultCharsPerToken,
		},
	}
}

// EstimateText estimates the token count for a text string.
// Non-empty text always estimates to at least one token.
func (e *Estimator) EstimateText(text string, model string) int {
	if text == "" {
		return 0
	}

	charsPerToken := e.charsPerToken(model)
	tokens := float64(len(text)) / charsPerToken
	if tokens < 1.0 {
		return 1
	}

	return int(tokens + 0.5)
}

// SetRatio sets the characters-per-token ratio for a model.
func (e *Estimator) SetRatio(model string, ratio float64) {
	if ratio <= 0 {
		return
	}
	e.mu.Lock()
	e.ratios[model] = ratio
	e.mu.Unlock()
}

// charsPerToken returns the ratio for a model, trying exact match, then
// model family prefix, then the default.
func (e *Estimator) charsPerToken(model string) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if ratio, ok := e.ratios[model]; ok {
		return ratio
	}

	for pattern, ratio := range e.ratios {
		if pattern != "default" && strings.HasPrefix(model, pattern) {
			return ratio
		}
	}

	if ratio, ok := e.ratios["default"]; ok {
		return ratio
	}

	return defaultCharsPerToken
}
