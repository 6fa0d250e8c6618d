package tokens

import (
	"strings"
	"testing"
)

func TestEstimateText_Basic(t *testing.T) {
	e := NewEstimator()

	tests := []struct {
		name     string
		text     string
		model    string
		expected int
	}{
		{"empty text", "", "gpt-4", 0},
		{"single char rounds up", "a", "gpt-4", 1},
		{"four chars one token", "abcd", "gpt-4", 1},
		{"eight chars two tokens", "abcdefgh", "gpt-4", 2},
		{"unknown model uses default", "abcdefgh", "some-new-model", 2},
		{"model family prefix", strings.Repeat("x", 38), "claude-3-opus", 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.EstimateText(tt.text, tt.model)
			if got != tt.expected {
				t.Errorf("EstimateText(%q, %q) = %d, want %d", tt.text, tt.model, got, tt.expected)
			}
		})
	}
}

func TestEstimateText_LargePrompt(t *testing.T) {
	e := NewEstimator()

	// 28000 chars at 4 chars/token -> 7000 tokens.
	text := strings.Repeat("word", 7000)
	got := e.EstimateText(text, "gpt-4")
	if got != 7000 {
		t.Errorf("Expected 7000 tokens, got %d", got)
	}
}

func TestSetRatio(t *testing.T) {
	e := NewEstimator()
	e.SetRatio("custom-model", 2.0)

	got := e.EstimateText("abcdefgh", "custom-model")
	if got != 4 {
		t.Errorf("Expected 4 tokens at 2 chars/token, got %d", got)
	}

	// Non-positive ratios are ignored.
	e.SetRatio("custom-model", -1)
	got = e.EstimateText("abcdefgh", "custom-model")
	if got != 4 {
		t.Errorf("Expected ratio unchanged after invalid SetRatio, got %d tokens", got)
	}
}
