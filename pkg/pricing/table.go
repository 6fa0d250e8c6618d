package pricing

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultModel is the mandatory fallback key in every pricing table.
const DefaultModel = "default"

// ErrNoDefaultEntry is returned when a pricing table is constructed
// without a "default" entry.
var ErrNoDefaultEntry = errors.New("pricing table must contain a \"default\" entry")

// Entry contains pricing and cost-safety parameters for a single model.
type Entry struct {
	// Model is the model identifier this entry applies to.
	Model string `yaml:"model"`

	// InputPricePer1K is the cost per 1000 input (prompt) tokens in USD.
	InputPricePer1K float64 `yaml:"input_price_per_1k"`

	// OutputPricePer1K is the cost per 1000 output (completion) tokens in USD.
	OutputPricePer1K float64 `yaml:"output_price_per_1k"`

	// TokenStormThreshold is the estimated total token count above which a
	// request is treated as a token-storm cost exploit.
	TokenStormThreshold int `yaml:"token_storm_threshold"`

	// MaxContextTokens is the model's context window size.
	MaxContextTokens int `yaml:"max_context_tokens"`
}

// Cost returns the cost in USD for the given input and output token counts.
func (e Entry) Cost(inputTokens, outputTokens int) float64 {
	var cost float64
	if inputTokens > 0 {
		cost += float64(inputTokens) / 1000.0 * e.InputPricePer1K
	}
	if outputTokens > 0 {
		cost += float64(outputTokens) / 1000.0 * e.OutputPricePer1K
	}
	return cost
}

// Table is a thread-safe pricing lookup table.
//
// Lookup resolution order is exact model match, then model prefix match
// (so "gpt-4" also covers "gpt-4-0613"), then the mandatory "default"
// entry. The table contents can be replaced atomically, which is how the
// hot-reload watcher applies updated pricing files.
type Table struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewTable creates a pricing table from the given entries.
// The entries must include a "default" entry; construction fails otherwise.
func NewTable(entries []Entry) (*Table, error) {
	m, err := index(entries)
	if err != nil {
		return nil, err
	}
	return &Table{entries: m}, nil
}

// Resolve returns the pricing entry for a model.
//
// Missing or unknown models resolve to the default entry rather than
// failing the request.
func (t *Table) Resolve(model string) Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if entry, ok := t.entries[model]; ok {
		return entry
	}

	// Prefix match covers dated model variants. The longest matching
	// prefix wins so "gpt-4-turbo" beats "gpt-4" for "gpt-4-turbo-0125"
	// regardless of map iteration order.
	var best Entry
	bestLen := 0
	for pattern, entry := range t.entries {
		if pattern != DefaultModel && len(pattern) > bestLen && strings.HasPrefix(model, pattern) {
			best = entry
			bestLen = len(pattern)
		}
	}
	if bestLen > 0 {
		return best
	}

	return t.entries[DefaultModel]
}

// Replace atomically swaps the table contents for the given entries.
// The new entries must include a "default" entry; on error the existing
// contents are left untouched.
func (t *Table) Replace(entries []Entry) error {
	m, err := index(entries)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.entries = m
	t.mu.Unlock()
	return nil
}

// Models returns the model names present in the table.
func (t *Table) Models() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	models := make([]string, 0, len(t.entries))
	for model := range t.entries {
		models = append(models, model)
	}
	return models
}

// pricingFile is the YAML file format for pricing tables.
type pricingFile struct {
	Models []Entry `yaml:"models"`
}

// LoadFile loads a pricing table from a YAML file.
func LoadFile(path string) (*Table, error) {
	entries, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return NewTable(entries)
}

// readFile reads and parses a pricing YAML file into entries.
func readFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pricing file %q: %w", path, err)
	}

	var file pricingFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse pricing file %q: %w", path, err)
	}

	return file.Models, nil
}

// index builds the lookup map and enforces the mandatory default entry.
func index(entries []Entry) (map[string]Entry, error) {
	m := make(map[string]Entry, len(entries))
	for _, entry := range entries {
		if entry.Model == "" {
			return nil, fmt.Errorf("pricing entry with empty model name")
		}
		m[entry.Model] = entry
	}

	if _, ok := m[DefaultModel]; !ok {
		return nil, ErrNoDefaultEntry
	}
	return m, nil
}
