package pricing

// DefaultEntries returns the built-in pricing table used when no pricing
// file is configured. Prices are USD per 1000 tokens.
func DefaultEntries() []Entry {
	return []Entry{
		{
			Model:               "gpt-4",
			InputPricePer1K:     0.03,
			OutputPricePer1K:    0.06,
			TokenStormThreshold: 8000,
			MaxContextTokens:    8192,
		},
		{
			Model:               "gpt-4-turbo",
			InputPricePer1K:     0.01,
			OutputPricePer1K:    0.03,
			TokenStormThreshold: 100000,
			MaxContextTokens:    128000,
		},
		{
			Model:               "gpt-3.5-turbo",
			InputPricePer1K:     0.0005,
			OutputPricePer1K:    0.0015,
			TokenStormThreshold: 12000,
			MaxContextTokens:    16385,
		},
		{
			Model:               "claude-3-opus",
			InputPricePer1K:     0.015,
			OutputPricePer1K:    0.075,
			TokenStormThreshold: 150000,
			MaxContextTokens:    200000,
		},
		{
			Model:               "claude-3-sonnet",
			InputPricePer1K:     0.003,
			OutputPricePer1K:    0.015,
			TokenStormThreshold: 150000,
			MaxContextTokens:    200000,
		},
		{
			Model:               "claude-3-haiku",
			InputPricePer1K:     0.00025,
			OutputPricePer1K:    0.00125,
			TokenStormThreshold: 150000,
			MaxContextTokens:    200000,
		},
		{
			Model:               DefaultModel,
			InputPricePer1K:     0.01,
			OutputPricePer1K:    0.03,
			TokenStormThreshold: 8000,
			MaxContextTokens:    8192,
		},
	}
}

// DefaultTable returns a pricing table built from DefaultEntries.
func DefaultTable() *Table {
	table, err := NewTable(DefaultEntries())
	if err != nil {
		// DefaultEntries always contains a default entry.
		panic(err)
	}
	return table
}
