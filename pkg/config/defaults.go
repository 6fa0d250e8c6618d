package config

import "time"

// DefaultConfig returns a Config populated with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Budget.FailOpen = true
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in default values for any unset fields.
// Explicitly configured values are never overwritten.
func ApplyDefaults(cfg *Config) {
	applyBudgetDefaults(&cfg.Budget)
	applyDetectionDefaults(&cfg.Detection)
	applySamplingDefaults(&cfg.Sampling)
	applyAnalysisDefaults(&cfg.Analysis)
	applyRetentionDefaults(&cfg.Retention)
}

func applyBudgetDefaults(b *BudgetConfig) {
	if b.DailyBudgetUSD == 0 {
		b.DailyBudgetUSD = 100.00
	}
	if b.HourlyLimitUSD == 0 {
		b.HourlyLimitUSD = 20.00
	}
	if b.PerRequestLimitUSD == 0 {
		b.PerRequestLimitUSD = 10.00
	}
	if b.RequestsPerMinute == 0 {
		b.RequestsPerMinute = 600
	}
	if b.TokensPerMinute == 0 {
		b.TokensPerMinute = 1_000_000
	}
	if b.VelocityWindowMinutes == 0 {
		b.VelocityWindowMinutes = 10
	}
	if b.VelocitySpikeThreshold == 0 {
		b.VelocitySpikeThreshold = 3.0
	}
	if b.VelocityHardBlockMultiplier == 0 {
		b.VelocityHardBlockMultiplier = 2.0
	}
	if b.WarningThreshold == 0 {
		b.WarningThreshold = 0.8
	}
	if b.CriticalThreshold == 0 {
		b.CriticalThreshold = 0.9
	}
}

func applyDetectionDefaults(d *DetectionConfig) {
	if d.Sensitivity == 0 {
		d.Sensitivity = 0.7
	}
	if d.StormWindow == 0 {
		d.StormWindow = 10 * time.Second
	}
	if d.MaxExcerptLength == 0 {
		d.MaxExcerptLength = 200
	}
}

func applySamplingDefaults(s *SamplingConfig) {
	if s.BaseRate == 0 {
		s.BaseRate = 0.1
	}
}

func applyAnalysisDefaults(a *AnalysisConfig) {
	if a.QueueCapacity == 0 {
		a.QueueCapacity = 1000
	}
	if a.Workers == 0 {
		a.Workers = 4
	}
	if a.DropAlertEvery == 0 {
		a.DropAlertEvery = 100
	}
	if a.DrainTimeout == 0 {
		a.DrainTimeout = 10 * time.Second
	}
}

func applyRetentionDefaults(r *RetentionConfig) {
	if r.RetainDays == 0 {
		r.RetainDays = 90
	}
	if r.PruneSchedule == "" {
		r.PruneSchedule = "0 3 * * *"
	}
}
