package config

import "time"

// Config is the root configuration structure for Mercator Ganymede.
// It contains all configuration sections for admission control, budget
// enforcement, threat detection, sampling, async analysis, and retention.
type Config struct {
	// Budget contains budget and rate limit configuration for the
	// admission guard.
	Budget BudgetConfig `yaml:"budget"`

	// Detection contains threat pattern detection configuration.
	Detection DetectionConfig `yaml:"detection"`

	// Sampling contains adaptive sampling configuration for deep analysis.
	Sampling SamplingConfig `yaml:"sampling"`

	// Analysis contains the async analysis queue and worker pool
	// configuration.
	Analysis AnalysisConfig `yaml:"analysis"`

	// Retention contains ledger retention and pruning configuration.
	Retention RetentionConfig `yaml:"retention"`

	// Storage contains persistence paths for the ledger sink and the
	// assessment store.
	Storage StorageConfig `yaml:"storage"`

	// PricingPath is an optional path to a YAML pricing table. When empty,
	// the built-in pricing table is used. When set, the table is watched
	// for changes and hot-reloaded.
	PricingPath string `yaml:"pricing_path"`

	// MetricsAddress is the listen address for the Prometheus metrics
	// endpoint, e.g. "127.0.0.1:9464". Empty disables the endpoint.
	MetricsAddress string `yaml:"metrics_address"`
}

// StorageConfig contains persistence paths. Empty paths select the
// in-memory implementations.
type StorageConfig struct {
	// LedgerPath is the SQLite database file for spending records.
	LedgerPath string `yaml:"ledger_path"`

	// AssessmentPath is the SQLite database file for worker assessments.
	AssessmentPath string `yaml:"assessment_path"`
}

// BudgetConfig contains budget limits, rate limits, and velocity anomaly
// settings for the admission guard.
//
// Zero values disable the corresponding check, with the exception of the
// velocity settings which have non-zero defaults applied by ApplyDefaults.
type BudgetConfig struct {
	// DailyBudgetUSD is the total daily spend limit in USD across all
	// entities. Zero disables the daily check.
	// Default: 100.00
	DailyBudgetUSD float64 `yaml:"daily_budget_usd"`

	// HourlyLimitUSD is the total hourly spend limit in USD.
	// Zero disables the hourly check.
	// Default: 20.00
	HourlyLimitUSD float64 `yaml:"hourly_limit_usd"`

	// PerRequestLimitUSD is the maximum projected cost for a single
	// request. Zero disables the per-request check.
	// Default: 10.00
	PerRequestLimitUSD float64 `yaml:"per_request_limit_usd"`

	// RequestsPerMinute is the global request rate limit over a sliding
	// one-minute window. Zero disables the request rate check.
	// Default: 600
	RequestsPerMinute int64 `yaml:"requests_per_minute"`

	// TokensPerMinute is the global token volume limit over a sliding
	// one-minute window. Zero disables the token rate check.
	// Default: 1000000
	TokensPerMinute int64 `yaml:"tokens_per_minute"`

	// EntityDailyLimitUSD is the per-entity daily spend quota in USD.
	// Zero disables per-entity daily quotas.
	EntityDailyLimitUSD float64 `yaml:"entity_daily_limit_usd"`

	// EntityHourlyLimitUSD is the per-entity hourly spend quota in USD.
	// Zero disables per-entity hourly quotas.
	EntityHourlyLimitUSD float64 `yaml:"entity_hourly_limit_usd"`

	// VelocityWindowMinutes is the rolling window for spend velocity
	// tracking, in minutes.
	// Default: 10
	VelocityWindowMinutes int `yaml:"velocity_window_minutes"`

	// VelocitySpikeThreshold is the velocity score above which a spend
	// anomaly alert is raised. The score is the ratio of the current
	// window sum to the rolling baseline.
	// Default: 3.0
	VelocitySpikeThreshold float64 `yaml:"velocity_spike_threshold"`

	// VelocityHardBlockMultiplier scales VelocitySpikeThreshold to the
	// level at which the guard hard-blocks instead of alerting. A request
	// is blocked only when score > multiplier * threshold.
	// Default: 2.0
	VelocityHardBlockMultiplier float64 `yaml:"velocity_hard_block_multiplier"`

	// WarningThreshold is the fraction of a budget at which a warning
	// alert is raised.
	// Default: 0.8
	WarningThreshold float64 `yaml:"warning_threshold"`

	// CriticalThreshold is the fraction of a budget at which a critical
	// alert is raised.
	// Default: 0.9
	CriticalThreshold float64 `yaml:"critical_threshold"`

	// FailOpen controls behavior when the persistence sink fails. When
	// true, sink errors are logged and the guard continues with in-memory
	// state only. When false, sink errors are still non-fatal to requests
	// but are surfaced through the guard's error log at a higher severity.
	// In-memory counters remain authoritative either way.
	// Default: true
	FailOpen bool `yaml:"fail_open"`
}

// DetectionConfig contains threat pattern detection settings.
type DetectionConfig struct {
	// Sensitivity is the token-storm detection sensitivity dial in [0,1].
	// Higher sensitivity lowers the attack-decision threshold:
	//
	//	>= 0.9 -> 0.3
	//	>= 0.7 -> 0.5
	//	>= 0.5 -> 0.7
	//	else   -> 0.8
	//
	// Default: 0.7
	Sensitivity float64 `yaml:"sensitivity"`

	// StormWindow is the sliding window used by the token-storm
	// sub-detector to compute the tokens-per-second rate.
	// Default: 10s
	StormWindow time.Duration `yaml:"storm_window"`

	// MaxExcerptLength is the maximum prompt excerpt length stored in
	// assessment evidence.
	// Default: 200
	MaxExcerptLength int `yaml:"max_excerpt_length"`
}

// SamplingConfig contains adaptive sampling settings.
type SamplingConfig struct {
	// BaseRate is the baseline probability in [0,1] that a request is
	// sampled for deep analysis.
	// Default: 0.1
	BaseRate float64 `yaml:"base_rate"`
}

// AnalysisConfig contains the async analysis pipeline settings.
type AnalysisConfig struct {
	// QueueCapacity is the bounded analysis queue capacity. Enqueue never
	// blocks; items beyond capacity are dropped and counted.
	// Default: 1000
	QueueCapacity int `yaml:"queue_capacity"`

	// Workers is the number of analysis worker goroutines.
	// Default: 4
	Workers int `yaml:"workers"`

	// DropAlertEvery escalates every Nth dropped item to a critical log.
	// Default: 100
	DropAlertEvery int64 `yaml:"drop_alert_every"`

	// DrainTimeout is the maximum time Stop waits for in-flight analyses
	// to finish before discarding still-queued items.
	// Default: 10s
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

// RetentionConfig contains ledger retention settings.
type RetentionConfig struct {
	// RetainDays is how many days of spending records to keep.
	// Default: 90
	RetainDays int `yaml:"retain_days"`

	// PruneSchedule is a cron expression for scheduled pruning.
	// Empty disables the scheduler.
	// Default: "0 3 * * *" (daily at 3 AM)
	PruneSchedule string `yaml:"prune_schedule"`
}
