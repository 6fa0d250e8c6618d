package config

import (
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
)

// ErrConfigInvalid is returned when the configuration fails validation.
var ErrConfigInvalid = errors.New("invalid configuration")

// Validate checks the configuration for invalid values.
//
// Validation fails fast at construction time so that no invalid value can
// surface as a per-request error later.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: configuration is nil", ErrConfigInvalid)
	}

	if err := validateBudget(&cfg.Budget); err != nil {
		return err
	}
	if err := validateDetection(&cfg.Detection); err != nil {
		return err
	}
	if err := validateSampling(&cfg.Sampling); err != nil {
		return err
	}
	if err := validateAnalysis(&cfg.Analysis); err != nil {
		return err
	}
	if err := validateRetention(&cfg.Retention); err != nil {
		return err
	}

	return nil
}

func validateBudget(b *BudgetConfig) error {
	if b.DailyBudgetUSD < 0 {
		return fmt.Errorf("%w: budget.daily_budget_usd must not be negative, got %f", ErrConfigInvalid, b.DailyBudgetUSD)
	}
	if b.HourlyLimitUSD < 0 {
		return fmt.Errorf("%w: budget.hourly_limit_usd must not be negative, got %f", ErrConfigInvalid, b.HourlyLimitUSD)
	}
	if b.PerRequestLimitUSD < 0 {
		return fmt.Errorf("%w: budget.per_request_limit_usd must not be negative, got %f", ErrConfigInvalid, b.PerRequestLimitUSD)
	}
	if b.RequestsPerMinute < 0 {
		return fmt.Errorf("%w: budget.requests_per_minute must not be negative, got %d", ErrConfigInvalid, b.RequestsPerMinute)
	}
	if b.TokensPerMinute < 0 {
		return fmt.Errorf("%w: budget.tokens_per_minute must not be negative, got %d", ErrConfigInvalid, b.TokensPerMinute)
	}
	if b.VelocityWindowMinutes <= 0 {
		return fmt.Errorf("%w: budget.velocity_window_minutes must be positive, got %d", ErrConfigInvalid, b.VelocityWindowMinutes)
	}
	if b.VelocitySpikeThreshold <= 0 {
		return fmt.Errorf("%w: budget.velocity_spike_threshold must be positive, got %f", ErrConfigInvalid, b.VelocitySpikeThreshold)
	}
	if b.VelocityHardBlockMultiplier < 1 {
		return fmt.Errorf("%w: budget.velocity_hard_block_multiplier must be at least 1, got %f", ErrConfigInvalid, b.VelocityHardBlockMultiplier)
	}
	if b.WarningThreshold <= 0 || b.WarningThreshold > 1 {
		return fmt.Errorf("%w: budget.warning_threshold must be in (0,1], got %f", ErrConfigInvalid, b.WarningThreshold)
	}
	if b.CriticalThreshold <= 0 || b.CriticalThreshold > 1 {
		return fmt.Errorf("%w: budget.critical_threshold must be in (0,1], got %f", ErrConfigInvalid, b.CriticalThreshold)
	}
	if b.CriticalThreshold < b.WarningThreshold {
		return fmt.Errorf("%w: budget.critical_threshold must not be below warning_threshold", ErrConfigInvalid)
	}
	return nil
}

func validateDetection(d *DetectionConfig) error {
	if d.Sensitivity < 0 || d.Sensitivity > 1 {
		return fmt.Errorf("%w: detection.sensitivity must be in [0,1], got %f", ErrConfigInvalid, d.Sensitivity)
	}
	if d.StormWindow <= 0 {
		return fmt.Errorf("%w: detection.storm_window must be positive, got %v", ErrConfigInvalid, d.StormWindow)
	}
	if d.MaxExcerptLength <= 0 {
		return fmt.Errorf("%w: detection.max_excerpt_length must be positive, got %d", ErrConfigInvalid, d.MaxExcerptLength)
	}
	return nil
}

func validateSampling(s *SamplingConfig) error {
	if s.BaseRate < 0 || s.BaseRate > 1 {
		return fmt.Errorf("%w: sampling.base_rate must be in [0,1], got %f", ErrConfigInvalid, s.BaseRate)
	}
	return nil
}

func validateAnalysis(a *AnalysisConfig) error {
	if a.QueueCapacity <= 0 {
		return fmt.Errorf("%w: analysis.queue_capacity must be positive, got %d", ErrConfigInvalid, a.QueueCapacity)
	}
	if a.Workers <= 0 {
		return fmt.Errorf("%w: analysis.workers must be positive, got %d", ErrConfigInvalid, a.Workers)
	}
	if a.DropAlertEvery <= 0 {
		return fmt.Errorf("%w: analysis.drop_alert_every must be positive, got %d", ErrConfigInvalid, a.DropAlertEvery)
	}
	if a.DrainTimeout <= 0 {
		return fmt.Errorf("%w: analysis.drain_timeout must be positive, got %v", ErrConfigInvalid, a.DrainTimeout)
	}
	return nil
}

func validateRetention(r *RetentionConfig) error {
	if r.RetainDays < 0 {
		return fmt.Errorf("%w: retention.retain_days must not be negative, got %d", ErrConfigInvalid, r.RetainDays)
	}
	if r.PruneSchedule != "" {
		if _, err := cron.ParseStandard(r.PruneSchedule); err != nil {
			return fmt.Errorf("%w: retention.prune_schedule %q is not a valid cron expression: %v", ErrConfigInvalid, r.PruneSchedule, err)
		}
	}
	return nil
}
