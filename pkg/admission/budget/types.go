package budget

import (
	"context"
	"time"
)

// BlockReason identifies which check hard-blocked a request.
//
// When several checks fail for one request, the authoritative reason is
// the first one encountered in the fixed evaluation order; later failures
// are recorded as additional risk factors.
type BlockReason string

const (
	// BlockPerRequestLimit means the projected cost of this single request
	// exceeded the per-request limit.
	BlockPerRequestLimit BlockReason = "PER_REQUEST_COST_EXCEEDED"

	// BlockTokenStorm means the estimated token volume exceeded the
	// model's token-storm threshold.
	BlockTokenStorm BlockReason = "TOKEN_STORM_DETECTED"

	// BlockDailyBudget means the projected daily spend exceeded the daily
	// budget.
	BlockDailyBudget BlockReason = "DAILY_BUDGET_EXCEEDED"

	// BlockHourlyLimit means the projected hourly spend exceeded the
	// hourly limit.
	BlockHourlyLimit BlockReason = "HOURLY_LIMIT_EXCEEDED"

	// BlockEntityQuota means a per-entity daily or hourly quota was
	// exceeded.
	BlockEntityQuota BlockReason = "ENTITY_QUOTA_EXCEEDED"

	// BlockRequestRate means the request-rate sliding window was full.
	BlockRequestRate BlockReason = "REQUEST_RATE_EXCEEDED"

	// BlockTokenRate means the token-rate sliding window was full.
	BlockTokenRate BlockReason = "TOKEN_RATE_EXCEEDED"

	// BlockVelocityAnomaly means the spend velocity score exceeded the
	// hard-block level (hard-block multiplier times the spike threshold).
	BlockVelocityAnomaly BlockReason = "VELOCITY_ANOMALY"
)

// AdmissionDecision is the outcome of a budget evaluation.
//
// Policy violations are never errors: every outcome, allowed or blocked,
// is a normal decision value with an explicit block reason.
type AdmissionDecision struct {
	// RequestID identifies the evaluated request.
	RequestID string

	// Allowed indicates whether the request may proceed.
	Allowed bool

	// BlockReason is the authoritative reason when Allowed is false.
	BlockReason BlockReason

	// RiskFactors lists every check that failed or raised a concern,
	// including checks that failed after the authoritative block.
	RiskFactors []string

	// Alerts lists alert messages raised during evaluation (budget
	// threshold warnings, velocity spikes).
	Alerts []string

	// Recommendations lists operator guidance derived from the failed
	// checks.
	Recommendations []string

	// ProjectedCost is the estimated cost of this request in USD.
	ProjectedCost float64

	// DailyBudgetRemaining is the USD remaining in the daily budget after
	// this request (when allowed) or at evaluation time (when blocked).
	DailyBudgetRemaining float64

	// HourlyBudgetRemaining is the USD remaining in the hourly limit.
	HourlyBudgetRemaining float64

	// RateLimitRemaining is the remaining request count in the sliding
	// request-rate window.
	RateLimitRemaining int64

	// VelocityScore is the spend velocity score at evaluation time.
	VelocityScore float64
}

// SpendingRecord is an append-only ledger entry.
//
// A record is written for every evaluation, blocked or not, so the ledger
// is a complete audit trail. Records are immutable once written; actual
// usage corrections supersede the original estimate rather than mutating
// it, and superseded records are excluded from spend sums.
type SpendingRecord struct {
	// Timestamp is when the record was written.
	Timestamp time.Time `json:"timestamp"`

	// EntityID is the billing entity (API key, user, team).
	EntityID string `json:"entity_id"`

	// RequestID identifies the request this record belongs to.
	RequestID string `json:"request_id"`

	// Model is the requested model name.
	Model string `json:"model"`

	// InputTokens is the input token count (estimated until corrected).
	InputTokens int `json:"input_tokens"`

	// OutputTokens is the output token count (estimated until corrected).
	OutputTokens int `json:"output_tokens"`

	// Cost is the cost in USD (estimated until corrected).
	Cost float64 `json:"cost"`

	// Blocked indicates the request was denied. Blocked records never
	// contribute to period spend sums.
	Blocked bool `json:"blocked"`

	// BlockReason is set when Blocked is true.
	BlockReason BlockReason `json:"block_reason,omitempty"`

	// Corrected indicates this record carries actual usage reported after
	// the call completed.
	Corrected bool `json:"corrected,omitempty"`

	// Superseded indicates a later correction replaced this record in
	// spend sums. The record remains in the ledger for audit purposes.
	Superseded bool `json:"superseded,omitempty"`
}

// SpendingSummary aggregates ledger records for one period.
type SpendingSummary struct {
	// PeriodKey is the daily ("2006-01-02") or hourly ("2006-01-02T15")
	// period this summary covers.
	PeriodKey string

	// TotalSpend is the USD spend of non-blocked, non-superseded records.
	TotalSpend float64

	// RequestCount is the number of evaluated requests in the period.
	RequestCount int

	// BlockedCount is the number of blocked requests in the period.
	BlockedCount int

	// InputTokens and OutputTokens total the token counts of non-blocked,
	// non-superseded records.
	InputTokens  int
	OutputTokens int

	// ByModel maps model name to spend.
	ByModel map[string]float64

	// ByEntity maps entity ID to spend.
	ByEntity map[string]float64
}

// Sink is the pluggable persistence interface consumed by the guard.
//
// The guard functions correctly against a no-op (memory-only) sink: sink
// failures are logged and evaluation continues using in-memory state,
// which stays authoritative for the lifetime of the process.
type Sink interface {
	// Save persists the records for a period, replacing any previous
	// contents for that period key.
	Save(ctx context.Context, periodKey string, records []*SpendingRecord) error

	// Load retrieves the records for a period. A missing period returns
	// an empty slice and no error.
	Load(ctx context.Context, periodKey string) ([]*SpendingRecord, error)

	// Close releases any resources held by the sink.
	Close() error
}

// AlertSeverity classifies guard alerts.
type AlertSeverity string

const (
	// SeverityWarning marks alerts raised at the warning threshold.
	SeverityWarning AlertSeverity = "warning"

	// SeverityCritical marks alerts raised at the critical threshold or
	// on hard blocks.
	SeverityCritical AlertSeverity = "critical"
)

// Alert is a budget or velocity alert raised during evaluation.
type Alert struct {
	Timestamp time.Time
	Severity  AlertSeverity
	Code      string
	Message   string
	EntityID  string
	RequestID string
}
