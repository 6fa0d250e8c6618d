package detect

import "time"

// Category identifies a threat category.
type Category string

const (
	// CategoryPromptInjection covers attempts to override or extract the
	// system prompt.
	CategoryPromptInjection Category = "PROMPT_INJECTION"

	// CategoryPII covers personally identifiable information in content.
	CategoryPII Category = "PII_EXPOSURE"

	// CategorySensitiveDisclosure covers credentials, keys, and other
	// secrets.
	CategorySensitiveDisclosure Category = "SENSITIVE_DISCLOSURE"

	// CategoryJailbreak covers attempts to disable safety behavior.
	CategoryJailbreak Category = "JAILBREAK"

	// CategoryTokenStorm covers cost-exploitation through forced token
	// generation.
	CategoryTokenStorm Category = "TOKEN_STORM"
)

// RiskLevel is a DREAD-like qualitative severity derived from the 0-10
// risk score.
type RiskLevel string

const (
	RiskCritical RiskLevel = "CRITICAL"
	RiskHigh     RiskLevel = "HIGH"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskLow      RiskLevel = "LOW"
	RiskInfo     RiskLevel = "INFO"
)

// LevelForScore maps a 0-10 risk score to its qualitative level.
func LevelForScore(score float64) RiskLevel {
	switch {
	case score >= 8:
		return RiskCritical
	case score >= 6:
		return RiskHigh
	case score >= 4:
		return RiskMedium
	case score >= 2:
		return RiskLow
	default:
		return RiskInfo
	}
}

// Finding is a single category result within an assessment.
type Finding struct {
	// Category is the threat category this finding belongs to.
	Category Category `json:"category"`

	// Confidence is the normalized matched-weight fraction in [0,1].
	Confidence float64 `json:"confidence"`

	// Evidence names the matched patterns plus a bounded content excerpt.
	Evidence []string `json:"evidence"`
}

// Assessment is the outcome of a threat scan.
type Assessment struct {
	// RequestID identifies the scanned request.
	RequestID string `json:"request_id"`

	// RiskScore is the 0-10 score of the worst finding. Categories are
	// never summed; the single worst finding dominates.
	RiskScore float64 `json:"risk_score"`

	// RiskLevel is the qualitative level for RiskScore.
	RiskLevel RiskLevel `json:"risk_level"`

	// Findings lists every category that matched, worst first.
	Findings []Finding `json:"findings"`

	// EvidenceHash is a stable SHA-256 over the request ID, excerpt,
	// findings, and timestamp for tamper-evident audit.
	EvidenceHash string `json:"evidence_hash"`

	// Timestamp is when the scan ran.
	Timestamp time.Time `json:"timestamp"`
}

// Input is the content handed to the detector for one scan.
// The snapshot is immutable after creation.
type Input struct {
	// RequestID identifies the request.
	RequestID string

	// Prompt is the inbound prompt text.
	Prompt string

	// Response is the model response, when already available.
	Response string

	// EstimatedTokens is the estimated total token count of the call.
	EstimatedTokens int

	// StormThreshold is the model's token-storm threshold. Zero disables
	// the token-storm finding.
	StormThreshold int
}
