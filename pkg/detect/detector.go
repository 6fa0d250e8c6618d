package detect

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"mercator-hq/ganymede/pkg/config"
)

// tokenStormScore is the fixed risk score assigned once estimated tokens
// exceed the model's storm threshold. It is not confidence-scaled: past
// the threshold the cost exposure is the same regardless of phrasing.
const tokenStormScore = 7.8

// Detector scans content against the category pattern tables.
//
// All patterns are compiled once at construction; Analyze performs no
// allocation-heavy setup and is safe for concurrent use. The detector
// holds no mutable state.
type Detector struct {
	categories []category
	maxExcerpt int

	// now is the clock source, overridable in tests.
	now func() time.Time
}

// NewDetector creates a detector with the built-in pattern tables.
func NewDetector(cfg config.DetectionConfig) *Detector {
	maxExcerpt := cfg.MaxExcerptLength
	if maxExcerpt <= 0 {
		maxExcerpt = 200
	}

	return &Detector{
		categories: defaultCategories(),
		maxExcerpt: maxExcerpt,
		now:        time.Now,
	}
}

// scoredFinding pairs a finding with its severity-scaled score for
// ordering.
type scoredFinding struct {
	finding Finding
	score   float64
}

// Analyze scans the input and returns an assessment. The risk score is
// the single worst category score; categories are never summed.
func (d *Detector) Analyze(in Input) *Assessment {
	content := in.Prompt
	if in.Response != "" {
		content = in.Prompt + "\n" + in.Response
	}

	now := d.now()
	excerpt := d.excerpt(content)

	var scored []scoredFinding
	for _, cat := range d.categories {
		var matched float64
		var evidence []string
		for _, p := range cat.patterns {
			if p.re.MatchString(content) {
				matched += p.weight
				evidence = append(evidence, p.name)
			}
		}
		if matched == 0 {
			continue
		}

		confidence := clamp01(matched / cat.maxWeight)
		evidence = append(evidence, excerpt)
		scored = append(scored, scoredFinding{
			finding: Finding{
				Category:   cat.name,
				Confidence: confidence,
				Evidence:   evidence,
			},
			score: confidence * cat.multiplier,
		})
	}

	if in.StormThreshold > 0 && in.EstimatedTokens > in.StormThreshold {
		scored = append(scored, scoredFinding{
			finding: Finding{
				Category:   CategoryTokenStorm,
				Confidence: 1.0,
				Evidence: []string{fmt.Sprintf(
					"estimated %d tokens exceeds storm threshold %d",
					in.EstimatedTokens, in.StormThreshold)},
			},
			score: tokenStormScore,
		})
	}

	// Worst finding first, and it sets the overall score.
	sort.Slice(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	var riskScore float64
	findings := make([]Finding, len(scored))
	for i, s := range scored {
		findings[i] = s.finding
		if s.score > riskScore {
			riskScore = s.score
		}
	}
	if riskScore > 10 {
		riskScore = 10
	}

	return &Assessment{
		RequestID:    in.RequestID,
		RiskScore:    riskScore,
		RiskLevel:    LevelForScore(riskScore),
		Findings:     findings,
		EvidenceHash: evidenceHash(in.RequestID, excerpt, findings, now),
		Timestamp:    now,
	}
}

// excerpt bounds content for evidence storage.
func (d *Detector) excerpt(content string) string {
	runes := []rune(content)
	if len(runes) <= d.maxExcerpt {
		return content
	}
	return string(runes[:d.maxExcerpt])
}

// evidenceHash computes a stable SHA-256 over the assessment's inputs so
// stored findings are tamper-evident.
func evidenceHash(requestID, excerpt string, findings []Finding, ts time.Time) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d", requestID, excerpt, ts.UnixNano())
	for _, f := range findings {
		fmt.Fprintf(h, "|%s:%.4f", f.Category, f.Confidence)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
