package domain

import "time"

// CrisisVerdict is the terminal output of one analysis call. It is never
// mutated after construction.
type CrisisVerdict struct {
	CrisisLevel     CrisisLevel `json:"crisis_level"`
	AdjustedScore   float64     `json:"adjusted_score"`
	AgreementRatio  float64     `json:"agreement_ratio"`
	OverrideApplied bool        `json:"override_applied"`
	OverrideReason  string      `json:"override_reason,omitempty"`
	NeedsReview     bool        `json:"needs_review"`
}

// AnalysisResult bundles the verdict with its full explainability payload.
// Contributing signals and dissenting models are part of the public contract,
// not debug output: human reviewers act on them.
type AnalysisResult struct {
	ID               string            `json:"id"`
	Verdict          CrisisVerdict     `json:"verdict"`
	Aggregation      AggregationResult `json:"aggregation"`
	Fusion           FusionResult      `json:"fusion"`
	PatternHits      []PatternHit      `json:"pattern_hits"`
	Degraded         bool              `json:"degraded"`
	ExcludedModels   []ModelFailure    `json:"excluded_models,omitempty"`
	Warnings         []string          `json:"warnings,omitempty"`
	ProcessingTimeMs int64             `json:"processing_time_ms"`
	AnalyzedAt       time.Time         `json:"analyzed_at"`
}
