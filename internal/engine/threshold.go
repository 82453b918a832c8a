package engine

import "github.com/the-alphabet-cartel/ash-nlp/internal/domain"

// MapVerdict turns a fused score into a discrete crisis level using the
// mode-specific threshold table. Override rules run first: any
// critical-category hit forces the maximum level regardless of score,
// recording which pattern fired and skipping the table lookup entirely.
func MapVerdict(
	fusion domain.FusionResult,
	agreementRatio float64,
	hits []domain.PatternHit,
	table domain.ThresholdTable,
) domain.CrisisVerdict {
	verdict := domain.CrisisVerdict{
		AdjustedScore:  fusion.AdjustedScore,
		AgreementRatio: agreementRatio,
	}

	// A negated critical hit still overrides: explicit method references are
	// escalated even when hedged, per safety policy.
	for _, hit := range hits {
		if hit.Category == domain.CategoryCritical {
			verdict.CrisisLevel = domain.LevelCritical
			verdict.OverrideApplied = true
			verdict.OverrideReason = hit.PatternID
			return verdict
		}
	}

	verdict.CrisisLevel = table.LevelFor(fusion.AdjustedScore)
	return verdict
}
