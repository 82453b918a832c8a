package engine

import "github.com/the-alphabet-cartel/ash-nlp/internal/domain"

// NeedsReview decides whether a verdict additionally requires human staff
// review, independent of the crisis level itself. First matching rule wins.
func NeedsReview(verdict domain.CrisisVerdict, degraded bool, mediumAgreementFloor float64) (bool, string) {
	switch {
	case degraded:
		// The ensemble could not reach quorum: never let a thin vote pass
		// unexamined.
		return true, "ensemble_degraded"
	case verdict.CrisisLevel == domain.LevelHigh || verdict.CrisisLevel == domain.LevelCritical:
		// Safety policy: high and critical always get human eyes, regardless
		// of confidence.
		return true, "severity_policy"
	case verdict.CrisisLevel == domain.LevelMedium && verdict.AgreementRatio < mediumAgreementFloor:
		return true, "low_agreement"
	default:
		return false, ""
	}
}
