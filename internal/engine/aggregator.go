package engine

import "github.com/the-alphabet-cartel/ash-nlp/internal/domain"

// Aggregate combines ensemble votes into a composite score under the given
// mode. Composite distributions differ per mode, which is why threshold
// tables are calibrated per mode and never shared.
func Aggregate(votes []domain.ModelVote, mode domain.AggregationMode, toleranceBand float64) domain.AggregationResult {
	result := domain.AggregationResult{Mode: mode}
	if len(votes) == 0 {
		return result
	}

	switch mode {
	case domain.ModeConsensus:
		aggregateConsensus(votes, &result)
	case domain.ModeWeighted:
		aggregateWeighted(votes, toleranceBand, &result)
	default:
		aggregateMajority(votes, &result)
	}
	return result
}

// aggregateConsensus averages scores when every model agrees on the top
// label. Without unanimity it falls back to the mean of all scores with
// agreement forced to zero, so consensus tables demand stronger magnitude
// before escalating.
func aggregateConsensus(votes []domain.ModelVote, result *domain.AggregationResult) {
	unanimous := true
	for _, v := range votes[1:] {
		if v.Label != votes[0].Label {
			unanimous = false
			break
		}
	}

	if unanimous {
		result.SelectedLabel = votes[0].Label
		result.CompositeScore = meanScore(votes)
		result.AgreementRatio = 1.0
		return
	}

	result.SelectedLabel = pluralityLabel(votes)
	result.CompositeScore = meanScore(votes)
	result.AgreementRatio = 0
	for _, v := range votes {
		if v.Label != result.SelectedLabel {
			result.DissentingModels = append(result.DissentingModels, v.ModelID)
		}
	}
}

// aggregateMajority averages the scores of the plurality label. Plurality
// ties break on the higher aggregate score sum, then lexicographically, so
// the outcome is deterministic.
func aggregateMajority(votes []domain.ModelVote, result *domain.AggregationResult) {
	selected := pluralityLabel(votes)

	var sum float64
	var agreeing int
	for _, v := range votes {
		if v.Label == selected {
			sum += v.Score
			agreeing++
		} else {
			result.DissentingModels = append(result.DissentingModels, v.ModelID)
		}
	}

	result.SelectedLabel = selected
	result.CompositeScore = sum / float64(agreeing)
	result.AgreementRatio = float64(agreeing) / float64(len(votes))
}

// aggregateWeighted computes the weight-normalized score sum over present
// votes. Missing models degrade gracefully: weights renormalize over the
// present subset. Agreement is the weighted fraction of votes that share the
// selected label and land within the tolerance band of the composite.
func aggregateWeighted(votes []domain.ModelVote, toleranceBand float64, result *domain.AggregationResult) {
	var weightSum float64
	for _, v := range votes {
		weightSum += v.Weight
	}
	if weightSum <= 0 {
		// No usable weights: fall back to equal weighting. The caller's
		// votes stay untouched; they end up verbatim in the analysis result.
		weightSum = float64(len(votes))
		equal := make([]domain.ModelVote, len(votes))
		copy(equal, votes)
		for i := range equal {
			equal[i].Weight = 1
		}
		votes = equal
	}

	var composite float64
	for _, v := range votes {
		composite += (v.Weight / weightSum) * v.Score
	}

	selected := pluralityLabel(votes)
	var agreeingWeight float64
	for _, v := range votes {
		inBand := v.Score >= composite-toleranceBand && v.Score <= composite+toleranceBand
		if v.Label == selected && inBand {
			agreeingWeight += v.Weight
		} else {
			result.DissentingModels = append(result.DissentingModels, v.ModelID)
		}
	}

	result.SelectedLabel = selected
	result.CompositeScore = composite
	result.AgreementRatio = agreeingWeight / weightSum
}

// pluralityLabel selects the label with the most votes; ties break on higher
// score sum, then lexicographic order.
func pluralityLabel(votes []domain.ModelVote) string {
	counts := make(map[string]int)
	scoreSums := make(map[string]float64)
	for _, v := range votes {
		counts[v.Label]++
		scoreSums[v.Label] += v.Score
	}

	var best string
	for label := range counts {
		if best == "" {
			best = label
			continue
		}
		switch {
		case counts[label] > counts[best]:
			best = label
		case counts[label] == counts[best] && scoreSums[label] > scoreSums[best]:
			best = label
		case counts[label] == counts[best] && scoreSums[label] == scoreSums[best] && label < best:
			best = label
		}
	}
	return best
}

func meanScore(votes []domain.ModelVote) float64 {
	var sum float64
	for _, v := range votes {
		sum += v.Score
	}
	return sum / float64(len(votes))
}
