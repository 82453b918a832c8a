package engine

import (
	"fmt"
	"sort"

	"github.com/the-alphabet-cartel/ash-nlp/internal/domain"
)

// Fuse folds pattern hits into the composite score. Hits apply in category
// priority order (critical > idiom > context > temporal > community), each
// contributing weight × confidence, clamped to [0,1] after every step so an
// early boost cannot bank headroom for a later drop. Every adjustment lands
// in the audit trail, including ones the clamp reduced to zero: the trail
// records intent next to effect. Overlapping hits of the same category all
// apply — signals are cumulative, favoring sensitivity over precision.
func Fuse(aggregation domain.AggregationResult, hits []domain.PatternHit) domain.FusionResult {
	result := domain.FusionResult{
		AdjustedScore: clamp01(aggregation.CompositeScore),
		ContributingSignals: []domain.Signal{
			{
				Source:    domain.SourceModel,
				ID:        fmt.Sprintf("ensemble:%s", aggregation.Mode),
				Delta:     clamp01(aggregation.CompositeScore),
				Requested: aggregation.CompositeScore,
			},
		},
	}

	ordered := orderForFusion(hits)
	for _, hit := range ordered {
		requested := hit.Weight * hit.Confidence
		next := clamp01(result.AdjustedScore + requested)
		applied := next - result.AdjustedScore

		result.ContributingSignals = append(result.ContributingSignals, domain.Signal{
			Source:    domain.SourcePattern,
			ID:        hit.PatternID,
			Delta:     applied,
			Requested: requested,
		})
		result.AdjustedScore = next
		result.TotalAdjustment += applied
	}
	return result
}

// orderForFusion sorts hits by category priority, keeping the matcher's
// emission order within a category. Negation markers never reach fusion; a
// zero-priority category would sort last, which is still correct.
func orderForFusion(hits []domain.PatternHit) []domain.PatternHit {
	ordered := make([]domain.PatternHit, len(hits))
	copy(ordered, hits)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Category.FusionPriority() > ordered[j].Category.FusionPriority()
	})
	return ordered
}
