// Package engine implements the ensemble scoring and pattern-fusion pipeline:
// classifier fan-out, vote aggregation, pattern matching, signal fusion,
// threshold mapping, and review gating.
package engine

import "context"

// Classifier is the external text-classification collaborator. Both methods
// may fail; implementations report failures wrapping the domain error
// taxonomy so timeouts are distinguishable from unavailability.
type Classifier interface {
	// ModelID identifies the classifier in votes and diagnostics.
	ModelID() string

	// Classify scores the text against the candidate labels, returning a
	// label-to-score mapping.
	Classify(ctx context.Context, text string, candidateLabels []string) (map[string]float64, error)

	// ClassifyHypothesis scores how strongly the text entails the given
	// natural-language hypothesis.
	ClassifyHypothesis(ctx context.Context, text, hypothesis string) (float64, error)
}
