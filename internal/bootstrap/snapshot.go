package bootstrap

import (
	"github.com/the-alphabet-cartel/ash-nlp/internal/config"
	"github.com/the-alphabet-cartel/ash-nlp/internal/engine"
)

// SnapshotFromConfig validates the configured patterns, threshold tables,
// and model weights into an engine snapshot. Tables missing from the config
// fall back to the built-in defaults for their mode.
func SnapshotFromConfig(cfg *config.Config) (*engine.Snapshot, error) {
	tables := cfg.Thresholds
	if len(tables) == 0 {
		tables = config.DefaultThresholds()
	}

	weights := make(map[string]float64, len(cfg.Models))
	for _, m := range cfg.Models {
		weights[m.ID] = m.Weight
	}

	settings := engine.Settings{
		Mode:                  cfg.Engine.Mode,
		CandidateLabels:       cfg.Engine.CandidateLabels,
		NegationWindow:        cfg.Engine.NegationWindow,
		NegationDampening:     cfg.Engine.NegationDampening,
		MinQuorum:             cfg.Engine.MinQuorum,
		ClassifierTimeout:     cfg.Engine.ClassifierTimeout.Std(),
		ToleranceBand:         cfg.Engine.ToleranceBand,
		MediumReviewAgreement: cfg.Engine.MediumReviewAgreement,
		SemanticModel:         cfg.Engine.SemanticModel,
	}

	return engine.BuildSnapshot(cfg.Patterns, tables, weights, settings)
}
