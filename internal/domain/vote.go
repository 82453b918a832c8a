package domain

import (
	"fmt"
	"sort"
)

// AggregationMode selects how ensemble votes are combined into one score.
type AggregationMode string

const (
	ModeConsensus AggregationMode = "consensus"
	ModeMajority  AggregationMode = "majority"
	ModeWeighted  AggregationMode = "weighted"
)

// Valid reports whether m is a known aggregation mode.
func (m AggregationMode) Valid() bool {
	switch m {
	case ModeConsensus, ModeMajority, ModeWeighted:
		return true
	}
	return false
}

// ModelVote is one ensemble member's normalized output for a message.
type ModelVote struct {
	ModelID string  `json:"model_id"`
	Label   string  `json:"label"`
	Score   float64 `json:"score"`
	Weight  float64 `json:"weight"`
}

// ModelFailure records an ensemble member excluded from a vote.
type ModelFailure struct {
	ModelID string `json:"model_id"`
	Reason  string `json:"reason"`
}

// AggregationResult is the outcome of combining ensemble votes.
type AggregationResult struct {
	CompositeScore   float64         `json:"composite_score"`
	AgreementRatio   float64         `json:"agreement_ratio"`
	Mode             AggregationMode `json:"mode"`
	SelectedLabel    string          `json:"selected_label"`
	DissentingModels []string        `json:"dissenting_models"`
}

// SignalSource identifies where a fusion contribution came from.
type SignalSource string

const (
	SourceModel   SignalSource = "model"
	SourcePattern SignalSource = "pattern"
)

// Signal is one entry in the fusion audit trail. Delta is the adjustment that
// actually landed after clamping; Requested is the adjustment the signal asked
// for, so the trail shows intent next to effect.
type Signal struct {
	Source    SignalSource `json:"source"`
	ID        string       `json:"id"`
	Delta     float64      `json:"delta"`
	Requested float64      `json:"requested"`
}

// FusionResult carries the fused score and the ordered audit trail of every
// adjustment applied to reach it.
type FusionResult struct {
	AdjustedScore       float64  `json:"adjusted_score"`
	ContributingSignals []Signal `json:"contributing_signals"`
	TotalAdjustment     float64  `json:"total_adjustment"`
}

// ThresholdStep maps a minimum score to a crisis level within one table.
type ThresholdStep struct {
	Level    CrisisLevel `json:"level"     yaml:"level"`
	MinScore float64     `json:"min_score" yaml:"min_score"`
}

// ThresholdTable is the mode-specific score-to-level calibration. Steps must
// be strictly increasing in min_score as severity increases.
type ThresholdTable struct {
	Mode  AggregationMode `json:"mode"  yaml:"mode"`
	Steps []ThresholdStep `json:"steps" yaml:"steps"`
}

// Validate enforces the monotonicity invariant at load time. It returns an
// error wrapping ErrConfigurationInvalid on any violation; a table failing
// validation must never replace an active snapshot.
func (t ThresholdTable) Validate() error {
	if !t.Mode.Valid() {
		return fmt.Errorf("%w: threshold table: unknown mode %q", ErrConfigurationInvalid, t.Mode)
	}
	if len(t.Steps) == 0 {
		return fmt.Errorf("%w: threshold table %s: no steps", ErrConfigurationInvalid, t.Mode)
	}
	steps := make([]ThresholdStep, len(t.Steps))
	copy(steps, t.Steps)
	sort.Slice(steps, func(i, j int) bool {
		return steps[i].Level.Severity() < steps[j].Level.Severity()
	})
	for i, step := range steps {
		if !step.Level.Valid() {
			return fmt.Errorf("%w: threshold table %s: unknown level %q", ErrConfigurationInvalid, t.Mode, step.Level)
		}
		if step.MinScore < 0 || step.MinScore > 1 {
			return fmt.Errorf("%w: threshold table %s: min_score %v outside [0,1]", ErrConfigurationInvalid, t.Mode, step.MinScore)
		}
		if i > 0 {
			prev := steps[i-1]
			if step.Level.Severity() == prev.Level.Severity() {
				return fmt.Errorf("%w: threshold table %s: duplicate level %q", ErrConfigurationInvalid, t.Mode, step.Level)
			}
			if step.MinScore <= prev.MinScore {
				return fmt.Errorf("%w: threshold table %s: min_score for %q (%v) must exceed %q (%v)",
					ErrConfigurationInvalid, t.Mode, step.Level, step.MinScore, prev.Level, prev.MinScore)
			}
		}
	}
	return nil
}

// LevelFor returns the most severe level whose min_score is at or below the
// given score, defaulting to none when no step qualifies.
func (t ThresholdTable) LevelFor(score float64) CrisisLevel {
	level := LevelNone
	best := -1
	for _, step := range t.Steps {
		if step.MinScore <= score && step.Level.Severity() > best {
			best = step.Level.Severity()
			level = step.Level
		}
	}
	return level
}
