package engine

import (
	"fmt"
	"time"

	"github.com/the-alphabet-cartel/ash-nlp/internal/catalog"
	"github.com/the-alphabet-cartel/ash-nlp/internal/domain"
)

// Weight-sum handling in weighted mode: within tight tolerance the sum is
// accepted as-is, within loose tolerance it is renormalized with a recorded
// diagnostic, beyond that the load is rejected.
const (
	weightSumTightTolerance = 0.01
	weightSumLooseTolerance = 0.25
)

// Settings are the tunables bound into a snapshot. They travel with the
// snapshot so concurrent analyses under different configurations stay safe.
type Settings struct {
	Mode                  domain.AggregationMode
	CandidateLabels       []string
	NegationWindow        int
	NegationDampening     float64
	MinQuorum             int // 0 means majority of configured models
	ClassifierTimeout     time.Duration
	ToleranceBand         float64
	MediumReviewAgreement float64
	SemanticModel         string
}

// Snapshot is one immutable generation of engine configuration: the pattern
// catalog, the per-mode threshold tables, and the scoring settings. In-flight
// analyses hold the snapshot they started with; reloads swap the pointer.
type Snapshot struct {
	Catalog  *catalog.Catalog
	Tables   map[domain.AggregationMode]domain.ThresholdTable
	Settings Settings
	Warnings []string // load-time diagnostics, echoed into analysis results
	LoadedAt time.Time
}

// BuildSnapshot validates pattern definitions, threshold tables, and model
// weights into an immutable snapshot. Any error wraps
// domain.ErrConfigurationInvalid and must leave the previous snapshot active.
func BuildSnapshot(
	defs []domain.PatternDefinition,
	tables []domain.ThresholdTable,
	modelWeights map[string]float64,
	settings Settings,
) (*Snapshot, error) {
	if !settings.Mode.Valid() {
		return nil, fmt.Errorf("%w: unknown aggregation mode %q", domain.ErrConfigurationInvalid, settings.Mode)
	}

	cat, err := catalog.New(defs)
	if err != nil {
		return nil, err
	}

	byMode := make(map[domain.AggregationMode]domain.ThresholdTable, len(tables))
	for _, table := range tables {
		if err := table.Validate(); err != nil {
			return nil, err
		}
		if _, dup := byMode[table.Mode]; dup {
			return nil, fmt.Errorf("%w: duplicate threshold table for mode %q", domain.ErrConfigurationInvalid, table.Mode)
		}
		byMode[table.Mode] = table
	}
	if _, ok := byMode[settings.Mode]; !ok {
		return nil, fmt.Errorf("%w: no threshold table for mode %q", domain.ErrConfigurationInvalid, settings.Mode)
	}

	snap := &Snapshot{
		Catalog:  cat,
		Tables:   byMode,
		Settings: settings,
		LoadedAt: time.Now(),
	}

	if settings.Mode == domain.ModeWeighted {
		warning, err := checkWeightSum(modelWeights)
		if err != nil {
			return nil, err
		}
		if warning != "" {
			snap.Warnings = append(snap.Warnings, warning)
		}
	}
	return snap, nil
}

// checkWeightSum validates that model weights sum close enough to 1.0.
// Divergence inside the loose tolerance is a diagnostic, not an error: the
// aggregator renormalizes over present votes at call time anyway.
func checkWeightSum(weights map[string]float64) (string, error) {
	if len(weights) == 0 {
		return "", nil
	}
	var sum float64
	for id, w := range weights {
		if w < 0 {
			return "", fmt.Errorf("%w: model %s has negative weight %v", domain.ErrConfigurationInvalid, id, w)
		}
		sum += w
	}
	diff := sum - 1.0
	if diff < 0 {
		diff = -diff
	}
	switch {
	case diff <= weightSumTightTolerance:
		return "", nil
	case diff <= weightSumLooseTolerance:
		return fmt.Sprintf("model weights sum to %.3f, renormalizing at aggregation time", sum), nil
	default:
		return "", fmt.Errorf("%w: model weights sum to %.3f, outside tolerance", domain.ErrConfigurationInvalid, sum)
	}
}
