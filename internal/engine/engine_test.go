package engine

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/the-alphabet-cartel/ash-nlp/internal/domain"
)

func mustSnapshot(t *testing.T, defs []domain.PatternDefinition, settings Settings) *Snapshot {
	t.Helper()
	snap, err := BuildSnapshot(defs, []domain.ThresholdTable{majorityTable()}, nil, settings)
	require.NoError(t, err)
	return snap
}

func TestEngine_Analyze_NoSnapshot(t *testing.T) {
	eng := New(newTestEnsemble(), nil, nil)

	_, err := eng.Analyze(context.Background(), "hello")
	if !errors.Is(err, domain.ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}
}

func TestEngine_Analyze_MajorityVerdict(t *testing.T) {
	ens := newTestEnsemble(
		Member{Classifier: &stubClassifier{id: "a", scores: map[string]float64{"crisis": 0.75, "neutral": 0.25}}, Weight: 0.4},
		Member{Classifier: &stubClassifier{id: "b", scores: map[string]float64{"crisis": 0.60, "neutral": 0.40}}, Weight: 0.3},
		Member{Classifier: &stubClassifier{id: "c", scores: map[string]float64{"neutral": 0.70, "crisis": 0.30}}, Weight: 0.3},
	)
	eng := New(ens, nil, nil)
	eng.Reload(mustSnapshot(t, nil, testSettings(domain.ModeMajority)))

	result, err := eng.Analyze(context.Background(), "feeling pretty rough lately")
	require.NoError(t, err)

	// Plurality is crisis (0.75, 0.60); composite is their mean.
	if math.Abs(result.Aggregation.CompositeScore-0.675) > scoreEpsilon {
		t.Errorf("composite: got %v, want 0.675", result.Aggregation.CompositeScore)
	}
	if result.Verdict.CrisisLevel != domain.LevelMedium {
		t.Errorf("level: got %s, want medium", result.Verdict.CrisisLevel)
	}
	if result.Verdict.NeedsReview {
		t.Error("2/3 agreement at medium clears the review floor")
	}
	if result.Degraded {
		t.Error("full participation is not degraded")
	}
	if result.ID == "" {
		t.Error("analysis id must be set")
	}
}

func TestEngine_Analyze_CriticalPatternOverride(t *testing.T) {
	ens := newTestEnsemble(
		Member{Classifier: &stubClassifier{id: "a", scores: map[string]float64{"neutral": 0.9, "crisis": 0.1}}, Weight: 1},
	)
	defs := []domain.PatternDefinition{
		{ID: "crit-1", Category: domain.CategoryCritical, Kind: domain.MatchLiteral, Value: "kill myself", Weight: 1.0, LevelHint: domain.LevelCritical},
	}
	eng := New(ens, nil, nil)
	eng.Reload(mustSnapshot(t, defs, testSettings(domain.ModeMajority)))

	result, err := eng.Analyze(context.Background(), "I am going to kill myself")
	require.NoError(t, err)

	if result.Verdict.CrisisLevel != domain.LevelCritical {
		t.Fatalf("level: got %s, want critical", result.Verdict.CrisisLevel)
	}
	if !result.Verdict.OverrideApplied || result.Verdict.OverrideReason != "crit-1" {
		t.Errorf("override: %+v", result.Verdict)
	}
	if !result.Verdict.NeedsReview {
		t.Error("critical verdicts always need review")
	}
}

func TestEngine_Analyze_DegradedStillReturnsVerdict(t *testing.T) {
	ens := newTestEnsemble(
		Member{Classifier: &stubClassifier{id: "a", scores: map[string]float64{"crisis": 0.5, "neutral": 0.4}}, Weight: 0.5},
		Member{Classifier: &stubClassifier{id: "b", err: domain.ErrClassifierUnavailable}, Weight: 0.25},
		Member{Classifier: &stubClassifier{id: "c", err: domain.ErrClassifierUnavailable}, Weight: 0.25},
	)
	eng := New(ens, nil, nil)
	eng.Reload(mustSnapshot(t, nil, testSettings(domain.ModeMajority)))

	result, err := eng.Analyze(context.Background(), "having a hard time")
	require.NoError(t, err)

	if !result.Degraded {
		t.Fatal("1 of 3 votes is below quorum")
	}
	if !result.Verdict.NeedsReview {
		t.Error("degraded analyses are flagged for review, never dropped")
	}
	if len(result.ExcludedModels) != 2 {
		t.Errorf("excluded: got %v", result.ExcludedModels)
	}
}

func TestEngine_Analyze_NegationLowersContribution(t *testing.T) {
	ens := newTestEnsemble(
		Member{Classifier: &stubClassifier{id: "a", scores: map[string]float64{"distress": 0.4, "neutral": 0.3}}, Weight: 1},
	)
	defs := []domain.PatternDefinition{
		{ID: "ctx-die", Category: domain.CategoryContext, Kind: domain.MatchLiteral, Value: "want to die", Weight: 0.4, LevelHint: domain.LevelHigh},
		{ID: "neg-dont", Category: domain.CategoryNegation, Kind: domain.MatchLiteral, Value: "don't"},
	}
	eng := New(ens, nil, nil)
	eng.Reload(mustSnapshot(t, defs, testSettings(domain.ModeMajority)))

	plain, err := eng.Analyze(context.Background(), "I want to die")
	require.NoError(t, err)
	negated, err := eng.Analyze(context.Background(), "I don't want to die")
	require.NoError(t, err)

	if negated.Verdict.AdjustedScore >= plain.Verdict.AdjustedScore {
		t.Errorf("negated %v must score strictly below plain %v",
			negated.Verdict.AdjustedScore, plain.Verdict.AdjustedScore)
	}
	if negated.Verdict.AdjustedScore <= negated.Aggregation.CompositeScore {
		t.Error("negated hit still adds residual signal above the bare composite")
	}
}

func TestEngine_Analyze_Idempotent(t *testing.T) {
	ens := newTestEnsemble(
		Member{Classifier: &stubClassifier{id: "a", scores: map[string]float64{"crisis": 0.66, "neutral": 0.2}}, Weight: 1},
	)
	defs := []domain.PatternDefinition{
		{ID: "temporal-1", Category: domain.CategoryTemporal, Kind: domain.MatchLiteral, Value: "tonight", Weight: 0.15},
	}
	eng := New(ens, nil, nil)
	eng.Reload(mustSnapshot(t, defs, testSettings(domain.ModeMajority)))

	first, err := eng.Analyze(context.Background(), "it has to be tonight")
	require.NoError(t, err)
	second, err := eng.Analyze(context.Background(), "it has to be tonight")
	require.NoError(t, err)

	if first.Verdict.CrisisLevel != second.Verdict.CrisisLevel ||
		first.Verdict.AdjustedScore != second.Verdict.AdjustedScore {
		t.Errorf("same input must produce the same verdict: %+v vs %+v", first.Verdict, second.Verdict)
	}
}

func TestEngine_Reload_SwapsAtomically(t *testing.T) {
	ens := newTestEnsemble(
		Member{Classifier: &stubClassifier{id: "a", scores: map[string]float64{"neutral": 0.3, "crisis": 0.1}}, Weight: 1},
	)
	eng := New(ens, nil, nil)
	eng.Reload(mustSnapshot(t, nil, testSettings(domain.ModeMajority)))

	before, err := eng.Analyze(context.Background(), "gonna kill myself")
	require.NoError(t, err)
	require.Equal(t, domain.LevelNone, before.Verdict.CrisisLevel)

	defs := []domain.PatternDefinition{
		{ID: "crit-1", Category: domain.CategoryCritical, Kind: domain.MatchLiteral, Value: "kill myself", Weight: 1.0},
	}
	eng.Reload(mustSnapshot(t, defs, testSettings(domain.ModeMajority)))

	after, err := eng.Analyze(context.Background(), "gonna kill myself")
	require.NoError(t, err)
	require.Equal(t, domain.LevelCritical, after.Verdict.CrisisLevel)
}

func TestEngine_SnapshotAccessor(t *testing.T) {
	eng := New(newTestEnsemble(), nil, nil)
	if eng.Snapshot() != nil {
		t.Fatal("snapshot must be nil before the first reload")
	}
	snap := mustSnapshot(t, nil, testSettings(domain.ModeMajority))
	eng.Reload(snap)
	if eng.Snapshot() != snap {
		t.Error("accessor must return the installed snapshot")
	}
}
