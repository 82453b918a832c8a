package engine

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/the-alphabet-cartel/ash-nlp/internal/domain"
)

func testSettings(mode domain.AggregationMode) Settings {
	return Settings{
		Mode:                  mode,
		CandidateLabels:       []string{"crisis", "distress", "neutral"},
		NegationWindow:        5,
		NegationDampening:     0.3,
		ClassifierTimeout:     time.Second,
		ToleranceBand:         0.15,
		MediumReviewAgreement: 0.6,
	}
}

func TestBuildSnapshot_Valid(t *testing.T) {
	snap, err := BuildSnapshot(
		[]domain.PatternDefinition{
			{ID: "ctx-1", Category: domain.CategoryContext, Kind: domain.MatchLiteral, Value: "no way out", Weight: 0.4},
		},
		[]domain.ThresholdTable{majorityTable()},
		map[string]float64{"a": 0.5, "b": 0.5},
		testSettings(domain.ModeMajority),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Catalog.Size() != 1 {
		t.Errorf("catalog size: got %d", snap.Catalog.Size())
	}
	if len(snap.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", snap.Warnings)
	}
}

func TestBuildSnapshot_UnknownMode(t *testing.T) {
	_, err := BuildSnapshot(nil, []domain.ThresholdTable{majorityTable()}, nil, testSettings("plurality"))
	if !errors.Is(err, domain.ErrConfigurationInvalid) {
		t.Fatalf("expected ErrConfigurationInvalid, got %v", err)
	}
}

func TestBuildSnapshot_MissingTableForActiveMode(t *testing.T) {
	_, err := BuildSnapshot(nil, []domain.ThresholdTable{majorityTable()}, nil, testSettings(domain.ModeConsensus))
	if !errors.Is(err, domain.ErrConfigurationInvalid) {
		t.Fatalf("expected ErrConfigurationInvalid, got %v", err)
	}
}

func TestBuildSnapshot_DuplicateTable(t *testing.T) {
	_, err := BuildSnapshot(
		nil,
		[]domain.ThresholdTable{majorityTable(), majorityTable()},
		nil,
		testSettings(domain.ModeMajority),
	)
	if !errors.Is(err, domain.ErrConfigurationInvalid) {
		t.Fatalf("expected ErrConfigurationInvalid, got %v", err)
	}
}

func TestBuildSnapshot_WeightSum(t *testing.T) {
	tests := []struct {
		name        string
		weights     map[string]float64
		wantErr     bool
		wantWarning bool
	}{
		{name: "exact sum", weights: map[string]float64{"a": 0.5, "b": 0.5}},
		{name: "within tight tolerance", weights: map[string]float64{"a": 0.505, "b": 0.5}},
		{name: "within loose tolerance warns", weights: map[string]float64{"a": 0.6, "b": 0.5}, wantWarning: true},
		{name: "beyond tolerance rejected", weights: map[string]float64{"a": 0.9, "b": 0.9}, wantErr: true},
		{name: "negative weight rejected", weights: map[string]float64{"a": -0.2, "b": 1.2}, wantErr: true},
	}

	weightedTab := domain.ThresholdTable{
		Mode: domain.ModeWeighted,
		Steps: []domain.ThresholdStep{
			{Level: domain.LevelLow, MinScore: 0.32},
			{Level: domain.LevelMedium, MinScore: 0.52},
			{Level: domain.LevelHigh, MinScore: 0.70},
			{Level: domain.LevelCritical, MinScore: 0.86},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := BuildSnapshot(nil, []domain.ThresholdTable{weightedTab}, tt.weights, testSettings(domain.ModeWeighted))
			if tt.wantErr {
				if !errors.Is(err, domain.ErrConfigurationInvalid) {
					t.Fatalf("expected ErrConfigurationInvalid, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantWarning {
				if len(snap.Warnings) != 1 || !strings.Contains(snap.Warnings[0], "renormalizing") {
					t.Errorf("expected renormalization warning, got %v", snap.Warnings)
				}
			} else if len(snap.Warnings) != 0 {
				t.Errorf("unexpected warnings: %v", snap.Warnings)
			}
		})
	}
}

func TestBuildSnapshot_WeightSumIgnoredOutsideWeightedMode(t *testing.T) {
	snap, err := BuildSnapshot(
		nil,
		[]domain.ThresholdTable{majorityTable()},
		map[string]float64{"a": 0.9, "b": 0.9},
		testSettings(domain.ModeMajority),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap.Warnings) != 0 {
		t.Errorf("non-weighted modes should not validate weight sums, got %v", snap.Warnings)
	}
}
