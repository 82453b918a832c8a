package engine

import (
	"math"
	"testing"

	"github.com/the-alphabet-cartel/ash-nlp/internal/domain"
)

func hit(id string, category domain.PatternCategory, weight, confidence float64) domain.PatternHit {
	return domain.PatternHit{PatternID: id, Category: category, Weight: weight, Confidence: confidence}
}

func aggregation(composite float64) domain.AggregationResult {
	return domain.AggregationResult{CompositeScore: composite, Mode: domain.ModeMajority}
}

func TestFuse_NoHits(t *testing.T) {
	result := Fuse(aggregation(0.6), nil)

	if result.AdjustedScore != 0.6 {
		t.Errorf("adjusted: got %v, want 0.6", result.AdjustedScore)
	}
	if result.TotalAdjustment != 0 {
		t.Errorf("total adjustment: got %v, want 0", result.TotalAdjustment)
	}
	// The base ensemble signal is always first in the trail.
	if len(result.ContributingSignals) != 1 || result.ContributingSignals[0].Source != domain.SourceModel {
		t.Fatalf("trail: got %+v", result.ContributingSignals)
	}
	if result.ContributingSignals[0].ID != "ensemble:majority" {
		t.Errorf("base signal id: got %s", result.ContributingSignals[0].ID)
	}
}

func TestFuse_AdditiveContribution(t *testing.T) {
	hits := []domain.PatternHit{
		hit("ctx-1", domain.CategoryContext, 0.4, 1.0),
		hit("temporal-1", domain.CategoryTemporal, 0.15, 1.0),
	}
	result := Fuse(aggregation(0.3), hits)

	want := 0.3 + 0.4 + 0.15
	if math.Abs(result.AdjustedScore-want) > scoreEpsilon {
		t.Errorf("adjusted: got %v, want %v", result.AdjustedScore, want)
	}
	if math.Abs(result.TotalAdjustment-0.55) > scoreEpsilon {
		t.Errorf("total adjustment: got %v, want 0.55", result.TotalAdjustment)
	}
}

func TestFuse_CategoryPriorityOrder(t *testing.T) {
	hits := []domain.PatternHit{
		hit("community-1", domain.CategoryCommunity, 0.1, 1.0),
		hit("crit-1", domain.CategoryCritical, 1.0, 1.0),
		hit("idiom-1", domain.CategoryIdiom, -0.5, 1.0),
		hit("ctx-1", domain.CategoryContext, 0.3, 1.0),
	}
	result := Fuse(aggregation(0.2), hits)

	trail := result.ContributingSignals
	wantOrder := []string{"ensemble:majority", "crit-1", "idiom-1", "ctx-1", "community-1"}
	if len(trail) != len(wantOrder) {
		t.Fatalf("trail length: got %d, want %d", len(trail), len(wantOrder))
	}
	for i, id := range wantOrder {
		if trail[i].ID != id {
			t.Errorf("trail[%d]: got %s, want %s", i, trail[i].ID, id)
		}
	}
}

func TestFuse_IncrementalClampNoBankedHeadroom(t *testing.T) {
	// The critical boost would land at 1.2 without clamping. The clamp must
	// apply immediately so the following drop starts from 1.0, not 1.2.
	hits := []domain.PatternHit{
		hit("crit-1", domain.CategoryCritical, 1.0, 1.0),
		hit("idiom-1", domain.CategoryIdiom, -0.5, 1.0),
	}
	result := Fuse(aggregation(0.2), hits)

	if math.Abs(result.AdjustedScore-0.5) > scoreEpsilon {
		t.Errorf("adjusted: got %v, want 0.5", result.AdjustedScore)
	}

	boost := result.ContributingSignals[1]
	if math.Abs(boost.Requested-1.0) > scoreEpsilon {
		t.Errorf("boost requested: got %v, want 1.0", boost.Requested)
	}
	if math.Abs(boost.Delta-0.8) > scoreEpsilon {
		t.Errorf("boost applied: got %v, want 0.8 (clamped)", boost.Delta)
	}
}

func TestFuse_ClampedToZeroStillRecorded(t *testing.T) {
	hits := []domain.PatternHit{
		hit("idiom-1", domain.CategoryIdiom, -0.9, 1.0),
		hit("community-1", domain.CategoryCommunity, -0.2, 1.0),
	}
	result := Fuse(aggregation(0.5), hits)

	if result.AdjustedScore != 0 {
		t.Errorf("adjusted: got %v, want 0", result.AdjustedScore)
	}
	// The second drop had nothing left to remove but must still appear.
	last := result.ContributingSignals[len(result.ContributingSignals)-1]
	if last.ID != "community-1" {
		t.Fatalf("last signal: got %s", last.ID)
	}
	if last.Delta != 0 {
		t.Errorf("clamped signal delta: got %v, want 0", last.Delta)
	}
	if math.Abs(last.Requested+0.2) > scoreEpsilon {
		t.Errorf("clamped signal requested: got %v, want -0.2", last.Requested)
	}
}

func TestFuse_OverlappingHitsBothApply(t *testing.T) {
	hits := []domain.PatternHit{
		hit("ctx-1", domain.CategoryContext, 0.2, 1.0),
		hit("ctx-2", domain.CategoryContext, 0.2, 1.0),
	}
	result := Fuse(aggregation(0.1), hits)

	if math.Abs(result.AdjustedScore-0.5) > scoreEpsilon {
		t.Errorf("cumulative hits: got %v, want 0.5", result.AdjustedScore)
	}
}

func TestFuse_Deterministic(t *testing.T) {
	hits := []domain.PatternHit{
		hit("crit-1", domain.CategoryCritical, 0.9, 0.8),
		hit("ctx-1", domain.CategoryContext, 0.3, 0.5),
	}
	first := Fuse(aggregation(0.42), hits)
	second := Fuse(aggregation(0.42), hits)

	if first.AdjustedScore != second.AdjustedScore {
		t.Errorf("same inputs must fuse identically: %v vs %v", first.AdjustedScore, second.AdjustedScore)
	}
	if len(first.ContributingSignals) != len(second.ContributingSignals) {
		t.Errorf("trail lengths differ: %d vs %d", len(first.ContributingSignals), len(second.ContributingSignals))
	}
}
