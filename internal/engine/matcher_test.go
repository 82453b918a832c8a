package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/the-alphabet-cartel/ash-nlp/internal/catalog"
	"github.com/the-alphabet-cartel/ash-nlp/internal/domain"
)

func mustCatalog(t *testing.T, defs ...domain.PatternDefinition) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(defs)
	require.NoError(t, err)
	return cat
}

func contextDef(id, value string, weight float64) domain.PatternDefinition {
	return domain.PatternDefinition{
		ID:       id,
		Category: domain.CategoryContext,
		Kind:     domain.MatchLiteral,
		Value:    value,
		Weight:   weight,
	}
}

func negationDef(id, value string) domain.PatternDefinition {
	return domain.PatternDefinition{
		ID:       id,
		Category: domain.CategoryNegation,
		Kind:     domain.MatchLiteral,
		Value:    value,
	}
}

func TestMatcher_EmptyTextYieldsNoHits(t *testing.T) {
	m := NewMatcher(mustCatalog(t, contextDef("ctx-1", "die", 0.6)), nil, 0, 5, 0.3, nil)

	for _, text := range []string{"", "   ", "\n\t"} {
		if hits := m.Match(context.Background(), text); len(hits) != 0 {
			t.Errorf("text %q: expected no hits, got %v", text, hits)
		}
	}
}

func TestMatcher_LiteralWordBoundary(t *testing.T) {
	m := NewMatcher(mustCatalog(t, contextDef("ctx-die", "die", 0.6)), nil, 0, 5, 0.3, nil)

	hits := m.Match(context.Background(), "I want to die")
	require.Len(t, hits, 1)
	require.Equal(t, "ctx-die", hits[0].PatternID)
	require.Equal(t, "die", hits[0].MatchedText)

	// Substring inside a longer word must not fire.
	hits = m.Match(context.Background(), "my diet is going badly")
	require.Empty(t, hits)
}

func TestMatcher_CaseAndAccentInsensitive(t *testing.T) {
	m := NewMatcher(mustCatalog(t, contextDef("ctx-1", "no way out", 0.4)), nil, 0, 5, 0.3, nil)

	hits := m.Match(context.Background(), "There is NO WAY OUT of this")
	require.Len(t, hits, 1)
}

func TestMatcher_NegationDampening(t *testing.T) {
	cat := mustCatalog(t,
		contextDef("ctx-die", "die", 0.6),
		negationDef("neg-dont", "don't"),
	)
	m := NewMatcher(cat, nil, 0, 5, 0.3, nil)

	hits := m.Match(context.Background(), "I don't want to die")
	require.Len(t, hits, 1)

	if !hits[0].Negated {
		t.Fatal("hit within the negation window must be flagged")
	}
	if math.Abs(hits[0].Weight-0.6*0.3) > scoreEpsilon {
		t.Errorf("dampened weight: got %v, want %v", hits[0].Weight, 0.6*0.3)
	}
}

func TestMatcher_NegatedScoresStrictlyBelowUnnegated(t *testing.T) {
	cat := mustCatalog(t,
		contextDef("ctx-die", "want to die", 0.6),
		negationDef("neg-dont", "don't"),
	)
	m := NewMatcher(cat, nil, 0, 5, 0.3, nil)

	negated := m.Match(context.Background(), "I don't want to die")
	plain := m.Match(context.Background(), "I want to die")
	require.Len(t, negated, 1)
	require.Len(t, plain, 1)

	if negated[0].Weight >= plain[0].Weight {
		t.Errorf("negated weight %v must be strictly below plain weight %v", negated[0].Weight, plain[0].Weight)
	}
	if negated[0].Weight == 0 {
		t.Error("negated crisis language still carries residual signal")
	}
}

func TestMatcher_NegationOutsideWindowDoesNotDampen(t *testing.T) {
	cat := mustCatalog(t,
		contextDef("ctx-die", "die", 0.6),
		negationDef("neg-dont", "don't"),
	)
	m := NewMatcher(cat, nil, 0, 2, 0.3, nil)

	// Marker sits four tokens before the hit, window is two.
	hits := m.Match(context.Background(), "I don't think anyone would die")
	require.Len(t, hits, 1)
	if hits[0].Negated {
		t.Error("marker outside the token window must not dampen")
	}
}

func TestMatcher_NegationAfterHitIgnored(t *testing.T) {
	cat := mustCatalog(t,
		contextDef("ctx-die", "die", 0.6),
		negationDef("neg-dont", "don't"),
	)
	m := NewMatcher(cat, nil, 0, 5, 0.3, nil)

	hits := m.Match(context.Background(), "die? I don't think so")
	require.Len(t, hits, 1)
	if hits[0].Negated {
		t.Error("only markers preceding the span count")
	}
}

func TestMatcher_RegexHits(t *testing.T) {
	cat := mustCatalog(t, domain.PatternDefinition{
		ID:       "rx-end",
		Category: domain.CategoryCritical,
		Kind:     domain.MatchRegex,
		Value:    "end(ing)? it all",
		Weight:   1.0,
	})
	m := NewMatcher(cat, nil, 0, 5, 0.3, nil)

	hits := m.Match(context.Background(), "thinking about ending it all tonight")
	require.Len(t, hits, 1)
	require.Equal(t, "rx-end", hits[0].PatternID)
	require.Equal(t, "ending it all", hits[0].MatchedText)
}

func TestMatcher_OverlappingHitsAllEmit(t *testing.T) {
	cat := mustCatalog(t,
		contextDef("ctx-a", "way out", 0.3),
		contextDef("ctx-b", "no way out", 0.4),
	)
	m := NewMatcher(cat, nil, 0, 5, 0.3, nil)

	hits := m.Match(context.Background(), "there is no way out")
	require.Len(t, hits, 2)
}

func TestMatcher_SemanticThreshold(t *testing.T) {
	semantic := domain.PatternDefinition{
		ID:                  "sem-game",
		Category:            domain.CategoryIdiom,
		Kind:                domain.MatchSemantic,
		Value:               "the author is talking about a video game",
		Weight:              -0.5,
		ConfidenceThreshold: 0.55,
	}

	tests := []struct {
		name    string
		score   float64
		wantHit bool
	}{
		{name: "above threshold", score: 0.8, wantHit: true},
		{name: "at threshold", score: 0.55, wantHit: true},
		{name: "below threshold", score: 0.4, wantHit: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delegate := &stubClassifier{id: "sem", hypothesis: tt.score}
			m := NewMatcher(mustCatalog(t, semantic), delegate, 0, 5, 0.3, nil)

			hits := m.Match(context.Background(), "that boss fight killed me")
			if tt.wantHit {
				require.Len(t, hits, 1)
				require.Equal(t, tt.score, hits[0].Confidence)
			} else {
				require.Empty(t, hits)
			}
		})
	}
}

func TestMatcher_SemanticFailureSkipsPatternOnly(t *testing.T) {
	cat := mustCatalog(t,
		contextDef("ctx-die", "die", 0.6),
		domain.PatternDefinition{
			ID:                  "sem-game",
			Category:            domain.CategoryIdiom,
			Kind:                domain.MatchSemantic,
			Value:               "the author is talking about a video game",
			Weight:              -0.5,
			ConfidenceThreshold: 0.55,
		},
	)
	delegate := &stubClassifier{id: "sem", hypErr: domain.ErrClassifierUnavailable}
	m := NewMatcher(cat, delegate, 0, 5, 0.3, nil)

	hits := m.Match(context.Background(), "I want to die")
	require.Len(t, hits, 1)
	require.Equal(t, "ctx-die", hits[0].PatternID)
}

func TestMatcher_SemanticCallBoundedByTimeout(t *testing.T) {
	cat := mustCatalog(t,
		contextDef("ctx-die", "die", 0.6),
		domain.PatternDefinition{
			ID:                  "sem-game",
			Category:            domain.CategoryIdiom,
			Kind:                domain.MatchSemantic,
			Value:               "the author is talking about a video game",
			Weight:              -0.5,
			ConfidenceThreshold: 0.55,
		},
	)
	// Delegate stalls far longer than the per-call deadline.
	delegate := &stubClassifier{id: "sem", hypothesis: 0.9, delay: 30 * time.Second}
	m := NewMatcher(cat, delegate, 50*time.Millisecond, 5, 0.3, nil)

	start := time.Now()
	hits := m.Match(context.Background(), "I want to die")
	elapsed := time.Since(start)

	if elapsed > 5*time.Second {
		t.Fatalf("match blocked for %v on a stalled hypothesis call", elapsed)
	}
	require.Len(t, hits, 1)
	require.Equal(t, "ctx-die", hits[0].PatternID)
}

func TestMatcher_WordBoundaryMultibyteNeighbors(t *testing.T) {
	m := NewMatcher(mustCatalog(t, contextDef("ctx-die", "die", 0.6)), nil, 0, 5, 0.3, nil)

	// A letter neighbor is a letter even when it is multibyte.
	require.Empty(t, m.Match(context.Background(), "праdieть"))
	require.Empty(t, m.Match(context.Background(), "die死"))

	// Multibyte punctuation still bounds the word.
	hits := m.Match(context.Background(), "«die»")
	require.Len(t, hits, 1)
}

func TestMatcher_NilDelegateSkipsSemantics(t *testing.T) {
	cat := mustCatalog(t, domain.PatternDefinition{
		ID:                  "sem-1",
		Category:            domain.CategoryIdiom,
		Kind:                domain.MatchSemantic,
		Value:               "hypothesis",
		Weight:              -0.2,
		ConfidenceThreshold: 0.5,
	})
	m := NewMatcher(cat, nil, 0, 5, 0.3, nil)

	require.Empty(t, m.Match(context.Background(), "anything at all"))
}
