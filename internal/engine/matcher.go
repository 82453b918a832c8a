package engine

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/the-alphabet-cartel/ash-nlp/internal/catalog"
	"github.com/the-alphabet-cartel/ash-nlp/internal/domain"
	"github.com/the-alphabet-cartel/ash-nlp/internal/logger"
)

// Matcher scans message text against a pattern catalog. Literal and regex
// patterns are matched locally; semantic patterns delegate to a classifier
// hypothesis call. Overlapping hits all emit — they are independent signal
// sources, not alternatives.
type Matcher struct {
	cat       *catalog.Catalog
	delegate  Classifier    // hypothesis scorer for semantic patterns, may be nil
	timeout   time.Duration // per-hypothesis-call deadline, 0 disables
	window    int           // negation lookbehind, in tokens
	dampening float64       // weight multiplier for negated hits
	log       logger.Logger
}

// NewMatcher creates a matcher over the given catalog snapshot. The timeout
// bounds each semantic hypothesis call, same as ensemble vote invocations.
func NewMatcher(cat *catalog.Catalog, delegate Classifier, timeout time.Duration, window int, dampening float64, log logger.Logger) *Matcher {
	if log == nil {
		log = logger.Nop()
	}
	return &Matcher{cat: cat, delegate: delegate, timeout: timeout, window: window, dampening: dampening, log: log}
}

// Match produces every pattern hit in the text. Empty text yields an empty
// hit list. A classifier failure on one semantic pattern skips that pattern
// only; matching degrades partially, never totally.
func (m *Matcher) Match(ctx context.Context, text string) []domain.PatternHit {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	normalized := catalog.NormalizeText(text)
	tokens := tokenStarts(normalized)
	negationSpans := m.negationSpans(normalized)

	var hits []domain.PatternHit
	hits = append(hits, m.matchLiterals(normalized, tokens, negationSpans)...)
	hits = append(hits, m.matchRegexes(normalized, tokens, negationSpans)...)
	hits = append(hits, m.matchSemantics(ctx, text)...)
	return hits
}

func (m *Matcher) matchLiterals(normalized string, tokens []int, negations []int) []domain.PatternHit {
	var hits []domain.PatternHit
	for _, def := range m.cat.LiteralCandidates(normalized) {
		needle := m.cat.LiteralValue(def)
		for _, start := range wordOccurrences(normalized, needle) {
			hits = append(hits, m.emit(def, normalized[start:start+len(needle)], 1.0, start, tokens, negations))
		}
	}
	return hits
}

func (m *Matcher) matchRegexes(normalized string, tokens []int, negations []int) []domain.PatternHit {
	var hits []domain.PatternHit
	for _, cr := range m.cat.Regexes() {
		for _, span := range cr.Re.FindAllStringIndex(normalized, -1) {
			hits = append(hits, m.emit(cr.Def, normalized[span[0]:span[1]], 1.0, span[0], tokens, negations))
		}
	}
	return hits
}

// matchSemantics fans out one hypothesis call per semantic pattern. A hit is
// emitted only when the entailment score clears the pattern's threshold.
// Semantic hits carry no span, so negation dampening does not apply.
func (m *Matcher) matchSemantics(ctx context.Context, text string) []domain.PatternHit {
	semantics := m.cat.Semantics()
	if len(semantics) == 0 || m.delegate == nil {
		return nil
	}

	results := make([]*domain.PatternHit, len(semantics))
	var wg sync.WaitGroup
	for i, def := range semantics {
		wg.Add(1)
		go func(idx int, d domain.PatternDefinition) {
			defer wg.Done()
			callCtx := ctx
			if m.timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, m.timeout)
				defer cancel()
			}
			score, err := m.delegate.ClassifyHypothesis(callCtx, text, d.Value)
			if err != nil {
				m.log.Warn("semantic pattern skipped",
					logger.String("pattern_id", d.ID),
					logger.Error(err))
				return
			}
			score = clamp01(score)
			if score < d.ConfidenceThreshold {
				return
			}
			results[idx] = &domain.PatternHit{
				PatternID:  d.ID,
				Category:   d.Category,
				Weight:     d.Weight,
				LevelHint:  d.LevelHint,
				Confidence: score,
			}
		}(i, def)
	}
	wg.Wait()

	var hits []domain.PatternHit
	for _, h := range results {
		if h != nil {
			hits = append(hits, *h)
		}
	}
	return hits
}

// emit builds a hit, attenuating its weight when a negation marker sits
// within the token window before the matched span. Negated crisis language
// still carries residual signal, so the hit is dampened, never dropped.
func (m *Matcher) emit(def domain.PatternDefinition, matched string, confidence float64, start int, tokens []int, negations []int) domain.PatternHit {
	hit := domain.PatternHit{
		PatternID:   def.ID,
		Category:    def.Category,
		MatchedText: matched,
		Weight:      def.Weight,
		LevelHint:   def.LevelHint,
		Confidence:  confidence,
	}
	if m.isNegated(start, tokens, negations) {
		hit.Weight *= m.dampening
		hit.Negated = true
	}
	return hit
}

// negationSpans returns the start offset of every negation marker occurrence.
func (m *Matcher) negationSpans(normalized string) []int {
	var spans []int
	for _, marker := range m.cat.NegationMarkers() {
		spans = append(spans, wordOccurrences(normalized, marker)...)
	}
	return spans
}

// isNegated reports whether any negation marker starts within the configured
// token window before the hit's start offset.
func (m *Matcher) isNegated(hitStart int, tokens []int, negations []int) bool {
	if len(negations) == 0 {
		return false
	}
	hitTok := tokenOrdinal(tokens, hitStart)
	for _, negStart := range negations {
		if negStart >= hitStart {
			continue
		}
		dist := hitTok - tokenOrdinal(tokens, negStart)
		if dist >= 1 && dist <= m.window {
			return true
		}
	}
	return false
}

// tokenStarts returns the byte offset of each word token in s.
func tokenStarts(s string) []int {
	var starts []int
	inToken := false
	for i, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			if !inToken {
				starts = append(starts, i)
				inToken = true
			}
		} else {
			inToken = false
		}
	}
	return starts
}

// tokenOrdinal returns the index of the token containing or nearest before
// the byte position.
func tokenOrdinal(tokens []int, pos int) int {
	ord := 0
	for i, start := range tokens {
		if start > pos {
			break
		}
		ord = i
	}
	return ord
}

// wordOccurrences finds every occurrence of needle in haystack that begins
// and ends on a word boundary, so "die" never fires inside "diet".
func wordOccurrences(haystack, needle string) []int {
	if needle == "" {
		return nil
	}
	var starts []int
	offset := 0
	for {
		idx := strings.Index(haystack[offset:], needle)
		if idx < 0 {
			return starts
		}
		start := offset + idx
		end := start + len(needle)
		if boundaryBefore(haystack, start) && boundaryAfter(haystack, end) {
			starts = append(starts, start)
		}
		offset = start + 1
	}
}

func boundaryBefore(s string, pos int) bool {
	if pos == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:pos])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func boundaryAfter(s string, pos int) bool {
	if pos >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[pos:])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
