// Package catalog holds the validated, immutable pattern catalog. Literal
// patterns are indexed with an Aho-Corasick automaton so a single pass over
// the text surfaces every candidate; regex and semantic definitions are kept
// in compiled/typed form. A catalog is never mutated after construction —
// reloads build a fresh catalog and swap it in wholesale.
package catalog

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	ahocorasick "github.com/cloudflare/ahocorasick"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/the-alphabet-cartel/ash-nlp/internal/domain"
)

// CompiledRegex pairs a regex definition with its compiled pattern.
type CompiledRegex struct {
	Def domain.PatternDefinition
	Re  *regexp.Regexp
}

// Catalog is the read-only pattern snapshot used by the matcher.
type Catalog struct {
	defs []domain.PatternDefinition

	literalDefs   map[string][]domain.PatternDefinition // normalized value → definitions
	literalValues []string                              // unique values, automaton input order
	matcher       *ahocorasick.Matcher

	regexes   []CompiledRegex
	semantics []domain.PatternDefinition
	negations []string // normalized negation markers
}

// New validates all definitions and builds the literal automaton. Any
// structural problem wraps domain.ErrConfigurationInvalid so a reload can be
// rejected without disturbing the active snapshot.
func New(defs []domain.PatternDefinition) (*Catalog, error) {
	c := &Catalog{
		defs:        make([]domain.PatternDefinition, len(defs)),
		literalDefs: make(map[string][]domain.PatternDefinition),
	}
	copy(c.defs, defs)

	seen := make(map[string]bool, len(defs))
	for _, def := range c.defs {
		if err := def.Validate(); err != nil {
			return nil, err
		}
		if seen[def.ID] {
			return nil, fmt.Errorf("%w: duplicate pattern id %q", domain.ErrConfigurationInvalid, def.ID)
		}
		seen[def.ID] = true

		switch {
		case def.Category == domain.CategoryNegation:
			// Negation definitions are markers consumed by the dampening
			// window, not signals of their own.
			if def.Kind != domain.MatchLiteral {
				return nil, fmt.Errorf("%w: negation pattern %s must be literal", domain.ErrConfigurationInvalid, def.ID)
			}
			c.negations = append(c.negations, NormalizeText(def.Value))

		case def.Kind == domain.MatchLiteral:
			// Several definitions may share one phrase (say, a context def
			// and a critical def); each is an independent signal source, so
			// the automaton indexes the value once and fans out to all of
			// them on a hit.
			value := NormalizeText(def.Value)
			if _, dup := c.literalDefs[value]; !dup {
				c.literalValues = append(c.literalValues, value)
			}
			c.literalDefs[value] = append(c.literalDefs[value], def)

		case def.Kind == domain.MatchRegex:
			re, err := regexp.Compile("(?i)" + def.Value)
			if err != nil {
				return nil, fmt.Errorf("%w: pattern %s: %v", domain.ErrConfigurationInvalid, def.ID, err)
			}
			c.regexes = append(c.regexes, CompiledRegex{Def: def, Re: re})

		case def.Kind == domain.MatchSemantic:
			c.semantics = append(c.semantics, def)
		}
	}

	if len(c.literalValues) > 0 {
		c.matcher = ahocorasick.NewStringMatcher(c.literalValues)
	}
	return c, nil
}

// LiteralCandidates returns every literal definition whose normalized value
// occurs anywhere in the normalized text, found in one automaton pass.
// Definitions sharing a value all come back. The catalog is shared by every
// concurrent analysis, so this must use MatchThreadSafe: plain Match mutates
// per-node counters inside the automaton.
func (c *Catalog) LiteralCandidates(normalized string) []domain.PatternDefinition {
	if c.matcher == nil || normalized == "" {
		return nil
	}
	hits := c.matcher.MatchThreadSafe([]byte(normalized))
	candidates := make([]domain.PatternDefinition, 0, len(hits))
	for _, idx := range hits {
		if idx < len(c.literalValues) {
			candidates = append(candidates, c.literalDefs[c.literalValues[idx]]...)
		}
	}
	return candidates
}

// LiteralValue returns the normalized needle for a literal definition id.
func (c *Catalog) LiteralValue(def domain.PatternDefinition) string {
	return NormalizeText(def.Value)
}

// Regexes returns the compiled regex definitions.
func (c *Catalog) Regexes() []CompiledRegex { return c.regexes }

// Semantics returns the semantic definitions.
func (c *Catalog) Semantics() []domain.PatternDefinition { return c.semantics }

// NegationMarkers returns the normalized negation markers.
func (c *Catalog) NegationMarkers() []string { return c.negations }

// Definitions returns a copy of every loaded definition.
func (c *Catalog) Definitions() []domain.PatternDefinition {
	out := make([]domain.PatternDefinition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Size returns the number of loaded definitions.
func (c *Catalog) Size() int { return len(c.defs) }

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeText lowercases and strips diacritics so matching is insensitive
// to casing and accent variants.
func NormalizeText(s string) string {
	folded, _, err := transform.String(foldTransformer, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return folded
}
