package domain

import "fmt"

// PatternCategory groups pattern definitions by the kind of signal they carry.
type PatternCategory string

const (
	CategoryContext   PatternCategory = "context"
	CategoryIdiom     PatternCategory = "idiom"
	CategoryTemporal  PatternCategory = "temporal"
	CategoryCommunity PatternCategory = "community"
	CategoryNegation  PatternCategory = "negation"
	CategoryCritical  PatternCategory = "critical"
)

// fusionPriority orders categories for signal fusion. Higher applies first.
// Negation markers never contribute directly, so they carry no priority.
var fusionPriority = map[PatternCategory]int{
	CategoryCritical:  5,
	CategoryIdiom:     4,
	CategoryContext:   3,
	CategoryTemporal:  2,
	CategoryCommunity: 1,
}

// FusionPriority returns the fusion ordering rank for the category.
func (c PatternCategory) FusionPriority() int {
	return fusionPriority[c]
}

// Valid reports whether c is a known category.
func (c PatternCategory) Valid() bool {
	switch c {
	case CategoryContext, CategoryIdiom, CategoryTemporal,
		CategoryCommunity, CategoryNegation, CategoryCritical:
		return true
	}
	return false
}

// MatchKind selects the matching strategy for a pattern definition.
type MatchKind string

const (
	MatchLiteral  MatchKind = "literal"
	MatchRegex    MatchKind = "regex"
	MatchSemantic MatchKind = "semantic"
)

// Valid reports whether k is a known match kind.
func (k MatchKind) Valid() bool {
	switch k {
	case MatchLiteral, MatchRegex, MatchSemantic:
		return true
	}
	return false
}

// PatternDefinition is one configured lexical or semantic signal. Definitions
// are immutable once loaded; the catalog replaces them wholesale on reload.
type PatternDefinition struct {
	ID                  string          `json:"id"                   yaml:"id"`
	Category            PatternCategory `json:"category"             yaml:"category"`
	Kind                MatchKind       `json:"kind"                 yaml:"kind"`
	Value               string          `json:"value"                yaml:"value"`
	Weight              float64         `json:"weight"               yaml:"weight"`
	LevelHint           CrisisLevel     `json:"level_hint"           yaml:"level_hint"`
	ConfidenceThreshold float64         `json:"confidence_threshold" yaml:"confidence_threshold"`
}

// Validate checks the structural invariants of a single definition.
func (d PatternDefinition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: pattern with empty id", ErrConfigurationInvalid)
	}
	if !d.Category.Valid() {
		return fmt.Errorf("%w: pattern %s: unknown category %q", ErrConfigurationInvalid, d.ID, d.Category)
	}
	if !d.Kind.Valid() {
		return fmt.Errorf("%w: pattern %s: unknown match kind %q", ErrConfigurationInvalid, d.ID, d.Kind)
	}
	if d.Value == "" {
		return fmt.Errorf("%w: pattern %s: empty pattern value", ErrConfigurationInvalid, d.ID)
	}
	// Negative weights are suppressors (idiom, community vocabulary); the
	// magnitude cap keeps any single hit from swinging more than the whole
	// score range.
	if d.Weight < -1 || d.Weight > 1 {
		return fmt.Errorf("%w: pattern %s: weight %v outside [-1,1]", ErrConfigurationInvalid, d.ID, d.Weight)
	}
	if d.LevelHint != "" && !d.LevelHint.Valid() {
		return fmt.Errorf("%w: pattern %s: unknown level hint %q", ErrConfigurationInvalid, d.ID, d.LevelHint)
	}
	if d.ConfidenceThreshold < 0 || d.ConfidenceThreshold > 1 {
		return fmt.Errorf("%w: pattern %s: confidence threshold %v outside [0,1]", ErrConfigurationInvalid, d.ID, d.ConfidenceThreshold)
	}
	return nil
}

// PatternHit is one occurrence of a configured signal in the analyzed text.
// Hits live only for the duration of a single analysis call.
type PatternHit struct {
	PatternID   string          `json:"pattern_id"`
	Category    PatternCategory `json:"category"`
	MatchedText string          `json:"matched_text,omitempty"`
	Weight      float64         `json:"weight"`
	LevelHint   CrisisLevel     `json:"level_hint,omitempty"`
	Confidence  float64         `json:"confidence"`
	Negated     bool            `json:"negated,omitempty"`
}
