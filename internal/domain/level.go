// Package domain defines the core types of the crisis analysis engine.
package domain

import "fmt"

// CrisisLevel is the ordinal severity classification of a message.
type CrisisLevel string

const (
	LevelNone     CrisisLevel = "none"
	LevelLow      CrisisLevel = "low"
	LevelMedium   CrisisLevel = "medium"
	LevelHigh     CrisisLevel = "high"
	LevelCritical CrisisLevel = "critical"
)

// levelSeverity orders crisis levels from least to most severe.
var levelSeverity = map[CrisisLevel]int{
	LevelNone:     0,
	LevelLow:      1,
	LevelMedium:   2,
	LevelHigh:     3,
	LevelCritical: 4,
}

// Severity returns the ordinal rank of the level (none=0 .. critical=4).
// Unknown levels rank below none.
func (l CrisisLevel) Severity() int {
	if s, ok := levelSeverity[l]; ok {
		return s
	}
	return -1
}

// Valid reports whether l is one of the five known levels.
func (l CrisisLevel) Valid() bool {
	_, ok := levelSeverity[l]
	return ok
}

// ParseCrisisLevel converts a string into a CrisisLevel.
func ParseCrisisLevel(s string) (CrisisLevel, error) {
	l := CrisisLevel(s)
	if !l.Valid() {
		return "", fmt.Errorf("unknown crisis level %q", s)
	}
	return l, nil
}
