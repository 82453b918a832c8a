package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-alphabet-cartel/ash-nlp/internal/domain"
)

const minimalYAML = `
service:
  name: ash-nlp
engine:
  mode: weighted
  classifier_timeout: 3s
models:
  - id: zero-shot-primary
    kind: http
    url: http://ml:8000
    weight: 0.6
  - id: claude
    kind: anthropic
    model: claude-sonnet-4-5-20250929
    api_key_env: ANTHROPIC_API_KEY
    weight: 0.4
patterns:
  - id: crit-1
    category: critical
    kind: literal
    value: kill myself
    weight: 1.0
    level_hint: critical
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_YAMLAndDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "ash-nlp", cfg.Service.Name)
	assert.Equal(t, domain.ModeWeighted, cfg.Engine.Mode)
	assert.Equal(t, 3*time.Second, cfg.Engine.ClassifierTimeout.Std())

	// Unset fields pick up defaults.
	assert.Equal(t, 8090, cfg.Service.Port)
	assert.Equal(t, 5, cfg.Engine.NegationWindow)
	assert.InDelta(t, 0.3, cfg.Engine.NegationDampening, 1e-9)
	assert.Equal(t, []string{"crisis", "distress", "neutral"}, cfg.Engine.CandidateLabels)
	assert.InDelta(t, 0.15, cfg.Engine.ToleranceBand, 1e-9)

	require.Len(t, cfg.Models, 2)
	assert.Equal(t, "http", cfg.Models[0].Kind)
	require.Len(t, cfg.Patterns, 1)
	assert.Equal(t, domain.CategoryCritical, cfg.Patterns[0].Category)
}

func TestLoad_InvalidDurationRejected(t *testing.T) {
	_, err := Load(writeConfig(t, minimalYAML+"database:\n  connection_max_lifetime: soon\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ASH_NLP_PORT", "9999")
	t.Setenv("ASH_NLP_MODE", "consensus")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Service.Port)
	assert.Equal(t, domain.ModeConsensus, cfg.Engine.Mode)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_NoModelsRejected(t *testing.T) {
	_, err := Load(writeConfig(t, "service:\n  name: ash-nlp\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfigurationInvalid)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
}

func TestDefaultThresholds_AllModesValid(t *testing.T) {
	tables := DefaultThresholds()
	require.Len(t, tables, 3)

	modes := make(map[domain.AggregationMode]bool)
	for _, table := range tables {
		require.NoError(t, table.Validate(), "mode %s", table.Mode)
		modes[table.Mode] = true
	}
	assert.True(t, modes[domain.ModeConsensus])
	assert.True(t, modes[domain.ModeMajority])
	assert.True(t, modes[domain.ModeWeighted])
}

func TestPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	assert.Equal(t, "config.yml", Path("config.yml"))

	t.Setenv("CONFIG_PATH", "/etc/ash-nlp/config.yml")
	assert.Equal(t, "/etc/ash-nlp/config.yml", Path("config.yml"))
}
