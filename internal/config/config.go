package config

import (
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/the-alphabet-cartel/ash-nlp/internal/domain"
)

// Duration decodes human-readable YAML values like "5s" or "2m30s".
// Plain integers are treated as nanoseconds for compatibility with
// time.Duration's native encoding.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		ns, intErr := strconv.ParseInt(raw, 10, 64)
		if intErr != nil {
			return fmt.Errorf("invalid duration %q", raw)
		}
		parsed = time.Duration(ns)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default configuration values.
const (
	defaultServiceName       = "ash-nlp"
	defaultServiceVersion    = "1.0.0"
	defaultServicePort       = 8090
	defaultLogLevel          = "info"
	defaultMode              = domain.ModeMajority
	defaultNegationWindow    = 5
	defaultNegationDampening = 0.3
	defaultClassifierTimeout = 5 * time.Second
	defaultToleranceBand     = 0.15
	defaultMediumReviewFloor = 0.6
	defaultSemanticThreshold = 0.55
	defaultClassifierRPS     = 50
	defaultDBDriver          = "sqlite3"
	defaultDBDSN             = "ash-nlp.db"
	defaultESIndex           = "ash-nlp-verdicts"
	defaultRedisAddr         = "localhost:6379"
	defaultRedisChannel      = "ash:alerts"
	defaultAlertMinLevel     = domain.LevelHigh
	defaultAnthropicModel    = "claude-sonnet-4-5-20250929"
)

// Config holds all configuration for the analysis service.
type Config struct {
	Service       ServiceConfig              `yaml:"service"`
	Logging       LoggingConfig              `yaml:"logging"`
	Engine        EngineConfig               `yaml:"engine"`
	Models        []ModelConfig              `yaml:"models"`
	Patterns      []domain.PatternDefinition `yaml:"patterns"`
	Thresholds    []domain.ThresholdTable    `yaml:"thresholds"`
	Database      DatabaseConfig             `yaml:"database"`
	Elasticsearch ElasticsearchConfig        `yaml:"elasticsearch"`
	Redis         RedisConfig                `yaml:"redis"`
	Auth          AuthConfig                 `yaml:"auth"`
}

// ServiceConfig holds service-level configuration.
type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Port    int    `env:"ASH_NLP_PORT" yaml:"port"`
	Debug   bool   `env:"APP_DEBUG"    yaml:"debug"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" yaml:"level"`
	Output string `yaml:"output"`
}

// EngineConfig holds the scoring engine settings. It is bound into the
// snapshot at load time, never read as ambient state during analysis.
type EngineConfig struct {
	Mode                  domain.AggregationMode `env:"ASH_NLP_MODE" yaml:"mode"`
	CandidateLabels       []string               `yaml:"candidate_labels"`
	NegationWindow        int                    `yaml:"negation_window"`
	NegationDampening     float64                `yaml:"negation_dampening"`
	MinQuorum             int                    `yaml:"min_quorum"`
	ClassifierTimeout     Duration               `yaml:"classifier_timeout"`
	ClassifierRPS         int                    `yaml:"classifier_rps"`
	ToleranceBand         float64                `yaml:"tolerance_band"`
	MediumReviewAgreement float64                `yaml:"medium_review_agreement"`
	SemanticModel         string                 `yaml:"semantic_model"`
}

// ModelConfig describes one ensemble member.
type ModelConfig struct {
	ID        string  `yaml:"id"`
	Kind      string  `yaml:"kind"` // "http" or "anthropic"
	URL       string  `yaml:"url"`
	Weight    float64 `yaml:"weight"`
	Model     string  `yaml:"model"`       // anthropic model name
	APIKeyEnv string  `yaml:"api_key_env"` // env var holding the API key
}

// DatabaseConfig holds the history/feedback store configuration.
type DatabaseConfig struct {
	Driver          string   `env:"ASH_NLP_DB_DRIVER" yaml:"driver"`
	DSN             string   `env:"ASH_NLP_DB_DSN"    yaml:"dsn"`
	MaxConnections  int      `yaml:"max_connections"`
	MaxIdleConns    int      `yaml:"max_idle_connections"`
	ConnMaxLifetime Duration `yaml:"connection_max_lifetime"`
}

// ElasticsearchConfig holds the optional audit indexer configuration.
type ElasticsearchConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `env:"ELASTICSEARCH_URL" yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Index    string `yaml:"index"`
}

// RedisConfig holds the optional alert publisher configuration.
type RedisConfig struct {
	Enabled  bool               `yaml:"enabled"`
	Address  string             `env:"REDIS_ADDRESS"  yaml:"address"`
	Password string             `env:"REDIS_PASSWORD" yaml:"password"`
	DB       int                `yaml:"db"`
	Channel  string             `yaml:"channel"`
	MinLevel domain.CrisisLevel `yaml:"min_level"`
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	JWTSecret string `env:"AUTH_JWT_SECRET" yaml:"jwt_secret"`
}

// Load reads configuration from path and applies defaults and env overrides.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	setDefaults(&cfg)
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("%w: no classifier models configured", domain.ErrConfigurationInvalid)
	}
	return &cfg, nil
}

func setDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	setLoggingDefaults(&cfg.Logging)
	setEngineDefaults(&cfg.Engine)
	setModelDefaults(cfg.Models)
	setPatternDefaults(cfg.Patterns)
	setDatabaseDefaults(&cfg.Database)
	setElasticsearchDefaults(&cfg.Elasticsearch)
	setRedisDefaults(&cfg.Redis)
	if len(cfg.Thresholds) == 0 {
		cfg.Thresholds = DefaultThresholds()
	}
}

func setServiceDefaults(s *ServiceConfig) {
	if s.Name == "" {
		s.Name = defaultServiceName
	}
	if s.Version == "" {
		s.Version = defaultServiceVersion
	}
	if s.Port == 0 {
		s.Port = defaultServicePort
	}
}

func setLoggingDefaults(l *LoggingConfig) {
	if l.Level == "" {
		l.Level = defaultLogLevel
	}
}

func setEngineDefaults(e *EngineConfig) {
	if e.Mode == "" {
		e.Mode = defaultMode
	}
	if len(e.CandidateLabels) == 0 {
		e.CandidateLabels = []string{"crisis", "distress", "neutral"}
	}
	if e.NegationWindow == 0 {
		e.NegationWindow = defaultNegationWindow
	}
	if e.NegationDampening == 0 {
		e.NegationDampening = defaultNegationDampening
	}
	if e.ClassifierTimeout == 0 {
		e.ClassifierTimeout = Duration(defaultClassifierTimeout)
	}
	if e.ClassifierRPS == 0 {
		e.ClassifierRPS = defaultClassifierRPS
	}
	if e.ToleranceBand == 0 {
		e.ToleranceBand = defaultToleranceBand
	}
	if e.MediumReviewAgreement == 0 {
		e.MediumReviewAgreement = defaultMediumReviewFloor
	}
}

func setModelDefaults(models []ModelConfig) {
	for i := range models {
		if models[i].Kind == "" {
			models[i].Kind = "http"
		}
		if models[i].Kind == "anthropic" && models[i].Model == "" {
			models[i].Model = defaultAnthropicModel
		}
	}
}

// setPatternDefaults applies the semantic confidence floor. The 0.55 default
// is a starting point that needs empirical tuning, not a calibrated value.
func setPatternDefaults(patterns []domain.PatternDefinition) {
	for i := range patterns {
		if patterns[i].Kind == domain.MatchSemantic && patterns[i].ConfidenceThreshold == 0 {
			patterns[i].ConfidenceThreshold = defaultSemanticThreshold
		}
	}
}

func setDatabaseDefaults(d *DatabaseConfig) {
	if d.Driver == "" {
		d.Driver = defaultDBDriver
	}
	if d.DSN == "" {
		d.DSN = defaultDBDSN
	}
	if d.MaxConnections == 0 {
		d.MaxConnections = 10
	}
	if d.MaxIdleConns == 0 {
		d.MaxIdleConns = 2
	}
	if d.ConnMaxLifetime == 0 {
		d.ConnMaxLifetime = Duration(time.Hour)
	}
}

func setElasticsearchDefaults(e *ElasticsearchConfig) {
	if e.Index == "" {
		e.Index = defaultESIndex
	}
}

func setRedisDefaults(r *RedisConfig) {
	if r.Address == "" {
		r.Address = defaultRedisAddr
	}
	if r.Channel == "" {
		r.Channel = defaultRedisChannel
	}
	if r.MinLevel == "" {
		r.MinLevel = defaultAlertMinLevel
	}
}

// DefaultThresholds returns the shipped per-mode calibration. Consensus
// composites fall back to the all-score mean when unanimity is absent, so its
// table demands stronger magnitude before escalating.
func DefaultThresholds() []domain.ThresholdTable {
	return []domain.ThresholdTable{
		{
			Mode: domain.ModeConsensus,
			Steps: []domain.ThresholdStep{
				{Level: domain.LevelLow, MinScore: 0.40},
				{Level: domain.LevelMedium, MinScore: 0.60},
				{Level: domain.LevelHigh, MinScore: 0.78},
				{Level: domain.LevelCritical, MinScore: 0.92},
			},
		},
		{
			Mode: domain.ModeMajority,
			Steps: []domain.ThresholdStep{
				{Level: domain.LevelLow, MinScore: 0.35},
				{Level: domain.LevelMedium, MinScore: 0.55},
				{Level: domain.LevelHigh, MinScore: 0.72},
				{Level: domain.LevelCritical, MinScore: 0.88},
			},
		},
		{
			Mode: domain.ModeWeighted,
			Steps: []domain.ThresholdStep{
				{Level: domain.LevelLow, MinScore: 0.32},
				{Level: domain.LevelMedium, MinScore: 0.52},
				{Level: domain.LevelHigh, MinScore: 0.70},
				{Level: domain.LevelCritical, MinScore: 0.86},
			},
		},
	}
}
