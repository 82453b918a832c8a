// Package publisher pushes high-severity verdicts onto the alert channel.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/the-alphabet-cartel/ash-nlp/internal/domain"
	"github.com/the-alphabet-cartel/ash-nlp/internal/logger"
)

// Alert is the message published for responders. It deliberately carries
// only what a responder needs to triage, never the message text.
type Alert struct {
	AnalysisID     string             `json:"analysis_id"`
	CrisisLevel    domain.CrisisLevel `json:"crisis_level"`
	AdjustedScore  float64            `json:"adjusted_score"`
	OverrideReason string             `json:"override_reason,omitempty"`
	NeedsReview    bool               `json:"needs_review"`
	Degraded       bool               `json:"degraded"`
	AnalyzedAt     time.Time          `json:"analyzed_at"`
}

// AlertPublisher publishes alerts for verdicts at or above a minimum level.
type AlertPublisher struct {
	client   *redis.Client
	channel  string
	minLevel domain.CrisisLevel
	log      logger.Logger
}

// New creates a publisher. Verdicts below minLevel are dropped silently.
func New(client *redis.Client, channel string, minLevel domain.CrisisLevel, log logger.Logger) *AlertPublisher {
	if log == nil {
		log = logger.Nop()
	}
	return &AlertPublisher{client: client, channel: channel, minLevel: minLevel, log: log}
}

// NewClient builds a Redis client from connection settings.
func NewClient(address, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
}

// Publish emits an alert when the verdict clears the minimum level.
// Publishing failures are reported but must not fail the analysis.
func (p *AlertPublisher) Publish(ctx context.Context, result *domain.AnalysisResult) error {
	if result.Verdict.CrisisLevel.Severity() < p.minLevel.Severity() {
		return nil
	}

	alert := Alert{
		AnalysisID:     result.ID,
		CrisisLevel:    result.Verdict.CrisisLevel,
		AdjustedScore:  result.Verdict.AdjustedScore,
		OverrideReason: result.Verdict.OverrideReason,
		NeedsReview:    result.Verdict.NeedsReview,
		Degraded:       result.Degraded,
		AnalyzedAt:     result.AnalyzedAt,
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.log.Error("alert publish failed",
			logger.String("analysis_id", result.ID),
			logger.String("crisis_level", string(result.Verdict.CrisisLevel)),
			logger.Error(err))
		return fmt.Errorf("publish alert: %w", err)
	}

	p.log.Info("alert published",
		logger.String("analysis_id", result.ID),
		logger.String("channel", p.channel),
		logger.String("crisis_level", string(result.Verdict.CrisisLevel)))
	return nil
}

// Close releases the underlying client.
func (p *AlertPublisher) Close() error {
	return p.client.Close()
}
