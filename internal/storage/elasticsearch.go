// Package storage holds the optional audit trail indexer.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/the-alphabet-cartel/ash-nlp/internal/domain"
)

// AuditDocument is the indexed shape of one analysis. It carries the full
// explainability payload so reviewers can reconstruct a verdict without
// database access. The raw message is excluded; only its hash is indexed.
type AuditDocument struct {
	AnalysisID     string                    `json:"analysis_id"`
	MessageHash    string                    `json:"message_hash"`
	Verdict        domain.CrisisVerdict      `json:"verdict"`
	Aggregation    domain.AggregationResult  `json:"aggregation"`
	Fusion         domain.FusionResult       `json:"fusion"`
	PatternHits    []domain.PatternHit       `json:"pattern_hits"`
	Degraded       bool                      `json:"degraded"`
	ExcludedModels []domain.ModelFailure     `json:"excluded_models,omitempty"`
	Warnings       []string                  `json:"warnings,omitempty"`
	AnalyzedAt     time.Time                 `json:"analyzed_at"`
	IndexedAt      time.Time                 `json:"indexed_at"`
}

// AuditIndexer writes analysis audit documents to Elasticsearch.
type AuditIndexer struct {
	client *es.Client
	index  string
}

// NewAuditIndexer creates an indexer writing to the given index.
func NewAuditIndexer(client *es.Client, index string) *AuditIndexer {
	if index == "" {
		index = "ash_nlp_audit"
	}
	return &AuditIndexer{client: client, index: index}
}

// NewClient builds an Elasticsearch client from connection settings.
func NewClient(url, username, password string) (*es.Client, error) {
	client, err := es.NewClient(es.Config{
		Addresses: []string{url},
		Username:  username,
		Password:  password,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return client, nil
}

// IndexVerdict stores the audit document for one analysis, keyed by
// analysis ID so retried writes stay idempotent.
func (a *AuditIndexer) IndexVerdict(ctx context.Context, messageHash string, result *domain.AnalysisResult) error {
	doc := AuditDocument{
		AnalysisID:     result.ID,
		MessageHash:    messageHash,
		Verdict:        result.Verdict,
		Aggregation:    result.Aggregation,
		Fusion:         result.Fusion,
		PatternHits:    result.PatternHits,
		Degraded:       result.Degraded,
		ExcludedModels: result.ExcludedModels,
		Warnings:       result.Warnings,
		AnalyzedAt:     result.AnalyzedAt,
		IndexedAt:      time.Now(),
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal audit document: %w", err)
	}

	res, err := a.client.Index(
		a.index,
		bytes.NewReader(body),
		a.client.Index.WithContext(ctx),
		a.client.Index.WithDocumentID(result.ID),
	)
	if err != nil {
		return fmt.Errorf("index audit document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index audit document: %s", res.String())
	}
	return nil
}

// Ping verifies the cluster is reachable.
func (a *AuditIndexer) Ping(ctx context.Context) error {
	res, err := a.client.Ping(a.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("ping elasticsearch: %s", res.String())
	}
	return nil
}
