package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/the-alphabet-cartel/ash-nlp/internal/domain"
	"github.com/the-alphabet-cartel/ash-nlp/internal/logger"
	"github.com/the-alphabet-cartel/ash-nlp/internal/telemetry"
)

// Engine runs the full analysis pipeline. Analyze calls are independent and
// lock-free on the read path: each call pins the snapshot pointer it started
// with, so a concurrent reload is either fully visible or fully invisible.
type Engine struct {
	ensemble  *Ensemble
	snapshot  atomic.Pointer[Snapshot]
	log       logger.Logger
	telemetry *telemetry.Provider
}

// New creates an engine over the given ensemble. No snapshot is installed
// yet; Analyze fails with ErrNoSnapshot until Reload succeeds once.
func New(ensemble *Ensemble, log logger.Logger, tp *telemetry.Provider) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{ensemble: ensemble, log: log, telemetry: tp}
}

// Reload atomically swaps in a new configuration snapshot. In-flight analyses
// keep the snapshot they loaded; there is no mixed state.
func (e *Engine) Reload(snap *Snapshot) {
	e.snapshot.Store(snap)
	e.log.Info("configuration snapshot installed",
		logger.Int("patterns", snap.Catalog.Size()),
		logger.String("mode", string(snap.Settings.Mode)),
		logger.Strings("warnings", snap.Warnings))
	if e.telemetry != nil {
		e.telemetry.Metrics.SnapshotReloads.WithLabelValues("success").Inc()
	}
}

// Snapshot returns the active configuration snapshot, or nil before the
// first successful load.
func (e *Engine) Snapshot() *Snapshot {
	return e.snapshot.Load()
}

// Analyze runs one message through ensemble voting, pattern matching, signal
// fusion, threshold mapping, and review gating. Per-classifier failures are
// recovered locally and never surface as errors; the only error case is a
// missing snapshot, which is a startup-ordering bug. A degraded analysis
// still returns a best-effort verdict flagged for review — under-reacting is
// strictly worse than over-reacting here.
func (e *Engine) Analyze(ctx context.Context, message string) (*domain.AnalysisResult, error) {
	snap := e.snapshot.Load()
	if snap == nil {
		return nil, domain.ErrNoSnapshot
	}

	start := time.Now()
	analysisID := uuid.NewString()

	if e.telemetry != nil {
		spanCtx, span := e.telemetry.StartAnalysisSpan(ctx, analysisID)
		span.SetAttributes(attribute.Int("message.length", len(message)))
		defer span.End()
		ctx = spanCtx
	}

	settings := snap.Settings
	matcher := NewMatcher(snap.Catalog, e.semanticDelegate(settings), settings.ClassifierTimeout,
		settings.NegationWindow, settings.NegationDampening, e.log)

	// Classifier calls are the only blocking work; run the ensemble fan-out
	// and the pattern scan concurrently to bound latency.
	var (
		wg      sync.WaitGroup
		outcome VoteOutcome
		hits    []domain.PatternHit
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		outcome = e.ensemble.Vote(ctx, message, settings.CandidateLabels, settings.ClassifierTimeout, settings.MinQuorum)
	}()
	go func() {
		defer wg.Done()
		hits = matcher.Match(ctx, message)
	}()
	wg.Wait()

	aggregation := Aggregate(outcome.Votes, settings.Mode, settings.ToleranceBand)
	fusion := Fuse(aggregation, hits)
	verdict := MapVerdict(fusion, aggregation.AgreementRatio, hits, snap.Tables[settings.Mode])

	needsReview, reviewReason := NeedsReview(verdict, outcome.Degraded, settings.MediumReviewAgreement)
	verdict.NeedsReview = needsReview

	warnings := make([]string, 0, len(snap.Warnings)+len(outcome.Warnings))
	warnings = append(warnings, snap.Warnings...)
	warnings = append(warnings, outcome.Warnings...)

	result := &domain.AnalysisResult{
		ID:               analysisID,
		Verdict:          verdict,
		Aggregation:      aggregation,
		Fusion:           fusion,
		PatternHits:      hits,
		Degraded:         outcome.Degraded,
		ExcludedModels:   outcome.Failures,
		Warnings:         warnings,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		AnalyzedAt:       time.Now(),
	}

	e.record(result, reviewReason, time.Since(start))
	return result, nil
}

// semanticDelegate resolves the classifier used for semantic hypothesis
// scoring: the configured model when named, otherwise the first member.
func (e *Engine) semanticDelegate(settings Settings) Classifier {
	if settings.SemanticModel != "" {
		if c, ok := e.ensemble.Member(settings.SemanticModel); ok {
			return c
		}
		e.log.Warn("semantic model not configured, using first member",
			logger.String("semantic_model", settings.SemanticModel))
	}
	return e.ensemble.First()
}

func (e *Engine) record(result *domain.AnalysisResult, reviewReason string, elapsed time.Duration) {
	e.log.Info("analysis complete",
		logger.String("analysis_id", result.ID),
		logger.String("crisis_level", string(result.Verdict.CrisisLevel)),
		logger.Float64("adjusted_score", result.Verdict.AdjustedScore),
		logger.Float64("agreement_ratio", result.Verdict.AgreementRatio),
		logger.Bool("override_applied", result.Verdict.OverrideApplied),
		logger.Bool("needs_review", result.Verdict.NeedsReview),
		logger.Bool("degraded", result.Degraded),
		logger.Int("pattern_hits", len(result.PatternHits)),
		logger.Duration("elapsed", elapsed))

	if e.telemetry == nil {
		return
	}
	m := e.telemetry.Metrics
	e.telemetry.RecordAnalysis(string(result.Verdict.CrisisLevel), elapsed,
		result.Verdict.AgreementRatio, result.Verdict.AdjustedScore)
	for _, hit := range result.PatternHits {
		m.PatternHitsTotal.WithLabelValues(string(hit.Category)).Inc()
	}
	for _, failure := range result.ExcludedModels {
		m.ClassifierFailures.WithLabelValues(failure.ModelID, failure.Reason).Inc()
	}
	if result.Degraded {
		m.DegradedTotal.Inc()
	}
	if result.Verdict.OverrideApplied {
		m.OverridesTotal.Inc()
	}
	if result.Verdict.NeedsReview {
		m.ReviewsTotal.WithLabelValues(reviewReason).Inc()
	}
}
