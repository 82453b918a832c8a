// Package telemetry provides OpenTelemetry tracing and Prometheus metrics
// for the analysis service.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "ash-nlp"

// Metrics holds all analysis Prometheus metrics.
type Metrics struct {
	AnalysesTotal      *prometheus.CounterVec
	AnalysisDuration   prometheus.Histogram
	ClassifierFailures *prometheus.CounterVec
	PatternHitsTotal   *prometheus.CounterVec
	DegradedTotal      prometheus.Counter
	OverridesTotal     prometheus.Counter
	ReviewsTotal       *prometheus.CounterVec
	EnsembleAgreement  prometheus.Histogram
	AdjustedScore      prometheus.Histogram
	SnapshotReloads    *prometheus.CounterVec
}

// Provider wraps the tracer and metrics handed to every component.
type Provider struct {
	Tracer  trace.Tracer
	Metrics *Metrics
}

// NewProvider initializes telemetry with Prometheus metrics.
func NewProvider() *Provider {
	return &Provider{
		Tracer:  otel.Tracer(serviceName),
		Metrics: initMetrics(),
	}
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func (p *Provider) Handler() http.Handler {
	return promhttp.Handler()
}

func initMetrics() *Metrics {
	return &Metrics{
		AnalysesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ash_nlp_analyses_total",
			Help: "Total messages analyzed, by resulting crisis level",
		}, []string{"crisis_level"}),

		AnalysisDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ash_nlp_analysis_duration_seconds",
			Help:    "End-to-end time for one analyze call",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}),

		ClassifierFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ash_nlp_classifier_failures_total",
			Help: "Classifier invocations excluded from votes, by model and reason",
		}, []string{"model_id", "reason"}),

		PatternHitsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ash_nlp_pattern_hits_total",
			Help: "Pattern hits emitted, by category",
		}, []string{"category"}),

		DegradedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ash_nlp_degraded_analyses_total",
			Help: "Analyses completed below ensemble quorum",
		}),

		OverridesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ash_nlp_safety_overrides_total",
			Help: "Verdicts escalated by a critical-pattern override",
		}),

		ReviewsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ash_nlp_reviews_triggered_total",
			Help: "Verdicts flagged for mandatory human review, by reason",
		}, []string{"reason"}),

		EnsembleAgreement: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ash_nlp_ensemble_agreement_ratio",
			Help:    "Agreement ratio distribution across analyses",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),

		AdjustedScore: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ash_nlp_adjusted_score",
			Help:    "Post-fusion adjusted score distribution",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),

		SnapshotReloads: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ash_nlp_snapshot_reloads_total",
			Help: "Configuration snapshot reload attempts, by outcome",
		}, []string{"outcome"}),
	}
}

// StartAnalysisSpan opens a tracing span for one analyze call.
func (p *Provider) StartAnalysisSpan(ctx context.Context, analysisID string) (context.Context, trace.Span) {
	return p.Tracer.Start(ctx, "engine.Analyze",
		trace.WithAttributes(attribute.String("analysis.id", analysisID)))
}

// RecordAnalysis records the metrics for one completed analysis.
func (p *Provider) RecordAnalysis(level string, duration time.Duration, agreement, adjusted float64) {
	p.Metrics.AnalysesTotal.WithLabelValues(level).Inc()
	p.Metrics.AnalysisDuration.Observe(duration.Seconds())
	p.Metrics.EnsembleAgreement.Observe(agreement)
	p.Metrics.AdjustedScore.Observe(adjusted)
}
