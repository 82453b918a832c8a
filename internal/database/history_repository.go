package database

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/the-alphabet-cartel/ash-nlp/internal/domain"
)

// AnalysisRecord is the persisted summary of one analysis. The raw message
// is never stored, only its hash for dedup and lookup.
type AnalysisRecord struct {
	ID               string             `db:"id"                 json:"id"`
	MessageHash      string             `db:"message_hash"       json:"message_hash"`
	CrisisLevel      domain.CrisisLevel `db:"crisis_level"       json:"crisis_level"`
	AdjustedScore    float64            `db:"adjusted_score"     json:"adjusted_score"`
	AgreementRatio   float64            `db:"agreement_ratio"    json:"agreement_ratio"`
	AggregationMode  string             `db:"aggregation_mode"   json:"aggregation_mode"`
	OverrideApplied  bool               `db:"override_applied"   json:"override_applied"`
	OverrideReason   string             `db:"override_reason"    json:"override_reason"`
	NeedsReview      bool               `db:"needs_review"       json:"needs_review"`
	Reviewed         bool               `db:"reviewed"           json:"reviewed"`
	Degraded         bool               `db:"degraded"           json:"degraded"`
	PatternHits      int                `db:"pattern_hits"       json:"pattern_hits"`
	ProcessingTimeMs int64              `db:"processing_time_ms" json:"processing_time_ms"`
	AnalyzedAt       time.Time          `db:"analyzed_at"        json:"analyzed_at"`
}

// ThresholdFeedback is a human correction of an assigned crisis level,
// collected to inform future threshold tuning.
type ThresholdFeedback struct {
	ID              string             `db:"id"               json:"id"`
	AnalysisID      string             `db:"analysis_id"      json:"analysis_id"`
	AggregationMode string             `db:"aggregation_mode" json:"aggregation_mode"`
	AssignedLevel   domain.CrisisLevel `db:"assigned_level"   json:"assigned_level"`
	CorrectedLevel  domain.CrisisLevel `db:"corrected_level"  json:"corrected_level"`
	AdjustedScore   float64            `db:"adjusted_score"   json:"adjusted_score"`
	Note            string             `db:"note"             json:"note"`
	CreatedAt       time.Time          `db:"created_at"       json:"created_at"`
}

// AdjustmentSuggestion aggregates feedback for one (mode, assigned level)
// pair. Operators use it to decide whether a threshold step needs moving.
type AdjustmentSuggestion struct {
	AggregationMode string  `db:"aggregation_mode" json:"aggregation_mode"`
	AssignedLevel   string  `db:"assigned_level"   json:"assigned_level"`
	Corrections     int     `db:"corrections"      json:"corrections"`
	AvgScore        float64 `db:"avg_score"        json:"avg_score"`
	Escalations     int     `db:"escalations"      json:"escalations"`
}

// HistoryStats summarizes the stored analyses.
type HistoryStats struct {
	TotalAnalyses  int            `json:"total_analyses"`
	PendingReviews int            `json:"pending_reviews"`
	Overrides      int            `json:"overrides"`
	Degraded       int            `json:"degraded"`
	ByLevel        map[string]int `json:"by_level"`
}

// HistoryRepository persists analysis records and threshold feedback.
type HistoryRepository struct {
	db *sqlx.DB
}

// NewHistoryRepository creates a repository over an open connection.
func NewHistoryRepository(db *sqlx.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// HashMessage returns the stable hash stored instead of message text.
func HashMessage(message string) string {
	sum := sha256.Sum256([]byte(message))
	return hex.EncodeToString(sum[:])
}

// RecordFromResult builds the persisted row for an analysis result.
func RecordFromResult(message string, result *domain.AnalysisResult) AnalysisRecord {
	return AnalysisRecord{
		ID:               result.ID,
		MessageHash:      HashMessage(message),
		CrisisLevel:      result.Verdict.CrisisLevel,
		AdjustedScore:    result.Verdict.AdjustedScore,
		AgreementRatio:   result.Verdict.AgreementRatio,
		AggregationMode:  string(result.Aggregation.Mode),
		OverrideApplied:  result.Verdict.OverrideApplied,
		OverrideReason:   result.Verdict.OverrideReason,
		NeedsReview:      result.Verdict.NeedsReview,
		Degraded:         result.Degraded,
		PatternHits:      len(result.PatternHits),
		ProcessingTimeMs: result.ProcessingTimeMs,
		AnalyzedAt:       result.AnalyzedAt,
	}
}

// Create inserts one analysis record.
func (r *HistoryRepository) Create(ctx context.Context, record AnalysisRecord) error {
	query := r.db.Rebind(`
		INSERT INTO analysis_history (
			id, message_hash, crisis_level, adjusted_score, agreement_ratio,
			aggregation_mode, override_applied, override_reason, needs_review,
			reviewed, degraded, pattern_hits, processing_time_ms, analyzed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := r.db.ExecContext(ctx, query,
		record.ID, record.MessageHash, record.CrisisLevel, record.AdjustedScore,
		record.AgreementRatio, record.AggregationMode, record.OverrideApplied,
		record.OverrideReason, record.NeedsReview, record.Reviewed,
		record.Degraded, record.PatternHits, record.ProcessingTimeMs,
		record.AnalyzedAt,
	)
	if err != nil {
		return fmt.Errorf("insert analysis record: %w", err)
	}
	return nil
}

// List returns recent records, newest first. When reviewOnly is set, only
// rows flagged for review and not yet reviewed are returned.
func (r *HistoryRepository) List(ctx context.Context, limit, offset int, reviewOnly bool) ([]AnalysisRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := `SELECT * FROM analysis_history`
	if reviewOnly {
		query += ` WHERE needs_review = TRUE AND reviewed = FALSE`
	}
	query += ` ORDER BY analyzed_at DESC LIMIT ? OFFSET ?`

	var records []AnalysisRecord
	if err := r.db.SelectContext(ctx, &records, r.db.Rebind(query), limit, offset); err != nil {
		return nil, fmt.Errorf("list analysis records: %w", err)
	}
	return records, nil
}

// MarkReviewed marks a flagged record as handled by a reviewer.
func (r *HistoryRepository) MarkReviewed(ctx context.Context, id string) error {
	query := r.db.Rebind(`UPDATE analysis_history SET reviewed = TRUE WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("mark reviewed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("mark reviewed: record %s not found", id)
	}
	return nil
}

// Stats aggregates counts across all stored analyses.
func (r *HistoryRepository) Stats(ctx context.Context) (*HistoryStats, error) {
	stats := &HistoryStats{ByLevel: make(map[string]int)}

	row := r.db.QueryRowxContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN needs_review AND NOT reviewed THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN override_applied THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN degraded THEN 1 ELSE 0 END), 0)
		FROM analysis_history
	`)
	if err := row.Scan(&stats.TotalAnalyses, &stats.PendingReviews, &stats.Overrides, &stats.Degraded); err != nil {
		return nil, fmt.Errorf("history stats: %w", err)
	}

	rows, err := r.db.QueryxContext(ctx, `
		SELECT crisis_level, COUNT(*) FROM analysis_history GROUP BY crisis_level
	`)
	if err != nil {
		return nil, fmt.Errorf("history stats by level: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var level string
		var count int
		if err := rows.Scan(&level, &count); err != nil {
			return nil, fmt.Errorf("scan level stat: %w", err)
		}
		stats.ByLevel[level] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history stats by level: %w", err)
	}
	return stats, nil
}

// CreateFeedback stores a human corrected-level entry for later tuning.
func (r *HistoryRepository) CreateFeedback(ctx context.Context, fb ThresholdFeedback) (string, error) {
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now()
	}
	query := r.db.Rebind(`
		INSERT INTO threshold_feedback (
			id, analysis_id, aggregation_mode, assigned_level, corrected_level,
			adjusted_score, note, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := r.db.ExecContext(ctx, query,
		fb.ID, fb.AnalysisID, fb.AggregationMode, fb.AssignedLevel,
		fb.CorrectedLevel, fb.AdjustedScore, fb.Note, fb.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert threshold feedback: %w", err)
	}
	return fb.ID, nil
}

// PendingAdjustments summarizes feedback where the corrected level differs
// from the assigned one, grouped by mode and assigned level.
func (r *HistoryRepository) PendingAdjustments(ctx context.Context) ([]AdjustmentSuggestion, error) {
	// Level names do not sort by severity, so rank them explicitly.
	const rank = `CASE %s
		WHEN 'none' THEN 0 WHEN 'low' THEN 1 WHEN 'medium' THEN 2
		WHEN 'high' THEN 3 WHEN 'critical' THEN 4 ELSE -1 END`
	query := fmt.Sprintf(`
		SELECT
			aggregation_mode,
			assigned_level,
			COUNT(*) AS corrections,
			AVG(adjusted_score) AS avg_score,
			SUM(CASE WHEN `+rank+` > `+rank+` THEN 1 ELSE 0 END) AS escalations
		FROM threshold_feedback
		WHERE corrected_level <> assigned_level
		GROUP BY aggregation_mode, assigned_level
		ORDER BY corrections DESC
	`, "corrected_level", "assigned_level")

	var suggestions []AdjustmentSuggestion
	err := r.db.SelectContext(ctx, &suggestions, query)
	if err != nil {
		return nil, fmt.Errorf("pending adjustments: %w", err)
	}
	return suggestions, nil
}
