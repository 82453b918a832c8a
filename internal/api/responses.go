package api

import (
	"time"

	"github.com/the-alphabet-cartel/ash-nlp/internal/domain"
)

const (
	maxBatchSize     = 50
	defaultListLimit = 50
	maxMessageLength = 10000
)

// AnalyzeRequest represents a single analysis request.
type AnalyzeRequest struct {
	Message string `json:"message" binding:"required"`
}

// AnalyzeResponse wraps one analysis result.
type AnalyzeResponse struct {
	Result *domain.AnalysisResult `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// BatchAnalyzeRequest represents a batch analysis request.
type BatchAnalyzeRequest struct {
	Messages []string `json:"messages" binding:"required,min=1,max=50"`
}

// BatchItemResult pairs one message index with its outcome.
type BatchItemResult struct {
	Index  int                    `json:"index"`
	Result *domain.AnalysisResult `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// BatchAnalyzeResponse represents a batch analysis response.
type BatchAnalyzeResponse struct {
	Results []BatchItemResult `json:"results"`
	Total   int               `json:"total"`
	Success int               `json:"success"`
	Failed  int               `json:"failed"`
}

// PatternsResponse lists the active pattern catalog.
type PatternsResponse struct {
	Patterns []domain.PatternDefinition `json:"patterns"`
	Total    int                        `json:"total"`
	LoadedAt time.Time                  `json:"loaded_at"`
	Warnings []string                   `json:"warnings,omitempty"`
}

// ReloadResponse reports the outcome of a configuration reload.
type ReloadResponse struct {
	Status   string    `json:"status"`
	Patterns int       `json:"patterns"`
	Mode     string    `json:"mode"`
	LoadedAt time.Time `json:"loaded_at"`
	Warnings []string  `json:"warnings,omitempty"`
}

// FeedbackRequest records a reviewer's corrected crisis level.
type FeedbackRequest struct {
	AnalysisID     string             `json:"analysis_id"     binding:"required"`
	AssignedLevel  domain.CrisisLevel `json:"assigned_level"  binding:"required"`
	CorrectedLevel domain.CrisisLevel `json:"corrected_level" binding:"required"`
	AdjustedScore  float64            `json:"adjusted_score"`
	Note           string             `json:"note"`
}

// FeedbackResponse returns the stored feedback ID.
type FeedbackResponse struct {
	ID string `json:"id"`
}
