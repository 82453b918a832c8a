package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/the-alphabet-cartel/ash-nlp/internal/database"
	"github.com/the-alphabet-cartel/ash-nlp/internal/domain"
	"github.com/the-alphabet-cartel/ash-nlp/internal/engine"
	"github.com/the-alphabet-cartel/ash-nlp/internal/logger"
)

const sinkTimeout = 5 * time.Second

// Analyzer runs analyses against the active configuration snapshot.
type Analyzer interface {
	Analyze(ctx context.Context, message string) (*domain.AnalysisResult, error)
	Snapshot() *engine.Snapshot
}

// Reloader rebuilds and swaps the configuration snapshot from disk.
type Reloader interface {
	Reload(ctx context.Context) error
}

// HistoryStore persists analysis records and reviewer feedback.
type HistoryStore interface {
	Create(ctx context.Context, record database.AnalysisRecord) error
	List(ctx context.Context, limit, offset int, reviewOnly bool) ([]database.AnalysisRecord, error)
	MarkReviewed(ctx context.Context, id string) error
	Stats(ctx context.Context) (*database.HistoryStats, error)
	CreateFeedback(ctx context.Context, fb database.ThresholdFeedback) (string, error)
	PendingAdjustments(ctx context.Context) ([]database.AdjustmentSuggestion, error)
}

// AuditSink records the full explainability payload of an analysis.
type AuditSink interface {
	IndexVerdict(ctx context.Context, messageHash string, result *domain.AnalysisResult) error
}

// AlertSink notifies responders about severe verdicts.
type AlertSink interface {
	Publish(ctx context.Context, result *domain.AnalysisResult) error
}

// Handler handles HTTP requests for the analysis API. History, audit, and
// alert sinks are optional; a nil sink is skipped.
type Handler struct {
	analyzer Analyzer
	reloader Reloader
	history  HistoryStore
	audit    AuditSink
	alerts   AlertSink
	log      logger.Logger
}

// NewHandler creates an API handler.
func NewHandler(analyzer Analyzer, reloader Reloader, history HistoryStore, audit AuditSink, alerts AlertSink, log logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		analyzer: analyzer,
		reloader: reloader,
		history:  history,
		audit:    audit,
		alerts:   alerts,
		log:      log,
	}
}

// Analyze handles POST /api/v1/analyze.
func (h *Handler) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if msg := strings.TrimSpace(req.Message); msg == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message must not be empty"})
		return
	}
	if len(req.Message) > maxMessageLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message exceeds maximum length"})
		return
	}

	result, err := h.analyzer.Analyze(c.Request.Context(), req.Message)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrNoSnapshot) {
			status = http.StatusServiceUnavailable
		}
		h.log.Error("analysis failed", logger.Error(err))
		c.JSON(status, AnalyzeResponse{Error: err.Error()})
		return
	}

	h.persist(req.Message, result)
	c.JSON(http.StatusOK, AnalyzeResponse{Result: result})
}

// AnalyzeBatch handles POST /api/v1/analyze/batch. Items fail
// independently; one bad message never sinks the batch.
func (h *Handler) AnalyzeBatch(c *gin.Context) {
	var req BatchAnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp := BatchAnalyzeResponse{
		Results: make([]BatchItemResult, 0, len(req.Messages)),
		Total:   len(req.Messages),
	}
	for i, message := range req.Messages {
		item := BatchItemResult{Index: i}
		switch {
		case strings.TrimSpace(message) == "":
			item.Error = "message must not be empty"
		case len(message) > maxMessageLength:
			item.Error = "message exceeds maximum length"
		default:
			result, err := h.analyzer.Analyze(c.Request.Context(), message)
			if err != nil {
				item.Error = err.Error()
			} else {
				item.Result = result
				h.persist(message, result)
			}
		}
		if item.Error != "" {
			resp.Failed++
		} else {
			resp.Success++
		}
		resp.Results = append(resp.Results, item)
	}

	c.JSON(http.StatusOK, resp)
}

// ListPatterns handles GET /api/v1/patterns.
func (h *Handler) ListPatterns(c *gin.Context) {
	snap := h.analyzer.Snapshot()
	if snap == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no configuration loaded"})
		return
	}
	patterns := snap.Catalog.Definitions()
	c.JSON(http.StatusOK, PatternsResponse{
		Patterns: patterns,
		Total:    len(patterns),
		LoadedAt: snap.LoadedAt,
		Warnings: snap.Warnings,
	})
}

// ReloadConfig handles POST /api/v1/config/reload. On failure the previous
// snapshot stays active.
func (h *Handler) ReloadConfig(c *gin.Context) {
	if err := h.reloader.Reload(c.Request.Context()); err != nil {
		h.log.Error("configuration reload rejected", logger.Error(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	snap := h.analyzer.Snapshot()
	c.JSON(http.StatusOK, ReloadResponse{
		Status:   "reloaded",
		Patterns: snap.Catalog.Size(),
		Mode:     string(snap.Settings.Mode),
		LoadedAt: snap.LoadedAt,
		Warnings: snap.Warnings,
	})
}

// Stats handles GET /api/v1/stats.
func (h *Handler) Stats(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "history store not configured"})
		return
	}
	stats, err := h.history.Stats(c.Request.Context())
	if err != nil {
		h.log.Error("stats query failed", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ListHistory handles GET /api/v1/history.
func (h *Handler) ListHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "history store not configured"})
		return
	}
	limit := queryInt(c, "limit", defaultListLimit)
	offset := queryInt(c, "offset", 0)
	reviewOnly := c.Query("review_only") == "true"

	records, err := h.history.List(c.Request.Context(), limit, offset, reviewOnly)
	if err != nil {
		h.log.Error("history query failed", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "total": len(records)})
}

// MarkReviewed handles POST /api/v1/history/:id/review.
func (h *Handler) MarkReviewed(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "history store not configured"})
		return
	}
	id := c.Param("id")
	if err := h.history.MarkReviewed(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reviewed", "id": id})
}

// CreateFeedback handles POST /api/v1/feedback.
func (h *Handler) CreateFeedback(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "history store not configured"})
		return
	}
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.AssignedLevel.Valid() || !req.CorrectedLevel.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown crisis level"})
		return
	}

	snap := h.analyzer.Snapshot()
	mode := ""
	if snap != nil {
		mode = string(snap.Settings.Mode)
	}
	id, err := h.history.CreateFeedback(c.Request.Context(), database.ThresholdFeedback{
		AnalysisID:      req.AnalysisID,
		AggregationMode: mode,
		AssignedLevel:   req.AssignedLevel,
		CorrectedLevel:  req.CorrectedLevel,
		AdjustedScore:   req.AdjustedScore,
		Note:            req.Note,
	})
	if err != nil {
		h.log.Error("feedback insert failed", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, FeedbackResponse{ID: id})
}

// PendingAdjustments handles GET /api/v1/feedback/adjustments.
func (h *Handler) PendingAdjustments(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "history store not configured"})
		return
	}
	suggestions, err := h.history.PendingAdjustments(c.Request.Context())
	if err != nil {
		h.log.Error("adjustment query failed", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions, "total": len(suggestions)})
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().UTC()})
}

// ReadyCheck handles GET /ready. The service is ready once a snapshot is
// installed.
func (h *Handler) ReadyCheck(c *gin.Context) {
	if h.analyzer.Snapshot() == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "reason": "no configuration loaded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// persist fans the result out to the optional sinks. Sink failures are
// logged and swallowed; the caller already has the verdict.
func (h *Handler) persist(message string, result *domain.AnalysisResult) {
	if h.history == nil && h.audit == nil && h.alerts == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		defer cancel()

		hash := database.HashMessage(message)
		if h.history != nil {
			if err := h.history.Create(ctx, database.RecordFromResult(message, result)); err != nil {
				h.log.Error("history write failed", logger.String("analysis_id", result.ID), logger.Error(err))
			}
		}
		if h.audit != nil {
			if err := h.audit.IndexVerdict(ctx, hash, result); err != nil {
				h.log.Error("audit index failed", logger.String("analysis_id", result.ID), logger.Error(err))
			}
		}
		if h.alerts != nil {
			if err := h.alerts.Publish(ctx, result); err != nil {
				h.log.Error("alert publish failed", logger.String("analysis_id", result.ID), logger.Error(err))
			}
		}
	}()
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
