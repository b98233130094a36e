package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mstrand/ai-mailtriage/internal/application/hitl"
	"github.com/mstrand/ai-mailtriage/internal/application/port"
	"github.com/mstrand/ai-mailtriage/internal/domain/decision"
	"github.com/mstrand/ai-mailtriage/internal/domain/email"
	"github.com/mstrand/ai-mailtriage/internal/domain/session"
)

// DecisionEngine is the engine surface the gateway depends on.
type DecisionEngine interface {
	StartWorkflow(ctx context.Context, em email.Context) (*session.Session, error)
	SubmitDecision(ctx context.Context, workflowID string, d decision.Decision) (*session.Session, error)
	Refresh(ctx context.Context, workflowID string) (*session.Session, error)
	Session(workflowID string) (*session.Session, bool)
	Sessions() []*session.Session
}

// DecisionPublisher reports accepted decision submissions to the event bus.
type DecisionPublisher interface {
	PublishDecisionSubmitted(s *session.Session, decisionToken, payload string)
}

// ReportExporter renders triage history into a downloadable workbook.
type ReportExporter interface {
	Export(ctx context.Context, records []*port.TriageRecord) ([]byte, error)
}

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine    DecisionEngine
	history   port.HistoryRepository
	exporter  ReportExporter
	publisher DecisionPublisher
	logger    *zap.Logger
}

// NewHandlers creates a new Handlers instance. history, exporter and publisher
// may be nil; their endpoints then report the feature as unavailable.
func NewHandlers(
	engine DecisionEngine,
	history port.HistoryRepository,
	exporter ReportExporter,
	publisher DecisionPublisher,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		engine:    engine,
		history:   history,
		exporter:  exporter,
		publisher: publisher,
		logger:    logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// DecisionRequest is the decision submission body
type DecisionRequest struct {
	Decision string `json:"decision" binding:"required"`
	Payload  string `json:"payload,omitempty"`
}

// HistoryResponse wraps a page of persisted triage records
type HistoryResponse struct {
	Records []HistoryRecord `json:"records"`
	Count   int             `json:"count"`
}

// HistoryRecord is one persisted triage row in API responses
type HistoryRecord struct {
	WorkflowID  string  `json:"workflowId"`
	MessageID   string  `json:"messageId"`
	Subject     string  `json:"subject"`
	Sender      string  `json:"sender"`
	Category    string  `json:"category,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
	Status      string  `json:"status"`
	ErrorKind   string  `json:"errorKind,omitempty"`
	FinalAction string  `json:"finalAction,omitempty"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// StartTriage handles POST /api/v1/triage
func (h *Handlers) StartTriage(c *gin.Context) {
	var em email.Context
	if err := c.ShouldBindJSON(&em); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid request body",
		})
		return
	}

	em.Normalize()
	if err := em.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	sess, err := h.engine.StartWorkflow(c.Request.Context(), em)
	if err != nil {
		h.logger.Error("Failed to start triage",
			zap.String("message_id", em.MessageID),
			zap.Error(err))
		h.writeEngineError(c, sess, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: sess})
}

// SubmitDecision handles POST /api/v1/triage/:id/decision
func (h *Handlers) SubmitDecision(c *gin.Context) {
	workflowID := c.Param("id")

	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "decision is required",
		})
		return
	}

	d := decision.Decision{Token: decision.Token(req.Decision), Payload: req.Payload}

	sess, err := h.engine.SubmitDecision(c.Request.Context(), workflowID, d)
	if err != nil {
		h.logger.Warn("Decision rejected",
			zap.String("workflow_id", workflowID),
			zap.String("decision", req.Decision),
			zap.Error(err))
		h.writeEngineError(c, sess, err)
		return
	}

	if h.publisher != nil && !d.Token.IsClientLocal() {
		h.publisher.PublishDecisionSubmitted(sess, req.Decision, req.Payload)
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: sess})
}

// GetSession handles GET /api/v1/triage/:id
func (h *Handlers) GetSession(c *gin.Context) {
	workflowID := c.Param("id")

	if c.Query("refresh") == "true" {
		sess, err := h.engine.Refresh(c.Request.Context(), workflowID)
		if err != nil {
			h.writeEngineError(c, sess, err)
			return
		}
		c.JSON(http.StatusOK, Response{Success: true, Data: sess})
		return
	}

	sess, ok := h.engine.Session(workflowID)
	if !ok {
		c.JSON(http.StatusNotFound, Response{
			Success: false,
			Error:   "workflow not found",
		})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: sess})
}

// ListSessions handles GET /api/v1/triage
func (h *Handlers) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, Response{Success: true, Data: h.engine.Sessions()})
}

// ListHistory handles GET /api/v1/history
func (h *Handlers) ListHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, Response{
			Success: false,
			Error:   "history is not configured",
		})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid limit",
		})
		return
	}

	records, err := h.history.ListRecent(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to retrieve history",
		})
		return
	}

	out := make([]HistoryRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, toHistoryRecord(rec))
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    HistoryResponse{Records: out, Count: len(out)},
	})
}

// reportHistoryLimit bounds how many rows a report export covers.
const reportHistoryLimit = 1000

// DownloadReport handles GET /api/v1/reports/triage.xlsx
func (h *Handlers) DownloadReport(c *gin.Context) {
	if h.history == nil || h.exporter == nil {
		c.JSON(http.StatusServiceUnavailable, Response{
			Success: false,
			Error:   "reporting is not configured",
		})
		return
	}

	records, err := h.history.ListRecent(c.Request.Context(), reportHistoryLimit)
	if err != nil {
		h.logger.Error("Failed to load history for report", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to retrieve history",
		})
		return
	}

	data, err := h.exporter.Export(c.Request.Context(), records)
	if err != nil {
		h.logger.Error("Failed to export report", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to generate report",
		})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="triage.xlsx"`)
	c.Data(http.StatusOK,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// writeEngineError maps an engine condition to an HTTP status. The session, if
// available, rides along so the client can render the current state.
func (h *Handlers) writeEngineError(c *gin.Context, sess *session.Session, err error) {
	status := http.StatusInternalServerError
	switch hitl.KindOf(err) {
	case session.ErrKindWorkflowNotFound:
		status = http.StatusNotFound
	case session.ErrKindSubmissionInProgress, session.ErrKindAlreadyCompleted:
		status = http.StatusConflict
	case session.ErrKindInvalidDecision, session.ErrKindNotAwaitingDecision:
		status = http.StatusBadRequest
	case session.ErrKindTransportFailure, session.ErrKindNoActionableDecision:
		status = http.StatusBadGateway
	case session.ErrKindContinuationTimeout:
		status = http.StatusGatewayTimeout
	}

	resp := Response{Success: false, Error: err.Error()}
	if sess != nil {
		resp.Data = sess
	}
	c.JSON(status, resp)
}

// toHistoryRecord converts a persisted record to the API shape
func toHistoryRecord(rec *port.TriageRecord) HistoryRecord {
	return HistoryRecord{
		WorkflowID:  rec.WorkflowID,
		MessageID:   rec.MessageID,
		Subject:     rec.Subject,
		Sender:      rec.Sender,
		Category:    rec.Category,
		Confidence:  rec.Confidence,
		Status:      rec.Status,
		ErrorKind:   rec.ErrorKind,
		FinalAction: rec.FinalAction,
		CreatedAt:   rec.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   rec.UpdatedAt.Format(time.RFC3339),
	}
}
