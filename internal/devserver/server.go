package devserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mstrand/ai-mailtriage/internal/application/port"
	"github.com/mstrand/ai-mailtriage/internal/domain/decision"
	"github.com/mstrand/ai-mailtriage/internal/domain/email"
	"github.com/mstrand/ai-mailtriage/internal/protocol"
)

// ServerConfig holds the devserver HTTP configuration.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig returns the default devserver configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         9091,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Server is the reference backend HTTP server.
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	store      *stateStore
	worker     *ClassifyWorker
	logger     *zap.Logger
}

// NewServer creates a devserver around the given classifier.
func NewServer(config ServerConfig, classifier port.EmailClassifier, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	store := newStateStore()
	s := &Server{
		config: config,
		router: gin.New(),
		store:  store,
		worker: NewClassifyWorker(store, classifier, logger),
		logger: logger,
	}

	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
	s.setupRoutes()

	return s
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api/v1")
	{
		api.POST("/workflows/triage", s.handleTriage)
		api.POST("/workflows/:id/decision", s.handleDecision)
		api.GET("/workflows/:id/status", s.handleStatus)
	}
}

// Start runs the worker pool and the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if err := s.worker.Start(ctx); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting devserver", zap.String("address", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("Devserver error", zap.Error(err))
		return err
	}
}

// Stop gracefully shuts down the HTTP server and the worker pool.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("Devserver shutdown error", zap.Error(err))
			return err
		}
	}
	return s.worker.Stop()
}

// Router exposes the gin router for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Worker exposes the classify worker for tests and tuning.
func (s *Server) Worker() *ClassifyWorker {
	return s.worker
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"workflows": s.store.count(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleTriage(c *gin.Context) {
	var req protocol.StartWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, &protocol.WorkflowResponse{Error: "invalid request body"})
		return
	}

	em := email.Context{
		Subject:   req.Subject,
		Sender:    req.Sender,
		Body:      req.Body,
		MessageID: req.MessageID,
	}
	em.Normalize()
	if err := em.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, &protocol.WorkflowResponse{Error: err.Error()})
		return
	}

	st, created := s.store.create(em)
	if !created {
		// The message was seen before. A finished workflow reports already
		// completed; an in-flight one is simply re-attached.
		if st.Status == statusCompleted {
			s.logger.Info("Duplicate triage request for completed workflow",
				zap.String("workflow_id", st.ID),
				zap.String("message_id", em.MessageID))
			c.JSON(http.StatusOK, alreadyCompletedWire(st))
			return
		}
		c.JSON(http.StatusOK, wireResponse(st))
		return
	}

	if err := s.worker.Enqueue(classifyJob{workflowID: st.ID}); err != nil {
		s.logger.Error("Failed to enqueue classification",
			zap.String("workflow_id", st.ID),
			zap.Error(err))
		st, _ = s.store.mutate(st.ID, func(st *workflowState) {
			st.Status = statusError
			st.Error = "classification queue full"
		})
		c.JSON(http.StatusServiceUnavailable, wireResponse(st))
		return
	}

	s.logger.Info("Workflow accepted",
		zap.String("workflow_id", st.ID),
		zap.String("subject", em.Subject))
	c.JSON(http.StatusOK, wireResponse(st))
}

func (s *Server) handleStatus(c *gin.Context) {
	st, ok := s.store.get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, &protocol.WorkflowResponse{Error: "workflow not found"})
		return
	}
	c.JSON(http.StatusOK, wireResponse(st))
}

// decisionOutcome carries the result of applying a decision under the store
// lock out to the handler.
type decisionOutcome struct {
	status   int
	response *protocol.WorkflowResponse
	enqueue  *classifyJob
}

func (s *Server) handleDecision(c *gin.Context) {
	var wire protocol.WireDecision
	if err := c.ShouldBindJSON(&wire); err != nil {
		c.JSON(http.StatusBadRequest, &protocol.WorkflowResponse{Error: "invalid request body"})
		return
	}

	id := c.Param("id")
	if _, ok := s.store.get(id); !ok {
		c.JSON(http.StatusNotFound, &protocol.WorkflowResponse{Error: "workflow not found"})
		return
	}

	var out decisionOutcome
	st, _ := s.store.mutate(id, func(st *workflowState) {
		out = applyDecision(st, wire)
	})

	if out.enqueue != nil {
		if err := s.worker.Enqueue(*out.enqueue); err != nil {
			s.logger.Error("Failed to enqueue continuation",
				zap.String("workflow_id", id),
				zap.Error(err))
			st, _ = s.store.mutate(id, func(st *workflowState) {
				st.Status = statusError
				st.Error = "classification queue full"
			})
			c.JSON(http.StatusServiceUnavailable, wireResponse(st))
			return
		}
	}

	s.logger.Info("Decision applied",
		zap.String("workflow_id", id),
		zap.String("decision", wire.Decision),
		zap.String("status", st.Status))
	c.JSON(out.status, out.response)
}

// applyDecision validates and applies a wire decision to the live record. It
// runs under the store lock; the returned outcome tells the handler what to
// respond and whether to enqueue a continuation.
func applyDecision(st *workflowState, wire protocol.WireDecision) decisionOutcome {
	if st.Status == statusCompleted || st.Status == statusAlreadyCompleted {
		return decisionOutcome{status: http.StatusConflict, response: alreadyCompletedWire(st)}
	}
	if st.Status != statusAwaitingDecision {
		resp := wireResponse(st)
		resp.Error = fmt.Sprintf("workflow is %s, not awaiting a decision", st.Status)
		return decisionOutcome{status: http.StatusConflict, response: resp}
	}

	d := protocol.DecodeDecision(wire)
	if !permitted(st.Interrupt, d.Token) {
		resp := wireResponse(st)
		resp.Error = fmt.Sprintf("decision %q not available", d.Token)
		return decisionOutcome{status: http.StatusBadRequest, response: resp}
	}

	switch d.Token {
	case decision.TokenApproveSend:
		reply := d.Payload
		if reply == "" && st.Classification != nil {
			reply = st.Classification.ProposedReply
		}
		complete(st, "sent_reply", reply)

	case decision.TokenApproveIgnore:
		complete(st, "ignored", "")

	case decision.TokenConvertToIgnore:
		complete(st, "converted_to_ignore", "")

	case decision.TokenSendEdited:
		if d.Payload == "" {
			resp := wireResponse(st)
			resp.Error = "send_edited requires the edited text"
			return decisionOutcome{status: http.StatusBadRequest, response: resp}
		}
		complete(st, "sent_edited_reply", d.Payload)

	case decision.TokenCustomReply:
		if d.Payload == "" {
			resp := wireResponse(st)
			resp.Error = "custom_reply requires the reply text"
			return decisionOutcome{status: http.StatusBadRequest, response: resp}
		}
		complete(st, "sent_custom_reply", d.Payload)

	case decision.TokenProvideAnswers:
		if d.Payload == "" {
			resp := wireResponse(st)
			resp.Error = "provide_answers requires the answers"
			return decisionOutcome{status: http.StatusBadRequest, response: resp}
		}
		st.Status = statusProcessing
		st.Interrupt = nil
		st.Answers = append(st.Answers, d.Payload)
		return decisionOutcome{
			status:   http.StatusOK,
			response: wireResponse(st),
			enqueue:  &classifyJob{workflowID: st.ID, answers: d.Payload},
		}

	case decision.TokenProcessInstead:
		st.Status = statusProcessing
		st.Interrupt = nil
		return decisionOutcome{
			status:   http.StatusOK,
			response: wireResponse(st),
			enqueue:  &classifyJob{workflowID: st.ID, forceReply: true},
		}

	default:
		resp := wireResponse(st)
		resp.Error = fmt.Sprintf("decision %q is handled client-side", d.Token)
		return decisionOutcome{status: http.StatusBadRequest, response: resp}
	}

	return decisionOutcome{status: http.StatusOK, response: wireResponse(st)}
}

// permitted checks a decision against the offered set. The edit flow resolves
// through send_edited, which stands in for the offered edit_reply.
func permitted(in *protocol.InterruptPayload, tok decision.Token) bool {
	if in == nil {
		return false
	}
	want := string(tok)
	if tok == decision.TokenSendEdited {
		want = string(decision.TokenEditReply)
	}
	for _, raw := range in.AvailableDecisions {
		if raw == want {
			return true
		}
	}
	return false
}

// complete moves the record to its terminal result.
func complete(st *workflowState, finalAction, reply string) {
	st.Status = statusCompleted
	st.CompletedAt = time.Now()
	st.Interrupt = nil
	st.Result = &protocol.ResultPayload{
		FinalAction:       finalAction,
		AutoResponse:      reply,
		QuestionsAnswered: len(st.Answers) > 0,
	}
}

// wireResponse renders the record in its wire form.
func wireResponse(st *workflowState) *protocol.WorkflowResponse {
	resp := &protocol.WorkflowResponse{
		WorkflowID: st.ID,
		Status:     st.Status,
		Error:      st.Error,
	}
	if st.Classification != nil {
		resp.Classification = &protocol.ClassificationPayload{
			Type:         protocol.EncodeCategory(st.Classification.Category),
			Confidence:   st.Classification.Confidence,
			Reasoning:    st.Classification.Reasoning,
			AutoResponse: st.Classification.ProposedReply,
			Questions:    st.Classification.ClarifyingQuestions,
		}
	}
	if st.Interrupt != nil {
		in := *st.Interrupt
		in.AvailableDecisions = append([]string(nil), st.Interrupt.AvailableDecisions...)
		resp.InterruptData = &in
	}
	if st.Result != nil {
		r := *st.Result
		resp.Result = &r
	}
	return resp
}

// alreadyCompletedWire renders the duplicate-workflow response with the
// completion metadata of the finished record.
func alreadyCompletedWire(st *workflowState) *protocol.WorkflowResponse {
	resp := wireResponse(st)
	resp.Status = statusAlreadyCompleted
	resp.Error = "workflow already completed"

	in := &protocol.InterruptPayload{Type: "already_completed"}
	if !st.CompletedAt.IsZero() {
		in.CompletionDate = st.CompletedAt.UTC().Format(time.RFC3339)
	}
	if st.Classification != nil {
		in.FinalClassification = protocol.EncodeCategory(st.Classification.Category)
	}
	if st.Result != nil {
		in.FinalReply = st.Result.AutoResponse
	}
	resp.InterruptData = in
	return resp
}
