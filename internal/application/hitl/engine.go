// Package hitl implements the human-in-the-loop decision engine that drives
// email triage workflows: starting a workflow for an email, surfacing the
// interrupts the backend pauses on, submitting user decisions, and settling
// the session into a terminal state.
package hitl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mstrand/ai-mailtriage/internal/application/port"
	"github.com/mstrand/ai-mailtriage/internal/domain/decision"
	"github.com/mstrand/ai-mailtriage/internal/domain/email"
	"github.com/mstrand/ai-mailtriage/internal/domain/session"
	"github.com/mstrand/ai-mailtriage/internal/protocol"
)

const (
	defaultPollAttempts = 5
	defaultPollInterval = time.Second
)

// Engine drives triage workflows against a backend Transport and keeps their
// sessions in a Store. Operations on distinct workflow IDs are independent;
// per workflow, at most one decision submission is in flight at a time.
type Engine struct {
	transport port.Transport
	store     *session.Store
	observer  Observer
	logger    *zap.Logger

	pollAttempts int
	pollInterval time.Duration
	sleep        func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	inflight map[string]bool
}

// Option configures the engine
type Option func(*Engine)

// WithObserver installs the presentation observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithPolling overrides the continuation poll bounds.
func WithPolling(attempts int, interval time.Duration) Option {
	return func(e *Engine) {
		if attempts > 0 {
			e.pollAttempts = attempts
		}
		if interval > 0 {
			e.pollInterval = interval
		}
	}
}

// NewEngine creates a triage decision engine.
func NewEngine(transport port.Transport, store *session.Store, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		transport:    transport,
		store:        store,
		observer:     NopObserver{},
		logger:       logger,
		pollAttempts: defaultPollAttempts,
		pollInterval: defaultPollInterval,
		inflight:     make(map[string]bool),
	}
	e.sleep = func(ctx context.Context, d time.Duration) error {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		}
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// StartWorkflow submits an email for triage and drives the resulting workflow
// to its first settled state: awaiting a decision, completed, already
// completed, or failed. The returned session reflects that state.
func (e *Engine) StartWorkflow(ctx context.Context, em email.Context) (*session.Session, error) {
	em.Normalize()
	if err := em.Validate(); err != nil {
		return nil, fmt.Errorf("email context: %w", err)
	}

	resp, err := e.transport.StartWorkflow(ctx, em)
	if err != nil {
		e.logger.Error("Failed to start workflow",
			zap.String("message_id", em.MessageID),
			zap.Error(err))
		return nil, newCondition(session.ErrKindTransportFailure, "", err)
	}
	if resp.WorkflowID == "" {
		return nil, newCondition(session.ErrKindTransportFailure, "", errors.New("backend returned no workflow id"))
	}

	workflowID := resp.WorkflowID
	_, known := e.store.Get(workflowID)
	created, err := e.store.Upsert(workflowID, session.Update{Email: &em})
	if err != nil {
		return nil, err
	}

	if !known {
		e.logger.Info("Workflow started",
			zap.String("workflow_id", workflowID),
			zap.String("subject", em.Subject))
		e.observer.WorkflowStarted(created)
	}

	return e.resolve(ctx, workflowID, resp)
}

// SubmitDecision submits a user decision for a workflow awaiting one. The
// edit decisions never touch the network: picking up the editor parks the
// session in a local editing sub-state and cancelling discards it. Every
// other decision is encoded, submitted, and the backend response drives the
// session to its next pause or terminal state.
func (e *Engine) SubmitDecision(ctx context.Context, workflowID string, d decision.Decision) (*session.Session, error) {
	sess, ok := e.store.Get(workflowID)
	if !ok {
		return nil, newCondition(session.ErrKindWorkflowNotFound, workflowID, nil)
	}

	if d.Token.IsClientLocal() {
		return e.applyLocalDecision(workflowID, sess, d)
	}

	switch {
	case sess.Status == session.StatusAlreadyCompleted:
		return sess, newCondition(session.ErrKindAlreadyCompleted, workflowID, nil)
	case sess.Status != session.StatusAwaitingDecision:
		return sess, newCondition(session.ErrKindNotAwaitingDecision, workflowID,
			fmt.Errorf("session is %s", sess.Status))
	}

	if sess.Interrupt != nil && !sess.Interrupt.Permits(d.Token) {
		return sess, newCondition(session.ErrKindInvalidDecision, workflowID,
			fmt.Errorf("decision %s not offered", d.Token))
	}
	if d.Token.RequiresPayload() && d.Payload == "" {
		return sess, newCondition(session.ErrKindInvalidDecision, workflowID,
			fmt.Errorf("decision %s requires content", d.Token))
	}

	if !e.beginSubmission(workflowID) {
		return sess, newCondition(session.ErrKindSubmissionInProgress, workflowID, nil)
	}
	defer e.endSubmission(workflowID)

	wire := protocol.EncodeDecision(d)
	e.logger.Info("Submitting decision",
		zap.String("workflow_id", workflowID),
		zap.String("decision", wire.Decision))

	resp, err := e.transport.SubmitDecision(ctx, workflowID, wire)
	if err != nil {
		// The decision stays submittable; the session keeps its prior state.
		e.logger.Warn("Decision submission failed",
			zap.String("workflow_id", workflowID),
			zap.Error(err))
		return sess, newCondition(session.ErrKindTransportFailure, workflowID, err)
	}

	// A successful submission leaves the editing sub-state behind.
	if _, err := e.store.Upsert(workflowID, session.Update{ClearEdit: true, ClearErrorKind: true}); err != nil {
		return nil, err
	}

	return e.resolve(ctx, workflowID, resp)
}

// Refresh performs a single status poll and folds the response into the
// session. A workflow already in a terminal state is returned as-is without
// touching the network.
func (e *Engine) Refresh(ctx context.Context, workflowID string) (*session.Session, error) {
	sess, ok := e.store.Get(workflowID)
	if !ok {
		return nil, newCondition(session.ErrKindWorkflowNotFound, workflowID, nil)
	}
	if sess.Status.IsTerminal() {
		return sess, nil
	}

	resp, err := e.transport.PollStatus(ctx, workflowID)
	if err != nil {
		return sess, newCondition(session.ErrKindTransportFailure, workflowID, err)
	}
	return e.apply(workflowID, resp)
}

// Session returns the current session snapshot for a workflow.
func (e *Engine) Session(workflowID string) (*session.Session, bool) {
	return e.store.Get(workflowID)
}

// Sessions returns all tracked sessions, most recently updated first.
func (e *Engine) Sessions() []*session.Session {
	return e.store.List()
}

// resolve applies a backend response and, while the workflow reports
// processing, holds the session in the poll phase until the workflow pauses
// or the poll attempts run out.
func (e *Engine) resolve(ctx context.Context, workflowID string, resp *protocol.WorkflowResponse) (*session.Session, error) {
	if protocol.DecodeStatus(resp.Status) == session.StatusProcessing &&
		!alreadyCompletedResponse(resp) && !hasActionableInterrupt(resp) {
		hadClassification := e.classified(workflowID)
		up := updateFrom(resp)
		up.Status = session.StatusProcessing
		s, err := e.store.Upsert(workflowID, up)
		if errors.Is(err, session.ErrTerminalStateConflict) {
			// A stale processing response lost to a settled session.
			return s, nil
		}
		if err != nil {
			return nil, err
		}
		e.notifyClassification(hadClassification, s)

		polled, err := e.pollUntilPaused(ctx, workflowID)
		if err != nil {
			var cond *Condition
			if errors.As(err, &cond) {
				return e.failWorkflow(workflowID, cond)
			}
			// Context cancellation: leave the session where it is.
			return nil, err
		}
		resp = polled
	}

	return e.apply(workflowID, resp)
}

// apply folds a settled backend response into the session and fires the
// matching observer callback.
func (e *Engine) apply(workflowID string, resp *protocol.WorkflowResponse) (*session.Session, error) {
	if alreadyCompletedResponse(resp) {
		return e.markAlreadyCompleted(workflowID, resp)
	}

	status := protocol.DecodeStatus(resp.Status)
	if status == session.StatusProcessing && hasActionableInterrupt(resp) {
		// The backend paused the workflow before updating its status field.
		status = session.StatusAwaitingDecision
	}

	if resp.Error != "" && status != session.StatusError {
		// The backend rejected the operation without failing the workflow.
		sess, _ := e.store.Get(workflowID)
		return sess, newCondition(session.ErrKindInvalidDecision, workflowID, errors.New(resp.Error))
	}

	hadClassification := e.classified(workflowID)
	up := updateFrom(resp)

	switch status {
	case session.StatusAwaitingDecision:
		in := protocol.DecodeInterrupt(resp.InterruptData)
		if in == nil || len(in.AvailableDecisions) == 0 {
			// Nothing the user could choose; the workflow cannot progress.
			cond := newCondition(session.ErrKindNoActionableDecision, workflowID, nil)
			if in != nil {
				if _, err := e.store.Upsert(workflowID, session.Update{Classification: up.Classification, Interrupt: in}); err != nil {
					return nil, err
				}
			}
			return e.failWorkflow(workflowID, cond)
		}
		up.Status = session.StatusAwaitingDecision
		up.Interrupt = in
		up.ClearErrorKind = true
		s, err := e.store.Upsert(workflowID, up)
		if errors.Is(err, session.ErrTerminalStateConflict) {
			return s, nil
		}
		if err != nil {
			return nil, err
		}
		e.logger.Info("Decision required",
			zap.String("workflow_id", workflowID),
			zap.String("interrupt", string(in.Type)))
		e.notifyClassification(hadClassification, s)
		e.observer.DecisionRequired(s)
		return s, nil

	case session.StatusCompleted:
		up.Status = session.StatusCompleted
		up.ClearInterrupt = true
		up.ClearEdit = true
		up.ClearErrorKind = true
		s, err := e.store.Upsert(workflowID, up)
		if errors.Is(err, session.ErrTerminalStateConflict) {
			return s, nil
		}
		if err != nil {
			return nil, err
		}
		e.logger.Info("Workflow completed", zap.String("workflow_id", workflowID))
		e.notifyClassification(hadClassification, s)
		e.observer.WorkflowCompleted(s)
		return s, nil

	case session.StatusError:
		var cause error
		if resp.Error != "" {
			cause = errors.New(resp.Error)
		}
		return e.failWorkflow(workflowID, newCondition(session.ErrKindTransportFailure, workflowID, cause))

	default:
		// Still processing: record what arrived and leave the session alone.
		up.Status = session.StatusProcessing
		s, err := e.store.Upsert(workflowID, up)
		if errors.Is(err, session.ErrTerminalStateConflict) {
			return s, nil
		}
		if err != nil {
			return nil, err
		}
		e.notifyClassification(hadClassification, s)
		return s, nil
	}
}

// classified reports whether the session already carries a classification.
func (e *Engine) classified(workflowID string) bool {
	s, ok := e.store.Get(workflowID)
	return ok && s.Classification != nil
}

// notifyClassification fires ClassificationAvailable on the first transition
// from no classification to one.
func (e *Engine) notifyClassification(had bool, s *session.Session) {
	if !had && s.Classification != nil {
		e.observer.ClassificationAvailable(s)
	}
}

// applyLocalDecision handles the decisions that never reach the backend.
func (e *Engine) applyLocalDecision(workflowID string, sess *session.Session, d decision.Decision) (*session.Session, error) {
	if sess.Status != session.StatusAwaitingDecision {
		return sess, newCondition(session.ErrKindNotAwaitingDecision, workflowID,
			fmt.Errorf("session is %s", sess.Status))
	}

	switch d.Token {
	case decision.TokenEditReply:
		if sess.Interrupt != nil && !sess.Interrupt.Permits(d.Token) {
			return sess, newCondition(session.ErrKindInvalidDecision, workflowID,
				fmt.Errorf("decision %s not offered", d.Token))
		}
		edit := &session.EditState{Draft: d.Payload, StartedAt: time.Now()}
		if edit.Draft == "" && sess.Classification != nil {
			edit.Draft = sess.Classification.ProposedReply
		}
		if sess.Edit != nil {
			edit.StartedAt = sess.Edit.StartedAt
		}
		s, err := e.store.Upsert(workflowID, session.Update{Edit: edit})
		if err != nil {
			return nil, err
		}
		e.logger.Debug("Editing reply", zap.String("workflow_id", workflowID))
		return s, nil

	case decision.TokenCancelEdit:
		if sess.Edit == nil {
			return sess, newCondition(session.ErrKindInvalidDecision, workflowID,
				errors.New("no edit in progress"))
		}
		s, err := e.store.Upsert(workflowID, session.Update{ClearEdit: true})
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	return sess, newCondition(session.ErrKindInvalidDecision, workflowID,
		fmt.Errorf("unhandled local decision %s", d.Token))
}

// pollUntilPaused polls the workflow status at a fixed interval for a bounded
// number of attempts, until the workflow leaves the processing status. Poll
// failures consume attempts. A workflow still processing after the final
// attempt is a continuation timeout.
func (e *Engine) pollUntilPaused(ctx context.Context, workflowID string) (*protocol.WorkflowResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= e.pollAttempts; attempt++ {
		if err := e.sleep(ctx, e.pollInterval); err != nil {
			return nil, err
		}

		resp, err := e.transport.PollStatus(ctx, workflowID)
		if err != nil {
			lastErr = err
			e.logger.Warn("Status poll failed",
				zap.String("workflow_id", workflowID),
				zap.Int("attempt", attempt),
				zap.Error(err))
			continue
		}

		if protocol.DecodeStatus(resp.Status) != session.StatusProcessing ||
			alreadyCompletedResponse(resp) || hasActionableInterrupt(resp) {
			return resp, nil
		}

		e.logger.Debug("Workflow still processing",
			zap.String("workflow_id", workflowID),
			zap.Int("attempt", attempt))
	}

	return nil, newCondition(session.ErrKindContinuationTimeout, workflowID, lastErr)
}

// markAlreadyCompleted settles a session whose workflow finished elsewhere.
func (e *Engine) markAlreadyCompleted(workflowID string, resp *protocol.WorkflowResponse) (*session.Session, error) {
	up := updateFrom(resp)
	up.Status = session.StatusAlreadyCompleted
	up.ClearEdit = true
	if in := protocol.DecodeInterrupt(resp.InterruptData); in != nil && in.Type == session.InterruptAlreadyCompleted {
		up.Interrupt = in
	}

	s, err := e.store.Upsert(workflowID, up)
	if errors.Is(err, session.ErrTerminalStateConflict) {
		// The session already settled here; its local terminal state wins.
		return s, nil
	}
	if err != nil {
		return s, err
	}

	e.logger.Info("Workflow already completed elsewhere", zap.String("workflow_id", workflowID))
	e.observer.WorkflowAlreadyCompleted(s)
	return s, nil
}

// failWorkflow moves the session to the error status and reports the
// condition to the caller.
func (e *Engine) failWorkflow(workflowID string, cond *Condition) (*session.Session, error) {
	s, err := e.store.Upsert(workflowID, session.Update{
		Status:    session.StatusError,
		ErrorKind: cond.Kind,
	})
	if err != nil {
		// The session settled terminally in the meantime; keep that state and
		// still surface the original condition.
		return s, cond
	}

	e.logger.Warn("Workflow failed",
		zap.String("workflow_id", workflowID),
		zap.String("kind", cond.Kind.String()),
		zap.Error(cond.Err))
	e.observer.WorkflowFailed(s)
	return s, cond
}

func (e *Engine) beginSubmission(workflowID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inflight[workflowID] {
		return false
	}
	e.inflight[workflowID] = true
	return true
}

func (e *Engine) endSubmission(workflowID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, workflowID)
}

// updateFrom lifts the always-safe parts of a response into a session update.
func updateFrom(resp *protocol.WorkflowResponse) session.Update {
	return session.Update{
		Classification: protocol.DecodeClassification(resp.Classification),
		Result:         protocol.DecodeResult(resp),
	}
}

// hasActionableInterrupt reports whether the response carries interrupt data
// the user can act on. Some backends pause a workflow and attach the interrupt
// before the status field catches up.
func hasActionableInterrupt(resp *protocol.WorkflowResponse) bool {
	if resp.InterruptData == nil {
		return false
	}
	in := protocol.DecodeInterrupt(resp.InterruptData)
	return in != nil && len(in.AvailableDecisions) > 0
}

// alreadyCompletedResponse reports whether the response says the workflow was
// finished from somewhere else, in any of the forms the backend uses.
func alreadyCompletedResponse(resp *protocol.WorkflowResponse) bool {
	if protocol.DecodeStatus(resp.Status) == session.StatusAlreadyCompleted {
		return true
	}
	if resp.InterruptData != nil {
		if in := protocol.DecodeInterrupt(resp.InterruptData); in != nil && in.Type == session.InterruptAlreadyCompleted {
			return true
		}
	}
	return strings.Contains(strings.ToLower(resp.Error), "already completed")
}
