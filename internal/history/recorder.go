// Package history subscribes the triage audit log to engine events. The
// recorder is a dispatcher subscriber: the engine never waits on persistence
// and a recorder failure never fails a workflow.
package history

import (
	"context"

	"go.uber.org/zap"

	"github.com/mstrand/ai-mailtriage/internal/application/dispatcher"
	"github.com/mstrand/ai-mailtriage/internal/application/hitl"
	"github.com/mstrand/ai-mailtriage/internal/application/port"
	"github.com/mstrand/ai-mailtriage/internal/domain/event"
)

// Recorder writes triage events to the history repository.
type Recorder struct {
	repo   port.HistoryRepository
	tx     port.TransactionManager
	logger *zap.Logger
}

// NewRecorder creates a history recorder.
func NewRecorder(repo port.HistoryRepository, tx port.TransactionManager, logger *zap.Logger) *Recorder {
	return &Recorder{repo: repo, tx: tx, logger: logger}
}

// Register subscribes the recorder to every event it persists.
func (r *Recorder) Register(d dispatcher.Dispatcher) {
	d.SubscribeNamed(event.TypeWorkflowStarted, "history-recorder", r.recordSession)
	d.SubscribeNamed(event.TypeEmailClassified, "history-recorder", r.recordSession)
	d.SubscribeNamed(event.TypeDecisionRequired, "history-recorder", r.recordSession)
	d.SubscribeNamed(event.TypeDecisionSubmitted, "history-recorder", r.recordDecision)
	d.SubscribeNamed(event.TypeWorkflowCompleted, "history-recorder", r.recordOutcome)
	d.SubscribeNamed(event.TypeWorkflowDuplicate, "history-recorder", r.recordOutcome)
	d.SubscribeNamed(event.TypeWorkflowFailed, "history-recorder", r.recordOutcome)
}

func (r *Recorder) recordSession(ctx context.Context, evt *event.Event) error {
	err := r.repo.RecordSession(ctx, recordFromEvent(evt))
	if err != nil {
		r.logger.Error("Failed to persist triage session",
			zap.String("workflow_id", evt.WorkflowID),
			zap.Error(err))
	}
	return err
}

func (r *Recorder) recordDecision(ctx context.Context, evt *event.Event) error {
	err := r.repo.RecordDecision(ctx, &port.DecisionRecord{
		WorkflowID: evt.WorkflowID,
		Decision:   evt.GetPayloadString(hitl.PayloadDecision),
		Payload:    evt.GetPayloadString(hitl.PayloadDecisionText),
	})
	if err != nil {
		r.logger.Error("Failed to persist decision",
			zap.String("workflow_id", evt.WorkflowID),
			zap.Error(err))
	}
	return err
}

// recordOutcome settles the history row. The row may not exist yet when the
// workflow completed on its very first response, so the upsert and the
// outcome update run in one transaction.
func (r *Recorder) recordOutcome(ctx context.Context, evt *event.Event) error {
	err := r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := r.repo.RecordSession(ctx, recordFromEvent(evt)); err != nil {
			return err
		}
		return r.repo.UpdateOutcome(ctx,
			evt.WorkflowID,
			evt.GetPayloadString(hitl.PayloadStatus),
			evt.GetPayloadString(hitl.PayloadErrorKind),
			evt.GetPayloadString(hitl.PayloadFinalAction))
	})
	if err != nil {
		r.logger.Error("Failed to persist triage outcome",
			zap.String("workflow_id", evt.WorkflowID),
			zap.Error(err))
	}
	return err
}

func recordFromEvent(evt *event.Event) *port.TriageRecord {
	return &port.TriageRecord{
		WorkflowID: evt.WorkflowID,
		MessageID:  evt.GetPayloadString(hitl.PayloadMessageID),
		Subject:    evt.GetPayloadString(hitl.PayloadSubject),
		Sender:     evt.GetPayloadString(hitl.PayloadSender),
		Category:   evt.GetPayloadString(hitl.PayloadCategory),
		Confidence: evt.GetPayloadFloat(hitl.PayloadConfidence),
		Status:     evt.GetPayloadString(hitl.PayloadStatus),
		ErrorKind:  evt.GetPayloadString(hitl.PayloadErrorKind),
	}
}
