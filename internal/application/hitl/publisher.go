package hitl

import (
	"context"

	"github.com/mstrand/ai-mailtriage/internal/application/dispatcher"
	"github.com/mstrand/ai-mailtriage/internal/domain/event"
	"github.com/mstrand/ai-mailtriage/internal/domain/session"
)

// Payload keys shared by the publisher and its subscribers.
const (
	PayloadSubject       = "subject"
	PayloadSender        = "sender"
	PayloadMessageID     = "message_id"
	PayloadStatus        = "status"
	PayloadCategory      = "category"
	PayloadConfidence    = "confidence"
	PayloadInterruptType = "interrupt_type"
	PayloadDecisions     = "decisions"
	PayloadFinalAction   = "final_action"
	PayloadAutoResponse  = "auto_response"
	PayloadErrorKind     = "error_kind"
	PayloadDecision      = "decision"
	PayloadDecisionText  = "decision_payload"
)

// Publisher is an Observer that republishes engine transitions as domain
// events on the dispatcher, where the history recorder and the notifier pick
// them up. Events go out asynchronously so subscribers never slow down the
// engine's goroutine.
type Publisher struct {
	dispatcher dispatcher.Dispatcher
}

// NewPublisher creates a dispatcher-backed observer.
func NewPublisher(d dispatcher.Dispatcher) *Publisher {
	return &Publisher{dispatcher: d}
}

func (p *Publisher) WorkflowStarted(s *session.Session) {
	p.publish(event.TypeWorkflowStarted, s)
}

func (p *Publisher) ClassificationAvailable(s *session.Session) {
	p.publish(event.TypeEmailClassified, s)
}

func (p *Publisher) DecisionRequired(s *session.Session) {
	p.publish(event.TypeDecisionRequired, s)
}

func (p *Publisher) WorkflowCompleted(s *session.Session) {
	p.publish(event.TypeWorkflowCompleted, s)
}

func (p *Publisher) WorkflowAlreadyCompleted(s *session.Session) {
	p.publish(event.TypeWorkflowDuplicate, s)
}

func (p *Publisher) WorkflowFailed(s *session.Session) {
	p.publish(event.TypeWorkflowFailed, s)
}

// PublishDecisionSubmitted reports a decision accepted for submission. The
// engine observer has no callback for this; the gateway calls it after a
// successful SubmitDecision.
func (p *Publisher) PublishDecisionSubmitted(s *session.Session, decisionToken, payload string) {
	evt := event.NewEvent(event.TypeDecisionSubmitted, s.WorkflowID, sessionPayload(s))
	evt = evt.WithPayload(PayloadDecision, decisionToken)
	if payload != "" {
		evt = evt.WithPayload(PayloadDecisionText, payload)
	}
	p.dispatcher.DispatchAsync(context.Background(), evt)
}

func (p *Publisher) publish(typ event.Type, s *session.Session) {
	p.dispatcher.DispatchAsync(context.Background(), event.NewEvent(typ, s.WorkflowID, sessionPayload(s)))
}

// sessionPayload flattens the session fields subscribers care about.
func sessionPayload(s *session.Session) map[string]interface{} {
	payload := map[string]interface{}{
		PayloadSubject:   s.Email.Subject,
		PayloadSender:    s.Email.Sender,
		PayloadMessageID: s.Email.MessageID,
		PayloadStatus:    s.Status.String(),
	}
	if s.Classification != nil {
		payload[PayloadCategory] = s.Classification.Category.String()
		payload[PayloadConfidence] = s.Classification.Confidence
	}
	if s.Interrupt != nil {
		payload[PayloadInterruptType] = string(s.Interrupt.Type)
		decisions := make([]string, 0, len(s.Interrupt.AvailableDecisions))
		for _, d := range s.Interrupt.AvailableDecisions {
			decisions = append(decisions, d.String())
		}
		payload[PayloadDecisions] = decisions
	}
	if s.Result != nil {
		payload[PayloadFinalAction] = s.Result.FinalAction
		payload[PayloadAutoResponse] = s.Result.AutoResponse
	}
	if s.ErrorKind != "" {
		payload[PayloadErrorKind] = s.ErrorKind.String()
	}
	return payload
}

var _ Observer = (*Publisher)(nil)
