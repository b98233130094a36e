package hitl

import "github.com/mstrand/ai-mailtriage/internal/domain/session"

// Observer receives presentation callbacks as workflows move through the
// triage protocol. Each callback gets a snapshot of the session after the
// transition. Callbacks run on the goroutine driving the operation, so
// implementations must return quickly and must not call back into the engine.
type Observer interface {
	// WorkflowStarted fires once the backend has assigned a workflow ID.
	WorkflowStarted(sess *session.Session)

	// ClassificationAvailable fires the first time a classification arrives
	// for a session, which may be before the workflow pauses.
	ClassificationAvailable(sess *session.Session)

	// DecisionRequired fires whenever the workflow pauses on an interrupt,
	// including continuation interrupts raised after a submitted decision.
	DecisionRequired(sess *session.Session)

	// WorkflowCompleted fires when the workflow reaches its final result.
	WorkflowCompleted(sess *session.Session)

	// WorkflowAlreadyCompleted fires when the backend reports that the
	// workflow was finished from somewhere else.
	WorkflowAlreadyCompleted(sess *session.Session)

	// WorkflowFailed fires when the workflow enters the error status.
	WorkflowFailed(sess *session.Session)
}

// NopObserver ignores every callback.
type NopObserver struct{}

func (NopObserver) WorkflowStarted(*session.Session)          {}
func (NopObserver) ClassificationAvailable(*session.Session)  {}
func (NopObserver) DecisionRequired(*session.Session)         {}
func (NopObserver) WorkflowCompleted(*session.Session)        {}
func (NopObserver) WorkflowAlreadyCompleted(*session.Session) {}
func (NopObserver) WorkflowFailed(*session.Session)           {}
