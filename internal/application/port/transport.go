package port

import (
	"context"

	"github.com/mstrand/ai-mailtriage/internal/domain/email"
	"github.com/mstrand/ai-mailtriage/internal/protocol"
)

// Transport defines the backend workflow operations the decision engine
// drives. Implementations own transport-level concerns (endpoints, retries
// at the network layer, authentication); the engine never sees a URL.
type Transport interface {
	// StartWorkflow submits an email for triage and returns the initial
	// workflow state.
	StartWorkflow(ctx context.Context, email email.Context) (*protocol.WorkflowResponse, error)

	// SubmitDecision submits an encoded decision for a pending workflow.
	SubmitDecision(ctx context.Context, workflowID string, wire protocol.WireDecision) (*protocol.WorkflowResponse, error)

	// PollStatus fetches the current state of a workflow.
	PollStatus(ctx context.Context, workflowID string) (*protocol.WorkflowResponse, error)
}
