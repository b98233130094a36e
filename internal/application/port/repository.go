package port

import (
	"context"
	"time"
)

// TriageRecord is a persisted summary of one triage workflow
type TriageRecord struct {
	WorkflowID  string
	MessageID   string
	Subject     string
	Sender      string
	Category    string
	Confidence  float64
	Status      string
	ErrorKind   string
	FinalAction string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DecisionRecord is a persisted record of one submitted decision
type DecisionRecord struct {
	ID          int64
	WorkflowID  string
	Decision    string
	Payload     string
	SubmittedAt time.Time
}

// HistoryRepository defines persistence operations for the triage audit log
type HistoryRepository interface {
	// RecordSession inserts a new triage record or refreshes an existing one
	RecordSession(ctx context.Context, rec *TriageRecord) error

	// UpdateOutcome records the terminal status of a workflow
	UpdateOutcome(ctx context.Context, workflowID string, status, errorKind, finalAction string) error

	// RecordDecision appends a submitted decision to the decision log
	RecordDecision(ctx context.Context, rec *DecisionRecord) error

	// GetByWorkflowID retrieves one triage record
	GetByWorkflowID(ctx context.Context, workflowID string) (*TriageRecord, error)

	// ListRecent retrieves the most recently updated triage records
	ListRecent(ctx context.Context, limit int) ([]*TriageRecord, error)

	// ListDecisions retrieves all decisions submitted for a workflow in order
	ListDecisions(ctx context.Context, workflowID string) ([]*DecisionRecord, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
