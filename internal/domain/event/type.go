package event

// Type identifies the type of domain event
type Type string

const (
	TypeWorkflowStarted   Type = "workflow.started"
	TypeEmailClassified   Type = "workflow.classified"
	TypeDecisionRequired  Type = "decision.required"
	TypeDecisionSubmitted Type = "decision.submitted"
	TypeWorkflowCompleted Type = "workflow.completed"
	TypeWorkflowDuplicate Type = "workflow.already_completed"
	TypeWorkflowFailed    Type = "workflow.failed"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeWorkflowStarted,
		TypeEmailClassified,
		TypeDecisionRequired,
		TypeDecisionSubmitted,
		TypeWorkflowCompleted,
		TypeWorkflowDuplicate,
		TypeWorkflowFailed:
		return true
	default:
		return false
	}
}
