package hitl

import (
	"errors"
	"fmt"

	"github.com/mstrand/ai-mailtriage/internal/domain/session"
)

// Condition is the engine's error type. Every failed operation returns a
// Condition whose Kind tells the caller what went wrong and whether retrying
// the same operation can help.
type Condition struct {
	Kind       session.ErrorKind
	WorkflowID string
	Err        error
}

func (c *Condition) Error() string {
	if c.Err != nil {
		return fmt.Sprintf("workflow %s: %s: %v", c.WorkflowID, c.Kind, c.Err)
	}
	return fmt.Sprintf("workflow %s: %s", c.WorkflowID, c.Kind)
}

// Unwrap returns the underlying cause, if any.
func (c *Condition) Unwrap() error {
	return c.Err
}

// Retryable reports whether retrying the same operation can succeed.
func (c *Condition) Retryable() bool {
	return c.Kind.Retryable()
}

func newCondition(kind session.ErrorKind, workflowID string, err error) *Condition {
	return &Condition{Kind: kind, WorkflowID: workflowID, Err: err}
}

// KindOf extracts the error kind from an engine error. Errors from outside
// the engine yield the empty kind.
func KindOf(err error) session.ErrorKind {
	var c *Condition
	if errors.As(err, &c) {
		return c.Kind
	}
	return ""
}
