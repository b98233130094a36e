package session

import (
	"time"

	"github.com/mstrand/ai-mailtriage/internal/domain/decision"
	"github.com/mstrand/ai-mailtriage/internal/domain/email"
)

// Status represents the client-side lifecycle state of a workflow session.
type Status string

const (
	StatusProcessing       Status = "processing"
	StatusAwaitingDecision Status = "awaitingDecision"
	StatusCompleted        Status = "completed"
	StatusError            Status = "error"
	StatusAlreadyCompleted Status = "alreadyCompleted"
)

var validStatuses = map[Status]bool{
	StatusProcessing:       true,
	StatusAwaitingDecision: true,
	StatusCompleted:        true,
	StatusError:            true,
	StatusAlreadyCompleted: true,
}

var terminalStatuses = map[Status]bool{
	StatusCompleted:        true,
	StatusError:            true,
	StatusAlreadyCompleted: true,
}

// IsValid returns true if the status is one of the defined constants.
func (s Status) IsValid() bool {
	return validStatuses[s]
}

// IsTerminal returns true if no further transitions are allowed from the
// status. A terminal session may only be re-confirmed, never regressed.
func (s Status) IsTerminal() bool {
	return terminalStatuses[s]
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Category is the normalized classification category for an email.
type Category string

const (
	CategoryIgnore            Category = "ignore"
	CategoryAutoReply         Category = "autoReply"
	CategoryInformationNeeded Category = "informationNeeded"
)

// String returns the string representation of the category.
func (c Category) String() string {
	return string(c)
}

// InterruptType identifies why the backend paused a workflow for human input.
type InterruptType string

const (
	InterruptIgnoreApproval    InterruptType = "ignoreApproval"
	InterruptAutoReplyApproval InterruptType = "autoReplyApproval"
	InterruptInformationNeeded InterruptType = "informationNeeded"
	InterruptAlreadyCompleted  InterruptType = "alreadyCompleted"

	// InterruptUnknown marks an interrupt whose type the codec did not
	// recognize. Such interrupts always carry an empty decision list.
	InterruptUnknown InterruptType = "unknown"
)

// ErrorKind classifies a failed or rejected engine operation. Kinds are
// emitted to the observer alongside the session and recorded on the session
// when it transitions to StatusError.
type ErrorKind string

const (
	// ErrKindTransportFailure covers network and timeout failures reaching
	// the backend. The session is left in its prior state; the operation may
	// be retried.
	ErrKindTransportFailure ErrorKind = "transportFailure"

	// ErrKindNoActionableDecision marks an interrupt the client cannot act
	// on (unrecognized type, empty decision list).
	ErrKindNoActionableDecision ErrorKind = "noActionableDecision"

	// ErrKindContinuationTimeout marks a poll phase that exhausted its
	// attempts without a decisive backend response.
	ErrKindContinuationTimeout ErrorKind = "continuationTimeout"

	// ErrKindAlreadyCompleted marks the race where the workflow finished
	// outside this session before the decision arrived.
	ErrKindAlreadyCompleted ErrorKind = "alreadyCompleted"

	// ErrKindSubmissionInProgress rejects a decision submitted while another
	// submission for the same workflow is still in flight.
	ErrKindSubmissionInProgress ErrorKind = "submissionInProgress"

	// ErrKindInvalidDecision rejects a decision the engine cannot encode or
	// apply, such as cancel_edit with no active edit.
	ErrKindInvalidDecision ErrorKind = "invalidDecision"

	// ErrKindNotAwaitingDecision rejects a submission against a session that
	// is not awaiting a decision.
	ErrKindNotAwaitingDecision ErrorKind = "notAwaitingDecision"

	// ErrKindWorkflowNotFound rejects an operation on an unknown workflow ID.
	ErrKindWorkflowNotFound ErrorKind = "workflowNotFound"
)

// Retryable reports whether the same operation may be retried unchanged.
func (k ErrorKind) Retryable() bool {
	return k == ErrKindTransportFailure
}

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	return string(k)
}

// Classification is the normalized AI classification of an email.
type Classification struct {
	Category            Category `json:"category"`
	Confidence          float64  `json:"confidence"`
	Reasoning           string   `json:"reasoning,omitempty"`
	ProposedReply       string   `json:"proposedReply,omitempty"`
	ClarifyingQuestions []string `json:"clarifyingQuestions,omitempty"`
}

// Interrupt is the normalized backend signal that human input is required.
// Completion metadata is populated only for already-completed workflows.
type Interrupt struct {
	Type               InterruptType    `json:"type"`
	AvailableDecisions []decision.Token `json:"availableDecisions"`
	CompletionDate     *time.Time       `json:"completionDate,omitempty"`
	FinalClassification string          `json:"finalClassification,omitempty"`
	FinalReply          string          `json:"finalReply,omitempty"`
}

// Permits reports whether the backend currently accepts the given decision.
// The backend advertises edit_reply for the edit flow; the send_edited that
// resolves it stands in for that offer.
func (i *Interrupt) Permits(tok decision.Token) bool {
	want := tok
	if tok == decision.TokenSendEdited {
		want = decision.TokenEditReply
	}
	for _, d := range i.AvailableDecisions {
		if d == want {
			return true
		}
	}
	return false
}

// Result is the terminal outcome of a completed workflow.
type Result struct {
	FinalAction       string `json:"finalAction,omitempty"`
	AutoResponse      string `json:"autoResponse,omitempty"`
	QuestionsAnswered bool   `json:"questionsAnswered,omitempty"`
}

// EditState is the client-local edit buffer for a proposed reply. It exists
// only between an edit_reply decision and the send_edited or cancel_edit
// that resolves it; the backend never sees it.
type EditState struct {
	Draft     string    `json:"draft"`
	StartedAt time.Time `json:"startedAt"`
}

// Session is the client-side view of one server-tracked workflow instance.
type Session struct {
	WorkflowID     string          `json:"workflowId"`
	Status         Status          `json:"status"`
	Email          email.Context   `json:"email"`
	Classification *Classification `json:"classification,omitempty"`
	Interrupt      *Interrupt      `json:"interrupt,omitempty"`
	Result         *Result         `json:"result,omitempty"`
	Edit           *EditState      `json:"edit,omitempty"`
	ErrorKind      ErrorKind       `json:"errorKind,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Editing reports whether the session has an active edit buffer.
func (s *Session) Editing() bool {
	return s.Edit != nil
}

// Clone returns a deep copy of the session. Store reads hand out clones so
// callers never observe concurrent mutation.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}

	out := *s

	if s.Classification != nil {
		c := *s.Classification
		c.ClarifyingQuestions = append([]string(nil), s.Classification.ClarifyingQuestions...)
		out.Classification = &c
	}
	if s.Interrupt != nil {
		i := *s.Interrupt
		i.AvailableDecisions = append([]decision.Token(nil), s.Interrupt.AvailableDecisions...)
		if s.Interrupt.CompletionDate != nil {
			d := *s.Interrupt.CompletionDate
			i.CompletionDate = &d
		}
		out.Interrupt = &i
	}
	if s.Result != nil {
		r := *s.Result
		out.Result = &r
	}
	if s.Edit != nil {
		e := *s.Edit
		out.Edit = &e
	}

	return &out
}
