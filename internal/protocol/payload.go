// Package protocol implements the wire protocol spoken between the triage
// client and the workflow backend: the decision encodings submitted upstream
// and the normalization of backend response payloads into session state.
//
// The backend labels several fields inconsistently across versions (the
// category may arrive as "type" or "classification", the proposed content as
// "auto_response" or "proposed_reply", clarifying questions as "questions" or
// "clarifying_questions"). All variant handling lives here; nothing outside
// this package inspects raw payload fields.
package protocol

import "time"

// StartWorkflowRequest is the body posted to start a triage workflow.
type StartWorkflowRequest struct {
	Subject   string `json:"subject"`
	Sender    string `json:"sender"`
	Body      string `json:"body"`
	MessageID string `json:"message_id,omitempty"`
}

// WireDecision is the submitted form of a user decision. Bare and
// colon-delimited decisions travel in Decision alone; the structured envelope
// for approve-with-content decisions additionally sets ProposedReply. The
// field names "decision" and "proposedReply" are a backend contract and must
// not change.
type WireDecision struct {
	Decision      string `json:"decision"`
	ProposedReply string `json:"proposedReply,omitempty"`
}

// IsEnvelope reports whether the decision uses the structured envelope form.
func (w WireDecision) IsEnvelope() bool {
	return w.ProposedReply != ""
}

// ClassificationPayload is the raw classification block of a backend
// response, with both field-name variants mapped.
type ClassificationPayload struct {
	Type                string   `json:"type,omitempty"`
	Classification      string   `json:"classification,omitempty"`
	Confidence          float64  `json:"confidence"`
	Reasoning           string   `json:"reasoning,omitempty"`
	AutoResponse        string   `json:"auto_response,omitempty"`
	ProposedReply       string   `json:"proposed_reply,omitempty"`
	Questions           []string `json:"questions,omitempty"`
	ClarifyingQuestions []string `json:"clarifying_questions,omitempty"`
}

// InterruptPayload is the raw interrupt block of a backend response. The
// completion fields are populated only for already-completed workflows.
type InterruptPayload struct {
	Type                string   `json:"type"`
	AvailableDecisions  []string `json:"available_decisions,omitempty"`
	CompletionDate      string   `json:"completion_date,omitempty"`
	CompletedAt         string   `json:"completed_at,omitempty"`
	FinalClassification string   `json:"final_classification,omitempty"`
	FinalReply          string   `json:"final_reply,omitempty"`
}

// ResultPayload is the raw terminal outcome of a completed workflow.
type ResultPayload struct {
	FinalAction       string `json:"final_action,omitempty"`
	AutoResponse      string `json:"auto_response,omitempty"`
	QuestionsAnswered bool   `json:"questions_answered,omitempty"`
}

// WorkflowResponse is the backend response to start, decision and status
// calls. Status responses carry the result in Result or, from older backend
// versions, FinalResult.
type WorkflowResponse struct {
	WorkflowID     string                 `json:"workflow_id"`
	Status         string                 `json:"status"`
	Classification *ClassificationPayload `json:"classification,omitempty"`
	InterruptData  *InterruptPayload      `json:"interrupt_data,omitempty"`
	Result         *ResultPayload         `json:"result,omitempty"`
	FinalResult    *ResultPayload         `json:"final_result,omitempty"`
	Error          string                 `json:"error,omitempty"`
}

// parseCompletionDate parses either completion timestamp variant, preferring
// completion_date. Unparseable timestamps yield nil rather than an error.
func (p *InterruptPayload) parseCompletionDate() *time.Time {
	for _, raw := range []string{p.CompletionDate, p.CompletedAt} {
		if raw == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return &t
		}
	}
	return nil
}
