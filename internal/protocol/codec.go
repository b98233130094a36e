package protocol

import (
	"strings"

	"github.com/mstrand/ai-mailtriage/internal/domain/decision"
	"github.com/mstrand/ai-mailtriage/internal/domain/session"
)

// EncodeDecision produces the wire form of a decision. Decisions without a
// payload pass through as the bare token. Decisions carrying text use the
// structured envelope when the backend requires one for that token, otherwise
// the colon-delimited "<token>:<text>" form.
func EncodeDecision(d decision.Decision) WireDecision {
	if d.Payload == "" {
		return WireDecision{Decision: string(d.Token)}
	}
	if d.Token.UsesEnvelope() {
		return WireDecision{Decision: string(d.Token), ProposedReply: d.Payload}
	}
	return WireDecision{Decision: string(d.Token) + ":" + d.Payload}
}

// DecodeDecision recovers the decision from its wire form. The payload of a
// colon-delimited decision may itself contain colons; only the first one
// separates token from payload.
func DecodeDecision(w WireDecision) decision.Decision {
	if w.ProposedReply != "" {
		return decision.Decision{Token: decision.Token(w.Decision), Payload: w.ProposedReply}
	}
	if tok, payload, ok := strings.Cut(w.Decision, ":"); ok {
		return decision.Decision{Token: decision.Token(tok), Payload: payload}
	}
	return decision.Decision{Token: decision.Token(w.Decision)}
}

// wireStatuses maps every status spelling the backend has used to the
// canonical session status.
var wireStatuses = map[string]session.Status{
	"processing":        session.StatusProcessing,
	"started":           session.StatusProcessing,
	"awaiting_decision": session.StatusAwaitingDecision,
	"awaitingDecision":  session.StatusAwaitingDecision,
	"completed":         session.StatusCompleted,
	"error":             session.StatusError,
	"failed":            session.StatusError,
	"already_completed": session.StatusAlreadyCompleted,
	"alreadyCompleted":  session.StatusAlreadyCompleted,
}

// DecodeStatus normalizes a wire status. Unrecognized statuses decode as
// processing so that the caller keeps polling instead of failing on a status
// added by a newer backend.
func DecodeStatus(raw string) session.Status {
	if s, ok := wireStatuses[raw]; ok {
		return s
	}
	return session.StatusProcessing
}

// wireCategories maps the category value variants to canonical categories.
var wireCategories = map[string]session.Category{
	"ignore":             session.CategoryIgnore,
	"auto_reply":         session.CategoryAutoReply,
	"auto-reply":         session.CategoryAutoReply,
	"autoReply":          session.CategoryAutoReply,
	"information_needed": session.CategoryInformationNeeded,
	"information-needed": session.CategoryInformationNeeded,
	"informationNeeded":  session.CategoryInformationNeeded,
}

// DecodeCategory normalizes a wire category value. Unknown values decode to
// the zero category rather than failing.
func DecodeCategory(raw string) session.Category {
	return wireCategories[raw]
}

// EncodeCategory produces the snake_case wire spelling of a category.
func EncodeCategory(cat session.Category) string {
	switch cat {
	case session.CategoryAutoReply:
		return "auto_reply"
	case session.CategoryInformationNeeded:
		return "information_needed"
	case session.CategoryIgnore:
		return "ignore"
	}
	return string(cat)
}

// DecodeClassification normalizes a raw classification block, resolving each
// field-name variant pair. A field absent under both names stays at its zero
// value.
func DecodeClassification(p *ClassificationPayload) *session.Classification {
	if p == nil {
		return nil
	}
	c := &session.Classification{
		Confidence: p.Confidence,
		Reasoning:  p.Reasoning,
	}
	if p.Type != "" {
		c.Category = DecodeCategory(p.Type)
	} else {
		c.Category = DecodeCategory(p.Classification)
	}
	c.ProposedReply = p.AutoResponse
	if c.ProposedReply == "" {
		c.ProposedReply = p.ProposedReply
	}
	c.ClarifyingQuestions = p.Questions
	if len(c.ClarifyingQuestions) == 0 {
		c.ClarifyingQuestions = p.ClarifyingQuestions
	}
	return c
}

// wireInterrupts maps the interrupt type labels the backend emits.
var wireInterrupts = map[string]session.InterruptType{
	"ignore_approval_needed":     session.InterruptIgnoreApproval,
	"auto_reply_approval_needed": session.InterruptAutoReplyApproval,
	"information_needed":         session.InterruptInformationNeeded,
	"already_completed":          session.InterruptAlreadyCompleted,
	"workflow_already_completed": session.InterruptAlreadyCompleted,
}

// DecodeInterrupt normalizes a raw interrupt block. An unrecognized interrupt
// type decodes to InterruptUnknown with no available decisions, which the
// engine surfaces as a non-actionable workflow instead of a decode failure.
func DecodeInterrupt(p *InterruptPayload) *session.Interrupt {
	if p == nil {
		return nil
	}
	typ, ok := wireInterrupts[p.Type]
	if !ok {
		return &session.Interrupt{Type: session.InterruptUnknown}
	}
	in := &session.Interrupt{
		Type:               typ,
		AvailableDecisions: make([]decision.Token, 0, len(p.AvailableDecisions)),
	}
	for _, raw := range p.AvailableDecisions {
		in.AvailableDecisions = append(in.AvailableDecisions, decision.Token(raw))
	}
	if typ == session.InterruptAlreadyCompleted {
		in.CompletionDate = p.parseCompletionDate()
		if fc := DecodeCategory(p.FinalClassification); fc != "" {
			in.FinalClassification = fc.String()
		} else {
			in.FinalClassification = p.FinalClassification
		}
		in.FinalReply = p.FinalReply
	}
	return in
}

// DecodeResult resolves the terminal outcome of a response, accepting both
// the current "result" field and the legacy "final_result" field.
func DecodeResult(resp *WorkflowResponse) *session.Result {
	p := resp.Result
	if p == nil {
		p = resp.FinalResult
	}
	if p == nil {
		return nil
	}
	return &session.Result{
		FinalAction:       p.FinalAction,
		AutoResponse:      p.AutoResponse,
		QuestionsAnswered: p.QuestionsAnswered,
	}
}
