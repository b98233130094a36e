package decision

// Token identifies a user decision. The constant values are the exact wire
// strings the backend advertises in an interrupt's available_decisions list;
// a bare token is submitted byte-for-byte as advertised.
type Token string

const (
	// TokenApproveSend approves sending the proposed (or edited) reply.
	TokenApproveSend Token = "approve_send"

	// TokenApproveIgnore confirms that the email needs no response.
	TokenApproveIgnore Token = "approve_ignore"

	// TokenConvertToIgnore discards a proposed reply and closes the email
	// without responding.
	TokenConvertToIgnore Token = "convert_to_ignore"

	// TokenEditReply opens the client-local edit buffer for the proposed
	// reply. Never submitted to the backend.
	TokenEditReply Token = "edit_reply"

	// TokenCancelEdit discards the client-local edit buffer. Never submitted
	// to the backend.
	TokenCancelEdit Token = "cancel_edit"

	// TokenSendEdited sends a reply the user revised in the edit buffer.
	// Carries the edited text as a colon-delimited payload.
	TokenSendEdited Token = "send_edited"

	// TokenCustomReply sends a reply the user wrote from scratch. Carries
	// the text as a colon-delimited payload.
	TokenCustomReply Token = "custom_reply"

	// TokenProvideAnswers supplies answers to the backend's clarifying
	// questions. Carries the text in the structured envelope.
	TokenProvideAnswers Token = "provide_answers"

	// TokenProcessInstead asks the backend to reclassify an email it
	// proposed to ignore. Typically yields a continuation interrupt.
	TokenProcessInstead Token = "process_instead"
)

// Decision is a user-issued instruction: a token plus optional free text.
type Decision struct {
	Token   Token  `json:"decision"`
	Payload string `json:"payload,omitempty"`
}

// String returns the token string.
func (t Token) String() string {
	return string(t)
}

// IsClientLocal reports whether the token toggles the edit sub-state only
// and must never produce a network call.
func (t Token) IsClientLocal() bool {
	return t == TokenEditReply || t == TokenCancelEdit
}

// RequiresPayload reports whether the token is meaningless without free text.
func (t Token) RequiresPayload() bool {
	switch t {
	case TokenSendEdited, TokenCustomReply, TokenProvideAnswers:
		return true
	default:
		return false
	}
}

// UsesEnvelope reports whether a payload-carrying submission of this token is
// encoded as the structured JSON envelope rather than the colon-delimited
// form. The backend distinguishes "approve as proposed" from "approve this
// text" only through the envelope's explicit field, so the split between the
// two encodings is part of the wire contract.
func (t Token) UsesEnvelope() bool {
	return t == TokenApproveSend || t == TokenProvideAnswers
}
