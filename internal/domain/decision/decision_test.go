package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsClientLocal(t *testing.T) {
	assert.True(t, TokenEditReply.IsClientLocal())
	assert.True(t, TokenCancelEdit.IsClientLocal())

	for _, tok := range []Token{
		TokenApproveSend, TokenApproveIgnore, TokenConvertToIgnore,
		TokenSendEdited, TokenCustomReply, TokenProvideAnswers, TokenProcessInstead,
	} {
		assert.False(t, tok.IsClientLocal(), "token %s", tok)
	}
}

func TestRequiresPayload(t *testing.T) {
	assert.True(t, TokenSendEdited.RequiresPayload())
	assert.True(t, TokenCustomReply.RequiresPayload())
	assert.True(t, TokenProvideAnswers.RequiresPayload())

	assert.False(t, TokenApproveSend.RequiresPayload())
	assert.False(t, TokenApproveIgnore.RequiresPayload())
	assert.False(t, TokenCancelEdit.RequiresPayload())
}

func TestUsesEnvelope(t *testing.T) {
	assert.True(t, TokenApproveSend.UsesEnvelope())
	assert.True(t, TokenProvideAnswers.UsesEnvelope())

	// Colon-delimited tokens never use the envelope.
	assert.False(t, TokenSendEdited.UsesEnvelope())
	assert.False(t, TokenCustomReply.UsesEnvelope())
}

func TestTokenWireSpellings(t *testing.T) {
	// The constant values are the exact strings the backend advertises.
	want := map[Token]string{
		TokenApproveSend:     "approve_send",
		TokenApproveIgnore:   "approve_ignore",
		TokenConvertToIgnore: "convert_to_ignore",
		TokenEditReply:       "edit_reply",
		TokenCancelEdit:      "cancel_edit",
		TokenSendEdited:      "send_edited",
		TokenCustomReply:     "custom_reply",
		TokenProvideAnswers:  "provide_answers",
		TokenProcessInstead:  "process_instead",
	}
	for tok, raw := range want {
		assert.Equal(t, raw, tok.String())
	}
}
