package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mstrand/ai-mailtriage/internal/domain/decision"
)

func TestInterrupt_Permits(t *testing.T) {
	in := &Interrupt{
		Type: InterruptAutoReplyApproval,
		AvailableDecisions: []decision.Token{
			decision.TokenApproveSend,
			decision.TokenEditReply,
			decision.TokenConvertToIgnore,
		},
	}

	tests := []struct {
		name string
		tok  decision.Token
		want bool
	}{
		{name: "advertised decision", tok: decision.TokenApproveSend, want: true},
		{name: "edit entry point", tok: decision.TokenEditReply, want: true},
		{name: "send_edited stands in for edit_reply", tok: decision.TokenSendEdited, want: true},
		{name: "not advertised", tok: decision.TokenProvideAnswers, want: false},
		{name: "custom_reply needs its own offer", tok: decision.TokenCustomReply, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, in.Permits(tt.tok))
		})
	}
}

func TestInterrupt_Permits_NoEditOffer(t *testing.T) {
	in := &Interrupt{
		Type:               InterruptIgnoreApproval,
		AvailableDecisions: []decision.Token{decision.TokenApproveIgnore},
	}
	assert.False(t, in.Permits(decision.TokenSendEdited))
}
