package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstrand/ai-mailtriage/internal/domain/decision"
	"github.com/mstrand/ai-mailtriage/internal/domain/session"
)

func TestEncodeDecision_BareTokensPassThrough(t *testing.T) {
	tokens := []decision.Token{
		decision.TokenApproveSend,
		decision.TokenApproveIgnore,
		decision.TokenConvertToIgnore,
		decision.TokenProcessInstead,
	}

	for _, tok := range tokens {
		t.Run(string(tok), func(t *testing.T) {
			w := EncodeDecision(decision.Decision{Token: tok})
			assert.Equal(t, string(tok), w.Decision)
			assert.False(t, w.IsEnvelope())
		})
	}
}

func TestEncodeDecision_ColonDelimited(t *testing.T) {
	tests := []struct {
		name    string
		in      decision.Decision
		wantRaw string
	}{
		{
			name:    "send edited",
			in:      decision.Decision{Token: decision.TokenSendEdited, Payload: "See you Tuesday."},
			wantRaw: "send_edited:See you Tuesday.",
		},
		{
			name:    "custom reply",
			in:      decision.Decision{Token: decision.TokenCustomReply, Payload: "No thanks."},
			wantRaw: "custom_reply:No thanks.",
		},
		{
			name:    "payload containing colons",
			in:      decision.Decision{Token: decision.TokenSendEdited, Payload: "Agenda: 10:00 standup"},
			wantRaw: "send_edited:Agenda: 10:00 standup",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := EncodeDecision(tt.in)
			assert.Equal(t, tt.wantRaw, w.Decision)
			assert.Empty(t, w.ProposedReply)
			assert.Equal(t, tt.in, DecodeDecision(w))
		})
	}
}

func TestEncodeDecision_EnvelopeFieldNames(t *testing.T) {
	w := EncodeDecision(decision.Decision{
		Token:   decision.TokenApproveSend,
		Payload: "Thanks, approved.",
	})
	require.True(t, w.IsEnvelope())

	raw, err := json.Marshal(w)
	require.NoError(t, err)
	assert.JSONEq(t, `{"decision":"approve_send","proposedReply":"Thanks, approved."}`, string(raw))

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Contains(t, fields, "decision")
	assert.Contains(t, fields, "proposedReply")
	assert.Len(t, fields, 2)
}

func TestEncodeDecision_ProvideAnswersUsesEnvelope(t *testing.T) {
	w := EncodeDecision(decision.Decision{
		Token:   decision.TokenProvideAnswers,
		Payload: "1. Friday 2. Room 4B",
	})
	assert.Equal(t, "provide_answers", w.Decision)
	assert.Equal(t, "1. Friday 2. Room 4B", w.ProposedReply)
}

func TestDecodeDecision_RoundTrip(t *testing.T) {
	decisions := []decision.Decision{
		{Token: decision.TokenApproveIgnore},
		{Token: decision.TokenApproveSend, Payload: "Sounds good."},
		{Token: decision.TokenSendEdited, Payload: "Edited body"},
		{Token: decision.TokenCustomReply, Payload: "Custom body"},
		{Token: decision.TokenProvideAnswers, Payload: "Answers here"},
	}

	for _, d := range decisions {
		t.Run(string(d.Token), func(t *testing.T) {
			assert.Equal(t, d, DecodeDecision(EncodeDecision(d)))
		})
	}
}

func TestDecodeStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want session.Status
	}{
		{"processing", session.StatusProcessing},
		{"started", session.StatusProcessing},
		{"awaiting_decision", session.StatusAwaitingDecision},
		{"awaitingDecision", session.StatusAwaitingDecision},
		{"completed", session.StatusCompleted},
		{"error", session.StatusError},
		{"failed", session.StatusError},
		{"already_completed", session.StatusAlreadyCompleted},
		{"alreadyCompleted", session.StatusAlreadyCompleted},
		{"some_future_status", session.StatusProcessing},
		{"", session.StatusProcessing},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeStatus(tt.raw))
		})
	}
}

func TestDecodeClassification_FieldVariants(t *testing.T) {
	tests := []struct {
		name string
		in   *ClassificationPayload
		want *session.Classification
	}{
		{
			name: "current field names",
			in: &ClassificationPayload{
				Type:         "auto_reply",
				Confidence:   0.93,
				Reasoning:    "routine scheduling request",
				AutoResponse: "I can meet Tuesday.",
				Questions:    []string{"Which office?"},
			},
			want: &session.Classification{
				Category:            session.CategoryAutoReply,
				Confidence:          0.93,
				Reasoning:           "routine scheduling request",
				ProposedReply:       "I can meet Tuesday.",
				ClarifyingQuestions: []string{"Which office?"},
			},
		},
		{
			name: "legacy field names",
			in: &ClassificationPayload{
				Classification:      "auto-reply",
				Confidence:          0.8,
				ProposedReply:       "Confirmed.",
				ClarifyingQuestions: []string{"What time?"},
			},
			want: &session.Classification{
				Category:            session.CategoryAutoReply,
				Confidence:          0.8,
				ProposedReply:       "Confirmed.",
				ClarifyingQuestions: []string{"What time?"},
			},
		},
		{
			name: "current names win when both present",
			in: &ClassificationPayload{
				Type:           "ignore",
				Classification: "auto_reply",
				AutoResponse:   "new",
				ProposedReply:  "old",
			},
			want: &session.Classification{
				Category:      session.CategoryIgnore,
				ProposedReply: "new",
			},
		},
		{
			name: "all variants absent",
			in:   &ClassificationPayload{Confidence: 0.5},
			want: &session.Classification{Confidence: 0.5},
		},
		{
			name: "nil payload",
			in:   nil,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeClassification(tt.in))
		})
	}
}

func TestDecodeCategory(t *testing.T) {
	assert.Equal(t, session.CategoryAutoReply, DecodeCategory("auto-reply"))
	assert.Equal(t, session.CategoryAutoReply, DecodeCategory("auto_reply"))
	assert.Equal(t, session.CategoryIgnore, DecodeCategory("ignore"))
	assert.Equal(t, session.CategoryInformationNeeded, DecodeCategory("information_needed"))
	assert.Equal(t, session.Category(""), DecodeCategory("spam"))
}

func TestDecodeInterrupt(t *testing.T) {
	t.Run("known types keep their decisions", func(t *testing.T) {
		in := DecodeInterrupt(&InterruptPayload{
			Type:               "auto_reply_approval_needed",
			AvailableDecisions: []string{"approve_send", "edit_reply", "convert_to_ignore"},
		})
		require.NotNil(t, in)
		assert.Equal(t, session.InterruptAutoReplyApproval, in.Type)
		assert.Equal(t, []decision.Token{
			decision.TokenApproveSend,
			decision.TokenEditReply,
			decision.TokenConvertToIgnore,
		}, in.AvailableDecisions)
		assert.True(t, in.Permits(decision.TokenEditReply))
		assert.False(t, in.Permits(decision.TokenProvideAnswers))
	})

	t.Run("unknown type yields no actionable decisions", func(t *testing.T) {
		in := DecodeInterrupt(&InterruptPayload{
			Type:               "escalation_needed",
			AvailableDecisions: []string{"approve_send"},
		})
		require.NotNil(t, in)
		assert.Equal(t, session.InterruptUnknown, in.Type)
		assert.Empty(t, in.AvailableDecisions)
	})

	t.Run("already completed carries completion metadata", func(t *testing.T) {
		in := DecodeInterrupt(&InterruptPayload{
			Type:                "already_completed",
			CompletionDate:      "2026-03-02T09:30:00Z",
			FinalClassification: "auto_reply",
			FinalReply:          "Already answered last week.",
		})
		require.NotNil(t, in)
		assert.Equal(t, session.InterruptAlreadyCompleted, in.Type)
		require.NotNil(t, in.CompletionDate)
		assert.Equal(t, time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC), *in.CompletionDate)
		assert.Equal(t, "autoReply", in.FinalClassification)
		assert.Equal(t, "Already answered last week.", in.FinalReply)
	})

	t.Run("completed_at variant and bad timestamps", func(t *testing.T) {
		in := DecodeInterrupt(&InterruptPayload{
			Type:        "workflow_already_completed",
			CompletedAt: "2026-03-02T09:30:00Z",
		})
		require.NotNil(t, in)
		require.NotNil(t, in.CompletionDate)

		in = DecodeInterrupt(&InterruptPayload{
			Type:           "already_completed",
			CompletionDate: "yesterday",
		})
		require.NotNil(t, in)
		assert.Nil(t, in.CompletionDate)
	})

	t.Run("nil payload", func(t *testing.T) {
		assert.Nil(t, DecodeInterrupt(nil))
	})
}

func TestDecodeResult(t *testing.T) {
	t.Run("result preferred over final_result", func(t *testing.T) {
		got := DecodeResult(&WorkflowResponse{
			Result:      &ResultPayload{FinalAction: "sent_reply", AutoResponse: "ok"},
			FinalResult: &ResultPayload{FinalAction: "ignored"},
		})
		require.NotNil(t, got)
		assert.Equal(t, "sent_reply", got.FinalAction)
		assert.Equal(t, "ok", got.AutoResponse)
	})

	t.Run("legacy final_result", func(t *testing.T) {
		got := DecodeResult(&WorkflowResponse{
			FinalResult: &ResultPayload{FinalAction: "ignored", QuestionsAnswered: true},
		})
		require.NotNil(t, got)
		assert.Equal(t, "ignored", got.FinalAction)
		assert.True(t, got.QuestionsAnswered)
	})

	t.Run("absent", func(t *testing.T) {
		assert.Nil(t, DecodeResult(&WorkflowResponse{Status: "processing"}))
	})
}
