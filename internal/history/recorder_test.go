package history

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mstrand/ai-mailtriage/internal/application/dispatcher"
	"github.com/mstrand/ai-mailtriage/internal/application/hitl"
	"github.com/mstrand/ai-mailtriage/internal/application/port"
	"github.com/mstrand/ai-mailtriage/internal/domain/event"
)

type mockRepo struct {
	sessions  []*port.TriageRecord
	decisions []*port.DecisionRecord
	outcomes  []string
	failWith  error
}

func (m *mockRepo) RecordSession(ctx context.Context, rec *port.TriageRecord) error {
	if m.failWith != nil {
		return m.failWith
	}
	m.sessions = append(m.sessions, rec)
	return nil
}

func (m *mockRepo) UpdateOutcome(ctx context.Context, workflowID, status, errorKind, finalAction string) error {
	if m.failWith != nil {
		return m.failWith
	}
	m.outcomes = append(m.outcomes, workflowID+":"+status)
	return nil
}

func (m *mockRepo) RecordDecision(ctx context.Context, rec *port.DecisionRecord) error {
	if m.failWith != nil {
		return m.failWith
	}
	m.decisions = append(m.decisions, rec)
	return nil
}

func (m *mockRepo) GetByWorkflowID(ctx context.Context, workflowID string) (*port.TriageRecord, error) {
	return nil, nil
}

func (m *mockRepo) ListRecent(ctx context.Context, limit int) ([]*port.TriageRecord, error) {
	return m.sessions, nil
}

func (m *mockRepo) ListDecisions(ctx context.Context, workflowID string) ([]*port.DecisionRecord, error) {
	return m.decisions, nil
}

type passthroughTx struct{}

func (passthroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newRecorderWithDispatcher(repo *mockRepo) dispatcher.Dispatcher {
	d := dispatcher.NewDispatcher()
	NewRecorder(repo, passthroughTx{}, zap.NewNop()).Register(d)
	return d
}

func TestRecorder_RecordsSessionEvents(t *testing.T) {
	repo := &mockRepo{}
	d := newRecorderWithDispatcher(repo)

	evt := event.NewEvent(event.TypeDecisionRequired, "wf-1", map[string]interface{}{
		hitl.PayloadSubject:    "Sync on Tuesday",
		hitl.PayloadSender:     "alice@example.com",
		hitl.PayloadMessageID:  "msg-1",
		hitl.PayloadStatus:     "awaitingDecision",
		hitl.PayloadCategory:   "autoReply",
		hitl.PayloadConfidence: 0.92,
	})
	require.NoError(t, d.Dispatch(context.Background(), evt))

	require.Len(t, repo.sessions, 1)
	rec := repo.sessions[0]
	assert.Equal(t, "wf-1", rec.WorkflowID)
	assert.Equal(t, "Sync on Tuesday", rec.Subject)
	assert.Equal(t, "autoReply", rec.Category)
	assert.InDelta(t, 0.92, rec.Confidence, 1e-9)
	assert.Equal(t, "awaitingDecision", rec.Status)
}

func TestRecorder_RecordsSubmittedDecision(t *testing.T) {
	repo := &mockRepo{}
	d := newRecorderWithDispatcher(repo)

	evt := event.NewEvent(event.TypeDecisionSubmitted, "wf-1", map[string]interface{}{
		hitl.PayloadDecision:     "send_edited",
		hitl.PayloadDecisionText: "See you Wednesday.",
	})
	require.NoError(t, d.Dispatch(context.Background(), evt))

	require.Len(t, repo.decisions, 1)
	assert.Equal(t, "send_edited", repo.decisions[0].Decision)
	assert.Equal(t, "See you Wednesday.", repo.decisions[0].Payload)
	assert.Empty(t, repo.sessions)
}

func TestRecorder_TerminalEventSettlesRow(t *testing.T) {
	repo := &mockRepo{}
	d := newRecorderWithDispatcher(repo)

	evt := event.NewEvent(event.TypeWorkflowCompleted, "wf-1", map[string]interface{}{
		hitl.PayloadStatus:      "completed",
		hitl.PayloadFinalAction: "auto_reply_sent",
	})
	require.NoError(t, d.Dispatch(context.Background(), evt))

	// The row is upserted and then settled in the same transaction.
	require.Len(t, repo.sessions, 1)
	require.Len(t, repo.outcomes, 1)
	assert.Equal(t, "wf-1:completed", repo.outcomes[0])
}

func TestRecorder_RepositoryFailureSurfacesToDispatcher(t *testing.T) {
	repo := &mockRepo{failWith: assert.AnError}
	d := newRecorderWithDispatcher(repo)

	evt := event.NewEvent(event.TypeWorkflowStarted, "wf-1", map[string]interface{}{
		hitl.PayloadStatus: "processing",
	})
	err := d.Dispatch(context.Background(), evt)
	assert.Error(t, err)
}
