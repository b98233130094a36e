package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mstrand/ai-mailtriage/internal/application/port"
	"github.com/mstrand/ai-mailtriage/internal/domain/email"
	"github.com/mstrand/ai-mailtriage/internal/domain/session"
	"github.com/mstrand/ai-mailtriage/pkg/database"
)

func newTestRepo(t *testing.T) (*HistoryRepository, *database.DB) {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:            filepath.Join(t.TempDir(), "triage.db"),
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	migrator := database.NewMigrator(db, zap.NewNop())
	require.NoError(t, migrator.Run(context.Background(), filepath.Join("..", "..", "migrations")))

	return NewHistoryRepository(db, zap.NewNop()), db
}

func sampleRecord(workflowID string) *port.TriageRecord {
	return &port.TriageRecord{
		WorkflowID: workflowID,
		MessageID:  "msg-" + workflowID,
		Subject:    "Sync on Tuesday",
		Sender:     "alice@example.com",
		Category:   "autoReply",
		Confidence: 0.92,
		Status:     "awaitingDecision",
	}
}

func TestRecordSession_InsertAndGet(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.RecordSession(ctx, sampleRecord("wf-1")))

	got, err := repo.GetByWorkflowID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "Sync on Tuesday", got.Subject)
	assert.Equal(t, "autoReply", got.Category)
	assert.InDelta(t, 0.92, got.Confidence, 1e-9)
	assert.Equal(t, "awaitingDecision", got.Status)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestRecordSession_RefreshesNonTerminalRow(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.RecordSession(ctx, sampleRecord("wf-2")))

	updated := sampleRecord("wf-2")
	updated.Status = "completed"
	updated.FinalAction = "auto_reply_sent"
	require.NoError(t, repo.RecordSession(ctx, updated))

	got, err := repo.GetByWorkflowID(ctx, "wf-2")
	require.NoError(t, err)
	assert.Equal(t, "completed", got.Status)
	assert.Equal(t, "auto_reply_sent", got.FinalAction)
}

func TestRecordSession_NeverRegressesTerminalRow(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	done := sampleRecord("wf-3")
	done.Status = "completed"
	done.FinalAction = "ignored"
	require.NoError(t, repo.RecordSession(ctx, done))

	stale := sampleRecord("wf-3")
	stale.Status = "processing"
	require.NoError(t, repo.RecordSession(ctx, stale))

	got, err := repo.GetByWorkflowID(ctx, "wf-3")
	require.NoError(t, err)
	assert.Equal(t, "completed", got.Status)
	assert.Equal(t, "ignored", got.FinalAction)
}

func TestUpdateOutcome(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.RecordSession(ctx, sampleRecord("wf-4")))
	require.NoError(t, repo.UpdateOutcome(ctx, "wf-4", "error", "continuationTimeout", ""))

	got, err := repo.GetByWorkflowID(ctx, "wf-4")
	require.NoError(t, err)
	assert.Equal(t, "error", got.Status)
	assert.Equal(t, "continuationTimeout", got.ErrorKind)

	// A settled row ignores a conflicting late outcome.
	require.NoError(t, repo.UpdateOutcome(ctx, "wf-4", "completed", "", "ignored"))
	got, err = repo.GetByWorkflowID(ctx, "wf-4")
	require.NoError(t, err)
	assert.Equal(t, "error", got.Status)
}

func TestGetByWorkflowID_NotFound(t *testing.T) {
	repo, _ := newTestRepo(t)

	_, err := repo.GetByWorkflowID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRecent(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	for _, id := range []string{"wf-a", "wf-b", "wf-c"} {
		require.NoError(t, repo.RecordSession(ctx, sampleRecord(id)))
	}

	records, err := repo.ListRecent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	records, err = repo.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestRecordAndListDecisions(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.RecordSession(ctx, sampleRecord("wf-5")))

	first := &port.DecisionRecord{WorkflowID: "wf-5", Decision: "edit_reply"}
	second := &port.DecisionRecord{WorkflowID: "wf-5", Decision: "send_edited", Payload: "See you Wednesday."}
	require.NoError(t, repo.RecordDecision(ctx, first))
	require.NoError(t, repo.RecordDecision(ctx, second))
	assert.NotZero(t, first.ID)

	decisions, err := repo.ListDecisions(ctx, "wf-5")
	require.NoError(t, err)
	require.Len(t, decisions, 2)
	assert.Equal(t, "edit_reply", decisions[0].Decision)
	assert.Equal(t, "send_edited", decisions[1].Decision)
	assert.Equal(t, "See you Wednesday.", decisions[1].Payload)
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	err := db.WithTransaction(ctx, func(ctx context.Context) error {
		if err := repo.RecordSession(ctx, sampleRecord("wf-tx")); err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)

	_, err = repo.GetByWorkflowID(ctx, "wf-tx")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordFromSession(t *testing.T) {
	now := time.Now()
	s := &session.Session{
		WorkflowID: "wf-6",
		Status:     session.StatusCompleted,
		Email: email.Context{
			Subject:   "Invoice",
			Sender:    "bob@example.com",
			MessageID: "msg-6",
		},
		Classification: &session.Classification{
			Category:   session.CategoryIgnore,
			Confidence: 0.97,
		},
		Result:    &session.Result{FinalAction: "ignored"},
		CreatedAt: now,
		UpdatedAt: now,
	}

	rec := RecordFromSession(s)
	assert.Equal(t, "wf-6", rec.WorkflowID)
	assert.Equal(t, "msg-6", rec.MessageID)
	assert.Equal(t, "ignore", rec.Category)
	assert.InDelta(t, 0.97, rec.Confidence, 1e-9)
	assert.Equal(t, "completed", rec.Status)
	assert.Equal(t, "ignored", rec.FinalAction)
}
