// Package repository persists the triage audit log: one row per workflow
// session plus the ordered log of submitted decisions. The engine never reads
// this data; it exists for the history and report endpoints.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mstrand/ai-mailtriage/internal/application/port"
	"github.com/mstrand/ai-mailtriage/internal/domain/session"
	"github.com/mstrand/ai-mailtriage/pkg/database"
)

// ErrNotFound is returned when no record exists for a workflow ID.
var ErrNotFound = errors.New("triage record not found")

// HistoryRepository stores triage records in SQLite.
type HistoryRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a triage history repository.
func NewHistoryRepository(db *database.DB, logger *zap.Logger) *HistoryRepository {
	return &HistoryRepository{db: db, logger: logger}
}

// RecordSession inserts the record, or refreshes an existing row for the same
// workflow. A row whose status is already terminal is only refreshed when the
// update carries the same status; the stored outcome is never regressed by a
// late-arriving update.
func (r *HistoryRepository) RecordSession(ctx context.Context, rec *port.TriageRecord) error {
	query := `
		INSERT INTO triage_sessions (
			workflow_id, message_id, subject, sender, category, confidence,
			status, error_kind, final_action
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(workflow_id) DO UPDATE SET
			category     = excluded.category,
			confidence   = excluded.confidence,
			status       = excluded.status,
			error_kind   = excluded.error_kind,
			final_action = excluded.final_action,
			updated_at   = CURRENT_TIMESTAMP
		WHERE triage_sessions.status = excluded.status
		   OR triage_sessions.status NOT IN ('completed', 'error', 'alreadyCompleted')
	`

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		rec.WorkflowID, rec.MessageID, rec.Subject, rec.Sender,
		rec.Category, rec.Confidence, rec.Status, rec.ErrorKind, rec.FinalAction)
	if err != nil {
		r.logger.Error("Failed to record triage session",
			zap.String("workflow_id", rec.WorkflowID),
			zap.Error(err))
		return fmt.Errorf("record session: %w", err)
	}
	return nil
}

// UpdateOutcome records the terminal status of a workflow. The same guard as
// RecordSession applies: a settled row only accepts its own status again.
func (r *HistoryRepository) UpdateOutcome(ctx context.Context, workflowID string, status, errorKind, finalAction string) error {
	query := `
		UPDATE triage_sessions SET
			status       = ?,
			error_kind   = ?,
			final_action = ?,
			updated_at   = CURRENT_TIMESTAMP
		WHERE workflow_id = ?
		  AND (status = ? OR status NOT IN ('completed', 'error', 'alreadyCompleted'))
	`

	res, err := r.db.Executor(ctx).ExecContext(ctx, query,
		status, errorKind, finalAction, workflowID, status)
	if err != nil {
		r.logger.Error("Failed to update triage outcome",
			zap.String("workflow_id", workflowID),
			zap.Error(err))
		return fmt.Errorf("update outcome: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		r.logger.Debug("Outcome update skipped",
			zap.String("workflow_id", workflowID),
			zap.String("status", status))
	}
	return nil
}

// RecordDecision appends a submitted decision to the decision log.
func (r *HistoryRepository) RecordDecision(ctx context.Context, rec *port.DecisionRecord) error {
	res, err := r.db.Executor(ctx).ExecContext(ctx, `
		INSERT INTO triage_decisions (workflow_id, decision, payload)
		VALUES (?, ?, ?)`,
		rec.WorkflowID, rec.Decision, rec.Payload)
	if err != nil {
		r.logger.Error("Failed to record decision",
			zap.String("workflow_id", rec.WorkflowID),
			zap.String("decision", rec.Decision),
			zap.Error(err))
		return fmt.Errorf("record decision: %w", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		rec.ID = id
	}
	return nil
}

// GetByWorkflowID retrieves one triage record.
func (r *HistoryRepository) GetByWorkflowID(ctx context.Context, workflowID string) (*port.TriageRecord, error) {
	row := r.db.Executor(ctx).QueryRowContext(ctx, `
		SELECT workflow_id, message_id, subject, sender, category, confidence,
		       status, error_kind, final_action, created_at, updated_at
		FROM triage_sessions
		WHERE workflow_id = ?`, workflowID)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, workflowID)
	}
	if err != nil {
		return nil, fmt.Errorf("get triage record: %w", err)
	}
	return rec, nil
}

// ListRecent retrieves the most recently updated triage records.
func (r *HistoryRepository) ListRecent(ctx context.Context, limit int) ([]*port.TriageRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Executor(ctx).QueryContext(ctx, `
		SELECT workflow_id, message_id, subject, sender, category, confidence,
		       status, error_kind, final_action, created_at, updated_at
		FROM triage_sessions
		ORDER BY updated_at DESC, workflow_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list triage records: %w", err)
	}
	defer rows.Close()

	var records []*port.TriageRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan triage record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListDecisions retrieves all decisions submitted for a workflow in order.
func (r *HistoryRepository) ListDecisions(ctx context.Context, workflowID string) ([]*port.DecisionRecord, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, `
		SELECT id, workflow_id, decision, payload, submitted_at
		FROM triage_decisions
		WHERE workflow_id = ?
		ORDER BY id`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var records []*port.DecisionRecord
	for rows.Next() {
		var rec port.DecisionRecord
		if err := rows.Scan(&rec.ID, &rec.WorkflowID, &rec.Decision, &rec.Payload, &rec.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (*port.TriageRecord, error) {
	var rec port.TriageRecord
	err := s.Scan(
		&rec.WorkflowID, &rec.MessageID, &rec.Subject, &rec.Sender,
		&rec.Category, &rec.Confidence, &rec.Status, &rec.ErrorKind,
		&rec.FinalAction, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

var _ port.HistoryRepository = (*HistoryRepository)(nil)

// RecordFromSession flattens a session snapshot into its history row.
func RecordFromSession(s *session.Session) *port.TriageRecord {
	rec := &port.TriageRecord{
		WorkflowID: s.WorkflowID,
		MessageID:  s.Email.MessageID,
		Subject:    s.Email.Subject,
		Sender:     s.Email.Sender,
		Status:     s.Status.String(),
		ErrorKind:  s.ErrorKind.String(),
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
	if s.Classification != nil {
		rec.Category = s.Classification.Category.String()
		rec.Confidence = s.Classification.Confidence
	}
	if s.Result != nil {
		rec.FinalAction = s.Result.FinalAction
	}
	return rec
}
