// Package devserver implements the reference triage workflow backend used for
// local development and end-to-end tests. It speaks the same wire protocol as
// the production backend: workflows progress asynchronously, pause on
// interrupts, accept decisions, and remember completed message IDs so a rerun
// of the same email reports already completed.
package devserver

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mstrand/ai-mailtriage/internal/application/port"
	"github.com/mstrand/ai-mailtriage/internal/domain/email"
	"github.com/mstrand/ai-mailtriage/internal/protocol"
)

// Wire statuses the backend reports.
const (
	statusProcessing       = "processing"
	statusAwaitingDecision = "awaiting_decision"
	statusCompleted        = "completed"
	statusAlreadyCompleted = "already_completed"
	statusError            = "error"
)

// workflowState is the backend-side record of one triage workflow.
type workflowState struct {
	ID        string
	MessageID string
	Email     email.Context

	Status         string
	Classification *port.ClassificationResult
	Interrupt      *protocol.InterruptPayload
	Result         *protocol.ResultPayload
	Answers        []string
	Error          string

	CompletedAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// stateStore holds all workflow records and the message-ID index used for
// duplicate detection.
type stateStore struct {
	mu          sync.RWMutex
	workflows   map[string]*workflowState
	byMessageID map[string]string
}

func newStateStore() *stateStore {
	return &stateStore{
		workflows:   make(map[string]*workflowState),
		byMessageID: make(map[string]string),
	}
}

// create registers a new workflow for the email. If the message ID already
// maps to a workflow, the existing record is returned instead and created is
// false.
func (s *stateStore) create(em email.Context) (st *workflowState, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if em.MessageID != "" {
		if id, ok := s.byMessageID[em.MessageID]; ok {
			return s.workflows[id].snapshot(), false
		}
	}

	now := time.Now()
	st = &workflowState{
		ID:        uuid.New().String(),
		MessageID: em.MessageID,
		Email:     em,
		Status:    statusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.workflows[st.ID] = st
	if em.MessageID != "" {
		s.byMessageID[em.MessageID] = st.ID
	}
	return st.snapshot(), true
}

// get returns a point-in-time copy of a workflow record.
func (s *stateStore) get(id string) (*workflowState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.workflows[id]
	if !ok {
		return nil, false
	}
	return st.snapshot(), true
}

// mutate applies fn to the live record under the store lock and returns a
// copy of the result.
func (s *stateStore) mutate(id string, fn func(*workflowState)) (*workflowState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.workflows[id]
	if !ok {
		return nil, false
	}
	fn(st)
	st.UpdatedAt = time.Now()
	return st.snapshot(), true
}

func (s *stateStore) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.workflows)
}

func (st *workflowState) snapshot() *workflowState {
	cp := *st
	cp.Answers = append([]string(nil), st.Answers...)
	if st.Classification != nil {
		c := *st.Classification
		c.ClarifyingQuestions = append([]string(nil), st.Classification.ClarifyingQuestions...)
		cp.Classification = &c
	}
	if st.Interrupt != nil {
		in := *st.Interrupt
		in.AvailableDecisions = append([]string(nil), st.Interrupt.AvailableDecisions...)
		cp.Interrupt = &in
	}
	if st.Result != nil {
		r := *st.Result
		cp.Result = &r
	}
	return &cp
}

func (st *workflowState) terminal() bool {
	switch st.Status {
	case statusCompleted, statusAlreadyCompleted, statusError:
		return true
	}
	return false
}
