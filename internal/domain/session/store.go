package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mstrand/ai-mailtriage/internal/domain/email"
)

var (
	// ErrTerminalStateConflict is returned when an update would change the
	// status of a session that already reached a terminal status. The stored
	// session is kept unchanged.
	ErrTerminalStateConflict = errors.New("session is in a terminal state")

	// ErrInvalidStatus is returned when an update carries a status outside
	// the defined set.
	ErrInvalidStatus = errors.New("invalid session status")
)

// Update is a partial session mutation applied through Store.Upsert. Zero
// fields are left untouched; the Clear flags remove optional sub-state
// explicitly.
type Update struct {
	Status         Status
	Email          *email.Context
	Classification *Classification
	Interrupt      *Interrupt
	ClearInterrupt bool
	Result         *Result
	Edit           *EditState
	ClearEdit      bool
	ErrorKind      ErrorKind
	ClearErrorKind bool
}

// Store maps workflow IDs to their sessions. It is the only mutable shared
// state in the triage core; all mutation funnels through Upsert, which is
// where the no-regression rule for terminal sessions is enforced. Distinct
// workflow IDs progress independently.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
	}
}

// Upsert merges the update into the session for the workflow ID, creating the
// session if absent, and returns a copy of the stored result. An update whose
// status would change a terminal session is rejected with
// ErrTerminalStateConflict and leaves the stored session untouched;
// re-applying the same terminal status is idempotent and allowed.
func (st *Store) Upsert(workflowID string, up Update) (*Session, error) {
	if up.Status != "" && !up.Status.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, up.Status)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	now := time.Now()

	s, exists := st.sessions[workflowID]
	if !exists {
		s = &Session{
			WorkflowID: workflowID,
			Status:     StatusProcessing,
			CreatedAt:  now,
		}
	}

	if s.Status.IsTerminal() && up.Status != "" && up.Status != s.Status {
		return s.Clone(), fmt.Errorf("%w: %s is %s, refusing %s",
			ErrTerminalStateConflict, workflowID, s.Status, up.Status)
	}

	if up.Status != "" {
		s.Status = up.Status
	}
	if up.Email != nil {
		s.Email = *up.Email
	}
	if up.Classification != nil {
		s.Classification = up.Classification
	}
	if up.Interrupt != nil {
		s.Interrupt = up.Interrupt
	}
	if up.ClearInterrupt {
		s.Interrupt = nil
	}
	if up.Result != nil {
		s.Result = up.Result
	}
	if up.Edit != nil {
		s.Edit = up.Edit
	}
	if up.ClearEdit {
		s.Edit = nil
	}
	if up.ErrorKind != "" {
		s.ErrorKind = up.ErrorKind
	}
	if up.ClearErrorKind {
		s.ErrorKind = ""
	}

	// A completed session carries a result and no pending interrupt or edit.
	if s.Status == StatusCompleted {
		if s.Result == nil {
			s.Result = &Result{}
		}
		s.Interrupt = nil
		s.Edit = nil
	}

	s.UpdatedAt = now
	st.sessions[workflowID] = s

	return s.Clone(), nil
}

// Get returns a copy of the session for the workflow ID, or false when the
// ID is unknown.
func (st *Store) Get(workflowID string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.sessions[workflowID]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// List returns copies of all sessions, most recently updated first.
func (st *Store) List() []*Session {
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})

	return out
}

// Delete removes the session for the workflow ID, if present. The engine
// never deletes sessions itself; this exists for adapters that dispose of a
// finished triage context.
func (st *Store) Delete(workflowID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, workflowID)
}

// Len returns the number of stored sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
