// Package memory provides an in-process session repository. Sessions
// live for the process lifetime; local mode uses it when no Redis is
// configured.
package memory

import (
	"fmt"
	"sync"
	"time"

	"github.com/fairyhunter13/cv-rag/internal/domain"
)

// SessionRepo is a mutex-guarded map of sessions.
type SessionRepo struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
}

// NewSessionRepo constructs an empty repository.
func NewSessionRepo() *SessionRepo {
	return &SessionRepo{sessions: make(map[string]domain.Session)}
}

// Create stores a new session.
func (r *SessionRepo) Create(_ domain.Context, s domain.Session) error {
	if s.ID == "" {
		return fmt.Errorf("%w: session id required", domain.ErrInvalidArgument)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; ok {
		return fmt.Errorf("%w: session %s", domain.ErrConflict, s.ID)
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	r.sessions[s.ID] = s
	return nil
}

// Get returns a copy of the session.
func (r *SessionRepo) Get(_ domain.Context, id string) (domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return domain.Session{}, fmt.Errorf("op=session.get: %w", domain.ErrNotFound)
	}
	// Copy slices so callers cannot mutate stored state.
	out := s
	out.CVIDs = append([]string(nil), s.CVIDs...)
	out.Messages = append([]domain.Message(nil), s.Messages...)
	return out, nil
}

// AddCVs attaches CV ids to the session, de-duplicating.
func (r *SessionRepo) AddCVs(_ domain.Context, id string, cvIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("op=session.add_cvs: %w", domain.ErrNotFound)
	}
	seen := make(map[string]struct{}, len(s.CVIDs))
	for _, existing := range s.CVIDs {
		seen[existing] = struct{}{}
	}
	for _, cvID := range cvIDs {
		if _, ok := seen[cvID]; !ok {
			s.CVIDs = append(s.CVIDs, cvID)
			seen[cvID] = struct{}{}
		}
	}
	s.UpdatedAt = time.Now().UTC()
	r.sessions[id] = s
	return nil
}

// AppendMessage adds one conversation turn.
func (r *SessionRepo) AppendMessage(_ domain.Context, id string, m domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("op=session.append: %w", domain.ErrNotFound)
	}
	s.Messages = append(s.Messages, m)
	s.UpdatedAt = time.Now().UTC()
	r.sessions[id] = s
	return nil
}

// Delete removes the session.
func (r *SessionRepo) Delete(_ domain.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return fmt.Errorf("op=session.delete: %w", domain.ErrNotFound)
	}
	delete(r.sessions, id)
	return nil
}
