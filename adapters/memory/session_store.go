package memory

import (
	"context"
	"encoding/json"
	"sync"

	"multcheck/domain/core"
	"multcheck/domain/registry"
	apperrors "multcheck/internal/errors"
)

// SessionStore is a map-backed registry.SessionStore for tests and
// single-node deployments. Sessions are stored as serialized documents so
// callers never share memory with the store.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[core.SessionID][]byte
}

// NewSessionStore creates an empty in-memory store
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[core.SessionID][]byte),
	}
}

// Save stores a serialized copy of the session
func (s *SessionStore) Save(ctx context.Context, session *registry.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return apperrors.Wrap(err, "failed to serialize session")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = payload
	return nil
}

// Load returns a fresh copy of the stored session
func (s *SessionStore) Load(ctx context.Context, id core.SessionID) (*registry.Session, error) {
	s.mu.RLock()
	payload, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, core.NewSessionNotFoundError(id)
	}

	var session registry.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, apperrors.Wrap(err, "failed to deserialize session")
	}
	return &session, nil
}

// Delete removes a stored session
func (s *SessionStore) Delete(ctx context.Context, id core.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return core.NewSessionNotFoundError(id)
	}
	delete(s.sessions, id)
	return nil
}
