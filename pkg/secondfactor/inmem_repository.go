package secondfactor

import (
	"context"
	"sync"
)

// InMemorySessionRepository implements SessionRepository with an in-process
// map. Suitable for single-instance deployments and tests.
type InMemorySessionRepository struct {
	sessions map[string]map[string]string
	mutex    sync.RWMutex
}

// NewInMemorySessionRepository creates a new in-memory session repository
func NewInMemorySessionRepository() *InMemorySessionRepository {
	return &InMemorySessionRepository{
		sessions: make(map[string]map[string]string),
	}
}

func (r *InMemorySessionRepository) GetNote(ctx context.Context, sessionID, name string) (string, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.sessions[sessionID][name], nil
}

func (r *InMemorySessionRepository) SetNote(ctx context.Context, sessionID, name, value string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	notes, ok := r.sessions[sessionID]
	if !ok {
		notes = make(map[string]string)
		r.sessions[sessionID] = notes
	}
	notes[name] = value

	return nil
}

func (r *InMemorySessionRepository) DeleteSession(ctx context.Context, sessionID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	delete(r.sessions, sessionID)
	return nil
}
