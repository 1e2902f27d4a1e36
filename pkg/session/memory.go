package session

import (
	"context"
	"sync"
)

// MemoryStore keeps sessions in process memory.
// Callers receive copies, so a returned session can be read freely while
// other requests update the store.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if sess.IsExpired() {
		delete(m.sessions, id)
		return nil, ErrNotFound
	}
	sess.Touch()
	return sess.clone(), nil
}

func (m *MemoryStore) Set(ctx context.Context, sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess.clone()
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok || sess.IsExpired() {
		delete(m.sessions, id)
		return nil, ErrNotFound
	}

	next := sess.clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.Touch()
	m.sessions[id] = next
	return next.clone(), nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) Cleanup(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, sess := range m.sessions {
		if sess.IsExpired() {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions, including expired ones not yet cleaned up.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

var _ Store = (*MemoryStore)(nil)
