// Package session owns conversation state and round execution: the
// in-memory session store, file persistence, the bounded worker pool,
// the round coordinator and the subtask executor.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/smancode/sman-sub006/internal/event"
	"github.com/smancode/sman-sub006/internal/logging"
	"github.com/smancode/sman-sub006/internal/storage"
	"github.com/smancode/sman-sub006/pkg/types"
)

// Store keeps live sessions in memory, falling back to the file store
// for sessions from earlier runs.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*types.Session

	files *FileStore
	bus   *event.Bus
}

// NewStore creates a session store. files and bus may be nil.
func NewStore(files *FileStore, bus *event.Bus) *Store {
	return &Store{
		sessions: make(map[string]*types.Session),
		files:    files,
		bus:      bus,
	}
}

// GetOrCreate returns the session with the given id, loading it from
// disk if needed and creating it otherwise. The second return value
// reports whether the session was newly created.
func (s *Store) GetOrCreate(ctx context.Context, id, projectKey string) (*types.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		return sess, false
	}

	if s.files != nil {
		sess, err := s.files.Load(ctx, id)
		if err == nil {
			s.sessions[id] = sess
			return sess, false
		}
		if !errors.Is(err, storage.ErrNotFound) {
			logging.ForSession(id).Warn().Err(err).Msg("session file unreadable, starting fresh")
		}
	}

	sess := types.NewSession(id, projectKey)
	s.sessions[id] = sess
	if s.bus != nil {
		s.bus.Publish(event.Event{Type: event.SessionCreated, Data: event.SessionData{SessionID: id}})
	}
	return sess, true
}

// Get returns the session if it is resident in memory.
func (s *Store) Get(id string) (*types.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Remove drops the session from memory. Persisted state is untouched.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// List returns a snapshot of all resident sessions.
func (s *Store) List() []*types.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}
