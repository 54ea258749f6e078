package session

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/Pnishada/service-desk/internal/domain"
	"github.com/Pnishada/service-desk/internal/events"
	"github.com/Pnishada/service-desk/pkg/util"
)

// Store owns the current identity and token pair, persisted to a JSON file
// so a restarted client resumes its session. Every mutation is published
// synchronously on the dispatcher: by the time Set or Clear returns, all
// subscribers have seen the new session.
type Store struct {
	mu         sync.RWMutex
	path       string
	current    *domain.Session
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewStore builds a store backed by the given file path and loads any
// persisted session. A malformed file is treated as absent and removed.
func NewStore(path string, dispatcher events.Dispatcher, logger *zap.Logger) *Store {
	s := &Store{path: path, dispatcher: dispatcher, logger: logger}
	s.current = s.load()
	return s
}

// Get returns a copy of the current session, or nil when logged out.
func (s *Store) Get() *domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	cp := *s.current
	return &cp
}

// Set replaces the session and persists it. Both the identity and the token
// pair are swapped under one lock so no reader observes a half-updated
// session. A persistence failure keeps the in-memory session and returns a
// PERSISTENCE_FAILED error the caller should treat as non-fatal.
func (s *Store) Set(user domain.User, tokens domain.Tokens) error {
	s.mu.Lock()
	s.current = &domain.Session{User: user, Tokens: tokens}
	persistErr := s.persist(*s.current)
	snapshot := *s.current
	s.mu.Unlock()

	s.publish(events.SessionChanged(&snapshot))

	if persistErr != nil {
		s.logger.Warn("session persistence failed, continuing in memory", zap.Error(persistErr))
		return util.NewPersistenceError(persistErr)
	}
	return nil
}

// UpdateAccessToken swaps only the access token after a successful refresh.
func (s *Store) UpdateAccessToken(access string) error {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return errors.New("no active session")
	}
	s.current.Tokens.Access = access
	persistErr := s.persist(*s.current)
	snapshot := *s.current
	s.mu.Unlock()

	s.publish(events.SessionChanged(&snapshot))

	if persistErr != nil {
		s.logger.Warn("session persistence failed, continuing in memory", zap.Error(persistErr))
		return util.NewPersistenceError(persistErr)
	}
	return nil
}

// Clear removes the identity and both tokens in one call. Idempotent.
func (s *Store) Clear() {
	s.mu.Lock()
	wasSet := s.current != nil
	s.current = nil
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove session file", zap.Error(err))
	}
	s.mu.Unlock()

	if wasSet {
		s.publish(events.SessionCleared())
	}
}

func (s *Store) load() *domain.Session {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil
	}
	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil || sess.Tokens.Access == "" {
		// Corrupt or incomplete record: drop it so the next start is clean.
		s.logger.Warn("discarding malformed session file", zap.String("path", s.path))
		_ = os.Remove(s.path)
		return nil
	}
	return &sess
}

func (s *Store) persist(sess domain.Session) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) publish(event events.Event) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(context.Background(), event)
}
