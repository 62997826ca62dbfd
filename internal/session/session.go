// Package session models the authenticated user session as an explicit
// lifecycle object. Components that need the identity or the teardown hook
// receive the session by reference; there is no ambient global state to
// mutate on logout.
package session

import (
	"sync"

	"devroom/internal/chat"
	"devroom/internal/logger"
)

// Clearer is the slice of the persistence layer the session needs for
// logout: the process-wide wipe of every project's records.
type Clearer interface {
	ClearAll() error
}

// Session is one authenticated user session.
type Session struct {
	user  chat.UserRef
	token string
	store Clearer
	log   *logger.Logger

	once     sync.Once
	tornDown bool
	mu       sync.Mutex
}

// New creates a session for an authenticated user. store may be nil when
// persistence is unavailable; teardown then only invalidates the session.
func New(user chat.UserRef, token string, store Clearer) *Session {
	return &Session{
		user:  user,
		token: token,
		store: store,
		log:   logger.Global().WithPrefix("session"),
	}
}

// User returns the authenticated user.
func (s *Session) User() chat.UserRef {
	return s.user
}

// Token returns the bearer token for upstream REST calls.
func (s *Session) Token() string {
	return s.token
}

// Active reports whether the session has not been torn down.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.tornDown
}

// Teardown ends the session: it clears every project's persisted chat log
// and archive, not just the active one. It runs exactly once; later calls
// are no-ops returning the first outcome's nil.
func (s *Session) Teardown() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.tornDown = true
		s.mu.Unlock()

		if s.store != nil {
			if clearErr := s.store.ClearAll(); clearErr != nil {
				s.log.Error("failed to clear persisted sessions on logout: %v", clearErr)
				err = clearErr
				return
			}
		}
		s.log.Info("session for %s torn down", s.user.ID)
	})
	return err
}
