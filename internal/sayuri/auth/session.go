// Package auth owns the per-user conversation session and the login state
// machine that moves it from unauthenticated to an authenticated Instagram
// account session.
package auth

import (
	"sync"

	"github.com/bdobrica/Sayuri/internal/sayuri/insta"
)

// State is the position of a user inside the login state machine.
type State int

const (
	StateUnauthenticated State = iota
	StateAwaitingUsername
	StateAwaitingPassword
	StateAwaitingSecondFactor
	StateAwaitingChallenge
	StateAuthenticated
	StateFailed
)

// String returns the lowercase state name used in logs.
func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAwaitingUsername:
		return "awaiting-username"
	case StateAwaitingPassword:
		return "awaiting-password"
	case StateAwaitingSecondFactor:
		return "awaiting-second-factor"
	case StateAwaitingChallenge:
		return "awaiting-challenge"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Session is one user's conversation state. Created on first interaction,
// mutated only by the Machine and explicit logout, destroyed on logout or
// process restart. Nothing in a Session is ever persisted.
//
// Invariant: password is non-empty only while State is one of
// awaiting-password, awaiting-second-factor, awaiting-challenge. The
// transition that reaches Authenticated or Failed clears it — same
// transition, never deferred.
type Session struct {
	// UserID is the opaque chat identity (Matrix user ID), stable across
	// the conversation and the registry key for batch jobs.
	UserID string

	// RoomID is the Matrix room the conversation lives in.
	RoomID string

	// State is the current login state.
	State State

	// Username is the Instagram username collected during login.
	Username string

	// Profile is the account summary captured at login. Nil until
	// authenticated.
	Profile *insta.Profile

	// Settings is the provider's resumable login context, captured after a
	// successful login. Held in memory only.
	Settings []byte

	// TraceID correlates the login attempt across logs.
	TraceID string

	// password is held transiently between SubmitPassword and the provider
	// call that consumes it (2FA retry needs it). Cleared the instant the
	// machine reaches a terminal state.
	password string

	// client is the lazily created account session: one provider handle per
	// user, reused by single and batch actions.
	client insta.Provider
}

// HasPassword reports whether the session currently retains a password.
// Exists for invariant checks; the value itself never leaves the package.
func (s *Session) HasPassword() bool {
	return s.password != ""
}

// Client returns the session's provider handle, or nil before the first
// login attempt.
func (s *Session) Client() insta.Provider {
	return s.client
}

// Store is the process-wide session map: one Session per user ID, created
// on first interaction and removed on logout. Safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore returns an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the session for userID, creating it in
// StateUnauthenticated on first contact. The room ID is refreshed on every
// call so the conversation follows the user's current room.
func (s *Store) GetOrCreate(userID, roomID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		sess = &Session{UserID: userID, State: StateUnauthenticated}
		s.sessions[userID] = sess
	}
	sess.RoomID = roomID
	return sess
}

// Get returns the session for userID if one exists.
func (s *Store) Get(userID string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	return sess, ok
}

// RoomFor resolves the conversation room for userID. Shaped to satisfy
// notify.RoomResolver.
func (s *Store) RoomFor(userID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok || sess.RoomID == "" {
		return "", false
	}
	return sess.RoomID, true
}

// Delete removes the session for userID.
func (s *Store) Delete(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
