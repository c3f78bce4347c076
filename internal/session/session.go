package session

import (
	"sync"

	"github.com/slipsight/slipsight/internal/domain"
)

// Session is one authenticated browser session. It is the single writer for
// the bearer token, the identity derived from it, and the cached usage
// snapshot; readers always observe the last-written values.
type Session struct {
	ID string

	mu       sync.RWMutex
	token    string
	identity domain.Identity
	usage    *domain.UsageSnapshot
}

// Token returns the bearer token, or "" when unauthenticated.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SetToken stores a fresh bearer token and re-derives the identity from its
// payload. An undecodable payload leaves the identity empty; the session is
// still optimistically authenticated and the backend's first 401 settles it.
func (s *Session) SetToken(token string) {
	identity, err := domain.ParseIdentity(token)
	if err != nil {
		identity = domain.Identity{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.identity = identity
	s.usage = nil
}

// ClearToken destroys the token and derived identity atomically. It is
// idempotent: clearing an unauthenticated session is a no-op.
func (s *Session) ClearToken() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.identity = domain.Identity{}
	s.usage = nil
}

// Authenticated reports whether a token is present. No server validation is
// implied; the first authenticated call is the authority.
func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

// Identity returns the identity decoded from the current token.
func (s *Session) Identity() domain.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// Usage returns the cached usage snapshot, or nil when none has been fetched
// yet. The snapshot is replaced wholesale by SetUsage, never mutated.
func (s *Session) Usage() *domain.UsageSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usage
}

// SetUsage replaces the cached snapshot. Callers pass the fresh fetch result;
// on fetch failure they simply do not call this, which retains the stale
// snapshot per the usage ledger contract.
func (s *Session) SetUsage(snapshot *domain.UsageSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = snapshot
}
