package session

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/slipsight/slipsight/internal/metrics"
)

// Store holds live sessions keyed by session ID. It is bounded and
// TTL-evicting: sessions disappear after DefaultTTL of existence or when the
// size bound pushes the oldest out, either way forcing a fresh login.
type Store struct {
	cache  *expirable.LRU[string, *Session]
	logger *slog.Logger
}

// StoreConfig configures the session store.
type StoreConfig struct {
	MaxSessions int           // 0 means DefaultMaxSessions
	TTL         time.Duration // 0 means DefaultTTL
}

// NewStore creates a session store.
func NewStore(cfg StoreConfig, logger *slog.Logger) *Store {
	size := cfg.MaxSessions
	if size <= 0 {
		size = DefaultMaxSessions
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s := &Store{logger: logger}
	s.cache = expirable.NewLRU[string, *Session](size, func(id string, _ *Session) {
		metrics.SessionsActive.Dec()
		logger.Debug("session evicted", "session_id", id)
	}, ttl)
	return s
}

// Create mints a new empty session and returns it.
func (s *Store) Create() (*Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}
	sess := &Session{ID: id}
	s.cache.Add(id, sess)
	metrics.SessionsActive.Inc()
	return sess, nil
}

// Get returns the session with the given ID, or nil if unknown or expired.
func (s *Store) Get(id string) *Session {
	if id == "" {
		return nil
	}
	sess, ok := s.cache.Get(id)
	if !ok {
		return nil
	}
	return sess
}

// Delete removes a session. Deleting an unknown ID is a no-op.
func (s *Store) Delete(id string) {
	s.cache.Remove(id)
}

// FromRequest resolves the session referenced by the request cookie, or nil.
func (s *Store) FromRequest(r *http.Request) *Session {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return nil
	}
	return s.Get(cookie.Value)
}

// newSessionID returns 32 bytes of randomness as a 64-char hex string.
func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// SetCookie sets the session cookie on the response.
//
// HttpOnly and SameSite=Lax always; Secure in production.
func SetCookie(w http.ResponseWriter, sessionID string, isSecure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sessionID,
		Path:     CookiePath,
		MaxAge:   CookieMaxAge,
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie removes the session cookie from the client.
func ClearCookie(w http.ResponseWriter, isSecure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     CookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
