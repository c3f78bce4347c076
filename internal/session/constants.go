// Package session owns the backend bearer token and the identity derived
// from it for the lifetime of an authenticated browser session.
package session

import "time"

const (
	// CookieName is the name of the cookie that stores the session ID.
	CookieName = "slipsight_session"

	// CookiePath ensures the cookie is sent with all requests.
	CookiePath = "/"

	// CookieMaxAge sets the cookie expiration (7 days = 604800 seconds).
	// This matches DefaultTTL below.
	CookieMaxAge = 7 * 24 * 60 * 60

	// DefaultTTL is how long an idle session survives in the store.
	DefaultTTL = 7 * 24 * time.Hour

	// DefaultMaxSessions bounds the store; the oldest session is evicted
	// when the bound is hit, forcing that user to log in again.
	DefaultMaxSessions = 16384
)
