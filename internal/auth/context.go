// Package auth provides session context helpers.
//
// This package is designed to be imported by both middleware and handler
// packages without causing import cycles.
package auth

import (
	"context"

	"github.com/slipsight/slipsight/internal/session"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// sessionContextKey is the key used to store the browser session in context.
	sessionContextKey contextKey = "session"
)

// GetSession retrieves the browser session from the context.
//
// Returns nil when the request carried no known session cookie. A non-nil
// session may still be anonymous; check sess.Authenticated() before trusting
// its identity.
func GetSession(ctx context.Context) *session.Session {
	sess, ok := ctx.Value(sessionContextKey).(*session.Session)
	if !ok {
		return nil
	}
	return sess
}

// SetSession stores a session in the context.
//
// This is called by the session middleware after resolving the cookie.
func SetSession(ctx context.Context, sess *session.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, sess)
}
