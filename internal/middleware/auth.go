// Package middleware contains HTTP middleware for the Slipsight application.
//
// Middleware functions follow the standard Go pattern of wrapping http.Handler.
// They are designed to be composed using a middleware stack approach.
package middleware

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/slipsight/slipsight/internal/auth"
	"github.com/slipsight/slipsight/internal/handler"
	"github.com/slipsight/slipsight/internal/session"
)

// =============================================================================
// Session Middleware
// =============================================================================

// SessionMiddleware resolves the browser session cookie on every request.
type SessionMiddleware struct {
	store    *session.Store
	logger   *slog.Logger
	isSecure bool // Whether to set Secure flag on cookies (true in production)
	isAdmin  func(email string) bool
}

// NewSessionMiddleware creates a new SessionMiddleware instance.
//
// isAdmin decides console access from the session's identity email; pass nil
// to deny all admin access.
func NewSessionMiddleware(store *session.Store, logger *slog.Logger, isSecure bool, isAdmin func(string) bool) *SessionMiddleware {
	if isAdmin == nil {
		isAdmin = func(string) bool { return false }
	}
	return &SessionMiddleware{
		store:    store,
		logger:   logger,
		isSecure: isSecure,
		isAdmin:  isAdmin,
	}
}

// WithSession attaches the session referenced by the request cookie, when one
// exists, and always continues to the next handler.
//
// A cookie pointing at an unknown or evicted session is cleared so the
// browser stops sending it. No session is created here; login and signup mint
// sessions explicitly.
func (m *SessionMiddleware) WithSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(session.CookieName)
		if err != nil {
			// No cookie - continue anonymous
			next.ServeHTTP(w, r)
			return
		}

		sess := m.store.Get(cookie.Value)
		if sess == nil {
			// Stale cookie from an expired or evicted session
			session.ClearCookie(w, m.isSecure)
			next.ServeHTTP(w, r)
			return
		}

		// A token that claims an expiry in the past would only earn a 401
		// from the backend; end the session here instead of spending the
		// round trip.
		if sess.Authenticated() && sess.Identity().Expired() {
			m.logger.Info("session token expired, ending session", "session_id", sess.ID)
			m.store.Delete(sess.ID)
			session.ClearCookie(w, m.isSecure)
			next.ServeHTTP(w, r)
			return
		}

		r = r.WithContext(auth.SetSession(r.Context(), sess))
		next.ServeHTTP(w, r)
	})
}

// RequireSession requires an authenticated session.
//
// Must run after WithSession. Unauthenticated requests are redirected to
// /login with a return_to parameter, or answered 401 when the client wants
// JSON. A session whose token was destroyed mid-flight (backend 401) fails
// here too, which is what forces the re-login.
func (m *SessionMiddleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := auth.GetSession(r.Context())
		if sess == nil || !sess.Authenticated() {
			if isAPIRequest(r) {
				handler.UnauthorizedResponse(w, r, m.logger)
				return
			}

			returnTo := r.URL.Path
			if r.URL.RawQuery != "" {
				returnTo += "?" + r.URL.RawQuery
			}
			http.Redirect(w, r, "/login?return_to="+url.QueryEscape(returnTo), http.StatusSeeOther)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireAdmin requires the session identity to be on the admin list.
//
// Must run after RequireSession. Identity comes from the token payload; the
// backend still enforces admin rights on every console API call, so a forged
// email here gets an empty console, not data.
func (m *SessionMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := auth.GetSession(r.Context())
		if sess == nil || !sess.Authenticated() {
			m.logger.Error("RequireAdmin called without session in context")
			if isAPIRequest(r) {
				handler.UnauthorizedResponse(w, r, m.logger)
			} else {
				http.Redirect(w, r, "/login", http.StatusSeeOther)
			}
			return
		}

		if !m.isAdmin(sess.Identity().Email) {
			if isAPIRequest(r) {
				handler.ForbiddenResponse(w, r, m.logger)
				return
			}
			http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Request Helpers
// =============================================================================

// isAPIRequest determines if the request expects a JSON response.
//
// This is used to decide whether to redirect (HTML) or return JSON errors (API).
func isAPIRequest(r *http.Request) bool {
	// Check Accept header
	accept := r.Header.Get("Accept")
	if strings.Contains(accept, "application/json") {
		return true
	}

	// Check Content-Type
	contentType := r.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/json") {
		return true
	}

	// Check URL path (API routes)
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}

	return false
}

// =============================================================================
// Middleware Stack Helpers
// =============================================================================

// Stack composes multiple middleware functions into a single middleware.
//
// Middleware is applied in the order provided, meaning the first middleware
// in the slice is the outermost (runs first on request, last on response).
//
// Example:
//
//	stack := Stack(loggingMw, sessionMw.WithSession, sessionMw.RequireSession)
//	mux.Handle("GET /dashboard", stack(dashboardHandler))
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// =============================================================================
// Compile-time checks
// =============================================================================

var (
	_ func(http.Handler) http.Handler = (&SessionMiddleware{}).WithSession
	_ func(http.Handler) http.Handler = (&SessionMiddleware{}).RequireSession
	_ func(http.Handler) http.Handler = (&SessionMiddleware{}).RequireAdmin
)
