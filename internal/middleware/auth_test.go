package middleware

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/slipsight/slipsight/internal/auth"
	"github.com/slipsight/slipsight/internal/session"
)

// =============================================================================
// Test Fixtures
// =============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testStore(t *testing.T) *session.Store {
	t.Helper()
	return session.NewStore(session.StoreConfig{}, testLogger())
}

func newTestSessionMiddleware(t *testing.T, store *session.Store, isAdmin func(string) bool) *SessionMiddleware {
	t.Helper()
	return NewSessionMiddleware(store, testLogger(), false, isAdmin)
}

// loggedInSession creates a session holding a token and sets its cookie on req.
func loggedInSession(t *testing.T, store *session.Store, req *http.Request) *session.Session {
	t.Helper()
	sess, err := store.Create()
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	sess.SetToken("opaque-test-token")
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: sess.ID})
	return sess
}

// =============================================================================
// WithSession Tests
// =============================================================================

func TestWithSession_NoCookie(t *testing.T) {
	store := testStore(t)
	mw := newTestSessionMiddleware(t, store, nil)

	var got *session.Session
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = auth.GetSession(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	mw.WithSession(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if got != nil {
		t.Error("expected no session in context without cookie")
	}
}

func TestWithSession_ValidCookie(t *testing.T) {
	store := testStore(t)
	mw := newTestSessionMiddleware(t, store, nil)

	req := httptest.NewRequest("GET", "/", nil)
	want := loggedInSession(t, store, req)

	var got *session.Session
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = auth.GetSession(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	mw.WithSession(handler).ServeHTTP(rec, req)

	if got == nil {
		t.Fatal("expected session in context")
	}
	if got.ID != want.ID {
		t.Errorf("expected session %s, got %s", want.ID, got.ID)
	}
}

func TestWithSession_UnknownCookieClearsIt(t *testing.T) {
	store := testStore(t)
	mw := newTestSessionMiddleware(t, store, nil)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "no-such-session"})
	rec := httptest.NewRecorder()
	mw.WithSession(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected request to continue, got %d", rec.Code)
	}

	// The stale cookie should be deleted
	cleared := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("expected stale session cookie to be cleared")
	}
}

func TestWithSession_ExpiredTokenEndsSession(t *testing.T) {
	store := testStore(t)
	mw := newTestSessionMiddleware(t, store, nil)

	var got *session.Session
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = auth.GetSession(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	sess, err := store.Create()
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	sess.SetToken(expiredJWT(t))

	req := httptest.NewRequest("GET", "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: sess.ID})
	rec := httptest.NewRecorder()
	mw.WithSession(handler).ServeHTTP(rec, req)

	if got != nil {
		t.Error("expected no session in context for an expired token")
	}
	if store.Get(sess.ID) != nil {
		t.Error("expected the expired session to be deleted from the store")
	}

	cleared := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("expected the session cookie to be cleared")
	}
}

// expiredJWT builds an unsigned JWT whose exp claim is in the past.
func expiredJWT(t *testing.T) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf(
		`{"user_id":"u1","email":"bettor@example.com","exp":%d}`,
		time.Now().Add(-time.Hour).Unix(),
	)))
	return header + "." + payload + ".sig"
}

// =============================================================================
// RequireSession Tests
// =============================================================================

func TestRequireSession_RedirectsAnonymousHTML(t *testing.T) {
	store := testStore(t)
	mw := newTestSessionMiddleware(t, store, nil)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	})

	req := httptest.NewRequest("GET", "/dashboard?tab=picks", nil)
	rec := httptest.NewRecorder()
	mw.WithSession(mw.RequireSession(handler)).ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303 redirect, got %d", rec.Code)
	}
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "/login?return_to=") {
		t.Errorf("expected redirect to login with return_to, got %s", loc)
	}
	if !strings.Contains(loc, "dashboard") {
		t.Errorf("expected return_to to carry original path, got %s", loc)
	}
}

func TestRequireSession_Returns401ForJSON(t *testing.T) {
	store := testStore(t)
	mw := newTestSessionMiddleware(t, store, nil)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	})

	req := httptest.NewRequest("GET", "/dashboard", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	mw.WithSession(mw.RequireSession(handler)).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for JSON request, got %d", rec.Code)
	}
}

func TestRequireSession_AllowsAuthenticated(t *testing.T) {
	store := testStore(t)
	mw := newTestSessionMiddleware(t, store, nil)

	req := httptest.NewRequest("GET", "/dashboard", nil)
	loggedInSession(t, store, req)

	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	mw.WithSession(mw.RequireSession(handler)).ServeHTTP(rec, req)

	if !called {
		t.Error("expected handler to be called")
	}
}

func TestRequireSession_RejectsTokenlessSession(t *testing.T) {
	// A session whose token was destroyed by a backend 401 must re-login.
	store := testStore(t)
	mw := newTestSessionMiddleware(t, store, nil)

	req := httptest.NewRequest("GET", "/dashboard", nil)
	sess := loggedInSession(t, store, req)
	sess.ClearToken()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	})

	rec := httptest.NewRecorder()
	mw.WithSession(mw.RequireSession(handler)).ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Errorf("expected redirect to login, got %d", rec.Code)
	}
}

// =============================================================================
// RequireAdmin Tests
// =============================================================================

func TestRequireAdmin_DeniesWithoutAdminEmail(t *testing.T) {
	store := testStore(t)
	mw := newTestSessionMiddleware(t, store, func(email string) bool {
		return email == "admin@slipsight.io"
	})

	req := httptest.NewRequest("GET", "/admin", nil)
	loggedInSession(t, store, req) // opaque token yields an empty identity

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	})

	rec := httptest.NewRecorder()
	mw.WithSession(mw.RequireSession(mw.RequireAdmin(handler))).ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Errorf("expected redirect away from admin, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/dashboard" {
		t.Errorf("expected redirect to /dashboard, got %s", loc)
	}
}

func TestRequireAdmin_NilCheckerDeniesEveryone(t *testing.T) {
	store := testStore(t)
	mw := newTestSessionMiddleware(t, store, nil)

	req := httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("Accept", "application/json")
	loggedInSession(t, store, req)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	})

	rec := httptest.NewRecorder()
	mw.WithSession(mw.RequireSession(mw.RequireAdmin(handler))).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

// =============================================================================
// Stack Tests
// =============================================================================

func TestStack_AppliesInOrder(t *testing.T) {
	var order []string

	mk := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	})

	stack := Stack(mk("first"), mk("second"), mk("third"))

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	stack(handler).ServeHTTP(rec, req)

	want := []string{"first", "second", "third", "handler"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], order[i])
		}
	}
}

// =============================================================================
// isAPIRequest Tests
// =============================================================================

func TestIsAPIRequest(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(r *http.Request)
		path   string
		expect bool
	}{
		{
			name:   "accept json",
			setup:  func(r *http.Request) { r.Header.Set("Accept", "application/json") },
			path:   "/dashboard",
			expect: true,
		},
		{
			name:   "content type json",
			setup:  func(r *http.Request) { r.Header.Set("Content-Type", "application/json") },
			path:   "/dashboard",
			expect: true,
		},
		{
			name:   "api path",
			setup:  func(r *http.Request) {},
			path:   "/api/usage",
			expect: true,
		},
		{
			name:   "plain html request",
			setup:  func(r *http.Request) { r.Header.Set("Accept", "text/html") },
			path:   "/dashboard",
			expect: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tc.path, nil)
			tc.setup(req)
			if got := isAPIRequest(req); got != tc.expect {
				t.Errorf("expected %v, got %v", tc.expect, got)
			}
		})
	}
}
