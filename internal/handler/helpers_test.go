package handler

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/slipsight/slipsight/internal/auth"
	"github.com/slipsight/slipsight/internal/csrf"
	"github.com/slipsight/slipsight/internal/session"
)

// fakeRenderer records the last template rendered instead of producing HTML.
type fakeRenderer struct {
	name string
	data interface{}
}

func (f *fakeRenderer) RenderHTTP(w http.ResponseWriter, name string, data interface{}) {
	f.name = name
	f.data = data
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "rendered:%s", name)
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testStore(t *testing.T) *session.Store {
	t.Helper()
	return session.NewStore(session.StoreConfig{MaxSessions: 16, TTL: time.Minute}, testLogger())
}

// testToken builds an unsigned JWT-shaped token whose payload carries the
// given email, matching what the backend issues.
func testToken(t *testing.T, email string) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload, err := json.Marshal(map[string]interface{}{
		"sub":   "user-1",
		"email": email,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"
}

// newAuthedSession creates a store-backed session holding a valid token.
func newAuthedSession(t *testing.T, store *session.Store, email string) *session.Session {
	t.Helper()
	sess, err := store.Create()
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	sess.SetToken(testToken(t, email))
	return sess
}

// withSession attaches the session to the request context, standing in for
// the session middleware.
func withSession(r *http.Request, sess *session.Session) *http.Request {
	return r.WithContext(auth.SetSession(r.Context(), sess))
}

// formRequest builds a POST with form values and a valid CSRF pair.
func formRequest(t *testing.T, path string, form url.Values) *http.Request {
	t.Helper()
	token, err := csrf.GenerateToken()
	if err != nil {
		t.Fatalf("generate csrf token: %v", err)
	}
	form.Set(csrf.FormFieldName, token)

	req := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: csrf.CookieName, Value: token})
	return req
}

func assertRedirect(t *testing.T, rec *httptest.ResponseRecorder, location string) {
	t.Helper()
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Location"); got != location {
		t.Errorf("expected redirect to %q, got %q", location, got)
	}
}
