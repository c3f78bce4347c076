// Package csrf provides CSRF protection using the double-submit cookie pattern.
//
// A random token lives in a cookie and is echoed back as a hidden form field;
// a POST is accepted only when the two match. A cross-origin attacker can make
// the browser send our cookie but cannot read it, so it cannot forge the form
// field.
package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
)

const (
	// CookieName is the name of the CSRF token cookie.
	CookieName = "csrf_token"

	// FormFieldName is the name of the hidden form field carrying the token.
	FormFieldName = "csrf_token"

	// tokenLength is the number of random bytes per token.
	tokenLength = 32

	// CookieMaxAge is the lifetime of the CSRF cookie (1 hour). Shorter than
	// the session cookie so tokens rotate.
	CookieMaxAge = 3600
)

// GenerateToken returns a fresh random token, base64 URL-encoded.
func GenerateToken() (string, error) {
	b := make([]byte, tokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// ValidateToken compares the cookie token with the form token in constant
// time. Empty tokens never validate.
func ValidateToken(cookieToken, formToken string) bool {
	if cookieToken == "" || formToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookieToken), []byte(formToken)) == 1
}

// ValidateRequest checks the double-submit pair on a form POST.
func ValidateRequest(r *http.Request) bool {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return false
	}
	return ValidateToken(cookie.Value, r.FormValue(FormFieldName))
}

// SetCookie sets the CSRF token cookie on the response.
//
// Not HttpOnly: the value is rendered into form fields server-side, and
// SameSite=Strict blocks the cross-site sends that would matter.
func SetCookie(w http.ResponseWriter, token string, isSecure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   CookieMaxAge,
		HttpOnly: false,
		Secure:   isSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

// GetTokenFromRequest returns the CSRF token from the request cookie, or "".
func GetTokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// EnsureToken returns the request's CSRF token, minting and setting one when
// the cookie is missing. Handlers call this when rendering a form.
func EnsureToken(w http.ResponseWriter, r *http.Request, isSecure bool) (string, error) {
	if existing := GetTokenFromRequest(r); existing != "" {
		return existing, nil
	}

	token, err := GenerateToken()
	if err != nil {
		return "", err
	}
	SetCookie(w, token, isSecure)
	return token, nil
}

// RefreshToken rotates the token after a successful form submission.
func RefreshToken(w http.ResponseWriter, isSecure bool) (string, error) {
	token, err := GenerateToken()
	if err != nil {
		return "", err
	}
	SetCookie(w, token, isSecure)
	return token, nil
}
