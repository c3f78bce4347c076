// Package handler contains HTTP handlers for the SlipSight application.
//
// This file implements authentication handlers for signup, login, and logout.
// Authentication itself happens on the BetAnalyzer backend; these handlers
// exchange credentials for a bearer token and bind it to a local session.
package handler

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/slipsight/slipsight/internal/auth"
	"github.com/slipsight/slipsight/internal/backend"
	"github.com/slipsight/slipsight/internal/csrf"
	"github.com/slipsight/slipsight/internal/domain"
	"github.com/slipsight/slipsight/internal/session"
)

// =============================================================================
// Handler Configuration
// =============================================================================

// TemplateRenderer is the interface for rendering HTML templates.
// This interface allows for mocking in tests.
type TemplateRenderer interface {
	RenderHTTP(w http.ResponseWriter, name string, data interface{})
}

// Authenticator is the slice of the backend client these handlers need.
type Authenticator interface {
	Login(ctx context.Context, creds backend.Credentials) (*backend.TokenResponse, error)
	Signup(ctx context.Context, creds backend.Credentials) (*backend.TokenResponse, error)
}

// LoginThrottle records login outcomes for brute-force protection.
//
// NOTE: This is an interface rather than the concrete limiter to avoid an
// import cycle. The middleware package imports handler for error responses,
// so handler cannot import middleware.
type LoginThrottle interface {
	RecordFailedLogin(ip string)
	ResetLogin(ip string)
}

// Flash is a one-shot message rendered at the top of a page.
type Flash struct {
	Type    string // success, error, warning, info
	Message string
}

// AuthPageData is the template data for login and signup pages.
type AuthPageData struct {
	CurrentPath string
	CSRFToken   string
	Form        map[string]string
	Errors      map[string]string
	Flash       *Flash
	ReturnTo    string
}

// AuthHandler handles authentication-related HTTP requests.
//
// Routes handled:
// - GET  /signup -> ShowSignup
// - POST /signup -> Signup
// - GET  /login  -> ShowLogin
// - POST /login  -> Login
// - POST /logout -> Logout
type AuthHandler struct {
	backend  Authenticator
	sessions *session.Store
	throttle LoginThrottle
	renderer TemplateRenderer
	logger   *slog.Logger
	isSecure bool
}

// NewAuthHandler creates a new AuthHandler with the required dependencies.
// throttle may be nil, in which case login outcomes are not recorded.
func NewAuthHandler(
	backend Authenticator,
	sessions *session.Store,
	throttle LoginThrottle,
	renderer TemplateRenderer,
	logger *slog.Logger,
	isSecure bool,
) *AuthHandler {
	return &AuthHandler{
		backend:  backend,
		sessions: sessions,
		throttle: throttle,
		renderer: renderer,
		logger:   logger,
		isSecure: isSecure,
	}
}

// RegisterRoutes registers all auth routes on the provided ServeMux.
// limitLogin and limitSignup wrap the POST handlers with rate limiting;
// either may be nil to register the handler unwrapped.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux, limitLogin, limitSignup func(http.Handler) http.Handler) {
	mux.HandleFunc("GET /signup", h.ShowSignup)
	mux.HandleFunc("GET /login", h.ShowLogin)
	mux.HandleFunc("POST /logout", h.Logout)

	login := http.Handler(http.HandlerFunc(h.Login))
	if limitLogin != nil {
		login = limitLogin(login)
	}
	mux.Handle("POST /login", login)

	signup := http.Handler(http.HandlerFunc(h.Signup))
	if limitSignup != nil {
		signup = limitSignup(signup)
	}
	mux.Handle("POST /signup", signup)
}

// =============================================================================
// GET /signup - Show Signup Form
// =============================================================================

// ShowSignup renders the signup form.
func (h *AuthHandler) ShowSignup(w http.ResponseWriter, r *http.Request) {
	if h.redirectIfAuthenticated(w, r) {
		return
	}

	token, err := csrf.EnsureToken(w, r, h.isSecure)
	if err != nil {
		InternalErrorResponse(w, r, h.logger, err)
		return
	}

	data := AuthPageData{
		CurrentPath: r.URL.Path,
		CSRFToken:   token,
		Form:        make(map[string]string),
		Errors:      make(map[string]string),
		ReturnTo:    r.URL.Query().Get("return_to"),
	}

	h.renderer.RenderHTTP(w, "auth/signup", data)
}

// =============================================================================
// POST /signup - Process Signup
// =============================================================================

// Signup processes the signup form submission.
//
// Form Fields:
// - email (required)
// - password (required, min 8 chars)
// - password_confirmation (required, must match)
//
// On success the backend returns a bearer token immediately, so the new
// account is logged in without a second round trip.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.logger.Error("failed to parse form", "error", err)
		h.renderSignupError(w, r, nil, nil, &Flash{
			Type:    "error",
			Message: "Invalid form submission. Please try again.",
		})
		return
	}

	email := strings.ToLower(strings.TrimSpace(r.FormValue("email")))
	password := r.FormValue("password")
	passwordConfirmation := r.FormValue("password_confirmation")
	returnTo := r.FormValue("return_to")

	// Store form values for re-rendering (except passwords)
	formValues := map[string]string{
		"Email": email,
	}

	if !csrf.ValidateRequest(r) {
		h.renderSignupError(w, r, formValues, nil, &Flash{
			Type:    "error",
			Message: "Invalid security token. Please try again.",
		})
		return
	}

	errors := make(map[string]string)

	if email == "" {
		errors["email"] = "Email is required"
	} else if !isValidEmail(email) {
		errors["email"] = "Please enter a valid email address"
	}

	if password == "" {
		errors["password"] = "Password is required"
	} else if len(password) < 8 {
		errors["password"] = "Password must be at least 8 characters"
	}

	if passwordConfirmation == "" {
		errors["password_confirmation"] = "Please confirm your password"
	} else if password != passwordConfirmation {
		errors["password_confirmation"] = "Passwords do not match"
	}

	if len(errors) > 0 {
		h.renderSignupError(w, r, formValues, errors, nil)
		return
	}

	resp, err := h.backend.Signup(r.Context(), backend.Credentials{
		Email:    email,
		Password: password,
	})
	if err != nil {
		switch domain.ErrorCode(err) {
		case domain.EINVALID:
			h.renderSignupError(w, r, formValues, nil, &Flash{
				Type:    "error",
				Message: domain.ErrorMessage(err),
			})
		case domain.EUNAVAILABLE:
			h.renderSignupError(w, r, formValues, nil, &Flash{
				Type:    "error",
				Message: "We couldn't reach the analysis service. Please try again shortly.",
			})
		default:
			h.logger.Error("signup failed", "error", err, "email", email)
			h.renderSignupError(w, r, formValues, nil, &Flash{
				Type:    "error",
				Message: "Signup failed. Please try again later.",
			})
		}
		return
	}

	if err := h.establishSession(w, resp.Token); err != nil {
		h.logger.Error("session creation after signup failed", "error", err)
		http.Redirect(w, r, "/login?registered=1", http.StatusSeeOther)
		return
	}

	h.logger.Info("user signed up",
		"user_id", resp.User.ID,
		"email", resp.User.Email,
	)

	redirectURL := "/dashboard"
	if returnTo != "" && isSafeRedirectURL(returnTo) {
		redirectURL = returnTo
	}
	http.Redirect(w, r, redirectURL, http.StatusSeeOther)
}

// renderSignupError re-renders the signup form with errors.
func (h *AuthHandler) renderSignupError(
	w http.ResponseWriter,
	r *http.Request,
	formValues map[string]string,
	errors map[string]string,
	flash *Flash,
) {
	if formValues == nil {
		formValues = make(map[string]string)
	}
	if errors == nil {
		errors = make(map[string]string)
	}

	token, err := csrf.RefreshToken(w, h.isSecure)
	if err != nil {
		InternalErrorResponse(w, r, h.logger, err)
		return
	}

	data := AuthPageData{
		CurrentPath: "/signup",
		CSRFToken:   token,
		Form:        formValues,
		Errors:      errors,
		Flash:       flash,
		ReturnTo:    r.FormValue("return_to"),
	}

	h.renderer.RenderHTTP(w, "auth/signup", data)
}

// =============================================================================
// GET /login - Show Login Form
// =============================================================================

// ShowLogin renders the login form.
//
// Query Parameters:
// - return_to (optional): URL to redirect to after successful login
// - registered (optional): If "1", show success message for new signup
// - logout (optional): If "1", show signed-out message
func (h *AuthHandler) ShowLogin(w http.ResponseWriter, r *http.Request) {
	if h.redirectIfAuthenticated(w, r) {
		return
	}

	token, err := csrf.EnsureToken(w, r, h.isSecure)
	if err != nil {
		InternalErrorResponse(w, r, h.logger, err)
		return
	}

	var flash *Flash
	if r.URL.Query().Get("registered") == "1" {
		flash = &Flash{
			Type:    "success",
			Message: "Account created successfully! Please sign in.",
		}
	} else if r.URL.Query().Get("logout") == "1" {
		flash = &Flash{
			Type:    "success",
			Message: "You have been signed out.",
		}
	}

	data := AuthPageData{
		CurrentPath: r.URL.Path,
		CSRFToken:   token,
		Form:        make(map[string]string),
		Errors:      make(map[string]string),
		Flash:       flash,
		ReturnTo:    r.URL.Query().Get("return_to"),
	}

	h.renderer.RenderHTTP(w, "auth/login", data)
}

// =============================================================================
// POST /login - Process Login
// =============================================================================

// Login processes the login form submission.
//
// Security Notes:
// - Always use generic error message: "Invalid email or password"
// - Do NOT reveal whether email exists
// - Failed attempts are recorded against the client IP
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.logger.Error("failed to parse form", "error", err)
		h.renderLoginError(w, r, nil, nil, &Flash{
			Type:    "error",
			Message: "Invalid form submission. Please try again.",
		})
		return
	}

	email := strings.ToLower(strings.TrimSpace(r.FormValue("email")))
	password := r.FormValue("password")
	returnTo := r.FormValue("return_to")

	// Store form values for re-rendering (except password)
	formValues := map[string]string{
		"Email": email,
	}

	if !csrf.ValidateRequest(r) {
		h.renderLoginError(w, r, formValues, nil, &Flash{
			Type:    "error",
			Message: "Invalid security token. Please try again.",
		})
		return
	}

	errors := make(map[string]string)

	if email == "" {
		errors["email"] = "Email is required"
	}

	if password == "" {
		errors["password"] = "Password is required"
	}

	if len(errors) > 0 {
		h.renderLoginError(w, r, formValues, errors, nil)
		return
	}

	resp, err := h.backend.Login(r.Context(), backend.Credentials{
		Email:    email,
		Password: password,
	})
	if err != nil {
		switch domain.ErrorCode(err) {
		case domain.EUNAUTHORIZED:
			// Invalid credentials - use generic message
			if h.throttle != nil {
				h.throttle.RecordFailedLogin(clientIP(r))
			}
			h.renderLoginError(w, r, formValues, nil, &Flash{
				Type:    "error",
				Message: "Invalid email or password",
			})
		case domain.EUNAVAILABLE:
			h.renderLoginError(w, r, formValues, nil, &Flash{
				Type:    "error",
				Message: "We couldn't reach the analysis service. Please try again shortly.",
			})
		default:
			h.logger.Error("login failed", "error", err, "email", email)
			h.renderLoginError(w, r, formValues, nil, &Flash{
				Type:    "error",
				Message: "Login failed. Please try again later.",
			})
		}
		return
	}

	if err := h.establishSession(w, resp.Token); err != nil {
		h.logger.Error("session creation after login failed", "error", err)
		InternalErrorResponse(w, r, h.logger, err)
		return
	}

	if h.throttle != nil {
		h.throttle.ResetLogin(clientIP(r))
	}

	h.logger.Info("user logged in",
		"user_id", resp.User.ID,
		"email", resp.User.Email,
	)

	redirectURL := "/dashboard"
	if returnTo != "" && isSafeRedirectURL(returnTo) {
		redirectURL = returnTo
	}
	http.Redirect(w, r, redirectURL, http.StatusSeeOther)
}

// renderLoginError re-renders the login form with errors.
func (h *AuthHandler) renderLoginError(
	w http.ResponseWriter,
	r *http.Request,
	formValues map[string]string,
	errors map[string]string,
	flash *Flash,
) {
	if formValues == nil {
		formValues = make(map[string]string)
	}
	if errors == nil {
		errors = make(map[string]string)
	}

	token, err := csrf.RefreshToken(w, h.isSecure)
	if err != nil {
		InternalErrorResponse(w, r, h.logger, err)
		return
	}

	data := AuthPageData{
		CurrentPath: "/login",
		CSRFToken:   token,
		Form:        formValues,
		Errors:      errors,
		Flash:       flash,
		ReturnTo:    r.FormValue("return_to"),
	}

	h.renderer.RenderHTTP(w, "auth/login", data)
}

// =============================================================================
// POST /logout - Process Logout
// =============================================================================

// Logout discards the local session and clears the session cookie.
//
// Notes:
// - This operation is idempotent - calling without a session is fine
// - The backend token is simply forgotten; there is no server-side revocation
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sess := h.sessions.FromRequest(r); sess != nil {
		h.sessions.Delete(sess.ID)
	}

	session.ClearCookie(w, h.isSecure)

	h.logger.Debug("user logged out")

	http.Redirect(w, r, "/login?logout=1", http.StatusSeeOther)
}

// =============================================================================
// Helper Functions
// =============================================================================

// establishSession creates a local session bound to the backend token and
// sets the session cookie.
func (h *AuthHandler) establishSession(w http.ResponseWriter, token string) error {
	sess, err := h.sessions.Create()
	if err != nil {
		return err
	}
	sess.SetToken(token)
	session.SetCookie(w, sess.ID, h.isSecure)
	return nil
}

// redirectIfAuthenticated sends logged-in users to the dashboard (or a safe
// return_to) instead of showing auth forms. Reports whether it redirected.
func (h *AuthHandler) redirectIfAuthenticated(w http.ResponseWriter, r *http.Request) bool {
	sess := auth.GetSession(r.Context())
	if sess == nil {
		sess = h.sessions.FromRequest(r)
	}
	if sess == nil || !sess.Authenticated() {
		return false
	}

	returnTo := r.URL.Query().Get("return_to")
	if returnTo != "" && isSafeRedirectURL(returnTo) {
		http.Redirect(w, r, returnTo, http.StatusSeeOther)
		return true
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
	return true
}

// isValidEmail performs basic email format validation.
//
// This is a simple check - the backend performs the thorough validation.
// We do this basic check to provide immediate feedback to users.
func isValidEmail(email string) bool {
	atIndex := strings.Index(email, "@")
	if atIndex < 1 {
		return false
	}
	if atIndex >= len(email)-1 {
		return false
	}

	domainPart := email[atIndex+1:]
	return strings.Contains(domainPart, ".")
}

// isSafeRedirectURL checks if a URL is safe to redirect to.
//
// This prevents open redirect vulnerabilities by ensuring:
// - URL is relative (starts with /)
// - URL is not a protocol-relative URL (not //)
func isSafeRedirectURL(rawURL string) bool {
	if !strings.HasPrefix(rawURL, "/") {
		return false
	}
	if strings.HasPrefix(rawURL, "//") {
		return false
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return parsed.Host == "" && parsed.Scheme == ""
}

// clientIP extracts the client IP from the request, considering proxy headers.
//
// NOTE: Duplicated from the middleware package to avoid an import cycle.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
