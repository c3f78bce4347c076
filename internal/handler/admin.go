// This file implements the admin console. Authorization is enforced twice:
// the RequireAdmin middleware checks the configured admin list, and the
// backend independently rejects non-admin tokens with a 403.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/slipsight/slipsight/internal/auth"
	"github.com/slipsight/slipsight/internal/csrf"
	"github.com/slipsight/slipsight/internal/domain"
)

// =============================================================================
// Template Data Types
// =============================================================================

// AdminPageData contains data for the admin console page.
type AdminPageData struct {
	CurrentPath string
	Email       string
	Stats       *domain.AdminStats
	Users       []domain.AdminUser
	Flash       *Flash
	CSRFToken   string
}

// =============================================================================
// Handler
// =============================================================================

// AdminBackend is the slice of the backend client the admin console uses.
type AdminBackend interface {
	AdminStats(ctx context.Context, token string) (*domain.AdminStats, error)
	AdminUsers(ctx context.Context, token string) ([]domain.AdminUser, error)
	BanUser(ctx context.Context, token, userID, reason string) error
	UnbanUser(ctx context.Context, token, userID string) error
}

// AdminHandler handles the admin console.
//
// Routes handled:
// - GET  /admin                  -> Index
// - POST /admin/users/{id}/ban   -> BanUser
// - POST /admin/users/{id}/unban -> UnbanUser
type AdminHandler struct {
	backend  AdminBackend
	renderer TemplateRenderer
	logger   *slog.Logger
	isSecure bool
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(backend AdminBackend, renderer TemplateRenderer, logger *slog.Logger, isSecure bool) *AdminHandler {
	return &AdminHandler{
		backend:  backend,
		renderer: renderer,
		logger:   logger,
		isSecure: isSecure,
	}
}

// RegisterRoutes registers admin routes with the provided mux.
// requireAdmin must stack session and admin checks.
func (h *AdminHandler) RegisterRoutes(mux *http.ServeMux, requireAdmin func(http.Handler) http.Handler) {
	mux.Handle("GET /admin", requireAdmin(http.HandlerFunc(h.Index)))
	mux.Handle("POST /admin/users/{id}/ban", requireAdmin(http.HandlerFunc(h.BanUser)))
	mux.Handle("POST /admin/users/{id}/unban", requireAdmin(http.HandlerFunc(h.UnbanUser)))
}

// =============================================================================
// GET /admin - Admin Console
// =============================================================================

// Index renders platform stats and the user table.
func (h *AdminHandler) Index(w http.ResponseWriter, r *http.Request) {
	sess := auth.GetSession(r.Context())

	stats, err := h.backend.AdminStats(r.Context(), sess.Token())
	if err != nil {
		h.adminError(w, r, err)
		return
	}

	users, err := h.backend.AdminUsers(r.Context(), sess.Token())
	if err != nil {
		h.adminError(w, r, err)
		return
	}

	token, err := csrf.EnsureToken(w, r, h.isSecure)
	if err != nil {
		InternalErrorResponse(w, r, h.logger, err)
		return
	}

	data := AdminPageData{
		CurrentPath: r.URL.Path,
		Email:       sess.Identity().Email,
		Stats:       stats,
		Users:       users,
		CSRFToken:   token,
	}

	switch {
	case r.URL.Query().Get("banned") == "1":
		data.Flash = &Flash{Type: "success", Message: "User banned."}
	case r.URL.Query().Get("unbanned") == "1":
		data.Flash = &Flash{Type: "success", Message: "User unbanned."}
	}

	h.renderer.RenderHTTP(w, "admin/index", data)
}

// =============================================================================
// POST /admin/users/{id}/ban - Ban User
// =============================================================================

// BanUser bans a user, with an optional reason from the form.
func (h *AdminHandler) BanUser(w http.ResponseWriter, r *http.Request) {
	sess := auth.GetSession(r.Context())

	userID := r.PathValue("id")
	if userID == "" {
		NotFoundResponse(w, r, h.logger)
		return
	}

	if err := r.ParseForm(); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("admin.ban", "Invalid form submission"))
		return
	}

	if !csrf.ValidateRequest(r) {
		ErrorResponse(w, r, h.logger, domain.Forbidden("admin.ban", "Invalid security token"))
		return
	}

	reason := strings.TrimSpace(r.FormValue("reason"))

	if err := h.backend.BanUser(r.Context(), sess.Token(), userID, reason); err != nil {
		h.adminError(w, r, err)
		return
	}

	h.logger.Info("user banned", "target_user_id", userID, "admin", sess.Identity().Email)

	http.Redirect(w, r, "/admin?banned=1", http.StatusSeeOther)
}

// =============================================================================
// POST /admin/users/{id}/unban - Unban User
// =============================================================================

// UnbanUser lifts a ban.
func (h *AdminHandler) UnbanUser(w http.ResponseWriter, r *http.Request) {
	sess := auth.GetSession(r.Context())

	userID := r.PathValue("id")
	if userID == "" {
		NotFoundResponse(w, r, h.logger)
		return
	}

	if err := r.ParseForm(); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("admin.unban", "Invalid form submission"))
		return
	}

	if !csrf.ValidateRequest(r) {
		ErrorResponse(w, r, h.logger, domain.Forbidden("admin.unban", "Invalid security token"))
		return
	}

	if err := h.backend.UnbanUser(r.Context(), sess.Token(), userID); err != nil {
		h.adminError(w, r, err)
		return
	}

	h.logger.Info("user unbanned", "target_user_id", userID, "admin", sess.Identity().Email)

	http.Redirect(w, r, "/admin?unbanned=1", http.StatusSeeOther)
}

// adminError handles backend failures on admin endpoints. A backend 403 means
// the local admin list is ahead of the backend's; the user sees the same page
// a non-admin would.
func (h *AdminHandler) adminError(w http.ResponseWriter, r *http.Request, err error) {
	if domain.ErrorCode(err) == domain.EFORBIDDEN {
		h.logger.Warn("backend denied admin access", "error", err)
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	ErrorResponse(w, r, h.logger, err)
}
