// This file implements the dashboard and the slip analysis flow: the upload
// form, usage banner, curated daily picks, and the analyze submission itself.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/slipsight/slipsight/internal/auth"
	"github.com/slipsight/slipsight/internal/csrf"
	"github.com/slipsight/slipsight/internal/domain"
	"github.com/slipsight/slipsight/internal/entitlement"
	"github.com/slipsight/slipsight/internal/imageprep"
	"github.com/slipsight/slipsight/internal/service"
	"github.com/slipsight/slipsight/internal/session"
)

// =============================================================================
// Template Data Types
// =============================================================================

// DashboardPageData contains data for the dashboard page.
type DashboardPageData struct {
	CurrentPath string
	Email       string
	Usage       *domain.UsageSnapshot
	LowBalance  bool                // true when few free analyses remain
	ShowUpgrade bool                // true when the upgrade prompt should render
	PicksLocked bool                // true when picks are withheld pending upgrade
	Picks       []domain.DailyPick  // curated daily picks (may be empty)
	Stats       *domain.UserStats   // betting record (nil if unavailable)
	Flash       *Flash
	CSRFToken   string
}

// AnalysisPageData contains data for the analysis result page.
type AnalysisPageData struct {
	CurrentPath string
	Email       string
	Analysis    *domain.BetAnalysis
	Usage       *domain.UsageSnapshot
	Flash       *Flash
	CSRFToken   string
}

// =============================================================================
// Handler
// =============================================================================

// DashboardBackend is the slice of the backend client the dashboard reads from.
type DashboardBackend interface {
	DailyPicks(ctx context.Context, token string) ([]domain.DailyPick, error)
	Stats(ctx context.Context, token string) (*domain.UserStats, error)
}

// DashboardHandler handles the dashboard page and slip analysis submissions.
//
// Routes handled:
// - GET  /dashboard -> Show
// - POST /analyze   -> Analyze
type DashboardHandler struct {
	backend  DashboardBackend
	analyzer *service.Analyzer
	ledger   *service.UsageLedger
	renderer TemplateRenderer
	logger   *slog.Logger
	isSecure bool
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(
	backend DashboardBackend,
	analyzer *service.Analyzer,
	ledger *service.UsageLedger,
	renderer TemplateRenderer,
	logger *slog.Logger,
	isSecure bool,
) *DashboardHandler {
	return &DashboardHandler{
		backend:  backend,
		analyzer: analyzer,
		ledger:   ledger,
		renderer: renderer,
		logger:   logger,
		isSecure: isSecure,
	}
}

// RegisterRoutes registers dashboard routes with the provided mux.
// All routes require authentication. limitAnalyze additionally rate limits
// slip submissions and may be nil.
func (h *DashboardHandler) RegisterRoutes(mux *http.ServeMux, requireSession, limitAnalyze func(http.Handler) http.Handler) {
	mux.Handle("GET /dashboard", requireSession(http.HandlerFunc(h.Show)))

	analyze := http.Handler(http.HandlerFunc(h.Analyze))
	if limitAnalyze != nil {
		analyze = limitAnalyze(analyze)
	}
	mux.Handle("POST /analyze", requireSession(analyze))
}

// =============================================================================
// GET /dashboard - Show Dashboard
// =============================================================================

// Show renders the dashboard: upload form, usage banner, daily picks, and
// the user's betting record.
//
// Usage is refreshed from the backend on every page load so the banner
// reflects server truth. If the refresh fails the last known snapshot is
// rendered instead; only an auth failure ends the session.
func (h *DashboardHandler) Show(w http.ResponseWriter, r *http.Request) {
	sess := auth.GetSession(r.Context())

	usage, err := h.ledger.Refresh(r.Context(), sess)
	if err != nil {
		if domain.IsAuthError(err) {
			session.ClearCookie(w, h.isSecure)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		// Stale-but-usable: fall back to the cached snapshot.
		usage = sess.Usage()
	}

	token, err := csrf.EnsureToken(w, r, h.isSecure)
	if err != nil {
		InternalErrorResponse(w, r, h.logger, err)
		return
	}

	data := DashboardPageData{
		CurrentPath: r.URL.Path,
		Email:       sess.Identity().Email,
		Usage:       usage,
		CSRFToken:   token,
	}

	if usage != nil {
		data.LowBalance = entitlement.LowBalanceWarning(usage)
		data.ShowUpgrade = entitlement.Decide(usage) == entitlement.Block
	}

	if flash := flashFromQuery(r); flash != nil {
		data.Flash = flash
	}

	// Picks are withheld once a free-tier user runs out of analyses; the
	// section renders a locked notice instead.
	data.PicksLocked = data.ShowUpgrade

	// Picks and stats are decorative; failures degrade to an empty section.
	if !data.PicksLocked {
		if picks, err := h.backend.DailyPicks(r.Context(), sess.Token()); err != nil {
			h.logger.Warn("daily picks fetch failed", "error", err)
		} else {
			data.Picks = picks
		}
	}

	if stats, err := h.backend.Stats(r.Context(), sess.Token()); err != nil {
		h.logger.Warn("stats fetch failed", "error", err)
	} else {
		data.Stats = stats
	}

	h.renderer.RenderHTTP(w, "dashboard", data)
}

// =============================================================================
// POST /analyze - Submit Slip for Analysis
// =============================================================================

// Analyze accepts a bet-slip screenshot upload and submits it for analysis.
//
// Form Fields:
// - slip_image (required): the screenshot file
// - csrf_token (required)
//
// On success the analysis result page is rendered. When the free tier is
// exhausted (locally or per the backend's 403) the dashboard re-renders with
// the upgrade prompt instead.
func (h *DashboardHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	sess := auth.GetSession(r.Context())

	// Cap the request body before parsing; the slip itself is checked
	// against the tighter limit during preparation.
	r.Body = http.MaxBytesReader(w, r.Body, imageprep.MaxUploadBytes+64*1024)

	if err := r.ParseMultipartForm(imageprep.MaxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.renderUploadError(w, r, sess, &Flash{
				Type:    "error",
				Message: "That image is too large. Please upload one under 10MB.",
			})
			return
		}
		h.renderUploadError(w, r, sess, &Flash{
			Type:    "error",
			Message: "Invalid form submission. Please try again.",
		})
		return
	}

	if !csrf.ValidateRequest(r) {
		h.renderUploadError(w, r, sess, &Flash{
			Type:    "error",
			Message: "Invalid security token. Please try again.",
		})
		return
	}

	file, header, err := r.FormFile("slip_image")
	if err != nil {
		h.renderUploadError(w, r, sess, &Flash{
			Type:    "error",
			Message: "Please select a betting slip image",
		})
		return
	}
	defer file.Close()

	analysis, err := h.analyzer.Analyze(r.Context(), sess, header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		switch {
		case domain.IsUpgradeRequired(err):
			h.renderUpgradePrompt(w, r, sess, domain.ErrorMessage(err))
		case domain.IsAuthError(err):
			session.ClearCookie(w, h.isSecure)
			http.Redirect(w, r, "/login?return_to=/dashboard", http.StatusSeeOther)
		case domain.ErrorCode(err) == domain.EINVALID,
			domain.ErrorCode(err) == domain.ETOOLARGE:
			h.renderUploadError(w, r, sess, &Flash{
				Type:    "error",
				Message: domain.ErrorMessage(err),
			})
		case domain.ErrorCode(err) == domain.ERATELIMIT:
			h.renderUploadError(w, r, sess, &Flash{
				Type:    "warning",
				Message: "You're analyzing slips too quickly. Give it a moment and try again.",
			})
		case domain.ErrorCode(err) == domain.EUNAVAILABLE:
			h.renderUploadError(w, r, sess, &Flash{
				Type:    "error",
				Message: "We couldn't reach the analysis service. Please try again shortly.",
			})
		default:
			h.logger.Error("analysis failed", "error", err)
			h.renderUploadError(w, r, sess, &Flash{
				Type:    "error",
				Message: "Analysis failed. Please try again later.",
			})
		}
		return
	}

	token, err := csrf.EnsureToken(w, r, h.isSecure)
	if err != nil {
		InternalErrorResponse(w, r, h.logger, err)
		return
	}

	h.renderer.RenderHTTP(w, "analysis", AnalysisPageData{
		CurrentPath: "/dashboard",
		Email:       sess.Identity().Email,
		Analysis:    analysis,
		Usage:       sess.Usage(),
		CSRFToken:   token,
	})
}

// renderUploadError re-renders the dashboard with an error flash.
func (h *DashboardHandler) renderUploadError(w http.ResponseWriter, r *http.Request, sess *session.Session, flash *Flash) {
	h.renderDashboard(w, r, sess, flash, false)
}

// renderUpgradePrompt re-renders the dashboard with the subscription prompt.
func (h *DashboardHandler) renderUpgradePrompt(w http.ResponseWriter, r *http.Request, sess *session.Session, message string) {
	h.renderDashboard(w, r, sess, &Flash{Type: "warning", Message: message}, true)
}

func (h *DashboardHandler) renderDashboard(w http.ResponseWriter, r *http.Request, sess *session.Session, flash *Flash, showUpgrade bool) {
	token, err := csrf.EnsureToken(w, r, h.isSecure)
	if err != nil {
		InternalErrorResponse(w, r, h.logger, err)
		return
	}

	usage := sess.Usage()
	data := DashboardPageData{
		CurrentPath: "/dashboard",
		Email:       sess.Identity().Email,
		Usage:       usage,
		ShowUpgrade: showUpgrade,
		Flash:       flash,
		CSRFToken:   token,
	}
	if usage != nil {
		data.LowBalance = entitlement.LowBalanceWarning(usage)
	}

	h.renderer.RenderHTTP(w, "dashboard", data)
}

// flashFromQuery maps known query params to a flash message.
func flashFromQuery(r *http.Request) *Flash {
	switch {
	case r.URL.Query().Get("subscribed") == "1":
		return &Flash{
			Type:    "success",
			Message: "You're subscribed! Unlimited analyses are now unlocked.",
		}
	case r.URL.Query().Get("outcome_recorded") == "1":
		return &Flash{
			Type:    "success",
			Message: "Outcome recorded.",
		}
	default:
		return nil
	}
}
