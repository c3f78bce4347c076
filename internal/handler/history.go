// This file implements the analysis history page and outcome recording.
// History is backend-owned; these handlers render it and forward outcome
// submissions, re-fetching on the next page load rather than mutating any
// local copy.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/slipsight/slipsight/internal/auth"
	"github.com/slipsight/slipsight/internal/csrf"
	"github.com/slipsight/slipsight/internal/domain"
	"github.com/slipsight/slipsight/internal/session"
)

// =============================================================================
// Template Data Types
// =============================================================================

// HistoryPageData contains data for the history page.
type HistoryPageData struct {
	CurrentPath string
	Email       string
	Entries     []domain.HistoryEntry
	Stats       *domain.UserStats // nil if unavailable
	Flash       *Flash
	CSRFToken   string
}

// =============================================================================
// Handler
// =============================================================================

// HistoryBackend is the slice of the backend client the history page uses.
type HistoryBackend interface {
	History(ctx context.Context, token string) ([]domain.HistoryEntry, error)
	Stats(ctx context.Context, token string) (*domain.UserStats, error)
	RecordOutcome(ctx context.Context, token, analysisID string, outcome domain.BetOutcome) error
}

// HistoryHandler handles the analysis history and outcome recording.
//
// Routes handled:
// - GET  /history               -> Index
// - POST /history/{id}/outcome  -> RecordOutcome
type HistoryHandler struct {
	backend  HistoryBackend
	renderer TemplateRenderer
	logger   *slog.Logger
	isSecure bool
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(backend HistoryBackend, renderer TemplateRenderer, logger *slog.Logger, isSecure bool) *HistoryHandler {
	return &HistoryHandler{
		backend:  backend,
		renderer: renderer,
		logger:   logger,
		isSecure: isSecure,
	}
}

// RegisterRoutes registers history routes with the provided mux.
// All routes require authentication.
func (h *HistoryHandler) RegisterRoutes(mux *http.ServeMux, requireSession func(http.Handler) http.Handler) {
	mux.Handle("GET /history", requireSession(http.HandlerFunc(h.Index)))
	mux.Handle("POST /history/{id}/outcome", requireSession(http.HandlerFunc(h.RecordOutcome)))
}

// =============================================================================
// GET /history - List Past Analyses
// =============================================================================

// Index renders the user's past analyses with their recorded outcomes.
func (h *HistoryHandler) Index(w http.ResponseWriter, r *http.Request) {
	sess := auth.GetSession(r.Context())

	entries, err := h.backend.History(r.Context(), sess.Token())
	if err != nil {
		if domain.IsAuthError(err) {
			sess.ClearToken()
			session.ClearCookie(w, h.isSecure)
			http.Redirect(w, r, "/login?return_to=/history", http.StatusSeeOther)
			return
		}
		ErrorResponse(w, r, h.logger, err)
		return
	}

	token, err := csrf.EnsureToken(w, r, h.isSecure)
	if err != nil {
		InternalErrorResponse(w, r, h.logger, err)
		return
	}

	data := HistoryPageData{
		CurrentPath: r.URL.Path,
		Email:       sess.Identity().Email,
		Entries:     entries,
		CSRFToken:   token,
	}

	if r.URL.Query().Get("outcome_recorded") == "1" {
		data.Flash = &Flash{Type: "success", Message: "Outcome recorded."}
	}

	// The betting record header is decorative; render without it on failure.
	if stats, err := h.backend.Stats(r.Context(), sess.Token()); err != nil {
		h.logger.Warn("stats fetch failed", "error", err)
	} else {
		data.Stats = stats
	}

	h.renderer.RenderHTTP(w, "history", data)
}

// =============================================================================
// POST /history/{id}/outcome - Record Bet Outcome
// =============================================================================

// RecordOutcome records how a bet settled against a past analysis.
//
// Form Fields:
// - outcome (required): "won", "lost", or "push"
// - stake_amount (optional): dollar amount staked
// - payout_amount (optional): dollar amount paid out
// - csrf_token (required)
func (h *HistoryHandler) RecordOutcome(w http.ResponseWriter, r *http.Request) {
	sess := auth.GetSession(r.Context())

	analysisID := r.PathValue("id")
	if analysisID == "" {
		NotFoundResponse(w, r, h.logger)
		return
	}

	if err := r.ParseForm(); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("history.record_outcome", "Invalid form submission"))
		return
	}

	if !csrf.ValidateRequest(r) {
		ErrorResponse(w, r, h.logger, domain.Forbidden("history.record_outcome", "Invalid security token"))
		return
	}

	result := strings.ToLower(strings.TrimSpace(r.FormValue("outcome")))
	if !domain.ValidOutcome(result) {
		ErrorResponse(w, r, h.logger, domain.Invalid("history.record_outcome", "Outcome must be won, lost, or push"))
		return
	}

	outcome := domain.BetOutcome{Result: result}

	if raw := strings.TrimSpace(r.FormValue("stake_amount")); raw != "" {
		stake, err := strconv.ParseFloat(raw, 64)
		if err != nil || stake < 0 {
			ErrorResponse(w, r, h.logger, domain.Invalid("history.record_outcome", "Stake must be a positive amount"))
			return
		}
		outcome.StakeAmount = &stake
	}

	if raw := strings.TrimSpace(r.FormValue("payout_amount")); raw != "" {
		payout, err := strconv.ParseFloat(raw, 64)
		if err != nil || payout < 0 {
			ErrorResponse(w, r, h.logger, domain.Invalid("history.record_outcome", "Payout must be a positive amount"))
			return
		}
		outcome.PayoutAmount = &payout
	}

	if err := h.backend.RecordOutcome(r.Context(), sess.Token(), analysisID, outcome); err != nil {
		if domain.IsAuthError(err) {
			sess.ClearToken()
			session.ClearCookie(w, h.isSecure)
			http.Redirect(w, r, "/login?return_to=/history", http.StatusSeeOther)
			return
		}
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.logger.Info("outcome recorded", "analysis_id", analysisID, "outcome", result)

	http.Redirect(w, r, "/history?outcome_recorded=1", http.StatusSeeOther)
}
