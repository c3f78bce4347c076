// This file implements the subscription flow: starting a Stripe checkout via
// the backend and reconciling its result when Stripe redirects back.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/slipsight/slipsight/internal/auth"
	"github.com/slipsight/slipsight/internal/checkout"
	"github.com/slipsight/slipsight/internal/csrf"
	"github.com/slipsight/slipsight/internal/domain"
	"github.com/slipsight/slipsight/internal/metrics"
	"github.com/slipsight/slipsight/internal/service"
	"github.com/slipsight/slipsight/internal/session"
)

// =============================================================================
// Template Data Types
// =============================================================================

// CheckoutResultPageData contains data for the post-checkout pages.
type CheckoutResultPageData struct {
	CurrentPath string
	Email       string
	State       domain.CheckoutState
	Attempts    int
	Usage       *domain.UsageSnapshot
	Flash       *Flash
	CSRFToken   string
}

// =============================================================================
// Handler
// =============================================================================

// BillingBackend is the slice of the backend client the billing flow uses.
type BillingBackend interface {
	CreateCheckout(ctx context.Context, token, originURL string) (string, error)
	CheckoutStatus(ctx context.Context, token, sessionID string) (domain.CheckoutStatus, error)
}

// BillingHandler handles subscription checkout and its redirect pages.
//
// Routes handled:
// - POST /subscription/checkout -> StartCheckout
// - GET  /subscription/success  -> Success
// - GET  /subscription/cancel   -> Cancel
type BillingHandler struct {
	backend  BillingBackend
	ledger   *service.UsageLedger
	pollCfg  checkout.Config
	renderer TemplateRenderer
	logger   *slog.Logger
	baseURL  string
	isSecure bool
}

// NewBillingHandler creates a new BillingHandler. baseURL is this app's own
// origin, passed to the backend so Stripe can redirect back here.
func NewBillingHandler(
	backend BillingBackend,
	ledger *service.UsageLedger,
	pollCfg checkout.Config,
	renderer TemplateRenderer,
	logger *slog.Logger,
	baseURL string,
	isSecure bool,
) *BillingHandler {
	return &BillingHandler{
		backend:  backend,
		ledger:   ledger,
		pollCfg:  pollCfg,
		renderer: renderer,
		logger:   logger,
		baseURL:  baseURL,
		isSecure: isSecure,
	}
}

// RegisterRoutes registers billing routes with the provided mux.
// All routes require authentication.
func (h *BillingHandler) RegisterRoutes(mux *http.ServeMux, requireSession func(http.Handler) http.Handler) {
	mux.Handle("POST /subscription/checkout", requireSession(http.HandlerFunc(h.StartCheckout)))
	mux.Handle("GET /subscription/success", requireSession(http.HandlerFunc(h.Success)))
	mux.Handle("GET /subscription/cancel", requireSession(http.HandlerFunc(h.Cancel)))
}

// =============================================================================
// POST /subscription/checkout - Start Checkout
// =============================================================================

// StartCheckout asks the backend for a Stripe Checkout URL and redirects the
// browser to it. The backend builds the success/cancel URLs from our origin.
func (h *BillingHandler) StartCheckout(w http.ResponseWriter, r *http.Request) {
	sess := auth.GetSession(r.Context())

	if err := r.ParseForm(); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("billing.checkout", "Invalid form submission"))
		return
	}

	if !csrf.ValidateRequest(r) {
		ErrorResponse(w, r, h.logger, domain.Forbidden("billing.checkout", "Invalid security token"))
		return
	}

	checkoutURL, err := h.backend.CreateCheckout(r.Context(), sess.Token(), h.baseURL)
	if err != nil {
		if domain.IsAuthError(err) {
			sess.ClearToken()
			session.ClearCookie(w, h.isSecure)
			http.Redirect(w, r, "/login?return_to=/dashboard", http.StatusSeeOther)
			return
		}
		ErrorResponse(w, r, h.logger, err)
		return
	}

	metrics.CheckoutsStarted.Inc()
	h.logger.Info("checkout started", "user_id", sess.Identity().UserID)

	// Off to Stripe's hosted page.
	http.Redirect(w, r, checkoutURL, http.StatusSeeOther)
}

// =============================================================================
// GET /subscription/success - Reconcile Checkout
// =============================================================================

// Success is where Stripe redirects after checkout. Payment confirmation is
// asynchronous on the backend, so this handler polls the checkout status
// until it settles and renders the matching page. A paid result refreshes
// the usage snapshot before rendering so the unlimited banner is immediate.
func (h *BillingHandler) Success(w http.ResponseWriter, r *http.Request) {
	sess := auth.GetSession(r.Context())

	checkoutSessionID := r.URL.Query().Get("session_id")
	if checkoutSessionID == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid("billing.success", "Missing checkout session"))
		return
	}

	token := sess.Token()
	poller := checkout.New(func(ctx context.Context, sid string) (domain.CheckoutStatus, error) {
		return h.backend.CheckoutStatus(ctx, token, sid)
	}, h.pollCfg, h.logger)

	result := poller.Run(r.Context(), checkoutSessionID, func(ctx context.Context) {
		if _, err := h.ledger.Refresh(ctx, sess); err != nil {
			h.logger.Warn("usage refresh after payment failed", "error", err)
		}
	})

	csrfToken, err := csrf.EnsureToken(w, r, h.isSecure)
	if err != nil {
		InternalErrorResponse(w, r, h.logger, err)
		return
	}

	data := CheckoutResultPageData{
		CurrentPath: "/subscription/success",
		Email:       sess.Identity().Email,
		State:       result.State,
		Attempts:    result.Attempts,
		Usage:       sess.Usage(),
		CSRFToken:   csrfToken,
	}

	switch result.State {
	case domain.CheckoutPaid:
		data.Flash = &Flash{
			Type:    "success",
			Message: "You're subscribed! Unlimited analyses are now unlocked.",
		}
	case domain.CheckoutExpired:
		data.Flash = &Flash{
			Type:    "warning",
			Message: "Your checkout session expired before payment completed. You have not been charged.",
		}
	case domain.CheckoutError:
		data.Flash = &Flash{
			Type:    "warning",
			Message: "We couldn't confirm your payment yet. If you completed checkout, your subscription will activate shortly.",
		}
	}

	h.renderer.RenderHTTP(w, "subscription/success", data)
}

// =============================================================================
// GET /subscription/cancel - Checkout Abandoned
// =============================================================================

// Cancel is where Stripe redirects when the user backs out of checkout.
func (h *BillingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	sess := auth.GetSession(r.Context())

	csrfToken, err := csrf.EnsureToken(w, r, h.isSecure)
	if err != nil {
		InternalErrorResponse(w, r, h.logger, err)
		return
	}

	h.renderer.RenderHTTP(w, "subscription/cancel", CheckoutResultPageData{
		CurrentPath: r.URL.Path,
		Email:       sess.Identity().Email,
		State:       domain.CheckoutChecking,
		Usage:       sess.Usage(),
		CSRFToken:   csrfToken,
		Flash: &Flash{
			Type:    "info",
			Message: "Checkout cancelled. You have not been charged.",
		},
	})
}
