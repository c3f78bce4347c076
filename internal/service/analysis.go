// This file implements the analysis orchestrator: local entitlement gate,
// slip validation, submission, and the post-submission usage refresh.
package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/slipsight/slipsight/internal/backend"
	"github.com/slipsight/slipsight/internal/domain"
	"github.com/slipsight/slipsight/internal/entitlement"
	"github.com/slipsight/slipsight/internal/imageprep"
	"github.com/slipsight/slipsight/internal/metrics"
	"github.com/slipsight/slipsight/internal/session"
)

// refreshTimeout bounds the background usage refresh that follows a
// successful submission. The response does not wait on it.
const refreshTimeout = 10 * time.Second

// =============================================================================
// Interface Definition
// =============================================================================

// SlipAnalyzer submits a validated slip to the analysis backend.
type SlipAnalyzer interface {
	AnalyzeSlip(ctx context.Context, token string, upload backend.SlipUpload) (*domain.BetAnalysis, error)
}

// =============================================================================
// Implementation
// =============================================================================

// Analyzer orchestrates a slip submission end to end.
type Analyzer struct {
	backend SlipAnalyzer
	ledger  *UsageLedger
	logger  *slog.Logger
}

// NewAnalyzer creates a new Analyzer.
func NewAnalyzer(backend SlipAnalyzer, ledger *UsageLedger, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		backend: backend,
		ledger:  ledger,
		logger:  logger,
	}
}

// Analyze validates and submits a slip screenshot.
//
// The local gate runs first on the cached snapshot: an exhausted free tier
// short-circuits with an EPAYMENT error and no network call. A local ALLOW is
// only advisory; if the backend still answers 403 with the upgrade marker,
// that EPAYMENT error is returned as-is. The server's verdict wins over any
// cached count.
//
// After a successful submission the usage snapshot is refreshed in the
// background so the next page load shows the decremented balance.
func (a *Analyzer) Analyze(ctx context.Context, sess *session.Session, filename, contentType string, slip io.Reader) (*domain.BetAnalysis, error) {
	const op = "analysis.analyze"

	token := sess.Token()
	if token == "" {
		return nil, domain.Unauthorized(op, "Please log in to analyze a slip")
	}

	if entitlement.Decide(sess.Usage()) == entitlement.Block {
		metrics.AnalysesSubmitted.WithLabelValues("blocked").Inc()
		return nil, domain.UpgradeRequired(op, "You've used all your free analyses. Subscribe to continue.")
	}

	prepared, err := imageprep.Prepare(filename, contentType, slip)
	if err != nil {
		metrics.AnalysesSubmitted.WithLabelValues("invalid").Inc()
		return nil, err
	}
	if prepared.Downscaled {
		a.logger.Debug("slip downscaled before upload",
			"session_id", sess.ID,
			"filename", filename,
		)
	}

	analysis, err := a.backend.AnalyzeSlip(ctx, token, backend.SlipUpload{
		Filename:    prepared.Filename,
		ContentType: prepared.ContentType,
		Data:        prepared.Data,
	})
	if err != nil {
		switch {
		case domain.IsUpgradeRequired(err):
			metrics.AnalysesSubmitted.WithLabelValues("upgrade_required").Inc()
		case domain.IsAuthError(err):
			sess.ClearToken()
			metrics.AnalysesSubmitted.WithLabelValues("error").Inc()
		default:
			metrics.AnalysesSubmitted.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	metrics.AnalysesSubmitted.WithLabelValues("ok").Inc()

	// Refresh off the request context: the caller already has its result.
	go func() {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		if _, err := a.ledger.Refresh(refreshCtx, sess); err != nil {
			a.logger.Warn("post-analysis usage refresh failed",
				"session_id", sess.ID,
				"error", err,
			)
		}
	}()

	return analysis, nil
}
