// Package service contains the business logic layer.
//
// This file implements the usage ledger: the single writer for a session's
// cached usage snapshot. All reads elsewhere go through the session; all
// refreshes go through here.
package service

import (
	"context"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/slipsight/slipsight/internal/domain"
	"github.com/slipsight/slipsight/internal/session"
)

// =============================================================================
// Interface Definition
// =============================================================================

// UsageFetcher retrieves a usage snapshot from the analysis backend.
type UsageFetcher interface {
	FetchUsage(ctx context.Context, token string) (*domain.UsageSnapshot, error)
}

// =============================================================================
// Implementation
// =============================================================================

// UsageLedger refreshes and caches usage snapshots per session. Concurrent
// refreshes for the same session collapse into a single backend call.
type UsageLedger struct {
	backend UsageFetcher
	logger  *slog.Logger
	group   singleflight.Group
}

// NewUsageLedger creates a new UsageLedger.
func NewUsageLedger(backend UsageFetcher, logger *slog.Logger) *UsageLedger {
	return &UsageLedger{
		backend: backend,
		logger:  logger,
	}
}

// Refresh fetches a fresh snapshot and stores it on the session.
//
// On fetch failure the session's previous snapshot is left intact, so pages
// keep rendering the last known counts instead of going blank. An auth error
// from the backend destroys the session's token: the server, not the cached
// optimistic state, decides who is logged in.
func (l *UsageLedger) Refresh(ctx context.Context, sess *session.Session) (*domain.UsageSnapshot, error) {
	const op = "usage.refresh"

	token := sess.Token()
	if token == "" {
		return nil, domain.Unauthorized(op, "Please log in to view your usage")
	}

	v, err, _ := l.group.Do(sess.ID, func() (interface{}, error) {
		return l.backend.FetchUsage(ctx, token)
	})
	if err != nil {
		if domain.IsAuthError(err) {
			sess.ClearToken()
			return nil, err
		}
		l.logger.Warn("usage refresh failed, keeping cached snapshot",
			"session_id", sess.ID,
			"error", err,
		)
		return nil, err
	}

	snapshot := v.(*domain.UsageSnapshot)
	sess.SetUsage(snapshot)
	return snapshot, nil
}

// Cached returns the session's snapshot, refreshing first only when nothing
// is cached yet. Callers that can tolerate slightly stale counts use this on
// page loads; the analyze path always refreshes after a submission instead.
func (l *UsageLedger) Cached(ctx context.Context, sess *session.Session) (*domain.UsageSnapshot, error) {
	if snapshot := sess.Usage(); snapshot != nil {
		return snapshot, nil
	}
	return l.Refresh(ctx, sess)
}
