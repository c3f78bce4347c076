// Package checkout reconciles the outcome of an external payment redirect.
//
// After the payment processor redirects back with a session_id, the poller
// asks the backend for that session's payment status on a fixed schedule
// until it gets a definitive answer or runs out of attempts. Polls are
// strictly sequential; the caller's context cancels the whole flow, so a
// navigated-away poll never mutates anything afterwards.
package checkout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/slipsight/slipsight/internal/domain"
	"github.com/slipsight/slipsight/internal/metrics"
)

const (
	// DefaultInterval is the fixed delay between poll attempts.
	DefaultInterval = 2 * time.Second

	// DefaultMaxAttempts bounds the flow (~10s of wall time at the default
	// interval) regardless of server responsiveness.
	DefaultMaxAttempts = 5
)

// StatusFunc fetches the payment status of one checkout session.
// The backend client's CheckoutStatus method satisfies it via closure.
type StatusFunc func(ctx context.Context, sessionID string) (domain.CheckoutStatus, error)

// Result is the terminal outcome of a polling run.
type Result struct {
	State    domain.CheckoutState
	Attempts int
}

// Config configures a Poller. Zero values take the defaults above.
type Config struct {
	Interval    time.Duration
	MaxAttempts int
}

// Poller drives the checkout reconciliation state machine.
type Poller struct {
	status      StatusFunc
	interval    time.Duration
	maxAttempts int
	logger      *slog.Logger
}

// New creates a Poller.
func New(status StatusFunc, cfg Config, logger *slog.Logger) *Poller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Poller{
		status:      status,
		interval:    interval,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// sentinel transition errors, internal to the retry loop
var (
	errPending = errors.New("payment still pending")
	errExpired = errors.New("checkout session expired")
)

// Run polls until a terminal state is reached.
//
// Transitions:
//   - payment_status "paid"   -> CheckoutPaid; onPaid fires exactly once
//   - status "expired"        -> CheckoutExpired (unsuccessful terminal)
//   - still pending           -> retry after the fixed interval
//   - network failure         -> retry, same schedule (never terminal itself)
//   - attempts exhausted      -> CheckoutError
//
// Cancelling ctx abandons the flow; the returned state stays CheckoutChecking
// and the caller discards it.
func (p *Poller) Run(ctx context.Context, sessionID string, onPaid func(context.Context)) Result {
	if sessionID == "" {
		return Result{State: domain.CheckoutError}
	}

	attempts := 0
	backoff := retry.WithMaxRetries(uint64(p.maxAttempts-1), retry.NewConstant(p.interval))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++

		status, err := p.status(ctx, sessionID)
		if err != nil {
			metrics.CheckoutPolls.WithLabelValues("error").Inc()
			p.logger.Warn("checkout status poll failed",
				"session_id", sessionID,
				"attempt", attempts,
				"error", err,
			)
			return retry.RetryableError(err)
		}

		switch {
		case status.Paid():
			metrics.CheckoutPolls.WithLabelValues("paid").Inc()
			return nil
		case status.Expired():
			metrics.CheckoutPolls.WithLabelValues("expired").Inc()
			return errExpired
		default:
			metrics.CheckoutPolls.WithLabelValues("pending").Inc()
			return retry.RetryableError(errPending)
		}
	})

	switch {
	case err == nil:
		p.logger.Info("checkout confirmed paid", "session_id", sessionID, "attempts", attempts)
		if onPaid != nil {
			onPaid(ctx)
		}
		return Result{State: domain.CheckoutPaid, Attempts: attempts}

	case errors.Is(err, errExpired):
		p.logger.Info("checkout session expired", "session_id", sessionID, "attempts", attempts)
		return Result{State: domain.CheckoutExpired, Attempts: attempts}

	case ctx.Err() != nil:
		// Abandoned by navigation; nothing downstream observes this result.
		return Result{State: domain.CheckoutChecking, Attempts: attempts}

	default:
		p.logger.Warn("checkout polling exhausted",
			"session_id", sessionID,
			"attempts", attempts,
			"last_error", err,
		)
		return Result{State: domain.CheckoutError, Attempts: attempts}
	}
}
