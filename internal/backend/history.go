// This file implements history retrieval and outcome recording.
package backend

import (
	"context"
	"net/url"

	"github.com/slipsight/slipsight/internal/domain"
)

// History returns the caller's past analyses, newest first.
func (c *Client) History(ctx context.Context, token string) ([]domain.HistoryEntry, error) {
	var out []domain.HistoryEntry
	if err := c.getJSON(ctx, "backend.history", "/history", token, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// outcomeRequest is the wire body for recording a settled bet.
type outcomeRequest struct {
	Outcome      string   `json:"outcome"`
	StakeAmount  *float64 `json:"stake_amount,omitempty"`
	PayoutAmount *float64 `json:"payout_amount,omitempty"`
}

// RecordOutcome reports how the bet behind analysisID settled.
func (c *Client) RecordOutcome(ctx context.Context, token, analysisID string, outcome domain.BetOutcome) error {
	const op = "backend.record_outcome"

	if !domain.ValidOutcome(outcome.Result) {
		return domain.Invalid(op, "outcome must be won, lost, or push")
	}

	body := outcomeRequest{
		Outcome:      outcome.Result,
		StakeAmount:  outcome.StakeAmount,
		PayoutAmount: outcome.PayoutAmount,
	}
	return c.postJSON(ctx, op, "/analysis/"+url.PathEscape(analysisID)+"/outcome", token, body, nil)
}

// Stats returns the caller's aggregate betting record.
func (c *Client) Stats(ctx context.Context, token string) (*domain.UserStats, error) {
	var out domain.UserStats
	if err := c.getJSON(ctx, "backend.stats", "/stats", token, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DailyPicks returns today's curated picks. The endpoint is public; lockout
// for exhausted free-tier users is a presentation concern.
func (c *Client) DailyPicks(ctx context.Context, token string) ([]domain.DailyPick, error) {
	var out struct {
		Picks []domain.DailyPick `json:"picks"`
	}
	if err := c.getJSON(ctx, "backend.daily_picks", "/daily-picks", token, &out); err != nil {
		return nil, err
	}
	return out.Picks, nil
}
