// This file implements the usage snapshot fetch. The server-supplied
// analyses_remaining is authoritative when present; it is derived from the
// limit only when the field is absent from the response.
package backend

import (
	"context"

	"github.com/slipsight/slipsight/internal/domain"
)

// usageResponse is the wire shape of GET /api/usage. AnalysesRemaining is a
// pointer so an explicit zero survives decoding and is not re-derived.
type usageResponse struct {
	AnalysesUsed       int     `json:"analyses_used"`
	AnalysesRemaining  *int    `json:"analyses_remaining"`
	FreeLimit          int     `json:"free_limit"`
	IsSubscribed       bool    `json:"is_subscribed"`
	SubscriptionStatus string  `json:"subscription_status"`
	SubscriptionPrice  float64 `json:"subscription_price"`
}

// FetchUsage retrieves the caller's current usage snapshot.
func (c *Client) FetchUsage(ctx context.Context, token string) (*domain.UsageSnapshot, error) {
	var out usageResponse
	if err := c.getJSON(ctx, "backend.usage", "/usage", token, &out); err != nil {
		return nil, err
	}

	snap := domain.UsageSnapshot{
		AnalysesUsed:       out.AnalysesUsed,
		FreeLimit:          out.FreeLimit,
		IsSubscribed:       out.IsSubscribed,
		SubscriptionStatus: out.SubscriptionStatus,
		SubscriptionPrice:  out.SubscriptionPrice,
	}
	if snap.FreeLimit <= 0 {
		snap.FreeLimit = domain.DefaultFreeLimit
	}
	if out.AnalysesRemaining != nil {
		snap.AnalysesRemaining = *out.AnalysesRemaining
	} else {
		snap.AnalysesRemaining = snap.FreeLimit - snap.AnalysesUsed
	}
	return &snap, nil
}
