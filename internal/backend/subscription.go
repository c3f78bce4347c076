// This file implements the subscription checkout calls: session creation and
// the status poll used by the reconciliation state machine.
package backend

import (
	"context"
	"net/url"

	"github.com/slipsight/slipsight/internal/domain"
)

// CreateCheckout starts a hosted checkout session. The caller's origin is
// sent so the payment processor can redirect back to the correct callback
// path; the returned URL is the external redirect target.
func (c *Client) CreateCheckout(ctx context.Context, token, originURL string) (string, error) {
	const op = "backend.create_checkout"

	body := map[string]string{"origin_url": originURL}
	var out struct {
		URL string `json:"url"`
	}
	if err := c.postJSON(ctx, op, "/subscription/create-checkout", token, body, &out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", domain.Errorf(domain.EINTERNAL, op, "checkout session missing redirect URL")
	}
	return out.URL, nil
}

// CheckoutStatus polls the payment status of a checkout session.
func (c *Client) CheckoutStatus(ctx context.Context, token, sessionID string) (domain.CheckoutStatus, error) {
	var out domain.CheckoutStatus
	err := c.getJSON(ctx, "backend.checkout_status", "/subscription/status/"+url.PathEscape(sessionID), token, &out)
	return out, err
}
