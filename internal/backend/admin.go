// This file implements the admin console calls. The role check is entirely
// server-side; a non-admin token simply gets a 403 back.
package backend

import (
	"context"
	"net/url"

	"github.com/slipsight/slipsight/internal/domain"
)

// AdminStats returns platform-wide aggregates for the admin console.
func (c *Client) AdminStats(ctx context.Context, token string) (*domain.AdminStats, error) {
	var out domain.AdminStats
	if err := c.getJSON(ctx, "backend.admin_stats", "/admin/stats", token, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AdminUsers lists registered users with usage and subscription standing.
func (c *Client) AdminUsers(ctx context.Context, token string) ([]domain.AdminUser, error) {
	var out []domain.AdminUser
	if err := c.getJSON(ctx, "backend.admin_users", "/admin/users", token, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// BanUser bans a user, with an optional reason.
func (c *Client) BanUser(ctx context.Context, token, userID, reason string) error {
	body := map[string]string{}
	if reason != "" {
		body["reason"] = reason
	}
	return c.postJSON(ctx, "backend.ban_user", "/admin/users/"+url.PathEscape(userID)+"/ban", token, body, nil)
}

// UnbanUser lifts a ban.
func (c *Client) UnbanUser(ctx context.Context, token, userID string) error {
	return c.postJSON(ctx, "backend.unban_user", "/admin/users/"+url.PathEscape(userID)+"/unban", token, struct{}{}, nil)
}
