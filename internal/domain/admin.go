// This file defines admin console types. Role checks happen server-side; the
// client just renders what the admin endpoints return (or their 403).
package domain

import "time"

// AdminUser is one row of the admin user table.
type AdminUser struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email"`
	CreatedAt          time.Time  `json:"created_at"`
	AnalysesCount      int        `json:"analyses_count"`
	IsSubscribed       bool       `json:"is_subscribed"`
	SubscriptionStatus string     `json:"subscription_status,omitempty"`
	Banned             bool       `json:"banned"`
	BannedAt           *time.Time `json:"banned_at,omitempty"`
	BanReason          string     `json:"ban_reason,omitempty"`
}

// AdminStats is the aggregate platform view on the admin console.
type AdminStats struct {
	TotalUsers        int     `json:"total_users"`
	TotalAnalyses     int     `json:"total_analyses"`
	ActiveSubscribers int     `json:"active_subscribers"`
	AnalysesToday     int     `json:"analyses_today"`
	FreeAnalysisLimit int     `json:"free_analysis_limit"`
	SubscriptionPrice float64 `json:"subscription_price"`
}
