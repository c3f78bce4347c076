// Package domain contains core business types shared across the application.
//
// This file defines the usage snapshot: the caller's current standing against
// the free tier, as reported by the backend.
package domain

// DefaultFreeLimit is the assumed free-tier size before the first successful
// usage fetch. The server-supplied free_limit is authoritative once present.
const DefaultFreeLimit = 5

// UsageSnapshot is a point-in-time copy of the caller's metering state.
// It is never mutated in place; a refresh replaces the whole value.
//
// Invariant: IsSubscribed takes precedence over AnalysesRemaining. A
// subscribed user is entitled regardless of the counter value.
type UsageSnapshot struct {
	AnalysesUsed       int
	AnalysesRemaining  int
	FreeLimit          int
	IsSubscribed       bool
	SubscriptionStatus string
	SubscriptionPrice  float64
}
