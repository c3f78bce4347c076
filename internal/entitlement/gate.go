// Package entitlement decides whether a metered action may proceed.
//
// The gate is a pure function over the latest usage snapshot. It fails open
// when no snapshot is available: the backend enforces the limit
// authoritatively on every analyze call, so an unknown local state must never
// block the user on a network blip.
package entitlement

import "github.com/slipsight/slipsight/internal/domain"

// Decision is the gate's verdict for an attempted action.
type Decision int

const (
	// Allow lets the action proceed to the backend.
	Allow Decision = iota

	// Block stops the action locally and routes the user to the
	// subscription checkout entry point.
	Block
)

func (d Decision) String() string {
	if d == Block {
		return "block"
	}
	return "allow"
}

// Decide returns the gate decision for submitting an analysis.
//
// Rules, in order:
//   - no snapshot: Allow (fail open, server is authoritative)
//   - subscribed: Allow, unconditionally
//   - free tier exhausted (remaining <= 0): Block
//   - otherwise: Allow
func Decide(snapshot *domain.UsageSnapshot) Decision {
	if snapshot == nil {
		return Allow
	}
	if snapshot.IsSubscribed {
		return Allow
	}
	if snapshot.AnalysesRemaining <= 0 {
		return Block
	}
	return Allow
}

// LowBalanceWarning reports whether the running-low advisory should show.
// It is presentation-only and never causes a Block on its own.
func LowBalanceWarning(snapshot *domain.UsageSnapshot) bool {
	if snapshot == nil || snapshot.IsSubscribed {
		return false
	}
	return snapshot.AnalysesRemaining <= 2
}
