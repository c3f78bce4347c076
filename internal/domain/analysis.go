// This file defines the analysis result returned by the backend's bet-slip
// engine and the outcome values users record against past analyses.
//
// The analysis payload is a value object: render what is present, omit what
// is absent. No invariants are enforced client-side.
package domain

import "time"

// BetAnalysis is the structured result of analyzing one bet-slip screenshot.
type BetAnalysis struct {
	ID              string          `json:"id"`
	WinProbability  float64         `json:"win_probability"`
	AnalysisText    string          `json:"analysis_text"`
	BetDetails      string          `json:"bet_details,omitempty"`
	IndividualBets  []IndividualBet `json:"individual_bets,omitempty"`
	RiskFactors     []string        `json:"risk_factors,omitempty"`
	PositiveFactors []string        `json:"positive_factors,omitempty"`
	ExpectedValue   *float64        `json:"expected_value,omitempty"`
	KellyPercentage *float64        `json:"kelly_percentage,omitempty"`
	TrueOdds        string          `json:"true_odds,omitempty"`
	Recommendation  string          `json:"recommendation,omitempty"`
	ConfidenceScore *int            `json:"confidence_score,omitempty"`
	EstimatedROI    *float64        `json:"estimated_roi,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// IndividualBet is one leg of a parlay or a single bet on the slip.
type IndividualBet struct {
	Description    string   `json:"description,omitempty"`
	Odds           string   `json:"odds,omitempty"`
	WinProbability *float64 `json:"win_probability,omitempty"`
	Analysis       string   `json:"analysis,omitempty"`
}

// HistoryEntry is a past analysis as returned by the history endpoint.
// The backend includes the original slip image as a base64 data payload.
type HistoryEntry struct {
	BetAnalysis
	ImageData string      `json:"image_data,omitempty"`
	Outcome   *BetOutcome `json:"outcome,omitempty"`
}

// BetOutcome records how a bet actually settled.
type BetOutcome struct {
	Result       string   `json:"outcome"` // "won", "lost", or "push"
	StakeAmount  *float64 `json:"stake_amount,omitempty"`
	PayoutAmount *float64 `json:"payout_amount,omitempty"`
}

// Valid outcome results accepted by the backend.
const (
	OutcomeWon  = "won"
	OutcomeLost = "lost"
	OutcomePush = "push"
)

// ValidOutcome reports whether result is one the backend accepts.
func ValidOutcome(result string) bool {
	switch result {
	case OutcomeWon, OutcomeLost, OutcomePush:
		return true
	default:
		return false
	}
}

// UserStats is the aggregate betting record shown on the dashboard.
type UserStats struct {
	TotalAnalyses int     `json:"total_analyses"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	Pushes        int     `json:"pushes"`
	Pending       int     `json:"pending"`
	TotalStaked   float64 `json:"total_staked"`
	TotalPayout   float64 `json:"total_payout"`
	ROI           float64 `json:"roi"`
}
