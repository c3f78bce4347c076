// This file defines the curated daily picks feed.
package domain

// DailyPick is one curated pick from the daily picks feed. All fields are
// backend-supplied; the client only renders them.
type DailyPick struct {
	ID             string  `json:"id"`
	Sport          string  `json:"sport"`
	Matchup        string  `json:"matchup"`
	Pick           string  `json:"pick"`
	Odds           string  `json:"odds"`
	WinProbability float64 `json:"win_probability"`
	Reasoning      string  `json:"reasoning,omitempty"`
	GameTime       string  `json:"game_time,omitempty"`
}
