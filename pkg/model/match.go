package model

import "time"

// MatchRecord is the persisted outcome of a completed duel. Abandoned duels
// are never recorded. WinnerID is 0 for a tie. RewardApplied is false when
// the reward mutation failed and the row is left for out-of-band
// reconciliation.
type MatchRecord struct {
	MatchID       string    `json:"match_id"`
	PlayerA       int64     `json:"player_a"`
	PlayerB       int64     `json:"player_b"`
	AccuracyA     float64   `json:"accuracy_a"`
	AccuracyB     float64   `json:"accuracy_b"`
	WinnerID      int64     `json:"winner_id"` // 0 = tie
	WinBonusXP    int64     `json:"win_bonus_xp"`
	RewardApplied bool      `json:"reward_applied"`
	CreatedAt     time.Time `json:"created_at"`
}
