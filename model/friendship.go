package model

import "time"

// FriendshipPoints is a directed friendship edge: points SenderID has
// earned toward ReceiverID. Points only grow, except through an explicit
// administrative set. A leaderboard pair is the sum of both directions
// under the canonical (sorted) ID order.
type FriendshipPoints struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SenderID        int64     `gorm:"uniqueIndex:idx_friendship_edge,priority:1;not null" json:"sender_id"`
	ReceiverID      int64     `gorm:"uniqueIndex:idx_friendship_edge,priority:2;not null" json:"receiver_id"`
	Points          int64     `gorm:"not null;default:0" json:"points"`
	LastInteraction time.Time `gorm:"autoUpdateTime" json:"last_interaction"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// FriendPoints is a read-model row: one friend of a player and the
// points accumulated toward them.
type FriendPoints struct {
	FriendID int64 `json:"friend_id"`
	Points   int64 `json:"points"`
}

// PairTotal is a canonical leaderboard pair with the summed total of
// both edge directions. PlayerA < PlayerB always holds.
type PairTotal struct {
	PlayerA int64 `json:"player_a"`
	PlayerB int64 `json:"player_b"`
	Total   int64 `json:"total"`
}

// CanonicalPair sorts two player IDs into canonical order.
func CanonicalPair(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}
