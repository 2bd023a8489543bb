package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PersonalBalance holds a player's spendable points. Points never go
// negative: spending is a conditional decrement checked in the same
// statement.
type PersonalBalance struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PlayerID  int64     `gorm:"uniqueIndex;not null" json:"player_id"`
	Points    int64     `gorm:"not null;default:0" json:"points"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// PersonalBoost is a temporary award multiplier. Expired boosts stay in
// the table and read as multiplier 1.0; they are not eagerly deleted.
type PersonalBoost struct {
	ID         int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	PlayerID   int64           `gorm:"uniqueIndex;not null" json:"player_id"`
	Multiplier decimal.Decimal `gorm:"type:decimal(8,3);not null" json:"multiplier"`
	ExpiresAt  time.Time       `gorm:"not null" json:"expires_at"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// Active reports whether the boost still applies at the given time.
func (b *PersonalBoost) Active(now time.Time) bool {
	return now.Before(b.ExpiresAt)
}
