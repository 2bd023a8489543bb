package model

import "time"

// GiftHistory is an immutable, append-only record of one completed gift
// exchange. Rows are never mutated or deleted outside bulk
// backup/restore.
type GiftHistory struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SenderID     int64     `gorm:"index:idx_history_sender;not null" json:"sender_id"`
	ReceiverID   int64     `gorm:"index:idx_history_receiver;not null" json:"receiver_id"`
	GiftLabel    string    `gorm:"size:64;not null" json:"gift_label"`
	PointsEarned int64     `gorm:"not null" json:"points_earned"`
	CreatedAt    time.Time `gorm:"index:idx_history_created;autoCreateTime" json:"created_at"`
}

// DailyGiftCount tracks how many gifts a player sent on one calendar
// day. Date is "2006-01-02"; rollover happens implicitly because a new
// day keys a new row.
type DailyGiftCount struct {
	ID       int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	PlayerID int64  `gorm:"uniqueIndex:idx_daily_player_date,priority:1;not null" json:"player_id"`
	Date     string `gorm:"uniqueIndex:idx_daily_player_date,priority:2;size:10;not null" json:"date"`
	Count    int    `gorm:"not null;default:0" json:"count"`
}

// DateKey formats a timestamp as a DailyGiftCount date key.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
