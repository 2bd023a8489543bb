package model

import (
	"time"

	"gorm.io/datatypes"
)

// PendingGift is a mailbox row: a gift that could not be delivered
// synchronously and waits for the recipient to claim it. Lifecycle is
// pending → claimed → deleted; the claimed transition must be won by
// exactly one request.
type PendingGift struct {
	ID            int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	ReceiverID    int64          `gorm:"index:idx_pending_receiver;not null" json:"receiver_id"`
	ReceiverName  string         `gorm:"size:32" json:"receiver_name"`
	SenderID      int64          `gorm:"index:idx_pending_sender;not null" json:"sender_id"`
	SenderName    string         `gorm:"size:32" json:"sender_name"`
	GiftID        string         `gorm:"size:64;not null" json:"gift_id"`
	GiftLabel     string         `gorm:"size:64" json:"gift_label"`
	Payload       datatypes.JSON `json:"payload"` // opaque serialized items
	BasePoints    int64          `gorm:"not null" json:"base_points"`
	AwardedPoints int64          `gorm:"not null" json:"awarded_points"`
	Claimed       int            `gorm:"default:0;index:idx_pending_claimed" json:"claimed"`
	ClaimedAt     *time.Time     `json:"claimed_at"`
	CreatedAt     time.Time      `gorm:"index:idx_pending_created;autoCreateTime" json:"created_at"`
}

// MailboxStats aggregates delivery activity per recipient. Updated under
// a recipient-keyed resource lock so concurrent deliveries cannot lose
// counts.
type MailboxStats struct {
	ID             int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	RecipientID    int64      `gorm:"uniqueIndex;not null" json:"recipient_id"`
	Delivered      int64      `gorm:"not null;default:0" json:"delivered"`
	ClaimedTotal   int64      `gorm:"not null;default:0" json:"claimed_total"`
	LastDeliveryAt *time.Time `json:"last_delivery_at"`
}

// PendingSummary is a read-model row for the per-sender mailbox view.
type PendingSummary struct {
	SenderID   int64     `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	GiftCount  int64     `json:"gift_count"`
	Points     int64     `json:"points"`
	LatestAt   time.Time `json:"latest_at"`
}
