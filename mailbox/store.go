package mailbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kasuganosora/giftpoints/model"
	"github.com/kasuganosora/giftpoints/txn"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrAlreadyClaimed is returned when a claim loses the race: the row is
// gone or another request already flipped it to claimed. This is a
// business outcome, not a storage failure.
var ErrAlreadyClaimed = errors.New("mailbox: gift already claimed or not found")

// Store persists pending gifts on the local backend. Pending rows are a
// durable per-recipient queue: they are not dual-written, because
// exactly-once claiming cannot be guaranteed across two best-effort
// replicas.
type Store struct {
	exec   *txn.Executor
	logger *zap.Logger
}

// NewStore creates a mailbox store over the given executor.
func NewStore(exec *txn.Executor, logger *zap.Logger) *Store {
	return &Store{exec: exec, logger: logger}
}

func giftLockName(id int64) string       { return fmt.Sprintf("mailbox:gift:%d", id) }
func statsLockName(player int64) string  { return fmt.Sprintf("mailbox:stats:%d", player) }
func deliveryLockName(g *model.PendingGift) string {
	return fmt.Sprintf("mailbox:deliver:%d:%s", g.ReceiverID, g.GiftID)
}

// Save inserts a pending gift inside a transaction named by its logical
// delivery key, then bumps the recipient's delivery statistics under
// the recipient's stats lock. Returns the generated row ID.
func (s *Store) Save(ctx context.Context, g *model.PendingGift) (int64, error) {
	err := s.exec.RunWithWriteLock(ctx, deliveryLockName(g), func(tx *gorm.DB) error {
		return tx.Create(g).Error
	})
	if err != nil {
		return 0, err
	}

	s.exec.Registry().RunExclusive(statsLockName(g.ReceiverID), func() {
		now := time.Now()
		statsErr := s.exec.Run(ctx, func(tx *gorm.DB) error {
			res := tx.Model(&model.MailboxStats{}).
				Where("recipient_id = ?", g.ReceiverID).
				Updates(map[string]interface{}{
					"delivered":        gorm.Expr("delivered + 1"),
					"last_delivery_at": now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return tx.Create(&model.MailboxStats{
					RecipientID:    g.ReceiverID,
					Delivered:      1,
					LastDeliveryAt: &now,
				}).Error
			}
			return nil
		})
		if statsErr != nil {
			// The gift row exists; a lost stats increment only skews
			// the counter.
			s.logger.Warn("mailbox stats update failed",
				zap.Int64("recipient", g.ReceiverID),
				zap.Error(statsErr))
		}
	})

	return g.ID, nil
}

// ListPendingForRecipient returns unclaimed gifts for a recipient,
// oldest first.
func (s *Store) ListPendingForRecipient(ctx context.Context, recipientID int64) ([]model.PendingGift, error) {
	var gifts []model.PendingGift
	err := s.exec.DB().WithContext(ctx).
		Where("receiver_id = ? AND claimed = 0", recipientID).
		Order("created_at ASC").
		Find(&gifts).Error
	return gifts, err
}

// ListPendingFromSender returns a recipient's unclaimed gifts from one
// sender name, oldest first.
func (s *Store) ListPendingFromSender(ctx context.Context, recipientID int64, senderName string) ([]model.PendingGift, error) {
	var gifts []model.PendingGift
	err := s.exec.DB().WithContext(ctx).
		Where("receiver_id = ? AND sender_name = ? AND claimed = 0", recipientID, senderName).
		Order("created_at ASC").
		Find(&gifts).Error
	return gifts, err
}

// SummarizePendingBySender groups a recipient's unclaimed gifts by
// sender, most recent activity first.
func (s *Store) SummarizePendingBySender(ctx context.Context, recipientID int64) ([]model.PendingSummary, error) {
	var rows []model.PendingSummary
	err := s.exec.DB().WithContext(ctx).
		Model(&model.PendingGift{}).
		Select("sender_id, sender_name, COUNT(*) AS gift_count, SUM(awarded_points) AS points, MAX(created_at) AS latest_at").
		Where("receiver_id = ? AND claimed = 0", recipientID).
		Group("sender_id, sender_name").
		Order("latest_at DESC").
		Scan(&rows).Error
	return rows, err
}

// Claim transitions exactly one pending row to claimed. If N requests
// race on the same id, one sees a positive row count and receives the
// gift; the rest get ErrAlreadyClaimed and must not deliver anything.
// The row stays (claimed) until Delete confirms the payload was
// granted.
func (s *Store) Claim(ctx context.Context, id, recipientID int64) (*model.PendingGift, error) {
	var gift model.PendingGift
	err := s.exec.RunWithWriteLock(ctx, giftLockName(id), func(tx *gorm.DB) error {
		res := tx.Model(&model.PendingGift{}).
			Where("id = ? AND receiver_id = ? AND claimed = 0", id, recipientID).
			Updates(map[string]interface{}{
				"claimed":    1,
				"claimed_at": time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyClaimed
		}
		return tx.First(&gift, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &gift, nil
}

// Delete removes a claimed row after the payload has been granted and
// bumps the recipient's claimed counter.
func (s *Store) Delete(ctx context.Context, id int64) error {
	var recipientID int64
	err := s.exec.RunWithWriteLock(ctx, giftLockName(id), func(tx *gorm.DB) error {
		var gift model.PendingGift
		if err := tx.First(&gift, id).Error; err != nil {
			return err
		}
		recipientID = gift.ReceiverID
		return tx.Delete(&model.PendingGift{}, id).Error
	})
	if err != nil {
		return err
	}

	s.exec.Registry().RunExclusive(statsLockName(recipientID), func() {
		statsErr := s.exec.Run(ctx, func(tx *gorm.DB) error {
			return tx.Model(&model.MailboxStats{}).
				Where("recipient_id = ?", recipientID).
				UpdateColumn("claimed_total", gorm.Expr("claimed_total + 1")).Error
		})
		if statsErr != nil {
			s.logger.Warn("mailbox stats update failed",
				zap.Int64("recipient", recipientID),
				zap.Error(statsErr))
		}
	})
	return nil
}

// Stats returns a recipient's delivery statistics, zero-valued if none
// exist yet.
func (s *Store) Stats(ctx context.Context, recipientID int64) (model.MailboxStats, error) {
	var stats model.MailboxStats
	err := s.exec.DB().WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		First(&stats).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.MailboxStats{RecipientID: recipientID}, nil
	}
	return stats, err
}
