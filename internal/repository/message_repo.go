package repository

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nestmatch/engine/internal/db"
	"github.com/nestmatch/engine/internal/stream"
)

// MessageRepository provides data access for conversation messages and the
// per-user read watermarks used for unread counting.
type MessageRepository struct {
	db     *gorm.DB
	events stream.Publisher
	log    *slog.Logger
}

// NewMessageRepository creates a new repository bound to the given DB connection.
func NewMessageRepository(database *gorm.DB, events stream.Publisher, log *slog.Logger) *MessageRepository {
	return &MessageRepository{db: database, events: events, log: log}
}

// Insert appends a message and publishes a MessageInserted change event.
// The message id is filled in on the passed struct.
func (r *MessageRepository) Insert(ctx context.Context, msg *db.Message) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return err
	}
	if pubErr := r.events.Publish(ctx, stream.MessageInserted{Message: *msg}); pubErr != nil {
		r.log.Warn("message change event not published", "message_id", msg.ID, "err", pubErr)
	}
	return nil
}

// CountUnreadFor returns the user's unread message count.
//
// Behavior:
//   - Only conversations backed by a mutual match the user is a party to
//     are considered.
//   - The user's own messages never count as unread.
//   - A message is unread when it is newer than the user's read watermark
//     for that conversation; no watermark means everything is unread.
func (r *MessageRepository) CountUnreadFor(ctx context.Context, userID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table("messages m").
		Joins("JOIN matches mt ON mt.id = m.conversation_id").
		Where("mt.is_mutual = ?", true).
		Where("(mt.user_a = ? OR mt.user_b = ?)", userID, userID).
		Where("m.sender_id <> ?", userID).
		Where(`m.created_at > COALESCE((
			SELECT cr.last_read_at FROM conversation_reads cr
			WHERE cr.conversation_id = m.conversation_id AND cr.user_id = ?
		), ?)`, userID, time.Unix(0, 0).UTC()).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// MarkRead advances the user's read watermark for a conversation.
// Callers pass the acknowledgment time (normally now).
func (r *MessageRepository) MarkRead(ctx context.Context, conversationID, userID uint64, at time.Time) error {
	wm := db.ConversationRead{
		ConversationID: conversationID,
		UserID:         userID,
		LastReadAt:     at,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "conversation_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_read_at"}),
		}).
		Create(&wm).Error
}
