package repository

import (
	"context"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nestmatch/engine/internal/db"
	"github.com/nestmatch/engine/internal/stream"
)

// interestDirections are the swipe directions that express interest.
var interestDirections = []db.Direction{db.DirectionRight, db.DirectionUp}

// LikeRepository provides data access for swipe decisions (likes/passes)
// and publishes LikeInserted change events after successful writes.
type LikeRepository struct {
	db     *gorm.DB
	events stream.Publisher
	log    *slog.Logger
}

// NewLikeRepository creates a new repository bound to the given DB connection.
func NewLikeRepository(database *gorm.DB, events stream.Publisher, log *slog.Logger) *LikeRepository {
	return &LikeRepository{db: database, events: events, log: log}
}

// Upsert inserts or updates a swipe decision from -> to.
//
// Behavior:
//   - If the (from_user, to_target) pair exists, the row is updated with the
//     new direction. Composite PK ensures the overwrite guarantee.
//   - A LikeInserted change event is published after the write. Publish
//     failures are logged, not returned: the store row is the source of
//     truth and reconciliation reads cover missed events.
func (r *LikeRepository) Upsert(ctx context.Context, like db.Like) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "from_user"}, {Name: "to_target"}},
			DoUpdates: clause.AssignmentColumns([]string{"direction", "updated_at"}),
		}).
		Create(&like).Error
	if err != nil {
		return err
	}

	if pubErr := r.events.Publish(ctx, stream.LikeInserted{Like: like}); pubErr != nil {
		r.log.Warn("like change event not published", "from", like.FromUser, "to", like.ToTarget, "err", pubErr)
	}
	return nil
}

// Delete removes the decision row for from -> to. Used as the compensation
// write when a swipe is undone after its durable write was already sent.
func (r *LikeRepository) Delete(ctx context.Context, fromUser, toTarget uint64) error {
	return r.db.WithContext(ctx).
		Where("from_user = ? AND to_target = ?", fromUser, toTarget).
		Delete(&db.Like{}).Error
}

// HasInterest reports whether fromUser has an interest decision (right or up)
// toward toTarget. Used for mutual-match detection on swipe writes.
func (r *LikeRepository) HasInterest(ctx context.Context, fromUser, toTarget uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Like{}).
		Where("from_user = ? AND to_target = ? AND direction IN ?", fromUser, toTarget, interestDirections).
		Count(&count).Error
	return count > 0, err
}

// CountInterestIn returns how many users currently like the given recipient.
//
// Behavior:
//   - Counts only interest directions (right/up) targeting the recipient.
//   - Excludes likers the recipient has explicitly passed.
//   - This is the reconciliation authority behind the likes counter; the
//     Redis counter cache mirrors it.
func (r *LikeRepository) CountInterestIn(ctx context.Context, recipientID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table("likes l").
		Where("l.to_target = ? AND l.direction IN ?", recipientID, interestDirections).
		Where(`
			NOT EXISTS (
				SELECT 1 FROM likes l2
				WHERE l2.from_user = ?
				  AND l2.to_target = l.from_user
				  AND l2.direction = ?
			)`, recipientID, db.DirectionLeft).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
