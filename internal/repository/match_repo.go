package repository

import (
	"context"
	"log/slog"

	"gorm.io/gorm"

	"github.com/nestmatch/engine/internal/db"
	"github.com/nestmatch/engine/internal/stream"
)

// MatchRepository provides data access for pairwise match rows and publishes
// MatchUpdated change events when the mutual flag flips.
type MatchRepository struct {
	db     *gorm.DB
	events stream.Publisher
	log    *slog.Logger
}

// NewMatchRepository creates a new repository bound to the given DB connection.
func NewMatchRepository(database *gorm.DB, events stream.Publisher, log *slog.Logger) *MatchRepository {
	return &MatchRepository{db: database, events: events, log: log}
}

// Get returns a match row by id. The id doubles as the conversation id,
// so the router uses this to resolve conversation membership.
func (r *MatchRepository) Get(ctx context.Context, id uint64) (db.Match, error) {
	var m db.Match
	err := r.db.WithContext(ctx).First(&m, id).Error
	return m, err
}

// EnsureForPair returns the match row for a user pair, creating it
// (non-mutual) if absent. Pairs are stored in canonical (low, high) order so
// each pair maps to exactly one row.
func (r *MatchRepository) EnsureForPair(ctx context.Context, a, b uint64) (db.Match, error) {
	lo, hi := db.PairKey(a, b)
	m := db.Match{UserA: lo, UserB: hi}
	err := r.db.WithContext(ctx).
		Where("user_a = ? AND user_b = ?", lo, hi).
		FirstOrCreate(&m).Error
	return m, err
}

// MarkMutual flips the pair's match to mutual.
//
// Behavior:
//   - The flip happens exactly once per pair: if the row is already mutual,
//     nothing is written and changed is false.
//   - On a real flip, a MatchUpdated event carrying the old and new rows is
//     published so the router can detect the false -> true transition.
func (r *MatchRepository) MarkMutual(ctx context.Context, a, b uint64) (db.Match, bool, error) {
	m, err := r.EnsureForPair(ctx, a, b)
	if err != nil {
		return db.Match{}, false, err
	}
	if m.IsMutual {
		return m, false, nil
	}

	old := m
	m.IsMutual = true
	if err := r.db.WithContext(ctx).Model(&db.Match{}).
		Where("id = ?", m.ID).
		Update("is_mutual", true).Error; err != nil {
		return db.Match{}, false, err
	}

	if pubErr := r.events.Publish(ctx, stream.MatchUpdated{Old: old, New: m}); pubErr != nil {
		r.log.Warn("match change event not published", "match_id", m.ID, "err", pubErr)
	}
	return m, true, nil
}

// CountMutualInvolving returns the number of mutual matches the user is a
// party to. Reconciliation authority behind the matches counter.
func (r *MatchRepository) CountMutualInvolving(ctx context.Context, userID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Match{}).
		Where("is_mutual = ? AND (user_a = ? OR user_b = ?)", true, userID, userID).
		Count(&count).Error
	return count, err
}
