package repository

import (
	"context"
	"log/slog"

	"github.com/nestmatch/engine/internal/db"
)

// SwipeStore coordinates the durable effects of one swipe: the like upsert
// and, when interest is reciprocated, the mutual-match flip. It is the
// write target behind the deck controller's dispatch queue.
type SwipeStore struct {
	likes   *LikeRepository
	matches *MatchRepository
	log     *slog.Logger
}

// NewSwipeStore creates the store over the like and match repositories.
func NewSwipeStore(likes *LikeRepository, matches *MatchRepository, log *slog.Logger) *SwipeStore {
	return &SwipeStore{likes: likes, matches: matches, log: log}
}

// Write persists a swipe decision.
//
// Behavior:
//   - Upserts the like row (single row per pair, overwrite guarantee).
//   - On an interest swipe, checks whether the target already expressed
//     interest back; if so, flips the pair's match to mutual, which emits
//     the MatchUpdated change event exactly once per pair.
func (s *SwipeStore) Write(ctx context.Context, fromUser, toTarget uint64, direction db.Direction) error {
	like := db.Like{
		FromUser:  fromUser,
		ToTarget:  toTarget,
		Direction: direction,
	}
	if err := s.likes.Upsert(ctx, like); err != nil {
		return err
	}

	if !direction.IsInterest() {
		return nil
	}

	reciprocal, err := s.likes.HasInterest(ctx, toTarget, fromUser)
	if err != nil {
		// The like landed; mutual detection failing is not a write failure.
		s.log.Warn("mutual check failed", "from", fromUser, "to", toTarget, "err", err)
		return nil
	}
	if !reciprocal {
		return nil
	}

	if _, _, err := s.matches.MarkMutual(ctx, fromUser, toTarget); err != nil {
		s.log.Warn("mutual flip failed", "from", fromUser, "to", toTarget, "err", err)
	}
	return nil
}

// Compensate reverses a swipe whose durable write already went out:
// the like row is deleted. The pair's match row, if any, is left alone;
// it only ever flips on a fresh reciprocal interest.
func (s *SwipeStore) Compensate(ctx context.Context, fromUser, toTarget uint64) error {
	return s.likes.Delete(ctx, fromUser, toTarget)
}
