package router_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nestmatch/engine/internal/db"
	"github.com/nestmatch/engine/internal/router"
	"github.com/nestmatch/engine/internal/stream"
)

const me uint64 = 42

type stubProfiles struct {
	profiles map[uint64]db.Profile
	fail     bool
}

func (s *stubProfiles) Get(_ context.Context, id uint64) (db.Profile, error) {
	if s.fail {
		return db.Profile{}, errors.New("lookup down")
	}
	p, ok := s.profiles[id]
	if !ok {
		return db.Profile{}, errors.New("not found")
	}
	return p, nil
}

type stubConvs struct {
	matches map[uint64]db.Match
}

func (s *stubConvs) Get(_ context.Context, id uint64) (db.Match, error) {
	m, ok := s.matches[id]
	if !ok {
		return db.Match{}, errors.New("not found")
	}
	return m, nil
}

type recordingPush struct {
	presented []router.Notification
}

func (p *recordingPush) Present(_ context.Context, n router.Notification) {
	p.presented = append(p.presented, n)
}

type fixture struct {
	router   *router.Router
	push     *recordingPush
	profiles *stubProfiles
	convs    *stubConvs
	relevant []router.Kind
}

func newFixture(t *testing.T, opts router.Options) *fixture {
	t.Helper()
	f := &fixture{
		push: &recordingPush{},
		profiles: &stubProfiles{profiles: map[uint64]db.Profile{
			7: {ID: 7, DisplayName: "Lena", AvatarURL: "https://cdn/a.png"},
		}},
		convs: &stubConvs{matches: map[uint64]db.Match{
			5: {ID: 5, UserA: 7, UserB: me, IsMutual: true},
		}},
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.router = router.New(me, f.profiles, f.convs, f.push,
		func(k router.Kind) { f.relevant = append(f.relevant, k) },
		opts, log)
	return f
}

func likeEvent(from, to uint64, d db.Direction) stream.ChangeEvent {
	return stream.LikeInserted{Like: db.Like{FromUser: from, ToTarget: to, Direction: d}}
}

func TestLikeRelevance(t *testing.T) {
	f := newFixture(t, router.Options{})
	ctx := context.Background()

	f.router.Handle(ctx, likeEvent(7, me, db.DirectionRight)) // relevant
	f.router.Handle(ctx, likeEvent(7, 99, db.DirectionRight)) // someone else's like
	f.router.Handle(ctx, likeEvent(8, me, db.DirectionLeft))  // a pass notifies nobody

	ns := f.router.Notifications()
	require.Len(t, ns, 1)
	assert.Equal(t, router.KindLike, ns[0].Kind)
	assert.Equal(t, uint64(7), ns[0].SourceID)
	assert.Equal(t, "Lena", ns[0].SourceName)
}

func TestSuperLikeKind(t *testing.T) {
	f := newFixture(t, router.Options{})
	f.router.Handle(context.Background(), likeEvent(7, me, db.DirectionUp))

	ns := f.router.Notifications()
	require.Len(t, ns, 1)
	assert.Equal(t, router.KindSuperLike, ns[0].Kind)
}

// TestEventIdempotence: the same underlying record delivered twice
// (at-least-once transport) produces exactly one notification.
func TestEventIdempotence(t *testing.T) {
	f := newFixture(t, router.Options{})
	ctx := context.Background()

	ev := likeEvent(7, me, db.DirectionRight)
	f.router.Handle(ctx, ev)
	f.router.Handle(ctx, ev)

	assert.Len(t, f.router.Notifications(), 1)
	assert.Len(t, f.push.presented, 1)
}

// TestMutualFlipNotifiesOnce: the false -> true transition emits exactly one
// match notification; a later unrelated update to the same row emits none.
func TestMutualFlipNotifiesOnce(t *testing.T) {
	f := newFixture(t, router.Options{})
	ctx := context.Background()

	before := db.Match{ID: 5, UserA: 7, UserB: me, IsMutual: false}
	after := before
	after.IsMutual = true

	f.router.Handle(ctx, stream.MatchUpdated{Old: before, New: after})

	// Unrelated column change on the already-mutual row.
	touched := after
	f.router.Handle(ctx, stream.MatchUpdated{Old: after, New: touched})

	ns := f.router.Notifications()
	require.Len(t, ns, 1)
	assert.Equal(t, router.KindMatch, ns[0].Kind)
	assert.Equal(t, uint64(7), ns[0].SourceID)
}

func TestMatchNotInvolvingIdentityDropped(t *testing.T) {
	f := newFixture(t, router.Options{})

	before := db.Match{ID: 9, UserA: 7, UserB: 8, IsMutual: false}
	after := before
	after.IsMutual = true
	f.router.Handle(context.Background(), stream.MatchUpdated{Old: before, New: after})

	assert.Empty(t, f.router.Notifications())
}

func TestMessageRelevance(t *testing.T) {
	f := newFixture(t, router.Options{})
	ctx := context.Background()

	// From the counterpart, in my conversation.
	f.router.Handle(ctx, stream.MessageInserted{Message: db.Message{ID: 1, ConversationID: 5, SenderID: 7, Body: "hi"}})
	// My own message: no self-notification.
	f.router.Handle(ctx, stream.MessageInserted{Message: db.Message{ID: 2, ConversationID: 5, SenderID: me, Body: "hello"}})
	// Conversation I am not a party to.
	f.convs.matches[6] = db.Match{ID: 6, UserA: 7, UserB: 8, IsMutual: true}
	f.router.Handle(ctx, stream.MessageInserted{Message: db.Message{ID: 3, ConversationID: 6, SenderID: 7, Body: "psst"}})

	ns := f.router.Notifications()
	require.Len(t, ns, 1)
	assert.Equal(t, router.KindMessage, ns[0].Kind)
	assert.Equal(t, "hi", ns[0].Preview)
}

// TestEnrichmentFallback: a failed profile lookup degrades the notification
// to a placeholder name instead of dropping it.
func TestEnrichmentFallback(t *testing.T) {
	f := newFixture(t, router.Options{})
	f.profiles.fail = true

	f.router.Handle(context.Background(), likeEvent(7, me, db.DirectionRight))

	ns := f.router.Notifications()
	require.Len(t, ns, 1)
	assert.Equal(t, "Someone", ns[0].SourceName)
}

func TestRingWindowBounded(t *testing.T) {
	f := newFixture(t, router.Options{RingSize: 3})
	ctx := context.Background()

	for from := uint64(100); from < 106; from++ {
		f.router.Handle(ctx, likeEvent(from, me, db.DirectionRight))
	}

	ns := f.router.Notifications()
	require.Len(t, ns, 3)
	// Newest first.
	assert.Equal(t, uint64(105), ns[0].SourceID)
	assert.Equal(t, uint64(103), ns[2].SourceID)
}

func TestSeenSetEviction(t *testing.T) {
	f := newFixture(t, router.Options{SeenSetSize: 2, RingSize: 10})
	ctx := context.Background()

	ev := likeEvent(100, me, db.DirectionRight)
	f.router.Handle(ctx, ev)
	f.router.Handle(ctx, likeEvent(101, me, db.DirectionRight))
	f.router.Handle(ctx, likeEvent(102, me, db.DirectionRight))

	// The first record was evicted from the dedupe window; redelivery now
	// routes again. Accepted at-least-once behavior for a bounded set.
	f.router.Handle(ctx, ev)
	assert.Len(t, f.router.Notifications(), 4)
}

func TestMarkReadAndRelevantHook(t *testing.T) {
	f := newFixture(t, router.Options{})
	f.router.Handle(context.Background(), likeEvent(7, me, db.DirectionRight))

	ns := f.router.Notifications()
	require.Len(t, ns, 1)
	require.False(t, ns[0].Read)

	assert.True(t, f.router.MarkRead(ns[0].ID))
	assert.True(t, f.router.Notifications()[0].Read)
	assert.False(t, f.router.MarkRead("gone"))

	require.Equal(t, []router.Kind{router.KindLike}, f.relevant)
}

func TestDegradedFlag(t *testing.T) {
	f := newFixture(t, router.Options{})
	require.NoError(t, f.router.Degraded())

	f.router.MarkDegraded(errors.New("resubscribe failed"))
	assert.Error(t, f.router.Degraded())
}
