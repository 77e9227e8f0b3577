package router

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nestmatch/engine/internal/db"
	"github.com/nestmatch/engine/internal/metrics"
	"github.com/nestmatch/engine/internal/stream"
)

// Kind of a user-facing notification.
type Kind string

const (
	KindLike      Kind = "like"
	KindSuperLike Kind = "super_like"
	KindMatch     Kind = "match"
	KindMessage   Kind = "message"
)

// placeholderName stands in when enrichment fails; the notification is
// degraded, never dropped.
const placeholderName = "Someone"

// Notification is a typed, addressed, enriched event ready for the UI layer
// and the OS push sink.
type Notification struct {
	ID           string    `json:"id"`
	Kind         Kind      `json:"kind"`
	SourceID     uint64    `json:"source_id"`
	SourceName   string    `json:"source_name"`
	SourceAvatar string    `json:"source_avatar,omitempty"`
	Preview      string    `json:"preview,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	Read         bool      `json:"read"`
}

// ProfileLookup is the secondary read used to enrich notifications.
type ProfileLookup interface {
	Get(ctx context.Context, id uint64) (db.Profile, error)
}

// ConversationLookup resolves a conversation id to its match row, which
// carries the two parties.
type ConversationLookup interface {
	Get(ctx context.Context, id uint64) (db.Match, error)
}

// PushSink delivers a notification at the OS level. Implementations own the
// permission check; the router calls it regardless of the in-memory fan-out.
type PushSink interface {
	Present(ctx context.Context, n Notification)
}

// Options tune a router instance.
type Options struct {
	RingSize    int
	SeenSetSize int
}

// Router turns raw change-stream events into deduplicated, addressed
// notifications for one identity. It is scoped to a session: constructed on
// login, torn down on logout, no ambient state.
type Router struct {
	identityID uint64
	profiles   ProfileLookup
	convs      ConversationLookup
	push       PushSink         // may be nil
	onRelevant func(Kind)       // unread invalidation hook, may be nil
	log        *slog.Logger

	mu       sync.Mutex
	ring     *ring
	seen     *seenSet
	degraded error // set when live updates drop
}

// New creates a router for the identity.
func New(identityID uint64, profiles ProfileLookup, convs ConversationLookup, push PushSink, onRelevant func(Kind), opts Options, log *slog.Logger) *Router {
	return &Router{
		identityID: identityID,
		profiles:   profiles,
		convs:      convs,
		push:       push,
		onRelevant: onRelevant,
		log:        log,
		ring:       newRing(opts.RingSize),
		seen:       newSeenSet(opts.SeenSetSize),
	}
}

// Run consumes decoded change events until the channel closes or ctx ends.
// Intended to run on its own goroutine, one per session.
func (r *Router) Run(ctx context.Context, events <-chan stream.ChangeEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.Handle(ctx, ev)
		}
	}
}

// Handle routes a single change event: relevance, dedup, enrichment, fan-out.
func (r *Router) Handle(ctx context.Context, ev stream.ChangeEvent) {
	n, relevant := r.classify(ctx, ev)
	if !relevant {
		metrics.EventsIrrelevant.Inc()
		return
	}

	key := string(ev.Kind()) + ":" + ev.RecordKey()
	r.mu.Lock()
	fresh := r.seen.Add(key)
	r.mu.Unlock()
	if !fresh {
		metrics.EventsDeduped.Inc()
		return
	}

	r.enrich(ctx, &n)

	r.mu.Lock()
	r.ring.push(n)
	r.mu.Unlock()
	metrics.EventsRouted.WithLabelValues(string(n.Kind)).Inc()

	if r.onRelevant != nil {
		r.onRelevant(n.Kind)
	}
	// The push decision is independent of the in-memory fan-out.
	if r.push != nil {
		r.push.Present(ctx, n)
	}
}

// classify applies the per-kind relevance rules and builds the bare
// notification.
func (r *Router) classify(ctx context.Context, ev stream.ChangeEvent) (Notification, bool) {
	switch e := ev.(type) {
	case stream.LikeInserted:
		if e.Like.ToTarget != r.identityID || !e.Like.Direction.IsInterest() {
			return Notification{}, false
		}
		kind := KindLike
		if e.Like.Direction == db.DirectionUp {
			kind = KindSuperLike
		}
		return Notification{
			ID:        uuid.NewString(),
			Kind:      kind,
			SourceID:  e.Like.FromUser,
			CreatedAt: time.Now().UTC(),
		}, true

	case stream.MatchUpdated:
		// Only the false -> true transition notifies; redeliveries of an
		// already-mutual match and unrelated column changes are dropped.
		if !e.New.Involves(r.identityID) || e.Old.IsMutual || !e.New.IsMutual {
			return Notification{}, false
		}
		return Notification{
			ID:        uuid.NewString(),
			Kind:      KindMatch,
			SourceID:  e.New.OtherParty(r.identityID),
			CreatedAt: time.Now().UTC(),
		}, true

	case stream.MessageInserted:
		if e.Message.SenderID == r.identityID {
			return Notification{}, false
		}
		match, err := r.convs.Get(ctx, e.Message.ConversationID)
		if err != nil {
			// Membership is relevance, not enrichment: without it we cannot
			// address the event, so it is dropped.
			r.log.Warn("conversation lookup failed", "conversation", e.Message.ConversationID, "err", err)
			return Notification{}, false
		}
		if !match.Involves(r.identityID) {
			return Notification{}, false
		}
		return Notification{
			ID:        uuid.NewString(),
			Kind:      KindMessage,
			SourceID:  e.Message.SenderID,
			Preview:   e.Message.Body,
			CreatedAt: time.Now().UTC(),
		}, true

	default:
		return Notification{}, false
	}
}

// enrich fills in the human-readable sender. Lookup failure degrades to a
// placeholder; the notification is still delivered.
func (r *Router) enrich(ctx context.Context, n *Notification) {
	profile, err := r.profiles.Get(ctx, n.SourceID)
	if err != nil {
		r.log.Warn("notification enrichment failed", "source", n.SourceID, "err", err)
		n.SourceName = placeholderName
		return
	}
	n.SourceName = profile.DisplayName
	n.SourceAvatar = profile.AvatarURL
}

// Notifications returns a newest-first snapshot of the retained window.
func (r *Router) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ring.list()
}

// MarkRead acknowledges a notification. Reports whether it was still in the
// retained window.
func (r *Router) MarkRead(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ring.markRead(id)
}

// MarkDegraded records that live updates are unavailable. Reconciliation
// reads still work, so this is surfaced, not fatal.
func (r *Router) MarkDegraded(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.degraded = err
}

// Degraded returns the live-updates failure, if any.
func (r *Router) Degraded() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.degraded
}
