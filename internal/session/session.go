package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nestmatch/engine/internal/cache"
	"github.com/nestmatch/engine/internal/config"
	"github.com/nestmatch/engine/internal/db"
	"github.com/nestmatch/engine/internal/deck"
	engineerr "github.com/nestmatch/engine/internal/errors"
	"github.com/nestmatch/engine/internal/feed"
	"github.com/nestmatch/engine/internal/metrics"
	"github.com/nestmatch/engine/internal/repository"
	"github.com/nestmatch/engine/internal/router"
	"github.com/nestmatch/engine/internal/stream"
	"github.com/nestmatch/engine/internal/unread"
)

// maxResubscribes bounds how often a session's change-stream subscription
// retries before the router is marked degraded.
const maxResubscribes = 5

// Session bundles everything scoped to one authenticated identity while it
// is online: the swipe deck, the notification router, and the unread
// aggregator, plus the change-stream subscription feeding them.
type Session struct {
	Identity db.Profile
	Deck     *deck.Controller
	Router   *router.Router
	Unread   *unread.Aggregator

	cache     *cache.RedisCache
	log       *slog.Logger
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Close tears the session down: the change-stream subscription ends, the
// deck stops dispatching, the aggregator's pending recompute is cancelled
// and the identity's counter cache entries are dropped. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.Deck.Close()
		s.Unread.Stop()
		if err := s.cache.DropCounters(context.Background(), s.Identity.ID); err != nil {
			s.log.Warn("counter cache not dropped on logout", "user", s.Identity.ID, "err", err)
		}
		metrics.ActiveSessions.Dec()
	})
}

// Manager opens and tracks per-identity sessions. At most one session per
// identity: opening a second one replaces (and closes) the first.
type Manager struct {
	cfg      *config.Config
	profiles *repository.ProfileRepository
	likes    *repository.LikeRepository
	matches  *repository.MatchRepository
	messages *repository.MessageRepository
	swipes   *repository.SwipeStore
	cache    *cache.RedisCache
	push     router.PushSink // may be nil
	log      *slog.Logger

	mu       sync.Mutex
	sessions map[uint64]*Session
}

// NewManager wires the manager over the shared repositories and cache.
func NewManager(
	cfg *config.Config,
	profiles *repository.ProfileRepository,
	likes *repository.LikeRepository,
	matches *repository.MatchRepository,
	messages *repository.MessageRepository,
	swipes *repository.SwipeStore,
	redisCache *cache.RedisCache,
	push router.PushSink,
	log *slog.Logger,
) *Manager {
	return &Manager{
		cfg:      cfg,
		profiles: profiles,
		likes:    likes,
		matches:  matches,
		messages: messages,
		swipes:   swipes,
		cache:    redisCache,
		push:     push,
		log:      log,
		sessions: make(map[uint64]*Session),
	}
}

// Open builds a live session for the identity.
//
// Behavior:
//   - Preferences are read once here and captured by the feed; the session
//     never re-fetches them.
//   - The deck loads its first page before Open returns, so the first Peek
//     is served from memory.
//   - A single change-stream subscription feeds the router; relevant events
//     invalidate the unread aggregator.
//   - If the subscription cannot be established the session still opens,
//     with the router marked degraded immediately.
func (m *Manager) Open(ctx context.Context, userID uint64) (*Session, error) {
	identity, err := m.profiles.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	prefs, err := m.profiles.GetPreference(ctx, userID)
	if err != nil {
		return nil, err
	}

	sessCtx, cancel := context.WithCancel(context.Background())

	aggOpts := unread.Options{
		DebounceWindow:    m.cfg.Engine.DebounceWindow,
		ReconcileInterval: m.cfg.Engine.ReconcileInterval,
	}
	agg := unread.New(sessCtx, userID, m.likes, m.matches, m.messages, m.cache,
		aggOpts, m.log)

	rtr := router.New(userID, m.profiles, m.matches, m.push,
		func(router.Kind) { agg.Invalidate() },
		router.Options{RingSize: m.cfg.Engine.RingSize, SeenSetSize: m.cfg.Engine.SeenSetSize},
		m.log)

	f := feed.New(m.profiles, userID, identity.Role, prefs, feed.Options{
		PageSize: m.cfg.Engine.PageSize,
		MinScore: m.cfg.Engine.MinScore,
		Weights:  feed.DefaultOptions().Weights,
	}, m.log)

	deckOpts := deck.DefaultOptions()
	deckOpts.WriteRetries = m.cfg.Engine.WriteRetries
	dc := deck.New(userID, identity.Role, f, m.swipes, deckOpts, m.log, func(err error) {
		m.log.Error("swipe write permanently failed", "user", userID, "err", err)
	})
	if err := dc.Start(sessCtx); err != nil {
		agg.Stop()
		cancel()
		return nil, err
	}

	sub := stream.NewSubscriber(m.cache.Client, m.log, maxResubscribes, rtr.MarkDegraded)
	events, _, subErr := sub.Subscribe(sessCtx)
	if subErr != nil {
		// Sessions survive a dead stream: counts reconcile on demand and the
		// notification surface reports itself degraded.
		m.log.Error("change stream unavailable at login", "user", userID, "err", subErr)
		rtr.MarkDegraded(subErr)
	} else {
		go rtr.Run(sessCtx, events)
	}

	s := &Session{
		Identity: identity,
		Deck:     dc,
		Router:   rtr,
		Unread:   agg,
		cache:    m.cache,
		log:      m.log,
		cancel:   cancel,
	}

	m.mu.Lock()
	prev := m.sessions[userID]
	m.sessions[userID] = s
	m.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	metrics.ActiveSessions.Inc()
	m.log.Info("session opened", "user", userID, "role", identity.Role, "deck_session", dc.SessionID())
	return s, nil
}

// Get returns the identity's live session.
func (m *Manager) Get(userID uint64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		return nil, engineerr.ErrSessionClosed
	}
	return s, nil
}

// Close ends the identity's session if one is live.
func (m *Manager) Close(userID uint64) error {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()
	if !ok {
		return engineerr.ErrSessionClosed
	}
	s.Close()
	m.log.Info("session closed", "user", userID)
	return nil
}

// CloseAll tears down every live session. Used on server shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.sessions = make(map[uint64]*Session)
	m.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
}
