package unread

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nestmatch/engine/internal/cache"
	"github.com/nestmatch/engine/internal/metrics"
)

// Counts are the identity's unread badges. Non-negative, monotone mirrors of
// store truth as of the last reconciliation.
type Counts struct {
	Likes    int64 `json:"likes"`
	Matches  int64 `json:"matches"`
	Messages int64 `json:"messages"`
}

// Single-method counter sources, satisfied directly by the repositories.
type (
	LikeCounter interface {
		CountInterestIn(ctx context.Context, recipientID uint64) (int64, error)
	}
	MatchCounter interface {
		CountMutualInvolving(ctx context.Context, userID uint64) (int64, error)
	}
	MessageCounter interface {
		CountUnreadFor(ctx context.Context, userID uint64) (int64, error)
	}
)

// CounterCache is the write-through fast path for reconciled counts.
// Implemented by cache.RedisCache; may be nil.
type CounterCache interface {
	SetCounter(ctx context.Context, kind string, userID uint64, count int64) error
	GetCounter(ctx context.Context, kind string, userID uint64) (int64, bool, error)
}

// reconcileTimeout bounds one reconciliation read round.
const reconcileTimeout = 5 * time.Second

// Options tune the aggregator's refresh cadence.
type Options struct {
	// DebounceWindow coalesces Invalidate bursts into one read round.
	DebounceWindow time.Duration
	// ReconcileInterval is the period of the unconditional authoritative
	// read that repairs the mirror when push events never arrive.
	ReconcileInterval time.Duration
}

// DefaultOptions returns the product defaults.
func DefaultOptions() Options {
	return Options{DebounceWindow: 500 * time.Millisecond, ReconcileInterval: time.Minute}
}

// Aggregator derives the identity's unread counts from reconciliation reads
// against the store. Change-stream emissions call Invalidate, which is
// debounced through a Trigger so bursts collapse into a single read round.
// A periodic reconciliation runs regardless of push traffic, so counts
// converge within one interval even when individual events are dropped or
// the stream is degraded.
//
// The aggregator is a strict mirror: a reconciliation returning lower
// numbers than the last known values wins (the user may have read things
// elsewhere). It never increments counters on its own.
type Aggregator struct {
	userID   uint64
	likes    LikeCounter
	matches  MatchCounter
	messages MessageCounter
	cache    CounterCache
	trigger  *Trigger
	log      *slog.Logger

	// base context for debounce-driven reconciliations; session scoped.
	ctx      context.Context
	stopOnce sync.Once
	stopped  chan struct{}

	mu     sync.Mutex
	counts Counts
	primed bool
}

// New creates an aggregator for the identity and starts its periodic
// reconciliation. ctx scopes background reconciliations and should be the
// session context.
func New(ctx context.Context, userID uint64, likes LikeCounter, matches MatchCounter, messages MessageCounter, counterCache CounterCache, opts Options, log *slog.Logger) *Aggregator {
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = DefaultOptions().DebounceWindow
	}
	if opts.ReconcileInterval <= 0 {
		opts.ReconcileInterval = DefaultOptions().ReconcileInterval
	}
	a := &Aggregator{
		userID:   userID,
		likes:    likes,
		matches:  matches,
		messages: messages,
		cache:    counterCache,
		log:      log,
		ctx:      ctx,
		stopped:  make(chan struct{}),
	}
	a.trigger = NewTrigger(opts.DebounceWindow, a.recompute)
	go a.reconcileLoop(opts.ReconcileInterval)
	return a
}

// Invalidate requests a recomputation. Rapid calls coalesce into one
// reconciliation read after the debounce window.
func (a *Aggregator) Invalidate() {
	a.trigger.Invalidate()
}

// Stop cancels pending recomputation and ends the periodic reconciliation.
// Called on session teardown.
func (a *Aggregator) Stop() {
	a.trigger.Stop()
	a.stopOnce.Do(func() { close(a.stopped) })
}

func (a *Aggregator) reconcileLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-a.stopped:
			return
		case <-ticker.C:
			a.recompute()
		}
	}
}

// GetCounts returns the current counts. A cold aggregator primes from the
// counter cache when every kind hits, deferring the authoritative read to
// the debounce path; otherwise it reconciles synchronously so a fresh
// session never reports zeros it hasn't verified.
func (a *Aggregator) GetCounts(ctx context.Context) (Counts, error) {
	a.mu.Lock()
	if a.primed {
		c := a.counts
		a.mu.Unlock()
		return c, nil
	}
	a.mu.Unlock()

	if cached, ok := a.fromCache(ctx); ok {
		a.mu.Lock()
		a.counts = cached
		a.primed = true
		a.mu.Unlock()
		a.Invalidate()
		return cached, nil
	}

	return a.reconcile(ctx)
}

// fromCache loads all three counters from the cache; a single miss or error
// invalidates the whole round, the store read is cheap enough.
func (a *Aggregator) fromCache(ctx context.Context) (Counts, bool) {
	if a.cache == nil {
		return Counts{}, false
	}
	var c Counts
	for _, kind := range []struct {
		name string
		dst  *int64
	}{
		{cache.CounterLikes, &c.Likes},
		{cache.CounterMatches, &c.Matches},
		{cache.CounterMessages, &c.Messages},
	} {
		n, ok, err := a.cache.GetCounter(ctx, kind.name, a.userID)
		if err != nil || !ok {
			return Counts{}, false
		}
		*kind.dst = clamp(n)
	}
	return c, true
}

func (a *Aggregator) recompute() {
	ctx, cancel := context.WithTimeout(a.ctx, reconcileTimeout)
	defer cancel()
	if _, err := a.reconcile(ctx); err != nil {
		a.log.Warn("unread reconciliation failed", "user", a.userID, "err", err)
	}
}

// reconcile performs the authoritative read round and replaces the mirror.
// A partially failed round keeps the previous value for the failed counter
// only; the others still update.
func (a *Aggregator) reconcile(ctx context.Context) (Counts, error) {
	metrics.ReconciliationReads.Inc()
	started := time.Now()
	defer func() {
		metrics.ReconciliationSeconds.Observe(time.Since(started).Seconds())
	}()

	a.mu.Lock()
	next := a.counts
	a.mu.Unlock()

	var firstErr error
	if n, err := a.likes.CountInterestIn(ctx, a.userID); err == nil {
		next.Likes = clamp(n)
	} else {
		firstErr = err
	}
	if n, err := a.matches.CountMutualInvolving(ctx, a.userID); err == nil {
		next.Matches = clamp(n)
	} else if firstErr == nil {
		firstErr = err
	}
	if n, err := a.messages.CountUnreadFor(ctx, a.userID); err == nil {
		next.Messages = clamp(n)
	} else if firstErr == nil {
		firstErr = err
	}

	a.mu.Lock()
	a.counts = next
	a.primed = true
	a.mu.Unlock()

	if a.cache != nil {
		// Best-effort write-through; the store remains the authority.
		cctx := ctx
		_ = a.cache.SetCounter(cctx, cache.CounterLikes, a.userID, next.Likes)
		_ = a.cache.SetCounter(cctx, cache.CounterMatches, a.userID, next.Matches)
		_ = a.cache.SetCounter(cctx, cache.CounterMessages, a.userID, next.Messages)
	}

	return next, firstErr
}

func clamp(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}
