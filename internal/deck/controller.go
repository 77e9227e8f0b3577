package deck

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/nestmatch/engine/internal/db"
	engineerr "github.com/nestmatch/engine/internal/errors"
	"github.com/nestmatch/engine/internal/feed"
	"github.com/nestmatch/engine/internal/metrics"
)

// State of the deck over one feed session.
type State string

const (
	StateIdle      State = "idle"
	StateLoading   State = "loading"
	StateReady     State = "ready"
	StateSwiping   State = "swiping"
	StateExhausted State = "exhausted"
)

// Status of one undo-log entry's durable write.
type Status string

const (
	// StatusPending: queued, not yet handed to the writer. Undo cancels it.
	StatusPending Status = "pending"
	// StatusInflight: the writer currently owns it. Undo compensates.
	StatusInflight Status = "inflight"
	// StatusSucceeded: durably written.
	StatusSucceeded Status = "succeeded"
	// StatusFailed: write failed after bounded retries. The swipe stays
	// applied locally and the entry is kept for background reconciliation.
	StatusFailed Status = "failed"
	// StatusCancelled: undone before the write went out.
	StatusCancelled Status = "cancelled"
)

// SwipeEvent records one committed swipe.
type SwipeEvent struct {
	TargetID   uint64       `json:"target_id"`
	TargetType db.Role      `json:"target_type"`
	Direction  db.Direction `json:"direction"`
	Timestamp  time.Time    `json:"timestamp"`
	SessionID  string       `json:"session_id"`
}

// LogEntry is a read-only view of one undo-log entry.
type LogEntry struct {
	Event  SwipeEvent
	Status Status
}

// SwipeWriter is the durable side of a swipe: the append write and its
// undo compensation.
type SwipeWriter interface {
	Write(ctx context.Context, fromUser, toTarget uint64, direction db.Direction) error
	Compensate(ctx context.Context, fromUser, toTarget uint64) error
}

// Options tune the controller.
type Options struct {
	WriteRetries  int           // durable write attempts before StatusFailed
	RetryInterval time.Duration // initial backoff between attempts
	QueueSize     int
}

// DefaultOptions returns the product defaults.
func DefaultOptions() Options {
	return Options{WriteRetries: 3, RetryInterval: 200 * time.Millisecond, QueueSize: 128}
}

type opKind int

const (
	opWrite opKind = iota
	opCompensate
)

type dispatchOp struct {
	kind  opKind
	entry *entry
}

type entry struct {
	event  SwipeEvent
	status Status // guarded by Controller.mu
}

// Controller owns one identity's swipe deck: the scored stack, the current
// position, the session undo log, and the dispatch of durable writes.
//
// Swipes are applied optimistically: position advances as soon as the swipe
// is locally recorded, and the durable write runs asynchronously behind a
// single dispatcher goroutine so writes (and compensations) stay strictly
// ordered per session. A failed write never rolls the deck back.
type Controller struct {
	identityID uint64
	browseRole db.Role
	sessionID  string
	feed       *feed.Feed
	writer     SwipeWriter
	opts       Options
	log        *slog.Logger

	// onWriteFailed surfaces SwipeWriteError for reporting; may be nil.
	onWriteFailed func(error)

	mu         sync.Mutex
	state      State
	stack      []feed.ScoredCandidate
	position   int
	nextCursor *int
	undoLog    []*entry
	undoArmed  bool
	closed     bool

	ops    chan dispatchOp
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an idle controller for one identity's feed session.
func New(identityID uint64, identityRole db.Role, f *feed.Feed, writer SwipeWriter, opts Options, log *slog.Logger, onWriteFailed func(error)) *Controller {
	if opts.WriteRetries <= 0 {
		opts.WriteRetries = DefaultOptions().WriteRetries
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultOptions().RetryInterval
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultOptions().QueueSize
	}
	return &Controller{
		identityID:    identityID,
		browseRole:    identityRole.Opposite(),
		sessionID:     uuid.NewString(),
		feed:          f,
		writer:        writer,
		opts:          opts,
		log:           log,
		onWriteFailed: onWriteFailed,
		state:         StateIdle,
		ops:           make(chan dispatchOp, opts.QueueSize),
	}
}

// SessionID returns the id stamped onto this session's swipe events.
func (c *Controller) SessionID() string { return c.sessionID }

// Start loads the first feed page and begins dispatching durable writes.
// An empty feed is not an error: the deck simply starts exhausted.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return engineerr.ErrSessionClosed
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.dispatcher()

	zero := 0
	c.nextCursor = &zero
	c.state = StateLoading
	if err := c.restockLocked(c.ctx); err != nil && c.state != StateExhausted {
		c.state = StateIdle
		return err
	}
	return nil
}

// Close tears the session down: pending page fetches are cancelled (a late
// page for an abandoned session is discarded, not applied) and the
// dispatcher drains out.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

// State returns the current deck state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Position returns how many swipes deep the session is.
func (c *Controller) Position() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

// UndoLog returns a snapshot of the session's swipe log.
func (c *Controller) UndoLog() []LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]LogEntry, len(c.undoLog))
	for i, e := range c.undoLog {
		out[i] = LogEntry{Event: e.event, Status: e.status}
	}
	return out
}

// FailedEvents lists swipes whose durable write failed after retries.
// They remain applied locally and are reported for manual retry.
func (c *Controller) FailedEvents() []SwipeEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []SwipeEvent
	for _, e := range c.undoLog {
		if e.status == StatusFailed {
			out = append(out, e.event)
		}
	}
	return out
}

// Peek returns the candidate at the current position, transparently loading
// the next page when the stack is spent. ErrFeedExhausted signals a clean
// end of feed; FeedFetchError propagates store trouble for the caller to
// retry.
func (c *Controller) Peek(ctx context.Context) (feed.ScoredCandidate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return feed.ScoredCandidate{}, engineerr.ErrSessionClosed
	}
	if err := c.restockLocked(ctx); err != nil {
		return feed.ScoredCandidate{}, err
	}
	return c.stack[c.position], nil
}

// Swipe commits a swipe on the current candidate.
//
// Two-phase commit: the local apply (undo-log append, position advance) is
// synchronous and always succeeds; the durable write is queued and may fail
// independently, in which case the entry is marked failed without any
// user-visible regression. A second swipe is accepted as soon as the first
// is locally recorded, even with its write still in flight.
func (c *Controller) Swipe(ctx context.Context, direction db.Direction) (SwipeEvent, error) {
	if !direction.Valid() {
		return SwipeEvent{}, engineerr.InvalidArgument("unknown swipe direction")
	}

	// Failure reporting happens after c.mu is released; the callback may
	// re-enter the controller.
	var werr error
	defer func() {
		if werr != nil && c.onWriteFailed != nil {
			c.onWriteFailed(werr)
		}
	}()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return SwipeEvent{}, engineerr.ErrSessionClosed
	}
	if err := c.restockLocked(ctx); err != nil {
		return SwipeEvent{}, err
	}

	target := c.stack[c.position]
	c.state = StateSwiping

	e := &entry{
		event: SwipeEvent{
			TargetID:   target.Profile.ID,
			TargetType: c.browseRole,
			Direction:  direction,
			Timestamp:  time.Now().UTC(),
			SessionID:  c.sessionID,
		},
		status: StatusPending,
	}
	c.undoLog = append(c.undoLog, e)
	c.undoArmed = true
	c.position++
	metrics.SwipesCommitted.WithLabelValues(string(direction)).Inc()

	// The dispatcher takes c.mu to finalize entries, so blocking on a full
	// queue here would wedge the deck against its own dispatcher. Fail the
	// write immediately instead; the swipe stays applied, same as any other
	// failed write.
	select {
	case c.ops <- dispatchOp{kind: opWrite, entry: e}:
	default:
		e.status = StatusFailed
		metrics.SwipeWritesFailed.Inc()
		werr = &engineerr.SwipeWriteError{TargetID: e.event.TargetID, Attempts: 0, Err: engineerr.ErrWriteQueueFull}
		c.log.Error("swipe write queue full", "session", c.sessionID, "target", e.event.TargetID)
	}

	// Top up the stack for the next candidate. A fetch failure here is not a
	// swipe failure; the next Peek surfaces it.
	if err := c.restockLocked(ctx); err != nil && c.state != StateExhausted {
		c.log.Warn("deck restock failed", "session", c.sessionID, "err", err)
		c.state = StateReady
	}
	return e.event, nil
}

// Undo reverts the most recent swipe: position steps back, the log entry is
// removed, and the durable write is cancelled if still queued or compensated
// with a reversal write if already sent. Only the immediately preceding
// swipe is undoable; anything older is finalized.
func (c *Controller) Undo(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return engineerr.ErrSessionClosed
	}
	if !c.undoArmed || len(c.undoLog) == 0 {
		return engineerr.ErrUndoUnavailable
	}

	e := c.undoLog[len(c.undoLog)-1]
	c.undoLog = c.undoLog[:len(c.undoLog)-1]
	c.undoArmed = false
	c.position--
	if c.state == StateExhausted && c.position < len(c.stack) {
		c.state = StateReady
	}

	switch e.status {
	case StatusPending:
		e.status = StatusCancelled
	default:
		// Already with the writer (or done): queue the reversal behind it so
		// per-session write order is preserved. Never block with c.mu held;
		// a saturated queue fails the entry instead.
		select {
		case c.ops <- dispatchOp{kind: opCompensate, entry: e}:
		default:
			e.status = StatusFailed
			c.log.Error("compensation queue full, reversal write dropped", "session", c.sessionID, "target", e.event.TargetID)
		}
	}
	metrics.SwipesUndone.Inc()
	return nil
}

// restockLocked tops the stack up until a candidate is available at the
// current position or the feed is exhausted. Caller holds c.mu.
func (c *Controller) restockLocked(ctx context.Context) error {
	for c.position >= len(c.stack) {
		if c.nextCursor == nil {
			c.state = StateExhausted
			return engineerr.ErrFeedExhausted
		}
		c.state = StateLoading
		page, err := c.feed.NextPage(ctx, *c.nextCursor)
		if err != nil {
			c.state = StateReady
			return err
		}
		c.stack = append(c.stack, page.Candidates...)
		c.nextCursor = page.NextCursor
	}
	c.state = StateReady
	return nil
}

// dispatcher is the single writer behind the deck: it owns every durable
// write and compensation for the session, in commit order.
func (c *Controller) dispatcher() {
	defer c.wg.Done()
	for {
		// Shutdown wins over queued work: once the session context is gone
		// no further writes are attempted, the remainder is failed out.
		select {
		case <-c.ctx.Done():
			c.failUndelivered()
			return
		default:
		}
		select {
		case <-c.ctx.Done():
			c.failUndelivered()
			return
		case op := <-c.ops:
			switch op.kind {
			case opWrite:
				c.performWrite(op.entry)
			case opCompensate:
				c.performCompensate(op.entry)
			}
		}
	}
}

// failUndelivered empties whatever the dispatcher never got to at shutdown.
// Undelivered writes are marked failed and reported, not silently lost.
func (c *Controller) failUndelivered() {
	for {
		select {
		case op := <-c.ops:
			c.mu.Lock()
			e := op.entry
			cancelled := op.kind == opWrite && e.status == StatusCancelled
			if !cancelled {
				e.status = StatusFailed
			}
			ev := e.event
			c.mu.Unlock()
			if cancelled {
				continue
			}
			if op.kind == opCompensate {
				c.log.Error("swipe compensation dropped at close", "session", c.sessionID, "target", ev.TargetID)
				continue
			}
			metrics.SwipeWritesFailed.Inc()
			c.log.Error("swipe write dropped at close", "session", c.sessionID, "target", ev.TargetID)
			if c.onWriteFailed != nil {
				c.onWriteFailed(&engineerr.SwipeWriteError{TargetID: ev.TargetID, Attempts: 0, Err: engineerr.ErrSessionClosed})
			}
		default:
			return
		}
	}
}

func (c *Controller) performWrite(e *entry) {
	c.mu.Lock()
	if e.status == StatusCancelled {
		c.mu.Unlock()
		return
	}
	e.status = StatusInflight
	ev := e.event
	c.mu.Unlock()

	err := c.withRetry(func() error {
		return c.writer.Write(c.ctx, c.identityID, ev.TargetID, ev.Direction)
	})

	c.mu.Lock()
	if err != nil {
		e.status = StatusFailed
	} else if e.status == StatusInflight {
		e.status = StatusSucceeded
	}
	c.mu.Unlock()

	if err != nil {
		metrics.SwipeWritesFailed.Inc()
		werr := &engineerr.SwipeWriteError{TargetID: ev.TargetID, Attempts: c.opts.WriteRetries, Err: err}
		c.log.Error("durable swipe write failed", "session", c.sessionID, "target", ev.TargetID, "err", err)
		if c.onWriteFailed != nil {
			c.onWriteFailed(werr)
		}
	}
}

func (c *Controller) performCompensate(e *entry) {
	ev := e.event
	err := c.withRetry(func() error {
		return c.writer.Compensate(c.ctx, c.identityID, ev.TargetID)
	})
	if err != nil {
		c.log.Error("swipe compensation failed", "session", c.sessionID, "target", ev.TargetID, "err", err)
		return
	}
	c.mu.Lock()
	e.status = StatusCancelled
	c.mu.Unlock()
}

func (c *Controller) withRetry(fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.opts.RetryInterval
	bo.MaxElapsedTime = 0
	capped := backoff.WithMaxRetries(bo, uint64(c.opts.WriteRetries-1))
	return backoff.Retry(fn, backoff.WithContext(capped, c.ctx))
}
