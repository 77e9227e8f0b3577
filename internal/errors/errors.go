package errors

import (
	"errors"
	"fmt"
)

// Sentinel conditions that are expected during normal operation.
// These are handled locally by callers and never crash the process.
var (
	// ErrUndoUnavailable is returned when the undo log is empty or the
	// most recent swipe has already been finalized.
	ErrUndoUnavailable = errors.New("undo unavailable")

	// ErrFeedExhausted signals that the feed session has no further pages.
	ErrFeedExhausted = errors.New("no more candidates")

	// ErrNoIdentity is returned when a request carries no resolvable identity.
	ErrNoIdentity = errors.New("no authenticated identity")

	// ErrSessionClosed is returned for operations on a torn-down session.
	ErrSessionClosed = errors.New("session closed")

	// ErrWriteQueueFull marks a swipe whose durable write could not even be
	// queued because the dispatch queue is saturated.
	ErrWriteQueueFull = errors.New("swipe write queue full")
)

// FeedFetchError wraps a store failure during feed pagination.
// It is surfaced to the caller without auto-retry so persistent store
// failures are not masked as infinite loading.
type FeedFetchError struct {
	Cursor int
	Err    error
}

func (e *FeedFetchError) Error() string {
	return fmt.Sprintf("feed fetch failed at cursor %d: %v", e.Cursor, e.Err)
}

func (e *FeedFetchError) Unwrap() error { return e.Err }

// SwipeWriteError marks a durable swipe write that failed after bounded
// retries. The swipe stays applied locally; the error is reported for
// background reconciliation, never silently dropped.
type SwipeWriteError struct {
	TargetID uint64
	Attempts int
	Err      error
}

func (e *SwipeWriteError) Error() string {
	return fmt.Sprintf("swipe write for target %d failed after %d attempts: %v", e.TargetID, e.Attempts, e.Err)
}

func (e *SwipeWriteError) Unwrap() error { return e.Err }

// SubscriptionDroppedError is surfaced when change-stream re-subscription
// keeps failing. Live updates are degraded; reconciliation reads still work.
type SubscriptionDroppedError struct {
	Attempts int
	Err      error
}

func (e *SubscriptionDroppedError) Error() string {
	return fmt.Sprintf("live updates unavailable after %d re-subscribe attempts: %v", e.Attempts, e.Err)
}

func (e *SubscriptionDroppedError) Unwrap() error { return e.Err }

// ArgumentError reports bad caller input (malformed ids, unknown directions).
type ArgumentError struct {
	Msg string
}

func (e *ArgumentError) Error() string { return e.Msg }

// InvalidArgument creates an ArgumentError.
// Use this in the handler layer for input validation.
func InvalidArgument(msg string) error {
	return &ArgumentError{Msg: msg}
}
