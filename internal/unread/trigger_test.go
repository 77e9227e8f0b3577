package unread_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nestmatch/engine/internal/unread"
)

func TestTriggerCoalescesBurst(t *testing.T) {
	var runs atomic.Int32
	tr := unread.NewTrigger(30*time.Millisecond, func() { runs.Add(1) })
	defer tr.Stop()

	for i := 0; i < 20; i++ {
		tr.Invalidate()
	}

	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	// The window has settled; nothing further should fire.
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
}

func TestTriggerRunsAgainAfterWindow(t *testing.T) {
	var runs atomic.Int32
	tr := unread.NewTrigger(20*time.Millisecond, func() { runs.Add(1) })
	defer tr.Stop()

	tr.Invalidate()
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	tr.Invalidate()
	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestTriggerStopCancelsPending(t *testing.T) {
	var runs atomic.Int32
	tr := unread.NewTrigger(30*time.Millisecond, func() { runs.Add(1) })

	tr.Invalidate()
	tr.Stop()

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), runs.Load())

	// Invalidations after Stop are ignored.
	tr.Invalidate()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), runs.Load())
}
