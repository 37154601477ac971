// ABOUTME: Tests for the transport readiness gate
// ABOUTME: Covers open, reopen after disconnect, timeout and cancellation

package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReadyGate_OpenReleasesWaiters(t *testing.T) {
	g := newReadyGate()

	released := make(chan bool, 1)
	go func() { released <- g.wait(context.Background(), 5*time.Second) }()

	g.set(true)
	select {
	case ok := <-released:
		assert.True(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("waiter not released")
	}

	assert.True(t, g.wait(context.Background(), time.Millisecond), "open gate returns at once")
	g.set(true)
}

func TestReadyGate_ClosesAgainOnDisconnect(t *testing.T) {
	g := newReadyGate()
	g.set(true)
	g.set(false)

	assert.False(t, g.wait(context.Background(), 20*time.Millisecond))

	g.set(true)
	assert.True(t, g.wait(context.Background(), time.Millisecond))
}

func TestReadyGate_Cancelled(t *testing.T) {
	g := newReadyGate()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, g.wait(ctx, 5*time.Second))
}
