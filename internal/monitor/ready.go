// ABOUTME: Tracks whether the transport is identified so sources can wait for it
// ABOUTME: Broadcasts readiness by closing a channel that is replaced on disconnect

package monitor

import (
	"context"
	"sync"
	"time"
)

// readyGate is open while the transport is identified.
type readyGate struct {
	mu   sync.Mutex
	ch   chan struct{}
	open bool
}

func newReadyGate() *readyGate {
	return &readyGate{ch: make(chan struct{})}
}

// set opens or closes the gate.
func (g *readyGate) set(ready bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case ready && !g.open:
		close(g.ch)
		g.open = true
	case !ready && g.open:
		g.ch = make(chan struct{})
		g.open = false
	}
}

// wait blocks until the gate is open, ctx is done or timeout elapses. It
// reports whether the gate opened.
func (g *readyGate) wait(ctx context.Context, timeout time.Duration) bool {
	g.mu.Lock()
	ch := g.ch
	g.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	case <-timer.C:
		return false
	}
}
