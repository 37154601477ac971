// ABOUTME: Bounded worker pool feeding inbound chat messages to the relay
// ABOUTME: Applies a configurable overflow policy when the queue is full

package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Asiandegen/autoclaimer/internal/source"
)

const (
	DefaultWorkers      = 4
	DefaultQueueSize    = 256
	DefaultDrainTimeout = 5 * time.Second
)

// Overflow selects what Enqueue does when the queue is full.
type Overflow string

const (
	OverflowBlock      Overflow = "block"       // wait for room
	OverflowDropOldest Overflow = "drop_oldest" // discard the oldest queued message
	OverflowDropNewest Overflow = "drop_newest" // discard the incoming message
)

// ParseOverflow validates an overflow policy name. Empty means block.
func ParseOverflow(s string) (Overflow, error) {
	switch o := Overflow(s); o {
	case "":
		return OverflowBlock, nil
	case OverflowBlock, OverflowDropOldest, OverflowDropNewest:
		return o, nil
	default:
		return "", fmt.Errorf("unknown overflow policy %q (want block, drop_oldest or drop_newest)", s)
	}
}

// Handler processes one message. The relay's HandleMessage fits.
type Handler func(ctx context.Context, msg source.Message)

// Options configures a Pool.
type Options struct {
	Workers      int
	QueueSize    int
	Overflow     Overflow
	DrainTimeout time.Duration // how long Run keeps draining after cancellation
	Handler      Handler
	Logger       *slog.Logger
}

// Pool runs Handler on queued messages with a fixed number of workers.
type Pool struct {
	opts    Options
	queue   chan source.Message
	stopped chan struct{}
	stop    sync.Once
	logger  *slog.Logger

	processed atomic.Int64
	dropped   atomic.Int64
}

// New creates a pool. Zero values fall back to the package defaults.
func New(opts Options) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Overflow == "" {
		opts.Overflow = OverflowBlock
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = DefaultDrainTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Pool{
		opts:    opts,
		queue:   make(chan source.Message, opts.QueueSize),
		stopped: make(chan struct{}),
		logger:  opts.Logger.With("component", "dispatch"),
	}
}

// Enqueue queues msg according to the overflow policy and reports whether it
// was accepted. After Run has returned every message is rejected.
func (p *Pool) Enqueue(ctx context.Context, msg source.Message) bool {
	select {
	case <-p.stopped:
		return false
	default:
	}

	switch p.opts.Overflow {
	case OverflowDropNewest:
		select {
		case p.queue <- msg:
			return true
		default:
			p.drop("queue full, dropping newest", msg)
			return false
		}

	case OverflowDropOldest:
		for {
			select {
			case p.queue <- msg:
				return true
			default:
			}
			select {
			case old := <-p.queue:
				p.drop("queue full, dropping oldest", old)
			default:
			}
		}

	default:
		select {
		case p.queue <- msg:
			return true
		case <-ctx.Done():
			return false
		case <-p.stopped:
			return false
		}
	}
}

// Emit adapts the pool to source.EmitFunc using a background context, so a
// blocking policy waits until Run stops.
func (p *Pool) Emit(msg source.Message) {
	p.Enqueue(context.Background(), msg)
}

func (p *Pool) drop(reason string, msg source.Message) {
	n := p.dropped.Add(1)
	p.logger.Warn(reason, "source", msg.Source, "channel", msg.Label(), "dropped_total", n)
}

// Run starts the workers and blocks until ctx is cancelled. It then waits for
// in-flight handlers, drains what is still queued for up to DrainTimeout and
// returns.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info("dispatch pool started",
		"workers", p.opts.Workers,
		"queue_size", p.opts.QueueSize,
		"overflow", p.opts.Overflow,
	)

	var wg sync.WaitGroup
	for i := 0; i < p.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx)
		}()
	}
	wg.Wait()

	p.stop.Do(func() { close(p.stopped) })
	p.drain(ctx)
	return nil
}

func (p *Pool) worker(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case msg := <-p.queue:
			p.handle(ctx, msg)
		}
	}
}

func (p *Pool) drain(ctx context.Context) {
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.DrainTimeout)
	defer cancel()

	drained := 0
	for {
		if drainCtx.Err() != nil {
			p.logger.Warn("drain timed out", "abandoned", len(p.queue))
			return
		}
		select {
		case msg := <-p.queue:
			p.handle(drainCtx, msg)
			drained++
		default:
			if drained > 0 {
				p.logger.Info("dispatch queue drained", "messages", drained)
			}
			return
		}
	}
}

func (p *Pool) handle(ctx context.Context, msg source.Message) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("handler panicked", "source", msg.Source, "panic", r)
		}
	}()
	p.opts.Handler(ctx, msg)
	p.processed.Add(1)
}

// Processed returns how many messages handlers have completed.
func (p *Pool) Processed() int64 { return p.processed.Load() }

// Dropped returns how many messages the overflow policy discarded.
func (p *Pool) Dropped() int64 { return p.dropped.Load() }

// Pending returns the current queue depth.
func (p *Pool) Pending() int { return len(p.queue) }
