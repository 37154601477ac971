// ABOUTME: Relay decides whether an extracted code is forwarded downstream
// ABOUTME: Runs check, send, mark per code under a keyed lock and records outcomes

package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Asiandegen/autoclaimer/internal/dedupe"
	"github.com/Asiandegen/autoclaimer/internal/extract"
	"github.com/Asiandegen/autoclaimer/internal/protocol"
	"github.com/Asiandegen/autoclaimer/internal/source"
	"github.com/Asiandegen/autoclaimer/internal/store"
)

// Outcome reports what Submit did with a code.
type Outcome = store.Outcome

const (
	OutcomeForwarded  = store.OutcomeForwarded
	OutcomeSuppressed = store.OutcomeSuppressed
	OutcomeFailed     = store.OutcomeFailed
)

// ErrEmptyCode is returned by Submit for a blank code.
var ErrEmptyCode = errors.New("empty code")

// Sender delivers one outbound message to the downstream consumer.
// *transport.Client satisfies it.
type Sender interface {
	Send(ctx context.Context, v any) error
}

// Recorder receives every relay decision. *store.SQLiteStore satisfies it.
type Recorder interface {
	RecordDelivery(ctx context.Context, d *store.Delivery) error
}

// Acker is implemented by recorders that also track consumer acknowledgements.
type Acker interface {
	MarkAcked(ctx context.Context, code string, at time.Time) error
}

// Options configures a Relay.
type Options struct {
	Cache     *dedupe.Cache
	Sender    Sender
	Extractor *extract.Extractor // defaults to the built-in code pattern
	Recorder  Recorder           // optional
	Now       func() time.Time   // defaults to time.Now
	Logger    *slog.Logger
}

// Relay connects extraction, the dedup cache and the transport.
type Relay struct {
	cache     *dedupe.Cache
	sender    Sender
	extractor *extract.Extractor
	recorder  Recorder
	now       func() time.Time
	locks     *keyedMutex
	logger    *slog.Logger
}

// New creates a Relay. Cache and Sender are required.
func New(opts Options) (*Relay, error) {
	if opts.Cache == nil {
		return nil, errors.New("relay: cache is required")
	}
	if opts.Sender == nil {
		return nil, errors.New("relay: sender is required")
	}
	if opts.Extractor == nil {
		opts.Extractor = extract.MustNew(extract.DefaultPattern)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Relay{
		cache:     opts.Cache,
		sender:    opts.Sender,
		extractor: opts.Extractor,
		recorder:  opts.Recorder,
		now:       opts.Now,
		locks:     newKeyedMutex(),
		logger:    opts.Logger.With("component", "relay"),
	}, nil
}

// HandleMessage extracts a code from msg and submits it. Messages without a
// code are dropped silently.
func (r *Relay) HandleMessage(ctx context.Context, msg source.Message) {
	code, ok := r.extractor.Extract(msg.Text)
	if !ok {
		return
	}

	r.logger.Info("code detected",
		"code", code,
		"source", msg.Source,
		"channel", msg.Label(),
	)

	// Failures are logged and recorded inside submit; the message is done.
	_, _ = r.submit(ctx, code, r.now(), msg.Source, msg.Label())
}

// Submit forwards code unless it was forwarded within the window ending at
// now. A failed send leaves the cache untouched so the next sighting retries.
func (r *Relay) Submit(ctx context.Context, code string, now time.Time) (Outcome, error) {
	return r.submit(ctx, code, now, "", "")
}

func (r *Relay) submit(ctx context.Context, code string, now time.Time, src, channel string) (Outcome, error) {
	if code == "" {
		return OutcomeFailed, ErrEmptyCode
	}

	unlock := r.locks.Lock(code)
	defer unlock()

	if n := r.cache.Sweep(now); n > 0 {
		r.logger.Debug("expired codes swept", "count", n)
	}

	if !r.cache.ShouldForward(code, now) {
		last, _ := r.cache.LastForwarded(code)
		r.logger.Info("duplicate code suppressed",
			"code", code,
			"forwarded_ago", now.Sub(last).Round(time.Second),
		)
		r.record(ctx, code, src, channel, OutcomeSuppressed, nil, now)
		return OutcomeSuppressed, nil
	}

	if err := r.sender.Send(ctx, protocol.NewCodeMessage(code)); err != nil {
		r.logger.Warn("failed to forward code", "code", code, "error", err)
		r.record(ctx, code, src, channel, OutcomeFailed, err, now)
		return OutcomeFailed, fmt.Errorf("forwarding code %q: %w", code, err)
	}

	r.cache.MarkForwarded(code, now)
	r.logger.Info("code forwarded", "code", code)
	r.record(ctx, code, src, channel, OutcomeForwarded, nil, now)
	return OutcomeForwarded, nil
}

func (r *Relay) record(ctx context.Context, code, src, channel string, outcome Outcome, sendErr error, at time.Time) {
	if r.recorder == nil {
		return
	}

	d := &store.Delivery{
		Code:      code,
		Source:    src,
		Channel:   channel,
		Outcome:   outcome,
		CreatedAt: at,
	}
	if sendErr != nil {
		d.Error = sendErr.Error()
	}

	// Outcomes decided during shutdown are still recorded.
	if err := r.recorder.RecordDelivery(context.WithoutCancel(ctx), d); err != nil {
		r.logger.Warn("failed to record delivery", "code", code, "error", err)
	}
}

// HandleAck passes a consumer acknowledgement to the recorder. It takes the
// code's lock first, so an ack that races ahead of the forward's history row
// waits for it.
func (r *Relay) HandleAck(code string) {
	acker, ok := r.recorder.(Acker)
	if !ok {
		return
	}

	unlock := r.locks.Lock(code)
	defer unlock()

	err := acker.MarkAcked(context.Background(), code, r.now())
	if errors.Is(err, store.ErrNotFound) {
		r.logger.Debug("ack for unknown delivery", "code", code)
		return
	}
	if err != nil {
		r.logger.Warn("failed to record ack", "code", code, "error", err)
	}
}
