// ABOUTME: Monitor wires sources, dispatch, relay, dedup cache and transport into one daemon
// ABOUTME: Owns startup order and graceful shutdown of every component

package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/Asiandegen/autoclaimer/internal/config"
	"github.com/Asiandegen/autoclaimer/internal/dedupe"
	"github.com/Asiandegen/autoclaimer/internal/dispatch"
	"github.com/Asiandegen/autoclaimer/internal/extract"
	"github.com/Asiandegen/autoclaimer/internal/relay"
	"github.com/Asiandegen/autoclaimer/internal/source"
	"github.com/Asiandegen/autoclaimer/internal/store"
	"github.com/Asiandegen/autoclaimer/internal/transport"
)

const (
	shutdownTimeout = 5 * time.Second
	pruneInterval   = time.Hour
)

// Option customizes a Monitor.
type Option func(*Monitor)

// WithStdin replaces os.Stdin as the reader for the stdin source.
func WithStdin(r io.Reader) Option {
	return func(m *Monitor) { m.stdin = r }
}

// WithSources adds sources beyond the ones enabled in the config.
func WithSources(sources ...source.Source) Option {
	return func(m *Monitor) { m.sources = append(m.sources, sources...) }
}

// WithStore uses s for delivery history instead of opening history.path.
func WithStore(s store.Store) Option {
	return func(m *Monitor) { m.history = s }
}

// Monitor is the running relay daemon.
type Monitor struct {
	cfg    *config.Config
	logger *slog.Logger

	cache   *dedupe.Cache
	client  *transport.Client
	relay   *relay.Relay
	pool    *dispatch.Pool
	sources []source.Source
	history store.Store // nil when history is disabled
	ready   *readyGate

	stdin    io.Reader
	shutdown sync.Once
}

// New builds every component from cfg. Nothing runs until Run.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Monitor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		cfg:    cfg,
		logger: logger,
		stdin:  os.Stdin,
		ready:  newReadyGate(),
	}
	for _, opt := range opts {
		opt(m)
	}

	extractor, err := extract.New(cfg.Extract.Pattern)
	if err != nil {
		return nil, fmt.Errorf("compiling extract pattern: %w", err)
	}
	overflow, err := dispatch.ParseOverflow(cfg.Dispatch.Overflow)
	if err != nil {
		return nil, err
	}

	if m.history == nil && cfg.History.Enabled {
		s, err := store.NewSQLiteStore(cfg.History.Path, store.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("opening history: %w", err)
		}
		m.history = s
	}

	m.cache = dedupe.New(cfg.Dedupe.Window, cfg.Dedupe.MaxEntries)

	m.client = transport.New(transport.Options{
		URL:            cfg.Server.URL,
		ClientID:       cfg.Server.ClientID,
		ClientType:     cfg.Server.ClientType,
		ReconnectDelay: cfg.Server.ReconnectDelay,
		ConnectTimeout: cfg.Server.ConnectTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		PingInterval:   cfg.Server.PingInterval,
		OnAck:          m.handleAck,
		OnStateChange:  m.handleStateChange,
		Logger:         logger,
	})

	relayOpts := relay.Options{
		Cache:     m.cache,
		Sender:    m.client,
		Extractor: extractor,
		Logger:    logger,
	}
	if m.history != nil {
		relayOpts.Recorder = m.history
	}
	m.relay, err = relay.New(relayOpts)
	if err != nil {
		m.closeComponents()
		return nil, err
	}

	m.pool = dispatch.New(dispatch.Options{
		Workers:      cfg.Dispatch.Workers,
		QueueSize:    cfg.Dispatch.QueueSize,
		Overflow:     overflow,
		DrainTimeout: shutdownTimeout,
		Handler:      m.relay.HandleMessage,
		Logger:       logger,
	})

	configured, err := m.buildSources()
	if err != nil {
		m.closeComponents()
		return nil, err
	}
	m.sources = append(configured, m.sources...)
	if len(m.sources) == 0 {
		m.closeComponents()
		return nil, errors.New("no sources configured")
	}

	return m, nil
}

func (m *Monitor) buildSources() ([]source.Source, error) {
	var sources []source.Source
	sc := m.cfg.Sources

	if sc.Matrix.Enabled {
		mx, err := source.NewMatrix(source.MatrixOptions{
			Homeserver:  sc.Matrix.Homeserver,
			UserID:      sc.Matrix.UserID,
			AccessToken: sc.Matrix.AccessToken,
			Rooms:       sc.Matrix.Rooms,
			Logger:      m.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating matrix source: %w", err)
		}
		sources = append(sources, mx)
	}

	if sc.Discord.Enabled {
		dc, err := source.NewDiscord(source.DiscordOptions{
			Token:    sc.Discord.Token,
			Channels: sc.Discord.Channels,
			Logger:   m.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating discord source: %w", err)
		}
		sources = append(sources, dc)
	}

	if sc.Stdin.Enabled {
		sources = append(sources, source.NewLines("stdin", m.stdin))
	}

	return sources, nil
}

// handleAck runs on the transport's read goroutine for every ack frame.
func (m *Monitor) handleAck(code string) {
	if m.relay != nil {
		m.relay.HandleAck(code)
	}
}

// handleStateChange keeps the ready gate in step with the transport. It reads
// the live state since notifications from different goroutines can reorder.
func (m *Monitor) handleStateChange(transport.State) {
	m.ready.set(m.client.State() == transport.StateIdentified)
}

// awaitTransport waits up to the connect timeout for an identified transport.
func (m *Monitor) awaitTransport(ctx context.Context, reason string) {
	timeout := m.cfg.Server.ConnectTimeout
	if timeout <= 0 {
		timeout = transport.DefaultConnectTimeout
	}
	if m.ready.wait(ctx, timeout) {
		return
	}
	if ctx.Err() == nil {
		m.logger.Warn("transport not identified, continuing",
			"reason", reason,
			"waited", timeout,
			"state", m.client.State(),
		)
	}
}

// State reports the transport connection state.
func (m *Monitor) State() transport.State {
	return m.client.State()
}

// Run starts every component and blocks until ctx is cancelled or every
// source has stopped. Queued messages are relayed before the transport
// closes. Components are released before Run returns.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor starting",
		"server", m.cfg.Server.URL,
		"client_id", m.cfg.Server.ClientID,
		"window", m.cfg.Dedupe.Window,
		"sources", len(m.sources),
		"history", m.history != nil,
	)

	m.cache.StartSweeper(m.cfg.Dedupe.SweepInterval, time.Now)

	// The transport outlives the sources so the pool can drain into it.
	transportCtx, cancelTransport := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelTransport()
	transportDone := make(chan error, 1)
	go func() { transportDone <- m.client.Run(transportCtx) }()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	poolDone := make(chan error, 1)
	go func() { poolDone <- m.pool.Run(runCtx) }()

	if m.history != nil && m.cfg.History.Retention > 0 {
		go m.pruneLoop(runCtx)
	}

	// Sources hold off until the first identify so early codes are not
	// rejected by a transport that is still dialing.
	m.awaitTransport(runCtx, "starting sources")

	sourcesDone, sourceErrs := m.runSources(runCtx)

	select {
	case <-ctx.Done():
		m.logger.Info("shutdown requested")
	case <-sourcesDone:
		m.logger.Info("all sources stopped")
		// Give a reconnecting transport a chance before the queue drains.
		m.awaitTransport(ctx, "draining queue")
	}
	cancelRun()

	select {
	case <-sourcesDone:
	case <-time.After(shutdownTimeout):
		m.logger.Warn("sources did not stop in time")
	}

	if err := <-poolDone; err != nil {
		m.logger.Error("dispatch pool failed", "error", err)
	}

	cancelTransport()
	transportErr := <-transportDone

	m.logger.Info("monitor stopped",
		"processed", m.pool.Processed(),
		"dropped", m.pool.Dropped(),
		"tracked_codes", m.cache.Len(),
	)

	shutdownErr := m.gracefulShutdown()

	return errors.Join(sourceErrs(), transportErr, shutdownErr)
}

// runSources starts each source and returns a channel closed once all of
// them have returned, plus an accessor for their joined errors.
func (m *Monitor) runSources(ctx context.Context) (<-chan struct{}, func() error) {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, src := range m.sources {
		wg.Add(1)
		go func(src source.Source) {
			defer wg.Done()
			m.logger.Info("source starting", "source", src.Name())
			err := src.Run(ctx, m.pool.Emit)
			if err != nil && ctx.Err() == nil {
				m.logger.Error("source failed", "source", src.Name(), "error", err)
				mu.Lock()
				errs = appendCloseError(errs, src.Name(), err)
				mu.Unlock()
				return
			}
			m.logger.Info("source stopped", "source", src.Name())
		}(src)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	return done, func() error {
		mu.Lock()
		defer mu.Unlock()
		return errors.Join(errs...)
	}
}

func (m *Monitor) pruneLoop(ctx context.Context) {
	m.prune(ctx)
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.prune(ctx)
		}
	}
}

func (m *Monitor) prune(ctx context.Context) {
	cutoff := time.Now().Add(-m.cfg.History.Retention)
	n, err := m.history.PruneBefore(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("failed to prune history", "error", err)
		}
		return
	}
	if n > 0 {
		m.logger.Info("pruned history", "deleted", n, "before", cutoff)
	}
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the run context is already canceled.
func (m *Monitor) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return m.Shutdown(ctx)
}

// Shutdown releases the cache sweeper and the history store. It is safe to
// call more than once; only the first call does any work.
func (m *Monitor) Shutdown(_ context.Context) error {
	var errs []error
	m.shutdown.Do(func() {
		m.logger.Info("shutting down monitor")
		m.cache.Close()
		if m.history != nil {
			errs = appendCloseError(errs, "history close", m.history.Close())
		}
	})
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

// closeComponents releases what New opened when construction fails part way.
func (m *Monitor) closeComponents() {
	if m.cache != nil {
		m.cache.Close()
	}
	if m.history != nil {
		_ = m.history.Close()
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}
