// ABOUTME: Reconnecting WebSocket client that identifies itself and sends codes downstream
// ABOUTME: Owns the single live connection and its Disconnected/Connecting/Identified state

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/Asiandegen/autoclaimer/internal/protocol"
)

const (
	DefaultReconnectDelay = 5 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultWriteTimeout   = 10 * time.Second

	// maxFrameSize bounds inbound frames; the server only sends small JSON objects.
	maxFrameSize = 1 << 20
)

var (
	// ErrConnectFailed covers dial, handshake and identify failures.
	ErrConnectFailed = errors.New("connect failed")
	// ErrConnectionLost is a read error or remote close on an identified session.
	ErrConnectionLost = errors.New("connection lost")
	// ErrNotConnected is returned by Send when the client is not identified.
	ErrNotConnected = errors.New("not connected")
	// ErrSendFailed is returned by Send when the write itself fails.
	ErrSendFailed = errors.New("send failed")
	// ErrMalformedInbound marks server frames that could not be decoded.
	ErrMalformedInbound = protocol.ErrMalformed
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateIdentified
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateIdentified:
		return "identified"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options configures a Client.
type Options struct {
	URL        string
	ClientID   string
	ClientType string

	ReconnectDelay time.Duration
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	// PingInterval enables a client keepalive ping while identified. Zero disables it.
	PingInterval time.Duration

	// OnAck is called for every ack frame received from the server.
	OnAck func(code string)
	// OnStateChange is called after every state transition.
	OnStateChange func(State)

	Logger *slog.Logger
}

// Client maintains at most one live connection to the downstream consumer.
// Run drives connect/identify/read/reconnect; Send may be called from any
// goroutine and never waits for a connection to appear.
type Client struct {
	opts   Options
	logger *slog.Logger

	mu    sync.RWMutex
	state State
	conn  *websocket.Conn

	// writeMu keeps one write in flight on the live connection.
	writeMu sync.Mutex
}

// New creates a Client. Zero durations fall back to the package defaults.
func New(opts Options) *Client {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.ClientType == "" {
		opts.ClientType = protocol.DefaultClientType
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		opts:   opts,
		logger: logger.With("component", "transport"),
		state:  StateDisconnected,
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Run connects, identifies and reads until the connection ends, then waits
// the reconnect delay and tries again. It retries forever and returns nil
// once ctx is cancelled, after closing any live connection.
func (c *Client) Run(ctx context.Context) error {
	c.logger.Info("transport starting", "url", c.opts.URL, "client_id", c.opts.ClientID)

	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			c.logger.Info("transport stopped")
			return nil
		}

		switch {
		case errors.Is(err, ErrConnectFailed):
			c.logger.Error("connection attempt failed",
				"url", c.opts.URL,
				"error", err,
				"retry_in", c.opts.ReconnectDelay,
			)
		default:
			c.logger.Warn("connection closed, reconnecting",
				"error", err,
				"retry_in", c.opts.ReconnectDelay,
			)
		}

		if !sleep(ctx, c.opts.ReconnectDelay) {
			c.logger.Info("transport stopped")
			return nil
		}
	}
}

// session runs one connection from dial to disconnect.
func (c *Client) session(ctx context.Context) error {
	c.logger.Info("attempting connection", "url", c.opts.URL)

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	conn, _, err := websocket.Dial(dialCtx, c.opts.URL, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}
	conn.SetReadLimit(maxFrameSize)

	c.attach(conn)
	defer c.detach(conn)

	if err := c.identify(ctx, conn); err != nil {
		return fmt.Errorf("%w: sending identify: %w", ErrConnectFailed, err)
	}
	if !c.transition(conn, StateIdentified) {
		return fmt.Errorf("%w: dropped during identify", ErrConnectionLost)
	}
	c.logger.Info("connected and identified",
		"client_id", c.opts.ClientID,
		"client_type", c.opts.ClientType,
	)

	if c.opts.PingInterval > 0 {
		pingCtx, stopPing := context.WithCancel(ctx)
		defer stopPing()
		go c.pingLoop(pingCtx, conn)
	}

	return c.readLoop(ctx, conn)
}

func (c *Client) identify(ctx context.Context, conn *websocket.Conn) error {
	data, err := protocol.Encode(protocol.NewIdentify(c.opts.ClientType, c.opts.ClientID))
	if err != nil {
		return err
	}
	return c.write(ctx, conn, data)
}

// readLoop consumes server frames until the connection fails. Steady-state
// reads have no deadline; an idle connection is healthy.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if status := websocket.CloseStatus(err); status != -1 {
				return fmt.Errorf("%w: closed by server (status %d)", ErrConnectionLost, status)
			}
			return fmt.Errorf("%w: %w", ErrConnectionLost, err)
		}
		c.handleInbound(data)
	}
}

// handleInbound never fails the connection; bad frames are logged and skipped.
func (c *Client) handleInbound(data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		c.logger.Warn("ignoring malformed message from server",
			"error", err,
			"preview", protocol.Preview(data, 100),
		)
		return
	}

	switch env.Type {
	case protocol.TypeAck:
		c.logger.Info("server acknowledged code", "code", env.Code)
		if c.opts.OnAck != nil {
			c.opts.OnAck(env.Code)
		}
	case protocol.TypePong:
		c.logger.Debug("received pong")
	default:
		c.logger.Debug("ignoring unrecognized message from server", "type", env.Type)
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	data, err := protocol.Encode(protocol.NewPing())
	if err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.write(ctx, conn, data); err != nil {
				if ctx.Err() == nil {
					c.logger.Warn("keepalive ping failed", "error", err)
					c.detach(conn)
				}
				return
			}
		}
	}
}

// Send writes one message if the client is identified. It returns
// ErrNotConnected without any I/O otherwise. A failed write moves the client
// to Disconnected so Run reconnects; callers retry later, not here.
func (c *Client) Send(ctx context.Context, v any) error {
	c.mu.RLock()
	state, conn := c.state, c.conn
	c.mu.RUnlock()

	if state != StateIdentified || conn == nil {
		return ErrNotConnected
	}

	data, err := protocol.Encode(v)
	if err != nil {
		return err
	}

	if err := c.write(ctx, conn, data); err != nil {
		c.logger.Warn("write failed, dropping connection", "error", err)
		c.detach(conn)
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	return nil
}

func (c *Client) write(ctx context.Context, conn *websocket.Conn, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.opts.WriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

// attach installs a freshly dialed connection in the Connecting state.
func (c *Client) attach(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.state = StateConnecting
	c.mu.Unlock()
	c.notify(StateConnecting)
}

// transition moves to next only if conn is still the live connection.
func (c *Client) transition(conn *websocket.Conn, next State) bool {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return false
	}
	c.state = next
	c.mu.Unlock()
	c.notify(next)
	return true
}

// detach drops conn if it is still live and closes it. Safe to call more
// than once and from Send, the ping loop and the session.
func (c *Client) detach(conn *websocket.Conn) {
	c.mu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
		c.state = StateDisconnected
	}
	c.mu.Unlock()

	_ = conn.CloseNow()
	if current {
		c.notify(StateDisconnected)
	}
}

func (c *Client) notify(s State) {
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(s)
	}
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
