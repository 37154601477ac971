// ABOUTME: Development WebSocket consumer that stands in for the real code claimer
// ABOUTME: Accepts identify, acknowledges new_code frames and answers pings

package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/Asiandegen/autoclaimer/internal/protocol"
)

// Received is one new_code frame observed by the sink.
type Received struct {
	ClientID   string
	ClientType string
	Code       string
	At         time.Time
}

// Options configures a Handler.
type Options struct {
	// OnCode runs for every accepted new_code frame.
	OnCode func(Received)
	Logger *slog.Logger
}

// Handler is an http.Handler speaking the consumer side of the protocol.
type Handler struct {
	onCode func(Received)
	logger *slog.Logger

	mu       sync.Mutex
	conns    map[*websocket.Conn]struct{}
	received []Received
	clients  int
}

// NewHandler creates a sink handler.
func NewHandler(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Handler{
		onCode: opts.OnCode,
		logger: opts.Logger.With("component", "sink"),
		conns:  make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the request and serves one client until it disconnects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.CloseNow()

	h.track(conn)
	defer h.untrack(conn)

	if err := h.serve(r.Context(), conn); err != nil {
		h.logger.Debug("client session ended", "remote", r.RemoteAddr, "error", err)
	}
}

func (h *Handler) serve(ctx context.Context, conn *websocket.Conn) error {
	var clientID, clientType string

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if clientID != "" {
				h.logger.Info("client disconnected", "client_id", clientID)
			}
			return err
		}

		env, err := protocol.Decode(data)
		if err != nil {
			h.logger.Warn("ignoring malformed frame", "error", err, "raw", protocol.Preview(data, 120))
			continue
		}

		switch env.Type {
		case protocol.TypeIdentify:
			clientID, clientType = env.ID, env.ClientType
			h.mu.Lock()
			h.clients++
			h.mu.Unlock()
			h.logger.Info("client identified", "client_id", clientID, "client_type", clientType)

		case protocol.TypeNewCode:
			if clientID == "" {
				_ = conn.Close(websocket.StatusPolicyViolation, "identify first")
				return errors.New("new_code before identify")
			}
			rec := Received{ClientID: clientID, ClientType: clientType, Code: env.Code, At: time.Now()}
			h.record(rec)
			h.logger.Info("code received", "client_id", clientID, "code", env.Code)
			if err := h.reply(ctx, conn, protocol.NewAck(env.Code)); err != nil {
				return err
			}

		case protocol.TypePing:
			if err := h.reply(ctx, conn, protocol.NewPong()); err != nil {
				return err
			}

		default:
			h.logger.Debug("ignoring frame", "type", env.Type)
		}
	}
}

func (h *Handler) reply(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := protocol.Encode(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("writing reply: %w", err)
	}
	return nil
}

func (h *Handler) record(rec Received) {
	h.mu.Lock()
	h.received = append(h.received, rec)
	h.mu.Unlock()
	if h.onCode != nil {
		h.onCode(rec)
	}
}

func (h *Handler) track(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = struct{}{}
}

func (h *Handler) untrack(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, conn)
}

// Received returns every code accepted so far, oldest first.
func (h *Handler) Received() []Received {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Received(nil), h.received...)
}

// Identified returns how many identify frames the sink has accepted.
func (h *Handler) Identified() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clients
}

// DisconnectAll drops every live client with a going-away close frame.
func (h *Handler) DisconnectAll() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	// Close waits for the peer's close frame; do not hold up shutdown on it.
	for _, c := range conns {
		go func(c *websocket.Conn) {
			_ = c.Close(websocket.StatusGoingAway, "sink shutting down")
		}(c)
	}
}

// Server serves a Handler on a TCP address.
type Server struct {
	Handler *Handler

	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a sink server listening on addr.
func NewServer(addr string, opts Options) *Server {
	h := NewHandler(opts)
	return &Server{
		Handler: h,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: h.logger,
	}
}

// Run listens and serves until ctx is cancelled, then shuts down with a
// five second budget.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("sink listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Handler.DisconnectAll()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = fmt.Errorf("shutting down sink: %w", err)
	}
	return serveErr
}
