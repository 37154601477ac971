// ABOUTME: Tests for the development sink's protocol handling and server lifecycle
// ABOUTME: Drives the sink with raw WebSocket frames from the test

package sink

import (
	"context"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Asiandegen/autoclaimer/internal/protocol"
)

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := protocol.Encode(v)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func readEnvelope(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	env, err := protocol.Decode(data)
	require.NoError(t, err)
	return env
}

func newTestSink(t *testing.T, opts Options) (*Handler, string) {
	t.Helper()
	h := NewHandler(opts)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestHandler_AcksNewCode(t *testing.T) {
	seen := make(chan Received, 1)
	h, url := newTestSink(t, Options{OnCode: func(r Received) { seen <- r }})
	conn := dial(t, url)

	send(t, conn, protocol.NewIdentify("", "monitor-1"))
	send(t, conn, protocol.NewCodeMessage("abc-123"))

	env := readEnvelope(t, conn)
	assert.Equal(t, protocol.TypeAck, env.Type)
	assert.Equal(t, "abc-123", env.Code)

	got := h.Received()
	require.Len(t, got, 1)
	assert.Equal(t, "monitor-1", got[0].ClientID)
	assert.Equal(t, protocol.DefaultClientType, got[0].ClientType)
	assert.Equal(t, "abc-123", got[0].Code)
	assert.Equal(t, "abc-123", (<-seen).Code)
	assert.Equal(t, 1, h.Identified())
}

func TestHandler_AnswersPing(t *testing.T) {
	_, url := newTestSink(t, Options{})
	conn := dial(t, url)

	send(t, conn, protocol.NewIdentify("", "monitor-1"))
	send(t, conn, protocol.NewPing())

	assert.Equal(t, protocol.TypePong, readEnvelope(t, conn).Type)
}

func TestHandler_IgnoresMalformedFrames(t *testing.T) {
	h, url := newTestSink(t, Options{})
	conn := dial(t, url)

	ctx := context.Background()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("not json")))
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"no":"type"}`)))
	send(t, conn, protocol.NewIdentify("", "monitor-1"))
	send(t, conn, protocol.NewCodeMessage("still-works"))

	assert.Equal(t, "still-works", readEnvelope(t, conn).Code)
	assert.Len(t, h.Received(), 1)
}

func TestHandler_RejectsCodeBeforeIdentify(t *testing.T) {
	h, url := newTestSink(t, Options{})
	conn := dial(t, url)

	send(t, conn, protocol.NewCodeMessage("sneaky"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
	assert.Empty(t, h.Received())
}

func TestServer_ServeAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := NewServer(ln.Addr().String(), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	conn := dial(t, "ws://"+ln.Addr().String()+"/")
	send(t, conn, protocol.NewIdentify("", "monitor-1"))
	send(t, conn, protocol.NewCodeMessage("abc"))
	assert.Equal(t, protocol.TypeAck, readEnvelope(t, conn).Type)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("sink did not shut down")
	}

	readCtx, readCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer readCancel()
	_, _, err = conn.Read(readCtx)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}
