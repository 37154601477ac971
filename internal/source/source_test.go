// ABOUTME: Tests for inbound source adapters and channel filtering
// ABOUTME: Exercises adapter handlers directly without network sessions

package source

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

type collector struct {
	mu   sync.Mutex
	msgs []Message
}

func (c *collector) emit(m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
}

func (c *collector) all() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.msgs...)
}

func TestAllowList(t *testing.T) {
	empty := NewAllowList(nil)
	assert.True(t, empty.Allowed("anything"))

	al := NewAllowList([]string{"-1002140237447", "", "-1001768427488"})
	assert.Len(t, al, 2)
	assert.True(t, al.Allowed("-1002140237447"))
	assert.False(t, al.Allowed("-1"))
}

func TestMessage_Label(t *testing.T) {
	assert.Equal(t, "general", Message{ChannelID: "123", ChannelName: "general"}.Label())
	assert.Equal(t, "123", Message{ChannelID: "123"}.Label())
}

func TestLines_Run(t *testing.T) {
	input := "first line\n\ncode: abc\nlast"
	var c collector

	err := NewLines("", strings.NewReader(input)).Run(context.Background(), c.emit)
	require.NoError(t, err)

	msgs := c.all()
	require.Len(t, msgs, 3)
	assert.Equal(t, "stdin", msgs[0].Source)
	assert.Equal(t, "code: abc", msgs[1].Text)
	assert.Equal(t, "last", msgs[2].Text)
}

type blockingReader struct{}

func (blockingReader) Read([]byte) (int, error) {
	select {}
}

func TestLines_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewLines("pipe", blockingReader{}).Run(ctx, func(Message) {})
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("disk on fire")
}

func TestLines_RunReportsReadError(t *testing.T) {
	err := NewLines("file", failingReader{}).Run(context.Background(), func(Message) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
}

func newTestMatrix(t *testing.T, rooms []string) (*Matrix, *collector) {
	t.Helper()
	m, err := NewMatrix(MatrixOptions{
		Homeserver:  "https://matrix.example.org",
		UserID:      "@relay:example.org",
		AccessToken: "token",
		Rooms:       rooms,
	})
	require.NoError(t, err)
	c := &collector{}
	m.emit = c.emit
	m.started = time.Now().Add(-time.Minute)
	return m, c
}

func matrixEvent(sender, room, body string, msgType event.MessageType, ts time.Time) *event.Event {
	return &event.Event{
		Sender:    id.UserID(sender),
		RoomID:    id.RoomID(room),
		Type:      event.EventMessage,
		Timestamp: ts.UnixMilli(),
		Content: event.Content{
			Parsed: &event.MessageEventContent{MsgType: msgType, Body: body},
		},
	}
}

func TestMatrix_HandleEvent(t *testing.T) {
	m, c := newTestMatrix(t, []string{"!watched:example.org"})
	ctx := context.Background()
	now := time.Now()

	m.handleEvent(ctx, matrixEvent("@alice:example.org", "!watched:example.org", "code: abc", event.MsgText, now))
	m.handleEvent(ctx, matrixEvent("@relay:example.org", "!watched:example.org", "code: mine", event.MsgText, now))
	m.handleEvent(ctx, matrixEvent("@alice:example.org", "!other:example.org", "code: other", event.MsgText, now))
	m.handleEvent(ctx, matrixEvent("@alice:example.org", "!watched:example.org", "code: old", event.MsgText, now.Add(-time.Hour)))
	m.handleEvent(ctx, matrixEvent("@alice:example.org", "!watched:example.org", "image.png", event.MsgImage, now))
	m.handleEvent(ctx, matrixEvent("@bot:example.org", "!watched:example.org", "code: notice", event.MsgNotice, now))

	msgs := c.all()
	require.Len(t, msgs, 2)
	assert.Equal(t, "code: abc", msgs[0].Text)
	assert.Equal(t, "matrix", msgs[0].Source)
	assert.Equal(t, "!watched:example.org", msgs[0].ChannelID)
	assert.Equal(t, "code: notice", msgs[1].Text)
}

func TestDiscord_HandleMessageCreate(t *testing.T) {
	d, err := NewDiscord(DiscordOptions{Token: "token", Channels: []string{"111"}})
	require.NoError(t, err)
	c := &collector{}
	d.emit = c.emit

	create := func(channel, content string, bot bool) *discordgo.MessageCreate {
		return &discordgo.MessageCreate{Message: &discordgo.Message{
			ChannelID: channel,
			Content:   content,
			Author:    &discordgo.User{ID: "42", Bot: bot},
		}}
	}

	d.handleMessageCreate(nil, create("111", "code: abc", false))
	d.handleMessageCreate(nil, create("111", "code: bot", true))
	d.handleMessageCreate(nil, create("222", "code: elsewhere", false))
	d.handleMessageCreate(nil, create("111", "", false))

	msgs := c.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, "discord", msgs[0].Source)
	assert.Equal(t, "111", msgs[0].ChannelID)
	assert.Equal(t, "code: abc", msgs[0].Text)
}

func TestNewDiscord_RequiresToken(t *testing.T) {
	_, err := NewDiscord(DiscordOptions{})
	assert.Error(t, err)
}
