// ABOUTME: Matrix event source built on mautrix sync
// ABOUTME: Emits text messages from monitored rooms, skipping our own and pre-start events

package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// MatrixOptions configures the Matrix source.
type MatrixOptions struct {
	Homeserver  string
	UserID      string
	AccessToken string
	Rooms       []string
	Logger      *slog.Logger
}

// Matrix watches joined rooms for new text messages.
type Matrix struct {
	client  *mautrix.Client
	userID  id.UserID
	rooms   AllowList
	logger  *slog.Logger
	started time.Time
	emit    EmitFunc
}

// NewMatrix creates a Matrix source. Credentials are used as given; logging
// in is outside the relay's concerns.
func NewMatrix(opts MatrixOptions) (*Matrix, error) {
	client, err := mautrix.NewClient(opts.Homeserver, id.UserID(opts.UserID), opts.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Matrix{
		client: client,
		userID: id.UserID(opts.UserID),
		rooms:  NewAllowList(opts.Rooms),
		logger: logger.With("component", "source", "source", "matrix"),
	}, nil
}

func (m *Matrix) Name() string { return "matrix" }

// Run syncs until ctx is cancelled.
func (m *Matrix) Run(ctx context.Context, emit EmitFunc) error {
	syncer, ok := m.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", m.client.Syncer)
	}

	m.emit = emit
	m.started = time.Now()
	syncer.OnEventType(event.EventMessage, m.handleEvent)

	m.logger.Info("syncing matrix rooms", "homeserver", m.client.HomeserverURL.String(), "rooms", len(m.rooms))

	if err := m.client.SyncWithContext(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("matrix sync failed: %w", err)
	}
	return nil
}

// handleEvent filters a sync event down to a monitored text message.
func (m *Matrix) handleEvent(_ context.Context, evt *event.Event) {
	if evt.Sender == m.userID {
		return
	}
	// Initial sync replays history; backfill is not relayed.
	if time.UnixMilli(evt.Timestamp).Before(m.started) {
		return
	}

	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok {
		return
	}
	if content.MsgType != event.MsgText && content.MsgType != event.MsgNotice {
		return
	}

	roomID := evt.RoomID.String()
	if !m.rooms.Allowed(roomID) {
		m.logger.Debug("ignoring message from unmonitored room", "room", roomID)
		return
	}
	if content.Body == "" {
		return
	}

	m.logger.Debug("received message", "room", roomID, "sender", evt.Sender.String())
	m.emit(Message{
		Source:     m.Name(),
		ChannelID:  roomID,
		Text:       content.Body,
		ReceivedAt: time.UnixMilli(evt.Timestamp),
	})
}
