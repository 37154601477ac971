// ABOUTME: Discord event source built on a discordgo gateway session
// ABOUTME: Emits non-bot messages from monitored channels

package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
)

// DiscordOptions configures the Discord source.
type DiscordOptions struct {
	Token    string
	Channels []string
	Logger   *slog.Logger
}

// Discord watches guild and direct-message channels for new messages.
type Discord struct {
	session  *discordgo.Session
	channels AllowList
	logger   *slog.Logger
	emit     EmitFunc
}

// NewDiscord creates a Discord source for a bot token.
func NewDiscord(opts DiscordOptions) (*Discord, error) {
	if opts.Token == "" {
		return nil, fmt.Errorf("discord bot token not configured")
	}
	session, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Discord{
		session:  session,
		channels: NewAllowList(opts.Channels),
		logger:   logger.With("component", "source", "source", "discord"),
	}, nil
}

func (d *Discord) Name() string { return "discord" }

// Run opens the gateway session and blocks until ctx is cancelled.
// discordgo reconnects the gateway on its own.
func (d *Discord) Run(ctx context.Context, emit EmitFunc) error {
	d.emit = emit
	remove := d.session.AddHandler(d.handleMessageCreate)
	defer remove()

	if err := d.session.Open(); err != nil {
		return fmt.Errorf("opening discord session: %w", err)
	}
	d.logger.Info("discord session open", "channels", len(d.channels))

	<-ctx.Done()

	if err := d.session.Close(); err != nil {
		d.logger.Warn("closing discord session", "error", err)
	}
	return nil
}

func (d *Discord) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if !d.channels.Allowed(m.ChannelID) {
		return
	}
	if m.Content == "" {
		return
	}

	d.emit(Message{
		Source:      d.Name(),
		ChannelID:   m.ChannelID,
		ChannelName: channelName(s, m.ChannelID),
		Text:        m.Content,
		ReceivedAt:  time.Now(),
	})
}

// channelName looks the channel up in the session state cache.
func channelName(s *discordgo.Session, channelID string) string {
	if s == nil || s.State == nil {
		return ""
	}
	ch, err := s.State.Channel(channelID)
	if err != nil || ch == nil {
		return ""
	}
	return ch.Name
}
