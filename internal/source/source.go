// ABOUTME: Inbound event source contract and shared helpers for chat adapters
// ABOUTME: Adapters deliver raw message text plus a channel label to an emit callback

package source

import (
	"context"
	"time"
)

// Message is one inbound chat message handed to the relay pipeline.
type Message struct {
	// Source names the adapter ("matrix", "discord", "stdin").
	Source string
	// ChannelID is the platform identifier of the room or channel.
	ChannelID string
	// ChannelName is a human label for logs; falls back to ChannelID.
	ChannelName string
	// Text is the raw message body.
	Text       string
	ReceivedAt time.Time
}

// Label returns the best human-readable channel name.
func (m Message) Label() string {
	if m.ChannelName != "" {
		return m.ChannelName
	}
	return m.ChannelID
}

// EmitFunc receives messages from a source. It must not block for long;
// the pipeline queues work behind it.
type EmitFunc func(Message)

// Source is an inbound chat adapter.
type Source interface {
	Name() string
	// Run delivers messages to emit until ctx is cancelled or the source
	// fails. Returning nil after cancellation is expected.
	Run(ctx context.Context, emit EmitFunc) error
}

// AllowList is the set of monitored channel identifiers. An empty list
// allows every channel.
type AllowList map[string]struct{}

// NewAllowList builds an AllowList from identifiers.
func NewAllowList(ids []string) AllowList {
	al := make(AllowList, len(ids))
	for _, id := range ids {
		if id != "" {
			al[id] = struct{}{}
		}
	}
	return al
}

// Allowed reports whether id is monitored.
func (al AllowList) Allowed(id string) bool {
	if len(al) == 0 {
		return true
	}
	_, ok := al[id]
	return ok
}
