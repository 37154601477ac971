// ABOUTME: Line-oriented source reading newline-delimited messages from a reader
// ABOUTME: Used for stdin piping and local testing without a chat account

package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"
)

// Lines emits each line of r as a message.
type Lines struct {
	name    string
	channel string
	r       io.Reader
}

// NewLines creates a line source. name labels the source in logs.
func NewLines(name string, r io.Reader) *Lines {
	if name == "" {
		name = "stdin"
	}
	return &Lines{name: name, channel: name, r: r}
}

func (l *Lines) Name() string { return l.name }

// Run reads until EOF or cancellation. EOF ends the source cleanly.
func (l *Lines) Run(ctx context.Context, emit EmitFunc) error {
	lines := make(chan string)
	errCh := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(l.r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errCh <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errCh:
					if err != nil {
						return fmt.Errorf("reading %s: %w", l.name, err)
					}
				default:
				}
				return nil
			}
			if line == "" {
				continue
			}
			emit(Message{
				Source:     l.name,
				ChannelID:  l.channel,
				Text:       line,
				ReceivedAt: time.Now(),
			})
		}
	}
}
