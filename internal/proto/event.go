package proto

import (
	"context"

	"github.com/vovakirdan/relaychat/internal/conn"
)

// Event is one decoded read from a channel.
type Event struct {
	Source   *conn.Channel
	Command  string
	Argument string
}

// NewEvent decodes raw text received on src. Callers filter out empty text.
func NewEvent(src *conn.Channel, raw string) Event {
	cmd, arg := Decode(raw)
	return Event{Source: src, Command: cmd, Argument: arg}
}

// Dispatcher reacts to decoded events. Server and client roles each provide one.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev Event)
}

// DispatcherFunc adapts a plain function to Dispatcher.
type DispatcherFunc func(ctx context.Context, ev Event)

// Dispatch calls f(ctx, ev).
func (f DispatcherFunc) Dispatch(ctx context.Context, ev Event) { f(ctx, ev) }
