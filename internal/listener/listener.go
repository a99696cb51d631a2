// Package listener runs the tick loop that pulls text from a set of channels
// and hands decoded events to a dispatcher.
package listener

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/relaychat/internal/conn"
	"github.com/vovakirdan/relaychat/internal/proto"
)

// DefaultInterval is the fallback tick period when no readiness signal arrives.
const DefaultInterval = 10 * time.Millisecond

// Source supplies the channels to scan on each tick.
type Source interface {
	Channels() []*conn.Channel
}

// Single watches exactly one channel.
type Single struct {
	ch *conn.Channel
}

// NewSingle returns a Source over ch alone.
func NewSingle(ch *conn.Channel) Single { return Single{ch: ch} }

// Channels returns the watched channel.
func (s Single) Channels() []*conn.Channel {
	if s.ch == nil {
		return nil
	}
	return []*conn.Channel{s.ch}
}

// ErrorHandler is told about a channel whose poll failed.
type ErrorHandler func(ch *conn.Channel, err error)

// Listener scans its source, decodes non-empty text and dispatches events
// one at a time.
type Listener struct {
	source     Source
	dispatcher proto.Dispatcher
	interval   time.Duration
	onError    ErrorHandler
	log        *zerolog.Logger
	wake       chan struct{}
}

// Option customises a Listener.
type Option func(*Listener)

// WithInterval sets the tick period.
func WithInterval(d time.Duration) Option {
	return func(l *Listener) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(l *Listener) {
		if logger != nil {
			l.log = logger
		}
	}
}

// WithErrorHandler registers the callback for failed polls.
func WithErrorHandler(h ErrorHandler) Option {
	return func(l *Listener) { l.onError = h }
}

// New builds a listener over source dispatching to d.
func New(source Source, d proto.Dispatcher, opts ...Option) *Listener {
	nop := zerolog.Nop()
	l := &Listener{
		source:     source,
		dispatcher: d,
		interval:   DefaultInterval,
		log:        &nop,
		wake:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Wake returns the readiness channel to bind with conn.Channel.Notify.
func (l *Listener) Wake() chan<- struct{} { return l.wake }

// Run ticks until ctx is cancelled. A dispatch in progress when ctx is
// cancelled runs to completion; no further poll happens after it.
func (l *Listener) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-l.wake:
		}
		l.Tick(ctx)
	}
}

// Tick performs one scan of the source.
func (l *Listener) Tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	for _, ch := range l.source.Channels() {
		text, err := ch.Poll()
		if err != nil {
			if l.onError != nil {
				l.onError(ch, err)
			}
			continue
		}
		if text == "" {
			continue
		}
		l.dispatch(ctx, proto.NewEvent(ch, text))
	}
}

func (l *Listener) dispatch(ctx context.Context, ev proto.Event) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().
				Interface("panic", r).
				Str("conn_id", ev.Source.ID()).
				Str("command", ev.Command).
				Msg("recovered from panic in dispatch")
		}
	}()

	l.dispatcher.Dispatch(ctx, ev)
}
