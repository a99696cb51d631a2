// Package client implements the chat client role: one channel to the server,
// a single-channel listener and the connection state machine.
package client

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/relaychat/internal/config"
	"github.com/vovakirdan/relaychat/internal/conn"
	"github.com/vovakirdan/relaychat/internal/listener"
	"github.com/vovakirdan/relaychat/internal/proto"
)

var ErrNotConnected = errors.New("client not connected")

// Presenter receives every event read from the server.
type Presenter interface {
	Present(ev proto.Event)
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(ev proto.Event)

func (f PresenterFunc) Present(ev proto.Event) { f(ev) }

// Client is a chat client. All methods are safe for concurrent use, but
// Disconnect must not be called from a Presenter.
type Client struct {
	cfg       config.Config
	presenter Presenter
	log       *zerolog.Logger

	mu       sync.Mutex
	state    State
	ch       *conn.Channel
	cancel   context.CancelFunc
	done     chan struct{}
	proposed string
	alias    string
}

// New constructs a disconnected client for cfg.ServerAddr.
func New(cfg config.Config, presenter Presenter, logger *zerolog.Logger) *Client {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if presenter == nil {
		presenter = PresenterFunc(func(proto.Event) {})
	}
	return &Client{
		cfg:       cfg,
		presenter: presenter,
		log:       logger,
	}
}

// Connect dials the server and starts listening. It returns false when the
// client is not disconnected or the dial fails; a failed dial leaves the
// client disconnected.
func (c *Client) Connect(ctx context.Context) bool {
	c.mu.Lock()
	if c.state != Disconnected {
		c.mu.Unlock()
		return false
	}
	c.state = Connecting
	c.mu.Unlock()

	dialer := net.Dialer{Timeout: c.cfg.DialTimeout}
	nc, err := dialer.DialContext(ctx, "tcp", c.cfg.ServerAddr)
	if err != nil {
		c.log.Warn().Err(err).Str("server", c.cfg.ServerAddr).Msg("connect failed")
		c.setState(Disconnected)
		return false
	}

	ch := conn.New(nc, c.cfg.ReadBufferBytes, c.log)
	l := listener.New(listener.NewSingle(ch), clientDispatcher{c: c},
		listener.WithInterval(c.cfg.PollInterval),
		listener.WithLogger(c.log),
		listener.WithErrorHandler(c.onTransportError),
	)
	ch.Notify(l.Wake())

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.ch = ch
	c.cancel = cancel
	c.done = done
	c.state = Connected
	c.mu.Unlock()

	go func() {
		defer close(done)
		_ = l.Run(runCtx)
	}()

	c.log.Info().Str("server", c.cfg.ServerAddr).Msg("connected")
	return true
}

// Disconnect sends exit, stops the listener and closes the channel. It
// returns false when the client is not connected.
func (c *Client) Disconnect() bool {
	c.mu.Lock()
	if c.state != Connected {
		c.mu.Unlock()
		return false
	}
	c.state = Disconnecting
	ch, cancel, done := c.ch, c.cancel, c.done
	c.mu.Unlock()

	if err := ch.Send(proto.CmdExitLower); err != nil {
		c.log.Debug().Err(err).Msg("send exit")
	}
	cancel()
	<-done
	c.release(ch)

	c.log.Info().Msg("disconnected")
	return true
}

// terminate handles a server-initiated end or a broken transport. It runs on
// the listener goroutine and therefore does not wait for it.
func (c *Client) terminate(reason string) {
	c.mu.Lock()
	if c.state != Connected {
		c.mu.Unlock()
		return
	}
	c.state = Disconnecting
	ch, cancel := c.ch, c.cancel
	c.mu.Unlock()

	cancel()
	c.release(ch)

	c.log.Info().Str("reason", reason).Msg("connection ended by server")
}

func (c *Client) release(ch *conn.Channel) {
	if err := ch.Close(); err != nil && !errors.Is(err, conn.ErrClosed) {
		c.log.Debug().Err(err).Msg("close channel")
	}

	c.mu.Lock()
	c.state = Disconnected
	c.ch, c.cancel, c.done = nil, nil, nil
	c.proposed, c.alias = "", ""
	c.mu.Unlock()
}

func (c *Client) onTransportError(_ *conn.Channel, err error) {
	c.log.Warn().Err(err).Msg("transport failed")
	c.terminate("transport")
}

// Send writes a raw command to the server.
func (c *Client) Send(text string) error {
	c.mu.Lock()
	ch := c.ch
	connected := c.state == Connected
	c.mu.Unlock()

	if !connected {
		return ErrNotConnected
	}
	return ch.Send(text)
}

// SendAlias proposes alias in answer to the server's prompt. The alias
// becomes current once the server acknowledges it.
func (c *Client) SendAlias(alias string) error {
	c.mu.Lock()
	if c.state != Connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	ch := c.ch
	c.proposed = alias
	c.mu.Unlock()

	return ch.Send(alias)
}

// SendMessage broadcasts text to the other users.
func (c *Client) SendMessage(text string) error {
	return c.Send(proto.CmdMsg + " " + text)
}

// RequestList asks for the connected aliases.
func (c *Client) RequestList() error {
	return c.Send(proto.CmdList)
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Alias returns the alias accepted by the server, or "" before admission.
func (c *Client) Alias() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alias
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) acceptAlias() {
	c.mu.Lock()
	c.alias = c.proposed
	c.mu.Unlock()
}

type clientDispatcher struct {
	c *Client
}

func (d clientDispatcher) Dispatch(_ context.Context, ev proto.Event) {
	c := d.c
	c.log.Debug().Str("cmd", ev.Command).Msg("received")

	switch ev.Command {
	case proto.CmdOK, proto.CmdHist:
		c.acceptAlias()
	case proto.CmdEnd, proto.CmdEndAll:
		c.presenter.Present(ev)
		c.terminate(ev.Command)
		return
	}
	c.presenter.Present(ev)
}
