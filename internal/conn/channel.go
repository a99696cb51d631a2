// Package conn wraps a single network stream as a text channel that can be
// polled without blocking.
package conn

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/relaychat/internal/utils"
)

// DefaultReadBufferBytes is the largest chunk handed to a single Read.
const DefaultReadBufferBytes = 2000

var (
	// ErrClosed is returned by operations on a channel that was closed locally.
	ErrClosed = errors.New("channel closed")
	// ErrBroken wraps read failures other than an orderly end of stream.
	ErrBroken = errors.New("stream broken")
)

// Channel is one connection's bidirectional text stream plus its alias.
//
// A background goroutine owns every Read on the stream and appends what it
// gets to a pending buffer; Poll drains that buffer. Poll therefore never
// waits on the network.
type Channel struct {
	id     string
	remote string
	nc     net.Conn
	log    zerolog.Logger

	mu      sync.Mutex
	pending []byte
	readErr error
	closed  bool
	alias   string
	notify  chan<- struct{}

	writeMu sync.Mutex
	done    chan struct{}
}

// New wraps nc and starts its reader. bufSize <= 0 selects DefaultReadBufferBytes.
func New(nc net.Conn, bufSize int, logger *zerolog.Logger) *Channel {
	if bufSize <= 0 {
		bufSize = DefaultReadBufferBytes
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	remote := ""
	if addr := nc.RemoteAddr(); addr != nil {
		remote = addr.String()
	}

	id := utils.NewID()
	c := &Channel{
		id:     id,
		remote: remote,
		nc:     nc,
		log:    logger.With().Str("conn_id", id).Str("remote", remote).Logger(),
		done:   make(chan struct{}),
	}
	go c.readLoop(bufSize)
	return c
}

// ID returns the unique identifier assigned at construction.
func (c *Channel) ID() string { return c.id }

// RemoteAddr returns the peer address as text.
func (c *Channel) RemoteAddr() string { return c.remote }

// Alias returns the alias assigned on admission, or "" before that.
func (c *Channel) Alias() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alias
}

// SetAlias records the alias assigned to this channel.
func (c *Channel) SetAlias(alias string) {
	c.mu.Lock()
	c.alias = alias
	c.mu.Unlock()
}

// Notify binds the readiness signal. Every time text arrives, or the stream
// fails, a value is offered to ch without blocking. Passing nil unbinds.
func (c *Channel) Notify(ch chan<- struct{}) {
	c.mu.Lock()
	c.notify = ch
	hasData := len(c.pending) > 0 || c.readErr != nil
	c.mu.Unlock()

	if hasData {
		signal(ch)
	}
}

// Done is closed once the reader goroutine has exited.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Poll returns the text received since the previous call, trimmed of
// surrounding whitespace. It returns "" when nothing is available.
// After Close it returns ErrClosed; once the peer is gone and the buffer is
// drained it returns io.EOF, or an error wrapping ErrBroken.
func (c *Channel) Poll() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", ErrClosed
	}
	if len(c.pending) > 0 {
		text := strings.TrimSpace(string(c.pending))
		c.pending = c.pending[:0]
		return text, nil
	}
	if c.readErr != nil {
		return "", c.readErr
	}
	return "", nil
}

// Send writes text to the peer at once.
func (c *Channel) Send(text string) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := io.WriteString(c.nc, text); err != nil {
		return fmt.Errorf("send to %s: %w", c.remote, err)
	}
	return nil
}

// Close releases the underlying stream. A second call returns ErrClosed.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.closed = true
	c.pending = nil
	c.mu.Unlock()

	if err := c.nc.Close(); err != nil {
		return fmt.Errorf("close %s: %w", c.remote, err)
	}
	return nil
}

// IsGone reports whether err means the channel can no longer be read.
func IsGone(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, ErrClosed) || errors.Is(err, ErrBroken)
}

// Closed reports whether Close has been called.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Channel) readLoop(bufSize int) {
	defer close(c.done)

	buf := make([]byte, bufSize)
	for {
		n, err := c.nc.Read(buf)

		c.mu.Lock()
		if n > 0 && !c.closed {
			c.pending = append(c.pending, buf[:n]...)
		}
		if err != nil {
			c.readErr = normalizeReadErr(err)
		}
		notify := c.notify
		closed := c.closed
		c.mu.Unlock()

		signal(notify)

		if err != nil {
			if !closed && !errors.Is(err, io.EOF) {
				c.log.Debug().Err(err).Msg("read loop stopped")
			}
			return
		}
	}
}

func normalizeReadErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return io.EOF
	}
	return fmt.Errorf("%w: %w", ErrBroken, err)
}

func signal(ch chan<- struct{}) {
	if ch == nil {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}
