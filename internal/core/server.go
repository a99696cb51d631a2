package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/relaychat/internal/config"
	"github.com/vovakirdan/relaychat/internal/conn"
	"github.com/vovakirdan/relaychat/internal/listener"
	rlog "github.com/vovakirdan/relaychat/internal/log"
	"github.com/vovakirdan/relaychat/internal/proto"
	"github.com/vovakirdan/relaychat/internal/registry"
	"github.com/vovakirdan/relaychat/internal/store"
)

type serverState int

const (
	stateStopped serverState = iota
	stateRunning
	stateStopping
)

// Server is the chat server role. It owns the listening endpoint, the
// connection registry and the three background tasks: acceptor, admission
// and text listener.
type Server struct {
	cfg   config.Config
	reg   *registry.Registry
	store store.MessageStore
	log   *zerolog.Logger

	// lifeMu serialises Start and Stop; mu guards the fields below it.
	lifeMu sync.Mutex

	mu       sync.Mutex
	state    serverState
	ln       net.Listener
	cancel   context.CancelFunc
	group    *errgroup.Group
	pipeline *registry.Pipeline
}

// Status is a point-in-time view of the server.
type Status struct {
	Running   bool     `json:"running"`
	Addr      string   `json:"addr,omitempty"`
	Pending   int      `json:"pending"`
	Validated int      `json:"validated"`
	Aliases   []string `json:"aliases"`
}

// NewServer constructs a stopped server. st may be nil, which disables the
// backlog regardless of cfg.HistoryLimit.
func NewServer(cfg config.Config, st store.MessageStore, logger *zerolog.Logger) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Server{
		cfg:   cfg,
		reg:   registry.New(),
		store: st,
		log:   logger,
	}
}

// Start binds cfg.Addr and starts serving in the background.
func (s *Server) Start(ctx context.Context) error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	if s.Running() {
		return ErrAlreadyRunning
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.serve(ctx, ln)
	return nil
}

// Serve starts serving on an already bound listener. The server takes
// ownership of ln and closes it on Stop.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	if s.Running() {
		return ErrAlreadyRunning
	}
	s.serve(ctx, ln)
	return nil
}

func (s *Server) serve(ctx context.Context, ln net.Listener) {
	runCtx, cancel := context.WithCancel(ctx)

	text := listener.New(s.reg, serverDispatcher{s: s},
		listener.WithInterval(s.cfg.PollInterval),
		listener.WithLogger(rlog.Component(s.log, "listener")),
		listener.WithErrorHandler(s.onChannelGone),
	)
	pipeline := registry.NewPipeline(s.reg, AliasValidator{},
		registry.WithInterval(s.cfg.PollInterval),
		registry.WithMaxAttempts(s.cfg.MaxAliasAttempts),
		registry.WithLogger(rlog.Component(s.log, "admission")),
		registry.WithHooks(registry.Hooks{
			Greeting: func(*conn.Channel) string { return s.greeting(runCtx) },
			Admitted: func(ch *conn.Channel) { s.onAdmitted(ch, text) },
			Rejected: s.onRejected,
		}),
	)

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return s.acceptLoop(gctx, ln) })
	g.Go(func() error { return pipeline.Run(gctx) })
	g.Go(func() error { return text.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			return fmt.Errorf("close listener: %w", err)
		}
		return nil
	})

	s.mu.Lock()
	s.state = stateRunning
	s.ln = ln
	s.cancel = cancel
	s.group = g
	s.pipeline = pipeline
	s.mu.Unlock()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("chat server started")
}

// Stop cancels every task, sends END. to each validated connection and
// closes all connections. It returns ErrNotRunning if the server is stopped.
func (s *Server) Stop() error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	s.mu.Lock()
	if s.state != stateRunning {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.state = stateStopping
	cancel, g := s.cancel, s.group
	s.mu.Unlock()

	cancel()
	err := g.Wait()

	pending, validated := s.reg.Drain()
	for _, ch := range validated {
		if sendErr := ch.Send(proto.CmdEndAll); sendErr != nil {
			s.log.Debug().Err(sendErr).Str("conn_id", ch.ID()).Msg("send END. failed")
		}
		closeQuietly(ch, s.log)
	}
	for _, ch := range pending {
		closeQuietly(ch, s.log)
	}

	s.mu.Lock()
	s.state = stateStopped
	s.ln, s.cancel, s.group, s.pipeline = nil, nil, nil, nil
	s.mu.Unlock()

	s.log.Info().
		Int("closed_validated", len(validated)).
		Int("closed_pending", len(pending)).
		Msg("chat server stopped")
	return err
}

// Running reports whether the server has been started and not fully stopped.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != stateStopped
}

// Addr returns the bound address, or nil when stopped.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Status returns a snapshot for monitoring.
func (s *Server) Status() Status {
	st := Status{Running: s.Running(), Aliases: s.reg.Aliases()}
	if addr := s.Addr(); addr != nil {
		st.Addr = addr.String()
	}
	st.Pending, st.Validated = s.reg.Counts()
	return st
}

// Attach wraps an accepted transport connection, prompts it for an alias
// and queues it for admission. Other transports use it to join the same
// registry as TCP clients.
func (s *Server) Attach(nc net.Conn) (*conn.Channel, error) {
	s.mu.Lock()
	if s.state != stateRunning {
		s.mu.Unlock()
		_ = nc.Close()
		return nil, ErrNotRunning
	}
	ch := conn.New(nc, s.cfg.ReadBufferBytes, s.log)
	s.reg.Enqueue(ch)
	ch.Notify(s.pipeline.Wake())
	s.mu.Unlock()

	s.log.Info().Str("conn_id", ch.ID()).Str("remote", ch.RemoteAddr()).Msg("new connection")
	s.reply(ch, proto.AliasPrompt)
	return ch, nil
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn().Err(err).Msg("accept failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(s.cfg.PollInterval):
			}
			continue
		}
		if _, err := s.Attach(nc); err != nil {
			s.log.Debug().Err(err).Msg("connection refused during shutdown")
		}
	}
}

// greeting is OK, or HIST with the backlog when there is one.
func (s *Server) greeting(ctx context.Context) string {
	if lines := s.backlog(ctx); len(lines) > 0 {
		return proto.Hist(lines)
	}
	return proto.CmdOK
}

func (s *Server) onAdmitted(ch *conn.Channel, text *listener.Listener) {
	ch.Notify(text.Wake())
	s.log.Info().Str("conn_id", ch.ID()).Str("alias", ch.Alias()).Msg("user arrived")
}

func (s *Server) onRejected(ch *conn.Channel, err error, final bool) {
	s.log.Info().
		Str("conn_id", ch.ID()).
		Str("reason", refusalCode(err)).
		Bool("final", final).
		Msg("alias refused")
	s.reply(ch, proto.Refused(refusalCode(err)))
}

// onChannelGone handles a validated channel whose transport failed.
func (s *Server) onChannelGone(ch *conn.Channel, err error) {
	if !s.reg.Remove(ch) {
		return
	}
	closeQuietly(ch, s.log)
	s.log.Info().Err(err).Str("conn_id", ch.ID()).Str("alias", ch.Alias()).Msg("user disconnected")
}

func (s *Server) reply(ch *conn.Channel, text string) {
	if err := ch.Send(text); err != nil {
		s.log.Warn().Err(err).Str("conn_id", ch.ID()).Msg("send failed")
	}
}

func closeQuietly(ch *conn.Channel, logger *zerolog.Logger) {
	if err := ch.Close(); err != nil && !errors.Is(err, conn.ErrClosed) {
		logger.Debug().Err(err).Str("conn_id", ch.ID()).Msg("close failed")
	}
}
