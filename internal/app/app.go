package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/relaychat/internal/config"
	"github.com/vovakirdan/relaychat/internal/core"
	rlog "github.com/vovakirdan/relaychat/internal/log"
	"github.com/vovakirdan/relaychat/internal/store"
	"github.com/vovakirdan/relaychat/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/relaychat/internal/transport/http"
)

// App wires together the chat server, its backlog store and the optional
// HTTP surface.
type App struct {
	chat            *core.Server
	status          *stdhttp.Server
	shutdownTimeout time.Duration
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &App{
		shutdownTimeout: cfg.ShutdownTimeout,
		log:             logger,
	}

	var backlog store.MessageStore
	if cfg.HistoryLimit > 0 {
		st, err := sqlite.New()
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		a.store = st
		backlog = st
		logger.Info().Int("history_limit", cfg.HistoryLimit).Msg("in-memory backlog enabled")
	}

	a.chat = core.NewServer(cfg, backlog, logger)
	if cfg.StatusAddr != "" {
		a.status = transporthttp.NewServer(a.chat, cfg, rlog.Component(logger, "http"))
	}
	return a, nil
}

// Chat exposes the chat server, mainly for tests.
func (a *App) Chat() *core.Server {
	return a.chat
}

// Run starts the chat server and the HTTP server, then blocks until context
// cancellation or a fatal error.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	if err := a.chat.Start(ctx); err != nil {
		return fmt.Errorf("start chat server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if a.status != nil {
		g.Go(func() error {
			a.log.Info().Str("addr", a.status.Addr).Msg("starting http server")
			if err := a.status.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown()
	})

	return g.Wait()
}

func (a *App) shutdown() error {
	var errs []error
	if a.status != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.status.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}

	a.log.Info().Msg("stopping chat server")
	if err := a.chat.Stop(); err != nil && !errors.Is(err, core.ErrNotRunning) {
		errs = append(errs, fmt.Errorf("chat shutdown: %w", err))
	}
	return errors.Join(errs...)
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
