package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/relaychat/internal/app"
	"github.com/vovakirdan/relaychat/internal/config"
	"github.com/vovakirdan/relaychat/internal/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		overrides  config.Config
	)

	cmd := &cobra.Command{
		Use:           "relaychat-server",
		Short:         "Run the relaychat text chat server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath, overrides)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "path to config file (created with defaults if missing)")
	flags.StringVar(&overrides.Addr, "addr", "", "chat listen address")
	flags.StringVar(&overrides.StatusAddr, "status-addr", "", "HTTP status and WebSocket gateway address (empty disables it)")
	flags.StringVar(&overrides.LogLevel, "log-level", "", "log level (trace, debug, info, warn, error, disabled)")
	flags.IntVar(&overrides.HistoryLimit, "history", 0, "number of recent messages sent to newcomers (0 disables)")
	flags.IntVar(&overrides.MaxAliasAttempts, "max-alias-attempts", 0, "drop a connection after this many refused aliases (0 is unlimited)")
	flags.DurationVar(&overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")

	return cmd
}

func run(parent context.Context, configPath string, overrides config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootLogger := log.New("info")
	cfg, usedPath, err := config.Load(bootLogger, configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.UpdateFrom(overrides)

	logger := log.New(cfg.LogLevel)
	logger.Info().Str("config", usedPath).Msg("configuration loaded")

	application, err := app.New(cfg, logger)
	if err != nil {
		return err
	}

	logger.Info().Str("addr", cfg.Addr).Msg("starting relaychat server")
	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("server exited with error: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
