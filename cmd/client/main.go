package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/relaychat/internal/client"
	"github.com/vovakirdan/relaychat/internal/config"
	"github.com/vovakirdan/relaychat/internal/log"
	"github.com/vovakirdan/relaychat/internal/proto"
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
		alias      string
		overrides  config.Config
	)

	cmd := &cobra.Command{
		Use:           "relaychat-client",
		Short:         "Connect to a relaychat server from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath, alias, overrides)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "path to config file (created with defaults if missing)")
	flags.StringVar(&overrides.ServerAddr, "server", "", "chat server address")
	flags.StringVar(&alias, "alias", "", "alias to request on connect (prompted when empty)")
	flags.StringVar(&overrides.LogLevel, "log-level", "", "log level for stderr diagnostics")
	flags.DurationVar(&overrides.DialTimeout, "dial-timeout", 0, "connect timeout")

	return cmd
}

// terminal prints server events and tracks whether the next input line is
// an alias answer.
type terminal struct {
	out io.Writer

	mu          sync.Mutex
	c           *client.Client
	alias       string
	askingAlias bool
	ended       chan struct{}
	endOnce     sync.Once
}

func (t *terminal) Present(ev proto.Event) {
	switch ev.Command {
	case proto.CmdWaitFor:
		t.mu.Lock()
		alias := t.alias
		t.alias = ""
		t.askingAlias = alias == ""
		t.mu.Unlock()
		if alias != "" {
			_ = t.c.SendAlias(alias)
			return
		}
		fmt.Fprintln(t.out, "Choose an alias:")
	case proto.CmdOK:
		fmt.Fprintf(t.out, "Joined as %s. Type /list, /quit or a message.\n", t.c.Alias())
	case proto.CmdHist:
		fmt.Fprintf(t.out, "Joined as %s. Recent messages:\n%s\n", t.c.Alias(), ev.Argument)
	case proto.CmdRefused:
		t.mu.Lock()
		t.askingAlias = true
		t.mu.Unlock()
		fmt.Fprintf(t.out, "Alias refused (%s). Choose another:\n", ev.Argument)
	case proto.CmdList:
		fmt.Fprintf(t.out, "Connected: %s\n", strings.Join(proto.SplitList(ev.Argument), ", "))
	case proto.CmdEnd, proto.CmdEndAll:
		fmt.Fprintln(t.out, "Session closed by server.")
		t.endOnce.Do(func() { close(t.ended) })
	default:
		if ev.Argument == "" {
			fmt.Fprintln(t.out, ev.Command)
			return
		}
		fmt.Fprintf(t.out, "%s %s\n", ev.Command, ev.Argument)
	}
}

// handle interprets one line of user input.
func (t *terminal) handle(line string) (quit bool, err error) {
	t.mu.Lock()
	asking := t.askingAlias
	t.askingAlias = false
	t.mu.Unlock()

	switch {
	case asking:
		return false, t.c.SendAlias(line)
	case line == "/quit":
		return true, nil
	case line == "/list":
		return false, t.c.RequestList()
	case strings.HasPrefix(line, "/raw "):
		return false, t.c.Send(strings.TrimPrefix(line, "/raw "))
	default:
		return false, t.c.SendMessage(line)
	}
}

func run(parent context.Context, configPath, alias string, overrides config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootLogger := log.NewWithWriter(os.Stderr, "warn")
	cfg, _, err := config.Load(bootLogger, configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.UpdateFrom(overrides)
	logger := log.NewWithWriter(os.Stderr, cfg.LogLevel)

	term := &terminal{out: os.Stdout, alias: alias, ended: make(chan struct{})}
	term.c = client.New(cfg, term, logger)

	if !term.c.Connect(ctx) {
		return fmt.Errorf("could not connect to %s", cfg.ServerAddr)
	}
	defer term.c.Disconnect()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-term.ended:
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if line == "" {
				continue
			}
			quit, err := term.handle(line)
			if errors.Is(err, client.ErrNotConnected) {
				return nil
			}
			if err != nil {
				logger.Warn().Err(err).Msg("send failed")
			}
			if quit {
				return nil
			}
		}
	}
}
