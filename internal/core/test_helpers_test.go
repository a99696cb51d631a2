package core

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/vovakirdan/relaychat/internal/config"
	"github.com/vovakirdan/relaychat/internal/proto"
	"github.com/vovakirdan/relaychat/internal/store"
)

const waitTimeout = 2 * time.Second

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.PollInterval = 5 * time.Millisecond
	return cfg
}

func startServer(t *testing.T, cfg config.Config, st store.MessageStore) *Server {
	t.Helper()

	srv := NewServer(cfg, st, nil)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		if srv.Running() {
			_ = srv.Stop()
		}
	})
	return srv
}

// peer is a raw TCP client speaking the chat protocol.
type peer struct {
	t       *testing.T
	nc      net.Conn
	pending string
}

func dial(t *testing.T, srv *Server) *peer {
	t.Helper()

	nc, err := net.DialTimeout("tcp", srv.Addr().String(), waitTimeout)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = nc.Close() })
	return &peer{t: t, nc: nc}
}

// join dials the server and completes admission under alias.
func join(t *testing.T, srv *Server, alias string) *peer {
	t.Helper()

	p := dial(t, srv)
	p.expect(proto.AliasPrompt)
	p.send(alias)
	p.expect(proto.CmdOK)
	return p
}

func (p *peer) send(text string) {
	p.t.Helper()
	if _, err := io.WriteString(p.nc, text); err != nil {
		p.t.Fatalf("send %q: %v", text, err)
	}
}

// expect reads until want has arrived and returns everything received up to
// and including it.
func (p *peer) expect(want string) string {
	p.t.Helper()

	deadline := time.Now().Add(waitTimeout)
	buf := make([]byte, 4096)
	for !strings.Contains(p.pending, want) {
		_ = p.nc.SetReadDeadline(deadline)
		n, err := p.nc.Read(buf)
		p.pending += string(buf[:n])
		if err != nil && !strings.Contains(p.pending, want) {
			p.t.Fatalf("waiting for %q, got %q: %v", want, p.pending, err)
		}
	}
	end := strings.Index(p.pending, want) + len(want)
	got := p.pending[:end]
	p.pending = p.pending[end:]
	return got
}

// expectEOF reads until the server closes the connection and returns any
// trailing text.
func (p *peer) expectEOF() string {
	p.t.Helper()

	deadline := time.Now().Add(waitTimeout)
	buf := make([]byte, 4096)
	for {
		_ = p.nc.SetReadDeadline(deadline)
		n, err := p.nc.Read(buf)
		p.pending += string(buf[:n])
		if errors.Is(err, io.EOF) {
			rest := p.pending
			p.pending = ""
			return rest
		}
		if err != nil {
			p.t.Fatalf("waiting for EOF, got %q: %v", p.pending, err)
		}
	}
}
