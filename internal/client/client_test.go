package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/relaychat/internal/config"
	"github.com/vovakirdan/relaychat/internal/core"
	"github.com/vovakirdan/relaychat/internal/proto"
)

const (
	timeout = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type recorder struct {
	events chan proto.Event
}

func newRecorder() *recorder {
	return &recorder{events: make(chan proto.Event, 64)}
}

func (r *recorder) Present(ev proto.Event) {
	r.events <- ev
}

func (r *recorder) waitFor(t *testing.T, command string) proto.Event {
	t.Helper()

	deadline := time.After(timeout)
	for {
		select {
		case ev := <-r.events:
			if ev.Command == command {
				return ev
			}
		case <-deadline:
			t.Fatalf("event %q not received", command)
			return proto.Event{}
		}
	}
}

func startServer(t *testing.T) *core.Server {
	t.Helper()

	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.PollInterval = tick
	srv := core.NewServer(cfg, nil, nil)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() {
		if srv.Running() {
			_ = srv.Stop()
		}
	})
	return srv
}

func clientConfig(addr string) config.Config {
	cfg := config.Default()
	cfg.ServerAddr = addr
	cfg.PollInterval = tick
	cfg.DialTimeout = time.Second
	return cfg
}

func newClient(t *testing.T, srv *core.Server) (*Client, *recorder) {
	t.Helper()

	rec := newRecorder()
	c := New(clientConfig(srv.Addr().String()), rec, nil)
	t.Cleanup(func() { c.Disconnect() })
	return c, rec
}

func login(t *testing.T, c *Client, rec *recorder, alias string) {
	t.Helper()

	require.True(t, c.Connect(context.Background()))
	rec.waitFor(t, proto.CmdWaitFor)
	require.NoError(t, c.SendAlias(alias))
	rec.waitFor(t, proto.CmdOK)
}

func TestConnectDisconnectIdempotence(t *testing.T) {
	srv := startServer(t)
	c, rec := newClient(t, srv)

	assert.Equal(t, Disconnected, c.State())
	login(t, c, rec, "bob")

	assert.Equal(t, Connected, c.State())
	assert.Equal(t, "bob", c.Alias())
	assert.False(t, c.Connect(context.Background()), "second connect must fail")
	assert.Equal(t, Connected, c.State())

	require.Eventually(t, func() bool {
		return len(srv.Status().Aliases) == 1
	}, timeout, tick)

	assert.True(t, c.Disconnect())
	assert.False(t, c.Disconnect())
	assert.Equal(t, Disconnected, c.State())
	assert.Empty(t, c.Alias())

	require.Eventually(t, func() bool {
		return len(srv.Status().Aliases) == 0
	}, timeout, tick)
}

func TestConnectFailureLeavesDisconnected(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c := New(clientConfig(addr), nil, nil)
	assert.False(t, c.Connect(context.Background()))
	assert.Equal(t, Disconnected, c.State())
	assert.ErrorIs(t, c.Send("LIST"), ErrNotConnected)
	assert.ErrorIs(t, c.SendAlias("bob"), ErrNotConnected)
	assert.Empty(t, c.proposed)
	assert.False(t, c.Disconnect())
}

func TestServerStopEndsSession(t *testing.T) {
	srv := startServer(t)
	c, rec := newClient(t, srv)
	login(t, c, rec, "bob")

	require.NoError(t, srv.Stop())

	rec.waitFor(t, proto.CmdEndAll)
	require.Eventually(t, func() bool {
		return c.State() == Disconnected
	}, timeout, tick)
	assert.False(t, c.Disconnect())
}

func TestMessagesAndList(t *testing.T) {
	srv := startServer(t)
	bob, bobEvents := newClient(t, srv)
	carol, carolEvents := newClient(t, srv)
	login(t, bob, bobEvents, "bob")
	login(t, carol, carolEvents, "carol")

	require.NoError(t, bob.SendMessage("hi carol"))
	ev := carolEvents.waitFor(t, "bob")
	assert.Equal(t, ">> hi carol", ev.Argument)

	require.NoError(t, bob.RequestList())
	ev = bobEvents.waitFor(t, proto.CmdList)
	assert.Equal(t, []string{"bob", "carol"}, proto.SplitList(ev.Argument))
}

func TestRefusedAliasIsNotAdopted(t *testing.T) {
	srv := startServer(t)
	bob, bobEvents := newClient(t, srv)
	login(t, bob, bobEvents, "bob")

	other, rec := newClient(t, srv)
	require.True(t, other.Connect(context.Background()))
	rec.waitFor(t, proto.CmdWaitFor)
	require.NoError(t, other.SendAlias("Bob"))
	rec.waitFor(t, proto.CmdRefused)
	assert.Empty(t, other.Alias())

	require.NoError(t, other.SendAlias("robert"))
	rec.waitFor(t, proto.CmdOK)
	assert.Equal(t, "robert", other.Alias())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "disconnecting", Disconnecting.String())
	assert.Equal(t, "unknown", State(42).String())
}
