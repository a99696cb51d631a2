package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/vovakirdan/relaychat/internal/config"
	"github.com/vovakirdan/relaychat/internal/core"
	"github.com/vovakirdan/relaychat/internal/proto"
)

func startTestServer(t *testing.T, cfg config.Config) (*httptest.Server, *core.Server) {
	t.Helper()

	cfg.Addr = "127.0.0.1:0"
	cfg.PollInterval = 5 * time.Millisecond

	chat := core.NewServer(cfg, nil, nil)
	if err := chat.Start(context.Background()); err != nil {
		t.Fatalf("start chat server: %v", err)
	}
	t.Cleanup(func() {
		if chat.Running() {
			_ = chat.Stop()
		}
	})

	server := NewServer(chat, cfg, nil)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return ts, chat
}

func readText(ctx context.Context, t *testing.T, conn *websocket.Conn) string {
	t.Helper()

	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != websocket.MessageText {
		t.Fatalf("unexpected message type: %v", typ)
	}
	return string(data)
}

func writeText(ctx context.Context, t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()

	if err := conn.Write(ctx, websocket.MessageText, []byte(text)); err != nil {
		t.Fatalf("write %q: %v", text, err)
	}
}

func dialAs(ctx context.Context, t *testing.T, wsURL, alias string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", alias, err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })

	if got := readText(ctx, t, conn); got != proto.AliasPrompt {
		t.Fatalf("expected alias prompt, got %q", got)
	}
	writeText(ctx, t, conn, alias)
	if got := readText(ctx, t, conn); got != proto.CmdOK {
		t.Fatalf("expected OK for %s, got %q", alias, got)
	}
	return conn
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := startTestServer(t, config.Default())

	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestWebSocketGatewayRelaysMessages(t *testing.T) {
	ts, chat := startTestServer(t, config.Default())
	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := dialAs(ctx, t, wsURL, "alice")
	bob := dialAs(ctx, t, wsURL, "bob")

	writeText(ctx, t, alice, "MSG hi there")
	if got := readText(ctx, t, bob); got != "alice >> hi there" {
		t.Fatalf("unexpected broadcast: %q", got)
	}

	writeText(ctx, t, bob, proto.CmdList)
	if got := readText(ctx, t, bob); got != "LIST alice:bob:" {
		t.Fatalf("unexpected list: %q", got)
	}

	st := chat.Status()
	if st.Validated != 2 {
		t.Fatalf("expected 2 validated, got %d", st.Validated)
	}
}

func TestWebSocketGatewayRefusesDuplicateAlias(t *testing.T) {
	ts, _ := startTestServer(t, config.Default())
	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dialAs(ctx, t, wsURL, "alice")

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	readText(ctx, t, conn)
	writeText(ctx, t, conn, "ALICE")
	if got := readText(ctx, t, conn); got != proto.Refused(core.ErrCodeAliasTaken) {
		t.Fatalf("expected refusal, got %q", got)
	}
}

func TestStatusEndpoint(t *testing.T) {
	ts, _ := startTestServer(t, config.Default())
	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	dialAs(ctx, t, wsURL, "alice")

	resp, err := ts.Client().Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Running   bool     `json:"running"`
		Pending   int      `json:"pending"`
		Validated int      `json:"validated"`
		Aliases   []string `json:"aliases"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !body.Running || body.Validated != 1 || len(body.Aliases) != 1 || body.Aliases[0] != "alice" {
		t.Fatalf("unexpected status: %+v", body)
	}
}

func TestWebSocketGatewayAdmitsWithLimitEnabled(t *testing.T) {
	cfg := config.Default()
	cfg.WSConnectLimit = 5
	ts, chat := startTestServer(t, cfg)
	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dialAs(ctx, t, wsURL, "alice")
	if st := chat.Status(); st.Validated != 1 || st.Pending != 0 {
		t.Fatalf("unexpected status after gateway admission: %+v", st)
	}
}

func TestWebSocketConnectLimit(t *testing.T) {
	cfg := config.Default()
	cfg.WSConnectLimit = 1
	ts, _ := startTestServer(t, cfg)
	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	dialAs(ctx, t, wsURL, "alice")

	_, resp, err := websocket.Dial(ctx, wsURL, nil)
	if err == nil {
		t.Fatal("expected second dial to be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %+v", resp)
	}
}
