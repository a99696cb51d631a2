package http

import (
	"context"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
)

// WSHandler upgrades HTTP connections and hands them to the chat server as
// ordinary text streams. Each WebSocket text message is one chunk of text.
type WSHandler struct {
	chat ChatServer
	log  *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(chat ChatServer, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{chat: chat, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}

	// The net.Conn adapter is bound to ctx, which must outlive the handler's
	// use of it, so the handler blocks until the channel is finished.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	nc := websocket.NetConn(ctx, ws, websocket.MessageText)
	ch, err := h.chat.Attach(nc)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws gateway refused connection")
		return
	}

	h.log.Debug().Str("conn_id", ch.ID()).Msg("ws gateway attached")
	select {
	case <-ch.Done():
	case <-ctx.Done():
		_ = ch.Close()
	}
	h.log.Debug().Str("conn_id", ch.ID()).Msg("ws gateway detached")
}
