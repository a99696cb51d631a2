package http

import (
	"net"
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/relaychat/internal/config"
	"github.com/vovakirdan/relaychat/internal/conn"
	"github.com/vovakirdan/relaychat/internal/core"
)

// ChatServer is the part of core.Server the HTTP surface needs.
type ChatServer interface {
	Attach(nc net.Conn) (*conn.Channel, error)
	Status() core.Status
}

// NewServer builds the status and gateway HTTP server on cfg.StatusAddr.
// The WebSocket gateway hijacks its connection, so it is mounted on the mux
// directly rather than behind gin's response writer.
func NewServer(chat ChatServer, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	status := NewStatusHandlers(chat)
	router.GET("/health", status.Health)
	router.GET("/api/status", status.Status)

	limiter := newRateLimiter(cfg.WSConnectLimit, time.Minute)

	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", RateLimit(limiter, logger, NewWSHandler(chat, logger)))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.StatusAddr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
