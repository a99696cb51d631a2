package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// StatusHandlers serves the read-only monitoring endpoints.
type StatusHandlers struct {
	chat ChatServer
}

// NewStatusHandlers creates a new status handlers instance.
func NewStatusHandlers(chat ChatServer) *StatusHandlers {
	return &StatusHandlers{chat: chat}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Health reports liveness.
// GET /health
func (h *StatusHandlers) Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// Status returns the chat server snapshot.
// GET /api/status
func (h *StatusHandlers) Status(c *gin.Context) {
	st := h.chat.Status()
	if st.Aliases == nil {
		st.Aliases = []string{}
	}
	c.JSON(http.StatusOK, st)
}
