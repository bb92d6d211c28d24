package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/heyitswither/rwci/internal/core"
)

// StatusHandlers serves read-only views of a chat session.
type StatusHandlers struct {
	src StatusSource
}

// SessionResponse is the body of GET /session.
type SessionResponse struct {
	ID    string `json:"id"`
	State string `json:"state"`
	core.Snapshot
}

// MessageResponse is one transcript entry.
type MessageResponse struct {
	Direct     bool      `json:"direct"`
	Content    string    `json:"content"`
	Author     string    `json:"author,omitempty"`
	Channel    string    `json:"channel,omitempty"`
	Recipient  string    `json:"recipient,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Health reports liveness. It answers 503 once the session has closed.
// GET /health
func (h *StatusHandlers) Health(c *gin.Context) {
	if h.src.State() == core.StateClosed {
		c.String(http.StatusServiceUnavailable, "closed")
		return
	}
	c.String(http.StatusOK, "ok")
}

// Session returns the cached server view.
// GET /session
func (h *StatusHandlers) Session(c *gin.Context) {
	c.JSON(http.StatusOK, SessionResponse{
		ID:       h.src.ID(),
		State:    h.src.State().String(),
		Snapshot: h.src.Session().Snapshot(),
	})
}

// Messages returns the transcript, newest last. ?limit=N keeps the last N.
// GET /session/messages
func (h *StatusHandlers) Messages(c *gin.Context) {
	transcript := h.src.Session().Transcript()

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		if limit < len(transcript) {
			transcript = transcript[len(transcript)-limit:]
		}
	}

	out := make([]MessageResponse, 0, len(transcript))
	for _, m := range transcript {
		out = append(out, MessageResponse{
			Direct:     m.Direct,
			Content:    m.Content,
			Author:     m.Author,
			Channel:    m.Channel,
			Recipient:  m.Recipient,
			ReceivedAt: m.ReceivedAt,
		})
	}
	c.JSON(http.StatusOK, out)
}
