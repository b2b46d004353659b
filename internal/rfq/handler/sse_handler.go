package handler

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-rfq/internal/rfq/sse"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/viewstate"
	"github.com/gin-gonic/gin"
)

const heartbeatInterval = 30 * time.Second

// SSEHandler streams view changes and toasts
type SSEHandler struct {
	hub   *sse.Hub
	store *viewstate.Store
}

func NewSSEHandler(hub *sse.Hub, store *viewstate.Store) *SSEHandler {
	return &SSEHandler{hub: hub, store: store}
}

// Stream handles the SSE endpoint
// GET /api/v1/rfq/sse/events?token=xxx
func (h *SSEHandler) Stream(c *gin.Context) {
	client, unsubscribe := h.hub.Subscribe(GetUserID(c))
	defer unsubscribe()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	// A new subscriber starts from the current view.
	snapshot, _ := json.Marshal(h.store.List())
	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"client_id\":%q}\n\n", client.ID)
	fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", sse.EventQuoteList, snapshot)
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case event, ok := <-client.Events:
			if !ok {
				return
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event.EventType, event.Data)
			c.Writer.Flush()
		case <-heartbeat.C:
			c.Writer.WriteString(": keepalive\n\n")
			c.Writer.Flush()
		}
	}
}
