package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MessageSender is the outbound slice of a live stream connection.
type MessageSender interface {
	SendMessage(to, body string, options map[string]string) error
	IsConnected() bool
}

// MessageHandler sends outbound messages over the live connections.
type MessageHandler struct {
	senders map[string]MessageSender
}

// NewMessageHandler builds a MessageHandler over the configured instances.
func NewMessageHandler(senders map[string]MessageSender) *MessageHandler {
	return &MessageHandler{senders: senders}
}

// Send handles POST /messages/send. The send is fire and forget: delivery
// progress arrives later as platform events, so success here only means the
// frame left the process.
func (h *MessageHandler) Send(c *gin.Context) {
	var req struct {
		Instance string            `json:"instance" binding:"required"`
		To       string            `json:"to" binding:"required"`
		Body     string            `json:"body" binding:"required"`
		Options  map[string]string `json:"options"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sender, ok := h.senders[req.Instance]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown instance"})
		return
	}
	if !sender.IsConnected() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "instance is not connected"})
		return
	}

	if err := sender.SendMessage(req.To, req.Body, req.Options); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "send failed"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}
