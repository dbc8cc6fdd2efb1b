package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

// Healthz reports process liveness, database reachability, and per-instance
// stream connectivity. A disconnected stream degrades the report but does
// not fail it: the webhook path still works.
func Healthz(database *sqlx.DB, senders map[string]MessageSender) gin.HandlerFunc {
	return func(c *gin.Context) {
		streams := map[string]bool{}
		for name, sender := range senders {
			streams[name] = sender.IsConnected()
		}

		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": err.Error(), "streams": streams})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "streams": streams})
	}
}
