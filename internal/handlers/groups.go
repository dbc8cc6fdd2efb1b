package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// GroupRefresher runs a bulk group reconciliation.
type GroupRefresher interface {
	ReconcileAll(ctx context.Context, instance string, groupJIDs []string) (updated, total int)
}

// GroupHandler exposes operator-initiated group refresh.
type GroupHandler struct {
	refresher GroupRefresher
}

// NewGroupHandler builds a GroupHandler.
func NewGroupHandler(refresher GroupRefresher) *GroupHandler {
	return &GroupHandler{refresher: refresher}
}

// Refresh handles POST /groups/refresh. With no group list the whole
// instance is refreshed.
func (h *GroupHandler) Refresh(c *gin.Context) {
	var req struct {
		Instance string   `json:"instance" binding:"required"`
		Groups   []string `json:"groups"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, total := h.refresher.ReconcileAll(c.Request.Context(), req.Instance, req.Groups)
	c.JSON(http.StatusOK, gin.H{"updated": updated, "total": total})
}
