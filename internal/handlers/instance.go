package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"wa-sync-service/internal/platform"
	"wa-sync-service/internal/repositories"
)

// StatusFetcher is the instance-status slice of the platform client.
type StatusFetcher interface {
	ConnectionState(ctx context.Context, instance string) (platform.InstanceStatus, error)
	Connect(ctx context.Context, instance string) (platform.PairingInfo, error)
}

// InstanceHandler reports per-instance connection state.
type InstanceHandler struct {
	fetcher   StatusFetcher
	instances repositories.InstanceRepository
}

// NewInstanceHandler builds an InstanceHandler.
func NewInstanceHandler(fetcher StatusFetcher, instances repositories.InstanceRepository) *InstanceHandler {
	return &InstanceHandler{fetcher: fetcher, instances: instances}
}

// Status handles GET /instances/:instance/status. The platform's live state
// is authoritative; the stored record supplies the last-connected timestamp
// even when the platform is unreachable.
func (h *InstanceHandler) Status(c *gin.Context) {
	name := c.Param("instance")

	resp := gin.H{"instance": name}

	stored, err := h.instances.GetInstance(c.Request.Context(), name)
	switch {
	case err == nil:
		resp["stored_state"] = stored.ConnectionState
		if stored.LastConnectedAt != nil {
			resp["last_connected_at"] = stored.LastConnectedAt
		}
	case !errors.Is(err, repositories.ErrInstanceNotFound):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load instance"})
		return
	}

	live, err := h.fetcher.ConnectionState(c.Request.Context(), name)
	if err != nil {
		var httpErr *platform.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown instance"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "platform unreachable"})
		return
	}

	resp["state"] = live.State
	c.JSON(http.StatusOK, resp)
}

// Pair handles POST /instances/:instance/connect and returns the pairing
// payload the platform hands out for linking a device.
func (h *InstanceHandler) Pair(c *gin.Context) {
	name := c.Param("instance")

	info, err := h.fetcher.Connect(c.Request.Context(), name)
	if err != nil {
		var httpErr *platform.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown instance"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "platform unreachable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": info.Code, "qr": info.Base64})
}
