package routing

import (
	"taskops/internal/httpx"
	"taskops/internal/taskrouter"

	"github.com/gin-gonic/gin"
)

// Handler serves queue routing inspection endpoints
type Handler struct {
	router *taskrouter.Router
}

// NewHandler creates a routing API handler
func NewHandler(router *taskrouter.Router) *Handler {
	return &Handler{router: router}
}

// Preview returns the routing target a task name would resolve to
// GET /api/v1/routing/preview?task=pfsense.tasks.sync_dhcp_routes
func (h *Handler) Preview(c *gin.Context) {
	taskName := c.Query("task")
	if taskName == "" {
		httpx.FailErr(c, httpx.ErrParamMissing("task is required"))
		return
	}

	target := h.router.Route(taskName)
	if target == nil {
		httpx.OK(c, gin.H{
			"task":    taskName,
			"queue":   h.router.DefaultQueue(),
			"default": true,
		})
		return
	}

	httpx.OK(c, gin.H{
		"task":    taskName,
		"target":  target,
		"default": false,
	})
}

// Queues returns all configured routing targets
// GET /api/v1/routing/queues
func (h *Handler) Queues(c *gin.Context) {
	httpx.OK(c, gin.H{
		"queues":        h.router.Queues(),
		"default_queue": h.router.DefaultQueue(),
	})
}
