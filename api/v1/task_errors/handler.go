package task_errors

import (
	"strconv"
	"time"

	"taskops/internal/auth"
	"taskops/internal/httpx"
	"taskops/internal/model"
	"taskops/internal/taskerr"
	"taskops/internal/ws"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handler serves task error endpoints
type Handler struct {
	db    *gorm.DB
	store *taskerr.Store
}

// NewHandler creates a task error API handler
func NewHandler(db *gorm.DB, store *taskerr.Store) *Handler {
	return &Handler{db: db, store: store}
}

// List returns a task's errors, optionally filtered by status
// GET /api/v1/tasks/:id/errors
func (h *Handler) List(c *gin.Context) {
	taskID, ok := taskIDParam(c)
	if !ok {
		return
	}

	status := model.TaskErrorStatus(c.Query("status"))
	switch status {
	case "", model.TaskErrorStatusNew, model.TaskErrorStatusOngoing,
		model.TaskErrorStatusRegressed, model.TaskErrorStatusCleared:
	default:
		httpx.FailErr(c, httpx.ErrParamInvalid("unknown status"))
		return
	}

	page, pageSize := pagination(c)
	records, total, err := h.store.List(taskID, status, page, pageSize)
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to list errors", err))
		return
	}

	httpx.OKItems(c, records, total, page, pageSize)
}

// Active returns a task's non-cleared errors
// GET /api/v1/tasks/:id/errors/active
func (h *Handler) Active(c *gin.Context) {
	taskID, ok := taskIDParam(c)
	if !ok {
		return
	}

	records, err := h.store.ActiveErrors(taskID)
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to list active errors", err))
		return
	}

	httpx.OK(c, records)
}

// Counts returns a task's error counts by status
// GET /api/v1/tasks/:id/errors/counts
func (h *Handler) Counts(c *gin.Context) {
	taskID, ok := taskIDParam(c)
	if !ok {
		return
	}

	counts, err := h.store.CountByStatus(c.Request.Context(), taskID)
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to count errors", err))
		return
	}

	httpx.OK(c, counts)
}

// ClearRequest selects the error records to clear
type ClearRequest struct {
	IDs []int `json:"ids" binding:"required"`
}

// Clear marks the given error records as cleared, attributed to the
// authenticated user
// POST /api/v1/task-errors/clear
func (h *Handler) Clear(c *gin.Context) {
	if !auth.CanClear(currentRole(c)) {
		httpx.FailErr(c, httpx.ErrForbidden("clearing errors requires operator role"))
		return
	}

	var req ClearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("ids is required"))
		return
	}
	if len(req.IDs) == 0 {
		httpx.FailErr(c, httpx.ErrParamMissing("ids must not be empty"))
		return
	}

	cleared, err := h.store.Clear(req.IDs, currentUserID(c), time.Now())
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to clear errors", err))
		return
	}

	ws.PublishTaskErrorEvent(ws.EventCleared, gin.H{"ids": req.IDs})

	httpx.OK(c, gin.H{"cleared": cleared})
}

// ClearByTask bulk-clears all non-cleared errors of a task
// POST /api/v1/tasks/:id/errors/clear
func (h *Handler) ClearByTask(c *gin.Context) {
	if !auth.CanClear(currentRole(c)) {
		httpx.FailErr(c, httpx.ErrForbidden("clearing errors requires operator role"))
		return
	}

	taskID, ok := taskIDParam(c)
	if !ok {
		return
	}

	cleared, err := h.store.ClearByTask(taskID, currentUserID(c), time.Now())
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to clear errors", err))
		return
	}

	ws.PublishTaskErrorEvent(ws.EventCleared, gin.H{"task_id": taskID, "count": cleared})

	httpx.OK(c, gin.H{"cleared": cleared})
}

// currentUserID reads the authenticated user's ID set by the auth
// middleware; nil when unavailable
func currentUserID(c *gin.Context) *int {
	if uid, ok := c.Get("uid"); ok {
		if id, ok := uid.(int); ok {
			return &id
		}
	}
	return nil
}

// currentRole reads the authenticated user's role set by the auth
// middleware
func currentRole(c *gin.Context) string {
	if role, ok := c.Get("role"); ok {
		if s, ok := role.(string); ok {
			return s
		}
	}
	return ""
}

func taskIDParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid task id"))
		return 0, false
	}
	return id, true
}

func pagination(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("pageSize", "50"))
	if err != nil || pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}
	return page, pageSize
}
