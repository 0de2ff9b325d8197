package tasks

import (
	"errors"
	"strconv"

	"taskops/internal/httpx"
	"taskops/internal/lifecycle"
	"taskops/internal/model"
	"taskops/internal/taskerr"
	"taskops/internal/taskrouter"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handler serves task bookkeeping endpoints
type Handler struct {
	db      *gorm.DB
	store   *taskerr.Store
	service *lifecycle.Service
}

// NewHandler creates a task API handler
func NewHandler(db *gorm.DB, store *taskerr.Store, service *lifecycle.Service) *Handler {
	return &Handler{
		db:      db,
		store:   store,
		service: service,
	}
}

// List returns tasks, optionally filtered by app and active flag
// GET /api/v1/tasks
func (h *Handler) List(c *gin.Context) {
	query := h.db.Model(&model.Task{})

	if app := c.Query("app"); app != "" {
		query = query.Where("app = ?", app)
	}
	if active := c.Query("active"); active != "" {
		query = query.Where("is_active = ?", active == "1" || active == "true")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to count tasks", err))
		return
	}

	page, pageSize := pagination(c)
	var tasks []model.Task
	err := query.Order("name ASC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&tasks).Error
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to list tasks", err))
		return
	}

	httpx.OKItems(c, tasks, total, page, pageSize)
}

// Get returns a task with its error counts by status
// GET /api/v1/tasks/:id
func (h *Handler) Get(c *gin.Context) {
	task, ok := h.loadTask(c)
	if !ok {
		return
	}

	counts, err := h.store.CountByStatus(c.Request.Context(), task.ID)
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to count errors", err))
		return
	}

	httpx.OK(c, gin.H{
		"task":         task,
		"error_counts": counts,
	})
}

// CreateRequest represents the task registration body
type CreateRequest struct {
	Name           string `json:"name" binding:"required"`
	Description    string `json:"description"`
	NotifyOnError  bool   `json:"notify_on_error"`
	DisableOnError bool   `json:"disable_on_error"`
	MaxRetries     *int   `json:"max_retries"`
	Schedule       string `json:"schedule"`
}

// Create registers a task
// POST /api/v1/tasks
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	app := taskrouter.AppName(req.Name)
	if app == "" {
		httpx.FailErr(c, httpx.ErrParamInvalid("task name must be namespaced (e.g. pfsense.tasks.sync_dhcp_routes)"))
		return
	}

	maxRetries := 3
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}

	task := model.Task{
		Name:           req.Name,
		App:            app,
		Description:    req.Description,
		IsActive:       true,
		NotifyOnError:  req.NotifyOnError,
		DisableOnError: req.DisableOnError,
		MaxRetries:     maxRetries,
		Schedule:       req.Schedule,
	}
	if err := h.db.Create(&task).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to create task", err))
		return
	}

	httpx.OK(c, task)
}

// SetActiveRequest toggles a task's active flag
type SetActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// SetActive enables or disables a task
// POST /api/v1/tasks/:id/active
func (h *Handler) SetActive(c *gin.Context) {
	task, ok := h.loadTask(c)
	if !ok {
		return
	}

	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("active is required"))
		return
	}

	if err := h.db.Model(task).Update("is_active", *req.Active).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to update task", err))
		return
	}

	httpx.OK(c, gin.H{"id": task.ID, "is_active": *req.Active})
}

// ReportStart records the start of a task run
// POST /api/v1/tasks/:id/report-start
func (h *Handler) ReportStart(c *gin.Context) {
	task, ok := h.loadTask(c)
	if !ok {
		return
	}

	if !task.IsActive {
		httpx.FailErr(c, httpx.ErrStateConflict("task is not active"))
		return
	}

	if err := h.service.HandleStart(task); err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to record task start", err))
		return
	}

	httpx.OK(c, gin.H{"id": task.ID, "status": "running"})
}

// ReportSuccessRequest carries the result payload of a successful run
type ReportSuccessRequest struct {
	Result map[string]interface{} `json:"result"`
}

// ReportSuccess records a successful task run
// POST /api/v1/tasks/:id/report-success
func (h *Handler) ReportSuccess(c *gin.Context) {
	task, ok := h.loadTask(c)
	if !ok {
		return
	}

	var req ReportSuccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	if err := h.service.HandleSuccess(task, req.Result); err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to record task success", err))
		return
	}

	httpx.OK(c, gin.H{"id": task.ID, "status": model.TaskRunStatusSuccess})
}

// ReportErrorRequest carries the failure observation of a run.
// The caller supplies the attribution explicitly.
type ReportErrorRequest struct {
	ErrorType    string `json:"error_type" binding:"required"`
	FilePath     string `json:"file_path"`
	FunctionName string `json:"function_name"`
	LineNumber   int    `json:"line_number"`
	Message      string `json:"message" binding:"required"`
}

// ReportError records a failed task run
// POST /api/v1/tasks/:id/report-error
func (h *Handler) ReportError(c *gin.Context) {
	task, ok := h.loadTask(c)
	if !ok {
		return
	}

	var req ReportErrorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	ec := taskerr.ErrorContext{
		Type:         req.ErrorType,
		FilePath:     req.FilePath,
		FunctionName: req.FunctionName,
		LineNumber:   req.LineNumber,
		Message:      req.Message,
	}

	if err := h.service.HandleError(c.Request.Context(), task, ec); err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to record task error", err))
		return
	}

	httpx.OK(c, gin.H{"id": task.ID, "status": model.TaskRunStatusError})
}

// loadTask resolves the :id path parameter to a task, writing an error
// response on failure
func (h *Handler) loadTask(c *gin.Context) (*model.Task, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid task id"))
		return nil, false
	}

	var task model.Task
	if err := h.db.First(&task, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.FailErr(c, httpx.ErrNotFound("task not found"))
			return nil, false
		}
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to load task", err))
		return nil, false
	}

	return &task, true
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
