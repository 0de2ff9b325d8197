package v1

import (
	"taskops/api/v1/auth"
	"taskops/api/v1/middleware"
	"taskops/api/v1/routing"
	"taskops/api/v1/task_errors"
	"taskops/api/v1/tasks"
	"taskops/internal/config"
	"taskops/internal/httpx"
	"taskops/internal/lifecycle"
	"taskops/internal/taskerr"
	"taskops/internal/taskrouter"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Deps carries the shared services handlers depend on
type Deps struct {
	DB        *gorm.DB
	Store     *taskerr.Store
	Lifecycle *lifecycle.Service
	Router    *taskrouter.Router
}

// SetupRouter sets up the API v1 routes
func SetupRouter(r *gin.Engine, cfg *config.Config, deps *Deps) {
	r.Use(middleware.RequestID())

	v1 := r.Group("/api/v1")
	{
		// Public routes (no authentication required)
		v1.GET("/ping", pingHandler)

		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/login", auth.LoginHandler(deps.DB, cfg))
		}

		// Protected routes (authentication required)
		protected := v1.Group("")
		protected.Use(middleware.AuthRequired())
		{
			protected.GET("/me", meHandler)

			// Task routes
			tasksHandler := tasks.NewHandler(deps.DB, deps.Store, deps.Lifecycle)
			tasksGroup := protected.Group("/tasks")
			{
				tasksGroup.GET("", tasksHandler.List)
				tasksGroup.POST("", tasksHandler.Create)
				tasksGroup.GET("/:id", tasksHandler.Get)
				tasksGroup.POST("/:id/active", tasksHandler.SetActive)
				tasksGroup.POST("/:id/report-start", tasksHandler.ReportStart)
				tasksGroup.POST("/:id/report-success", tasksHandler.ReportSuccess)
				tasksGroup.POST("/:id/report-error", tasksHandler.ReportError)
			}

			// Task error routes
			errorsHandler := task_errors.NewHandler(deps.DB, deps.Store)
			{
				tasksGroup.GET("/:id/errors", errorsHandler.List)
				tasksGroup.GET("/:id/errors/active", errorsHandler.Active)
				tasksGroup.GET("/:id/errors/counts", errorsHandler.Counts)
				tasksGroup.POST("/:id/errors/clear", errorsHandler.ClearByTask)
			}
			protected.POST("/task-errors/clear", errorsHandler.Clear)

			// Routing routes
			routingHandler := routing.NewHandler(deps.Router)
			routingGroup := protected.Group("/routing")
			{
				routingGroup.GET("/preview", routingHandler.Preview)
				routingGroup.GET("/queues", routingHandler.Queues)
			}
		}
	}
}

// pingHandler handles the ping request using unified response
func pingHandler(c *gin.Context) {
	httpx.OK(c, gin.H{
		"pong": true,
	})
}

// meHandler returns current user information
func meHandler(c *gin.Context) {
	uid, _ := c.Get("uid")
	username, _ := c.Get("username")
	role, _ := c.Get("role")

	httpx.OK(c, gin.H{
		"uid":      uid,
		"username": username,
		"role":     role,
	})
}
