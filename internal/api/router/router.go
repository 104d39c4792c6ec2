package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/event-scheduler/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "event-scheduler is healthy",
		})
	})

	eventHandler := handler.NewEventHandler(deps)

	events := r.Group("/events")
	{
		// POST /events/execute/:event_class?scheduled=bool - enqueue or register
		events.POST("/execute/:event_class", eventHandler.ExecuteEvent)

		// PUT /events/execute/:event_class?scheduled=true&job_id= - update schedule
		events.PUT("/execute/:event_class", eventHandler.UpdateScheduled)

		// GET /events?tenant_id= - list scheduled jobs
		events.GET("", eventHandler.ListScheduled)

		// GET /events/:job_id - get a scheduled job
		events.GET("/:job_id", eventHandler.GetScheduled)

		// DELETE /events/:job_id - remove a scheduled job
		events.DELETE("/:job_id", eventHandler.DeleteScheduled)
	}

	// GET /runs - list run records with filtering and pagination
	r.GET("/runs", eventHandler.ListRuns)

	// GET /runs/:run_id - single run record
	r.GET("/runs/:run_id", eventHandler.GetRun)

	// Status callback for executing handlers
	internal := r.Group("/internal")
	internal.Use(TokenAuthMiddleware(deps.CallbackToken))
	{
		internal.POST("/runs/:run_id/status", eventHandler.UpdateRunStatus)
	}

	return r
}
