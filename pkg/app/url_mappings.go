package app

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/diagramq/diagramq/internal/controllers"
	"github.com/diagramq/diagramq/internal/middleware"
)

func SetupMappings(app *Application) {
	v1 := app.Engine.Group("/v1")
	{
		v1.POST("/tasks",
			middleware.RateLimitSubmit(app.RateLimiter, app.Config),
			controllers.NewSubmitTaskController(app.Tasks, app.Config.MaxUploadBytes).Handle)
		v1.GET("/tasks", controllers.NewListTasksController(app.Tasks).Handle)
		v1.GET("/tasks/:id", controllers.NewGetTaskController(app.Tasks).Handle)
		v1.GET("/tasks/:id/files/:kind", controllers.NewGetArtifactController(app.Tasks).Handle)
		v1.DELETE("/tasks/:id", controllers.NewDeleteTaskController(app.Tasks).Handle)
		v1.GET("/stats", controllers.NewStatsController(app.Stats).Handle)
		v1.GET("/healthz", controllers.NewHealthController(app.Store.Health).Handle)
	}

	app.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
