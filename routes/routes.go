package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"signal_report_backend/app"
	"signal_report_backend/controllers"
	"signal_report_backend/middleware"
)

// SetupRoutes sets up all API routes
func SetupRoutes(ctx context.Context, router *gin.Engine, a *app.App) {
	reportController := controllers.NewReportController(a.Coordinator, a.Scheduler, a.Engine.Location())
	notifierController := controllers.NewNotifierController(a.Settings)
	healthController := controllers.NewHealthController(a, a.Sinks, a.Keeper)

	limiter := middleware.NewRateLimiter(a.Config.OperatorRatePerMin, 5)
	limiter.StartCleanup(ctx, 5*time.Minute)

	// Probes
	router.GET("/health", healthController.Health)
	router.GET("/ready", healthController.Ready)
	router.GET("/metrics", gin.WrapH(a.MetricsHandler()))

	// Live report feed for the admin dashboard
	if a.Dashboard != nil {
		router.GET("/ws/reports", func(c *gin.Context) {
			a.Dashboard.HandleWebSocket(c.Writer, c.Request)
		})
	}

	// API v1 group, operators only
	api := router.Group("/api/v1")
	api.Use(middleware.JWTAuthMiddleware(a.Config.JWTSecret))
	{
		reports := api.Group("/reports")
		{
			reports.GET("/daily", reportController.Daily)
			reports.GET("/weekly", reportController.Weekly)
			reports.POST("/dispatch", limiter.Middleware(), reportController.Dispatch)
		}

		api.GET("/jobs", reportController.ListJobs)

		notifiers := api.Group("/notifiers")
		{
			notifiers.GET("", notifierController.List)
			notifiers.POST("", limiter.Middleware(), notifierController.Update)
		}
	}
}
