// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"github.com/AtRiskMedia/reportcache-go/internal/application/container"
	"github.com/AtRiskMedia/reportcache-go/internal/presentation/http/handlers"
	"github.com/AtRiskMedia/reportcache-go/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if gin.Mode() != gin.TestMode {
		r.Use(gin.Logger())
	}
	r.Use(middleware.CORSMiddleware(container.Config.CORSOrigins))

	cfg := container.Config
	logger := container.Logger

	// Initialize handlers
	reportHandlers := handlers.NewReportHandlers(container.Coordinator, cfg.FreshnessThresholdDays, logger, container.PerfTracker)
	accountHandlers := handlers.NewAccountHandlers(container.QuotaLedger, container.HistoryService, container.SubscriptionService, logger)
	systemHandlers := handlers.NewSystemHandlers(container.DB, container.Guard, container.Registry)
	sysopHandlers := handlers.NewSysOpHandlers(container)

	r.GET("/health", systemHandlers.Health)
	r.GET("/metrics", systemHandlers.Metrics())

	sysopAPI := r.Group("/api/sysop")
	{
		sysopAPI.POST("/login", sysopHandlers.Login)

		// SysOp Authenticated endpoints
		sysopAPI.Use(middleware.SysopMiddleware(cfg.JWTSecret, logger))
		{
			sysopAPI.POST("/subscriptions", sysopHandlers.AssignSubscription)
			sysopAPI.GET("/usage/:userId", sysopHandlers.GetUserUsage)
			sysopAPI.DELETE("/cache", sysopHandlers.PurgeCache)
			sysopAPI.GET("/activity", sysopHandlers.GetActivity)
			sysopAPI.GET("/logs/levels", sysopHandlers.GetLogLevels)
			sysopAPI.POST("/logs/levels", sysopHandlers.SetLogLevel)
			sysopAPI.GET("/logs/stream", sysopHandlers.StreamLogs)
			sysopAPI.GET("/events", sysopHandlers.StreamEvents)
		}
	}

	api := r.Group("/api/v1")
	{
		api.GET("/plans", accountHandlers.GetPlans)

		authed := api.Group("")
		authed.Use(middleware.AuthMiddleware(cfg.JWTSecret, logger))
		{
			authed.POST("/account", accountHandlers.Enroll)
			authed.GET("/usage", accountHandlers.GetUsage)

			reports := authed.Group("/reports")
			{
				reports.POST("/generate", reportHandlers.GenerateReport)
				reports.POST("/compare", reportHandlers.CompareReports)
				reports.GET("/cached/:exchange/:symbol", reportHandlers.GetCachedReport)
				reports.GET("/history", accountHandlers.GetHistory)
			}
		}
	}

	return r
}
