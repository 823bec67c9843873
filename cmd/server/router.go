package main

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stwalsh4118/solosafe/api/internal/handlers"
	"github.com/stwalsh4118/solosafe/api/internal/logger"
	"github.com/stwalsh4118/solosafe/api/internal/middleware"
	"github.com/stwalsh4118/solosafe/api/internal/observability"
	"github.com/stwalsh4118/solosafe/api/internal/services"
)

type routerDeps struct {
	log       *logger.Logger
	metrics   *observability.Metrics
	gatherer  prometheus.Gatherer
	origins   []string
	health    *handlers.HealthHandler
	reports   services.ReportService
	analytics services.AnalyticsService
}

func newRouter(d routerDeps) *gin.Engine {
	router := gin.New()

	// Middleware order: RequestID -> Logger -> Recovery -> CORS -> Metrics
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(d.log))
	router.Use(middleware.Recovery(d.log))
	router.Use(middleware.CORS(d.origins))
	router.Use(middleware.Metrics(d.metrics))

	router.GET("/health", d.health.Health)
	router.GET("/health/ready", d.health.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.gatherer, promhttp.HandlerOpts{})))

	reportHandler := handlers.NewReportHandler(d.reports)
	analyticsHandler := handlers.NewAnalyticsHandler(d.analytics)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/info", d.health.Info)
		v1.GET("/tags", reportHandler.ListTags)

		reports := v1.Group("/reports")
		{
			reports.POST("", reportHandler.SubmitReport)
			reports.GET("", reportHandler.Search)
		}

		locations := v1.Group("/locations")
		{
			locations.POST("", reportHandler.ResolveLocation)
			locations.POST("/:id/reports", reportHandler.AddReport)
		}

		v1.GET("/analytics/summary", analyticsHandler.Summary)
	}

	return router
}
