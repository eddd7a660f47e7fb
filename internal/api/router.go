// Package api exposes the tablet and operator HTTP surface
package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/panelworks/production-engine/internal/application"
	"github.com/panelworks/production-engine/internal/domain"
	"github.com/panelworks/production-engine/internal/scheduler"
	"github.com/panelworks/production-engine/pkg/metrics"
	"github.com/panelworks/production-engine/pkg/middleware"
)

// Dependencies carries everything the HTTP surface serves
type Dependencies struct {
	ServiceName string
	Logger      *slog.Logger
	Metrics     *metrics.Metrics

	Production *application.ProductionService
	Packaging  *application.PackagingService
	Alerting   *application.AlertingService
	Runner     *scheduler.Runner
	Stations   domain.WorkstationRepository

	// ReadyCheck probes the persistence layer for /ready
	ReadyCheck func() error
}

// NewRouter builds the gin engine with the standard middleware chain and
// every tablet/operator route.
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()

	middleware.Setup(router, middleware.DefaultConfig(deps.ServiceName, deps.Logger))
	if deps.Metrics != nil {
		router.Use(middleware.MetricsMiddleware(deps.Metrics))
	}

	router.NoRoute(middleware.NoRoute())
	router.NoMethod(middleware.NoMethod())

	router.GET("/health", middleware.HealthCheck(deps.ServiceName))
	router.GET("/ready", middleware.ReadinessCheck(deps.ServiceName, deps.ReadyCheck))
	if deps.Metrics != nil {
		router.GET("/metrics", middleware.MetricsEndpoint(deps.Metrics))
	}

	h := &handlers{deps: deps}

	v1 := router.Group("/api/v1")
	{
		workstations := v1.Group("/workstations")
		{
			workstations.GET("", h.listWorkstations)
			workstations.GET("/:stationId/tasks", h.getQueue)
		}

		tasks := v1.Group("/tasks")
		{
			tasks.POST("/:taskId/start", h.startStage)
			tasks.POST("/:taskId/complete", h.completeStage)
			tasks.POST("/:taskId/pause", h.pauseTask)
			tasks.POST("/:taskId/resume", h.resumeTask)
			tasks.POST("/:taskId/cancel", h.cancelTask)
		}

		v1.POST("/queue/reorder", h.reorderQueue)

		orders := v1.Group("/orders")
		{
			orders.GET("/:orderId/summary", h.getOrderSummary)
			orders.POST("/:orderId/packaging/start", h.startPackaging)
			orders.POST("/:orderId/packaging/complete", h.completePackaging)
		}
		v1.GET("/packaging/ready", h.listReadyForPackaging)

		alerts := v1.Group("/alerts")
		{
			alerts.GET("", h.listAlerts)
			alerts.POST("/:alertId/read", h.markAlertRead)
		}

		jobs := v1.Group("/jobs")
		{
			jobs.GET("", h.listJobs)
			jobs.POST("/:name/trigger", h.triggerJob)
		}
	}

	return router
}
