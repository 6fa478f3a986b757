package routes

import (
	"example.com/solar/services/sensor/api/handlers"
	"example.com/solar/services/sensor/api/middleware"
	"example.com/solar/services/sensor/config"
	"example.com/solar/services/sensor/internal/realtime"
	"example.com/solar/services/sensor/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SetupRoutes sets up all the routes for the server
func SetupRoutes(r *gin.Engine, svc service.Service, hub *realtime.Hub, cfg *config.Config, log *logrus.Logger) {
	// Health check
	r.GET("/health", handlers.HealthCheck)

	// API routes
	api := r.Group("/api/v1")

	// Device-facing ingestion. Authenticated by the API key inside the
	// payload, not by a viewer token.
	sensorHandler := handlers.NewSensorHandler(svc, log)
	api.POST("/sensors/data", sensorHandler.ReceiveSensorData)

	// Viewer-facing routes require a JWT from the accounts service
	auth := middleware.JWTAuth(cfg.JWT.Secret, log)
	viewer := api.Group("", auth)

	// Reading queries
	sensors := viewer.Group("/sensors")
	{
		sensors.GET("", sensorHandler.ListReadings)
		sensors.GET("/latest", sensorHandler.LatestReadings)
		sensors.GET("/statistics", sensorHandler.Statistics)
	}

	// Device management
	deviceHandler := handlers.NewDeviceHandler(svc, log)
	devices := viewer.Group("/devices")
	{
		devices.POST("", deviceHandler.RegisterDevice)
		devices.GET("", deviceHandler.ListDevices)
		devices.GET("/:id", deviceHandler.GetDevice)
		devices.PATCH("/:id/status", deviceHandler.UpdateDeviceStatus)
	}

	// Alerts
	alertHandler := handlers.NewAlertHandler(svc, log)
	alerts := viewer.Group("/alerts")
	{
		alerts.GET("", alertHandler.ListAlerts)
		alerts.GET("/active", alertHandler.ActiveAlerts)
		alerts.PATCH("/:id/resolve", alertHandler.ResolveAlert)
		alerts.PATCH("/:id/ignore", alertHandler.IgnoreAlert)
	}

	// Alert threshold settings
	settingsHandler := handlers.NewSettingsHandler(svc, log)
	viewer.GET("/settings", settingsHandler.GetSettings)
	viewer.PUT("/settings", settingsHandler.UpdateSettings)

	// Dashboard
	dashboardHandler := handlers.NewDashboardHandler(svc, log)
	viewer.GET("/dashboard/summary", dashboardHandler.Summary)

	// Websocket feeds. Auth runs before the upgrade, so an unauthenticated
	// client is rejected before it could join a group.
	wsHandler := handlers.NewWSHandler(hub, log)
	ws := r.Group("/ws", auth)
	{
		ws.GET("/sensors", wsHandler.SensorStream)
		ws.GET("/alerts", wsHandler.AlertStream)
	}
}
