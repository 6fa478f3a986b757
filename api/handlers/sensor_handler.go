package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"example.com/solar/services/sensor/api/middleware"
	"example.com/solar/services/sensor/internal/realtime"
	"example.com/solar/services/sensor/internal/repository"
	"example.com/solar/services/sensor/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SensorHandler handles sensor data endpoints
type SensorHandler struct {
	service service.Service
	log     *logrus.Logger
}

// NewSensorHandler creates a new sensor handler
func NewSensorHandler(svc service.Service, log *logrus.Logger) *SensorHandler {
	return &SensorHandler{
		service: svc,
		log:     log,
	}
}

// ReceiveSensorData ingests one measurement set from a device. The device
// authenticates with its API key inside the payload, not with a viewer
// token. Credential failures come back in the same field-error shape as
// validation failures so firmware only has to parse one error format.
func (h *SensorHandler) ReceiveSensorData(c *gin.Context) {
	var req service.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": "Data validation failed.",
			"errors":  gin.H{"body": "invalid JSON payload"},
		})
		return
	}

	reading, err := h.service.IngestReading(c.Request.Context(), &req)
	if err != nil {
		var vErr *service.ValidationError
		switch {
		case errors.As(err, &vErr):
			c.JSON(http.StatusBadRequest, gin.H{
				"status":  "error",
				"message": "Data validation failed.",
				"errors":  vErr.Fields,
			})
		case errors.Is(err, service.ErrDeviceAuth):
			c.JSON(http.StatusBadRequest, gin.H{
				"status":  "error",
				"message": "Data validation failed.",
				"errors":  gin.H{"api_key": "Invalid API key."},
			})
		default:
			h.log.WithError(err).Error("Failed to ingest sensor data")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to store sensor data",
			})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status":    "success",
		"message":   "Data stored successfully.",
		"data_id":   reading.ID,
		"timestamp": reading.Timestamp,
		"device":    reading.Device.Name,
	})
}

// ListReadings returns the viewer's reading history, optionally narrowed to
// one device and a trailing time window
func (h *SensorHandler) ListReadings(c *gin.Context) {
	userID, err := middleware.UserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	filter := repository.ReadingFilter{Limit: 100}

	if deviceParam := c.Query("device_id"); deviceParam != "" {
		device, err := h.service.GetOwnedDevice(c.Request.Context(), userID, deviceParam)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Device not found"})
			return
		}
		filter.DeviceID = device.ID
	}

	if hoursParam := c.Query("hours"); hoursParam != "" {
		hours, err := strconv.Atoi(hoursParam)
		if err != nil || hours <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid hours parameter"})
			return
		}
		filter.Since = time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	}

	if limitParam := c.Query("limit"); limitParam != "" {
		limit, err := strconv.Atoi(limitParam)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
			return
		}
		filter.Limit = limit
	}

	readings, err := h.service.ListReadings(c.Request.Context(), userID, filter)
	if err != nil {
		h.log.WithError(err).Error("Failed to list readings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve readings"})
		return
	}

	payloads := make([]realtime.ReadingPayload, 0, len(readings))
	for _, reading := range readings {
		payloads = append(payloads, realtime.NewReadingPayload(reading))
	}

	c.JSON(http.StatusOK, gin.H{
		"count": len(payloads),
		"data":  payloads,
	})
}

// LatestReadings returns the most recent reading for each of the viewer's
// devices
func (h *SensorHandler) LatestReadings(c *gin.Context) {
	userID, err := middleware.UserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	readings, err := h.service.LatestReadings(c.Request.Context(), userID)
	if err != nil {
		h.log.WithError(err).Error("Failed to load latest readings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve latest readings"})
		return
	}

	payloads := make([]realtime.ReadingPayload, 0, len(readings))
	for _, reading := range readings {
		payloads = append(payloads, realtime.NewReadingPayload(reading))
	}

	c.JSON(http.StatusOK, payloads)
}

// Statistics returns per-device aggregates over the viewer's fleet
func (h *SensorHandler) Statistics(c *gin.Context) {
	userID, err := middleware.UserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	stats, err := h.service.DeviceStatistics(c.Request.Context(), userID)
	if err != nil {
		h.log.WithError(err).Error("Failed to compute device statistics")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve statistics"})
		return
	}

	c.JSON(http.StatusOK, stats)
}
