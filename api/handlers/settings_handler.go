package handlers

import (
	"net/http"

	"example.com/solar/services/sensor/api/middleware"
	"example.com/solar/services/sensor/internal/models"
	"example.com/solar/services/sensor/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SettingsHandler handles alert threshold settings endpoints
type SettingsHandler struct {
	service service.Service
	log     *logrus.Logger
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(svc service.Service, log *logrus.Logger) *SettingsHandler {
	return &SettingsHandler{
		service: svc,
		log:     log,
	}
}

// GetSettings returns the viewer's alert thresholds, creating the default
// set on first access
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	userID, err := middleware.UserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	policy, err := h.service.GetSettings(c.Request.Context(), userID)
	if err != nil {
		h.log.WithError(err).Error("Failed to load alert settings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve settings"})
		return
	}

	c.JSON(http.StatusOK, policy)
}

// UpdateSettingsRequest is the full replacement payload for alert settings.
// All thresholds are required so a partial update cannot silently zero one.
type UpdateSettingsRequest struct {
	TempHighThreshold     *float64 `json:"temp_high_threshold" binding:"required"`
	TempLowThreshold      *float64 `json:"temp_low_threshold" binding:"required"`
	HumidityHighThreshold *float64 `json:"humidity_high_threshold" binding:"required"`
	HumidityLowThreshold  *float64 `json:"humidity_low_threshold" binding:"required"`
	AirQualityThreshold   *float64 `json:"air_quality_threshold" binding:"required"`
	EmailNotifications    *bool    `json:"email_notifications" binding:"required"`
	PushNotifications     *bool    `json:"push_notifications" binding:"required"`
}

// UpdateSettings replaces the viewer's alert thresholds
func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	userID, err := middleware.UserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	update := &models.AlertPolicy{
		TempHighThreshold:     *req.TempHighThreshold,
		TempLowThreshold:      *req.TempLowThreshold,
		HumidityHighThreshold: *req.HumidityHighThreshold,
		HumidityLowThreshold:  *req.HumidityLowThreshold,
		AirQualityThreshold:   *req.AirQualityThreshold,
		EmailNotifications:    *req.EmailNotifications,
		PushNotifications:     *req.PushNotifications,
	}

	policy, err := h.service.UpdateSettings(c.Request.Context(), userID, update)
	if err != nil {
		h.log.WithError(err).Error("Failed to update alert settings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update settings"})
		return
	}

	c.JSON(http.StatusOK, policy)
}
