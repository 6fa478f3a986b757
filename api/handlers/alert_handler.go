package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"example.com/solar/services/sensor/api/middleware"
	"example.com/solar/services/sensor/internal/models"
	"example.com/solar/services/sensor/internal/realtime"
	"example.com/solar/services/sensor/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AlertHandler handles alert endpoints
type AlertHandler struct {
	service service.Service
	log     *logrus.Logger
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(svc service.Service, log *logrus.Logger) *AlertHandler {
	return &AlertHandler{
		service: svc,
		log:     log,
	}
}

// ListAlerts returns the viewer's alerts, optionally filtered by status
func (h *AlertHandler) ListAlerts(c *gin.Context) {
	userID, err := middleware.UserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	status := models.AlertStatus(c.Query("status"))
	switch status {
	case "", models.AlertStatusActive, models.AlertStatusResolved, models.AlertStatusIgnored:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status parameter"})
		return
	}

	alerts, err := h.service.ListAlerts(c.Request.Context(), userID, status)
	if err != nil {
		h.log.WithError(err).Error("Failed to list alerts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve alerts"})
		return
	}

	c.JSON(http.StatusOK, alertPayloads(alerts))
}

// ActiveAlerts returns only the viewer's unresolved alerts
func (h *AlertHandler) ActiveAlerts(c *gin.Context) {
	userID, err := middleware.UserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	alerts, err := h.service.ListAlerts(c.Request.Context(), userID, models.AlertStatusActive)
	if err != nil {
		h.log.WithError(err).Error("Failed to list active alerts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve alerts"})
		return
	}

	c.JSON(http.StatusOK, alertPayloads(alerts))
}

// ResolveAlert marks one of the viewer's alerts as resolved
func (h *AlertHandler) ResolveAlert(c *gin.Context) {
	h.transitionAlert(c, h.service.ResolveAlert)
}

// IgnoreAlert marks one of the viewer's alerts as ignored
func (h *AlertHandler) IgnoreAlert(c *gin.Context) {
	h.transitionAlert(c, h.service.IgnoreAlert)
}

func (h *AlertHandler) transitionAlert(c *gin.Context, transition func(ctx context.Context, userID, alertID uint) (*models.Alert, error)) {
	userID, err := middleware.UserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	alertID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid alert id"})
		return
	}

	alert, err := transition(c.Request.Context(), userID, uint(alertID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
			return
		}
		h.log.WithError(err).Error("Failed to update alert")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update alert"})
		return
	}

	c.JSON(http.StatusOK, realtime.NewAlertPayload(alert))
}

func alertPayloads(alerts []*models.Alert) []realtime.AlertPayload {
	payloads := make([]realtime.AlertPayload, 0, len(alerts))
	for _, alert := range alerts {
		payloads = append(payloads, realtime.NewAlertPayload(alert))
	}
	return payloads
}
