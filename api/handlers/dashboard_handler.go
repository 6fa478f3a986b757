package handlers

import (
	"net/http"

	"example.com/solar/services/sensor/api/middleware"
	"example.com/solar/services/sensor/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// DashboardHandler handles the dashboard summary endpoint
type DashboardHandler struct {
	service service.Service
	log     *logrus.Logger
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(svc service.Service, log *logrus.Logger) *DashboardHandler {
	return &DashboardHandler{
		service: svc,
		log:     log,
	}
}

// Summary aggregates the viewer's fleet state: device counts, 24h reading
// volume, active alert count and the latest reading per active device
func (h *DashboardHandler) Summary(c *gin.Context) {
	userID, err := middleware.UserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	summary, err := h.service.DashboardSummary(c.Request.Context(), userID)
	if err != nil {
		h.log.WithError(err).Error("Failed to build dashboard summary")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve dashboard summary"})
		return
	}

	c.JSON(http.StatusOK, summary)
}
