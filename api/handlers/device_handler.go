package handlers

import (
	"net/http"
	"strconv"

	"example.com/solar/services/sensor/api/middleware"
	"example.com/solar/services/sensor/internal/models"
	"example.com/solar/services/sensor/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// DeviceHandler handles device management endpoints
type DeviceHandler struct {
	service service.Service
	log     *logrus.Logger
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(svc service.Service, log *logrus.Logger) *DeviceHandler {
	return &DeviceHandler{
		service: svc,
		log:     log,
	}
}

// RegisterDeviceRequest is the payload for registering a new device
type RegisterDeviceRequest struct {
	Name     string `json:"name" binding:"required"`
	Location string `json:"location"`
}

// RegisterDevice creates a device owned by the viewer. The generated API
// key is returned once here; it is never included in later reads.
func (h *DeviceHandler) RegisterDevice(c *gin.Context) {
	userID, err := middleware.UserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	device := &models.Device{
		Name:     req.Name,
		Location: req.Location,
		UserID:   userID,
	}
	if err := h.service.RegisterDevice(c.Request.Context(), device); err != nil {
		h.log.WithError(err).Error("Failed to register device")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register device"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"device":  device,
		"api_key": device.APIKey,
	})
}

// ListDevices returns all devices owned by the viewer
func (h *DeviceHandler) ListDevices(c *gin.Context) {
	userID, err := middleware.UserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	devices, err := h.service.ListDevices(c.Request.Context(), userID)
	if err != nil {
		h.log.WithError(err).Error("Failed to list devices")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve devices"})
		return
	}

	c.JSON(http.StatusOK, devices)
}

// GetDevice returns one of the viewer's devices by numeric id or UID
func (h *DeviceHandler) GetDevice(c *gin.Context) {
	userID, err := middleware.UserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	device, err := h.service.GetOwnedDevice(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Device not found"})
		return
	}

	c.JSON(http.StatusOK, device)
}

// UpdateDeviceStatusRequest is the payload for toggling a device
type UpdateDeviceStatusRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// UpdateDeviceStatus activates or deactivates one of the viewer's devices.
// A deactivated device keeps its history but its credential stops working.
func (h *DeviceHandler) UpdateDeviceStatus(c *gin.Context) {
	userID, err := middleware.UserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req UpdateDeviceStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	deviceID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		// UID form; resolve it to the numeric id first
		device, lookupErr := h.service.GetOwnedDevice(c.Request.Context(), userID, c.Param("id"))
		if lookupErr != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Device not found"})
			return
		}
		deviceID = uint64(device.ID)
	}

	if err := h.service.UpdateDeviceStatus(c.Request.Context(), userID, uint(deviceID), *req.Active); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Device not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"active": *req.Active,
	})
}
