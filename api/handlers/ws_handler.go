package handlers

import (
	"net/http"

	"example.com/solar/services/sensor/api/middleware"
	"example.com/solar/services/sensor/internal/realtime"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WSHandler upgrades authenticated viewers onto the realtime hub
type WSHandler struct {
	hub      *realtime.Hub
	log      *logrus.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new websocket handler
func NewWSHandler(hub *realtime.Hub, log *logrus.Logger) *WSHandler {
	return &WSHandler{
		hub: hub,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin policy is enforced at the gateway
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// SensorStream serves the combined live feed of readings and alerts
func (h *WSHandler) SensorStream(c *gin.Context) {
	h.serve(c, realtime.StreamSensors)
}

// AlertStream serves the alert-only live feed
func (h *WSHandler) AlertStream(c *gin.Context) {
	h.serve(c, realtime.StreamAlerts)
}

// serve joins the connection to the viewer's group. Authentication already
// happened in middleware, so a failed upgrade never joins a group.
func (h *WSHandler) serve(c *gin.Context, stream realtime.Stream) {
	userID, err := middleware.UserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	h.hub.ServeConn(conn, userID, stream)
}
