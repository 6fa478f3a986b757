package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"example.com/solar/services/sensor/internal/models"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 25 * time.Second
	// Inbound client messages are tiny control frames
	maxMessageSize = 1024
	sendBufferSize = 32
)

// Stream identifies which event feed a connection joined
type Stream string

const (
	// StreamSensors carries reading events plus alert events (combined feed)
	StreamSensors Stream = "sensors"
	// StreamAlerts carries alert events only
	StreamAlerts Stream = "alerts"
)

type groupKey struct {
	userID uint
	stream Stream
}

// DataSource answers client data requests on a live connection. Satisfied
// by the service layer.
type DataSource interface {
	LatestReadings(ctx context.Context, userID uint) ([]*models.SensorReading, error)
	GetOwnedDevice(ctx context.Context, userID uint, idOrUID string) (*models.Device, error)
}

// Hub maintains live subscriber groups keyed by owner identity and stream,
// and fans published events out to every connection in a group. The group
// table is the only shared mutable state; all membership changes go
// through the mutex. There is no replay: connections joining after a
// publish never see it.
type Hub struct {
	log    *logrus.Logger
	source DataSource

	mu     sync.Mutex
	groups map[groupKey]map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	key  groupKey
}

// NewHub creates a hub with no subscribers. SetDataSource must be called
// before the hub serves connections; the hub is created first because the
// service layer publishes through it.
func NewHub(log *logrus.Logger) *Hub {
	if log == nil {
		log = logrus.New()
	}
	return &Hub{
		log:    log,
		groups: make(map[groupKey]map[*client]struct{}),
	}
}

// SetDataSource wires the layer that answers client data requests
func (h *Hub) SetDataSource(source DataSource) {
	h.source = source
}

// GroupSize reports the current number of connections in a user's group
func (h *Hub) GroupSize(userID uint, stream Stream) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.groups[groupKey{userID: userID, stream: stream}])
}

// PublishReading delivers a reading event to the owner's sensor group
func (h *Hub) PublishReading(userID uint, reading *models.SensorReading) {
	h.publish(groupKey{userID: userID, stream: StreamSensors}, serverMessage{
		Type: MsgSensorData,
		Data: NewReadingPayload(reading),
	})
}

// PublishAlert delivers an alert event to both of the owner's groups: the
// dedicated alert feed and the combined sensor feed. The two deliveries
// are independent.
func (h *Hub) PublishAlert(userID uint, alert *models.Alert) {
	payload := NewAlertPayload(alert)

	h.publish(groupKey{userID: userID, stream: StreamAlerts}, serverMessage{
		Type:      MsgNewAlert,
		Alert:     payload,
		Timestamp: alert.CreatedAt.UTC().Format(time.RFC3339),
	})
	h.publish(groupKey{userID: userID, stream: StreamSensors}, serverMessage{
		Type:  MsgAlert,
		Alert: payload,
	})
}

// publish sends one event to every connection currently in the group.
// Clients that cannot keep up are dropped rather than blocking the
// publisher.
func (h *Hub) publish(key groupKey, msg serverMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.WithError(err).Error("Failed to marshal event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.groups[key] {
		select {
		case c.send <- data:
		default:
			// Slow client; drop it.
			h.removeLocked(c)
		}
	}
}

// ServeConn runs a live connection for an already-authenticated user until
// the client disconnects. It joins the user's group for the stream,
// confirms the connection, then services inbound control messages. The
// connection is removed from its group before ServeConn returns.
func (h *Hub) ServeConn(conn *websocket.Conn, userID uint, stream Stream) {
	c := &client{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		key:  groupKey{userID: userID, stream: stream},
	}

	h.mu.Lock()
	group, ok := h.groups[c.key]
	if !ok {
		group = make(map[*client]struct{})
		h.groups[c.key] = group
	}
	group[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)

	h.sendMessage(c, serverMessage{
		Type:    MsgConnectionEstablished,
		Message: fmt.Sprintf("Live %s feed connected (user %d)", stream, userID),
	})

	h.readPump(c)
}

// remove takes a client out of its group and tears the connection down.
// Safe to call more than once; a publish racing the close simply finds the
// group entry gone.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	group, ok := h.groups[c.key]
	if !ok {
		return
	}
	if _, ok := group[c]; !ok {
		return
	}
	delete(group, c)
	if len(group) == 0 {
		delete(h.groups, c.key)
	}
	close(c.send)
	_ = c.conn.Close()
}

// sendMessage queues a message for one client, dropping the client if its
// buffer is full
func (h *Hub) sendMessage(c *client, msg serverMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.WithError(err).Error("Failed to marshal message")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if group, ok := h.groups[c.key]; ok {
		if _, ok := group[c]; ok {
			select {
			case c.send <- data:
			default:
				h.removeLocked(c)
			}
		}
	}
}

func (h *Hub) readPump(c *client) {
	defer h.remove(c)
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendMessage(c, serverMessage{
				Type:    MsgError,
				Message: "Invalid JSON message",
			})
			continue
		}

		h.handleClientMessage(c, msg)
	}
}

// handleClientMessage services the control messages a viewer may send.
// Only the sensor stream accepts them; the alert stream is send-only.
func (h *Hub) handleClientMessage(c *client, msg clientMessage) {
	if c.key.stream != StreamSensors {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch msg.Type {
	case MsgSubscribeDevice:
		// The subscription is an acknowledgement only: the group still
		// delivers events for all of the owner's devices
		device, err := h.source.GetOwnedDevice(ctx, c.key.userID, msg.DeviceID)
		if err != nil {
			h.sendMessage(c, serverMessage{
				Type:    MsgError,
				Message: "Device not found or not accessible",
			})
			return
		}

		h.sendMessage(c, serverMessage{
			Type:     MsgSubscriptionSuccess,
			DeviceID: device.UID,
			Message:  fmt.Sprintf("Subscribed to device %s", device.Name),
		})

	case MsgGetLatestData:
		readings, err := h.source.LatestReadings(ctx, c.key.userID)
		if err != nil {
			h.log.WithError(err).Error("Failed to load latest readings")
			h.sendMessage(c, serverMessage{
				Type:    MsgError,
				Message: "Failed to load latest data",
			})
			return
		}

		payloads := make([]ReadingPayload, 0, len(readings))
		for _, reading := range readings {
			payloads = append(payloads, NewReadingPayload(reading))
		}
		h.sendMessage(c, serverMessage{
			Type: MsgLatestData,
			Data: payloads,
		})

	default:
		h.sendMessage(c, serverMessage{
			Type:    MsgError,
			Message: fmt.Sprintf("Unknown message type: %s", msg.Type),
		})
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}
