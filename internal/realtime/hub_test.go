package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"example.com/solar/services/sensor/internal/models"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// stubSource backs client data requests in hub tests
type stubSource struct {
	readings []*models.SensorReading
	devices  map[string]*models.Device
}

func (s *stubSource) LatestReadings(ctx context.Context, userID uint) ([]*models.SensorReading, error) {
	return s.readings, nil
}

func (s *stubSource) GetOwnedDevice(ctx context.Context, userID uint, idOrUID string) (*models.Device, error) {
	if device, ok := s.devices[idOrUID]; ok {
		return device, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func newTestHub() *Hub {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	hub := NewHub(log)
	hub.SetDataSource(&stubSource{})
	return hub
}

// dialHub connects a test client to the hub through a real websocket
// handshake and consumes the connection_established greeting
func dialHub(t *testing.T, hub *Hub, userID uint, stream Stream) *websocket.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		go hub.ServeConn(conn, userID, stream)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	greeting := readMessage(t, conn)
	require.Equal(t, MsgConnectionEstablished, greeting["type"])

	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

func testReading() *models.SensorReading {
	return &models.SensorReading{
		ID:          10,
		DeviceID:    7,
		Temperature: 22.5,
		Humidity:    55,
		AirQuality:  120,
		Timestamp:   time.Now().UTC(),
	}
}

func TestHubPublishReadingReachesAllGroupMembers(t *testing.T) {
	hub := newTestHub()

	first := dialHub(t, hub, 1, StreamSensors)
	second := dialHub(t, hub, 1, StreamSensors)
	require.Equal(t, 2, hub.GroupSize(1, StreamSensors))

	hub.PublishReading(1, testReading())

	for _, conn := range []*websocket.Conn{first, second} {
		msg := readMessage(t, conn)
		require.Equal(t, MsgSensorData, msg["type"])
		data := msg["data"].(map[string]interface{})
		require.Equal(t, 22.5, data["temperature"])
	}
}

func TestHubGroupIsolation(t *testing.T) {
	hub := newTestHub()

	owner := dialHub(t, hub, 1, StreamSensors)
	other := dialHub(t, hub, 2, StreamSensors)

	hub.PublishReading(1, testReading())

	msg := readMessage(t, owner)
	require.Equal(t, MsgSensorData, msg["type"])

	// Another user's group never sees the event
	expectSilence(t, other)
}

func TestHubAlertDualDelivery(t *testing.T) {
	hub := newTestHub()

	sensorConn := dialHub(t, hub, 1, StreamSensors)
	alertConn := dialHub(t, hub, 1, StreamAlerts)

	alert := &models.Alert{
		DeviceID:       7,
		AlertType:      models.AlertTypeTemperatureHigh,
		ThresholdValue: 35,
		CurrentValue:   36,
		Status:         models.AlertStatusActive,
		Message:        "High temperature warning: 36.0°C (threshold: 35.0°C)",
	}
	alert.ID = 3
	hub.PublishAlert(1, alert)

	// The alert feed gets the new_alert envelope with a timestamp
	alertMsg := readMessage(t, alertConn)
	require.Equal(t, MsgNewAlert, alertMsg["type"])
	require.NotEmpty(t, alertMsg["timestamp"])
	payload := alertMsg["alert"].(map[string]interface{})
	require.Equal(t, string(models.AlertTypeTemperatureHigh), payload["alert_type"])

	// The combined feed gets the same alert under its own envelope
	sensorMsg := readMessage(t, sensorConn)
	require.Equal(t, MsgAlert, sensorMsg["type"])
}

func TestHubAlertStreamDoesNotReceiveReadings(t *testing.T) {
	hub := newTestHub()

	alertConn := dialHub(t, hub, 1, StreamAlerts)
	hub.PublishReading(1, testReading())

	expectSilence(t, alertConn)
}

func TestHubNoReplayForLateJoiners(t *testing.T) {
	hub := newTestHub()

	hub.PublishReading(1, testReading())

	late := dialHub(t, hub, 1, StreamSensors)
	expectSilence(t, late)
}

func TestHubRemovesClosedConnections(t *testing.T) {
	hub := newTestHub()

	conn := dialHub(t, hub, 1, StreamSensors)
	require.Equal(t, 1, hub.GroupSize(1, StreamSensors))

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return hub.GroupSize(1, StreamSensors) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHubGetLatestData(t *testing.T) {
	hub := newTestHub()
	hub.SetDataSource(&stubSource{readings: []*models.SensorReading{testReading()}})

	conn := dialHub(t, hub, 1, StreamSensors)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": MsgGetLatestData}))

	msg := readMessage(t, conn)
	require.Equal(t, MsgLatestData, msg["type"])
	data := msg["data"].([]interface{})
	require.Len(t, data, 1)
}

func TestHubSubscribeDevice(t *testing.T) {
	hub := newTestHub()
	device := &models.Device{UID: "abc-123", Name: "Greenhouse Sensor", UserID: 1}
	device.ID = 7
	hub.SetDataSource(&stubSource{devices: map[string]*models.Device{"abc-123": device}})

	conn := dialHub(t, hub, 1, StreamSensors)

	require.NoError(t, conn.WriteJSON(map[string]string{
		"type":      MsgSubscribeDevice,
		"device_id": "abc-123",
	}))
	msg := readMessage(t, conn)
	require.Equal(t, MsgSubscriptionSuccess, msg["type"])
	require.Equal(t, "abc-123", msg["device_id"])

	// A device the viewer does not own is indistinguishable from a
	// missing one
	require.NoError(t, conn.WriteJSON(map[string]string{
		"type":      MsgSubscribeDevice,
		"device_id": "someone-elses",
	}))
	msg = readMessage(t, conn)
	require.Equal(t, MsgError, msg["type"])
}

func TestHubUnknownMessageType(t *testing.T) {
	hub := newTestHub()

	conn := dialHub(t, hub, 1, StreamSensors)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "bogus"}))
	msg := readMessage(t, conn)
	require.Equal(t, MsgError, msg["type"])
}
