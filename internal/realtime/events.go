package realtime

import (
	"encoding/json"
	"time"

	"example.com/solar/services/sensor/internal/models"
)

// Server message types emitted to websocket clients
const (
	MsgConnectionEstablished = "connection_established"
	MsgSubscriptionSuccess   = "subscription_success"
	MsgError                 = "error"
	MsgLatestData            = "latest_data"
	MsgSensorData            = "sensor_data"
	MsgAlert                 = "alert"
	MsgNewAlert              = "new_alert"
)

// Client message types accepted from websocket clients
const (
	MsgSubscribeDevice = "subscribe_device"
	MsgGetLatestData   = "get_latest_data"
)

// ReadingPayload is the wire form of a sensor reading event
type ReadingPayload struct {
	ID             uint            `json:"id"`
	DeviceID       uint            `json:"device_id"`
	DeviceUID      string          `json:"device_uid,omitempty"`
	DeviceName     string          `json:"device_name,omitempty"`
	DeviceLocation string          `json:"device_location,omitempty"`
	Temperature    float64         `json:"temperature"`
	Humidity       float64         `json:"humidity"`
	AirQuality     float64         `json:"air_quality"`
	UVIndex        *float64        `json:"uv_index,omitempty"`
	LightLevel     *float64        `json:"light_level,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
	RawData        json.RawMessage `json:"raw_data,omitempty"`
}

// NewReadingPayload serializes a reading, folding in device display fields
// when the association is loaded
func NewReadingPayload(reading *models.SensorReading) ReadingPayload {
	payload := ReadingPayload{
		ID:          reading.ID,
		DeviceID:    reading.DeviceID,
		Temperature: reading.Temperature,
		Humidity:    reading.Humidity,
		AirQuality:  reading.AirQuality,
		UVIndex:     reading.UVIndex,
		LightLevel:  reading.LightLevel,
		Timestamp:   reading.Timestamp,
	}
	if reading.RawData != "" {
		payload.RawData = json.RawMessage(reading.RawData)
	}
	if reading.Device != nil {
		payload.DeviceUID = reading.Device.UID
		payload.DeviceName = reading.Device.Name
		payload.DeviceLocation = reading.Device.Location
	}
	return payload
}

// AlertPayload is the wire form of an alert event
type AlertPayload struct {
	ID             uint               `json:"id"`
	DeviceID       uint               `json:"device_id"`
	DeviceUID      string             `json:"device_uid,omitempty"`
	DeviceName     string             `json:"device_name,omitempty"`
	AlertType      models.AlertType   `json:"alert_type"`
	ThresholdValue float64            `json:"threshold_value"`
	CurrentValue   float64            `json:"current_value"`
	Status         models.AlertStatus `json:"status"`
	Message        string             `json:"message"`
	CreatedAt      time.Time          `json:"created_at"`
	ResolvedAt     *time.Time         `json:"resolved_at,omitempty"`
}

// NewAlertPayload serializes an alert, folding in device display fields
// when the association is loaded
func NewAlertPayload(alert *models.Alert) AlertPayload {
	payload := AlertPayload{
		ID:             alert.ID,
		DeviceID:       alert.DeviceID,
		AlertType:      alert.AlertType,
		ThresholdValue: alert.ThresholdValue,
		CurrentValue:   alert.CurrentValue,
		Status:         alert.Status,
		Message:        alert.Message,
		CreatedAt:      alert.CreatedAt,
		ResolvedAt:     alert.ResolvedAt,
	}
	if alert.Device != nil {
		payload.DeviceUID = alert.Device.UID
		payload.DeviceName = alert.Device.Name
	}
	return payload
}

// serverMessage is the envelope for everything sent to a client
type serverMessage struct {
	Type      string      `json:"type"`
	Message   string      `json:"message,omitempty"`
	DeviceID  string      `json:"device_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Alert     interface{} `json:"alert,omitempty"`
	Timestamp string      `json:"timestamp,omitempty"`
}

// clientMessage is the envelope for everything received from a client
type clientMessage struct {
	Type     string `json:"type"`
	DeviceID string `json:"device_id"`
}
