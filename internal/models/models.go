package models

import (
	"time"

	"gorm.io/gorm"
)

// Model is the base model with common fields for all database entities
type Model struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// Device model represents a registered telemetry source
type Device struct {
	Model
	UID      string `json:"uid" gorm:"uniqueIndex;Column:uuid"`
	Name     string `json:"name" gorm:"Column:name"`
	Location string `json:"location" gorm:"Column:location"`
	APIKey   string `json:"-" gorm:"uniqueIndex;Column:api_key"`
	Active   bool   `json:"active" gorm:"Column:active"`
	UserID   uint   `json:"user_id" gorm:"index;Column:user_id"`
}

// SensorReading model represents one timestamped set of measurements
// from a device. Readings are immutable once created; the timestamp is
// assigned by the server at persist time, never taken from the client.
type SensorReading struct {
	ID          uint      `json:"id" gorm:"primarykey"`
	Device      *Device   `json:"-" gorm:"foreignKey:DeviceID"`
	DeviceID    uint      `json:"device_id" gorm:"index:idx_readings_device_ts;Column:device_id"`
	Temperature float64   `json:"temperature" gorm:"Column:temperature"`
	Humidity    float64   `json:"humidity" gorm:"Column:humidity"`
	AirQuality  float64   `json:"air_quality" gorm:"Column:air_quality"`
	UVIndex     *float64  `json:"uv_index,omitempty" gorm:"Column:uv_index"`
	LightLevel  *float64  `json:"light_level,omitempty" gorm:"Column:light_level"`
	Timestamp   time.Time `json:"timestamp" gorm:"index:idx_readings_device_ts;index;Column:timestamp"`
	RawData     string    `json:"raw_data,omitempty" gorm:"type:text;Column:raw_data"`
}

// AlertType is an enum for threshold breach categories
type AlertType string

const (
	// AlertTypeTemperatureHigh fires when temperature exceeds the high threshold
	AlertTypeTemperatureHigh AlertType = "temperature_high"
	// AlertTypeTemperatureLow fires when temperature drops below the low threshold
	AlertTypeTemperatureLow AlertType = "temperature_low"
	// AlertTypeHumidityHigh fires when humidity exceeds the high threshold
	AlertTypeHumidityHigh AlertType = "humidity_high"
	// AlertTypeHumidityLow fires when humidity drops below the low threshold
	AlertTypeHumidityLow AlertType = "humidity_low"
	// AlertTypeAirQualityBad fires when the air quality index exceeds the threshold
	AlertTypeAirQualityBad AlertType = "air_quality_bad"
	// AlertTypeUVHigh is reserved; no evaluator rule currently fires it
	AlertTypeUVHigh AlertType = "uv_high"
)

// AlertStatus is an enum for the alert lifecycle
type AlertStatus string

const (
	// AlertStatusActive is the state every alert is created in
	AlertStatusActive AlertStatus = "active"
	// AlertStatusResolved marks an alert explicitly closed by the owner
	AlertStatusResolved AlertStatus = "resolved"
	// AlertStatusIgnored marks an alert explicitly dismissed by the owner
	AlertStatusIgnored AlertStatus = "ignored"
)

// Alert model records a threshold breach. Alerts have a lifecycle that is
// independent from the reading that triggered them; the pipeline only ever
// creates them in the active state.
type Alert struct {
	Model
	Device         *Device     `json:"-" gorm:"foreignKey:DeviceID"`
	DeviceID       uint        `json:"device_id" gorm:"index;Column:device_id"`
	AlertType      AlertType   `json:"alert_type" gorm:"Column:alert_type"`
	ThresholdValue float64     `json:"threshold_value" gorm:"Column:threshold_value"`
	CurrentValue   float64     `json:"current_value" gorm:"Column:current_value"`
	Status         AlertStatus `json:"status" gorm:"Column:status;default:'active'"`
	Message        string      `json:"message" gorm:"type:text;Column:message"`
	ResolvedAt     *time.Time  `json:"resolved_at,omitempty" gorm:"Column:resolved_at"`
}

// Alert policy defaults applied when a user has no stored policy yet.
const (
	DefaultTempHighThreshold     = 35.0
	DefaultTempLowThreshold      = 5.0
	DefaultHumidityHighThreshold = 80.0
	DefaultHumidityLowThreshold  = 20.0
	DefaultAirQualityThreshold   = 500.0
)

// AlertPolicy model holds per-user thresholds. One row per user, created
// lazily with defaults the first time a reading for that user needs it.
type AlertPolicy struct {
	Model
	UserID                uint    `json:"user_id" gorm:"uniqueIndex;Column:user_id"`
	TempHighThreshold     float64 `json:"temp_high_threshold" gorm:"Column:temp_high_threshold"`
	TempLowThreshold      float64 `json:"temp_low_threshold" gorm:"Column:temp_low_threshold"`
	HumidityHighThreshold float64 `json:"humidity_high_threshold" gorm:"Column:humidity_high_threshold"`
	HumidityLowThreshold  float64 `json:"humidity_low_threshold" gorm:"Column:humidity_low_threshold"`
	AirQualityThreshold   float64 `json:"air_quality_threshold" gorm:"Column:air_quality_threshold"`
	EmailNotifications    bool    `json:"email_notifications" gorm:"Column:email_notifications"`
	PushNotifications     bool    `json:"push_notifications" gorm:"Column:push_notifications"`
}

// DefaultAlertPolicy returns a policy populated with the stock thresholds
func DefaultAlertPolicy(userID uint) *AlertPolicy {
	return &AlertPolicy{
		UserID:                userID,
		TempHighThreshold:     DefaultTempHighThreshold,
		TempLowThreshold:      DefaultTempLowThreshold,
		HumidityHighThreshold: DefaultHumidityHighThreshold,
		HumidityLowThreshold:  DefaultHumidityLowThreshold,
		AirQualityThreshold:   DefaultAirQualityThreshold,
		EmailNotifications:    true,
		PushNotifications:     true,
	}
}

// DeviceStats holds aggregate reading information for one device
type DeviceStats struct {
	DeviceID        uint       `json:"device_id"`
	DeviceUID       string     `json:"device_uid"`
	DeviceName      string     `json:"device_name"`
	TotalRecords    int64      `json:"total_records"`
	LatestTimestamp *time.Time `json:"latest_timestamp"`
	AvgTemperature  float64    `json:"avg_temperature"`
	AvgHumidity     float64    `json:"avg_humidity"`
	AvgAirQuality   float64    `json:"avg_air_quality"`
	ActiveAlerts    int64      `json:"active_alerts"`
}
