package service

import (
	"fmt"

	"example.com/solar/services/sensor/internal/models"
)

// AlertEvent is one threshold breach produced by evaluating a reading
// against a policy. It carries everything needed to persist an Alert row.
type AlertEvent struct {
	Type      models.AlertType
	Threshold float64
	Value     float64
	Message   string
}

// EvaluateReading checks a reading against the owner's thresholds and
// returns the triggered events. Metrics are evaluated independently, but
// each metric fires at most one branch (a value cannot be both high and
// low). Emission order is fixed: temperature, then humidity, then air
// quality. Callers and tests rely on it.
//
// models.AlertTypeUVHigh is part of the taxonomy but has no firing rule;
// it is reserved for readings-based UV alerting that was never enabled.
func EvaluateReading(reading *models.SensorReading, policy *models.AlertPolicy) []AlertEvent {
	var events []AlertEvent

	if reading.Temperature > policy.TempHighThreshold {
		events = append(events, AlertEvent{
			Type:      models.AlertTypeTemperatureHigh,
			Threshold: policy.TempHighThreshold,
			Value:     reading.Temperature,
			Message: fmt.Sprintf("High temperature warning: %.1f°C (threshold: %.1f°C)",
				reading.Temperature, policy.TempHighThreshold),
		})
	} else if reading.Temperature < policy.TempLowThreshold {
		events = append(events, AlertEvent{
			Type:      models.AlertTypeTemperatureLow,
			Threshold: policy.TempLowThreshold,
			Value:     reading.Temperature,
			Message: fmt.Sprintf("Low temperature warning: %.1f°C (threshold: %.1f°C)",
				reading.Temperature, policy.TempLowThreshold),
		})
	}

	if reading.Humidity > policy.HumidityHighThreshold {
		events = append(events, AlertEvent{
			Type:      models.AlertTypeHumidityHigh,
			Threshold: policy.HumidityHighThreshold,
			Value:     reading.Humidity,
			Message: fmt.Sprintf("High humidity warning: %.1f%% (threshold: %.1f%%)",
				reading.Humidity, policy.HumidityHighThreshold),
		})
	} else if reading.Humidity < policy.HumidityLowThreshold {
		events = append(events, AlertEvent{
			Type:      models.AlertTypeHumidityLow,
			Threshold: policy.HumidityLowThreshold,
			Value:     reading.Humidity,
			Message: fmt.Sprintf("Low humidity warning: %.1f%% (threshold: %.1f%%)",
				reading.Humidity, policy.HumidityLowThreshold),
		})
	}

	if reading.AirQuality > policy.AirQualityThreshold {
		events = append(events, AlertEvent{
			Type:      models.AlertTypeAirQualityBad,
			Threshold: policy.AirQualityThreshold,
			Value:     reading.AirQuality,
			Message: fmt.Sprintf("Poor air quality: %.1f (threshold: %.1f)",
				reading.AirQuality, policy.AirQualityThreshold),
		})
	}

	return events
}
