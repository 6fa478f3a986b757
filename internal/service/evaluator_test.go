package service

import (
	"testing"

	"example.com/solar/services/sensor/internal/models"

	"github.com/stretchr/testify/require"
)

func defaultPolicy() *models.AlertPolicy {
	return models.DefaultAlertPolicy(1)
}

func TestEvaluateReadingNoBreaches(t *testing.T) {
	reading := &models.SensorReading{
		Temperature: 20,
		Humidity:    50,
		AirQuality:  100,
	}

	events := EvaluateReading(reading, defaultPolicy())
	require.Empty(t, events)
}

func TestEvaluateReadingSingleBreach(t *testing.T) {
	reading := &models.SensorReading{
		Temperature: 36,
		Humidity:    50,
		AirQuality:  100,
	}

	events := EvaluateReading(reading, defaultPolicy())
	require.Len(t, events, 1)
	require.Equal(t, models.AlertTypeTemperatureHigh, events[0].Type)
	require.Equal(t, 35.0, events[0].Threshold)
	require.Equal(t, 36.0, events[0].Value)
	require.Equal(t, "High temperature warning: 36.0°C (threshold: 35.0°C)", events[0].Message)
}

func TestEvaluateReadingMultipleBreachesOrdered(t *testing.T) {
	reading := &models.SensorReading{
		Temperature: 36,
		Humidity:    85,
		AirQuality:  600,
	}

	events := EvaluateReading(reading, defaultPolicy())
	require.Len(t, events, 3)

	// Emission order is fixed: temperature, humidity, air quality
	require.Equal(t, models.AlertTypeTemperatureHigh, events[0].Type)
	require.Equal(t, models.AlertTypeHumidityHigh, events[1].Type)
	require.Equal(t, models.AlertTypeAirQualityBad, events[2].Type)
	require.Equal(t, "Poor air quality: 600.0 (threshold: 500.0)", events[2].Message)
}

func TestEvaluateReadingLowBreaches(t *testing.T) {
	reading := &models.SensorReading{
		Temperature: -10,
		Humidity:    10,
		AirQuality:  100,
	}

	events := EvaluateReading(reading, defaultPolicy())
	require.Len(t, events, 2)
	require.Equal(t, models.AlertTypeTemperatureLow, events[0].Type)
	require.Equal(t, "Low temperature warning: -10.0°C (threshold: 5.0°C)", events[0].Message)
	require.Equal(t, models.AlertTypeHumidityLow, events[1].Type)
}

func TestEvaluateReadingExactThresholdDoesNotFire(t *testing.T) {
	// Breaches are strict comparisons; a value sitting exactly on the
	// threshold is still in range
	reading := &models.SensorReading{
		Temperature: 35,
		Humidity:    80,
		AirQuality:  500,
	}

	events := EvaluateReading(reading, defaultPolicy())
	require.Empty(t, events)
}

func TestEvaluateReadingCustomPolicy(t *testing.T) {
	policy := &models.AlertPolicy{
		UserID:                1,
		TempHighThreshold:     25,
		TempLowThreshold:      18,
		HumidityHighThreshold: 60,
		HumidityLowThreshold:  30,
		AirQualityThreshold:   150,
	}
	reading := &models.SensorReading{
		Temperature: 26,
		Humidity:    50,
		AirQuality:  200,
	}

	events := EvaluateReading(reading, policy)
	require.Len(t, events, 2)
	require.Equal(t, models.AlertTypeTemperatureHigh, events[0].Type)
	require.Equal(t, 25.0, events[0].Threshold)
	require.Equal(t, models.AlertTypeAirQualityBad, events[1].Type)
}

func TestEvaluateReadingHighUVDoesNotFire(t *testing.T) {
	// uv_high exists in the taxonomy but has no firing rule
	uv := 14.0
	reading := &models.SensorReading{
		Temperature: 20,
		Humidity:    50,
		AirQuality:  100,
		UVIndex:     &uv,
	}

	events := EvaluateReading(reading, defaultPolicy())
	require.Empty(t, events)
}
