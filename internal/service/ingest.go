package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"example.com/solar/services/sensor/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// IngestRequest is the payload a device submits with each measurement set.
// Pointers distinguish absent fields from zero values during validation.
type IngestRequest struct {
	APIKey      string          `json:"api_key"`
	Temperature *float64        `json:"temperature"`
	Humidity    *float64        `json:"humidity"`
	AirQuality  *float64        `json:"air_quality"`
	UVIndex     *float64        `json:"uv_index"`
	LightLevel  *float64        `json:"light_level"`
	RawData     json.RawMessage `json:"raw_data"`
}

// AlertNotification is the message handed to the notification relay queue
// for each created alert
type AlertNotification struct {
	AlertID        uint             `json:"alert_id"`
	DeviceUID      string           `json:"device_uid"`
	DeviceName     string           `json:"device_name"`
	UserID         uint             `json:"user_id"`
	AlertType      models.AlertType `json:"alert_type"`
	ThresholdValue float64          `json:"threshold_value"`
	CurrentValue   float64          `json:"current_value"`
	Message        string           `json:"message"`
	Email          bool             `json:"email"`
	Push           bool             `json:"push"`
	CreatedAt      time.Time        `json:"created_at"`
}

// validateIngestRequest checks payload shape and field ranges. The ranges
// mirror the stored model constraints: temperature [-50,100], humidity
// [0,100], air quality [0,1000], uv index [0,15], light level >= 0.
func validateIngestRequest(req *IngestRequest) *ValidationError {
	vErr := newValidationError()

	if req.APIKey == "" {
		vErr.Fields["api_key"] = "this field is required"
	}

	switch {
	case req.Temperature == nil:
		vErr.Fields["temperature"] = "this field is required"
	case *req.Temperature < -50 || *req.Temperature > 100:
		vErr.Fields["temperature"] = "must be between -50 and 100"
	}

	switch {
	case req.Humidity == nil:
		vErr.Fields["humidity"] = "this field is required"
	case *req.Humidity < 0 || *req.Humidity > 100:
		vErr.Fields["humidity"] = "must be between 0 and 100"
	}

	switch {
	case req.AirQuality == nil:
		vErr.Fields["air_quality"] = "this field is required"
	case *req.AirQuality < 0 || *req.AirQuality > 1000:
		vErr.Fields["air_quality"] = "must be between 0 and 1000"
	}

	if req.UVIndex != nil && (*req.UVIndex < 0 || *req.UVIndex > 15) {
		vErr.Fields["uv_index"] = "must be between 0 and 15"
	}

	if req.LightLevel != nil && *req.LightLevel < 0 {
		vErr.Fields["light_level"] = "must be greater than or equal to 0"
	}

	if len(vErr.Fields) > 0 {
		return vErr
	}
	return nil
}

// IngestReading runs the full pipeline for one device submission:
// validate, authenticate the credential, persist the reading, evaluate the
// owner's thresholds, persist any alerts as one batch, then publish the
// reading and alerts to live subscribers. The reading persist is the
// durability point: nothing is published before it succeeds, and publish
// failures after it never roll anything back.
func (s *service) IngestReading(ctx context.Context, req *IngestRequest) (*models.SensorReading, error) {
	if vErr := validateIngestRequest(req); vErr != nil {
		return nil, vErr
	}

	device, err := s.authenticateDevice(ctx, req.APIKey)
	if err != nil {
		return nil, err
	}

	reading := &models.SensorReading{
		DeviceID:    device.ID,
		Temperature: *req.Temperature,
		Humidity:    *req.Humidity,
		AirQuality:  *req.AirQuality,
		UVIndex:     req.UVIndex,
		LightLevel:  req.LightLevel,
		Timestamp:   time.Now().UTC(),
		RawData:     string(req.RawData),
	}
	if err := s.repo.CreateReading(ctx, reading); err != nil {
		return nil, fmt.Errorf("failed to persist reading: %w", err)
	}

	policy, err := s.repo.GetOrCreateAlertPolicy(ctx, device.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load alert policy: %w", err)
	}

	events := EvaluateReading(reading, policy)
	alerts := make([]*models.Alert, 0, len(events))
	for _, event := range events {
		alerts = append(alerts, &models.Alert{
			DeviceID:       device.ID,
			AlertType:      event.Type,
			ThresholdValue: event.Threshold,
			CurrentValue:   event.Value,
			Status:         models.AlertStatusActive,
			Message:        event.Message,
		})
	}
	if len(alerts) > 0 {
		if err := s.repo.CreateAlertBatch(ctx, alerts); err != nil {
			return nil, fmt.Errorf("failed to persist alerts: %w", err)
		}
	}

	// Everything below is best-effort live delivery; the data is durable
	reading.Device = device
	s.publisher.PublishReading(device.UserID, reading)

	for _, alert := range alerts {
		alert.Device = device
		s.publisher.PublishAlert(device.UserID, alert)
	}

	s.enqueueNotifications(ctx, device, policy, alerts)

	s.log.WithFields(logrus.Fields{
		"device":  device.UID,
		"reading": reading.ID,
		"alerts":  len(alerts),
	}).Info("Reading ingested")

	return reading, nil
}

// authenticateDevice resolves an API key to an active device, going through
// the Redis read-through cache first. Unknown and inactive credentials are
// both reported as ErrDeviceAuth.
func (s *service) authenticateDevice(ctx context.Context, apiKey string) (*models.Device, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, deviceCacheKey(apiKey)); err == nil {
			var device models.Device
			if err := json.Unmarshal([]byte(cached), &device); err == nil {
				if !device.Active {
					return nil, ErrDeviceAuth
				}
				return &device, nil
			}
		}
	}

	device, err := s.repo.FindActiveDeviceByAPIKey(ctx, apiKey)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeviceAuth
		}
		return nil, fmt.Errorf("failed to look up device: %w", err)
	}

	s.cacheDevice(ctx, device)
	return device, nil
}

// enqueueNotifications relays created alerts to the notification service
// queue when the owner has a channel enabled. Failures are logged only.
func (s *service) enqueueNotifications(ctx context.Context, device *models.Device, policy *models.AlertPolicy, alerts []*models.Alert) {
	if s.notifier == nil || len(alerts) == 0 {
		return
	}
	if !policy.EmailNotifications && !policy.PushNotifications {
		return
	}

	for _, alert := range alerts {
		notification := AlertNotification{
			AlertID:        alert.ID,
			DeviceUID:      device.UID,
			DeviceName:     device.Name,
			UserID:         device.UserID,
			AlertType:      alert.AlertType,
			ThresholdValue: alert.ThresholdValue,
			CurrentValue:   alert.CurrentValue,
			Message:        alert.Message,
			Email:          policy.EmailNotifications,
			Push:           policy.PushNotifications,
			CreatedAt:      alert.CreatedAt,
		}
		if err := s.notifier.SendMessage(ctx, notification, device.UID); err != nil {
			s.log.WithError(err).WithField("alert", alert.ID).Warn("Failed to enqueue alert notification")
		}
	}
}
