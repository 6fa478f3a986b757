package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"example.com/solar/services/sensor/internal/cache"
	"example.com/solar/services/sensor/internal/messaging"
	"example.com/solar/services/sensor/internal/models"
	"example.com/solar/services/sensor/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// EventPublisher delivers reading and alert events to live subscribers.
// Implemented by the realtime hub; delivery is best-effort and must never
// block or fail the ingestion pipeline.
type EventPublisher interface {
	PublishReading(userID uint, reading *models.SensorReading)
	PublishAlert(userID uint, alert *models.Alert)
}

// Service defines the business logic operations
type Service interface {
	// Ingestion pipeline (device-facing)
	IngestReading(ctx context.Context, req *IngestRequest) (*models.SensorReading, error)

	// Device operations
	RegisterDevice(ctx context.Context, device *models.Device) error
	GetOwnedDevice(ctx context.Context, userID uint, idOrUID string) (*models.Device, error)
	ListDevices(ctx context.Context, userID uint) ([]*models.Device, error)
	UpdateDeviceStatus(ctx context.Context, userID, deviceID uint, active bool) error

	// Reading queries
	ListReadings(ctx context.Context, userID uint, filter repository.ReadingFilter) ([]*models.SensorReading, error)
	LatestReadings(ctx context.Context, userID uint) ([]*models.SensorReading, error)
	DeviceStatistics(ctx context.Context, userID uint) ([]*models.DeviceStats, error)

	// Alert operations
	ListAlerts(ctx context.Context, userID uint, status models.AlertStatus) ([]*models.Alert, error)
	ResolveAlert(ctx context.Context, userID, alertID uint) (*models.Alert, error)
	IgnoreAlert(ctx context.Context, userID, alertID uint) (*models.Alert, error)

	// Alert settings
	GetSettings(ctx context.Context, userID uint) (*models.AlertPolicy, error)
	UpdateSettings(ctx context.Context, userID uint, update *models.AlertPolicy) (*models.AlertPolicy, error)

	// Dashboard
	DashboardSummary(ctx context.Context, userID uint) (*DashboardSummary, error)
}

// service is an implementation of the Service interface
type service struct {
	repo      repository.Repository
	cache     cache.RedisClient
	publisher EventPublisher
	notifier  messaging.ServiceBusClient
	log       *logrus.Logger
}

// ServiceConfig holds the configuration for the service
type ServiceConfig struct {
	Repository repository.Repository
	Cache      cache.RedisClient
	Publisher  EventPublisher
	Notifier   messaging.ServiceBusClient
	Logger     *logrus.Logger
}

// NewService creates a new service instance
func NewService(config ServiceConfig) (Service, error) {
	if config.Repository == nil {
		return nil, errors.New("repository is required")
	}
	if config.Publisher == nil {
		return nil, errors.New("event publisher is required")
	}
	if config.Logger == nil {
		config.Logger = logrus.New() // Default logger
	}

	return &service{
		repo:      config.Repository,
		cache:     config.Cache,
		publisher: config.Publisher,
		notifier:  config.Notifier,
		log:       config.Logger,
	}, nil
}

func deviceCacheKey(apiKey string) string {
	return fmt.Sprintf("device:apikey:%s", apiKey)
}

// Device operations implementation

func (s *service) RegisterDevice(ctx context.Context, device *models.Device) error {
	// Generate identifiers if not provided
	if device.UID == "" {
		device.UID = uuid.New().String()
	}
	device.APIKey = uuid.New().String()
	device.Active = true

	if err := s.repo.CreateDevice(ctx, device); err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}

	s.cacheDevice(ctx, device)
	return nil
}

func (s *service) GetOwnedDevice(ctx context.Context, userID uint, idOrUID string) (*models.Device, error) {
	device, err := s.repo.FindDeviceByUID(ctx, idOrUID)
	if err != nil {
		// Fall back to a numeric ID lookup
		id, convErr := strconv.ParseUint(idOrUID, 10, 64)
		if convErr != nil {
			return nil, err
		}
		device, err = s.repo.FindDeviceByID(ctx, uint(id))
		if err != nil {
			return nil, err
		}
	}

	// Ownership check: a foreign device looks exactly like a missing one
	if device.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}

	return device, nil
}

func (s *service) ListDevices(ctx context.Context, userID uint) ([]*models.Device, error) {
	return s.repo.ListDevicesByUser(ctx, userID)
}

func (s *service) UpdateDeviceStatus(ctx context.Context, userID, deviceID uint, active bool) error {
	device, err := s.repo.FindDeviceByID(ctx, deviceID)
	if err != nil {
		return err
	}
	if device.UserID != userID {
		return gorm.ErrRecordNotFound
	}

	device.Active = active
	if err := s.repo.UpdateDevice(ctx, device); err != nil {
		return err
	}

	// Drop the credential cache entry so a deactivated device cannot keep
	// ingesting through a stale cached lookup
	if s.cache != nil {
		if err := s.cache.Delete(ctx, deviceCacheKey(device.APIKey)); err != nil {
			s.log.WithError(err).Warn("Failed to invalidate device cache entry")
		}
	}

	return nil
}

// cacheDevice stores the device under its credential for fast ingest
// lookups. Failures are logged only; the database stays authoritative.
func (s *service) cacheDevice(ctx context.Context, device *models.Device) {
	if s.cache == nil {
		return
	}
	deviceJSON, err := json.Marshal(device)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, deviceCacheKey(device.APIKey), string(deviceJSON), 24*time.Hour); err != nil {
		s.log.WithError(err).Warn("Failed to cache device credential")
	}
}

// Reading queries implementation

func (s *service) ListReadings(ctx context.Context, userID uint, filter repository.ReadingFilter) ([]*models.SensorReading, error) {
	return s.repo.ListReadings(ctx, userID, filter)
}

// LatestReadings returns the most recent reading for each of the user's
// devices. Devices with no readings yet are skipped.
func (s *service) LatestReadings(ctx context.Context, userID uint) ([]*models.SensorReading, error) {
	devices, err := s.repo.ListDevicesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	readings := make([]*models.SensorReading, 0, len(devices))
	for _, device := range devices {
		reading, err := s.repo.LatestReadingForDevice(ctx, device.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, err
		}
		reading.Device = device
		readings = append(readings, reading)
	}

	return readings, nil
}

func (s *service) DeviceStatistics(ctx context.Context, userID uint) ([]*models.DeviceStats, error) {
	devices, err := s.repo.ListDevicesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := make([]*models.DeviceStats, 0, len(devices))
	for _, device := range devices {
		deviceStats, err := s.repo.GetDeviceReadingStats(ctx, device.ID)
		if err != nil {
			return nil, err
		}
		if deviceStats.TotalRecords == 0 {
			continue
		}

		deviceStats.DeviceID = device.ID
		deviceStats.DeviceUID = device.UID
		deviceStats.DeviceName = device.Name

		activeAlerts, err := s.repo.CountActiveAlertsForDevice(ctx, device.ID)
		if err != nil {
			return nil, err
		}
		deviceStats.ActiveAlerts = activeAlerts

		stats = append(stats, deviceStats)
	}

	return stats, nil
}

// Alert operations implementation

func (s *service) ListAlerts(ctx context.Context, userID uint, status models.AlertStatus) ([]*models.Alert, error) {
	return s.repo.ListAlerts(ctx, userID, status)
}

func (s *service) ResolveAlert(ctx context.Context, userID, alertID uint) (*models.Alert, error) {
	alert, err := s.repo.FindOwnedAlert(ctx, userID, alertID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	alert.Status = models.AlertStatusResolved
	alert.ResolvedAt = &now

	if err := s.repo.UpdateAlert(ctx, alert); err != nil {
		return nil, err
	}

	return alert, nil
}

func (s *service) IgnoreAlert(ctx context.Context, userID, alertID uint) (*models.Alert, error) {
	alert, err := s.repo.FindOwnedAlert(ctx, userID, alertID)
	if err != nil {
		return nil, err
	}

	alert.Status = models.AlertStatusIgnored

	if err := s.repo.UpdateAlert(ctx, alert); err != nil {
		return nil, err
	}

	return alert, nil
}

// Alert settings implementation

func (s *service) GetSettings(ctx context.Context, userID uint) (*models.AlertPolicy, error) {
	return s.repo.GetOrCreateAlertPolicy(ctx, userID)
}

func (s *service) UpdateSettings(ctx context.Context, userID uint, update *models.AlertPolicy) (*models.AlertPolicy, error) {
	policy, err := s.repo.GetOrCreateAlertPolicy(ctx, userID)
	if err != nil {
		return nil, err
	}

	policy.TempHighThreshold = update.TempHighThreshold
	policy.TempLowThreshold = update.TempLowThreshold
	policy.HumidityHighThreshold = update.HumidityHighThreshold
	policy.HumidityLowThreshold = update.HumidityLowThreshold
	policy.AirQualityThreshold = update.AirQualityThreshold
	policy.EmailNotifications = update.EmailNotifications
	policy.PushNotifications = update.PushNotifications

	if err := s.repo.UpdateAlertPolicy(ctx, policy); err != nil {
		return nil, err
	}

	return policy, nil
}

// Dashboard implementation

// DashboardLatestReading is one device's most recent measurement set,
// trimmed for the dashboard summary payload.
type DashboardLatestReading struct {
	DeviceName     string    `json:"device_name"`
	DeviceLocation string    `json:"device_location"`
	Temperature    float64   `json:"temperature"`
	Humidity       float64   `json:"humidity"`
	AirQuality     float64   `json:"air_quality"`
	Timestamp      time.Time `json:"timestamp"`
}

// DashboardSummary aggregates the user's fleet state for the dashboard
type DashboardSummary struct {
	TotalDevices      int                      `json:"total_devices"`
	ActiveDevices     int                      `json:"active_devices"`
	RecentDataCount   int64                    `json:"recent_data_count"`
	ActiveAlertsCount int64                    `json:"active_alerts_count"`
	LatestReadings    []DashboardLatestReading `json:"latest_readings"`
}

func (s *service) DashboardSummary(ctx context.Context, userID uint) (*DashboardSummary, error) {
	devices, err := s.repo.ListDevicesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := &DashboardSummary{
		TotalDevices:   len(devices),
		LatestReadings: []DashboardLatestReading{},
	}

	summary.RecentDataCount, err = s.repo.CountReadingsSince(ctx, userID, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}

	summary.ActiveAlertsCount, err = s.repo.CountActiveAlerts(ctx, userID)
	if err != nil {
		return nil, err
	}

	for _, device := range devices {
		if !device.Active {
			continue
		}
		summary.ActiveDevices++

		reading, err := s.repo.LatestReadingForDevice(ctx, device.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, err
		}

		summary.LatestReadings = append(summary.LatestReadings, DashboardLatestReading{
			DeviceName:     device.Name,
			DeviceLocation: device.Location,
			Temperature:    reading.Temperature,
			Humidity:       reading.Humidity,
			AirQuality:     reading.AirQuality,
			Timestamp:      reading.Timestamp,
		})
	}

	return summary, nil
}
