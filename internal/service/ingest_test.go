package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"example.com/solar/services/sensor/internal/models"
	"example.com/solar/services/sensor/internal/repository"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Mock repository for testing
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context, txRepo repository.Repository) error) error {
	args := m.Called(ctx, fn)
	return args.Error(0)
}

func (m *MockRepository) CreateDevice(ctx context.Context, device *models.Device) error {
	args := m.Called(ctx, device)
	return args.Error(0)
}

func (m *MockRepository) UpdateDevice(ctx context.Context, device *models.Device) error {
	args := m.Called(ctx, device)
	return args.Error(0)
}

func (m *MockRepository) FindDeviceByID(ctx context.Context, id uint) (*models.Device, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Device), args.Error(1)
}

func (m *MockRepository) FindDeviceByUID(ctx context.Context, uid string) (*models.Device, error) {
	args := m.Called(ctx, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Device), args.Error(1)
}

func (m *MockRepository) FindActiveDeviceByAPIKey(ctx context.Context, apiKey string) (*models.Device, error) {
	args := m.Called(ctx, apiKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Device), args.Error(1)
}

func (m *MockRepository) ListDevicesByUser(ctx context.Context, userID uint) ([]*models.Device, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Device), args.Error(1)
}

func (m *MockRepository) CreateReading(ctx context.Context, reading *models.SensorReading) error {
	args := m.Called(ctx, reading)
	return args.Error(0)
}

func (m *MockRepository) ListReadings(ctx context.Context, userID uint, filter repository.ReadingFilter) ([]*models.SensorReading, error) {
	args := m.Called(ctx, userID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.SensorReading), args.Error(1)
}

func (m *MockRepository) LatestReadingForDevice(ctx context.Context, deviceID uint) (*models.SensorReading, error) {
	args := m.Called(ctx, deviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SensorReading), args.Error(1)
}

func (m *MockRepository) CountReadingsSince(ctx context.Context, userID uint, since time.Time) (int64, error) {
	args := m.Called(ctx, userID, since)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) GetDeviceReadingStats(ctx context.Context, deviceID uint) (*models.DeviceStats, error) {
	args := m.Called(ctx, deviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DeviceStats), args.Error(1)
}

func (m *MockRepository) GetOrCreateAlertPolicy(ctx context.Context, userID uint) (*models.AlertPolicy, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AlertPolicy), args.Error(1)
}

func (m *MockRepository) UpdateAlertPolicy(ctx context.Context, policy *models.AlertPolicy) error {
	args := m.Called(ctx, policy)
	return args.Error(0)
}

func (m *MockRepository) CreateAlertBatch(ctx context.Context, alerts []*models.Alert) error {
	args := m.Called(ctx, alerts)
	return args.Error(0)
}

func (m *MockRepository) ListAlerts(ctx context.Context, userID uint, status models.AlertStatus) ([]*models.Alert, error) {
	args := m.Called(ctx, userID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Alert), args.Error(1)
}

func (m *MockRepository) FindOwnedAlert(ctx context.Context, userID, alertID uint) (*models.Alert, error) {
	args := m.Called(ctx, userID, alertID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Alert), args.Error(1)
}

func (m *MockRepository) UpdateAlert(ctx context.Context, alert *models.Alert) error {
	args := m.Called(ctx, alert)
	return args.Error(0)
}

func (m *MockRepository) CountActiveAlerts(ctx context.Context, userID uint) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) CountActiveAlertsForDevice(ctx context.Context, deviceID uint) (int64, error) {
	args := m.Called(ctx, deviceID)
	return args.Get(0).(int64), args.Error(1)
}

// recordingPublisher captures published events for assertions
type recordingPublisher struct {
	readings []*models.SensorReading
	alerts   []*models.Alert
}

func (p *recordingPublisher) PublishReading(userID uint, reading *models.SensorReading) {
	p.readings = append(p.readings, reading)
}

func (p *recordingPublisher) PublishAlert(userID uint, alert *models.Alert) {
	p.alerts = append(p.alerts, alert)
}

// failingCache simulates a Redis outage
type failingCache struct{}

func (failingCache) Get(ctx context.Context, key string) (string, error) {
	return "", errors.New("redis unavailable")
}

func (failingCache) Set(ctx context.Context, key, value string, expiration time.Duration) error {
	return errors.New("redis unavailable")
}

func (failingCache) Delete(ctx context.Context, key string) error {
	return errors.New("redis unavailable")
}

func (failingCache) Close() error { return nil }

func floatPtr(v float64) *float64 { return &v }

func testDevice() *models.Device {
	device := &models.Device{
		UID:    "e4a1b2c3-0000-0000-0000-000000000001",
		Name:   "Greenhouse Sensor",
		APIKey: "valid-key",
		Active: true,
		UserID: 42,
	}
	device.ID = 7
	return device
}

func newTestService(repo repository.Repository, pub EventPublisher) *service {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return &service{
		repo:      repo,
		publisher: pub,
		log:       log,
	}
}

func TestIngestReadingSuccess(t *testing.T) {
	mockRepo := new(MockRepository)
	pub := &recordingPublisher{}
	svc := newTestService(mockRepo, pub)

	device := testDevice()
	mockRepo.On("FindActiveDeviceByAPIKey", mock.Anything, "valid-key").Return(device, nil)
	mockRepo.On("CreateReading", mock.Anything, mock.AnythingOfType("*models.SensorReading")).Return(nil)
	mockRepo.On("GetOrCreateAlertPolicy", mock.Anything, uint(42)).Return(models.DefaultAlertPolicy(42), nil)

	before := time.Now().UTC()
	reading, err := svc.IngestReading(context.Background(), &IngestRequest{
		APIKey:      "valid-key",
		Temperature: floatPtr(22.5),
		Humidity:    floatPtr(55),
		AirQuality:  floatPtr(120),
	})

	require.NoError(t, err)
	require.NotNil(t, reading)
	require.Equal(t, device.ID, reading.DeviceID)
	require.Equal(t, 22.5, reading.Temperature)

	// Timestamp is assigned by the server, never by the client
	require.False(t, reading.Timestamp.Before(before))
	require.False(t, reading.Timestamp.After(time.Now().UTC()))

	require.Len(t, pub.readings, 1)
	require.Empty(t, pub.alerts)
	mockRepo.AssertExpectations(t)
	mockRepo.AssertNotCalled(t, "CreateAlertBatch", mock.Anything, mock.Anything)
}

func TestIngestReadingValidationFailure(t *testing.T) {
	mockRepo := new(MockRepository)
	pub := &recordingPublisher{}
	svc := newTestService(mockRepo, pub)

	_, err := svc.IngestReading(context.Background(), &IngestRequest{
		APIKey:      "valid-key",
		Temperature: floatPtr(150), // out of range
		AirQuality:  floatPtr(120),
		// humidity missing
	})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, "must be between -50 and 100", vErr.Fields["temperature"])
	require.Equal(t, "this field is required", vErr.Fields["humidity"])

	// Nothing is touched on validation failure
	require.Empty(t, pub.readings)
	mockRepo.AssertNotCalled(t, "FindActiveDeviceByAPIKey", mock.Anything, mock.Anything)
	mockRepo.AssertNotCalled(t, "CreateReading", mock.Anything, mock.Anything)
}

func TestIngestReadingSurvivesCacheOutage(t *testing.T) {
	mockRepo := new(MockRepository)
	pub := &recordingPublisher{}
	svc := newTestService(mockRepo, pub)
	svc.cache = failingCache{}

	mockRepo.On("FindActiveDeviceByAPIKey", mock.Anything, "valid-key").Return(testDevice(), nil)
	mockRepo.On("CreateReading", mock.Anything, mock.Anything).Return(nil)
	mockRepo.On("GetOrCreateAlertPolicy", mock.Anything, uint(42)).Return(models.DefaultAlertPolicy(42), nil)

	// The cache is an accelerator only: lookup falls through to the
	// database and the failed write-back never fails the pipeline
	reading, err := svc.IngestReading(context.Background(), &IngestRequest{
		APIKey:      "valid-key",
		Temperature: floatPtr(22),
		Humidity:    floatPtr(55),
		AirQuality:  floatPtr(120),
	})

	require.NoError(t, err)
	require.NotNil(t, reading)
	require.Len(t, pub.readings, 1)
	mockRepo.AssertExpectations(t)
}

func TestIngestReadingInvalidAPIKey(t *testing.T) {
	mockRepo := new(MockRepository)
	pub := &recordingPublisher{}
	svc := newTestService(mockRepo, pub)

	mockRepo.On("FindActiveDeviceByAPIKey", mock.Anything, "bad-key").Return(nil, gorm.ErrRecordNotFound)

	_, err := svc.IngestReading(context.Background(), &IngestRequest{
		APIKey:      "bad-key",
		Temperature: floatPtr(22),
		Humidity:    floatPtr(55),
		AirQuality:  floatPtr(120),
	})

	require.ErrorIs(t, err, ErrDeviceAuth)
	require.Empty(t, pub.readings)
	mockRepo.AssertNotCalled(t, "CreateReading", mock.Anything, mock.Anything)
}

func TestIngestReadingStorageFailure(t *testing.T) {
	mockRepo := new(MockRepository)
	pub := &recordingPublisher{}
	svc := newTestService(mockRepo, pub)

	mockRepo.On("FindActiveDeviceByAPIKey", mock.Anything, "valid-key").Return(testDevice(), nil)
	mockRepo.On("CreateReading", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	_, err := svc.IngestReading(context.Background(), &IngestRequest{
		APIKey:      "valid-key",
		Temperature: floatPtr(22),
		Humidity:    floatPtr(55),
		AirQuality:  floatPtr(120),
	})

	require.Error(t, err)
	require.NotErrorIs(t, err, ErrDeviceAuth)

	// The persist is the durability point: no publish without it
	require.Empty(t, pub.readings)
	require.Empty(t, pub.alerts)
}

func TestIngestReadingTriggersAlerts(t *testing.T) {
	mockRepo := new(MockRepository)
	pub := &recordingPublisher{}
	svc := newTestService(mockRepo, pub)

	device := testDevice()
	mockRepo.On("FindActiveDeviceByAPIKey", mock.Anything, "valid-key").Return(device, nil)
	mockRepo.On("CreateReading", mock.Anything, mock.Anything).Return(nil)
	mockRepo.On("GetOrCreateAlertPolicy", mock.Anything, uint(42)).Return(models.DefaultAlertPolicy(42), nil)

	var batch []*models.Alert
	mockRepo.On("CreateAlertBatch", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		batch = args.Get(1).([]*models.Alert)
	}).Return(nil)

	reading, err := svc.IngestReading(context.Background(), &IngestRequest{
		APIKey:      "valid-key",
		Temperature: floatPtr(36),
		Humidity:    floatPtr(85),
		AirQuality:  floatPtr(600),
	})

	require.NoError(t, err)
	require.NotNil(t, reading)

	require.Len(t, batch, 3)
	require.Equal(t, models.AlertTypeTemperatureHigh, batch[0].AlertType)
	require.Equal(t, models.AlertTypeHumidityHigh, batch[1].AlertType)
	require.Equal(t, models.AlertTypeAirQualityBad, batch[2].AlertType)
	for _, alert := range batch {
		require.Equal(t, device.ID, alert.DeviceID)
		require.Equal(t, models.AlertStatusActive, alert.Status)
	}

	require.Len(t, pub.readings, 1)
	require.Len(t, pub.alerts, 3)
	mockRepo.AssertExpectations(t)
}

func TestIngestReadingAlertBatchFailure(t *testing.T) {
	mockRepo := new(MockRepository)
	pub := &recordingPublisher{}
	svc := newTestService(mockRepo, pub)

	mockRepo.On("FindActiveDeviceByAPIKey", mock.Anything, "valid-key").Return(testDevice(), nil)
	mockRepo.On("CreateReading", mock.Anything, mock.Anything).Return(nil)
	mockRepo.On("GetOrCreateAlertPolicy", mock.Anything, uint(42)).Return(models.DefaultAlertPolicy(42), nil)
	mockRepo.On("CreateAlertBatch", mock.Anything, mock.Anything).Return(errors.New("deadlock"))

	_, err := svc.IngestReading(context.Background(), &IngestRequest{
		APIKey:      "valid-key",
		Temperature: floatPtr(36),
		Humidity:    floatPtr(55),
		AirQuality:  floatPtr(120),
	})

	require.Error(t, err)
	require.Empty(t, pub.readings)
	require.Empty(t, pub.alerts)
}
