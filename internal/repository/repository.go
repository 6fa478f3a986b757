package repository

import (
	"context"
	"time"

	"example.com/solar/services/sensor/internal/database"
	"example.com/solar/services/sensor/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReadingFilter narrows reading queries
type ReadingFilter struct {
	DeviceID uint      // 0 means all devices owned by the user
	Since    time.Time // zero value means no lower bound
	Limit    int       // 0 means no limit
}

// Repository provides data access methods
type Repository interface {
	// Transaction support
	WithTransaction(ctx context.Context, fn func(ctx context.Context, txRepo Repository) error) error

	// Device operations
	CreateDevice(ctx context.Context, device *models.Device) error
	UpdateDevice(ctx context.Context, device *models.Device) error
	FindDeviceByID(ctx context.Context, id uint) (*models.Device, error)
	FindDeviceByUID(ctx context.Context, uid string) (*models.Device, error)
	FindActiveDeviceByAPIKey(ctx context.Context, apiKey string) (*models.Device, error)
	ListDevicesByUser(ctx context.Context, userID uint) ([]*models.Device, error)

	// SensorReading operations
	CreateReading(ctx context.Context, reading *models.SensorReading) error
	ListReadings(ctx context.Context, userID uint, filter ReadingFilter) ([]*models.SensorReading, error)
	LatestReadingForDevice(ctx context.Context, deviceID uint) (*models.SensorReading, error)
	CountReadingsSince(ctx context.Context, userID uint, since time.Time) (int64, error)
	GetDeviceReadingStats(ctx context.Context, deviceID uint) (*models.DeviceStats, error)

	// AlertPolicy operations
	GetOrCreateAlertPolicy(ctx context.Context, userID uint) (*models.AlertPolicy, error)
	UpdateAlertPolicy(ctx context.Context, policy *models.AlertPolicy) error

	// Alert operations
	CreateAlertBatch(ctx context.Context, alerts []*models.Alert) error
	ListAlerts(ctx context.Context, userID uint, status models.AlertStatus) ([]*models.Alert, error)
	FindOwnedAlert(ctx context.Context, userID, alertID uint) (*models.Alert, error)
	UpdateAlert(ctx context.Context, alert *models.Alert) error
	CountActiveAlerts(ctx context.Context, userID uint) (int64, error)
	CountActiveAlertsForDevice(ctx context.Context, deviceID uint) (int64, error)
}

// repo is an implementation of the Repository interface
type repo struct {
	db database.DB
}

// Helper type for transaction support
type dbWrapper struct {
	db *gorm.DB
}

func (w *dbWrapper) DB() (*gorm.DB, error) {
	return w.db, nil
}

func (w *dbWrapper) Close() error {
	return nil
}

// NewRepository creates a new repository instance
func NewRepository(db database.DB) Repository {
	return &repo{
		db: db,
	}
}

// WithTransaction executes the given function within a database transaction
func (r *repo) WithTransaction(ctx context.Context, fn func(ctx context.Context, txRepo Repository) error) error {
	gormDB, err := r.db.DB()
	if err != nil {
		return err
	}

	return gormDB.Transaction(func(tx *gorm.DB) error {
		txRepo := &repo{
			db: &dbWrapper{db: tx},
		}
		return fn(ctx, txRepo)
	})
}

// Device operations implementation

func (r *repo) CreateDevice(ctx context.Context, device *models.Device) error {
	gormDB, err := r.db.DB()
	if err != nil {
		return err
	}

	return gormDB.Create(device).Error
}

func (r *repo) UpdateDevice(ctx context.Context, device *models.Device) error {
	gormDB, err := r.db.DB()
	if err != nil {
		return err
	}

	return gormDB.Save(device).Error
}

func (r *repo) FindDeviceByID(ctx context.Context, id uint) (*models.Device, error) {
	gormDB, err := r.db.DB()
	if err != nil {
		return nil, err
	}

	var device models.Device
	if err := gormDB.First(&device, id).Error; err != nil {
		return nil, err
	}

	return &device, nil
}

func (r *repo) FindDeviceByUID(ctx context.Context, uid string) (*models.Device, error) {
	gormDB, err := r.db.DB()
	if err != nil {
		return nil, err
	}

	var device models.Device
	if err := gormDB.Where("uuid = ?", uid).First(&device).Error; err != nil {
		return nil, err
	}

	return &device, nil
}

// FindActiveDeviceByAPIKey looks up the device registry entry for a
// credential. Inactive devices are filtered in the query so the caller
// sees the same not-found outcome as for an unknown key.
func (r *repo) FindActiveDeviceByAPIKey(ctx context.Context, apiKey string) (*models.Device, error) {
	gormDB, err := r.db.DB()
	if err != nil {
		return nil, err
	}

	var device models.Device
	if err := gormDB.Where("api_key = ? AND active = ?", apiKey, true).First(&device).Error; err != nil {
		return nil, err
	}

	return &device, nil
}

func (r *repo) ListDevicesByUser(ctx context.Context, userID uint) ([]*models.Device, error) {
	gormDB, err := r.db.DB()
	if err != nil {
		return nil, err
	}

	var devices []*models.Device
	if err := gormDB.Where("user_id = ?", userID).Order("created_at DESC").Find(&devices).Error; err != nil {
		return nil, err
	}

	return devices, nil
}

// SensorReading operations implementation

func (r *repo) CreateReading(ctx context.Context, reading *models.SensorReading) error {
	gormDB, err := r.db.DB()
	if err != nil {
		return err
	}

	return gormDB.Create(reading).Error
}

func (r *repo) ListReadings(ctx context.Context, userID uint, filter ReadingFilter) ([]*models.SensorReading, error) {
	gormDB, err := r.db.DB()
	if err != nil {
		return nil, err
	}

	query := gormDB.Model(&models.SensorReading{}).
		Joins("JOIN devices ON devices.id = sensor_readings.device_id").
		Where("devices.user_id = ?", userID).
		Preload("Device").
		Order("sensor_readings.timestamp DESC")

	if filter.DeviceID > 0 {
		query = query.Where("sensor_readings.device_id = ?", filter.DeviceID)
	}
	if !filter.Since.IsZero() {
		query = query.Where("sensor_readings.timestamp >= ?", filter.Since)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var readings []*models.SensorReading
	if err := query.Find(&readings).Error; err != nil {
		return nil, err
	}

	return readings, nil
}

func (r *repo) LatestReadingForDevice(ctx context.Context, deviceID uint) (*models.SensorReading, error) {
	gormDB, err := r.db.DB()
	if err != nil {
		return nil, err
	}

	var reading models.SensorReading
	if err := gormDB.Where("device_id = ?", deviceID).
		Order("timestamp DESC").
		First(&reading).Error; err != nil {
		return nil, err
	}

	return &reading, nil
}

func (r *repo) CountReadingsSince(ctx context.Context, userID uint, since time.Time) (int64, error) {
	gormDB, err := r.db.DB()
	if err != nil {
		return 0, err
	}

	var count int64
	err = gormDB.Model(&models.SensorReading{}).
		Joins("JOIN devices ON devices.id = sensor_readings.device_id").
		Where("devices.user_id = ? AND sensor_readings.timestamp >= ?", userID, since).
		Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

func (r *repo) GetDeviceReadingStats(ctx context.Context, deviceID uint) (*models.DeviceStats, error) {
	gormDB, err := r.db.DB()
	if err != nil {
		return nil, err
	}

	var stats models.DeviceStats
	err = gormDB.Model(&models.SensorReading{}).
		Where("device_id = ?", deviceID).
		Select("COUNT(*) AS total_records, " +
			"MAX(timestamp) AS latest_timestamp, " +
			"COALESCE(AVG(temperature), 0) AS avg_temperature, " +
			"COALESCE(AVG(humidity), 0) AS avg_humidity, " +
			"COALESCE(AVG(air_quality), 0) AS avg_air_quality").
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}

	return &stats, nil
}

// AlertPolicy operations implementation

// GetOrCreateAlertPolicy returns the user's policy, creating it with
// defaults on first access. The insert uses ON CONFLICT DO NOTHING on the
// unique user_id index, so concurrent first ingests for the same user
// cannot produce duplicate rows; whichever insert loses simply reads the
// winner's row back.
func (r *repo) GetOrCreateAlertPolicy(ctx context.Context, userID uint) (*models.AlertPolicy, error) {
	gormDB, err := r.db.DB()
	if err != nil {
		return nil, err
	}

	defaults := models.DefaultAlertPolicy(userID)
	if err := gormDB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(defaults).Error; err != nil {
		return nil, err
	}

	var policy models.AlertPolicy
	if err := gormDB.Where("user_id = ?", userID).First(&policy).Error; err != nil {
		return nil, err
	}

	return &policy, nil
}

func (r *repo) UpdateAlertPolicy(ctx context.Context, policy *models.AlertPolicy) error {
	gormDB, err := r.db.DB()
	if err != nil {
		return err
	}

	return gormDB.Save(policy).Error
}

// Alert operations implementation

// CreateAlertBatch persists all alerts for one reading in a single
// transaction so a crash cannot leave a partial alert set behind.
func (r *repo) CreateAlertBatch(ctx context.Context, alerts []*models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	gormDB, err := r.db.DB()
	if err != nil {
		return err
	}

	return gormDB.Transaction(func(tx *gorm.DB) error {
		return tx.Create(alerts).Error
	})
}

func (r *repo) ListAlerts(ctx context.Context, userID uint, status models.AlertStatus) ([]*models.Alert, error) {
	gormDB, err := r.db.DB()
	if err != nil {
		return nil, err
	}

	query := gormDB.Model(&models.Alert{}).
		Joins("JOIN devices ON devices.id = alerts.device_id").
		Where("devices.user_id = ?", userID).
		Preload("Device").
		Order("alerts.created_at DESC")

	if status != "" {
		query = query.Where("alerts.status = ?", status)
	}

	var alerts []*models.Alert
	if err := query.Find(&alerts).Error; err != nil {
		return nil, err
	}

	return alerts, nil
}

func (r *repo) FindOwnedAlert(ctx context.Context, userID, alertID uint) (*models.Alert, error) {
	gormDB, err := r.db.DB()
	if err != nil {
		return nil, err
	}

	var alert models.Alert
	err = gormDB.Model(&models.Alert{}).
		Joins("JOIN devices ON devices.id = alerts.device_id").
		Where("alerts.id = ? AND devices.user_id = ?", alertID, userID).
		Preload("Device").
		First(&alert).Error
	if err != nil {
		return nil, err
	}

	return &alert, nil
}

func (r *repo) UpdateAlert(ctx context.Context, alert *models.Alert) error {
	gormDB, err := r.db.DB()
	if err != nil {
		return err
	}

	return gormDB.Save(alert).Error
}

func (r *repo) CountActiveAlerts(ctx context.Context, userID uint) (int64, error) {
	gormDB, err := r.db.DB()
	if err != nil {
		return 0, err
	}

	var count int64
	err = gormDB.Model(&models.Alert{}).
		Joins("JOIN devices ON devices.id = alerts.device_id").
		Where("devices.user_id = ? AND alerts.status = ?", userID, models.AlertStatusActive).
		Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

func (r *repo) CountActiveAlertsForDevice(ctx context.Context, deviceID uint) (int64, error) {
	gormDB, err := r.db.DB()
	if err != nil {
		return 0, err
	}

	var count int64
	err = gormDB.Model(&models.Alert{}).
		Where("device_id = ? AND status = ?", deviceID, models.AlertStatusActive).
		Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}
