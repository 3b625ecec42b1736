package configver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go_cfgsync/internal/devices"
	"go_cfgsync/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Service stores the admin-pushed config of each device under a per-device version counter
type Service struct {
	db *gorm.DB
}

// NewService creates a new admin config service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Get returns the admin config of a device or nil when none was pushed
func (s *Service) Get(ctx context.Context, deviceID string) (*model.AdminConfig, error) {
	var cfg model.AdminConfig
	if err := s.db.WithContext(ctx).Where("device_id = ?", deviceID).First(&cfg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get admin config: %w", err)
	}
	return &cfg, nil
}

// UpsertIncrement stores body as the device's admin config and returns the new version:
// 1 on the first write, previous+1 afterwards.
func (s *Service) UpsertIncrement(ctx context.Context, deviceID string, body []byte, now time.Time) (int64, error) {
	var version int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		v, err := upsertIncrement(tx, deviceID, body, now)
		if err != nil {
			return err
		}
		version = v
		return nil
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

// ApplyToMany writes body to every id that exists in the registry. Unknown and repeated ids
// are skipped. Either every listed device is incremented or none is.
func (s *Service) ApplyToMany(ctx context.Context, deviceIDs []string, body []byte, now time.Time) (int, error) {
	updated := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := devices.FilterExisting(tx, deviceIDs)
		if err != nil {
			return err
		}
		for _, id := range existing {
			if _, err := upsertIncrement(tx, id, body, now); err != nil {
				return fmt.Errorf("device %s: %w", id, err)
			}
		}
		updated = len(existing)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}

// upsertIncrement bumps the version in a single statement; the row stays locked by tx
// so the read-back sees this transaction's own increment.
func upsertIncrement(tx *gorm.DB, deviceID string, body []byte, now time.Time) (int64, error) {
	row := model.AdminConfig{
		DeviceID:  deviceID,
		Version:   1,
		Config:    datatypes.JSON(body),
		UpdatedAt: now,
	}

	updates := clause.Set{{
		Column: clause.Column{Name: "version"},
		Value:  gorm.Expr("admin_configs.version + 1"),
	}}
	updates = append(updates, clause.AssignmentColumns([]string{"config", "updated_at"})...)

	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}},
		DoUpdates: updates,
	}).Create(&row).Error; err != nil {
		return 0, fmt.Errorf("failed to upsert admin config: %w", err)
	}

	var stored model.AdminConfig
	if err := tx.Select("version").Where("device_id = ?", deviceID).First(&stored).Error; err != nil {
		return 0, fmt.Errorf("failed to read admin config version: %w", err)
	}
	return stored.Version, nil
}
