package db

import (
	"fmt"

	"go_cfgsync/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Migrate creates or updates the devices, config_snapshots and admin_configs tables
func Migrate(gdb *gorm.DB) error {
	models := []interface{}{
		&model.Device{},
		&model.ConfigSnapshot{},
		&model.AdminConfig{},
	}

	if err := gdb.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	logrus.WithField("tables", len(models)).Info("database migration completed")
	return nil
}
