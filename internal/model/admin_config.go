package model

import (
	"time"

	"gorm.io/datatypes"
)

// AdminConfig is the admin-pushed provider config of a device.
// Version starts at 1 and increases by exactly one per write.
type AdminConfig struct {
	ID        int64          `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	DeviceID  string         `gorm:"column:device_id;type:varchar(64);not null;uniqueIndex" json:"deviceId"`
	Version   int64          `gorm:"column:version;not null" json:"version"`
	Config    datatypes.JSON `gorm:"column:config;not null" json:"config"`
	UpdatedAt time.Time      `gorm:"column:updated_at;not null" json:"updatedAt"`
}

// TableName specifies the table name for AdminConfig
func (AdminConfig) TableName() string {
	return "admin_configs"
}
