package model

import (
	"time"

	"gorm.io/datatypes"
)

// ConfigSnapshot is one uploaded provider snapshot. Rows are never updated.
type ConfigSnapshot struct {
	ID        int64          `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	DeviceID  string         `gorm:"column:device_id;type:varchar(64);not null;index:idx_snapshot_device_created" json:"deviceId"`
	Snapshot  datatypes.JSON `gorm:"column:snapshot;not null" json:"snapshot"`
	CreatedAt time.Time      `gorm:"column:created_at;not null;index:idx_snapshot_device_created" json:"createdAt"`
}

// TableName specifies the table name for ConfigSnapshot
func (ConfigSnapshot) TableName() string {
	return "config_snapshots"
}
