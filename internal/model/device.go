package model

import "time"

// Column widths of device_id and app_version
const (
	DeviceIDMaxLen   = 64
	AppVersionMaxLen = 64
)

// Device is the registry row of a client machine. One row per device id.
type Device struct {
	DeviceID        string    `gorm:"column:device_id;type:varchar(64);primaryKey" json:"deviceId"`
	FingerprintHash string    `gorm:"column:fingerprint_hash;type:varchar(64);not null" json:"fingerprintHash"`
	LastSeen        time.Time `gorm:"column:last_seen;not null;index" json:"lastSeen"`
	LastIP          *string   `gorm:"column:last_ip;type:varchar(64)" json:"lastIp,omitempty"`
	GeoCountry      *string   `gorm:"column:geo_country;type:varchar(64)" json:"geoCountry,omitempty"`
	GeoRegion       *string   `gorm:"column:geo_region;type:varchar(64)" json:"geoRegion,omitempty"`
	GeoCity         *string   `gorm:"column:geo_city;type:varchar(128)" json:"geoCity,omitempty"`
	AppVersion      *string   `gorm:"column:app_version;type:varchar(64)" json:"appVersion,omitempty"`
	CreatedAt       time.Time `gorm:"column:created_at;not null" json:"createdAt"`
}

// TableName specifies the table name for Device
func (Device) TableName() string {
	return "devices"
}
