package snapshots

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go_cfgsync/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DefaultListLimit caps how many snapshots a device detail view shows
const DefaultListLimit = 20

// Log is the append-only history of uploaded snapshots
type Log struct {
	db *gorm.DB
}

// NewLog creates a new snapshot log
func NewLog(db *gorm.DB) *Log {
	return &Log{db: db}
}

// Append stores one snapshot body. Earlier rows are never touched.
func (l *Log) Append(ctx context.Context, deviceID string, body []byte, now time.Time) (*model.ConfigSnapshot, error) {
	snapshot := &model.ConfigSnapshot{
		DeviceID:  deviceID,
		Snapshot:  datatypes.JSON(body),
		CreatedAt: now,
	}
	if err := l.db.WithContext(ctx).Create(snapshot).Error; err != nil {
		return nil, fmt.Errorf("failed to append snapshot: %w", err)
	}
	return snapshot, nil
}

// List returns up to limit snapshots of a device, newest first. limit <= 0 means DefaultListLimit.
func (l *Log) List(ctx context.Context, deviceID string, limit int) ([]model.ConfigSnapshot, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	snapshots := []model.ConfigSnapshot{}
	if err := l.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&snapshots).Error; err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return snapshots, nil
}

// Stats holds the snapshot aggregates of one device
type Stats struct {
	Count  int64
	LastAt *time.Time
}

// Stats counts the snapshots of a device and reports the newest one's time
func (l *Log) Stats(ctx context.Context, deviceID string) (Stats, error) {
	db := l.db.WithContext(ctx)

	var stats Stats
	if err := db.Model(&model.ConfigSnapshot{}).
		Where("device_id = ?", deviceID).
		Count(&stats.Count).Error; err != nil {
		return Stats{}, fmt.Errorf("failed to count snapshots: %w", err)
	}
	if stats.Count == 0 {
		return stats, nil
	}

	var last model.ConfigSnapshot
	if err := db.Select("id", "created_at").
		Where("device_id = ?", deviceID).
		Order("created_at DESC").
		Order("id DESC").
		First(&last).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return stats, nil
		}
		return Stats{}, fmt.Errorf("failed to get last snapshot: %w", err)
	}
	stats.LastAt = &last.CreatedAt
	return stats, nil
}
