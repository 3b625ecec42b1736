package devices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go_cfgsync/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertParams is what a sync request records about its device
type UpsertParams struct {
	DeviceID   string
	LastSeen   time.Time
	LastIP     *string
	GeoCountry *string
	GeoRegion  *string
	GeoCity    *string
	AppVersion *string
}

// Summary is a registry row with its snapshot and admin config aggregates
type Summary struct {
	model.Device
	SnapshotCount  int64      `json:"snapshotCount"`
	LastSnapshotAt *time.Time `json:"lastSnapshotAt,omitempty"`
	AdminVersion   *int64     `json:"adminVersion,omitempty"`
	AdminUpdatedAt *time.Time `json:"adminUpdatedAt,omitempty"`
}

// Registry stores one record per device, last writer wins
type Registry struct {
	db *gorm.DB
}

// NewRegistry creates a new device registry
func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

// Upsert inserts the device on first sync and overwrites its metadata afterwards.
// created_at keeps the first-sync time.
func (r *Registry) Upsert(ctx context.Context, p UpsertParams) error {
	row := model.Device{
		DeviceID:        p.DeviceID,
		FingerprintHash: p.DeviceID,
		LastSeen:        p.LastSeen,
		LastIP:          p.LastIP,
		GeoCountry:      p.GeoCountry,
		GeoRegion:       p.GeoRegion,
		GeoCity:         p.GeoCity,
		AppVersion:      p.AppVersion,
		CreatedAt:       p.LastSeen,
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"last_seen", "last_ip", "geo_country", "geo_region", "geo_city", "app_version",
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert device: %w", err)
	}
	return nil
}

// Get returns the device or nil when it is unknown
func (r *Registry) Get(ctx context.Context, deviceID string) (*model.Device, error) {
	var device model.Device
	if err := r.db.WithContext(ctx).Where("device_id = ?", deviceID).First(&device).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return &device, nil
}

// FilterExisting returns the subset of ids present in the registry, deduplicated,
// in the order they were first given.
func (r *Registry) FilterExisting(ctx context.Context, deviceIDs []string) ([]string, error) {
	return FilterExisting(r.db.WithContext(ctx), deviceIDs)
}

// FilterExisting runs the registry membership check on the given handle so it can take part
// in a caller's transaction.
func FilterExisting(tx *gorm.DB, deviceIDs []string) ([]string, error) {
	if len(deviceIDs) == 0 {
		return nil, nil
	}

	var found []string
	if err := tx.Model(&model.Device{}).
		Where("device_id IN ?", deviceIDs).
		Pluck("device_id", &found).Error; err != nil {
		return nil, fmt.Errorf("failed to filter devices: %w", err)
	}

	present := make(map[string]bool, len(found))
	for _, id := range found {
		present[id] = true
	}

	result := make([]string, 0, len(found))
	for _, id := range deviceIDs {
		if present[id] {
			result = append(result, id)
			delete(present, id)
		}
	}
	return result, nil
}

type snapshotAgg struct {
	DeviceID      string
	SnapshotCount int64
	LastID        int64
}

// List returns every device with its aggregates, most recently seen first
func (r *Registry) List(ctx context.Context) ([]Summary, error) {
	db := r.db.WithContext(ctx)

	var devices []model.Device
	if err := db.Order("last_seen DESC").Order("device_id").Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	if len(devices) == 0 {
		return []Summary{}, nil
	}

	var aggs []snapshotAgg
	if err := db.Model(&model.ConfigSnapshot{}).
		Select("device_id, COUNT(*) AS snapshot_count, MAX(id) AS last_id").
		Group("device_id").
		Scan(&aggs).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate snapshots: %w", err)
	}

	lastIDs := make([]int64, 0, len(aggs))
	counts := make(map[string]int64, len(aggs))
	for _, a := range aggs {
		counts[a.DeviceID] = a.SnapshotCount
		lastIDs = append(lastIDs, a.LastID)
	}

	lastAt := make(map[string]time.Time, len(lastIDs))
	if len(lastIDs) > 0 {
		var latest []model.ConfigSnapshot
		if err := db.Select("id", "device_id", "created_at").
			Where("id IN ?", lastIDs).
			Find(&latest).Error; err != nil {
			return nil, fmt.Errorf("failed to load latest snapshots: %w", err)
		}
		for _, s := range latest {
			lastAt[s.DeviceID] = s.CreatedAt
		}
	}

	var admins []model.AdminConfig
	if err := db.Select("device_id", "version", "updated_at").Find(&admins).Error; err != nil {
		return nil, fmt.Errorf("failed to load admin configs: %w", err)
	}
	adminByID := make(map[string]model.AdminConfig, len(admins))
	for _, a := range admins {
		adminByID[a.DeviceID] = a
	}

	summaries := make([]Summary, 0, len(devices))
	for _, d := range devices {
		s := Summary{Device: d, SnapshotCount: counts[d.DeviceID]}
		if t, ok := lastAt[d.DeviceID]; ok {
			t := t
			s.LastSnapshotAt = &t
		}
		if a, ok := adminByID[d.DeviceID]; ok {
			version, updatedAt := a.Version, a.UpdatedAt
			s.AdminVersion = &version
			s.AdminUpdatedAt = &updatedAt
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}
