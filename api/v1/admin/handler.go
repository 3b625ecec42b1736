package admin

import (
	"encoding/json"
	"strings"
	"time"

	"go_cfgsync/internal/configver"
	"go_cfgsync/internal/devices"
	"go_cfgsync/internal/httpx"
	"go_cfgsync/internal/metrics"
	"go_cfgsync/internal/model"
	"go_cfgsync/internal/snapshots"

	"github.com/gin-gonic/gin"
)

// ListResponse represents the device list
type ListResponse struct {
	Devices []devices.Summary `json:"devices"`
}

// SnapshotItem is one entry of a device's recent history
type SnapshotItem struct {
	ID        int64           `json:"id"`
	CreatedAt time.Time       `json:"createdAt"`
	Snapshot  json.RawMessage `json:"snapshot"`
}

// AdminConfigItem is the current admin config of a device
type AdminConfigItem struct {
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Config    json.RawMessage `json:"config"`
}

// DetailResponse represents one device with its recent snapshots
type DetailResponse struct {
	Device      devices.Summary  `json:"device"`
	Snapshots   []SnapshotItem   `json:"snapshots"`
	AdminConfig *AdminConfigItem `json:"adminConfig,omitempty"`
}

// PushConfigRequest represents push admin config request
type PushConfigRequest struct {
	Config json.RawMessage `json:"config" binding:"required"`
}

// PushConfigResponse reports the version just written
type PushConfigResponse struct {
	OK      bool  `json:"ok"`
	Version int64 `json:"version"`
}

// BatchRequest represents batch push request
type BatchRequest struct {
	DeviceIDs []string        `json:"deviceIds"`
	Config    json.RawMessage `json:"config" binding:"required"`
}

// BatchResponse reports how many devices got a new version
type BatchResponse struct {
	OK      bool `json:"ok"`
	Updated int  `json:"updated"`
}

// Handler handles the admin API
type Handler struct {
	registry  *devices.Registry
	snapshots *snapshots.Log
	configs   *configver.Service
	metrics   metrics.Provider
	now       func() time.Time
}

// NewHandler creates a new admin handler
func NewHandler(registry *devices.Registry, log *snapshots.Log, configs *configver.Service, m metrics.Provider) *Handler {
	return &Handler{
		registry:  registry,
		snapshots: log,
		configs:   configs,
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// List handles GET /api/v1/admin/devices
func (h *Handler) List(c *gin.Context) {
	list, err := h.registry.List(c.Request.Context())
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("", err))
		return
	}
	httpx.OK(c, ListResponse{Devices: list})
}

// Detail handles GET /api/v1/admin/devices/:id
func (h *Handler) Detail(c *gin.Context) {
	ctx := c.Request.Context()
	deviceID := c.Param("id")

	device, err := h.registry.Get(ctx, deviceID)
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("", err))
		return
	}
	if device == nil {
		httpx.FailErr(c, httpx.ErrNotFound("device not found"))
		return
	}

	stats, err := h.snapshots.Stats(ctx, deviceID)
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("", err))
		return
	}
	recent, err := h.snapshots.List(ctx, deviceID, snapshots.DefaultListLimit)
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("", err))
		return
	}
	cfg, err := h.configs.Get(ctx, deviceID)
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("", err))
		return
	}

	resp := DetailResponse{
		Device: devices.Summary{
			Device:         *device,
			SnapshotCount:  stats.Count,
			LastSnapshotAt: stats.LastAt,
		},
		Snapshots: make([]SnapshotItem, 0, len(recent)),
	}
	for _, s := range recent {
		resp.Snapshots = append(resp.Snapshots, SnapshotItem{
			ID:        s.ID,
			CreatedAt: s.CreatedAt,
			Snapshot:  json.RawMessage(s.Snapshot),
		})
	}
	if cfg != nil {
		resp.AdminConfig = &AdminConfigItem{
			Version:   cfg.Version,
			UpdatedAt: cfg.UpdatedAt,
			Config:    json.RawMessage(cfg.Config),
		}
		resp.Device.AdminVersion = &resp.AdminConfig.Version
		resp.Device.AdminUpdatedAt = &resp.AdminConfig.UpdatedAt
	}

	httpx.OK(c, resp)
}

// PushConfig handles POST /api/v1/admin/devices/:id/config
func (h *Handler) PushConfig(c *gin.Context) {
	deviceID := c.Param("id")
	if strings.TrimSpace(deviceID) == "" {
		httpx.FailErr(c, httpx.ErrParamMissing("device id is required"))
		return
	}
	if len(deviceID) > model.DeviceIDMaxLen {
		httpx.FailErr(c, httpx.ErrParamInvalid("device id is too long"))
		return
	}

	var req PushConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamMissing("config is required"))
		return
	}

	version, err := h.configs.UpsertIncrement(c.Request.Context(), deviceID, req.Config, h.now())
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("", err))
		return
	}
	h.metrics.AddAdminConfigWrites(1)

	httpx.OK(c, PushConfigResponse{OK: true, Version: version})
}

// Batch handles POST /api/v1/admin/devices/config/batch
func (h *Handler) Batch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamMissing("config is required"))
		return
	}
	if len(req.DeviceIDs) == 0 {
		httpx.FailErr(c, httpx.ErrParamMissing("deviceIds is required"))
		return
	}

	updated, err := h.configs.ApplyToMany(c.Request.Context(), req.DeviceIDs, req.Config, h.now())
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("", err))
		return
	}
	h.metrics.AddAdminConfigWrites(updated)

	httpx.OK(c, BatchResponse{OK: true, Updated: updated})
}
