package devices

import (
	"encoding/json"
	"strings"
	"time"

	"go_cfgsync/api/v1/middleware"
	"go_cfgsync/internal/configver"
	"go_cfgsync/internal/devices"
	"go_cfgsync/internal/geoip"
	"go_cfgsync/internal/httpx"
	"go_cfgsync/internal/metrics"
	"go_cfgsync/internal/model"
	"go_cfgsync/internal/snapshots"

	"github.com/gin-gonic/gin"
)

// SyncRequest is the body a device uploads on every sync
type SyncRequest struct {
	DeviceID            string          `json:"deviceId"`
	AppVersion          *string         `json:"appVersion"`
	AppliedAdminVersion *int64          `json:"appliedAdminVersion"`
	Snapshot            json.RawMessage `json:"snapshot"`
	ClientTime          *string         `json:"clientTime"`
}

// SyncResponse carries the current admin config back to the device
type SyncResponse struct {
	OK           bool            `json:"ok"`
	ServerTime   string          `json:"serverTime"`
	AdminConfig  json.RawMessage `json:"adminConfig,omitempty"`
	AdminVersion *int64          `json:"adminVersion,omitempty"`
}

// Handler handles the device-facing API
type Handler struct {
	registry   *devices.Registry
	snapshots  *snapshots.Log
	admin      *configver.Service
	geo        geoip.Lookup
	metrics    metrics.Provider
	trustProxy bool
	now        func() time.Time
}

// NewHandler creates a new devices handler
func NewHandler(registry *devices.Registry, log *snapshots.Log, admin *configver.Service, geo geoip.Lookup, m metrics.Provider, trustProxy bool) *Handler {
	return &Handler{
		registry:   registry,
		snapshots:  log,
		admin:      admin,
		geo:        geo,
		metrics:    m,
		trustProxy: trustProxy,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Sync handles POST /api/v1/devices/sync
func (h *Handler) Sync(c *gin.Context) {
	var req SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.metrics.IncSyncs(metrics.SyncFailed)
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid request body"))
		return
	}
	if strings.TrimSpace(req.DeviceID) == "" {
		h.metrics.IncSyncs(metrics.SyncFailed)
		httpx.FailErr(c, httpx.ErrParamMissing("deviceId is required"))
		return
	}
	if len(req.DeviceID) > model.DeviceIDMaxLen {
		h.metrics.IncSyncs(metrics.SyncFailed)
		httpx.FailErr(c, httpx.ErrParamInvalid("deviceId is too long"))
		return
	}
	if req.AppVersion != nil && len(*req.AppVersion) > model.AppVersionMaxLen {
		h.metrics.IncSyncs(metrics.SyncFailed)
		httpx.FailErr(c, httpx.ErrParamInvalid("appVersion is too long"))
		return
	}

	ctx := c.Request.Context()
	now := h.now()

	params := devices.UpsertParams{
		DeviceID:   req.DeviceID,
		LastSeen:   now,
		AppVersion: req.AppVersion,
	}
	if ip := middleware.ClientIP(c, h.trustProxy); ip != nil {
		addr := ip.String()
		params.LastIP = &addr
		loc := h.geo.Lookup(ip)
		params.GeoCountry = optional(loc.Country)
		params.GeoRegion = optional(loc.Region)
		params.GeoCity = optional(loc.City)
	}

	if err := h.registry.Upsert(ctx, params); err != nil {
		h.metrics.IncSyncs(metrics.SyncFailed)
		httpx.FailErr(c, httpx.ErrDatabaseError("", err))
		return
	}

	body := []byte(req.Snapshot)
	if len(body) == 0 {
		body = []byte("null")
	}
	if _, err := h.snapshots.Append(ctx, req.DeviceID, body, now); err != nil {
		h.metrics.IncSyncs(metrics.SyncFailed)
		httpx.FailErr(c, httpx.ErrDatabaseError("", err))
		return
	}

	cfg, err := h.admin.Get(ctx, req.DeviceID)
	if err != nil {
		h.metrics.IncSyncs(metrics.SyncFailed)
		httpx.FailErr(c, httpx.ErrDatabaseError("", err))
		return
	}

	resp := SyncResponse{OK: true, ServerTime: now.Format(time.RFC3339)}
	if cfg != nil {
		version := cfg.Version
		resp.AdminConfig = json.RawMessage(cfg.Config)
		resp.AdminVersion = &version
		h.metrics.IncSyncs(metrics.SyncWithAdminConf)
	} else {
		h.metrics.IncSyncs(metrics.SyncOK)
	}
	httpx.OK(c, resp)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
