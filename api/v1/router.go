package v1

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go_cfgsync/api/v1/admin"
	"go_cfgsync/api/v1/devices"
	"go_cfgsync/api/v1/middleware"
	"go_cfgsync/internal/auth"
	"go_cfgsync/internal/config"
	"go_cfgsync/internal/configver"
	devicereg "go_cfgsync/internal/devices"
	"go_cfgsync/internal/geoip"
	"go_cfgsync/internal/metrics"
	"go_cfgsync/internal/snapshots"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Deps are the long-lived collaborators the routes are built from
type Deps struct {
	DB      *gorm.DB
	Redis   *redis.Client // nil disables the sync rate limiter
	GeoIP   geoip.Lookup
	Metrics metrics.Provider
	Logger  *logrus.Entry
}

// SetupRouter sets up the API v1 routes plus /healthz and /metrics
func SetupRouter(r *gin.Engine, cfg *config.Config, deps Deps) {
	if deps.GeoIP == nil {
		deps.GeoIP = geoip.Noop{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(false)
	}
	if deps.Logger == nil {
		deps.Logger = logrus.WithField("component", "http")
	}

	r.Use(middleware.RequestID(), middleware.Logger(deps.Logger), middleware.Metrics(deps.Metrics))

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	if cfg.Metrics {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	if info, err := os.Stat(cfg.UIDistDir); cfg.UIDistDir != "" && err == nil && info.IsDir() {
		mountUI(r, cfg.UIDistDir)
		deps.Logger.WithField("dir", cfg.UIDistDir).Info("admin UI mounted at /admin")
	}

	registry := devicereg.NewRegistry(deps.DB)
	log := snapshots.NewLog(deps.DB)
	configs := configver.NewService(deps.DB)

	adminAuth := auth.NewAdmin(auth.AdminOptions{
		Token:        cfg.Auth.AdminToken,
		User:         cfg.Auth.AdminUser,
		Password:     cfg.Auth.AdminPassword,
		PasswordHash: cfg.Auth.AdminPasswordHash,
		Sessions:     auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.Issuer, time.Duration(cfg.JWT.ExpireMinutes)*time.Minute),
	})

	v1 := r.Group("/api/v1")
	{
		devicesHandler := devices.NewHandler(registry, log, configs, deps.GeoIP, deps.Metrics, cfg.TrustProxy)
		syncChain := []gin.HandlerFunc{middleware.SyncAuth(cfg.Auth.SyncToken)}
		if deps.Redis != nil && cfg.RateLimit.Enabled {
			window := time.Duration(cfg.RateLimit.WindowSec) * time.Second
			syncChain = append(syncChain, middleware.RateLimit(deps.Redis, cfg.RateLimit.Limit, window, cfg.TrustProxy, deps.Metrics))
		}
		syncChain = append(syncChain, devicesHandler.Sync)
		v1.POST("/devices/sync", syncChain...)

		adminGroup := v1.Group("/admin")
		{
			if adminAuth.Sessions() != nil && adminAuth.BasicEnabled() {
				adminGroup.POST("/login", admin.LoginHandler(adminAuth))
			}

			adminHandler := admin.NewHandler(registry, log, configs, deps.Metrics)
			protected := adminGroup.Group("")
			protected.Use(middleware.AdminAuth(adminAuth))
			{
				protected.GET("/devices", adminHandler.List)
				protected.POST("/devices/config/batch", adminHandler.Batch)
				protected.GET("/devices/:id", adminHandler.Detail)
				protected.POST("/devices/:id/config", adminHandler.PushConfig)
			}
		}
	}
}

// mountUI serves the admin web UI build; unknown GETs under /admin get index.html
func mountUI(r *gin.Engine, dir string) {
	index := filepath.Join(dir, "index.html")
	r.Static("/admin", dir)
	r.NoRoute(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			return
		}
		if p := c.Request.URL.Path; p != "/admin" && !strings.HasPrefix(p, "/admin/") {
			return
		}
		c.File(index)
	})
}
