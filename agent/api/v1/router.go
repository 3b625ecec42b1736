package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"go_cfgsync/agent/syncer"
	"go_cfgsync/api/v1/middleware"
	"go_cfgsync/internal/httpx"
)

// SyncService is what the local API drives
type SyncService interface {
	RunOnce(ctx context.Context) error
	Status(ctx context.Context) (*syncer.Status, error)
}

// Handler serves the agent's local control API
type Handler struct {
	sync SyncService
}

// SyncResult is returned by a manual sync
type SyncResult struct {
	OK     bool           `json:"ok"`
	Status *syncer.Status `json:"status"`
}

// Status handles GET /agent/v1/status
func (h *Handler) Status(c *gin.Context) {
	st, err := h.sync.Status(c.Request.Context())
	if err != nil {
		httpx.FailErr(c, httpx.ErrInternalError("failed to read sync status", err))
		return
	}
	httpx.OK(c, st)
}

// Sync handles POST /agent/v1/sync by running one sync and waiting for it
func (h *Handler) Sync(c *gin.Context) {
	err := h.sync.RunOnce(c.Request.Context())
	if errors.Is(err, syncer.ErrInFlight) {
		httpx.FailErr(c, httpx.ErrSyncInFlight(""))
		return
	}
	if err != nil {
		var se *syncer.Error
		if errors.As(err, &se) {
			httpx.Fail(c, http.StatusBadGateway, httpx.CodeInternalError, se.Error())
			return
		}
		httpx.FailErr(c, httpx.ErrInternalError("sync failed", err))
		return
	}

	st, err := h.sync.Status(c.Request.Context())
	if err != nil {
		httpx.FailErr(c, httpx.ErrInternalError("failed to read sync status", err))
		return
	}
	httpx.OK(c, SyncResult{OK: true, Status: st})
}

// SetupRouter registers the local API. A non-empty token requires bearer auth on /agent/v1.
func SetupRouter(r *gin.Engine, svc SyncService, token string, logger *logrus.Entry) {
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	h := &Handler{sync: svc}
	group := r.Group("/agent/v1")
	if token != "" {
		group.Use(middleware.SyncAuth(token))
	}
	group.GET("/status", h.Status)
	group.POST("/sync", h.Sync)
}
