package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"go_cfgsync/agent/config"
	"go_cfgsync/agent/executor"
	"go_cfgsync/agent/identity"
	"go_cfgsync/agent/provider"
	"go_cfgsync/agent/store"
)

// SyncPath is appended to the configured base URL
const SyncPath = "/api/v1/devices/sync"

// SyncRequest is the body posted to the management service
type SyncRequest struct {
	DeviceID            string                   `json:"deviceId"`
	AppVersion          string                   `json:"appVersion,omitempty"`
	AppliedAdminVersion *int64                   `json:"appliedAdminVersion,omitempty"`
	Snapshot            *provider.DeviceSnapshot `json:"snapshot"`
	ClientTime          string                   `json:"clientTime"`
}

// SyncResponse is the management service reply
type SyncResponse struct {
	OK           bool            `json:"ok"`
	ServerTime   string          `json:"serverTime"`
	AdminConfig  json.RawMessage `json:"adminConfig,omitempty"`
	AdminVersion *int64          `json:"adminVersion,omitempty"`
}

// Status is the locally recorded sync state
type Status struct {
	DeviceID            string `json:"deviceId"`
	AppliedAdminVersion *int64 `json:"appliedAdminVersion"`
	LastSyncAt          string `json:"lastSyncAt,omitempty"`
	LastSyncError       string `json:"lastSyncError,omitempty"`
}

// Client runs one sync cycle at a time against the management service
type Client struct {
	cfg        *config.Config
	httpClient *http.Client
	identity   *identity.Identity
	settings   *store.Settings
	collector  *executor.Collector
	applier    *executor.Applier
	logger     *logrus.Entry
	now        func() time.Time

	mu sync.Mutex
}

// NewClient creates a sync client over the agent's local store
func NewClient(cfg *config.Config, db *store.DB, ident *identity.Identity, logger *logrus.Entry) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		identity:   ident,
		settings:   db.Settings(),
		collector:  executor.NewCollector(db.Providers()),
		applier:    executor.NewApplier(db.Providers(), logger),
		logger:     logger.WithField("component", "sync_client"),
		now:        time.Now,
	}
}

// RunOnce performs one sync. A concurrent call returns ErrInFlight without doing anything.
// The outcome is recorded as last sync error (cleared on success).
func (c *Client) RunOnce(ctx context.Context) error {
	if !c.mu.TryLock() {
		return ErrInFlight
	}
	defer c.mu.Unlock()

	start := c.now()
	err := c.runOnce(ctx)
	c.recordResult(context.WithoutCancel(ctx), err)

	if err != nil {
		c.logger.WithError(err).Warn("sync failed")
		return err
	}
	c.logger.WithField("duration", c.now().Sub(start).String()).Info("sync finished")
	return nil
}

func (c *Client) runOnce(ctx context.Context) error {
	baseURL := strings.TrimSpace(c.cfg.BaseURL)
	token := strings.TrimSpace(c.cfg.SyncToken)
	if baseURL == "" || token == "" {
		return newError(ConfigError, "management URL and sync token are required", nil)
	}

	deviceID, err := c.identity.GetOrCreate(ctx)
	if err != nil {
		if errors.Is(err, identity.ErrFingerprint) {
			return newError(HardwareFingerprintError, "read device fingerprint", err)
		}
		return newError(StorageError, "load device id", err)
	}

	snapshot, err := c.collector.Collect(ctx)
	if err != nil {
		return newError(StorageError, "collect snapshot", err)
	}

	applied, err := c.appliedVersion(ctx)
	if err != nil {
		return newError(StorageError, "load applied version", err)
	}

	req := SyncRequest{
		DeviceID:            deviceID,
		AppVersion:          c.cfg.AppVersion,
		AppliedAdminVersion: applied,
		Snapshot:            snapshot,
		ClientTime:          c.now().Format(time.RFC3339),
	}

	resp, err := c.post(ctx, strings.TrimRight(baseURL, "/")+SyncPath, token, req)
	if err != nil {
		return err
	}
	if !resp.OK {
		c.logger.Warn("management service answered ok=false")
		return nil
	}

	if hasAdminConfig(resp.AdminConfig) {
		var pushed provider.DeviceSnapshot
		if err := json.Unmarshal(resp.AdminConfig, &pushed); err != nil {
			return newError(ParseError, "decode admin config", err)
		}
		if err := c.applier.Apply(ctx, &pushed); err != nil {
			if errors.Is(err, executor.ErrInvalidAdminConfig) {
				return newError(InvalidAdminConfigError, "apply admin config", err)
			}
			return newError(StorageError, "apply admin config", err)
		}
		if resp.AdminVersion != nil {
			v := strconv.FormatInt(*resp.AdminVersion, 10)
			if err := c.settings.Set(ctx, store.KeyAppliedVersion, v); err != nil {
				return newError(StorageError, "save applied version", err)
			}
		}
	}

	if err := c.settings.Set(ctx, store.KeyLastSyncAt, c.now().Format(time.RFC3339)); err != nil {
		return newError(StorageError, "save last sync time", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, endpoint, token string, body SyncRequest) (*SyncResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, newError(ParseError, "encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, newError(ConfigError, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, newError(TransportError, "send request", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, newError(TransportError, "read response", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, &Error{
			Kind:    TransportError,
			Status:  httpResp.StatusCode,
			Message: fmt.Sprintf("unexpected response: %s", truncate(string(respBody), 256)),
		}
	}

	var resp SyncResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, newError(ParseError, "decode response", err)
	}
	return &resp, nil
}

// appliedVersion returns the stored version, nil when absent, unparsable or not positive
func (c *Client) appliedVersion(ctx context.Context) (*int64, error) {
	raw, ok, err := c.settings.Get(ctx, store.KeyAppliedVersion)
	if err != nil || !ok {
		return nil, err
	}
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || v <= 0 {
		return nil, nil
	}
	return &v, nil
}

func (c *Client) recordResult(ctx context.Context, runErr error) {
	var err error
	if runErr != nil {
		err = c.settings.Set(ctx, store.KeyLastSyncError, runErr.Error())
	} else {
		err = c.settings.Delete(ctx, store.KeyLastSyncError)
	}
	if err != nil {
		c.logger.WithError(err).Warn("failed to record sync result")
	}
}

// Status reads the recorded sync state. The device id is empty until the first sync.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	st := &Status{}

	id, _, err := c.settings.Get(ctx, store.KeyDeviceID)
	if err != nil {
		return nil, err
	}
	st.DeviceID = id

	if st.AppliedAdminVersion, err = c.appliedVersion(ctx); err != nil {
		return nil, err
	}
	if st.LastSyncAt, _, err = c.settings.Get(ctx, store.KeyLastSyncAt); err != nil {
		return nil, err
	}
	if st.LastSyncError, _, err = c.settings.Get(ctx, store.KeyLastSyncError); err != nil {
		return nil, err
	}
	return st, nil
}

func hasAdminConfig(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
