package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go_cfgsync/agent/config"
	"go_cfgsync/agent/identity"
	"go_cfgsync/agent/provider"
	"go_cfgsync/agent/store"
)

type fakeReader struct {
	raw string
	err error
}

func (f fakeReader) Fingerprint() (string, error) { return f.raw, f.err }

var fixedNow = time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type fixture struct {
	client *Client
	db     *store.DB
	cfg    *config.Config
}

func newFixture(t *testing.T, baseURL string, reader identity.FingerprintReader) *fixture {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.Config{
		BaseURL:     baseURL,
		SyncToken:   "sync-secret",
		AppVersion:  "1.2.3",
		HTTPTimeout: 5 * time.Second,
	}
	c := NewClient(cfg, db, identity.New(db.Settings(), reader), testLogger())
	c.now = func() time.Time { return fixedNow }
	return &fixture{client: c, db: db, cfg: cfg}
}

func (f *fixture) setting(t *testing.T, key string) (string, bool) {
	t.Helper()
	v, ok, err := f.db.Settings().Get(context.Background(), key)
	require.NoError(t, err)
	return v, ok
}

func TestRunOnce_SendsRequest(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, SyncPath, r.URL.Path)
		assert.Equal(t, "Bearer sync-secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true,"serverTime":"2024-05-01T10:30:01Z"}`))
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL+"/", fakeReader{raw: "machine-1"})
	ctx := context.Background()
	require.NoError(t, f.db.Providers().Add(ctx, provider.AppClaude, provider.Provider{
		ID: "p1", Name: "P1", SettingsConfig: json.RawMessage(`{"a":1}`),
	}))

	require.NoError(t, f.client.RunOnce(ctx))

	assert.Equal(t, identity.Hash("machine-1"), got["deviceId"])
	assert.Equal(t, "1.2.3", got["appVersion"])
	assert.Equal(t, "2024-05-01T10:30:00Z", got["clientTime"])
	assert.NotContains(t, got, "appliedAdminVersion")

	snapshot, ok := got["snapshot"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, snapshot, "claude")
	assert.NotContains(t, snapshot, "codex")

	lastSync, ok := f.setting(t, store.KeyLastSyncAt)
	assert.True(t, ok)
	assert.Equal(t, "2024-05-01T10:30:00Z", lastSync)
	_, ok = f.setting(t, store.KeyAppliedVersion)
	assert.False(t, ok)
}

func TestRunOnce_AppliesAdminConfig(t *testing.T) {
	var requests []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		requests = append(requests, body)
		_, _ = w.Write([]byte(`{"ok":true,"serverTime":"x","adminVersion":4,
			"adminConfig":{"codex":{"currentId":"b","providers":{"a":{"id":"a","name":"A","settingsConfig":{}},"b":{"id":"b","name":"B","settingsConfig":{"k":"v"}}}}}}`))
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL, fakeReader{raw: "machine-1"})
	ctx := context.Background()
	require.NoError(t, f.client.RunOnce(ctx))

	list, err := f.db.Providers().List(ctx, provider.AppCodex)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
	current, err := f.db.Providers().Current(ctx, provider.AppCodex)
	require.NoError(t, err)
	assert.Equal(t, "b", current)

	v, ok := f.setting(t, store.KeyAppliedVersion)
	assert.True(t, ok)
	assert.Equal(t, "4", v)

	// the next run reports the applied version and the adopted providers
	require.NoError(t, f.client.RunOnce(ctx))
	require.Len(t, requests, 2)
	assert.Equal(t, float64(4), requests[1]["appliedAdminVersion"])
	assert.Contains(t, requests[1]["snapshot"], "codex")
}

func TestRunOnce_InvalidAdminConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"adminVersion":2,
			"adminConfig":{"gemini":{"currentId":"missing","providers":{"a":{"id":"a","name":"A","settingsConfig":{}}}}}}`))
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL, fakeReader{raw: "machine-1"})
	err := f.client.RunOnce(context.Background())
	require.Error(t, err)
	assert.True(t, IsKind(err, InvalidAdminConfigError))

	_, ok := f.setting(t, store.KeyAppliedVersion)
	assert.False(t, ok)
	_, ok = f.setting(t, store.KeyLastSyncAt)
	assert.False(t, ok)
	lastErr, ok := f.setting(t, store.KeyLastSyncError)
	assert.True(t, ok)
	assert.Contains(t, lastErr, "invalid admin config")
}

func TestRunOnce_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL, fakeReader{raw: "machine-1"})
	err := f.client.RunOnce(context.Background())

	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, TransportError, se.Kind)
	assert.Equal(t, http.StatusBadGateway, se.Status)
	assert.Contains(t, se.Error(), "upstream down")

	_, ok := f.setting(t, store.KeyLastSyncAt)
	assert.False(t, ok)
}

func TestRunOnce_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	f := newFixture(t, url, fakeReader{raw: "machine-1"})
	err := f.client.RunOnce(context.Background())
	assert.True(t, IsKind(err, TransportError))
}

func TestRunOnce_ParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>not json</html>`))
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL, fakeReader{raw: "machine-1"})
	assert.True(t, IsKind(f.client.RunOnce(context.Background()), ParseError))
}

func TestRunOnce_NotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"adminVersion":3,"adminConfig":{"claude":{"currentId":"a","providers":{"a":{"id":"a","name":"A","settingsConfig":{}}}}}}`))
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL, fakeReader{raw: "machine-1"})
	ctx := context.Background()
	require.NoError(t, f.client.RunOnce(ctx))

	list, err := f.db.Providers().List(ctx, provider.AppClaude)
	require.NoError(t, err)
	assert.Empty(t, list)
	_, ok := f.setting(t, store.KeyLastSyncAt)
	assert.False(t, ok)
}

func TestRunOnce_MissingConfig(t *testing.T) {
	f := newFixture(t, "", fakeReader{raw: "machine-1"})
	assert.True(t, IsKind(f.client.RunOnce(context.Background()), ConfigError))

	f = newFixture(t, "http://127.0.0.1:1", fakeReader{raw: "machine-1"})
	f.cfg.SyncToken = "  "
	assert.True(t, IsKind(f.client.RunOnce(context.Background()), ConfigError))
}

func TestRunOnce_FingerprintFailure(t *testing.T) {
	f := newFixture(t, "http://127.0.0.1:1", fakeReader{err: errors.New("no machine id")})
	err := f.client.RunOnce(context.Background())
	assert.True(t, IsKind(err, HardwareFingerprintError))
	assert.ErrorIs(t, err, identity.ErrFingerprint)
}

func TestRunOnce_IgnoresBadAppliedVersion(t *testing.T) {
	for _, stored := range []string{"0", "-3", "abc"} {
		t.Run(stored, func(t *testing.T) {
			var got map[string]any
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				_, _ = w.Write([]byte(`{"ok":true}`))
			}))
			defer srv.Close()

			f := newFixture(t, srv.URL, fakeReader{raw: "machine-1"})
			require.NoError(t, f.db.Settings().Set(context.Background(), store.KeyAppliedVersion, stored))
			require.NoError(t, f.client.RunOnce(context.Background()))
			assert.NotContains(t, got, "appliedAdminVersion")
		})
	}
}

func TestRunOnce_SkipsWhenInFlight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL, fakeReader{raw: "machine-1"})
	done := make(chan error, 1)
	go func() { done <- f.client.RunOnce(context.Background()) }()

	<-entered
	assert.ErrorIs(t, f.client.RunOnce(context.Background()), ErrInFlight)
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), calls.Load())
}

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL, fakeReader{raw: "machine-1"})
	ctx := context.Background()

	st, err := f.client.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, st.DeviceID)
	assert.Nil(t, st.AppliedAdminVersion)

	require.Error(t, f.client.RunOnce(ctx))
	st, err = f.client.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, identity.Hash("machine-1"), st.DeviceID)
	assert.Contains(t, st.LastSyncError, "status 401")
	assert.Empty(t, st.LastSyncAt)
}

func TestRunOnce_RecordsErrorWhenCanceled(t *testing.T) {
	entered := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-r.Context().Done()
	}))
	defer srv.Close()

	f := newFixture(t, srv.URL, fakeReader{raw: "machine-1"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.client.RunOnce(ctx) }()

	<-entered
	cancel()
	err := <-done
	assert.True(t, IsKind(err, TransportError))

	lastErr, ok := f.setting(t, store.KeyLastSyncError)
	assert.True(t, ok)
	assert.Contains(t, lastErr, "context canceled")
}
