package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"go_cfgsync/agent/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "data", "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	s := openTestDB(t).Settings()

	_, ok, err := s.Get(ctx, KeyDeviceID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, KeyDeviceID, "abc"))
	require.NoError(t, s.Set(ctx, KeyDeviceID, "def"))
	v, ok, err := s.Get(ctx, KeyDeviceID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "def", v)

	require.NoError(t, s.Delete(ctx, KeyDeviceID))
	require.NoError(t, s.Delete(ctx, KeyDeviceID))
	_, ok, err = s.Get(ctx, KeyDeviceID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProviders_AddListOrder(t *testing.T) {
	ctx := context.Background()
	ps := openTestDB(t).Providers()

	for _, id := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, ps.Add(ctx, provider.AppClaude, provider.Provider{
			ID:             id,
			Name:           "name-" + id,
			SettingsConfig: json.RawMessage(`{"env":{"KEY":"` + id + `"}}`),
		}))
	}
	require.NoError(t, ps.Add(ctx, provider.AppCodex, provider.Provider{ID: "other"}))

	list, err := ps.List(ctx, provider.AppClaude)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "zeta", list[0].ID)
	assert.Equal(t, "alpha", list[1].ID)
	assert.Equal(t, "mid", list[2].ID)
	assert.JSONEq(t, `{"env":{"KEY":"alpha"}}`, string(list[1].SettingsConfig))

	err = ps.Add(ctx, provider.AppClaude, provider.Provider{ID: "alpha"})
	assert.Error(t, err, "duplicate id")

	empty, err := ps.List(ctx, provider.AppGemini)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestProviders_SwitchAndCurrent(t *testing.T) {
	ctx := context.Background()
	ps := openTestDB(t).Providers()

	cur, err := ps.Current(ctx, provider.AppClaude)
	require.NoError(t, err)
	assert.Equal(t, "", cur)

	require.NoError(t, ps.Add(ctx, provider.AppClaude, provider.Provider{ID: "a"}))
	require.NoError(t, ps.Add(ctx, provider.AppClaude, provider.Provider{ID: "b"}))
	require.NoError(t, ps.SwitchActive(ctx, provider.AppClaude, "b"))

	cur, err = ps.Current(ctx, provider.AppClaude)
	require.NoError(t, err)
	assert.Equal(t, "b", cur)

	err = ps.SwitchActive(ctx, provider.AppClaude, "missing")
	assert.True(t, errors.Is(err, ErrProviderNotFound))

	require.NoError(t, ps.DeleteAll(ctx, provider.AppClaude))
	cur, err = ps.Current(ctx, provider.AppClaude)
	require.NoError(t, err)
	assert.Equal(t, "", cur)
}

func TestProviders_TransactionRollback(t *testing.T) {
	ctx := context.Background()
	ps := openTestDB(t).Providers()

	require.NoError(t, ps.Add(ctx, provider.AppClaude, provider.Provider{ID: "keep"}))
	require.NoError(t, ps.SwitchActive(ctx, provider.AppClaude, "keep"))

	boom := errors.New("boom")
	err := ps.Transaction(ctx, func(tx *ProviderStore) error {
		require.NoError(t, tx.DeleteAll(ctx, provider.AppClaude))
		require.NoError(t, tx.Add(ctx, provider.AppClaude, provider.Provider{ID: "new"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	list, err := ps.List(ctx, provider.AppClaude)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "keep", list[0].ID)

	cur, err := ps.Current(ctx, provider.AppClaude)
	require.NoError(t, err)
	assert.Equal(t, "keep", cur)
}

func TestProviders_TransactionCommitAndNesting(t *testing.T) {
	ctx := context.Background()
	ps := openTestDB(t).Providers()

	err := ps.Transaction(ctx, func(tx *ProviderStore) error {
		if err := tx.Add(ctx, provider.AppGemini, provider.Provider{ID: "g1"}); err != nil {
			return err
		}
		return tx.Transaction(ctx, func(inner *ProviderStore) error {
			return inner.SwitchActive(ctx, provider.AppGemini, "g1")
		})
	})
	require.NoError(t, err)

	cur, err := ps.Current(ctx, provider.AppGemini)
	require.NoError(t, err)
	assert.Equal(t, "g1", cur)
}
