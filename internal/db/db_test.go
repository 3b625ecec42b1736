package db

import (
	"path/filepath"
	"testing"

	"go_cfgsync/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLiteAndMigrate(t *testing.T) {
	gdb, err := Open("sqlite", filepath.Join(t.TempDir(), "cfgsync.db"))
	require.NoError(t, err)
	defer Close(gdb)

	require.NoError(t, Migrate(gdb))
	// idempotent
	require.NoError(t, Migrate(gdb))

	for _, m := range []interface{}{&model.Device{}, &model.ConfigSnapshot{}, &model.AdminConfig{}} {
		assert.True(t, gdb.Migrator().HasTable(m))
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("oracle", "whatever")
	assert.Error(t, err)
}

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a.db", "a.db?_pragma=busy_timeout(5000)"},
		{"file:a.db?cache=shared", "file:a.db?cache=shared&_pragma=busy_timeout(5000)"},
		{"a.db?_pragma=busy_timeout(100)", "a.db?_pragma=busy_timeout(100)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sqliteDSN(tt.in))
	}
}
