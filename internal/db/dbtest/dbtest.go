// Package dbtest opens throwaway SQLite ledgers for tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"ledger_system/internal/config"
	"ledger_system/internal/db"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Open returns a migrated SQLite database living in t's temp dir.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	cfg := &config.Config{
		DBDriver:   config.DriverSQLite,
		DBPath:     filepath.Join(t.TempDir(), "ledger.db"),
		DBLogLevel: "silent",
	}
	gdb, err := db.Open(cfg)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}
