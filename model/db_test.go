package model

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fuchsia74/grok-api/common"
)

// setupTestDatabase swaps the global DB for an in-memory SQLite instance with
// the gateway schema applied, restoring the original on cleanup. Each test
// gets its own shared-cache database keyed by the test name.
func setupTestDatabase(t *testing.T) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, gdb.AutoMigrate(&TokenInfo{}, &Option{}, &Trace{}))

	originalDB := DB
	originalSQLite := common.UsingSQLite.Load()
	DB = gdb
	common.UsingSQLite.Store(true)

	t.Cleanup(func() {
		sqlDB, err := gdb.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
		DB = originalDB
		common.UsingSQLite.Store(originalSQLite)
	})
}
