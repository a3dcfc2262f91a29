// Package dbtest opens the integration test database. Tests using it skip
// unless NUDGE_TEST_DATABASE_URL is set.
package dbtest

import (
	"os"
	"testing"

	"gorm.io/gorm"

	"nudge/internal/db"
)

const EnvDatabaseURL = "NUDGE_TEST_DATABASE_URL"

var tables = []string{
	"outbox_messages",
	"tasks",
	"contact_bindings",
	"inbound_messages",
	"chat_messages",
	"feature_flags",
	"daily_sends",
	"nudge_throttles",
	"users",
}

// Open connects, migrates and empties every table.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := os.Getenv(EnvDatabaseURL)
	if dsn == "" {
		t.Skip(EnvDatabaseURL + " not set")
	}

	gdb, err := db.Connect(dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrateAndIndexes(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, tbl := range tables {
		if err := gdb.Exec("truncate table " + tbl + " restart identity").Error; err != nil {
			t.Fatalf("truncate %s: %v", tbl, err)
		}
	}
	return gdb
}
