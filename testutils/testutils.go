// Package testutils provides common utilities for testing across the slotify
// project.
package testutils

import (
	"fmt"
	"sync/atomic"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ziyixi/slotify/slot"
	"github.com/ziyixi/slotify/store"
)

var dbCounter atomic.Int64

// NewTestDB creates an isolated in-memory SQLite database for one test. The
// pool is pinned to a single connection so concurrent transactions serialize
// the way a real SQLite file does.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:slotify_test_%d?mode=memory&cache=shared", dbCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get SQL DB from GORM: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}
	if err := db.AutoMigrate(&store.User{}, &store.Phone{}, &store.IP{}, &store.Slot{}); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

// NewTestStore wraps NewTestDB in a store with a UTC default policy, the
// configuration nearly every test wants.
func NewTestStore(t *testing.T) *store.Storage {
	t.Helper()

	policy, err := slot.NewPolicy(0, 0, "UTC")
	if err != nil {
		t.Fatalf("Failed to build test policy: %v", err)
	}
	return store.New(NewTestDB(t), policy)
}
