package workspace

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"project-service/internal/model"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&model.Workspace{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestPrimaryWorkspaceID(t *testing.T) {
	db := openTestDB(t)
	cache := NewCache(db, time.Minute)
	ctx := context.Background()

	secondary := model.Workspace{TenantID: 1, Name: "secondary"}
	primary := model.Workspace{TenantID: 1, Name: "main", IsPrimary: true}
	if err := db.Create(&secondary).Error; err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := db.Create(&primary).Error; err != nil {
		t.Fatalf("create failed: %v", err)
	}

	id, err := cache.PrimaryWorkspaceID(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != primary.ID {
		t.Fatalf("expected primary workspace %d, got %d", primary.ID, id)
	}
}

func TestPrimaryWorkspaceFallback(t *testing.T) {
	db := openTestDB(t)
	cache := NewCache(db, time.Minute)
	ctx := context.Background()

	// No primary flag set: the lowest-id workspace wins
	first := model.Workspace{TenantID: 2, Name: "first"}
	second := model.Workspace{TenantID: 2, Name: "second"}
	if err := db.Create(&first).Error; err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := db.Create(&second).Error; err != nil {
		t.Fatalf("create failed: %v", err)
	}

	id, err := cache.PrimaryWorkspaceID(ctx, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != first.ID {
		t.Fatalf("expected fallback workspace %d, got %d", first.ID, id)
	}
}

func TestPrimaryWorkspaceNone(t *testing.T) {
	db := openTestDB(t)
	cache := NewCache(db, time.Minute)

	if _, err := cache.PrimaryWorkspaceID(context.Background(), 99); !errors.Is(err, ErrNoWorkspace) {
		t.Fatalf("expected ErrNoWorkspace, got %v", err)
	}
}

func TestCacheServesStaleUntilInvalidate(t *testing.T) {
	db := openTestDB(t)
	cache := NewCache(db, time.Minute)
	ctx := context.Background()

	ws := model.Workspace{TenantID: 3, Name: "main", IsPrimary: true}
	if err := db.Create(&ws).Error; err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := cache.PrimaryWorkspaceID(ctx, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Promote a new primary underneath the cache
	replacement := model.Workspace{TenantID: 3, Name: "replacement", IsPrimary: true}
	if err := db.Create(&replacement).Error; err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := db.Model(&ws).Update("is_primary", false).Error; err != nil {
		t.Fatalf("update failed: %v", err)
	}

	id, err := cache.PrimaryWorkspaceID(ctx, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != ws.ID {
		t.Fatalf("expected stale cached value %d before invalidation, got %d", ws.ID, id)
	}

	cache.Invalidate(3)
	id, err = cache.PrimaryWorkspaceID(ctx, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != replacement.ID {
		t.Fatalf("expected fresh value %d after invalidation, got %d", replacement.ID, id)
	}
}

func TestCacheEntryExpires(t *testing.T) {
	db := openTestDB(t)
	cache := NewCache(db, 20*time.Millisecond)
	ctx := context.Background()

	ws := model.Workspace{TenantID: 4, Name: "main", IsPrimary: true}
	if err := db.Create(&ws).Error; err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := cache.PrimaryWorkspaceID(ctx, 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	replacement := model.Workspace{TenantID: 4, Name: "replacement", IsPrimary: true}
	if err := db.Create(&replacement).Error; err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := db.Model(&ws).Update("is_primary", false).Error; err != nil {
		t.Fatalf("update failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	id, err := cache.PrimaryWorkspaceID(ctx, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != replacement.ID {
		t.Fatalf("expected refreshed value %d after TTL, got %d", replacement.ID, id)
	}
}
