package handler

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"project-service/internal/model"
	"project-service/internal/tenancy"
	"project-service/pkg/database"
)

// openHandlerDB installs an in-memory database behind the package-level
// handle, configured the same way the production open path is.
func openHandlerDB(t *testing.T) *gorm.DB {
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

	if err := db.AutoMigrate(&model.ChatRoom{}, &model.ChatRoomMember{}, &model.ChatMessage{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	prev := database.DB
	database.DB = db
	t.Cleanup(func() { database.DB = prev })
	return db
}

func joinContext(tenantID, userID, roomID uint) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(strconv.FormatUint(uint64(roomID), 10))
	c.Set("tenant_id", tenantID)
	c.Set("acting_user_id", userID)
	return c, rec
}

func TestJoinRoomTwiceConflict(t *testing.T) {
	db := openHandlerDB(t)
	guard := tenancy.NewGuard(func() tenancy.Mode { return tenancy.ModeThrow }, "test", nil)
	h := NewMessageHandler(guard, nil)

	room := model.ChatRoom{TenantID: 1, Name: "general", CreatedBy: 9}
	if err := db.Create(&room).Error; err != nil {
		t.Fatalf("create failed: %v", err)
	}

	c, rec := joinContext(1, 5, room.ID)
	if err := h.Join(c); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	// The second join hits the unique (room, user) index and must surface
	// as a conflict, not an internal error
	c2, rec2 := joinContext(1, 5, room.ID)
	if err := h.Join(c2); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if rec2.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate join, got %d", rec2.Code)
	}

	var count int64
	if err := db.Model(&model.ChatRoomMember{}).
		Where("room_id = ? AND user_id = ?", room.ID, 5).
		Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one membership row, got %d", count)
	}
}
