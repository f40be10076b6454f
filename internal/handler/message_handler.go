package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"project-service/internal/model"
	"project-service/internal/tenancy"
	"project-service/pkg/database"
	"project-service/pkg/logger"
	"project-service/prometheus"
)

// MessageHandler serves tenant-scoped chat rooms and messages. Published
// messages fan out over Redis pub/sub on a tenant-derived channel name.
type MessageHandler struct {
	guard *tenancy.Guard
	redis *redis.Client
}

// NewMessageHandler constructs a MessageHandler.
func NewMessageHandler(guard *tenancy.Guard, rdb *redis.Client) *MessageHandler {
	return &MessageHandler{guard: guard, redis: rdb}
}

// CreateRoom creates a room and adds the creator as its first member
func (h *MessageHandler) CreateRoom(c echo.Context) error {
	log := logger.FromContext(c)
	ctx := c.Request().Context()

	tenantID, err := h.guard.RequireTenantContext(c)
	if err != nil {
		return respondError(c, err)
	}
	actorID, ok := actingUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&req); err != nil || req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	if err := h.guard.AssertTenantIDOnInsert(tenantID, "chat_rooms"); err != nil {
		return respondError(c, err)
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	room := model.ChatRoom{TenantID: tenantID, Name: req.Name, CreatedBy: actorID}
	err = database.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&room).Error; err != nil {
			return err
		}
		member := model.ChatRoomMember{TenantID: tenantID, RoomID: room.ID, UserID: actorID}
		return tx.Create(&member).Error
	})
	if err != nil {
		log.Error("Failed to create chat room", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "room creation failed"})
	}

	log.Info("Chat room created", zap.Uint("room_id", room.ID), zap.Uint("tenant_id", tenantID))
	return c.JSON(http.StatusCreated, room)
}

// ListRooms lists the rooms the acting user belongs to
func (h *MessageHandler) ListRooms(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := h.guard.RequireTenantContext(c)
	if err != nil {
		return respondError(c, err)
	}
	actorID, ok := actingUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var rooms []model.ChatRoom
	if err := database.GetDB().WithContext(ctx).
		Where("tenant_id = ? AND id IN (?)", tenantID,
			database.GetDB().Model(&model.ChatRoomMember{}).
				Select("room_id").
				Where("tenant_id = ? AND user_id = ?", tenantID, actorID)).
		Order("id ASC").
		Find(&rooms).Error; err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, rooms)
}

// Join adds the acting user to a room in their tenant
func (h *MessageHandler) Join(c echo.Context) error {
	log := logger.FromContext(c)
	ctx := c.Request().Context()

	tenantID, err := h.guard.RequireTenantContext(c)
	if err != nil {
		return respondError(c, err)
	}
	actorID, ok := actingUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	roomID, err := parseIDParam(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid room ID"})
	}

	room, err := h.loadScopedRoom(c, tenantID, roomID)
	if err != nil {
		return respondError(c, err)
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	member := model.ChatRoomMember{TenantID: tenantID, RoomID: room.ID, UserID: actorID}
	if err := database.GetDB().WithContext(ctx).Create(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "already a member"})
		}
		log.Error("Failed to join room", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "join failed"})
	}
	return c.JSON(http.StatusCreated, member)
}

// ListMessages returns a room's recent messages, newest last
func (h *MessageHandler) ListMessages(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := h.guard.RequireTenantContext(c)
	if err != nil {
		return respondError(c, err)
	}
	actorID, ok := actingUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	roomID, err := parseIDParam(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid room ID"})
	}

	room, err := h.loadScopedRoom(c, tenantID, roomID)
	if err != nil {
		return respondError(c, err)
	}
	if err := h.requireMembership(c, tenantID, room.ID, actorID); err != nil {
		return respondError(c, err)
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var messages []model.ChatMessage
	if err := database.GetDB().WithContext(ctx).
		Where("tenant_id = ? AND room_id = ?", tenantID, room.ID).
		Order("id ASC").
		Limit(100).
		Find(&messages).Error; err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, messages)
}

// SendMessage persists a message and publishes it on the tenant-derived
// channel. A publish failure is logged but never fails the request; the
// message is already durable.
func (h *MessageHandler) SendMessage(c echo.Context) error {
	log := logger.FromContext(c)
	ctx := c.Request().Context()

	tenantID, err := h.guard.RequireTenantContext(c)
	if err != nil {
		return respondError(c, err)
	}
	actorID, ok := actingUserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	roomID, err := parseIDParam(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid room ID"})
	}

	var req struct {
		Body string `json:"body"`
	}
	if err := c.Bind(&req); err != nil || req.Body == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "body is required"})
	}

	room, err := h.loadScopedRoom(c, tenantID, roomID)
	if err != nil {
		return respondError(c, err)
	}
	if err := h.requireMembership(c, tenantID, room.ID, actorID); err != nil {
		return respondError(c, err)
	}

	if err := h.guard.AssertTenantIDOnInsert(tenantID, "chat_messages"); err != nil {
		return respondError(c, err)
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	msg := model.ChatMessage{
		TenantID: tenantID,
		RoomID:   room.ID,
		SenderID: actorID,
		Body:     req.Body,
	}
	if err := database.GetDB().WithContext(ctx).Create(&msg).Error; err != nil {
		log.Error("Failed to persist message", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "message send failed"})
	}

	if h.redis != nil {
		payload, _ := json.Marshal(msg)
		channel := tenancy.RoomName(tenantID, room.ID)
		if err := h.redis.Publish(ctx, channel, payload).Err(); err != nil {
			log.Warn("Failed to publish message", zap.String("channel", channel), zap.Error(err))
		}
	}

	return c.JSON(http.StatusCreated, msg)
}

// loadScopedRoom fetches a room and asserts it belongs to the effective
// tenant.
func (h *MessageHandler) loadScopedRoom(c echo.Context, tenantID, roomID uint) (*model.ChatRoom, error) {
	ctx := c.Request().Context()

	var room model.ChatRoom
	if err := database.GetDB().WithContext(ctx).First(&room, roomID).Error; err != nil {
		return nil, err
	}
	if err := h.guard.AssertScopedRoom(room.TenantID, tenantID, room.ID); err != nil {
		return nil, err
	}
	return &room, nil
}

// requireMembership asserts the acting user is a member of the room.
func (h *MessageHandler) requireMembership(c echo.Context, tenantID, roomID, userID uint) error {
	ctx := c.Request().Context()

	var count int64
	if err := database.GetDB().WithContext(ctx).
		Model(&model.ChatRoomMember{}).
		Where("tenant_id = ? AND room_id = ? AND user_id = ?", tenantID, roomID, userID).
		Count(&count).Error; err != nil {
		return err
	}
	return h.guard.AssertChatMembership(count > 0, roomID, userID)
}
