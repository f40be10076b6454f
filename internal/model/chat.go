package model

import (
	"time"

	"gorm.io/gorm"
)

// ChatRoom is a tenant-owned messaging room. The wire-level room name is
// always derived from tenant id plus room id (see tenancy.RoomName) so a
// subscriber can never receive another tenant's messages.
type ChatRoom struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	TenantID  uint           `json:"tenant_id" gorm:"index;not null"`
	Name      string         `json:"name" gorm:"type:varchar(100);not null"`
	CreatedBy uint           `json:"created_by" gorm:"not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// ChatRoomMember binds a user to a room. Membership is asserted before any
// message read or write.
type ChatRoomMember struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	TenantID  uint      `json:"tenant_id" gorm:"index;not null"`
	RoomID    uint      `json:"room_id" gorm:"not null;uniqueIndex:idx_chat_member_room_user"`
	UserID    uint      `json:"user_id" gorm:"not null;uniqueIndex:idx_chat_member_room_user"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatMessage is a message persisted in a room.
type ChatMessage struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	TenantID  uint      `json:"tenant_id" gorm:"index;not null"`
	RoomID    uint      `json:"room_id" gorm:"index;not null"`
	SenderID  uint      `json:"sender_id" gorm:"not null"`
	Body      string    `json:"body" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at"`
}
