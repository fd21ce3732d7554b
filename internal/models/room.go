package models

import "time"

// RoomType represents the visibility of a room
type RoomType string

const (
	RoomPublic  RoomType = "public"
	RoomPrivate RoomType = "private"
)

// MemberRole represents how a user belongs to a room
type MemberRole string

const (
	RoleMember      MemberRole = "member"
	RoleAdmin       MemberRole = "admin"
	RoleParticipant MemberRole = "participant"
)

// Room represents a chat room. One-to-one chats are private rooms with
// IsPrivateChat set and two participants.
type Room struct {
	ID            string    `json:"id" gorm:"primaryKey"`
	Name          string    `json:"name" gorm:"not null;size:50;index:idx_rooms_name_type"`
	Description   string    `json:"description" gorm:"size:200"`
	Type          RoomType  `json:"type" gorm:"not null;default:'public';index:idx_rooms_name_type"`
	IsPrivateChat bool      `json:"isPrivateChat" gorm:"column:is_private_chat;default:false"`
	CreatorID     string    `json:"creatorId" gorm:"column:creator_id;not null"`
	LastMessageID *string   `json:"lastMessageId" gorm:"column:last_message_id"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// TableName specifies the table name for Room Model
func (Room) TableName() string {
	return "rooms"
}

// RoomMember links a user to a room with a role
type RoomMember struct {
	RoomID string     `json:"roomId" gorm:"primaryKey;column:room_id"`
	UserID string     `json:"userId" gorm:"primaryKey;column:user_id;index"`
	Role   MemberRole `json:"role" gorm:"not null;default:'member'"`
}

// TableName specifies the table name for RoomMember Model
func (RoomMember) TableName() string {
	return "room_members"
}
