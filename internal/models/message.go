package models

import "time"

// MessageType represents the kind of content a message carries
type MessageType string

const (
	TypeText  MessageType = "text"
	TypeImage MessageType = "image"
	TypeFile  MessageType = "file"
)

// DeletedContent replaces the content of a soft-deleted message
const DeletedContent = "This message has been deleted"

// Message represents a persisted chat message. Messages are never hard
// deleted; Deleted marks a soft delete.
type Message struct {
	ID        string        `json:"id" gorm:"primaryKey"`
	RoomID    string        `json:"roomId" gorm:"column:room_id;not null;index:idx_messages_room_created"`
	SenderID  string        `json:"senderId" gorm:"column:sender_id;not null"`
	Content   string        `json:"content" gorm:"not null"`
	Type      MessageType   `json:"type" gorm:"not null;default:'text'"`
	FileURL   string        `json:"fileUrl,omitempty" gorm:"column:file_url"`
	FileName  string        `json:"fileName,omitempty" gorm:"column:file_name"`
	FileSize  int64         `json:"fileSize,omitempty" gorm:"column:file_size"`
	Deleted   bool          `json:"deleted" gorm:"not null;default:false"`
	ReadBy    []ReadReceipt `json:"readBy" gorm:"foreignKey:MessageID"`
	CreatedAt time.Time     `json:"createdAt" gorm:"index:idx_messages_room_created"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// TableName specifies the table name for Message Model
func (Message) TableName() string {
	return "messages"
}

// ReadReceipt records that a user has read a message
type ReadReceipt struct {
	MessageID string    `json:"messageId" gorm:"primaryKey;column:message_id"`
	UserID    string    `json:"userId" gorm:"primaryKey;column:user_id"`
	ReadAt    time.Time `json:"readAt" gorm:"column:read_at"`
}

// TableName specifies the table name for ReadReceipt Model
func (ReadReceipt) TableName() string {
	return "read_receipts"
}

// Sender is the display projection of a user attached to broadcast messages
type Sender struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// EnrichedMessage is a stored message with its sender's display attributes
type EnrichedMessage struct {
	ID        string        `json:"id"`
	RoomID    string        `json:"roomId"`
	Sender    Sender        `json:"sender"`
	Content   string        `json:"content"`
	Type      MessageType   `json:"type"`
	FileURL   string        `json:"fileUrl,omitempty"`
	FileName  string        `json:"fileName,omitempty"`
	FileSize  int64         `json:"fileSize,omitempty"`
	Deleted   bool          `json:"deleted"`
	ReadBy    []ReadReceipt `json:"readBy"`
	CreatedAt time.Time     `json:"createdAt"`
}
