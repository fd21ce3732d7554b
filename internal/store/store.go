// Package store is the durable record store behind the hub: messages, read
// receipts, user status and room access, on top of GORM.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chat-hub/internal/cache"
	"chat-hub/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrForbidden is returned when the caller may not modify the record.
	ErrForbidden = errors.New("not allowed")
)

// profileTTL bounds how stale a broadcast sender name or avatar can be.
const profileTTL = time.Minute

// NewMessage is the input to CreateMessage.
type NewMessage struct {
	RoomID   string
	SenderID string
	Content  string
	Type     models.MessageType
	FileURL  string
	FileName string
	FileSize int64
}

// Store implements the storage and access-control collaborators of the hub.
type Store struct {
	db       *gorm.DB
	profiles *cache.TTL[string, models.Sender]
	now      func() time.Time
}

// New wraps an opened, migrated database.
func New(db *gorm.DB) *Store {
	return &Store{
		db:       db,
		profiles: cache.New[string, models.Sender](profileTTL),
		now:      time.Now,
	}
}

// RunJanitor drops expired sender profiles until ctx is done.
func (s *Store) RunJanitor(ctx context.Context) {
	s.profiles.RunJanitor(ctx, profileTTL)
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// CreateMessage persists a new message in an existing room.
func (s *Store) CreateMessage(ctx context.Context, in NewMessage) (*models.Message, error) {
	db := s.db.WithContext(ctx)

	var count int64
	if err := db.Model(&models.Room{}).Where("id = ?", in.RoomID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("lookup room: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("room %s: %w", in.RoomID, ErrNotFound)
	}

	msgType := in.Type
	if msgType == "" {
		msgType = models.TypeText
	}
	msg := models.Message{
		ID:        uuid.NewString(),
		RoomID:    in.RoomID,
		SenderID:  in.SenderID,
		Content:   in.Content,
		Type:      msgType,
		FileURL:   in.FileURL,
		FileName:  in.FileName,
		FileSize:  in.FileSize,
		CreatedAt: s.now(),
	}
	if err := db.Create(&msg).Error; err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return &msg, nil
}

// UpdateRoomLastMessage points the room's last message at messageID.
func (s *Store) UpdateRoomLastMessage(ctx context.Context, roomID, messageID string) error {
	res := s.db.WithContext(ctx).Model(&models.Room{}).
		Where("id = ?", roomID).
		Updates(map[string]any{
			"last_message_id": messageID,
			"updated_at":      s.now(),
		})
	if res.Error != nil {
		return fmt.Errorf("update room last message: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("room %s: %w", roomID, ErrNotFound)
	}
	return nil
}

func (s *Store) loadSender(ctx context.Context, userID string) (models.Sender, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Select("id", "username", "avatar").Where("id = ?", userID).First(&u).Error; err != nil {
		return models.Sender{}, notFound(err, "sender "+userID)
	}
	return models.Sender{ID: u.ID, Username: u.Username, Avatar: u.Avatar}, nil
}

// Enrich attaches the sender's display attributes and read receipts.
func (s *Store) Enrich(ctx context.Context, msg *models.Message) (*models.EnrichedMessage, error) {
	sender, err := s.profiles.GetOrLoad(ctx, msg.SenderID, s.loadSender)
	if err != nil {
		return nil, err
	}

	readBy := msg.ReadBy
	if readBy == nil {
		if err := s.db.WithContext(ctx).Where("message_id = ?", msg.ID).Order("read_at").Find(&readBy).Error; err != nil {
			return nil, fmt.Errorf("load read receipts: %w", err)
		}
	}
	if readBy == nil {
		readBy = []models.ReadReceipt{}
	}

	return &models.EnrichedMessage{
		ID:        msg.ID,
		RoomID:    msg.RoomID,
		Sender:    sender,
		Content:   msg.Content,
		Type:      msg.Type,
		FileURL:   msg.FileURL,
		FileName:  msg.FileName,
		FileSize:  msg.FileSize,
		Deleted:   msg.Deleted,
		ReadBy:    readBy,
		CreatedAt: msg.CreatedAt,
	}, nil
}

// MarkRead records that userID read messageID. The reader must have access to
// the message's room, else ErrForbidden. The returned bool is true only when
// the receipt did not exist before.
func (s *Store) MarkRead(ctx context.Context, messageID, userID string) (*models.Message, bool, error) {
	db := s.db.WithContext(ctx)

	var msg models.Message
	if err := db.Where("id = ?", messageID).First(&msg).Error; err != nil {
		return nil, false, notFound(err, "message "+messageID)
	}
	allowed, err := s.CanAccessRoom(ctx, userID, msg.RoomID)
	if err != nil {
		return nil, false, err
	}
	if !allowed {
		return nil, false, fmt.Errorf("read message %s: %w", messageID, ErrForbidden)
	}

	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.ReadReceipt{
		MessageID: messageID,
		UserID:    userID,
		ReadAt:    s.now(),
	})
	if res.Error != nil {
		return nil, false, fmt.Errorf("record read receipt: %w", res.Error)
	}
	return &msg, res.RowsAffected == 1, nil
}

// SetUserStatus updates the user's stored status and last-seen time.
func (s *Store) SetUserStatus(ctx context.Context, userID string, status models.UserStatus) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"status":    status,
			"last_seen": s.now(),
		})
	if res.Error != nil {
		return fmt.Errorf("update user status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	s.profiles.Delete(userID)
	return nil
}

// CanAccessRoom reports whether userID may join roomID: the room is public,
// or the user is one of its members or participants.
func (s *Store) CanAccessRoom(ctx context.Context, userID, roomID string) (bool, error) {
	db := s.db.WithContext(ctx)

	var room models.Room
	if err := db.Select("id", "type").Where("id = ?", roomID).First(&room).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("lookup room: %w", err)
	}
	if room.Type == models.RoomPublic {
		return true, nil
	}

	var count int64
	if err := db.Model(&models.RoomMember{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("lookup membership: %w", err)
	}
	return count > 0, nil
}

// SoftDeleteMessage marks a message deleted and blanks its content. Only the
// sender may delete a message.
func (s *Store) SoftDeleteMessage(ctx context.Context, messageID, userID string) (*models.Message, error) {
	db := s.db.WithContext(ctx)

	var msg models.Message
	if err := db.Where("id = ?", messageID).First(&msg).Error; err != nil {
		return nil, notFound(err, "message "+messageID)
	}
	if msg.SenderID != userID {
		return nil, fmt.Errorf("delete message %s: %w", messageID, ErrForbidden)
	}

	msg.Deleted = true
	msg.Content = models.DeletedContent
	if err := db.Model(&msg).Updates(map[string]any{
		"deleted": true,
		"content": models.DeletedContent,
	}).Error; err != nil {
		return nil, fmt.Errorf("soft delete message: %w", err)
	}
	return &msg, nil
}
