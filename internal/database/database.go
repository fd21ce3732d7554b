package database

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"chat-hub/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DefaultRoomID is the public room created on first start.
const DefaultRoomID = "general"

// Open opens the SQLite database file (created if missing) and runs migrations.
// glebarez/sqlite is a pure Go driver, no CGO required.
func Open(path string, logLevel logger.LogLevel) (*gorm.DB, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite allows a single writer; one pooled connection avoids SQLITE_BUSY churn.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates every table used by the hub.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Room{},
		&models.RoomMember{},
		&models.Message{},
		&models.ReadReceipt{},
	); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}

// SeedDefaultRoom makes sure the public "general" room exists. Room CRUD lives
// outside this service; the seed gives fresh installs somewhere to talk.
func SeedDefaultRoom(db *gorm.DB, log *slog.Logger) error {
	var room models.Room
	err := db.Where("id = ?", DefaultRoomID).First(&room).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("lookup default room: %w", err)
	}

	room = models.Room{
		ID:          DefaultRoomID,
		Name:        "General",
		Description: "Public room for everyone",
		Type:        models.RoomPublic,
		CreatorID:   "system",
		UpdatedAt:   time.Now(),
	}
	if err := db.Create(&room).Error; err != nil {
		return fmt.Errorf("create default room: %w", err)
	}
	log.Info("default room created", "room_id", room.ID)
	return nil
}
