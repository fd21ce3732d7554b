package database

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"chat-hub/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

func TestOpen_MigratesAndSeeds(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "chat.db"), logger.Silent)
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, SeedDefaultRoom(db, log))
	// Seeding twice is a no-op.
	require.NoError(t, SeedDefaultRoom(db, log))

	var rooms []models.Room
	require.NoError(t, db.Find(&rooms).Error)
	require.Len(t, rooms, 1)
	require.Equal(t, DefaultRoomID, rooms[0].ID)
	require.Equal(t, models.RoomPublic, rooms[0].Type)
}
