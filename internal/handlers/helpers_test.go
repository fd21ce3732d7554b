package handlers

import (
	"testing"
	"time"

	"chat-hub/internal/auth"
	"chat-hub/internal/config"
	"chat-hub/internal/metrics"
	"chat-hub/internal/models"
	"chat-hub/internal/realtime"
	"chat-hub/internal/store"
	"chat-hub/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testEnv struct {
	db      *gorm.DB
	hub     *realtime.Hub
	tokens  *auth.Tokens
	metrics *metrics.Metrics
	cfg     config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := testutil.NewInMemoryDB()
	require.NoError(t, err)

	st := store.New(db)
	m := metrics.New()
	return &testEnv{
		db:      db,
		hub:     realtime.NewHub(st, st, realtime.Options{Logger: testutil.DiscardLogger(), Metrics: m}),
		tokens:  auth.NewTokens("test-secret", "chat-hub", "chat-hub-clients", time.Hour),
		metrics: m,
		cfg:     config.Default(),
	}
}

func (e *testEnv) seedUser(t *testing.T, id, username string) {
	t.Helper()
	require.NoError(t, e.db.Create(&models.User{ID: id, Username: username, Password: "x"}).Error)
}

func (e *testEnv) seedRoom(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, e.db.Create(&models.Room{ID: id, Name: id, Type: models.RoomPublic, CreatorID: "u-alice"}).Error)
}

func (e *testEnv) token(t *testing.T, userID, username string) string {
	t.Helper()
	token, err := e.tokens.GenerateToken(userID, username)
	require.NoError(t, err)
	return token
}
