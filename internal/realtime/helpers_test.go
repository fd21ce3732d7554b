package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"chat-hub/internal/models"
	"chat-hub/internal/store"
	"chat-hub/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeClient records every frame queued for it.
type fakeClient struct {
	id string

	mu         sync.Mutex
	frames     []Envelope
	closed     bool
	closeCalls int
}

func newFakeClient() *fakeClient {
	return &fakeClient{id: uuid.NewString()}
}

func (c *fakeClient) ID() string { return c.id }

func (c *fakeClient) Send(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	var env Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		panic(err)
	}
	c.frames = append(c.frames, env)
	return true
}

func (c *fakeClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.closeCalls++
}

// events returns the payloads of every received frame named event.
func (c *fakeClient) events(event string) []json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []json.RawMessage
	for _, f := range c.frames {
		if f.Event == event {
			out = append(out, f.Data)
		}
	}
	return out
}

func (c *fakeClient) count(event string) int {
	return len(c.events(event))
}

func (c *fakeClient) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

func (c *fakeClient) lastOnlineUsers(t *testing.T) []string {
	t.Helper()
	evts := c.events(EventOnlineUsers)
	require.NotEmpty(t, evts, "no online_users received")
	var users []string
	require.NoError(t, json.Unmarshal(evts[len(evts)-1], &users))
	return users
}

func (c *fakeClient) messages(t *testing.T) []models.EnrichedMessage {
	t.Helper()
	var out []models.EnrichedMessage
	for _, raw := range c.events(EventReceiveMessage) {
		var m models.EnrichedMessage
		require.NoError(t, json.Unmarshal(raw, &m))
		out = append(out, m)
	}
	return out
}

func decodeEvent[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

// newStoreHub builds a hub over a seeded in-memory database:
// users u-alice, u-bob, u-carol; public room "general"; private room
// "secret" with alice as its only member.
func newStoreHub(t *testing.T) (*Hub, *gorm.DB) {
	t.Helper()
	db, err := testutil.NewInMemoryDB()
	require.NoError(t, err)

	for _, u := range []models.User{
		{ID: "u-alice", Username: "alice", Password: "x", Avatar: "alice.png"},
		{ID: "u-bob", Username: "bob", Password: "x"},
		{ID: "u-carol", Username: "carol", Password: "x"},
	} {
		require.NoError(t, db.Create(&u).Error)
	}
	require.NoError(t, db.Create(&models.Room{ID: "general", Name: "General", Type: models.RoomPublic, CreatorID: "u-alice"}).Error)
	require.NoError(t, db.Create(&models.Room{ID: "random", Name: "Random", Type: models.RoomPublic, CreatorID: "u-alice"}).Error)
	require.NoError(t, db.Create(&models.Room{ID: "secret", Name: "Secret", Type: models.RoomPrivate, CreatorID: "u-alice"}).Error)
	require.NoError(t, db.Create(&models.RoomMember{RoomID: "secret", UserID: "u-alice", Role: models.RoleAdmin}).Error)

	st := store.New(db)
	return NewHub(st, st, Options{PersistTimeout: 2 * time.Second, Logger: testutil.DiscardLogger()}), db
}

var usernames = map[string]string{"u-alice": "alice", "u-bob": "bob", "u-carol": "carol"}

// connectAs opens a session for userID and authenticates it.
func connectAs(t *testing.T, h *Hub, userID string) (*Session, *fakeClient) {
	t.Helper()
	c := newFakeClient()
	s := h.Connect(c, Identity{UserID: userID, Username: usernames[userID]})
	require.NoError(t, s.Authenticate(context.Background(), userID))
	return s, c
}

// connectAndJoin authenticates userID and joins roomID.
func connectAndJoin(t *testing.T, h *Hub, userID, roomID string) (*Session, *fakeClient) {
	t.Helper()
	s, c := connectAs(t, h, userID)
	require.NoError(t, s.JoinRoom(context.Background(), roomID))
	return s, c
}

// mockStorage is a scriptable Storage.
type mockStorage struct{ mock.Mock }

func (m *mockStorage) CreateMessage(ctx context.Context, in store.NewMessage) (*models.Message, error) {
	args := m.Called(ctx, in)
	msg, _ := args.Get(0).(*models.Message)
	return msg, args.Error(1)
}

func (m *mockStorage) UpdateRoomLastMessage(ctx context.Context, roomID, messageID string) error {
	return m.Called(ctx, roomID, messageID).Error(0)
}

func (m *mockStorage) Enrich(ctx context.Context, msg *models.Message) (*models.EnrichedMessage, error) {
	args := m.Called(ctx, msg)
	out, _ := args.Get(0).(*models.EnrichedMessage)
	return out, args.Error(1)
}

func (m *mockStorage) MarkRead(ctx context.Context, messageID, userID string) (*models.Message, bool, error) {
	args := m.Called(ctx, messageID, userID)
	msg, _ := args.Get(0).(*models.Message)
	return msg, args.Bool(1), args.Error(2)
}

func (m *mockStorage) SetUserStatus(ctx context.Context, userID string, status models.UserStatus) error {
	return m.Called(ctx, userID, status).Error(0)
}

func (m *mockStorage) SoftDeleteMessage(ctx context.Context, messageID, userID string) (*models.Message, error) {
	args := m.Called(ctx, messageID, userID)
	msg, _ := args.Get(0).(*models.Message)
	return msg, args.Error(1)
}

type allowAll struct{}

func (allowAll) CanAccessRoom(context.Context, string, string) (bool, error) { return true, nil }

// newMockHub builds a hub over a mockStorage that accepts status updates.
func newMockHub(t *testing.T, timeout time.Duration) (*Hub, *mockStorage) {
	t.Helper()
	st := &mockStorage{}
	st.On("SetUserStatus", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	return NewHub(st, allowAll{}, Options{PersistTimeout: timeout, Logger: testutil.DiscardLogger()}), st
}
