// Package realtime is the presence and broadcast hub: it tracks who is online
// on which connection, which connections listen to which rooms, persists chat
// messages through the storage collaborator and fans events out to
// subscribers.
package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chat-hub/internal/metrics"
	"chat-hub/internal/models"
	"chat-hub/internal/store"
)

// Client is one live connection as seen by the hub. The network side is owned
// by the transport.
type Client interface {
	// ID is unique for the lifetime of the process.
	ID() string
	// Send queues message for delivery without blocking. It reports false
	// when the connection is closed or its queue is full.
	Send(message []byte) bool
	// Close tears down the transport. It must be safe to call more than once.
	Close()
}

// Storage is the durable record store the hub writes through.
type Storage interface {
	CreateMessage(ctx context.Context, in store.NewMessage) (*models.Message, error)
	UpdateRoomLastMessage(ctx context.Context, roomID, messageID string) error
	Enrich(ctx context.Context, msg *models.Message) (*models.EnrichedMessage, error)
	MarkRead(ctx context.Context, messageID, userID string) (*models.Message, bool, error)
	SetUserStatus(ctx context.Context, userID string, status models.UserStatus) error
	SoftDeleteMessage(ctx context.Context, messageID, userID string) (*models.Message, error)
}

// AccessChecker decides whether a user may subscribe to a room.
type AccessChecker interface {
	CanAccessRoom(ctx context.Context, userID, roomID string) (bool, error)
}

// Options configures a Hub.
type Options struct {
	// PersistTimeout bounds every storage call. Zero means 5s.
	PersistTimeout time.Duration
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
}

// Hub owns the shared state every session works against.
type Hub struct {
	presence    *Presence
	rooms       *Rooms
	seq         *keyedMutex // rooms: persist-then-broadcast
	statusLocks *keyedMutex // users: stored status writes

	mu       sync.RWMutex
	clients  map[string]Client
	sessions map[string]*Session

	storage Storage
	access  AccessChecker

	persistTimeout time.Duration
	log            *slog.Logger
	metrics        *metrics.Metrics
}

// NewHub wires a hub to its collaborators.
func NewHub(storage Storage, access AccessChecker, opts Options) *Hub {
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}

	h := &Hub{
		rooms:          NewRooms(),
		seq:            newKeyedMutex(),
		statusLocks:    newKeyedMutex(),
		clients:        make(map[string]Client),
		sessions:       make(map[string]*Session),
		storage:        storage,
		access:         access,
		persistTimeout: opts.PersistTimeout,
		log:            opts.Logger,
		metrics:        opts.Metrics,
	}
	h.presence = NewPresence(h.presenceChanged)
	return h
}

// Presence exposes the presence registry for read-only queries.
func (h *Hub) Presence() *Presence { return h.presence }

// Rooms exposes the subscription multiplexer for read-only queries.
func (h *Hub) Rooms() *Rooms { return h.rooms }

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(s *Session) {
	h.mu.Lock()
	h.clients[s.id] = s.client
	h.sessions[s.id] = s
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.Connections.Set(float64(n))
}

func (h *Hub) unregister(connID string) {
	h.mu.Lock()
	delete(h.clients, connID)
	delete(h.sessions, connID)
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.Connections.Set(float64(n))
}

// presenceChanged runs under the presence lock; it only queues frames.
func (h *Hub) presenceChanged(online []string) {
	h.metrics.OnlineUsers.Set(float64(len(online)))

	frame, err := Encode(EventOnlineUsers, online)
	if err != nil {
		h.log.Error("encode online users", "error", err)
		return
	}
	h.broadcastAll(frame)
}

// broadcastAll queues frame on every registered connection, whatever rooms
// it is in.
func (h *Hub) broadcastAll(frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		h.deliver(c, frame)
	}
}

// fanout queues frame on every current subscriber of roomID except the
// connection named by exclude, and returns how many accepted it.
func (h *Hub) fanout(roomID string, frame []byte, exclude string) int {
	subscribers := h.rooms.SubscribersOf(roomID)

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, connID := range subscribers {
		if connID == exclude {
			continue
		}
		c, ok := h.clients[connID]
		if !ok {
			h.metrics.DeliveriesDropped.Inc()
			continue
		}
		if h.deliver(c, frame) {
			delivered++
		}
	}
	return delivered
}

func (h *Hub) deliver(c Client, frame []byte) bool {
	if c.Send(frame) {
		return true
	}
	h.metrics.DeliveriesDropped.Inc()
	h.log.Debug("delivery skipped", "conn_id", c.ID())
	return false
}

// sendTo queues an event on a single connection.
func (h *Hub) sendTo(c Client, event string, data any) {
	frame, err := Encode(event, data)
	if err != nil {
		h.log.Error("encode event", "event", event, "error", err)
		return
	}
	h.deliver(c, frame)
}

func (h *Hub) storageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, h.persistTimeout)
}

// Shutdown closes every registered session, running the normal cleanup for
// each, and returns once all are closed or ctx is done.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	h.log.Info("closing connections", "count", len(sessions))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, s := range sessions {
			s.Close()
		}
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
