package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"chat-hub/internal/models"
	"chat-hub/internal/store"
)

// Identity is the user a transport verified before handing the connection to
// the hub (for example from a bearer token).
type Identity struct {
	UserID   string
	Username string
}

type sessionState int

const (
	stateConnected sessionState = iota
	stateAuthenticated
	stateClosed
)

// Session drives one connection from accept to close:
// connected -> authenticated -> closed. The user binding is set once and
// never changes.
type Session struct {
	id       string
	hub      *Hub
	client   Client
	verified Identity
	log      *slog.Logger

	mu       sync.RWMutex
	state    sessionState
	userID   string
	username string

	closeOnce sync.Once
}

// Connect registers client with the hub and returns its session. verified may
// be empty when the transport did not authenticate the connection.
func (h *Hub) Connect(client Client, verified Identity) *Session {
	s := &Session{
		id:       client.ID(),
		hub:      h,
		client:   client,
		verified: verified,
		log:      h.log.With("conn_id", client.ID()),
	}
	h.register(s)
	s.log.Debug("connection opened")
	return s
}

// ID returns the connection id.
func (s *Session) ID() string { return s.id }

// UserID returns the bound user, if the session is authenticated.
func (s *Session) UserID() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.state == stateAuthenticated
}

func (s *Session) identity() (userID, username string, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != stateAuthenticated {
		return "", "", ErrUnauthenticated
	}
	return s.userID, s.username, nil
}

// Authenticate binds userID to the connection and marks the user online.
func (s *Session) Authenticate(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: userId is required", ErrInvalidMessage)
	}
	if s.verified.UserID != "" && s.verified.UserID != userID {
		return fmt.Errorf("%w: token does not belong to %s", ErrAccessDenied, userID)
	}

	s.mu.Lock()
	switch s.state {
	case stateAuthenticated:
		s.mu.Unlock()
		return ErrAlreadyAuthenticated
	case stateClosed:
		s.mu.Unlock()
		return nil
	}
	s.state = stateAuthenticated
	s.userID = userID
	s.username = s.verified.Username
	if s.username == "" {
		s.username = userID
	}
	// Held across SetOnline so a concurrent Close cannot run its presence
	// cleanup before the entry exists.
	s.hub.presence.SetOnline(userID, s.id)
	s.mu.Unlock()

	s.log.Info("user authenticated", "user_id", userID)
	s.syncStatus(ctx, userID)
	return nil
}

// JoinRoom subscribes the connection to roomID after the access check and
// tells the room's other subscribers.
func (s *Session) JoinRoom(ctx context.Context, roomID string) error {
	userID, _, err := s.identity()
	if err != nil {
		return err
	}
	if roomID == "" {
		return fmt.Errorf("%w: roomId is required", ErrInvalidMessage)
	}

	actx, cancel := s.hub.storageContext(ctx)
	allowed, err := s.hub.access.CanAccessRoom(actx, userID, roomID)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: access check: %v", ErrPersistence, err)
	}
	if !allowed {
		return fmt.Errorf("%w: room %s", ErrAccessDenied, roomID)
	}

	s.mu.RLock()
	if s.state == stateClosed {
		s.mu.RUnlock()
		return nil
	}
	added := s.hub.rooms.Subscribe(roomID, s.id)
	s.mu.RUnlock()

	if added {
		s.log.Debug("joined room", "room_id", roomID)
		s.hub.Relay(EventUserJoined, roomID, membershipEvent{UserID: userID, RoomID: roomID}, s.id)
	}
	return nil
}

// LeaveRoom unsubscribes the connection from roomID.
func (s *Session) LeaveRoom(roomID string) error {
	userID, _, err := s.identity()
	if err != nil {
		return err
	}
	if roomID == "" {
		return fmt.Errorf("%w: roomId is required", ErrInvalidMessage)
	}

	if s.hub.rooms.Unsubscribe(roomID, s.id) {
		s.log.Debug("left room", "room_id", roomID)
		s.hub.Relay(EventUserLeft, roomID, membershipEvent{UserID: userID, RoomID: roomID}, s.id)
	}
	return nil
}

// SendMessage runs the ingest pipeline for a message from this connection.
func (s *Session) SendMessage(ctx context.Context, p SendMessagePayload) (*models.EnrichedMessage, error) {
	userID, _, err := s.identity()
	if err != nil {
		return nil, err
	}
	return s.hub.ingest(ctx, userID, p)
}

// Typing relays a typing start or stop signal to the room.
func (s *Session) Typing(roomID string, stop bool) error {
	_, username, err := s.identity()
	if err != nil {
		return err
	}
	if roomID == "" {
		return fmt.Errorf("%w: roomId is required", ErrInvalidMessage)
	}

	kind := EventUserTyping
	if stop {
		kind = EventUserStopTyping
	}
	s.hub.Relay(kind, roomID, typingEvent{Username: username, RoomID: roomID}, s.id)
	return nil
}

// MarkRead records a read receipt and, the first time only, relays it to the
// message's room. Readers without access to that room are refused.
func (s *Session) MarkRead(ctx context.Context, messageID string) error {
	userID, _, err := s.identity()
	if err != nil {
		return err
	}
	if messageID == "" {
		return fmt.Errorf("%w: messageId is required", ErrInvalidMessage)
	}

	sctx, cancel := s.hub.storageContext(ctx)
	msg, fresh, err := s.hub.storage.MarkRead(sctx, messageID, userID)
	cancel()
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: unknown message %s", ErrInvalidMessage, messageID)
	case errors.Is(err, store.ErrForbidden):
		return fmt.Errorf("%w: message %s is in a room you cannot access", ErrAccessDenied, messageID)
	case err != nil:
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if fresh {
		s.hub.Relay(EventMessageRead, msg.RoomID, messageReadEvent{MessageID: messageID, UserID: userID}, s.id)
	}
	return nil
}

// DeleteMessage soft-deletes one of the user's own messages.
func (s *Session) DeleteMessage(ctx context.Context, messageID string) error {
	userID, _, err := s.identity()
	if err != nil {
		return err
	}
	return s.hub.deleteMessage(ctx, userID, messageID)
}

// Handle decodes one inbound frame and dispatches it. Failures are reported
// to this connection only and are also returned.
func (s *Session) Handle(ctx context.Context, frame []byte) error {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil || env.Event == "" {
		err = fmt.Errorf("%w: malformed frame", ErrInvalidMessage)
		s.Fail("", err)
		return err
	}

	err := s.dispatch(ctx, env)
	if err != nil {
		s.Fail(env.Event, err)
	}
	return err
}

func (s *Session) dispatch(ctx context.Context, env Envelope) error {
	switch env.Event {
	case EventAuthenticate:
		userID, err := decodeID(env.Data, "userId")
		if err != nil {
			return err
		}
		return s.Authenticate(ctx, userID)

	case EventJoinRoom:
		roomID, err := decodeID(env.Data, "roomId")
		if err != nil {
			return err
		}
		return s.JoinRoom(ctx, roomID)

	case EventLeaveRoom:
		roomID, err := decodeID(env.Data, "roomId")
		if err != nil {
			return err
		}
		return s.LeaveRoom(roomID)

	case EventSendMessage:
		if _, _, err := s.identity(); err != nil {
			return err
		}
		var p SendMessagePayload
		if err := decodePayload(env.Data, &p); err != nil {
			return err
		}
		_, err := s.SendMessage(ctx, p)
		return err

	case EventTyping, EventStopTyping:
		if _, _, err := s.identity(); err != nil {
			return err
		}
		var p TypingPayload
		if err := decodePayload(env.Data, &p); err != nil {
			return err
		}
		return s.Typing(p.RoomID, env.Event == EventStopTyping)

	case EventMarkRead, EventDeleteMessage:
		if _, _, err := s.identity(); err != nil {
			return err
		}
		var p MessageRefPayload
		if err := decodePayload(env.Data, &p); err != nil {
			return err
		}
		if env.Event == EventMarkRead {
			return s.MarkRead(ctx, p.MessageID)
		}
		return s.DeleteMessage(ctx, p.MessageID)

	default:
		return fmt.Errorf("%w: unknown event %q", ErrInvalidMessage, env.Event)
	}
}

// Fail reports err to this connection. Storage details stay in the log.
func (s *Session) Fail(event string, err error) {
	msg := err.Error()
	if errors.Is(err, ErrPersistence) {
		s.log.Warn("storage failure", "event", event, "error", err)
		msg = ErrPersistence.Error()
	} else {
		s.log.Debug("event rejected", "event", event, "error", err)
	}

	if event == EventSendMessage {
		s.hub.sendTo(s.client, EventMessageError, messageErrorEvent{Message: msg})
		return
	}
	s.hub.sendTo(s.client, EventError, errorEvent{Event: event, Code: ErrorCode(err), Message: msg})
}

// Close runs the disconnect cleanup exactly once: the connection leaves every
// room, then leaves presence if it is still the user's current connection.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		wasAuthenticated := s.state == stateAuthenticated
		userID := s.userID
		s.state = stateClosed
		s.mu.Unlock()

		s.hub.unregister(s.id)
		rooms := s.hub.rooms.DropConnection(s.id)

		if wasAuthenticated && s.hub.presence.RemoveIfCurrent(userID, s.id) {
			s.syncStatus(context.Background(), userID)
		}

		s.client.Close()
		s.log.Debug("connection closed", "user_id", userID, "rooms", len(rooms))
	})
}

// syncStatus writes the user's live presence to the stored status. Writes for
// one user are serialized and each reads presence under that lock, so the
// last write always matches the registry even when a reconnect races a close.
func (s *Session) syncStatus(ctx context.Context, userID string) {
	unlock := s.hub.statusLocks.lock(userID)
	defer unlock()

	status := models.StatusOffline
	if s.hub.presence.IsOnline(userID) {
		status = models.StatusOnline
	}

	sctx, cancel := s.hub.storageContext(ctx)
	defer cancel()
	if err := s.hub.storage.SetUserStatus(sctx, userID, status); err != nil {
		s.log.Warn("update user status", "user_id", userID, "status", status, "error", err)
	}
}
