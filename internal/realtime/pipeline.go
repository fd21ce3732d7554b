package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chat-hub/internal/models"
	"chat-hub/internal/store"
)

// validateSend normalises and checks a send_message payload. It has no side
// effects beyond the payload itself.
func validateSend(p *SendMessagePayload) error {
	trimStrings(p)
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: roomId and content are required: %v", ErrInvalidMessage, err)
	}
	if p.Type == "" {
		p.Type = models.TypeText
	}
	return nil
}

// ingest persists a chat message and broadcasts the enriched record to the
// room. Persist-then-broadcast holds the room's sequencer lock so subscribers
// see messages in persistence order; other rooms are not blocked.
func (h *Hub) ingest(ctx context.Context, senderID string, p SendMessagePayload) (*models.EnrichedMessage, error) {
	if err := validateSend(&p); err != nil {
		return nil, err
	}

	unlock := h.seq.lock(p.RoomID)
	defer unlock()

	sctx, cancel := h.storageContext(ctx)
	defer cancel()

	msg, err := h.storage.CreateMessage(sctx, store.NewMessage{
		RoomID:   p.RoomID,
		SenderID: senderID,
		Content:  p.Content,
		Type:     p.Type,
		FileURL:  p.FileURL,
		FileName: p.FileName,
		FileSize: p.FileSize,
	})
	if err != nil {
		h.metrics.PersistenceFailures.Inc()
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	// The message is durable at this point; a stale last-message pointer is
	// repaired by the next send and does not justify withholding the broadcast.
	if err := h.storage.UpdateRoomLastMessage(sctx, p.RoomID, msg.ID); err != nil {
		h.log.Warn("update room last message", "room_id", p.RoomID, "message_id", msg.ID, "error", err)
	}

	enriched, err := h.storage.Enrich(sctx, msg)
	if err != nil {
		h.metrics.PersistenceFailures.Inc()
		return nil, fmt.Errorf("%w: enrich %s: %v", ErrPersistence, msg.ID, err)
	}

	frame, err := Encode(EventReceiveMessage, enriched)
	if err != nil {
		return nil, err
	}
	n := h.fanout(p.RoomID, frame, "")
	h.metrics.MessagesBroadcast.Inc()
	h.log.Debug("message broadcast", "room_id", p.RoomID, "message_id", msg.ID, "recipients", n)

	return enriched, nil
}

// deleteMessage soft-deletes a message owned by userID and tells the room.
func (h *Hub) deleteMessage(ctx context.Context, userID, messageID string) error {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return fmt.Errorf("%w: messageId is required", ErrInvalidMessage)
	}

	sctx, cancel := h.storageContext(ctx)
	defer cancel()

	msg, err := h.storage.SoftDeleteMessage(sctx, messageID, userID)
	switch {
	case errors.Is(err, store.ErrForbidden):
		return fmt.Errorf("%w: only the sender may delete a message", ErrAccessDenied)
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: unknown message %s", ErrInvalidMessage, messageID)
	case err != nil:
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	// Wait for any in-flight send on the room so the deletion never overtakes
	// the message's own broadcast.
	unlock := h.seq.lock(msg.RoomID)
	defer unlock()

	frame, err := Encode(EventMessageDeleted, messageDeletedEvent{MessageID: msg.ID, RoomID: msg.RoomID})
	if err != nil {
		return err
	}
	h.fanout(msg.RoomID, frame, "")
	return nil
}
