package realtime

// Relay delivers an ephemeral signal to every subscriber of roomID except the
// originating connection. Nothing is stored or acknowledged; undeliverable
// signals are dropped. It returns how many connections accepted the signal.
func (h *Hub) Relay(kind, roomID string, payload any, originConnID string) int {
	frame, err := Encode(kind, payload)
	if err != nil {
		h.log.Error("encode signal", "kind", kind, "error", err)
		return 0
	}
	n := h.fanout(roomID, frame, originConnID)
	h.metrics.SignalsRelayed.WithLabelValues(kind).Inc()
	return n
}
