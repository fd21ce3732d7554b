package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"chat-hub/internal/config"
	"chat-hub/internal/metrics"
	"chat-hub/internal/middleware"
	"chat-hub/internal/realtime"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// wsClient implements realtime.Client on top of a websocket connection. Frames
// are queued on send and written by the connection's write pump.
type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	closeOnce sync.Once
}

func newWSClient(conn *websocket.Conn, buffer int) *wsClient {
	return &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

func (c *wsClient) ID() string { return c.id }

// Send never blocks: a closed connection or a full queue drops the frame.
func (c *wsClient) Send(message []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// Close signals the write pump to say goodbye and close the socket.
func (c *wsClient) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// WSHandler upgrades authenticated requests and runs one session per socket.
type WSHandler struct {
	hub      *realtime.Hub
	cfg      config.Config
	metrics  *metrics.Metrics
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(hub *realtime.Hub, cfg config.Config, m *metrics.Metrics, log *slog.Logger) *WSHandler {
	h := &WSHandler{hub: hub, cfg: cfg, metrics: m, log: log}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins()),
	}
	return h
}

// originChecker accepts requests without an Origin header (non-browser
// clients) and browser requests from one of the allowed origins.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[normalizeOrigin(o)] = struct{}{}
	}
	_, allowAll := set["*"]

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowAll {
			return true
		}
		_, ok := set[normalizeOrigin(origin)]
		return ok
	}
}

func normalizeOrigin(origin string) string {
	origin = strings.TrimRight(strings.TrimSpace(origin), "/")
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return strings.ToLower(origin)
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}

// ServeWS upgrades the connection and hands it to the hub.
// It requires JWT middleware to have set "user_id" in context.
// GET /ws
func (h *WSHandler) ServeWS(c *gin.Context) {
	userID := c.GetString(middleware.UserIDKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authorized"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	client := newWSClient(conn, h.cfg.SendBuffer)
	session := h.hub.Connect(client, realtime.Identity{
		UserID:   userID,
		Username: c.GetString(middleware.UsernameKey),
	})
	defer session.Close()

	go h.writePump(client)
	h.readPump(c, client, session)
}

// readPump feeds inbound frames to the session until the socket fails.
func (h *WSHandler) readPump(c *gin.Context, client *wsClient, session *realtime.Session) {
	conn := client.conn
	conn.SetReadLimit(h.cfg.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	limiter := rate.NewLimiter(rate.Limit(h.cfg.RateLimit), h.cfg.RateBurst)
	ctx := c.Request.Context()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				h.log.Debug("websocket read failed", "conn_id", client.id, "error", err)
			}
			return
		}

		if !limiter.Allow() {
			h.metrics.EventsRateLimited.Inc()
			var env realtime.Envelope
			_ = json.Unmarshal(data, &env)
			session.Fail(env.Event, realtime.ErrRateLimited)
			continue
		}

		_ = session.Handle(ctx, data)
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (h *WSHandler) writePump(client *wsClient) {
	conn := client.conn
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case message := <-client.send:
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteWait)); err != nil {
				return
			}

		case <-client.done:
			// Flush what was queued before the close.
			for {
				select {
				case message := <-client.send:
					_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
					if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
						return
					}
				default:
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
						time.Now().Add(h.cfg.WriteWait))
					return
				}
			}
		}
	}
}
