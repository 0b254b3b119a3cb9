package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/remoteeye-relay/internal/auth"
	"github.com/nerrad567/remoteeye-relay/internal/infrastructure/config"
	"github.com/nerrad567/remoteeye-relay/internal/infrastructure/logging"
	"github.com/nerrad567/remoteeye-relay/internal/realtime"
)

// WebSocket defaults, used when the config leaves a field at zero.
const (
	defaultWSPath           = "/api/v1/ws"
	defaultWSMaxMessageSize = 1 << 20
	defaultWSPingInterval   = 25 * time.Second
	defaultWSPongTimeout    = 60 * time.Second
	defaultWSSendBuffer     = 256

	// wsCloseWait bounds the close handshake write.
	wsCloseWait = time.Second
)

// errClientClosed is returned by SendWait once the connection is closed.
var errClientClosed = errors.New("websocket client closed")

// wsSettings is the resolved WebSocket configuration.
type wsSettings struct {
	path           string
	maxMessageSize int64
	pingInterval   time.Duration
	pongWait       time.Duration
	sendBuffer     int
}

func resolveWSSettings(cfg config.WebSocketConfig) wsSettings {
	ws := wsSettings{
		path:           cfg.Path,
		maxMessageSize: int64(cfg.MaxMessageSize),
		pingInterval:   time.Duration(cfg.PingInterval) * time.Second,
		pongWait:       time.Duration(cfg.PongTimeout) * time.Second,
		sendBuffer:     cfg.SendBuffer,
	}
	if ws.path == "" {
		ws.path = defaultWSPath
	}
	if ws.maxMessageSize <= 0 {
		ws.maxMessageSize = defaultWSMaxMessageSize
	}
	if ws.pingInterval <= 0 {
		ws.pingInterval = defaultWSPingInterval
	}
	if ws.pongWait <= 0 {
		ws.pongWait = defaultWSPongTimeout
	}
	if ws.sendBuffer <= 0 {
		ws.sendBuffer = defaultWSSendBuffer
	}
	return ws
}

// Hub tracks live WebSocket connections so shutdown can close them.
// http.Server.Shutdown does not see hijacked connections.
type Hub struct {
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
	wg      sync.WaitGroup
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Register adds a client to the hub. The client's session goroutine is
// tracked until Unregister.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.wg.Add(1)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "conn_id", client.id, "clients", h.ClientCount())
}

// Unregister removes a client from the hub. Only the first call for a
// client has any effect.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		h.wg.Done()
		h.logger.Debug("websocket client disconnected", "conn_id", client.id, "clients", h.ClientCount())
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll closes every connection and waits up to timeout for their
// sessions to finish the disconnect path.
func (h *Hub) CloseAll(timeout time.Duration) {
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.Close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		h.logger.Warn("timed out waiting for websocket sessions to close", "remaining", h.ClientCount())
	}
}

// WSClient is one upgraded connection. It implements presence.Conn.
type WSClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newWSClient(conn *websocket.Conn, buffer int) *WSClient {
	return &WSClient{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

// ID returns the connection identifier.
func (c *WSClient) ID() string { return c.id }

// Send queues a frame without blocking. It returns false when the
// connection is closed or the buffer is full.
func (c *WSClient) Send(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// SendWait queues a frame, waiting for the write pump to free buffer space.
// It gives up when ctx is done or the connection closes.
func (c *WSClient) SendWait(ctx context.Context, data []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return errClientClosed
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return errClientClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close asks the write pump to send a close frame and drop the connection.
// It is safe to call more than once.
func (c *WSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

// upgrader builds the WebSocket upgrader. Native devices send no Origin
// header; browsers are held to the CORS allow list.
func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.isAllowedOrigin(origin)
		},
	}
}

// handleWebSocket authenticates and upgrades a realtime connection.
// The access token comes from the Authorization header or the token query
// parameter. A failed authentication is answered with 401 and no upgrade.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		token = r.URL.Query().Get("token")
	}

	identity, err := s.protocol.Authenticate(token)
	if err != nil {
		switch {
		case errors.Is(err, realtime.ErrNoCredential):
			writeUnauthorized(w, ErrCodeUnauthorized, "access token is required")
		case errors.Is(err, auth.ErrTokenExpired):
			writeUnauthorized(w, ErrCodeTokenExpired, "token has expired")
		default:
			writeUnauthorized(w, ErrCodeTokenInvalid, "invalid token")
		}
		return
	}

	ws := resolveWSSettings(s.wsCfg)
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(conn, ws.sendBuffer)
	sess := s.protocol.Open(client, *identity)
	s.hub.Register(client)

	s.logger.Info("websocket connected",
		"conn_id", client.id,
		"role", identity.Role,
		"subject", identity.Subject,
		"remote_addr", r.RemoteAddr,
	)

	go client.writePump(ws)
	go s.readPump(client, sess, ws)
}

// readPump feeds inbound frames to the protocol until the connection drops,
// then runs the session's disconnect path.
func (s *Server) readPump(c *WSClient, sess *realtime.Session, ws wsSettings) {
	ctx := s.baseCtx
	defer func() {
		c.Close()
		s.protocol.Close(ctx, sess)
		s.hub.Unregister(c)
		s.logger.Info("websocket disconnected", "conn_id", c.id, "subject", sess.Identity().Subject)
	}()

	c.conn.SetReadLimit(ws.maxMessageSize)
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(ws.pingInterval + ws.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ws.pingInterval + ws.pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read error", "conn_id", c.id, "error", err)
			}
			return
		}
		// Any client frame counts as liveness at the transport level.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(ws.pingInterval + ws.pongWait))
		s.protocol.HandleEvent(ctx, sess, message)
	}
}

// writePump is the only writer on the connection.
func (c *WSClient) writePump(ws wsSettings) {
	ticker := time.NewTicker(ws.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(ws.pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(ws.pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.flush(ws)
			//nolint:errcheck // Best-effort close message
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(wsCloseWait))
			return
		}
	}
}

// flush writes frames queued before Close so a final error reply is not lost.
func (c *WSClient) flush(ws wsSettings) {
	for {
		select {
		case message := <-c.send:
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(ws.pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}
