package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/home-gateway/internal/discovery"
	"github.com/nerrad567/home-gateway/internal/infrastructure/config"
	"github.com/nerrad567/home-gateway/internal/infrastructure/logging"
)

// Message types exchanged on the event stream.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// Directory event channels.
const (
	ChannelDeviceDiscovered = "device.discovered"
	ChannelDeviceExpired    = "device.expired"
)

const (
	wsQueueLen = 256
	wsBufSize  = 1024
)

// WSMessage is the JSON envelope of every frame in either direction.
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	EventType string          `json:"event_type,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// WSSubscribePayload carries the channels of a subscribe or unsubscribe
// request.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// Hub fans directory events out to connected WebSocket clients.
type Hub struct {
	logger *logging.Logger

	readLimit    int64
	pingInterval time.Duration
	writeWait    time.Duration

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
	closed  bool
}

// WSClient is one connected event stream consumer.
type WSClient struct {
	hub   *Hub
	conn  *websocket.Conn
	queue chan []byte
	once  sync.Once

	mu       sync.RWMutex
	channels map[string]bool
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  wsBufSize,
	WriteBufferSize: wsBufSize,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// NewHub creates a hub. Zero settings fall back to an 8 KiB read limit,
// 30 s pings and a 10 s pong timeout.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	h := &Hub{
		logger:       logger,
		readLimit:    8192,
		pingInterval: 30 * time.Second,
		writeWait:    10 * time.Second,
		clients:      make(map[*WSClient]struct{}),
	}
	if cfg.MaxMessageSize > 0 {
		h.readLimit = int64(cfg.MaxMessageSize)
	}
	if cfg.PingInterval > 0 {
		h.pingInterval = time.Duration(cfg.PingInterval) * time.Second
	}
	if cfg.PongTimeout > 0 {
		h.writeWait = time.Duration(cfg.PongTimeout) * time.Second
	}
	return h
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.shutdown()
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DeviceDiscovered publishes a new or refreshed record on device.discovered.
func (h *Hub) DeviceDiscovered(rec discovery.Record) {
	h.publish(ChannelDeviceDiscovered, NewDeviceView(rec))
}

// DeviceExpired publishes an evicted record on device.expired.
func (h *Hub) DeviceExpired(rec discovery.Record) {
	h.publish(ChannelDeviceExpired, NewDeviceView(rec))
}

func (h *Hub) add(c *WSClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *WSClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	c.shutdown()
	h.logger.Debug("websocket client disconnected", "clients", n)
}

func (h *Hub) publish(channel string, payload any) {
	frame, err := encodeFrame(WSMessage{Type: WSTypeEvent, EventType: channel}, payload)
	if err != nil {
		h.logger.Error("encoding websocket event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	recipients := 0
	for c := range h.clients {
		if c.wants(channel) && c.enqueue(frame) {
			recipients++
		}
	}
	if recipients > 0 {
		h.logger.Debug("websocket event sent", "channel", channel, "recipients", recipients)
	}
}

// encodeFrame stamps msg and marshals it with payload, if any.
func encodeFrame(msg WSMessage, payload any) ([]byte, error) {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Payload = raw
	}
	return json.Marshal(msg)
}

// handleWebSocket upgrades the request to the event stream. The optional
// query parameter channels=a,b subscribes before the first frame.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &WSClient{
		hub:      s.hub,
		conn:     conn,
		queue:    make(chan []byte, wsQueueLen),
		channels: make(map[string]bool),
	}
	c.subscribe(strings.Split(r.URL.Query().Get("channels"), ","))

	if !s.hub.add(c) {
		conn.Close()
		return
	}
	s.logger.Debug("websocket client connected", "remote", r.RemoteAddr, "clients", s.hub.ClientCount())

	go c.writeLoop()
	go c.readLoop()
}

// shutdown closes the queue exactly once; writeLoop then sends a close
// frame and drops the connection.
func (c *WSClient) shutdown() {
	c.once.Do(func() {
		c.mu.Lock()
		close(c.queue)
		c.queue = nil
		c.mu.Unlock()
	})
}

// enqueue hands frame to writeLoop without blocking. A full or closed
// queue drops the frame.
func (c *WSClient) enqueue(frame []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.queue == nil {
		return false
	}
	select {
	case c.queue <- frame:
		return true
	default:
		return false
	}
}

func (c *WSClient) wants(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channels[channel]
}

func (c *WSClient) subscribe(channels []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	added := make([]string, 0, len(channels))
	for _, ch := range channels {
		if ch = strings.TrimSpace(ch); ch != "" {
			c.channels[ch] = true
			added = append(added, ch)
		}
	}
	return added
}

func (c *WSClient) unsubscribe(channels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		delete(c.channels, strings.TrimSpace(ch))
	}
}

func (c *WSClient) readLoop() {
	defer c.hub.remove(c)

	extend := func() error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.pingInterval + c.hub.writeWait))
	}
	c.conn.SetReadLimit(c.hub.readLimit)
	_ = extend()
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		// Browsers may ignore protocol pings; any frame counts as liveness.
		_ = extend()
		c.dispatch(data)
	}
}

func (c *WSClient) writeLoop() {
	ticker := time.NewTicker(c.hub.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	c.mu.RLock()
	queue := c.queue
	c.mu.RUnlock()
	if queue == nil {
		return
	}

	for {
		var (
			kind  = websocket.PingMessage
			frame []byte
		)
		select {
		case f, ok := <-queue:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
					time.Now().Add(c.hub.writeWait))
				return
			}
			kind, frame = websocket.TextMessage, f
		case <-ticker.C:
		}

		_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeWait))
		if err := c.conn.WriteMessage(kind, frame); err != nil {
			return
		}
	}
}

// dispatch handles one client request frame.
func (c *WSClient) dispatch(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply("", WSTypeError, errorBody("invalid JSON message"))
		return
	}

	switch msg.Type {
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)
	case WSTypeSubscribe, WSTypeUnsubscribe:
		var req WSSubscribePayload
		if len(msg.Payload) == 0 || json.Unmarshal(msg.Payload, &req) != nil {
			c.reply(msg.ID, WSTypeError, errorBody("invalid "+msg.Type+" payload"))
			return
		}
		if msg.Type == WSTypeSubscribe {
			c.reply(msg.ID, WSTypeResponse, map[string][]string{"subscribed": c.subscribe(req.Channels)})
			return
		}
		c.unsubscribe(req.Channels)
		c.reply(msg.ID, WSTypeResponse, map[string][]string{"unsubscribed": req.Channels})
	default:
		c.reply(msg.ID, WSTypeError, errorBody("unknown message type: "+msg.Type))
	}
}

func (c *WSClient) reply(id, msgType string, payload any) {
	frame, err := encodeFrame(WSMessage{Type: msgType, ID: id}, payload)
	if err != nil {
		return
	}
	c.enqueue(frame)
}

func errorBody(message string) map[string]string {
	return map[string]string{"message": message}
}
