package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"watchtower/internal/metrics"
	"watchtower/pkg/logging"
)

// Hub maintains the set of active UI clients and fans preserialized event
// envelopes out to them. Clients subscribe to channels named after message
// types ("direction_result", "angle_value", "ai_alert", "current_state") or
// "all".
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	logger     logging.Logger
	metrics    *metrics.Metrics
	mutex      sync.RWMutex
}

type outbound struct {
	channel string
	payload []byte
}

// Client represents one WebSocket connection. The send channel is never
// closed; teardown is signalled through done so that no goroutine can race a
// send against a close.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	channels []string

	logger logging.Logger
}

// SubscriptionMessage is the client-side subscription request.
type SubscriptionMessage struct {
	Action   string   `json:"action"`   // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // message type names or "all"
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewHub creates a new WebSocket hub
func NewHub(logger logging.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
		metrics:    m,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mutex.Unlock()
			if h.metrics != nil {
				h.metrics.HubConnections.WithLabelValues("total").Set(float64(count))
			}
			h.logger.WithField("client_count", count).Info("Client connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.shutdown()
			}
			count := len(h.clients)
			h.mutex.Unlock()
			if h.metrics != nil {
				h.metrics.HubConnections.WithLabelValues("total").Set(float64(count))
			}
			h.logger.WithField("client_count", count).Info("Client disconnected")

		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

// Broadcast queues a preserialized envelope for every client subscribed to
// the channel. When the hub's queue is full the message is dropped; the
// broker never blocks on the sink.
func (h *Hub) Broadcast(channel string, payload []byte) {
	select {
	case h.broadcast <- outbound{channel: channel, payload: payload}:
	default:
		h.logger.WithField("channel", channel).Warn("Broadcast queue full, dropping message")
		if h.metrics != nil {
			h.metrics.HubMessages.WithLabelValues(channel, "dropped").Inc()
		}
	}
}

func (h *Hub) fanOut(msg outbound) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for client := range h.clients {
		if !client.subscribedTo(msg.channel) {
			continue
		}
		select {
		case client.send <- msg.payload:
			if h.metrics != nil {
				h.metrics.HubMessages.WithLabelValues(msg.channel, "out").Inc()
			}
		default:
			// Slow consumer: drop the connection rather than buffer
			// without bound.
			delete(h.clients, client)
			client.shutdown()
		}
	}
}

// shutdown signals the client's pumps to tear the connection down. Safe to
// call from any goroutine, any number of times.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) subscribedTo(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.channels {
		if ch == channel || ch == "all" {
			return true
		}
	}
	return false
}

// Stats returns hub statistics for the admin surface.
func (h *Hub) Stats() map[string]interface{} {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	channelStats := make(map[string]int)
	for client := range h.clients {
		client.mu.Lock()
		for _, channel := range client.channels {
			channelStats[channel]++
		}
		client.mu.Unlock()
	}

	return map[string]interface{}{
		"total_clients":         len(h.clients),
		"channel_subscriptions": channelStats,
	}
}

// ServeWS handles WebSocket requests from clients
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}

	client := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, 256),
		done:     make(chan struct{}),
		channels: []string{},
		logger:   h.logger,
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

// readPump pumps subscription requests from the connection to the client state
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Error("WebSocket connection error")
			}
			break
		}

		var subMsg SubscriptionMessage
		if err := json.Unmarshal(message, &subMsg); err != nil {
			c.logger.WithError(err).Warn("Invalid subscription message")
			continue
		}

		c.handleSubscription(&subMsg)
	}
}

// writePump pumps envelopes from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Flush queued envelopes into the same frame
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleSubscription processes subscription/unsubscription requests
func (c *Client) handleSubscription(msg *SubscriptionMessage) {
	switch msg.Action {
	case "subscribe":
		c.mu.Lock()
		c.channels = append(c.channels, msg.Channels...)
		current := append([]string(nil), c.channels...)
		c.mu.Unlock()

		c.logger.WithField("channels", msg.Channels).Info("Client subscribed to channels")
		c.sendControl(map[string]interface{}{
			"type":     "subscription_confirmed",
			"channels": current,
		})

	case "unsubscribe":
		c.mu.Lock()
		for _, channel := range msg.Channels {
			for i, existing := range c.channels {
				if existing == channel {
					c.channels = append(c.channels[:i], c.channels[i+1:]...)
					break
				}
			}
		}
		current := append([]string(nil), c.channels...)
		c.mu.Unlock()

		c.logger.WithFields(logging.Fields{
			"unsubscribed": msg.Channels,
			"remaining":    current,
		}).Info("Client unsubscribed from channels")
		c.sendControl(map[string]interface{}{
			"type":     "unsubscription_confirmed",
			"channels": current,
		})
	}
}

// sendControl sends a control message to the client. When the client's queue
// is full the message is dropped; only the hub loop may tear a client down.
func (c *Client) sendControl(data map[string]interface{}) {
	message, err := json.Marshal(data)
	if err != nil {
		c.logger.WithError(err).Error("Failed to marshal control message")
		return
	}

	select {
	case c.send <- message:
	default:
		c.logger.Warn("Client queue full, dropping control message")
	}
}
