// Package notifications pushes live debate events to spectators over
// WebSocket. The hub subscribes to the event bus and fans every event
// out to connected clients, optionally filtered to a single debate.
package notifications

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/debatelab/agora/internal/events"
)

// HubConfig holds WebSocket hub tuning.
type HubConfig struct {
	WriteWait       time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
	MaxMessageSize  int64
	SendBufferSize  int
	ReadBufferSize  int
	WriteBufferSize int
}

// DefaultHubConfig returns sensible defaults.
func DefaultHubConfig() *HubConfig {
	return &HubConfig{
		WriteWait:       10 * time.Second,
		PongWait:        60 * time.Second,
		PingPeriod:      54 * time.Second,
		MaxMessageSize:  512,
		SendBufferSize:  64,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

// Hub distributes bus events to WebSocket clients.
type Hub struct {
	config   *HubConfig
	bus      *events.Bus
	logger   *logrus.Logger
	upgrader websocket.Upgrader

	register   chan *Client
	unregister chan *Client
	clients    map[*Client]bool

	busCh   <-chan *events.Event
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool

	connected  int64
	broadcasts int64
	dropped    int64
}

// NewHub creates a hub fed by the given event bus.
func NewHub(config *HubConfig, bus *events.Bus, logger *logrus.Logger) *Hub {
	if config == nil {
		config = DefaultHubConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Hub{
		config: config,
		bus:    bus,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			// The spectator UI is served from another origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		done:       make(chan struct{}),
	}
}

// Start subscribes to the bus and begins distributing events.
func (h *Hub) Start() {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return
	}
	h.started = true
	h.busCh = h.bus.SubscribeAll()
	h.mu.Unlock()

	h.wg.Add(1)
	go h.run()

	h.logger.Info("WebSocket hub started")
}

func (h *Hub) run() {
	defer h.wg.Done()

	for {
		select {
		case <-h.done:
			h.closeAll()
			return

		case client := <-h.register:
			h.clients[client] = true
			atomic.AddInt64(&h.connected, 1)
			h.logger.WithField("debate_id", client.debateID).Debug("WebSocket client connected")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
				atomic.AddInt64(&h.connected, -1)
				h.logger.Debug("WebSocket client disconnected")
			}

		case event, ok := <-h.busCh:
			if !ok {
				h.closeAll()
				return
			}
			h.broadcast(event)
		}
	}
}

func (h *Hub) closeAll() {
	for client := range h.clients {
		client.close()
		delete(h.clients, client)
	}
	atomic.StoreInt64(&h.connected, 0)
}

func (h *Hub) broadcast(event *events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode event for WebSocket")
		return
	}

	atomic.AddInt64(&h.broadcasts, 1)

	for client := range h.clients {
		if client.debateID != "" && event.SessionID != "" && client.debateID != event.SessionID {
			continue
		}
		select {
		case client.send <- data:
		default:
			// A client that cannot keep up is disconnected rather
			// than allowed to stall the debate stream.
			delete(h.clients, client)
			client.close()
			atomic.AddInt64(&h.connected, -1)
			atomic.AddInt64(&h.dropped, 1)
			h.logger.Warn("Dropped slow WebSocket client")
		}
	}
}

// drop requests removal of a client, returning immediately if the hub
// is already shut down.
func (h *Hub) drop(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Stop disconnects all clients and terminates the distribution loop.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return
	}
	h.started = false
	busCh := h.busCh
	h.mu.Unlock()

	close(h.done)
	h.bus.Unsubscribe(busCh)
	h.wg.Wait()

	h.logger.WithFields(logrus.Fields{
		"broadcasts": atomic.LoadInt64(&h.broadcasts),
		"dropped":    atomic.LoadInt64(&h.dropped),
	}).Info("WebSocket hub stopped")
}

// ClientCount reports currently connected clients.
func (h *Hub) ClientCount() int64 {
	return atomic.LoadInt64(&h.connected)
}

// ServeWS upgrades an HTTP request to a WebSocket subscription. The
// optional "debate" query parameter narrows the stream to one session.
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	client := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, h.config.SendBufferSize),
		debateID: c.Query("debate"),
	}

	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
