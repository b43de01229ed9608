// Package mockserver provides a mock streaming backend for testing.
// It speaks the station's websocket protocol: entity updates, removals,
// heartbeats, and notices out; subscribe, unsubscribe, and ping in.
package mockserver

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/argo-station/internal/types"
	"github.com/rxtech-lab/argo-station/internal/wire"
)

// ServerConfig holds configuration for the mock backend.
type ServerConfig struct {
	// HeartbeatInterval is the cadence of outbound heartbeats.
	HeartbeatInterval time.Duration
	// StreamInterval is the cadence of price updates for subscribed
	// entities.
	StreamInterval time.Duration
	// InitialPrices seeds entity prices, keyed by entity id. Values are
	// decimal strings.
	InitialPrices map[string]string
	// PriceStep is added to each entity price per stream tick. Defaults
	// to 0.5.
	PriceStep string
}

// MockBackendServer is a mock streaming backend for tests. It tracks
// per-connection subscriptions and streams prices for subscribed entities.
type MockBackendServer struct {
	mu sync.RWMutex

	httpServer *http.Server
	listener   net.Listener
	upgrader   websocket.Upgrader

	prices    map[string]decimal.Decimal
	priceStep decimal.Decimal

	heartbeatInterval time.Duration
	streamInterval    time.Duration
	heartbeatsPaused  bool

	clients map[*client]bool

	subscribeCount   int
	unsubscribeCount int
	pingCount        int

	stop chan struct{}
}

// client is one websocket connection with its subscription set.
type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu   sync.Mutex
	subs map[string]bool
}

func (c *client) send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *client) subscribed(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.subs[id]
}

// NewMockBackendServer creates a mock backend with the given config.
func NewMockBackendServer(config ServerConfig) *MockBackendServer {
	server := &MockBackendServer{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		prices:            make(map[string]decimal.Decimal),
		heartbeatInterval: config.HeartbeatInterval,
		streamInterval:    config.StreamInterval,
		clients:           make(map[*client]bool),
		stop:              make(chan struct{}),
	}

	if server.heartbeatInterval == 0 {
		server.heartbeatInterval = 50 * time.Millisecond
	}

	if server.streamInterval == 0 {
		server.streamInterval = 20 * time.Millisecond
	}

	step := config.PriceStep
	if step == "" {
		step = "0.5"
	}

	server.priceStep = decimal.RequireFromString(step)

	for id, price := range config.InitialPrices {
		server.prices[id] = decimal.RequireFromString(price)
	}

	return server
}

// Start begins serving on the given address (":0" for an ephemeral port).
func (s *MockBackendServer) Start(address string) error {
	if address == "" {
		address = ":0"
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	s.listener = listener

	router := mux.NewRouter()
	router.HandleFunc("/ws", s.handleWebSocket)

	s.httpServer = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != http.ErrServerClosed {
			fmt.Printf("mock backend server error: %v\n", err)
		}
	}()

	go s.streamLoop()

	return nil
}

// Stop shuts the server down and drops all connections.
func (s *MockBackendServer) Stop() error {
	close(s.stop)
	s.DisconnectAll()

	if s.httpServer != nil {
		return s.httpServer.Close()
	}

	return nil
}

// WebSocketURL returns the ws:// address clients should dial.
func (s *MockBackendServer) WebSocketURL() string {
	return fmt.Sprintf("ws://%s/ws", s.listener.Addr().String())
}

// SetPrice sets an entity's price and broadcasts the update immediately.
func (s *MockBackendServer) SetPrice(entityID, price string) {
	p := decimal.RequireFromString(price)

	s.mu.Lock()
	s.prices[entityID] = p
	s.mu.Unlock()

	s.broadcastEntity(entityID, p)
}

// RemoveEntity drops an entity and broadcasts a removal frame.
func (s *MockBackendServer) RemoveEntity(entityID string) {
	s.mu.Lock()
	delete(s.prices, entityID)
	s.mu.Unlock()

	s.broadcast(fmt.Sprintf(`{"v":%d,"type":"remove","id":%q}`, wire.SchemaVersion, entityID))
}

// SendNotice broadcasts a notice frame to every connection.
func (s *MockBackendServer) SendNotice(level, message string) {
	frame := map[string]any{
		"v":       wire.SchemaVersion,
		"type":    "notice",
		"level":   level,
		"message": message,
		"ts":      time.Now().UnixMilli(),
	}

	data, _ := json.Marshal(frame)
	s.broadcast(string(data))
}

// SendRaw broadcasts arbitrary bytes to every connection. Used to inject
// malformed or future-versioned frames.
func (s *MockBackendServer) SendRaw(raw string) {
	s.broadcast(raw)
}

// DisconnectAll force-closes every active connection.
func (s *MockBackendServer) DisconnectAll() {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clients = make(map[*client]bool)
	s.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.Close()
	}
}

// PauseHeartbeats stops emitting heartbeat frames without closing
// connections, simulating a hung backend.
func (s *MockBackendServer) PauseHeartbeats() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.heartbeatsPaused = true
}

// ResumeHeartbeats restarts heartbeat emission.
func (s *MockBackendServer) ResumeHeartbeats() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.heartbeatsPaused = false
}

// ConnectionCount returns the number of active connections.
func (s *MockBackendServer) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.clients)
}

// SubscribeCount returns how many subscribe commands were received.
func (s *MockBackendServer) SubscribeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.subscribeCount
}

// UnsubscribeCount returns how many unsubscribe commands were received.
func (s *MockBackendServer) UnsubscribeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.unsubscribeCount
}

// PingCount returns how many ping commands were received.
func (s *MockBackendServer) PingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.pingCount
}

func (s *MockBackendServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &client{
		conn: conn,
		subs: make(map[string]bool),
	}

	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()

		_ = conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		cmd, err := wire.DecodeCommand(raw)
		if err != nil {
			continue
		}

		s.handleCommand(c, cmd)
	}
}

func (s *MockBackendServer) handleCommand(c *client, cmd types.OutboundCommand) {
	switch cmd := cmd.(type) {
	case types.SubscribeCommand:
		c.mu.Lock()
		for _, id := range cmd.EntityIDs {
			c.subs[id] = true
		}
		c.mu.Unlock()

		s.mu.Lock()
		s.subscribeCount++
		s.mu.Unlock()

		// Send the current state of each subscribed entity right away.
		s.mu.RLock()
		for _, id := range cmd.EntityIDs {
			if price, ok := s.prices[id]; ok {
				_ = c.send(s.entityFrame(id, price))
			}
		}
		s.mu.RUnlock()

	case types.UnsubscribeCommand:
		c.mu.Lock()
		for _, id := range cmd.EntityIDs {
			delete(c.subs, id)
		}
		c.mu.Unlock()

		s.mu.Lock()
		s.unsubscribeCount++
		s.mu.Unlock()

	case types.PingCommand:
		s.mu.Lock()
		s.pingCount++
		s.mu.Unlock()
	}
}

// streamLoop drives heartbeats and price updates for all connections.
func (s *MockBackendServer) streamLoop() {
	heartbeat := time.NewTicker(s.heartbeatInterval)
	defer heartbeat.Stop()

	stream := time.NewTicker(s.streamInterval)
	defer stream.Stop()

	for {
		select {
		case <-s.stop:
			return

		case <-heartbeat.C:
			s.mu.RLock()
			paused := s.heartbeatsPaused
			s.mu.RUnlock()

			if paused {
				continue
			}

			frame := fmt.Sprintf(`{"v":%d,"type":"heartbeat","ts":%d}`, wire.SchemaVersion, time.Now().UnixMilli())
			s.broadcast(frame)

		case <-stream.C:
			s.advancePrices()
		}
	}
}

// advancePrices bumps every price by the configured step and sends updates
// to subscribed connections.
func (s *MockBackendServer) advancePrices() {
	s.mu.Lock()
	updated := make(map[string]decimal.Decimal, len(s.prices))
	for id, price := range s.prices {
		next := price.Add(s.priceStep)
		s.prices[id] = next
		updated[id] = next
	}
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		for id, price := range updated {
			if c.subscribed(id) {
				_ = c.send(s.entityFrame(id, price))
			}
		}
	}
}

func (s *MockBackendServer) entityFrame(entityID string, price decimal.Decimal) []byte {
	frame := map[string]any{
		"v":      wire.SchemaVersion,
		"type":   "entity",
		"id":     entityID,
		"kind":   "instrument",
		"price":  price.String(),
		"status": "active",
		"ts":     time.Now().UnixMilli(),
	}

	data, _ := json.Marshal(frame)

	return data
}

// broadcastEntity sends an entity frame to every connection subscribed to
// the entity.
func (s *MockBackendServer) broadcastEntity(entityID string, price decimal.Decimal) {
	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	frame := s.entityFrame(entityID, price)
	for _, c := range clients {
		if c.subscribed(entityID) {
			_ = c.send(frame)
		}
	}
}

func (s *MockBackendServer) broadcast(frame string) {
	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		_ = c.send([]byte(frame))
	}
}
