// Package ws implements the push transport to viewers: a WebSocket hub that
// tracks which connection watches which entities and fans out activity-score
// and heatmap events to exactly the watching connections.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/calderhq/traderpulse/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256
)

// Event is the wire envelope pushed to viewers.
type Event struct {
	Type      string          `json:"type"`
	EntityID  domain.EntityID `json:"entityId,omitempty"`
	Payload   any             `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Event types.
const (
	EventScore          = "activity_score"
	EventHeatmapRefresh = "heatmap_refresh"
	EventConnected      = "connected"
)

// subscribeMsg is the JSON frame a client sends to manage its watch set.
type subscribeMsg struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	Entities []string `json:"entities"`
}

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins. In production, restrict this to known origins.
		return true
	},
}

// client represents a single WebSocket connection and its outbound queue.
// The mutex orders enqueue against shutdown: once closed is set the send
// channel is gone and deliveries become no-ops.
type client struct {
	id   uuid.UUID
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
	send   chan []byte

	connectedAt time.Time
}

// enqueue queues data for the write pump. It reports false only when the
// client is connected but its buffer is full; enqueue on a disconnected
// client does nothing and is not a slow-client condition.
func (c *client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// shutdown closes the send channel exactly once, ending the write pump.
func (c *client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub is both the subscription registry and the broadcast dispatcher. The
// registry is written by connection lifecycle events and read by the
// dispatcher during broadcast, so all shared state lives behind one RWMutex.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[uuid.UUID]*client
	// watch maps connection to its watched entity set.
	watch map[uuid.UUID]map[domain.EntityID]bool
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:  logger.With(slog.String("component", "ws_hub")),
		clients: make(map[uuid.UUID]*client),
		watch:   make(map[uuid.UUID]map[domain.EntityID]bool),
	}
}

// Subscribe adds entity to the connection's watch set. Idempotent; unknown
// connections are ignored.
func (h *Hub) Subscribe(connID uuid.UUID, entity domain.EntityID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[connID]; !ok {
		return
	}
	set := h.watch[connID]
	if set == nil {
		set = make(map[domain.EntityID]bool)
		h.watch[connID] = set
	}
	set[entity] = true
}

// Unsubscribe removes entity from the connection's watch set. Idempotent.
func (h *Hub) Unsubscribe(connID uuid.UUID, entity domain.EntityID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.watch[connID], entity)
}

// OnDisconnect removes all registry state for the connection and closes its
// send channel. Idempotent.
func (h *Hub) OnDisconnect(connID uuid.UUID) {
	h.mu.Lock()
	c, ok := h.clients[connID]
	if ok {
		delete(h.clients, connID)
		delete(h.watch, connID)
	}
	h.mu.Unlock()

	if ok {
		c.shutdown()
		h.logger.Info("ws: client disconnected",
			slog.String("conn", connID.String()),
			slog.Int("total_clients", h.ClientCount()),
		)
	}
}

// WatchersOf returns the connections currently watching the entity.
func (h *Hub) WatchersOf(entity domain.EntityID) []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []uuid.UUID
	for connID, set := range h.watch {
		if set[entity] {
			out = append(out, connID)
		}
	}
	return out
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastScores delivers one activity_score event per watching connection
// per score. Entities without watchers incur no marshal or delivery work.
func (h *Hub) BroadcastScores(ctx context.Context, scores []domain.ActivityScore) {
	for _, score := range scores {
		h.deliver(score.EntityID, Event{
			Type:      EventScore,
			EntityID:  score.EntityID,
			Payload:   score,
			Timestamp: score.Timestamp,
		})
	}
}

// BroadcastHeatmaps delivers one heatmap_refresh event per watching
// connection per aggregate.
func (h *Hub) BroadcastHeatmaps(ctx context.Context, aggregates []domain.HeatmapAggregate) {
	for _, agg := range aggregates {
		h.deliver(agg.EntityID, Event{
			Type:      EventHeatmapRefresh,
			EntityID:  agg.EntityID,
			Payload:   agg,
			Timestamp: agg.To,
		})
	}
}

// deliver sends the event to every connection watching the entity, at most
// once each. A connection whose send buffer is full, or that disconnects
// between lookup and send, is skipped without affecting the rest of the
// batch.
func (h *Hub) deliver(entity domain.EntityID, ev Event) {
	h.mu.RLock()
	var targets []*client
	for connID, set := range h.watch {
		if !set[entity] {
			continue
		}
		if c, ok := h.clients[connID]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Warn("ws: marshal event failed", slog.String("error", err.Error()))
		return
	}

	for _, c := range targets {
		if !c.enqueue(data) {
			h.logger.Warn("ws: dropping message for slow client",
				slog.String("conn", c.id.String()),
			)
		}
	}
}

// RunRelay bridges the signal bus into the hub so that a server process
// without its own scheduler can still push live updates. It blocks until ctx
// is cancelled.
func (h *Hub) RunRelay(ctx context.Context, bus domain.SignalBus, scoreChannel, heatmapChannel string) error {
	scoreCh, err := bus.Subscribe(ctx, scoreChannel)
	if err != nil {
		return err
	}
	heatCh, err := bus.Subscribe(ctx, heatmapChannel)
	if err != nil {
		return err
	}

	h.logger.InfoContext(ctx, "ws: relay started",
		slog.String("score_channel", scoreChannel),
		slog.String("heatmap_channel", heatmapChannel),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-scoreCh:
			if !ok {
				return nil
			}
			var score domain.ActivityScore
			if err := json.Unmarshal(data, &score); err != nil {
				continue
			}
			h.BroadcastScores(ctx, []domain.ActivityScore{score})
		case data, ok := <-heatCh:
			if !ok {
				return nil
			}
			var agg domain.HeatmapAggregate
			if err := json.Unmarshal(data, &agg); err != nil {
				continue
			}
			h.BroadcastHeatmaps(ctx, []domain.HeatmapAggregate{agg})
		}
	}
}

// Shutdown disconnects every client.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	ids := make([]uuid.UUID, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.OnDisconnect(id)
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection, assigns it a
// connection ID, and starts its read and write pumps.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		id:          uuid.New(),
		conn:        conn,
		send:        make(chan []byte, sendBufferSize),
		connectedAt: time.Now().UTC(),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.watch[c.id] = make(map[domain.EntityID]bool)
	h.mu.Unlock()

	h.logger.Info("ws: client connected",
		slog.String("conn", c.id.String()),
		slog.Int("total_clients", h.ClientCount()),
	)

	h.sendHello(c)

	go h.writePump(c)
	go h.readPump(c)
}

// sendHello pushes a connected event so clients can mark the connection
// healthy before any score events flow.
func (h *Hub) sendHello(c *client) {
	data, err := json.Marshal(Event{
		Type:      EventConnected,
		Payload:   map[string]any{"connectionId": c.id.String()},
		Timestamp: c.connectedAt,
	})
	if err != nil {
		return
	}
	c.enqueue(data)
}

// readPump reads subscription management frames from the connection until it
// closes, then unregisters the client.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.OnDisconnect(c.id)
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("ws: unexpected close error",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var msg subscribeMsg
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		switch msg.Action {
		case "subscribe":
			for _, id := range domain.ParseEntityIDs(msg.Entities) {
				h.Subscribe(c.id, id)
			}
		case "unsubscribe":
			for _, id := range domain.ParseEntityIDs(msg.Entities) {
				h.Unsubscribe(c.id, id)
			}
		}
	}
}

// writePump pumps events from the hub to the connection and sends periodic
// ping frames for keepalive.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
