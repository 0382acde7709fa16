package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sigmateam/endurance/internal/events"
)

// ConnectionManager keeps per-race rooms of websocket connections and
// fans race events out to them. Delivery is fire-and-forget: a client
// whose send buffer fills up is evicted, never waited on.
type ConnectionManager struct {
	// Connection pools organized by race ID
	raceConnections map[uuid.UUID]map[*Connection]bool
	mu              sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan BroadcastMessage
}

// Connection represents a websocket connection to one client. RaceID is
// the room the client currently occupies (uuid.Nil when in none) and is
// guarded by the manager's mutex; a client is in at most one room.
type Connection struct {
	ID     string
	UserID string
	RaceID uuid.UUID
	Conn   *websocket.Conn
	Send   chan []byte

	manager *ConnectionManager
	closed  bool

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds configuration for websocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage represents a message queued for fan-out to a room.
// Targets, when set, is the recipient set captured at emit time; the
// room is not re-resolved at drain time, so a client that joins while
// the message sits in the queue never sees it. Exclude, when set, skips
// that connection (the relay originator).
type BroadcastMessage struct {
	RaceID  uuid.UUID
	Event   *RaceEvent
	Targets []*Connection
	Exclude *Connection
}

// DefaultConnectionConfig returns default websocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  8192,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a new websocket connection manager.
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		raceConnections: make(map[uuid.UUID]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// Start begins processing broadcast messages.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP request to a websocket connection
// and, when raceID is set, joins that race's room immediately.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID string, raceID uuid.UUID) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	if raceID != uuid.Nil {
		cm.JoinRace(connection, raceID)
	}

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", userID).
		Str("race_id", raceID.String()).
		Msg("websocket connection established")

	return nil
}

// JoinRace moves a connection into a race's room, leaving its previous
// room first, and tells the room's other occupants someone arrived.
func (cm *ConnectionManager) JoinRace(conn *Connection, raceID uuid.UUID) {
	cm.mu.Lock()
	cm.removeLocked(conn)
	if cm.raceConnections[raceID] == nil {
		cm.raceConnections[raceID] = make(map[*Connection]bool)
	}
	cm.raceConnections[raceID][conn] = true
	conn.RaceID = raceID
	occupants := make([]*Connection, 0, len(cm.raceConnections[raceID])-1)
	for other := range cm.raceConnections[raceID] {
		if other != conn {
			occupants = append(occupants, other)
		}
	}
	cm.mu.Unlock()

	log.Debug().
		Str("connection_id", conn.ID).
		Str("race_id", raceID.String()).
		Int("room_size", len(occupants)+1).
		Msg("connection joined race room")

	if len(occupants) == 0 {
		return
	}
	joined, err := NewRaceEvent(raceID, events.KindUserJoinedRace, events.UserJoinedRacePayload{
		RaceID:    raceID.String(),
		UserID:    conn.UserID,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to build user-joined-race event")
		return
	}
	// The notice goes to whoever is in the room right now, not to
	// whoever is in it when the queue drains.
	cm.enqueue(BroadcastMessage{RaceID: raceID, Event: joined, Targets: occupants})
}

// LeaveRace removes a connection from its current room.
func (cm *ConnectionManager) LeaveRace(conn *Connection) {
	cm.mu.Lock()
	cm.removeLocked(conn)
	cm.mu.Unlock()
}

// removeLocked detaches a connection from its room. Caller holds cm.mu.
func (cm *ConnectionManager) removeLocked(conn *Connection) {
	if conn.RaceID == uuid.Nil {
		return
	}
	if connections, exists := cm.raceConnections[conn.RaceID]; exists {
		delete(connections, conn)
		if len(connections) == 0 {
			delete(cm.raceConnections, conn.RaceID)
		}
	}
	conn.RaceID = uuid.Nil
}

// unregisterConnection removes a closed connection entirely.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if conn.closed {
		return
	}
	conn.closed = true
	cm.removeLocked(conn)
	close(conn.Send)

	log.Info().
		Str("connection_id", conn.ID).
		Str("user_id", conn.UserID).
		Msg("connection unregistered")
}

// BroadcastToRace queues an event for every connection in a race's room.
func (cm *ConnectionManager) BroadcastToRace(raceID uuid.UUID, event *RaceEvent) {
	cm.enqueue(BroadcastMessage{RaceID: raceID, Event: event})
}

// BroadcastExcept queues an event for a room, skipping the originator.
func (cm *ConnectionManager) BroadcastExcept(raceID uuid.UUID, origin *Connection, event *RaceEvent) {
	cm.enqueue(BroadcastMessage{RaceID: raceID, Event: event, Exclude: origin})
}

func (cm *ConnectionManager) enqueue(message BroadcastMessage) {
	select {
	case cm.broadcastCh <- message:
	default:
		log.Warn().Str("race_id", message.RaceID.String()).Msg("broadcast channel full, dropping message")
	}
}

// handleBroadcast fans one message out. A message carrying Targets is
// delivered to exactly that set; otherwise the room is resolved here.
func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	targets := message.Targets
	if targets == nil {
		cm.mu.RLock()
		for conn := range cm.raceConnections[message.RaceID] {
			if conn == message.Exclude {
				continue
			}
			targets = append(targets, conn)
		}
		cm.mu.RUnlock()
	}
	if len(targets) == 0 {
		return
	}

	data, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	for _, conn := range targets {
		// Send under the read lock: unregisterConnection closes Send
		// under the write lock, so a connection observed open here
		// cannot be closed mid-send.
		cm.mu.RLock()
		var full bool
		if !conn.closed {
			select {
			case conn.Send <- data:
			default:
				full = true
			}
		}
		cm.mu.RUnlock()

		if full {
			log.Warn().
				Str("connection_id", conn.ID).
				Str("user_id", conn.UserID).
				Msg("connection send buffer full, closing connection")
			cm.unregisterConnection(conn)
			if conn.Conn != nil {
				conn.Conn.Close()
			}
		}
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Str("race_id", message.RaceID.String()).
		Int("connections", len(targets)).
		Msg("event broadcasted")
}

// GetConnectionStats returns statistics about active connections.
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	totalConnections := 0
	raceCounts := make(map[string]int)
	for raceID, connections := range cm.raceConnections {
		count := len(connections)
		totalConnections += count
		raceCounts[raceID.String()] = count
	}

	return map[string]interface{}{
		"total_connections": totalConnections,
		"active_races":      len(cm.raceConnections),
		"race_connections":  raceCounts,
	}
}

// writePump sends queued messages and pings to the websocket.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to websocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump reads client frames until the connection drops.
func (c *Connection) readPump() {
	defer func() {
		c.manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected websocket close error")
			}
			break
		}

		c.manager.HandleClientFrame(c, message)
		c.Conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	}
}

// HandleClientFrame processes one frame received from a client:
// join-race and leave-race manage room membership, every other known
// kind is relayed to the room with the originator excluded.
func (cm *ConnectionManager) HandleClientFrame(c *Connection, message []byte) {
	var frame RaceEvent
	if err := json.Unmarshal(message, &frame); err != nil {
		log.Debug().
			Str("connection_id", c.ID).
			Msg("dropping malformed client frame")
		return
	}

	switch frame.Type {
	case events.KindJoinRace:
		raceID, err := uuid.Parse(frame.RaceID)
		if err != nil {
			log.Debug().Str("connection_id", c.ID).Msg("join-race with invalid race id")
			return
		}
		cm.JoinRace(c, raceID)

	case events.KindLeaveRace:
		cm.LeaveRace(c)

	default:
		kind, ok := relayKind(frame.Type)
		if !ok {
			log.Debug().
				Str("connection_id", c.ID).
				Str("type", string(frame.Type)).
				Msg("dropping unknown client frame")
			return
		}
		cm.mu.RLock()
		raceID := c.RaceID
		cm.mu.RUnlock()
		if raceID == uuid.Nil {
			return
		}

		frame.Type = kind
		frame.RaceID = raceID.String()
		if frame.ID == "" {
			frame.ID = uuid.New().String()
		}
		if frame.Timestamp.IsZero() {
			frame.Timestamp = time.Now().UTC()
		}
		cm.BroadcastExcept(raceID, c, &frame)
	}
}
