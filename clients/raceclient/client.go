// Package raceclient is the Go client for the race websocket gateway:
// it joins race rooms, relays and receives race events, and keeps a
// local state mirror consistent through reconnects.
package raceclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sigmateam/endurance/internal/events"
	"github.com/sigmateam/endurance/internal/gateway"
)

// Handler receives inbound frames for a subscribed event kind.
type Handler func(event gateway.RaceEvent)

// Client is a websocket client for the race gateway. It reconnects
// automatically, rejoining its room and requesting a fresh state
// snapshot so the local mirror converges after any gap.
type Client struct {
	url    string
	userID string
	dialer *websocket.Dialer

	reconnectWait time.Duration

	mu        sync.Mutex
	conn      *websocket.Conn
	raceID    uuid.UUID
	connected bool
	closed    bool
	handlers  map[events.Kind]map[int]Handler
	nextID    int
}

// Option configures a Client.
type Option func(*Client)

// WithReconnectWait sets the delay between reconnect attempts.
func WithReconnectWait(d time.Duration) Option {
	return func(c *Client) { c.reconnectWait = d }
}

// NewClient creates a client for the gateway websocket endpoint,
// e.g. "ws://localhost:8080/ws/race".
func NewClient(url, userID string, opts ...Option) *Client {
	c := &Client{
		url:           url,
		userID:        userID,
		dialer:        websocket.DefaultDialer,
		reconnectWait: 2 * time.Second,
		handlers:      make(map[events.Kind]map[int]Handler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials the gateway and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}
	if c.closed {
		return fmt.Errorf("raceclient: client is closed")
	}

	conn, _, err := c.dialer.DialContext(ctx, c.dialURL(), nil)
	if err != nil {
		return fmt.Errorf("raceclient: dial %s: %w", c.url, err)
	}
	c.conn = conn
	c.connected = true

	go c.readLoop(conn)
	return nil
}

// Close shuts the client down permanently.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.connected = false
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Connected reports whether the client currently holds a live
// connection.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// JoinRace enters a race room, leaving any previous one.
func (c *Client) JoinRace(raceID uuid.UUID) error {
	c.mu.Lock()
	c.raceID = raceID
	c.mu.Unlock()
	return c.send(raceID, events.KindJoinRace, nil)
}

// LeaveRace exits the current room.
func (c *Client) LeaveRace() error {
	c.mu.Lock()
	raceID := c.raceID
	c.raceID = uuid.Nil
	c.mu.Unlock()
	if raceID == uuid.Nil {
		return nil
	}
	return c.send(raceID, events.KindLeaveRace, nil)
}

// RequestRaceState asks the room for a fresh state snapshot.
func (c *Client) RequestRaceState() error {
	raceID := c.currentRace()
	return c.send(raceID, events.KindRequestRaceState, events.RaceStateRequestedPayload{
		RaceID:      raceID.String(),
		RequesterID: c.userID,
		Timestamp:   time.Now().UTC(),
	})
}

// EmitRaceState answers a state request with this client's snapshot.
func (c *Client) EmitRaceState(state events.RaceStatePayload) error {
	return c.send(c.currentRace(), events.KindEmitRaceState, state)
}

// EmitStintEnded notifies the room that a stint just closed.
func (c *Client) EmitStintEnded(payload events.StintEndedPayload) error {
	return c.send(c.currentRace(), events.KindStintEnded, payload)
}

// EmitDriverChanged notifies the room of a driver change.
func (c *Client) EmitDriverChanged(payload events.DriverChangedPayload) error {
	return c.send(c.currentRace(), events.KindDriverChanged, payload)
}

// Emit sends an arbitrary event kind to the current room.
func (c *Client) Emit(kind events.Kind, payload interface{}) error {
	return c.send(c.currentRace(), kind, payload)
}

// On subscribes a handler to an event kind and returns an unsubscribe
// function.
func (c *Client) On(kind events.Kind, fn Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handlers[kind] == nil {
		c.handlers[kind] = make(map[int]Handler)
	}
	id := c.nextID
	c.nextID++
	c.handlers[kind][id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers[kind], id)
	}
}

func (c *Client) currentRace() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.raceID
}

func (c *Client) dialURL() string {
	return fmt.Sprintf("%s?user_id=%s", c.url, c.userID)
}

func (c *Client) send(raceID uuid.UUID, kind events.Kind, payload interface{}) error {
	frame, err := gateway.NewRaceEvent(raceID, kind, payload)
	if err != nil {
		return fmt.Errorf("raceclient: marshal payload: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || c.conn == nil {
		return fmt.Errorf("raceclient: not connected")
	}
	if err := c.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("raceclient: write %s: %w", kind, err)
	}
	return nil
}

// readLoop consumes inbound frames until the connection drops, then
// hands off to the reconnect loop.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.connected = false
			c.mu.Unlock()
			if closed {
				return
			}
			log.Warn().Err(err).Msg("race gateway connection lost, reconnecting")
			c.reconnectLoop()
			return
		}

		var frame gateway.RaceEvent
		if err := json.Unmarshal(message, &frame); err != nil {
			log.Debug().Err(err).Msg("dropping malformed gateway frame")
			continue
		}
		c.dispatch(frame)
	}
}

func (c *Client) dispatch(frame gateway.RaceEvent) {
	c.mu.Lock()
	var fns []Handler
	for _, fn := range c.handlers[frame.Type] {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(frame)
	}
}

// reconnectLoop redials until it succeeds or the client is closed, then
// rejoins the room and requests a fresh snapshot to cover the gap.
func (c *Client) reconnectLoop() {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		time.Sleep(c.reconnectWait)

		conn, _, err := c.dialer.Dial(c.dialURL(), nil)
		if err != nil {
			log.Warn().Err(err).Msg("race gateway reconnect failed")
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.connected = true
		raceID := c.raceID
		c.mu.Unlock()

		go c.readLoop(conn)

		if raceID != uuid.Nil {
			if err := c.send(raceID, events.KindJoinRace, nil); err != nil {
				log.Warn().Err(err).Msg("failed to rejoin race room")
			}
			if err := c.RequestRaceState(); err != nil {
				log.Warn().Err(err).Msg("failed to request race state after reconnect")
			}
		}

		log.Info().Str("race_id", raceID.String()).Msg("race gateway reconnected")
		return
	}
}
