package gateway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sigmateam/endurance/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() *ConnectionManager {
	return NewConnectionManager(DefaultConnectionConfig())
}

func newTestConnection(cm *ConnectionManager, userID string) *Connection {
	return &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		Send:        make(chan []byte, 16),
		manager:     cm,
		ConnectedAt: time.Now(),
	}
}

// drainBroadcasts applies every queued broadcast synchronously, instead
// of running the manager's Start loop.
func drainBroadcasts(cm *ConnectionManager) {
	for {
		select {
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		default:
			return
		}
	}
}

// receive pops one delivered frame, or nil when the inbox is empty.
func receive(t *testing.T, conn *Connection) *RaceEvent {
	t.Helper()
	select {
	case data := <-conn.Send:
		var frame RaceEvent
		require.NoError(t, json.Unmarshal(data, &frame))
		return &frame
	default:
		return nil
	}
}

func clientFrame(t *testing.T, kind events.Kind, payload interface{}) []byte {
	t.Helper()
	frame, err := NewRaceEvent(uuid.Nil, kind, payload)
	require.NoError(t, err)
	data, err := json.Marshal(frame)
	require.NoError(t, err)
	return data
}

func TestJoinRaceNotifiesExistingOccupants(t *testing.T) {
	cm := newTestManager()
	raceID := uuid.New()
	first := newTestConnection(cm, "alice")
	second := newTestConnection(cm, "bob")

	cm.JoinRace(first, raceID)
	drainBroadcasts(cm)
	assert.Nil(t, receive(t, first), "empty room join must notify nobody")

	cm.JoinRace(second, raceID)
	drainBroadcasts(cm)

	frame := receive(t, first)
	require.NotNil(t, frame)
	assert.Equal(t, events.KindUserJoinedRace, frame.Type)
	var payload events.UserJoinedRacePayload
	require.NoError(t, json.Unmarshal(frame.Data, &payload))
	assert.Equal(t, "bob", payload.UserID)

	assert.Nil(t, receive(t, second), "the joiner must not hear its own arrival")
}

func TestRelayExcludesOriginator(t *testing.T) {
	cm := newTestManager()
	raceID := uuid.New()
	origin := newTestConnection(cm, "alice")
	peer1 := newTestConnection(cm, "bob")
	peer2 := newTestConnection(cm, "carol")
	for _, conn := range []*Connection{origin, peer1, peer2} {
		cm.JoinRace(conn, raceID)
	}
	drainBroadcasts(cm)
	for _, conn := range []*Connection{origin, peer1, peer2} {
		for receive(t, conn) != nil {
		}
	}

	cm.HandleClientFrame(origin, clientFrame(t, events.KindStintEnded, events.StintEndedPayload{
		RaceID:     raceID.String(),
		DriverName: "Alice",
		LapTime:    61000,
	}))
	drainBroadcasts(cm)

	assert.Nil(t, receive(t, origin), "originator must not receive its own relay")
	for _, peer := range []*Connection{peer1, peer2} {
		frame := receive(t, peer)
		require.NotNil(t, frame)
		assert.Equal(t, events.KindStintEnded, frame.Type)
		assert.Equal(t, raceID.String(), frame.RaceID)
	}
}

func TestRelayMapsStateExchangeKinds(t *testing.T) {
	cm := newTestManager()
	raceID := uuid.New()
	origin := newTestConnection(cm, "late-joiner")
	peer := newTestConnection(cm, "holder")
	cm.JoinRace(origin, raceID)
	cm.JoinRace(peer, raceID)
	drainBroadcasts(cm)
	for receive(t, origin) != nil {
	}

	cm.HandleClientFrame(origin, clientFrame(t, events.KindRequestRaceState, nil))
	drainBroadcasts(cm)
	frame := receive(t, peer)
	require.NotNil(t, frame)
	assert.Equal(t, events.KindRaceStateRequested, frame.Type)

	cm.HandleClientFrame(peer, clientFrame(t, events.KindEmitRaceState, events.RaceStatePayload{
		RaceID:    raceID.String(),
		IsRunning: true,
	}))
	drainBroadcasts(cm)
	frame = receive(t, origin)
	require.NotNil(t, frame)
	assert.Equal(t, events.KindRaceStateUpdated, frame.Type)
}

func TestUnknownKindIsDropped(t *testing.T) {
	cm := newTestManager()
	raceID := uuid.New()
	origin := newTestConnection(cm, "alice")
	peer := newTestConnection(cm, "bob")
	cm.JoinRace(origin, raceID)
	cm.JoinRace(peer, raceID)
	drainBroadcasts(cm)
	for receive(t, origin) != nil {
	}

	cm.HandleClientFrame(origin, clientFrame(t, events.Kind("format-hard-drive"), nil))
	cm.HandleClientFrame(origin, []byte("not json at all"))
	drainBroadcasts(cm)

	assert.Nil(t, receive(t, peer))
}

func TestJoinRaceSwitchesRoom(t *testing.T) {
	cm := newTestManager()
	raceA := uuid.New()
	raceB := uuid.New()
	mover := newTestConnection(cm, "alice")
	stayer := newTestConnection(cm, "bob")
	cm.JoinRace(stayer, raceA)
	cm.JoinRace(mover, raceA)
	drainBroadcasts(cm)
	for receive(t, stayer) != nil {
	}

	cm.JoinRace(mover, raceB)
	drainBroadcasts(cm)
	for receive(t, stayer) != nil {
	}

	event, err := NewRaceEvent(raceA, events.KindRaceStarted, nil)
	require.NoError(t, err)
	cm.BroadcastToRace(raceA, event)
	drainBroadcasts(cm)

	assert.Nil(t, receive(t, mover), "a connection is in at most one room")
	require.NotNil(t, receive(t, stayer))
	assert.Equal(t, raceB, mover.RaceID)
}

func TestServerBroadcastReachesWholeRoom(t *testing.T) {
	cm := newTestManager()
	raceID := uuid.New()
	conns := []*Connection{
		newTestConnection(cm, "alice"),
		newTestConnection(cm, "bob"),
	}
	for _, conn := range conns {
		cm.JoinRace(conn, raceID)
	}
	drainBroadcasts(cm)
	for _, conn := range conns {
		for receive(t, conn) != nil {
		}
	}

	event, err := NewRaceEvent(raceID, events.KindRaceFinished, events.RaceFinishedPayload{
		RaceID: raceID.String(),
	})
	require.NoError(t, err)
	cm.BroadcastToRace(raceID, event)
	drainBroadcasts(cm)

	// Authoritative server events echo to everyone, originator included.
	for _, conn := range conns {
		frame := receive(t, conn)
		require.NotNil(t, frame)
		assert.Equal(t, events.KindRaceFinished, frame.Type)
	}
}

func TestLeaveRace(t *testing.T) {
	cm := newTestManager()
	raceID := uuid.New()
	conn := newTestConnection(cm, "alice")
	cm.JoinRace(conn, raceID)
	drainBroadcasts(cm)

	cm.HandleClientFrame(conn, clientFrame(t, events.KindLeaveRace, nil))

	event, err := NewRaceEvent(raceID, events.KindRaceStarted, nil)
	require.NoError(t, err)
	cm.BroadcastToRace(raceID, event)
	drainBroadcasts(cm)

	assert.Nil(t, receive(t, conn))
	assert.Equal(t, uuid.Nil, conn.RaceID)
}

func TestConnectionStats(t *testing.T) {
	cm := newTestManager()
	raceID := uuid.New()
	cm.JoinRace(newTestConnection(cm, "alice"), raceID)
	cm.JoinRace(newTestConnection(cm, "bob"), raceID)
	drainBroadcasts(cm)

	stats := cm.GetConnectionStats()
	assert.Equal(t, 2, stats["total_connections"])
	assert.Equal(t, 1, stats["active_races"])
}

func TestJoinNoticeTargetsRoomAtJoinTime(t *testing.T) {
	cm := newTestManager()
	raceID := uuid.New()
	first := newTestConnection(cm, "alice")
	second := newTestConnection(cm, "bob")
	late := newTestConnection(cm, "carol")

	cm.JoinRace(first, raceID)
	cm.JoinRace(second, raceID)
	// carol arrives while bob's join notice is still queued. The
	// recipient set was captured when bob joined, so carol must not
	// see it.
	cm.JoinRace(late, raceID)
	drainBroadcasts(cm)

	for _, conn := range []*Connection{first, second} {
		frame := receive(t, conn)
		require.NotNil(t, frame, "user %s expects a join notice", conn.UserID)
		assert.Equal(t, events.KindUserJoinedRace, frame.Type)
	}
	carolNotice := receive(t, first)
	require.NotNil(t, carolNotice, "alice sees both later joins")
	assert.Nil(t, receive(t, late), "carol must not receive notices queued before she joined")
}

func TestQueuedNoticeSkipsDepartedConnection(t *testing.T) {
	cm := newTestManager()
	raceID := uuid.New()
	first := newTestConnection(cm, "alice")
	second := newTestConnection(cm, "bob")
	cm.JoinRace(first, raceID)
	cm.JoinRace(second, raceID)
	drainBroadcasts(cm)
	receive(t, first)

	joiner := newTestConnection(cm, "carol")
	cm.JoinRace(joiner, raceID)
	// bob's connection dies while the notice about carol is in flight.
	cm.unregisterConnection(second)
	drainBroadcasts(cm)

	frame := receive(t, first)
	require.NotNil(t, frame)
	assert.Equal(t, events.KindUserJoinedRace, frame.Type)
}
