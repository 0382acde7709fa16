package gateway

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sigmateam/endurance/internal/events"
)

// RaceEvent is the websocket wire frame. Data is opaque to the gateway;
// it relays payloads without validating them.
type RaceEvent struct {
	ID        string          `json:"id"`
	RaceID    string          `json:"raceId"`
	Type      events.Kind     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewRaceEvent builds an outbound frame with a fresh id.
func NewRaceEvent(raceID uuid.UUID, kind events.Kind, data interface{}) (*RaceEvent, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &RaceEvent{
		ID:        uuid.New().String(),
		RaceID:    raceID.String(),
		Type:      kind,
		Timestamp: time.Now().UTC(),
		Data:      raw,
	}, nil
}

// relayableKinds lists the client-originated kinds the gateway will
// relay to a room. Anything else is dropped.
var relayableKinds = map[events.Kind]bool{
	events.KindUserJoinedRace:      true,
	events.KindRaceStarted:         true,
	events.KindRaceFinished:        true,
	events.KindRaceReset:           true,
	events.KindStintStarted:        true,
	events.KindStintEnded:          true,
	events.KindDriverChanged:       true,
	events.KindDriverAdded:         true,
	events.KindDriverRemoved:       true,
	events.KindRaceSettingsUpdated: true,
	events.KindRequestRaceState:    true,
	events.KindRaceStateRequested:  true,
	events.KindEmitRaceState:       true,
	events.KindRaceStateUpdated:    true,
}

// relayKind maps a client frame's kind onto the kind the room sees.
// A state request goes out as race-state-requested and a state push as
// race-state-updated; everything else passes through verbatim.
func relayKind(kind events.Kind) (events.Kind, bool) {
	if !relayableKinds[kind] {
		return "", false
	}
	switch kind {
	case events.KindRequestRaceState:
		return events.KindRaceStateRequested, true
	case events.KindEmitRaceState:
		return events.KindRaceStateUpdated, true
	default:
		return kind, true
	}
}
