// Package events defines the race event vocabulary shared by the HTTP
// apps, the websocket gateway, and observing clients, plus the publisher
// that moves server-originated events onto the bus.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies an event on the wire. The values are the wire names
// used by both the bus envelope and the websocket frames.
type Kind string

const (
	KindJoinRace            Kind = "join-race"
	KindLeaveRace           Kind = "leave-race"
	KindUserJoinedRace      Kind = "user-joined-race"
	KindRaceStarted         Kind = "race-started"
	KindRaceFinished        Kind = "race-finished"
	KindRaceReset           Kind = "race-reset"
	KindStintStarted        Kind = "stint-started"
	KindStintEnded          Kind = "stint-ended"
	KindDriverChanged       Kind = "driver-changed"
	KindDriverAdded         Kind = "driver-added"
	KindDriverRemoved       Kind = "driver-removed"
	KindRaceSettingsUpdated Kind = "race-settings-updated"
	KindRequestRaceState    Kind = "request-race-state"
	KindRaceStateRequested  Kind = "race-state-requested"
	KindEmitRaceState       Kind = "emit-race-state"
	KindRaceStateUpdated    Kind = "race-state-updated"
)

// Event is a single race-scoped notification.
type Event struct {
	ID        uuid.UUID   `json:"id"`
	RaceID    uuid.UUID   `json:"race_id"`
	Type      Kind        `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// New builds an event with a fresh id.
func New(raceID uuid.UUID, kind Kind, at time.Time, payload interface{}) Event {
	return Event{
		ID:        uuid.New(),
		RaceID:    raceID,
		Type:      kind,
		Timestamp: at,
		Payload:   payload,
	}
}
