package raceclient

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sigmateam/endurance/internal/events"
	"github.com/sigmateam/endurance/internal/gateway"
)

// RaceState is the client-side mirror of a race's live state.
type RaceState struct {
	RaceID             string      `json:"raceId"`
	RaceStarted        bool        `json:"raceStarted"`
	IsRunning          bool        `json:"isRunning"`
	StintRunning       bool        `json:"stintRunning"`
	CurrentDriverID    string      `json:"currentDriverId,omitempty"`
	CurrentDriverIndex int         `json:"currentDriverIndex"`
	CurrentLapStart    *time.Time  `json:"currentLapStart,omitempty"`
	RaceStartTime      *time.Time  `json:"raceStartTime,omitempty"`
	Laps               []LapRecord `json:"laps,omitempty"`
	LastUpdated        time.Time   `json:"lastUpdated"`
}

// LapRecord is one completed lap as observed over the event channel.
// It is a best-effort local history; the store's lap list is the
// source of truth.
type LapRecord struct {
	LapID      string    `json:"lapId"`
	DriverName string    `json:"driverName"`
	LapTime    int64     `json:"lapTime"`
	EndedAt    time.Time `json:"endedAt"`
}

// StateTracker folds inbound race events into a local state mirror.
// Applies are idempotent: a frame already seen (echoes, redeliveries)
// changes nothing. A race-state-updated snapshot replaces the mirror
// wholesale, last snapshot wins.
type StateTracker struct {
	mu    sync.Mutex
	state RaceState
	seen  map[string]bool
}

// NewStateTracker creates an empty tracker.
func NewStateTracker() *StateTracker {
	return &StateTracker{seen: make(map[string]bool)}
}

// State returns a copy of the current mirror.
func (t *StateTracker) State() RaceState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Subscribe attaches the tracker to every event kind it understands and
// returns a single unsubscribe function.
func (t *StateTracker) Subscribe(c *Client) func() {
	kinds := []events.Kind{
		events.KindRaceStarted,
		events.KindRaceFinished,
		events.KindRaceReset,
		events.KindStintStarted,
		events.KindStintEnded,
		events.KindDriverChanged,
		events.KindRaceStateUpdated,
	}
	var unsubs []func()
	for _, kind := range kinds {
		unsubs = append(unsubs, c.On(kind, t.ApplyEvent))
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

// ApplyEvent folds one frame into the mirror.
func (t *StateTracker) ApplyEvent(event gateway.RaceEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if event.ID != "" && t.seen[event.ID] {
		return
	}

	switch event.Type {
	case events.KindRaceStarted:
		var payload events.RaceStartedPayload
		if !decodePayload(event, &payload) {
			return
		}
		t.state.RaceID = event.RaceID
		t.state.RaceStarted = true
		t.state.IsRunning = true
		t.state.StintRunning = true
		start := payload.StartTime
		t.state.RaceStartTime = &start
		stintStart := payload.CurrentStintStart
		t.state.CurrentLapStart = &stintStart

	case events.KindRaceFinished:
		t.state.IsRunning = false
		t.state.StintRunning = false
		t.state.CurrentLapStart = nil

	case events.KindRaceReset:
		var payload events.RaceResetPayload
		if !decodePayload(event, &payload) {
			return
		}
		t.state = RaceState{RaceID: payload.NewRaceID}

	case events.KindStintStarted:
		var payload events.StintStartedPayload
		if !decodePayload(event, &payload) {
			return
		}
		t.state.StintRunning = true
		t.state.CurrentDriverID = payload.DriverID
		at := payload.Timestamp
		t.state.CurrentLapStart = &at

	case events.KindStintEnded:
		t.state.StintRunning = false
		t.state.CurrentLapStart = nil
		var payload events.StintEndedPayload
		if decodePayload(event, &payload) && payload.LapID != "" {
			t.state.Laps = append(t.state.Laps, LapRecord{
				LapID:      payload.LapID,
				DriverName: payload.DriverName,
				LapTime:    payload.LapTime,
				EndedAt:    payload.Timestamp,
			})
		}

	case events.KindDriverChanged:
		var payload events.DriverChangedPayload
		if !decodePayload(event, &payload) {
			return
		}
		t.state.CurrentDriverID = payload.DriverID

	case events.KindRaceStateUpdated:
		var payload events.RaceStatePayload
		if !decodePayload(event, &payload) {
			return
		}
		// The snapshot carries no lap history, so the locally observed
		// laps survive it, as does the driver identity.
		t.state = RaceState{
			RaceID:             payload.RaceID,
			RaceStarted:        payload.RaceStarted,
			IsRunning:          payload.IsRunning,
			StintRunning:       payload.StintRunning,
			CurrentDriverID:    t.state.CurrentDriverID,
			CurrentDriverIndex: payload.CurrentDriverIndex,
			CurrentLapStart:    payload.CurrentLapStart,
			RaceStartTime:      payload.RaceStartTime,
			Laps:               t.state.Laps,
		}

	default:
		return
	}

	if event.ID != "" {
		t.seen[event.ID] = true
	}
	t.state.LastUpdated = event.Timestamp
}

func decodePayload(event gateway.RaceEvent, out interface{}) bool {
	if err := json.Unmarshal(event.Data, out); err != nil {
		log.Debug().
			Err(err).
			Str("event_type", string(event.Type)).
			Msg("dropping event with malformed payload")
		return false
	}
	return true
}
