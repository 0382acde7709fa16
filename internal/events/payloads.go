package events

import (
	"time"

	"github.com/sigmateam/endurance/internal/models"
)

// Event payload types shared between the entity apps, the gateway, and
// observing clients.

// RaceStartedPayload is the payload for a race-started event
type RaceStartedPayload struct {
	RaceID            string    `json:"raceId"`
	StartTime         time.Time `json:"startTime"`
	CurrentStintStart time.Time `json:"currentStintStart"`
}

// RaceFinishedPayload is the payload for a race-finished event
type RaceFinishedPayload struct {
	RaceID  string    `json:"raceId"`
	EndTime time.Time `json:"endTime"`
}

// RaceResetPayload is the payload for a race-reset event. NewRaceID
// points at the fresh pending race that replaces the abandoned one.
type RaceResetPayload struct {
	RaceID    string `json:"raceId"`
	NewRaceID string `json:"newRaceId"`
}

// StintStartedPayload is the payload for a stint-started event
type StintStartedPayload struct {
	RaceID     string    `json:"raceId"`
	DriverID   string    `json:"driverId"`
	DriverName string    `json:"driverName"`
	Timestamp  time.Time `json:"timestamp"`
}

// StintEndedPayload is the payload for a stint-ended event
type StintEndedPayload struct {
	RaceID     string    `json:"raceId"`
	DriverName string    `json:"driverName"`
	LapID      string    `json:"lapId"`
	LapTime    int64     `json:"lapTime"`
	Timestamp  time.Time `json:"timestamp"`
}

// DriverChangedPayload is the payload for a driver-changed event
type DriverChangedPayload struct {
	RaceID     string    `json:"raceId"`
	DriverID   string    `json:"driverId"`
	DriverName string    `json:"driverName"`
	Timestamp  time.Time `json:"timestamp"`
}

// DriverAddedPayload is the payload for a driver-added event
type DriverAddedPayload struct {
	RaceID     string `json:"raceId"`
	DriverID   string `json:"driverId"`
	DriverName string `json:"driverName"`
	Color      string `json:"color"`
}

// DriverRemovedPayload is the payload for a driver-removed event
type DriverRemovedPayload struct {
	RaceID   string `json:"raceId"`
	DriverID string `json:"driverId"`
}

// RaceSettingsUpdatedPayload is the payload for a race-settings-updated event
type RaceSettingsUpdatedPayload struct {
	RaceID   string              `json:"raceId"`
	Settings models.RaceSettings `json:"settings"`
}

// UserJoinedRacePayload is the payload for a user-joined-race event
type UserJoinedRacePayload struct {
	RaceID    string    `json:"raceId"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

// RaceStateRequestedPayload is relayed to a room when a late joiner asks
// for the current state.
type RaceStateRequestedPayload struct {
	RaceID      string    `json:"raceId"`
	RequesterID string    `json:"requesterId"`
	Timestamp   time.Time `json:"timestamp"`
}

// RaceStatePayload is the full-state snapshot exchanged over
// emit-race-state / race-state-updated. Whoever holds fresher state
// answers with this shape and the requester applies it wholesale.
type RaceStatePayload struct {
	RaceID             string     `json:"raceId"`
	RaceStarted        bool       `json:"raceStarted"`
	IsRunning          bool       `json:"isRunning"`
	StintRunning       bool       `json:"stintRunning"`
	CurrentDriverIndex int        `json:"currentDriverIndex"`
	CurrentLapStart    *time.Time `json:"currentLapStart,omitempty"`
	RaceStartTime      *time.Time `json:"raceStartTime,omitempty"`
	Timestamp          time.Time  `json:"timestamp"`
}
