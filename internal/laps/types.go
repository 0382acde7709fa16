package laps

import (
	"time"

	"github.com/google/uuid"
)

// RecordStintRequest is the validated stint-completion entry point.
// StintStart defaults to the race's open stint clock; StintEnd defaults
// to "now" on the app's clock.
type RecordStintRequest struct {
	RaceID     uuid.UUID  `json:"raceId"`
	DriverID   uuid.UUID  `json:"driverId"`
	StintStart *time.Time `json:"stintStart,omitempty"`
	StintEnd   *time.Time `json:"stintEnd,omitempty"`
	Notes      string     `json:"notes"`
}

// CreateLapRequest is the trusted direct-insert path (data import,
// manual corrections). It bypasses the running-race check but still
// keeps every aggregate consistent.
type CreateLapRequest struct {
	RaceID         uuid.UUID  `json:"race_id"`
	DriverID       uuid.UUID  `json:"driver_id"`
	LapTime        int64      `json:"lap_time"`
	StintStartTime *time.Time `json:"stint_start_time,omitempty"`
	StintEndTime   *time.Time `json:"stint_end_time,omitempty"`
	Notes          string     `json:"notes"`
}

// AmendStintRequest corrects a recorded lap after the fact.
type AmendStintRequest struct {
	LapTime *int64  `json:"lap_time,omitempty"`
	Notes   *string `json:"notes,omitempty"`
}

// ListFilter narrows and orders lap listings.
type ListFilter struct {
	RaceID   *uuid.UUID
	DriverID *uuid.UUID
	Sort     string // one of the whitelisted sort keys, default "-created_at"
	Limit    int
}
