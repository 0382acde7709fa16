package models

import (
	"time"

	"github.com/google/uuid"
)

// RaceStatus defines the lifecycle state of a race.
type RaceStatus string

const (
	RaceStatusPending  RaceStatus = "pending"
	RaceStatusRunning  RaceStatus = "running"
	RaceStatusPaused   RaceStatus = "paused"
	RaceStatusFinished RaceStatus = "finished"
)

// RaceSettings holds JSONB configuration for a race.
type RaceSettings struct {
	MinStintTime int    `json:"min_stint_time"` // minutes
	MaxStintTime int    `json:"max_stint_time"` // minutes
	TargetLaps   int    `json:"target_laps"`
	City         string `json:"city"`
}

// DefaultRaceSettings returns the settings applied to a newly created race.
func DefaultRaceSettings() RaceSettings {
	return RaceSettings{
		MinStintTime: 10,
		MaxStintTime: 30,
		TargetLaps:   0,
		City:         "Paris",
	}
}

// Race represents one endurance race. TotalLaps and TotalTime are
// running aggregates owned by the stint recorder; CurrentStintStart is
// non-nil exactly while a stint is open.
type Race struct {
	ID                uuid.UUID    `json:"id"`
	Name              string       `json:"name"`
	TeamName          string       `json:"team_name"`
	StartTime         *time.Time   `json:"start_time,omitempty"`
	EndTime           *time.Time   `json:"end_time,omitempty"`
	Duration          int          `json:"duration"` // planned duration, minutes
	Status            RaceStatus   `json:"status"`
	Settings          RaceSettings `json:"settings"`
	TotalLaps         int          `json:"total_laps"`
	TotalTime         int64        `json:"total_time"` // milliseconds
	CurrentDriverID   *uuid.UUID   `json:"current_driver_id,omitempty"`
	CurrentStintStart *time.Time   `json:"current_stint_start,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// StintOpen reports whether a stint is currently being timed.
func (r *Race) StintOpen() bool {
	return r.CurrentStintStart != nil
}
