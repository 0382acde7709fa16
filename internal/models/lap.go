package models

import (
	"time"

	"github.com/google/uuid"
)

// Lap is the immutable record of one completed stint (one continuous
// driving turn, not a single circuit lap). DriverName is denormalized so
// renaming or removing a driver never corrupts historical race records.
// TotalTime is the race's cumulative total after this stint.
type Lap struct {
	ID             uuid.UUID `json:"id"`
	RaceID         uuid.UUID `json:"race_id"`
	DriverID       uuid.UUID `json:"driver_id"`
	DriverName     string    `json:"driver_name"`
	LapNumber      int       `json:"lap_number"`
	LapTime        int64     `json:"lap_time"`   // stint duration, milliseconds
	TotalTime      int64     `json:"total_time"` // race cumulative, milliseconds
	StintStartTime time.Time `json:"stint_start_time"`
	StintEndTime   time.Time `json:"stint_end_time"`
	Notes          string    `json:"notes"`
	CreatedAt      time.Time `json:"created_at"`
}
