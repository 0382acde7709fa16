package models

import (
	"time"

	"github.com/google/uuid"
)

// Driver represents a roster entry. The stats fields are cumulative
// aggregates maintained by the stint recorder; BestLap is nil until the
// driver has completed at least one stint. Drivers are soft-deleted by
// flipping IsActive.
type Driver struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Color        string    `json:"color"`
	ProfileImage *string   `json:"profile_image,omitempty"`
	TotalTime    int64     `json:"total_time"` // milliseconds
	Laps         int       `json:"laps"`
	BestLap      *int64    `json:"best_lap,omitempty"`  // milliseconds
	AverageLap   int64     `json:"average_lap"`         // milliseconds
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RecalculateAverage rederives AverageLap from TotalTime and Laps.
func (d *Driver) RecalculateAverage() {
	if d.Laps > 0 {
		d.AverageLap = d.TotalTime / int64(d.Laps)
	} else {
		d.AverageLap = 0
	}
}
