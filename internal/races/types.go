package races

import (
	"github.com/google/uuid"
	"github.com/sigmateam/endurance/internal/models"
	"github.com/sigmateam/endurance/internal/stats"
)

// CreateRaceRequest carries the fields accepted on race creation; zero
// values fall back to the endurance defaults.
type CreateRaceRequest struct {
	Name     string               `json:"name"`
	TeamName string               `json:"team_name"`
	Duration int                  `json:"duration"`
	Settings *models.RaceSettings `json:"settings,omitempty"`
}

// UpdateRaceRequest carries a partial race update; nil fields are left
// untouched.
type UpdateRaceRequest struct {
	Name     *string `json:"name,omitempty"`
	TeamName *string `json:"team_name,omitempty"`
	Duration *int    `json:"duration,omitempty"`
}

// UpdateSettingsRequest merges individual settings fields; nil fields
// keep their current value.
type UpdateSettingsRequest struct {
	MinStintTime *int    `json:"min_stint_time,omitempty"`
	MaxStintTime *int    `json:"max_stint_time,omitempty"`
	TargetLaps   *int    `json:"target_laps,omitempty"`
	City         *string `json:"city,omitempty"`
}

// ChangeDriverRequest names the driver taking over the kart.
type ChangeDriverRequest struct {
	DriverID uuid.UUID `json:"driverId"`
}

// RaceStats is the response for GET /api/races/{id}/stats.
type RaceStats struct {
	Race           models.Race             `json:"race"`
	TotalLaps      int                     `json:"total_laps"`
	AverageLapTime int64                   `json:"average_lap_time"`
	BestLap        int64                   `json:"best_lap"`
	PerDriver      []stats.DriverAggregate `json:"per_driver"`
	Laps           []models.Lap            `json:"laps"`
}
