package drivers

import (
	"github.com/sigmateam/endurance/internal/models"
	"github.com/sigmateam/endurance/internal/stats"
)

// CreateDriverRequest carries the fields accepted on driver creation.
type CreateDriverRequest struct {
	Name         string  `json:"name"`
	Color        string  `json:"color"`
	ProfileImage *string `json:"profile_image,omitempty"`
}

// UpdateDriverRequest carries a partial driver update; nil fields are
// left untouched.
type UpdateDriverRequest struct {
	Name         *string `json:"name,omitempty"`
	Color        *string `json:"color,omitempty"`
	ProfileImage *string `json:"profile_image,omitempty"`
}

// DriverStats is the response for GET /api/drivers/{id}/stats: the
// stored roster entry plus aggregates rederived from lap history.
type DriverStats struct {
	Driver         models.Driver `json:"driver"`
	TotalLaps      int           `json:"total_laps"`
	TotalRaces     int           `json:"total_races"`
	AverageLapTime int64         `json:"average_lap_time"`
	BestLap        *int64        `json:"best_lap,omitempty"`
	RecentLaps     []models.Lap  `json:"recent_laps"`
}

// LeaderboardEntry is one ranked row of the overall leaderboard.
type LeaderboardEntry struct {
	Rank   int                  `json:"rank"`
	Driver LeaderboardDriver    `json:"driver"`
	Stats  stats.DriverKeyStats `json:"stats"`
}

// LeaderboardDriver is the identity slice of a leaderboard row.
type LeaderboardDriver struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}
