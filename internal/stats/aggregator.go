// Package stats computes derived lap statistics. Everything here is a
// pure function over in-memory lap collections; persisted aggregates are
// maintained elsewhere and can always be rebuilt from these.
package stats

import (
	"sort"

	"github.com/google/uuid"
	"github.com/sigmateam/endurance/internal/models"
)

// DriverAggregate summarizes one driver's laps within a collection.
type DriverAggregate struct {
	DriverID   uuid.UUID `json:"driver_id"`
	DriverName string    `json:"driver_name"`
	LapsCount  int       `json:"laps_count"`
	TotalTime  int64     `json:"total_time"`
	BestLap    *int64    `json:"best_lap,omitempty"`
	AverageLap int64     `json:"average_lap"`
	LapTimes   []int64   `json:"lap_times"`
}

// DriverKeyStats is the aggregate slice shown on leaderboards.
type DriverKeyStats struct {
	TotalTime  int64  `json:"total_time"`
	Laps       int    `json:"laps"`
	BestLap    *int64 `json:"best_lap,omitempty"`
	AverageLap int64  `json:"average_lap"`
}

// RaceSummary summarizes an entire lap collection.
type RaceSummary struct {
	TotalLaps      int   `json:"total_laps"`
	AverageLapTime int64 `json:"average_lap_time"`
	BestLap        int64 `json:"best_lap"`
}

// AggregateByDriver groups laps by driver and derives per-driver
// aggregates. An empty input yields an empty map; a driver's BestLap is
// nil only when the driver has zero laps, which cannot happen for keys
// present in the result.
func AggregateByDriver(laps []models.Lap) map[uuid.UUID]DriverAggregate {
	byDriver := make(map[uuid.UUID]DriverAggregate)
	for _, lap := range laps {
		agg := byDriver[lap.DriverID]
		agg.DriverID = lap.DriverID
		agg.DriverName = lap.DriverName
		agg.LapsCount++
		agg.TotalTime += lap.LapTime
		agg.LapTimes = append(agg.LapTimes, lap.LapTime)
		if agg.BestLap == nil || lap.LapTime < *agg.BestLap {
			best := lap.LapTime
			agg.BestLap = &best
		}
		byDriver[lap.DriverID] = agg
	}
	for id, agg := range byDriver {
		agg.AverageLap = agg.TotalTime / int64(agg.LapsCount)
		byDriver[id] = agg
	}
	return byDriver
}

// Summarize derives race-level totals from a lap collection. "No laps
// yet" is a normal state, not an error: the zero summary is returned.
func Summarize(laps []models.Lap) RaceSummary {
	if len(laps) == 0 {
		return RaceSummary{}
	}
	var total int64
	best := laps[0].LapTime
	for _, lap := range laps {
		total += lap.LapTime
		if lap.LapTime < best {
			best = lap.LapTime
		}
	}
	return RaceSummary{
		TotalLaps:      len(laps),
		AverageLapTime: total / int64(len(laps)),
		BestLap:        best,
	}
}

// Leaderboard orders drivers by ascending total time, tie-broken by
// descending lap count: drivers who did more work in the same time rank
// higher. The input slice is not mutated.
func Leaderboard(drivers []models.Driver) []models.Driver {
	ranked := make([]models.Driver, len(drivers))
	copy(ranked, drivers)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].TotalTime != ranked[j].TotalTime {
			return ranked[i].TotalTime < ranked[j].TotalTime
		}
		return ranked[i].Laps > ranked[j].Laps
	})
	return ranked
}
