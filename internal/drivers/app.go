package drivers

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sigmateam/endurance/internal/models"
	"github.com/sigmateam/endurance/internal/stats"
)

const defaultDriverColor = "#1f2937"

// DriversRepository defines what the app layer needs from the repository.
type DriversRepository interface {
	CreateDriver(ctx context.Context, req CreateDriverRequest) (*models.Driver, error)
	GetDriver(ctx context.Context, id uuid.UUID) (*models.Driver, error)
	ListActiveDrivers(ctx context.Context) ([]models.Driver, error)
	UpdateDriver(ctx context.Context, d *models.Driver) (*models.Driver, error)
	UpdateDriverStats(ctx context.Context, id uuid.UUID, laps int, totalTime int64, bestLap *int64, averageLap int64) (*models.Driver, error)
	SoftDeleteDriver(ctx context.Context, id uuid.UUID) error
}

// LapSource is the slice of the laps repository the driver stats need.
type LapSource interface {
	ListLapsByDriver(ctx context.Context, driverID uuid.UUID, limit int) ([]models.Lap, error)
}

// App handles driver roster business logic.
type App struct {
	repo DriversRepository
	laps LapSource
}

// NewApp creates a new drivers App.
func NewApp(repo DriversRepository, laps LapSource) *App {
	return &App{repo: repo, laps: laps}
}

// CreateDriver adds a driver to the roster.
func (a *App) CreateDriver(ctx context.Context, req CreateDriverRequest) (*models.Driver, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if req.Color == "" {
		req.Color = defaultDriverColor
	}

	driver, err := a.repo.CreateDriver(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create driver: %w", err)
	}

	log.Info().
		Str("driver_id", driver.ID.String()).
		Str("name", driver.Name).
		Msg("driver created")
	return driver, nil
}

// GetDriver retrieves a driver by ID.
func (a *App) GetDriver(ctx context.Context, id uuid.UUID) (*models.Driver, error) {
	return a.repo.GetDriver(ctx, id)
}

// ListDrivers returns the active roster sorted by name.
func (a *App) ListDrivers(ctx context.Context) ([]models.Driver, error) {
	return a.repo.ListActiveDrivers(ctx)
}

// UpdateDriver merges the non-nil request fields into the driver.
func (a *App) UpdateDriver(ctx context.Context, id uuid.UUID, req UpdateDriverRequest) (*models.Driver, error) {
	driver, err := a.repo.GetDriver(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", ErrValidation)
		}
		driver.Name = name
	}
	if req.Color != nil {
		driver.Color = *req.Color
	}
	if req.ProfileImage != nil {
		driver.ProfileImage = req.ProfileImage
	}
	return a.repo.UpdateDriver(ctx, driver)
}

// RemoveDriver soft-deletes a driver. Laps keep their denormalized
// driver name, so history is unaffected.
func (a *App) RemoveDriver(ctx context.Context, id uuid.UUID) error {
	if err := a.repo.SoftDeleteDriver(ctx, id); err != nil {
		return err
	}
	log.Info().Str("driver_id", id.String()).Msg("driver removed from roster")
	return nil
}

// ResetStats zeroes a driver's cumulative aggregates.
func (a *App) ResetStats(ctx context.Context, id uuid.UUID) (*models.Driver, error) {
	driver, err := a.repo.UpdateDriverStats(ctx, id, 0, 0, nil, 0)
	if err != nil {
		return nil, err
	}
	log.Info().Str("driver_id", id.String()).Msg("driver stats reset")
	return driver, nil
}

// DriverStats rederives a driver's statistics from full lap history
// rather than trusting the cached aggregates.
func (a *App) DriverStats(ctx context.Context, id uuid.UUID) (*DriverStats, error) {
	driver, err := a.repo.GetDriver(ctx, id)
	if err != nil {
		return nil, err
	}
	laps, err := a.laps.ListLapsByDriver(ctx, id, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load laps for driver: %w", err)
	}

	races := make(map[uuid.UUID]struct{})
	for _, lap := range laps {
		races[lap.RaceID] = struct{}{}
	}

	summary := stats.Summarize(laps)
	result := &DriverStats{
		Driver:         *driver,
		TotalLaps:      summary.TotalLaps,
		TotalRaces:     len(races),
		AverageLapTime: summary.AverageLapTime,
		RecentLaps:     laps,
	}
	if summary.TotalLaps > 0 {
		best := summary.BestLap
		result.BestLap = &best
	}
	if len(result.RecentLaps) > 10 {
		result.RecentLaps = result.RecentLaps[:10]
	}
	return result, nil
}

// Leaderboard ranks active drivers by ascending total time, tie-broken
// by descending laps.
func (a *App) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	drivers, err := a.repo.ListActiveDrivers(ctx)
	if err != nil {
		return nil, err
	}
	ranked := stats.Leaderboard(drivers)
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	entries := make([]LeaderboardEntry, len(ranked))
	for i, d := range ranked {
		entries[i] = LeaderboardEntry{
			Rank: i + 1,
			Driver: LeaderboardDriver{
				ID:    d.ID.String(),
				Name:  d.Name,
				Color: d.Color,
			},
			Stats: stats.DriverKeyStats{
				TotalTime:  d.TotalTime,
				Laps:       d.Laps,
				BestLap:    d.BestLap,
				AverageLap: d.AverageLap,
			},
		}
	}
	return entries, nil
}

// CalculatedStats rebuilds every active driver's aggregates from lap
// history and returns them in leaderboard order. This is the
// read-your-own-repair view: it never consults the cached aggregates.
func (a *App) CalculatedStats(ctx context.Context) ([]models.Driver, error) {
	drivers, err := a.repo.ListActiveDrivers(ctx)
	if err != nil {
		return nil, err
	}

	calculated := make([]models.Driver, 0, len(drivers))
	for _, driver := range drivers {
		laps, err := a.laps.ListLapsByDriver(ctx, driver.ID, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to load laps for driver %s: %w", driver.ID, err)
		}
		summary := stats.Summarize(laps)
		driver.Laps = summary.TotalLaps
		driver.AverageLap = summary.AverageLapTime
		driver.TotalTime = 0
		driver.BestLap = nil
		for _, lap := range laps {
			driver.TotalTime += lap.LapTime
		}
		if summary.TotalLaps > 0 {
			best := summary.BestLap
			driver.BestLap = &best
		}
		calculated = append(calculated, driver)
	}
	return stats.Leaderboard(calculated), nil
}
