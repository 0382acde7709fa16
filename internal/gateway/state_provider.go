package gateway

import (
	"context"

	"github.com/google/uuid"
	"github.com/sigmateam/endurance/internal/models"
	"github.com/sigmateam/endurance/internal/stats"
)

// StateProvider supplies the authoritative race snapshot a client uses
// to bootstrap or reconcile after missed events.
type StateProvider interface {
	GetRaceState(ctx context.Context, raceID uuid.UUID) (*RaceStateResponse, error)
}

// RaceStateResponse is the bootstrap snapshot served over HTTP.
type RaceStateResponse struct {
	Race    *models.Race      `json:"race"`
	Laps    []models.Lap      `json:"laps"`
	Summary stats.RaceSummary `json:"summary"`
}

// RaceSource is the slice of the races app the provider reads.
type RaceSource interface {
	GetRace(ctx context.Context, id uuid.UUID) (*models.Race, error)
}

// LapSource is the slice of the laps app the provider reads.
type LapSource interface {
	ListByRace(ctx context.Context, raceID uuid.UUID) ([]models.Lap, error)
}

// RaceStateProvider implements StateProvider on the entity apps.
type RaceStateProvider struct {
	races RaceSource
	laps  LapSource
}

// NewRaceStateProvider creates a new race state provider.
func NewRaceStateProvider(races RaceSource, laps LapSource) *RaceStateProvider {
	return &RaceStateProvider{races: races, laps: laps}
}

// GetRaceState assembles the complete state of one race.
func (p *RaceStateProvider) GetRaceState(ctx context.Context, raceID uuid.UUID) (*RaceStateResponse, error) {
	race, err := p.races.GetRace(ctx, raceID)
	if err != nil {
		return nil, err
	}
	raceLaps, err := p.laps.ListByRace(ctx, raceID)
	if err != nil {
		return nil, err
	}
	return &RaceStateResponse{
		Race:    race,
		Laps:    raceLaps,
		Summary: stats.Summarize(raceLaps),
	}, nil
}
