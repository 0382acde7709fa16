package races

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/sigmateam/endurance/internal/events"
	"github.com/sigmateam/endurance/internal/models"
	"github.com/sigmateam/endurance/internal/stats"
)

const (
	defaultRaceName = "Endurance Karting Race"
	defaultTeamName = "Endurance - Sigma Team"
	defaultDuration = 60 // minutes
)

// RacesRepository defines what the app layer needs from the repository.
type RacesRepository interface {
	CreateRace(ctx context.Context, race *models.Race) (*models.Race, error)
	GetRace(ctx context.Context, id uuid.UUID) (*models.Race, error)
	ListRaces(ctx context.Context) ([]models.Race, error)
	UpdateRace(ctx context.Context, race *models.Race) (*models.Race, error)
	DeleteRace(ctx context.Context, id uuid.UUID) error
}

// LapStore is the slice of the laps repository the race app needs:
// stats input and the delete cascade.
type LapStore interface {
	ListLapsByRace(ctx context.Context, raceID uuid.UUID, limit int) ([]models.Lap, error)
	DeleteLapsByRace(ctx context.Context, raceID uuid.UUID) error
}

// DriverSource resolves driver identities for change-driver and event
// payloads.
type DriverSource interface {
	GetDriver(ctx context.Context, id uuid.UUID) (*models.Driver, error)
}

// Stores bundles the repositories bound to one transaction.
type Stores struct {
	Races RacesRepository
	Laps  LapStore
}

// TxFunc runs fn inside a single transaction with transaction-bound
// stores. Wired from sqlutil.Run in production, faked in tests.
type TxFunc func(ctx context.Context, fn func(s Stores) error) error

// App owns the race lifecycle state machine. All timestamps come from
// the injected clock so transitions stay deterministic under test.
type App struct {
	repo    RacesRepository
	laps    LapStore
	drivers DriverSource
	inTx    TxFunc
	clock   clockwork.Clock
	events  events.Publisher
}

// NewApp creates a new races App.
func NewApp(repo RacesRepository, laps LapStore, drivers DriverSource, inTx TxFunc, clock clockwork.Clock, publisher events.Publisher) *App {
	return &App{
		repo:    repo,
		laps:    laps,
		drivers: drivers,
		inTx:    inTx,
		clock:   clock,
		events:  publisher,
	}
}

// ListRaces returns all races, newest first.
func (a *App) ListRaces(ctx context.Context) ([]models.Race, error) {
	return a.repo.ListRaces(ctx)
}

// GetRace retrieves a race by ID.
func (a *App) GetRace(ctx context.Context, id uuid.UUID) (*models.Race, error) {
	return a.repo.GetRace(ctx, id)
}

// CreateRace creates a pending race, filling in endurance defaults for
// anything the request leaves blank.
func (a *App) CreateRace(ctx context.Context, req CreateRaceRequest) (*models.Race, error) {
	if req.Duration < 0 {
		return nil, fmt.Errorf("%w: duration cannot be negative", ErrValidation)
	}

	race := &models.Race{
		Name:     req.Name,
		TeamName: req.TeamName,
		Duration: req.Duration,
		Settings: models.DefaultRaceSettings(),
	}
	if race.Name == "" {
		race.Name = defaultRaceName
	}
	if race.TeamName == "" {
		race.TeamName = defaultTeamName
	}
	if race.Duration == 0 {
		race.Duration = defaultDuration
	}
	if req.Settings != nil {
		race.Settings = *req.Settings
	}

	created, err := a.repo.CreateRace(ctx, race)
	if err != nil {
		return nil, fmt.Errorf("failed to create race: %w", err)
	}

	log.Info().
		Str("race_id", created.ID.String()).
		Str("name", created.Name).
		Msg("race created")
	return created, nil
}

// UpdateRace merges the non-nil request fields. A finished race is
// immutable apart from deletion.
func (a *App) UpdateRace(ctx context.Context, id uuid.UUID, req UpdateRaceRequest) (*models.Race, error) {
	race, err := a.repo.GetRace(ctx, id)
	if err != nil {
		return nil, err
	}
	if race.Status == models.RaceStatusFinished {
		return nil, fmt.Errorf("%w: race is finished", ErrInvalidTransition)
	}
	if req.Name != nil {
		race.Name = *req.Name
	}
	if req.TeamName != nil {
		race.TeamName = *req.TeamName
	}
	if req.Duration != nil {
		if *req.Duration <= 0 {
			return nil, fmt.Errorf("%w: duration must be positive", ErrValidation)
		}
		race.Duration = *req.Duration
	}
	return a.repo.UpdateRace(ctx, race)
}

// DeleteRace removes a race and all its laps in one transaction.
func (a *App) DeleteRace(ctx context.Context, id uuid.UUID) error {
	err := a.inTx(ctx, func(s Stores) error {
		if err := s.Laps.DeleteLapsByRace(ctx, id); err != nil {
			return fmt.Errorf("failed to cascade lap deletion: %w", err)
		}
		return s.Races.DeleteRace(ctx, id)
	})
	if err != nil {
		return err
	}
	log.Info().Str("race_id", id.String()).Msg("race deleted")
	return nil
}

// StartRace transitions pending or paused to running. StartTime is set
// only on the first start; a stint clock begins immediately.
func (a *App) StartRace(ctx context.Context, id uuid.UUID) (*models.Race, error) {
	race, err := a.repo.GetRace(ctx, id)
	if err != nil {
		return nil, err
	}
	if race.Status != models.RaceStatusPending && race.Status != models.RaceStatusPaused {
		return nil, fmt.Errorf("%w: cannot start a %s race", ErrInvalidTransition, race.Status)
	}

	now := a.clock.Now()
	race.Status = models.RaceStatusRunning
	if race.StartTime == nil {
		race.StartTime = &now
	}
	race.CurrentStintStart = &now

	updated, err := a.repo.UpdateRace(ctx, race)
	if err != nil {
		return nil, err
	}

	events.Emit(ctx, a.events, events.New(updated.ID, events.KindRaceStarted, now, events.RaceStartedPayload{
		RaceID:            updated.ID.String(),
		StartTime:         *updated.StartTime,
		CurrentStintStart: now,
	}))
	a.emitStintStarted(ctx, updated, now)

	log.Info().Str("race_id", updated.ID.String()).Msg("race started")
	return updated, nil
}

// PauseRace transitions running to paused. An open stint keeps timing;
// a pause never implicitly ends it.
func (a *App) PauseRace(ctx context.Context, id uuid.UUID) (*models.Race, error) {
	race, err := a.repo.GetRace(ctx, id)
	if err != nil {
		return nil, err
	}
	if race.Status != models.RaceStatusRunning {
		return nil, fmt.Errorf("%w: cannot pause a %s race", ErrInvalidTransition, race.Status)
	}

	race.Status = models.RaceStatusPaused
	updated, err := a.repo.UpdateRace(ctx, race)
	if err != nil {
		return nil, err
	}
	log.Info().Str("race_id", updated.ID.String()).Msg("race paused")
	return updated, nil
}

// FinishRace transitions running or paused to finished. An open stint
// is a caller error: record it or change away from it first.
func (a *App) FinishRace(ctx context.Context, id uuid.UUID) (*models.Race, error) {
	race, err := a.repo.GetRace(ctx, id)
	if err != nil {
		return nil, err
	}
	if race.Status != models.RaceStatusRunning && race.Status != models.RaceStatusPaused {
		return nil, fmt.Errorf("%w: cannot finish a %s race", ErrInvalidTransition, race.Status)
	}
	if race.StintOpen() {
		return nil, ErrOpenStint
	}

	now := a.clock.Now()
	race.Status = models.RaceStatusFinished
	race.EndTime = &now

	updated, err := a.repo.UpdateRace(ctx, race)
	if err != nil {
		return nil, err
	}

	events.Emit(ctx, a.events, events.New(updated.ID, events.KindRaceFinished, now, events.RaceFinishedPayload{
		RaceID:  updated.ID.String(),
		EndTime: now,
	}))

	log.Info().Str("race_id", updated.ID.String()).Msg("race finished")
	return updated, nil
}

// ChangeDriver hands the kart to another driver and restarts the stint
// clock. It does not record a lap for the outgoing driver; callers end
// the stint explicitly beforehand if they want it kept.
func (a *App) ChangeDriver(ctx context.Context, id uuid.UUID, driverID uuid.UUID) (*models.Race, error) {
	race, err := a.repo.GetRace(ctx, id)
	if err != nil {
		return nil, err
	}
	if race.Status == models.RaceStatusFinished {
		return nil, fmt.Errorf("%w: race is finished", ErrInvalidTransition)
	}

	driver, err := a.drivers.GetDriver(ctx, driverID)
	if err != nil {
		return nil, err
	}

	now := a.clock.Now()
	race.CurrentDriverID = &driver.ID
	race.CurrentStintStart = &now

	updated, err := a.repo.UpdateRace(ctx, race)
	if err != nil {
		return nil, err
	}

	events.Emit(ctx, a.events, events.New(updated.ID, events.KindDriverChanged, now, events.DriverChangedPayload{
		RaceID:     updated.ID.String(),
		DriverID:   driver.ID.String(),
		DriverName: driver.Name,
		Timestamp:  now,
	}))
	a.emitStintStarted(ctx, updated, now)

	log.Info().
		Str("race_id", updated.ID.String()).
		Str("driver_id", driver.ID.String()).
		Msg("current driver changed")
	return updated, nil
}

// UpdateSettings merges the non-nil settings fields. Legal in any state.
func (a *App) UpdateSettings(ctx context.Context, id uuid.UUID, req UpdateSettingsRequest) (*models.Race, error) {
	race, err := a.repo.GetRace(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.MinStintTime != nil {
		race.Settings.MinStintTime = *req.MinStintTime
	}
	if req.MaxStintTime != nil {
		race.Settings.MaxStintTime = *req.MaxStintTime
	}
	if req.TargetLaps != nil {
		race.Settings.TargetLaps = *req.TargetLaps
	}
	if req.City != nil {
		race.Settings.City = *req.City
	}

	updated, err := a.repo.UpdateRace(ctx, race)
	if err != nil {
		return nil, err
	}

	events.Emit(ctx, a.events, events.New(updated.ID, events.KindRaceSettingsUpdated, a.clock.Now(), events.RaceSettingsUpdatedPayload{
		RaceID:   updated.ID.String(),
		Settings: updated.Settings,
	}))
	return updated, nil
}

// ResetRace abandons the given race and spawns a fresh pending race
// carrying over the name, team and settings. The old race keeps its
// history until it is deleted administratively.
func (a *App) ResetRace(ctx context.Context, id uuid.UUID) (*models.Race, error) {
	old, err := a.repo.GetRace(ctx, id)
	if err != nil {
		return nil, err
	}

	fresh, err := a.repo.CreateRace(ctx, &models.Race{
		Name:     old.Name,
		TeamName: old.TeamName,
		Duration: old.Duration,
		Settings: old.Settings,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create replacement race: %w", err)
	}

	events.Emit(ctx, a.events, events.New(old.ID, events.KindRaceReset, a.clock.Now(), events.RaceResetPayload{
		RaceID:    old.ID.String(),
		NewRaceID: fresh.ID.String(),
	}))

	log.Info().
		Str("race_id", old.ID.String()).
		Str("new_race_id", fresh.ID.String()).
		Msg("race reset")
	return fresh, nil
}

// RaceStats loads the race with its full lap history and derives the
// aggregate views.
func (a *App) RaceStats(ctx context.Context, id uuid.UUID) (*RaceStats, error) {
	race, err := a.repo.GetRace(ctx, id)
	if err != nil {
		return nil, err
	}
	laps, err := a.laps.ListLapsByRace(ctx, id, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load laps for race: %w", err)
	}

	summary := stats.Summarize(laps)
	byDriver := stats.AggregateByDriver(laps)
	perDriver := make([]stats.DriverAggregate, 0, len(byDriver))
	for _, agg := range byDriver {
		perDriver = append(perDriver, agg)
	}
	sort.Slice(perDriver, func(i, j int) bool {
		if perDriver[i].LapsCount != perDriver[j].LapsCount {
			return perDriver[i].LapsCount > perDriver[j].LapsCount
		}
		return perDriver[i].DriverName < perDriver[j].DriverName
	})

	return &RaceStats{
		Race:           *race,
		TotalLaps:      summary.TotalLaps,
		AverageLapTime: summary.AverageLapTime,
		BestLap:        summary.BestLap,
		PerDriver:      perDriver,
		Laps:           laps,
	}, nil
}

// emitStintStarted announces the stint clock restart when the race has
// a current driver to attribute it to.
func (a *App) emitStintStarted(ctx context.Context, race *models.Race, now time.Time) {
	if race.CurrentDriverID == nil {
		return
	}
	driver, err := a.drivers.GetDriver(ctx, *race.CurrentDriverID)
	if err != nil {
		log.Warn().
			Err(err).
			Str("race_id", race.ID.String()).
			Msg("cannot resolve current driver for stint-started event")
		return
	}
	events.Emit(ctx, a.events, events.New(race.ID, events.KindStintStarted, now, events.StintStartedPayload{
		RaceID:     race.ID.String(),
		DriverID:   driver.ID.String(),
		DriverName: driver.Name,
		Timestamp:  now,
	}))
}
