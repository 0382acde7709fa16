package laps

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sigmateam/endurance/internal/events"
	"github.com/sigmateam/endurance/internal/models"
)

// LapsRepository defines the lap persistence operations the app needs.
type LapsRepository interface {
	CreateLap(ctx context.Context, lap *models.Lap) (*models.Lap, error)
	GetLap(ctx context.Context, id uuid.UUID) (*models.Lap, error)
	ListLaps(ctx context.Context, filter ListFilter) ([]models.Lap, error)
	ListLapsByRace(ctx context.Context, raceID uuid.UUID, limit int) ([]models.Lap, error)
	ListLapsByDriver(ctx context.Context, driverID uuid.UUID, limit int) ([]models.Lap, error)
	UpdateLap(ctx context.Context, lap *models.Lap) (*models.Lap, error)
	UpdateLapSequence(ctx context.Context, id uuid.UUID, lapNumber int, totalTime int64) error
	DeleteLap(ctx context.Context, id uuid.UUID) error
	BestOverall(ctx context.Context, limit int) ([]models.Lap, error)
	BestLapsByRace(ctx context.Context, raceID uuid.UUID, limit int) ([]models.Lap, error)
}

// RaceStore is the slice of the races repository the recorder touches.
// GetRaceForUpdate takes the per-race row lock that serializes every
// stint mutation for one race.
type RaceStore interface {
	GetRace(ctx context.Context, id uuid.UUID) (*models.Race, error)
	GetRaceForUpdate(ctx context.Context, id uuid.UUID) (*models.Race, error)
	UpdateRace(ctx context.Context, race *models.Race) (*models.Race, error)
}

// DriverStore is the slice of the drivers repository the recorder touches.
type DriverStore interface {
	GetDriver(ctx context.Context, id uuid.UUID) (*models.Driver, error)
	UpdateDriverStats(ctx context.Context, id uuid.UUID, laps int, totalTime int64, bestLap *int64, averageLap int64) (*models.Driver, error)
}

// Stores bundles the transaction-bound repositories handed to a TxFunc
// callback.
type Stores struct {
	Laps    LapsRepository
	Races   RaceStore
	Drivers DriverStore
}

// TxFunc runs fn with repositories bound to a single transaction;
// returning an error rolls everything back.
type TxFunc func(ctx context.Context, fn func(s Stores) error) error

// App implements stint recording and the consistency rules that tie a
// lap's row to the race and driver aggregates it contributes to.
type App struct {
	repo   LapsRepository
	inTx   TxFunc
	clock  clockwork.Clock
	events events.Publisher
}

// NewApp creates a new laps App.
func NewApp(repo LapsRepository, inTx TxFunc, clock clockwork.Clock, publisher events.Publisher) *App {
	return &App{
		repo:   repo,
		inTx:   inTx,
		clock:  clock,
		events: publisher,
	}
}

// RecordStint closes the race's open stint: it writes the lap row,
// advances the race totals, folds the lap into the driver's aggregates,
// and clears the open-stint marker, all in one transaction. Concurrent
// recorders serialize on the race row; the loser of that race finds the
// stint already closed and gets ErrNoOpenStint.
func (a *App) RecordStint(ctx context.Context, req RecordStintRequest) (*models.Lap, error) {
	if req.RaceID == uuid.Nil || req.DriverID == uuid.Nil {
		return nil, fmt.Errorf("%w: raceId and driverId are required", ErrValidation)
	}

	var created *models.Lap
	err := a.inTx(ctx, func(s Stores) error {
		race, err := s.Races.GetRaceForUpdate(ctx, req.RaceID)
		if err != nil {
			return err
		}
		if race.Status != models.RaceStatusRunning {
			return ErrRaceNotRunning
		}
		if !race.StintOpen() {
			return ErrNoOpenStint
		}

		driver, err := s.Drivers.GetDriver(ctx, req.DriverID)
		if err != nil {
			return err
		}

		stintStart := *race.CurrentStintStart
		if req.StintStart != nil {
			stintStart = req.StintStart.UTC()
		}
		stintEnd := a.clock.Now().UTC()
		if req.StintEnd != nil {
			stintEnd = req.StintEnd.UTC()
		}
		lapTime := stintEnd.Sub(stintStart).Milliseconds()
		if lapTime <= 0 {
			return fmt.Errorf("%w: stint end %s is not after start %s", ErrInvalidDuration, stintEnd, stintStart)
		}

		created, err = s.Laps.CreateLap(ctx, &models.Lap{
			RaceID:         race.ID,
			DriverID:       driver.ID,
			DriverName:     driver.Name,
			LapNumber:      race.TotalLaps + 1,
			LapTime:        lapTime,
			TotalTime:      race.TotalTime + lapTime,
			StintStartTime: stintStart,
			StintEndTime:   stintEnd,
			Notes:          req.Notes,
		})
		if err != nil {
			return err
		}

		race.TotalLaps++
		race.TotalTime += lapTime
		race.CurrentStintStart = nil
		if _, err := s.Races.UpdateRace(ctx, race); err != nil {
			return err
		}

		return foldLapIntoDriver(ctx, s.Drivers, driver, lapTime)
	})
	if err != nil {
		return nil, err
	}

	events.Emit(ctx, a.events, events.New(req.RaceID, events.KindStintEnded, a.clock.Now().UTC(), events.StintEndedPayload{
		RaceID:     req.RaceID.String(),
		DriverName: created.DriverName,
		LapID:      created.ID.String(),
		LapTime:    created.LapTime,
		Timestamp:  created.StintEndTime,
	}))
	return created, nil
}

// CreateLap inserts a lap directly, bypassing the running-race and
// open-stint checks. Imports and manual corrections use it; every
// aggregate is still kept consistent.
func (a *App) CreateLap(ctx context.Context, req CreateLapRequest) (*models.Lap, error) {
	if req.RaceID == uuid.Nil || req.DriverID == uuid.Nil {
		return nil, fmt.Errorf("%w: race_id and driver_id are required", ErrValidation)
	}
	if req.LapTime <= 0 {
		return nil, fmt.Errorf("%w: lap_time must be positive", ErrInvalidDuration)
	}

	var created *models.Lap
	err := a.inTx(ctx, func(s Stores) error {
		race, err := s.Races.GetRaceForUpdate(ctx, req.RaceID)
		if err != nil {
			return err
		}
		driver, err := s.Drivers.GetDriver(ctx, req.DriverID)
		if err != nil {
			return err
		}

		stintEnd := a.clock.Now().UTC()
		if req.StintEndTime != nil {
			stintEnd = req.StintEndTime.UTC()
		}
		stintStart := stintEnd.Add(-time.Duration(req.LapTime) * time.Millisecond)
		if req.StintStartTime != nil {
			stintStart = req.StintStartTime.UTC()
		}

		created, err = s.Laps.CreateLap(ctx, &models.Lap{
			RaceID:         race.ID,
			DriverID:       driver.ID,
			DriverName:     driver.Name,
			LapNumber:      race.TotalLaps + 1,
			LapTime:        req.LapTime,
			TotalTime:      race.TotalTime + req.LapTime,
			StintStartTime: stintStart,
			StintEndTime:   stintEnd,
			Notes:          req.Notes,
		})
		if err != nil {
			return err
		}

		race.TotalLaps++
		race.TotalTime += req.LapTime
		if _, err := s.Races.UpdateRace(ctx, race); err != nil {
			return err
		}

		return foldLapIntoDriver(ctx, s.Drivers, driver, req.LapTime)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// AmendStint corrects a recorded lap's time or notes. A time change
// ripples forward: the cumulative totals of every later lap, the race
// totals, and the driver's aggregates are all rebuilt in the same
// transaction.
func (a *App) AmendStint(ctx context.Context, id uuid.UUID, req AmendStintRequest) (*models.Lap, error) {
	if req.LapTime != nil && *req.LapTime <= 0 {
		return nil, fmt.Errorf("%w: lap_time must be positive", ErrInvalidDuration)
	}

	var updated *models.Lap
	err := a.inTx(ctx, func(s Stores) error {
		lap, err := s.Laps.GetLap(ctx, id)
		if err != nil {
			return err
		}
		race, err := s.Races.GetRaceForUpdate(ctx, lap.RaceID)
		if err != nil {
			return err
		}

		timeChanged := req.LapTime != nil && *req.LapTime != lap.LapTime
		if req.LapTime != nil {
			lap.LapTime = *req.LapTime
		}
		if req.Notes != nil {
			lap.Notes = *req.Notes
		}

		if !timeChanged {
			updated, err = s.Laps.UpdateLap(ctx, lap)
			return err
		}

		updated, err = s.Laps.UpdateLap(ctx, lap)
		if err != nil {
			return err
		}
		raceTotal, err := rebuildRaceTotals(ctx, s.Laps, race.ID)
		if err != nil {
			return err
		}
		race.TotalTime = raceTotal
		if _, err := s.Races.UpdateRace(ctx, race); err != nil {
			return err
		}
		return recomputeDriver(ctx, s, lap.DriverID)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteStint removes a lap and re-closes the books: remaining laps are
// renumbered to stay gap-free, cumulative totals are rebuilt, and the
// race and driver aggregates shed the deleted lap's contribution.
func (a *App) DeleteStint(ctx context.Context, id uuid.UUID) error {
	return a.inTx(ctx, func(s Stores) error {
		lap, err := s.Laps.GetLap(ctx, id)
		if err != nil {
			return err
		}
		race, err := s.Races.GetRaceForUpdate(ctx, lap.RaceID)
		if err != nil {
			return err
		}
		if race.TotalLaps < 1 || race.TotalTime < lap.LapTime {
			return fmt.Errorf("%w: race %s aggregates do not cover lap %s", ErrInconsistentState, race.ID, lap.ID)
		}

		if err := s.Laps.DeleteLap(ctx, lap.ID); err != nil {
			return err
		}
		raceTotal, err := rebuildRaceTotals(ctx, s.Laps, race.ID)
		if err != nil {
			return err
		}
		race.TotalLaps--
		race.TotalTime = raceTotal
		if _, err := s.Races.UpdateRace(ctx, race); err != nil {
			return err
		}
		return recomputeDriver(ctx, s, lap.DriverID)
	})
}

// RecomputeDriverAggregates rebuilds one driver's totals from their lap
// history. Exposed for repair after out-of-band data changes.
func (a *App) RecomputeDriverAggregates(ctx context.Context, driverID uuid.UUID) (*models.Driver, error) {
	var driver *models.Driver
	err := a.inTx(ctx, func(s Stores) error {
		if err := recomputeDriver(ctx, s, driverID); err != nil {
			return err
		}
		var err error
		driver, err = s.Drivers.GetDriver(ctx, driverID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return driver, nil
}

// GetLap retrieves a single lap.
func (a *App) GetLap(ctx context.Context, id uuid.UUID) (*models.Lap, error) {
	return a.repo.GetLap(ctx, id)
}

// ListLaps returns laps narrowed by the filter.
func (a *App) ListLaps(ctx context.Context, filter ListFilter) ([]models.Lap, error) {
	return a.repo.ListLaps(ctx, filter)
}

// ListByRace returns a race's laps in running order.
func (a *App) ListByRace(ctx context.Context, raceID uuid.UUID) ([]models.Lap, error) {
	return a.repo.ListLapsByRace(ctx, raceID, 0)
}

// ListByDriver returns a driver's laps, newest first.
func (a *App) ListByDriver(ctx context.Context, driverID uuid.UUID, limit int) ([]models.Lap, error) {
	return a.repo.ListLapsByDriver(ctx, driverID, limit)
}

// BestOverall returns the fastest laps across all races.
func (a *App) BestOverall(ctx context.Context, limit int) ([]models.Lap, error) {
	if limit <= 0 {
		limit = 10
	}
	return a.repo.BestOverall(ctx, limit)
}

// BestByRace returns the fastest laps of one race.
func (a *App) BestByRace(ctx context.Context, raceID uuid.UUID, limit int) ([]models.Lap, error) {
	if limit <= 0 {
		limit = 10
	}
	return a.repo.BestLapsByRace(ctx, raceID, limit)
}

// foldLapIntoDriver adds one lap's time to a driver's running totals.
func foldLapIntoDriver(ctx context.Context, drivers DriverStore, driver *models.Driver, lapTime int64) error {
	driver.Laps++
	driver.TotalTime += lapTime
	if driver.BestLap == nil || lapTime < *driver.BestLap {
		driver.BestLap = &lapTime
	}
	driver.RecalculateAverage()
	_, err := drivers.UpdateDriverStats(ctx, driver.ID, driver.Laps, driver.TotalTime, driver.BestLap, driver.AverageLap)
	return err
}

// rebuildRaceTotals renumbers a race's laps into a gap-free sequence
// and rewrites each lap's cumulative total, returning the race total.
func rebuildRaceTotals(ctx context.Context, store LapsRepository, raceID uuid.UUID) (int64, error) {
	raceLaps, err := store.ListLapsByRace(ctx, raceID, 0)
	if err != nil {
		return 0, err
	}
	var cumulative int64
	for i := range raceLaps {
		cumulative += raceLaps[i].LapTime
		number := i + 1
		if raceLaps[i].LapNumber == number && raceLaps[i].TotalTime == cumulative {
			continue
		}
		if err := store.UpdateLapSequence(ctx, raceLaps[i].ID, number, cumulative); err != nil {
			return 0, err
		}
	}
	return cumulative, nil
}

// recomputeDriver rebuilds a driver's aggregates from their full lap
// history across every race.
func recomputeDriver(ctx context.Context, s Stores, driverID uuid.UUID) error {
	driverLaps, err := s.Laps.ListLapsByDriver(ctx, driverID, 0)
	if err != nil {
		return err
	}
	var (
		totalTime int64
		bestLap   *int64
	)
	for i := range driverLaps {
		totalTime += driverLaps[i].LapTime
		if bestLap == nil || driverLaps[i].LapTime < *bestLap {
			bestLap = &driverLaps[i].LapTime
		}
	}
	var average int64
	if len(driverLaps) > 0 {
		average = totalTime / int64(len(driverLaps))
	}
	_, err = s.Drivers.UpdateDriverStats(ctx, driverID, len(driverLaps), totalTime, bestLap, average)
	return err
}
