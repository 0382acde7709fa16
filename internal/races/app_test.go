package races

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sigmateam/endurance/internal/drivers"
	"github.com/sigmateam/endurance/internal/events"
	"github.com/sigmateam/endurance/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRaceRepo is an in-memory RacesRepository. It stores copies so
// callers mutating returned structs behave like they would against a
// real database.
type fakeRaceRepo struct {
	races map[uuid.UUID]models.Race
}

func newFakeRaceRepo() *fakeRaceRepo {
	return &fakeRaceRepo{races: make(map[uuid.UUID]models.Race)}
}

func (f *fakeRaceRepo) CreateRace(ctx context.Context, race *models.Race) (*models.Race, error) {
	stored := *race
	stored.ID = uuid.New()
	stored.Status = models.RaceStatusPending
	f.races[stored.ID] = stored
	out := stored
	return &out, nil
}

func (f *fakeRaceRepo) GetRace(ctx context.Context, id uuid.UUID) (*models.Race, error) {
	race, ok := f.races[id]
	if !ok {
		return nil, ErrRaceNotFound
	}
	out := race
	return &out, nil
}

func (f *fakeRaceRepo) ListRaces(ctx context.Context) ([]models.Race, error) {
	var out []models.Race
	for _, race := range f.races {
		out = append(out, race)
	}
	return out, nil
}

func (f *fakeRaceRepo) UpdateRace(ctx context.Context, race *models.Race) (*models.Race, error) {
	if _, ok := f.races[race.ID]; !ok {
		return nil, ErrRaceNotFound
	}
	f.races[race.ID] = *race
	out := *race
	return &out, nil
}

func (f *fakeRaceRepo) DeleteRace(ctx context.Context, id uuid.UUID) error {
	if _, ok := f.races[id]; !ok {
		return ErrRaceNotFound
	}
	delete(f.races, id)
	return nil
}

type fakeLapStore struct {
	laps map[uuid.UUID][]models.Lap
}

func (f *fakeLapStore) ListLapsByRace(ctx context.Context, raceID uuid.UUID, limit int) ([]models.Lap, error) {
	return f.laps[raceID], nil
}

func (f *fakeLapStore) DeleteLapsByRace(ctx context.Context, raceID uuid.UUID) error {
	delete(f.laps, raceID)
	return nil
}

type fakeDriverSource struct {
	drivers map[uuid.UUID]models.Driver
}

func (f *fakeDriverSource) GetDriver(ctx context.Context, id uuid.UUID) (*models.Driver, error) {
	driver, ok := f.drivers[id]
	if !ok {
		return nil, drivers.ErrDriverNotFound
	}
	out := driver
	return &out, nil
}

// capturePublisher records published events for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) Publish(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) kinds() []events.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	var kinds []events.Kind
	for _, e := range p.events {
		kinds = append(kinds, e.Type)
	}
	return kinds
}

type testEnv struct {
	app       *App
	repo      *fakeRaceRepo
	laps      *fakeLapStore
	drivers   *fakeDriverSource
	clock     *clockwork.FakeClock
	published *capturePublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := newFakeRaceRepo()
	lapStore := &fakeLapStore{laps: make(map[uuid.UUID][]models.Lap)}
	driverSource := &fakeDriverSource{drivers: make(map[uuid.UUID]models.Driver)}
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 14, 10, 0, 0, 0, time.UTC))
	published := &capturePublisher{}

	inTx := func(ctx context.Context, fn func(s Stores) error) error {
		return fn(Stores{Races: repo, Laps: lapStore})
	}

	return &testEnv{
		app:       NewApp(repo, lapStore, driverSource, inTx, clock, published),
		repo:      repo,
		laps:      lapStore,
		drivers:   driverSource,
		clock:     clock,
		published: published,
	}
}

func (e *testEnv) createRace(t *testing.T) *models.Race {
	t.Helper()
	race, err := e.app.CreateRace(context.Background(), CreateRaceRequest{})
	require.NoError(t, err)
	return race
}

func TestCreateRaceDefaults(t *testing.T) {
	env := newTestEnv(t)

	race := env.createRace(t)
	assert.Equal(t, defaultRaceName, race.Name)
	assert.Equal(t, defaultTeamName, race.TeamName)
	assert.Equal(t, defaultDuration, race.Duration)
	assert.Equal(t, models.RaceStatusPending, race.Status)
	assert.Equal(t, models.DefaultRaceSettings(), race.Settings)
	assert.Nil(t, race.StartTime)
}

func TestStartRace(t *testing.T) {
	env := newTestEnv(t)
	race := env.createRace(t)

	started, err := env.app.StartRace(context.Background(), race.ID)
	require.NoError(t, err)

	assert.Equal(t, models.RaceStatusRunning, started.Status)
	require.NotNil(t, started.StartTime)
	require.NotNil(t, started.CurrentStintStart)
	assert.Equal(t, env.clock.Now(), *started.StartTime)
	assert.Equal(t, []events.Kind{events.KindRaceStarted}, env.published.kinds())
}

func TestStartRaceIllegalStates(t *testing.T) {
	env := newTestEnv(t)
	race := env.createRace(t)

	_, err := env.app.StartRace(context.Background(), race.ID)
	require.NoError(t, err)

	_, err = env.app.StartRace(context.Background(), race.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestPauseThenResumeKeepsStartTime(t *testing.T) {
	env := newTestEnv(t)
	race := env.createRace(t)

	started, err := env.app.StartRace(context.Background(), race.ID)
	require.NoError(t, err)
	firstStart := *started.StartTime

	paused, err := env.app.PauseRace(context.Background(), race.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RaceStatusPaused, paused.Status)

	env.clock.Advance(5 * time.Minute)

	resumed, err := env.app.StartRace(context.Background(), race.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RaceStatusRunning, resumed.Status)
	assert.Equal(t, firstStart, *resumed.StartTime)
	// The stint clock restarts on resume.
	assert.Equal(t, env.clock.Now(), *resumed.CurrentStintStart)
}

func TestPauseOnlyWhenRunning(t *testing.T) {
	env := newTestEnv(t)
	race := env.createRace(t)

	_, err := env.app.PauseRace(context.Background(), race.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestFinishRejectsOpenStint(t *testing.T) {
	env := newTestEnv(t)
	race := env.createRace(t)

	_, err := env.app.StartRace(context.Background(), race.ID)
	require.NoError(t, err)

	_, err = env.app.FinishRace(context.Background(), race.ID)
	assert.ErrorIs(t, err, ErrOpenStint)

	// Close the stint the way the recorder would, then finish.
	stored, err := env.repo.GetRace(context.Background(), race.ID)
	require.NoError(t, err)
	stored.CurrentStintStart = nil
	_, err = env.repo.UpdateRace(context.Background(), stored)
	require.NoError(t, err)

	finished, err := env.app.FinishRace(context.Background(), race.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RaceStatusFinished, finished.Status)
	require.NotNil(t, finished.EndTime)
	assert.Contains(t, env.published.kinds(), events.KindRaceFinished)
}

func TestFinishPendingFails(t *testing.T) {
	env := newTestEnv(t)
	race := env.createRace(t)

	_, err := env.app.FinishRace(context.Background(), race.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestChangeDriver(t *testing.T) {
	env := newTestEnv(t)
	race := env.createRace(t)

	driverID := uuid.New()
	env.drivers.drivers[driverID] = models.Driver{ID: driverID, Name: "Alice"}

	_, err := env.app.StartRace(context.Background(), race.ID)
	require.NoError(t, err)
	env.clock.Advance(20 * time.Minute)

	updated, err := env.app.ChangeDriver(context.Background(), race.ID, driverID)
	require.NoError(t, err)
	require.NotNil(t, updated.CurrentDriverID)
	assert.Equal(t, driverID, *updated.CurrentDriverID)
	assert.Equal(t, env.clock.Now(), *updated.CurrentStintStart)
	assert.Contains(t, env.published.kinds(), events.KindDriverChanged)
	assert.Contains(t, env.published.kinds(), events.KindStintStarted)
}

func TestChangeDriverUnknownDriver(t *testing.T) {
	env := newTestEnv(t)
	race := env.createRace(t)

	_, err := env.app.ChangeDriver(context.Background(), race.ID, uuid.New())
	assert.ErrorIs(t, err, drivers.ErrDriverNotFound)
}

func TestChangeDriverOnFinishedRace(t *testing.T) {
	env := newTestEnv(t)
	race := env.createRace(t)

	stored, err := env.repo.GetRace(context.Background(), race.ID)
	require.NoError(t, err)
	stored.Status = models.RaceStatusFinished
	_, err = env.repo.UpdateRace(context.Background(), stored)
	require.NoError(t, err)

	_, err = env.app.ChangeDriver(context.Background(), race.ID, uuid.New())
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateSettingsMerge(t *testing.T) {
	env := newTestEnv(t)
	race := env.createRace(t)

	maxStint := 45
	city := "Lyon"
	updated, err := env.app.UpdateSettings(context.Background(), race.ID, UpdateSettingsRequest{
		MaxStintTime: &maxStint,
		City:         &city,
	})
	require.NoError(t, err)
	assert.Equal(t, 45, updated.Settings.MaxStintTime)
	assert.Equal(t, "Lyon", updated.Settings.City)
	// Untouched fields keep their defaults.
	assert.Equal(t, models.DefaultRaceSettings().MinStintTime, updated.Settings.MinStintTime)
	assert.Contains(t, env.published.kinds(), events.KindRaceSettingsUpdated)
}

func TestResetRaceSpawnsFreshPending(t *testing.T) {
	env := newTestEnv(t)
	race := env.createRace(t)

	_, err := env.app.StartRace(context.Background(), race.ID)
	require.NoError(t, err)

	fresh, err := env.app.ResetRace(context.Background(), race.ID)
	require.NoError(t, err)
	assert.NotEqual(t, race.ID, fresh.ID)
	assert.Equal(t, models.RaceStatusPending, fresh.Status)
	assert.Equal(t, race.Name, fresh.Name)
	assert.Equal(t, race.Settings, fresh.Settings)

	// The old race still exists until deleted.
	_, err = env.repo.GetRace(context.Background(), race.ID)
	require.NoError(t, err)

	var reset *events.Event
	for i := range env.published.events {
		if env.published.events[i].Type == events.KindRaceReset {
			reset = &env.published.events[i]
		}
	}
	require.NotNil(t, reset)
	payload, ok := reset.Payload.(events.RaceResetPayload)
	require.True(t, ok)
	assert.Equal(t, fresh.ID.String(), payload.NewRaceID)
}

func TestDeleteRaceCascadesLaps(t *testing.T) {
	env := newTestEnv(t)
	race := env.createRace(t)
	env.laps.laps[race.ID] = []models.Lap{{ID: uuid.New(), RaceID: race.ID, LapTime: 60000}}

	require.NoError(t, env.app.DeleteRace(context.Background(), race.ID))

	_, err := env.repo.GetRace(context.Background(), race.ID)
	assert.ErrorIs(t, err, ErrRaceNotFound)
	assert.Empty(t, env.laps.laps[race.ID])
}

func TestUpdateFinishedRaceFails(t *testing.T) {
	env := newTestEnv(t)
	race := env.createRace(t)

	stored, err := env.repo.GetRace(context.Background(), race.ID)
	require.NoError(t, err)
	stored.Status = models.RaceStatusFinished
	_, err = env.repo.UpdateRace(context.Background(), stored)
	require.NoError(t, err)

	name := "renamed"
	_, err = env.app.UpdateRace(context.Background(), race.ID, UpdateRaceRequest{Name: &name})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}
