package drivers

import (
	"context"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/sigmateam/endurance/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDriverRepo struct {
	drivers map[uuid.UUID]models.Driver
}

func newFakeDriverRepo() *fakeDriverRepo {
	return &fakeDriverRepo{drivers: make(map[uuid.UUID]models.Driver)}
}

func (f *fakeDriverRepo) CreateDriver(ctx context.Context, req CreateDriverRequest) (*models.Driver, error) {
	driver := models.Driver{
		ID:       uuid.New(),
		Name:     req.Name,
		Color:    req.Color,
		IsActive: true,
	}
	f.drivers[driver.ID] = driver
	out := driver
	return &out, nil
}

func (f *fakeDriverRepo) GetDriver(ctx context.Context, id uuid.UUID) (*models.Driver, error) {
	driver, ok := f.drivers[id]
	if !ok {
		return nil, ErrDriverNotFound
	}
	out := driver
	return &out, nil
}

func (f *fakeDriverRepo) ListActiveDrivers(ctx context.Context) ([]models.Driver, error) {
	var out []models.Driver
	for _, driver := range f.drivers {
		if driver.IsActive {
			out = append(out, driver)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeDriverRepo) UpdateDriver(ctx context.Context, d *models.Driver) (*models.Driver, error) {
	if _, ok := f.drivers[d.ID]; !ok {
		return nil, ErrDriverNotFound
	}
	f.drivers[d.ID] = *d
	out := *d
	return &out, nil
}

func (f *fakeDriverRepo) UpdateDriverStats(ctx context.Context, id uuid.UUID, laps int, totalTime int64, bestLap *int64, averageLap int64) (*models.Driver, error) {
	driver, ok := f.drivers[id]
	if !ok {
		return nil, ErrDriverNotFound
	}
	driver.Laps = laps
	driver.TotalTime = totalTime
	driver.BestLap = bestLap
	driver.AverageLap = averageLap
	f.drivers[id] = driver
	out := driver
	return &out, nil
}

func (f *fakeDriverRepo) SoftDeleteDriver(ctx context.Context, id uuid.UUID) error {
	driver, ok := f.drivers[id]
	if !ok {
		return ErrDriverNotFound
	}
	driver.IsActive = false
	f.drivers[id] = driver
	return nil
}

type fakeLapSource struct {
	laps map[uuid.UUID][]models.Lap
}

func (f *fakeLapSource) ListLapsByDriver(ctx context.Context, driverID uuid.UUID, limit int) ([]models.Lap, error) {
	out := f.laps[driverID]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func newTestApp() (*App, *fakeDriverRepo, *fakeLapSource) {
	repo := newFakeDriverRepo()
	laps := &fakeLapSource{laps: make(map[uuid.UUID][]models.Lap)}
	return NewApp(repo, laps), repo, laps
}

func TestCreateDriverValidation(t *testing.T) {
	app, _, _ := newTestApp()

	_, err := app.CreateDriver(context.Background(), CreateDriverRequest{Name: "   "})
	assert.ErrorIs(t, err, ErrValidation)

	driver, err := app.CreateDriver(context.Background(), CreateDriverRequest{Name: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, "Alice", driver.Name)
	assert.Equal(t, defaultDriverColor, driver.Color)
	assert.True(t, driver.IsActive)
}

func TestUpdateDriverMergesFields(t *testing.T) {
	app, _, _ := newTestApp()
	driver, err := app.CreateDriver(context.Background(), CreateDriverRequest{Name: "Alice", Color: "#ff0000"})
	require.NoError(t, err)

	name := "  Alicia "
	updated, err := app.UpdateDriver(context.Background(), driver.ID, UpdateDriverRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Alicia", updated.Name)
	assert.Equal(t, "#ff0000", updated.Color)

	empty := " "
	_, err = app.UpdateDriver(context.Background(), driver.ID, UpdateDriverRequest{Name: &empty})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRemoveDriverIsSoft(t *testing.T) {
	app, repo, _ := newTestApp()
	driver, err := app.CreateDriver(context.Background(), CreateDriverRequest{Name: "Alice"})
	require.NoError(t, err)

	require.NoError(t, app.RemoveDriver(context.Background(), driver.ID))

	// The row survives for historical laps; the roster hides it.
	stored, err := repo.GetDriver(context.Background(), driver.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	roster, err := app.ListDrivers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, roster)
}

func TestDriverStatsFromLapHistory(t *testing.T) {
	app, _, laps := newTestApp()
	driver, err := app.CreateDriver(context.Background(), CreateDriverRequest{Name: "Alice"})
	require.NoError(t, err)

	raceA, raceB := uuid.New(), uuid.New()
	laps.laps[driver.ID] = []models.Lap{
		{RaceID: raceA, DriverID: driver.ID, LapTime: 60000},
		{RaceID: raceA, DriverID: driver.ID, LapTime: 70000},
		{RaceID: raceB, DriverID: driver.ID, LapTime: 65000},
	}

	result, err := app.DriverStats(context.Background(), driver.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalLaps)
	assert.Equal(t, 2, result.TotalRaces)
	assert.Equal(t, int64(65000), result.AverageLapTime)
	require.NotNil(t, result.BestLap)
	assert.Equal(t, int64(60000), *result.BestLap)
}

func TestDriverStatsUnknownDriver(t *testing.T) {
	app, _, _ := newTestApp()
	_, err := app.DriverStats(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrDriverNotFound)
}

func TestResetStats(t *testing.T) {
	app, repo, _ := newTestApp()
	driver, err := app.CreateDriver(context.Background(), CreateDriverRequest{Name: "Alice"})
	require.NoError(t, err)

	best := int64(59000)
	_, err = repo.UpdateDriverStats(context.Background(), driver.ID, 12, 720000, &best, 60000)
	require.NoError(t, err)

	reset, err := app.ResetStats(context.Background(), driver.ID)
	require.NoError(t, err)
	assert.Zero(t, reset.Laps)
	assert.Zero(t, reset.TotalTime)
	assert.Nil(t, reset.BestLap)
}

func TestLeaderboardRanksAndLimits(t *testing.T) {
	app, repo, _ := newTestApp()
	for i, tc := range []struct {
		name  string
		total int64
		laps  int
	}{
		{"Slow", 300000, 4},
		{"Fast", 200000, 4},
		{"Busy", 300000, 6},
	} {
		driver, err := app.CreateDriver(context.Background(), CreateDriverRequest{Name: tc.name})
		require.NoError(t, err)
		_, err = repo.UpdateDriverStats(context.Background(), driver.ID, tc.laps, tc.total, nil, 0)
		require.NoError(t, err, "driver %d", i)
	}

	entries, err := app.Leaderboard(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, "Fast", entries[0].Driver.Name)
	assert.Equal(t, "Busy", entries[1].Driver.Name)
}

func TestCalculatedStatsIgnoresCachedAggregates(t *testing.T) {
	app, repo, laps := newTestApp()
	driver, err := app.CreateDriver(context.Background(), CreateDriverRequest{Name: "Alice"})
	require.NoError(t, err)

	// Cached aggregates are stale on purpose.
	stale := int64(1)
	_, err = repo.UpdateDriverStats(context.Background(), driver.ID, 99, 999999, &stale, 1)
	require.NoError(t, err)

	laps.laps[driver.ID] = []models.Lap{
		{DriverID: driver.ID, LapTime: 60000},
		{DriverID: driver.ID, LapTime: 62000},
	}

	calculated, err := app.CalculatedStats(context.Background())
	require.NoError(t, err)
	require.Len(t, calculated, 1)
	assert.Equal(t, 2, calculated[0].Laps)
	assert.Equal(t, int64(122000), calculated[0].TotalTime)
	require.NotNil(t, calculated[0].BestLap)
	assert.Equal(t, int64(60000), *calculated[0].BestLap)
}
