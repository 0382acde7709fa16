package races

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sigmateam/endurance/internal/models"
)

// Queryer defines what the repository needs from the database layer.
// Both *pgxpool.Pool and pgx.Tx satisfy it.
type Queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository implements race data access operations.
type Repository struct {
	db Queryer
}

// NewRepository creates a new races repository.
func NewRepository(db Queryer) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *Repository) WithTx(tx pgx.Tx) *Repository {
	return &Repository{db: tx}
}

const raceColumns = `id, name, team_name, start_time, end_time, duration, status, settings,
	total_laps, total_time, current_driver_id, current_stint_start, created_at, updated_at`

// CreateRace inserts a new pending race.
func (r *Repository) CreateRace(ctx context.Context, race *models.Race) (*models.Race, error) {
	settingsJSON, err := json.Marshal(race.Settings)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal race settings: %w", err)
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO races (id, name, team_name, duration, status, settings)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+raceColumns,
		uuid.New(), race.Name, race.TeamName, race.Duration, models.RaceStatusPending, settingsJSON,
	)
	created, err := scanRace(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create race: %w", err)
	}
	return created, nil
}

// GetRace retrieves a race by ID.
func (r *Repository) GetRace(ctx context.Context, id uuid.UUID) (*models.Race, error) {
	return r.getRace(ctx, id, "")
}

// GetRaceForUpdate retrieves a race and takes the row lock. Called
// inside the recorder's transaction, this is the per-race mutation lock
// that serializes concurrent stint completions.
func (r *Repository) GetRaceForUpdate(ctx context.Context, id uuid.UUID) (*models.Race, error) {
	return r.getRace(ctx, id, " FOR UPDATE")
}

func (r *Repository) getRace(ctx context.Context, id uuid.UUID, suffix string) (*models.Race, error) {
	row := r.db.QueryRow(ctx, `SELECT `+raceColumns+` FROM races WHERE id = $1`+suffix, id)
	race, err := scanRace(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRaceNotFound
		}
		return nil, fmt.Errorf("failed to get race: %w", err)
	}
	return race, nil
}

// ListRaces returns all races, newest first.
func (r *Repository) ListRaces(ctx context.Context) ([]models.Race, error) {
	rows, err := r.db.Query(ctx, `SELECT `+raceColumns+` FROM races ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list races: %w", err)
	}
	defer rows.Close()

	var races []models.Race
	for rows.Next() {
		race, err := scanRace(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan race: %w", err)
		}
		races = append(races, *race)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read races: %w", err)
	}
	return races, nil
}

// UpdateRace persists every mutable field of the race.
func (r *Repository) UpdateRace(ctx context.Context, race *models.Race) (*models.Race, error) {
	settingsJSON, err := json.Marshal(race.Settings)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal race settings: %w", err)
	}

	row := r.db.QueryRow(ctx, `
		UPDATE races
		SET name = $2, team_name = $3, start_time = $4, end_time = $5, duration = $6,
			status = $7, settings = $8, total_laps = $9, total_time = $10,
			current_driver_id = $11, current_stint_start = $12, updated_at = now()
		WHERE id = $1
		RETURNING `+raceColumns,
		race.ID, race.Name, race.TeamName, race.StartTime, race.EndTime, race.Duration,
		race.Status, settingsJSON, race.TotalLaps, race.TotalTime,
		race.CurrentDriverID, race.CurrentStintStart,
	)
	updated, err := scanRace(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRaceNotFound
		}
		return nil, fmt.Errorf("failed to update race: %w", err)
	}
	return updated, nil
}

// DeleteRace removes the race row. Lap cascade is the app's concern and
// happens in the same transaction.
func (r *Repository) DeleteRace(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM races WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete race: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRaceNotFound
	}
	return nil
}

func scanRace(row pgx.Row) (*models.Race, error) {
	var (
		race         models.Race
		settingsJSON []byte
		status       string
	)
	err := row.Scan(
		&race.ID, &race.Name, &race.TeamName, &race.StartTime, &race.EndTime,
		&race.Duration, &status, &settingsJSON,
		&race.TotalLaps, &race.TotalTime,
		&race.CurrentDriverID, &race.CurrentStintStart,
		&race.CreatedAt, &race.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	race.Status = models.RaceStatus(status)
	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &race.Settings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal race settings: %w", err)
		}
	}
	return &race, nil
}
