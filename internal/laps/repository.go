package laps

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

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

// Repository implements lap data access operations.
type Repository struct {
	db Queryer
}

// NewRepository creates a new laps repository.
func NewRepository(db Queryer) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *Repository) WithTx(tx pgx.Tx) *Repository {
	return &Repository{db: tx}
}

const lapColumns = `id, race_id, driver_id, driver_name, lap_number, lap_time, total_time,
	stint_start_time, stint_end_time, notes, created_at`

// sortClauses whitelists the caller-facing sort keys.
var sortClauses = map[string]string{
	"created_at":  "created_at ASC",
	"-created_at": "created_at DESC",
	"lap_number":  "lap_number ASC",
	"-lap_number": "lap_number DESC",
	"lap_time":    "lap_time ASC",
	"-lap_time":   "lap_time DESC",
}

// CreateLap inserts a lap record.
func (r *Repository) CreateLap(ctx context.Context, lap *models.Lap) (*models.Lap, error) {
	if lap.ID == uuid.Nil {
		lap.ID = uuid.New()
	}
	row := r.db.QueryRow(ctx, `
		INSERT INTO laps (id, race_id, driver_id, driver_name, lap_number, lap_time, total_time,
			stint_start_time, stint_end_time, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+lapColumns,
		lap.ID, lap.RaceID, lap.DriverID, lap.DriverName, lap.LapNumber, lap.LapTime,
		lap.TotalTime, lap.StintStartTime, lap.StintEndTime, lap.Notes,
	)
	created, err := scanLap(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create lap: %w", err)
	}
	return created, nil
}

// GetLap retrieves a lap by ID.
func (r *Repository) GetLap(ctx context.Context, id uuid.UUID) (*models.Lap, error) {
	row := r.db.QueryRow(ctx, `SELECT `+lapColumns+` FROM laps WHERE id = $1`, id)
	lap, err := scanLap(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLapNotFound
		}
		return nil, fmt.Errorf("failed to get lap: %w", err)
	}
	return lap, nil
}

// ListLaps returns laps narrowed by the filter.
func (r *Repository) ListLaps(ctx context.Context, filter ListFilter) ([]models.Lap, error) {
	var (
		where []string
		args  []any
	)
	if filter.RaceID != nil {
		args = append(args, *filter.RaceID)
		where = append(where, "race_id = $"+strconv.Itoa(len(args)))
	}
	if filter.DriverID != nil {
		args = append(args, *filter.DriverID)
		where = append(where, "driver_id = $"+strconv.Itoa(len(args)))
	}

	query := `SELECT ` + lapColumns + ` FROM laps`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	order, ok := sortClauses[filter.Sort]
	if !ok {
		order = sortClauses["-created_at"]
	}
	query += " ORDER BY " + order
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list laps: %w", err)
	}
	defer rows.Close()
	return collectLaps(rows)
}

// ListLapsByRace returns a race's laps in lap-number order.
func (r *Repository) ListLapsByRace(ctx context.Context, raceID uuid.UUID, limit int) ([]models.Lap, error) {
	return r.ListLaps(ctx, ListFilter{RaceID: &raceID, Sort: "lap_number", Limit: limit})
}

// ListLapsByDriver returns a driver's laps, newest first.
func (r *Repository) ListLapsByDriver(ctx context.Context, driverID uuid.UUID, limit int) ([]models.Lap, error) {
	return r.ListLaps(ctx, ListFilter{DriverID: &driverID, Sort: "-created_at", Limit: limit})
}

// BestOverall returns the fastest laps across all races.
func (r *Repository) BestOverall(ctx context.Context, limit int) ([]models.Lap, error) {
	return r.ListLaps(ctx, ListFilter{Sort: "lap_time", Limit: limit})
}

// BestLapsByRace returns the fastest laps of one race.
func (r *Repository) BestLapsByRace(ctx context.Context, raceID uuid.UUID, limit int) ([]models.Lap, error) {
	return r.ListLaps(ctx, ListFilter{RaceID: &raceID, Sort: "lap_time", Limit: limit})
}

// UpdateLap persists the mutable fields of a lap.
func (r *Repository) UpdateLap(ctx context.Context, lap *models.Lap) (*models.Lap, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE laps
		SET lap_number = $2, lap_time = $3, total_time = $4, notes = $5
		WHERE id = $1
		RETURNING `+lapColumns,
		lap.ID, lap.LapNumber, lap.LapTime, lap.TotalTime, lap.Notes,
	)
	updated, err := scanLap(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLapNotFound
		}
		return nil, fmt.Errorf("failed to update lap: %w", err)
	}
	return updated, nil
}

// UpdateLapSequence rewrites a lap's position in its race's running
// order; used when an amend or delete shifts the laps after it.
func (r *Repository) UpdateLapSequence(ctx context.Context, id uuid.UUID, lapNumber int, totalTime int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE laps SET lap_number = $2, total_time = $3 WHERE id = $1`,
		id, lapNumber, totalTime,
	)
	if err != nil {
		return fmt.Errorf("failed to update lap sequence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLapNotFound
	}
	return nil
}

// DeleteLap removes a single lap.
func (r *Repository) DeleteLap(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM laps WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete lap: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLapNotFound
	}
	return nil
}

// DeleteLapsByRace removes every lap of a race (cascade on race delete).
func (r *Repository) DeleteLapsByRace(ctx context.Context, raceID uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM laps WHERE race_id = $1`, raceID); err != nil {
		return fmt.Errorf("failed to delete laps for race: %w", err)
	}
	return nil
}

func scanLap(row pgx.Row) (*models.Lap, error) {
	var lap models.Lap
	err := row.Scan(
		&lap.ID, &lap.RaceID, &lap.DriverID, &lap.DriverName,
		&lap.LapNumber, &lap.LapTime, &lap.TotalTime,
		&lap.StintStartTime, &lap.StintEndTime, &lap.Notes, &lap.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &lap, nil
}

func collectLaps(rows pgx.Rows) ([]models.Lap, error) {
	var laps []models.Lap
	for rows.Next() {
		lap, err := scanLap(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lap: %w", err)
		}
		laps = append(laps, *lap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read laps: %w", err)
	}
	return laps, nil
}
