package drivers

import (
	"context"
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

// Repository implements driver data access operations.
type Repository struct {
	db Queryer
}

// NewRepository creates a new drivers repository.
func NewRepository(db Queryer) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *Repository) WithTx(tx pgx.Tx) *Repository {
	return &Repository{db: tx}
}

const driverColumns = `id, name, color, profile_image, total_time, laps, best_lap, average_lap, is_active, created_at, updated_at`

// CreateDriver inserts a new roster entry.
func (r *Repository) CreateDriver(ctx context.Context, req CreateDriverRequest) (*models.Driver, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO drivers (id, name, color, profile_image)
		VALUES ($1, $2, $3, $4)
		RETURNING `+driverColumns,
		uuid.New(), req.Name, req.Color, req.ProfileImage,
	)
	driver, err := scanDriver(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create driver: %w", err)
	}
	return driver, nil
}

// GetDriver retrieves a driver by ID.
func (r *Repository) GetDriver(ctx context.Context, id uuid.UUID) (*models.Driver, error) {
	row := r.db.QueryRow(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = $1`, id)
	driver, err := scanDriver(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDriverNotFound
		}
		return nil, fmt.Errorf("failed to get driver: %w", err)
	}
	return driver, nil
}

// ListActiveDrivers returns all non-deleted drivers sorted by name.
func (r *Repository) ListActiveDrivers(ctx context.Context) ([]models.Driver, error) {
	rows, err := r.db.Query(ctx, `SELECT `+driverColumns+` FROM drivers WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list drivers: %w", err)
	}
	defer rows.Close()
	return collectDrivers(rows)
}

// UpdateDriver persists the mutable identity fields of a driver.
func (r *Repository) UpdateDriver(ctx context.Context, d *models.Driver) (*models.Driver, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE drivers
		SET name = $2, color = $3, profile_image = $4, updated_at = now()
		WHERE id = $1
		RETURNING `+driverColumns,
		d.ID, d.Name, d.Color, d.ProfileImage,
	)
	driver, err := scanDriver(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDriverNotFound
		}
		return nil, fmt.Errorf("failed to update driver: %w", err)
	}
	return driver, nil
}

// UpdateDriverStats overwrites the cumulative aggregates of a driver.
// Only the stint recorder calls this, inside its transaction.
func (r *Repository) UpdateDriverStats(ctx context.Context, id uuid.UUID, laps int, totalTime int64, bestLap *int64, averageLap int64) (*models.Driver, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE drivers
		SET laps = $2, total_time = $3, best_lap = $4, average_lap = $5, updated_at = now()
		WHERE id = $1
		RETURNING `+driverColumns,
		id, laps, totalTime, bestLap, averageLap,
	)
	driver, err := scanDriver(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDriverNotFound
		}
		return nil, fmt.Errorf("failed to update driver stats: %w", err)
	}
	return driver, nil
}

// SoftDeleteDriver flips is_active off; the row is never removed so
// historical laps keep a valid reference.
func (r *Repository) SoftDeleteDriver(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `UPDATE drivers SET is_active = false, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to soft-delete driver: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDriverNotFound
	}
	return nil
}

func scanDriver(row pgx.Row) (*models.Driver, error) {
	var d models.Driver
	err := row.Scan(
		&d.ID, &d.Name, &d.Color, &d.ProfileImage,
		&d.TotalTime, &d.Laps, &d.BestLap, &d.AverageLap,
		&d.IsActive, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func collectDrivers(rows pgx.Rows) ([]models.Driver, error) {
	var drivers []models.Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan driver: %w", err)
		}
		drivers = append(drivers, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read drivers: %w", err)
	}
	return drivers, nil
}
