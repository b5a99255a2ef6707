package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"watchtower/pkg/models"
)

// PostgresRepository reads the camera routing model from PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository wraps an open database handle.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ListCamerasByDirection returns every enabled camera covering the given
// direction family, ordered by (name, id) for deterministic routing.
func (r *PostgresRepository) ListCamerasByDirection(ctx context.Context, direction string) ([]models.Camera, error) {
	query := `
		SELECT id, name, url, status, directions, enabled
		FROM cameras
		WHERE enabled = TRUE AND $1 = ANY(directions)
		ORDER BY name, id
	`
	rows, err := r.db.QueryContext(ctx, query, direction)
	if err != nil {
		return nil, classify(fmt.Errorf("list cameras by direction: %w", err))
	}
	defer rows.Close()

	cameras := make([]models.Camera, 0, 8)
	for rows.Next() {
		var cam models.Camera
		if err := rows.Scan(&cam.ID, &cam.Name, &cam.URL, &cam.Status, pq.Array(&cam.Directions), &cam.Enabled); err != nil {
			return nil, fmt.Errorf("scan camera row: %w", err)
		}
		cameras = append(cameras, cam)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("iterate camera rows: %w", err))
	}
	return cameras, nil
}

// ListEnabledAngleRanges returns every enabled angle range with its bound
// camera ids, ordered by (min_angle, id).
func (r *PostgresRepository) ListEnabledAngleRanges(ctx context.Context) ([]models.AngleRange, error) {
	query := `
		SELECT id, name, min_angle, max_angle, enabled, camera_ids
		FROM angle_ranges
		WHERE enabled = TRUE
		ORDER BY min_angle, id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, classify(fmt.Errorf("list angle ranges: %w", err))
	}
	defer rows.Close()

	ranges := make([]models.AngleRange, 0, 8)
	for rows.Next() {
		var ar models.AngleRange
		if err := rows.Scan(&ar.ID, &ar.Name, &ar.MinAngle, &ar.MaxAngle, &ar.Enabled, pq.Array(&ar.CameraIDs)); err != nil {
			return nil, fmt.Errorf("scan angle range row: %w", err)
		}
		ranges = append(ranges, ar)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("iterate angle range rows: %w", err))
	}
	return ranges, nil
}

// GetCameraByID fetches a single camera, returning ErrNotFound when absent.
func (r *PostgresRepository) GetCameraByID(ctx context.Context, id string) (*models.Camera, error) {
	query := `
		SELECT id, name, url, status, directions, enabled
		FROM cameras
		WHERE id = $1
	`
	var cam models.Camera
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&cam.ID, &cam.Name, &cam.URL, &cam.Status, pq.Array(&cam.Directions), &cam.Enabled,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classify(fmt.Errorf("get camera %s: %w", id, err))
	}
	return &cam, nil
}

// classify tags connectivity failures as transient so the resolver's retry
// policy can distinguish them from permanent faults.
func classify(err error) error {
	if IsTransient(err) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return err
}
