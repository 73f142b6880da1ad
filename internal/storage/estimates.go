package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/meltforce/liftlog/internal/models"
)

// UpsertEstimate writes one exercise's cached estimate row.
func (db *DB) UpsertEstimate(ctx context.Context, e models.EstimateEntry) error {
	_, err := db.sql.ExecContext(ctx,
		`INSERT INTO exercise_estimates
		 (exercise_name, one_rm, trm, updated_at, sample_count, stale, last_performed, override_trm)
		 VALUES (?,?,?,?,?,?,?,?)
		 ON CONFLICT(exercise_name) DO UPDATE SET
		   one_rm = excluded.one_rm,
		   trm = excluded.trm,
		   updated_at = excluded.updated_at,
		   sample_count = excluded.sample_count,
		   stale = excluded.stale,
		   last_performed = excluded.last_performed,
		   override_trm = excluded.override_trm`,
		e.ExerciseName, e.OneRM, e.TRM, e.UpdatedAt.Format(timeLayout),
		e.SampleCount, e.Stale, e.LastPerformed, nullableFloat(e.Override))
	if err != nil {
		return fmt.Errorf("upserting estimate for %s: %w", e.ExerciseName, err)
	}
	return nil
}

// LoadEstimates returns every persisted estimate row.
func (db *DB) LoadEstimates(ctx context.Context) ([]models.EstimateEntry, error) {
	rows, err := db.sql.QueryContext(ctx,
		`SELECT exercise_name, one_rm, trm, updated_at, sample_count, stale, last_performed, override_trm
		 FROM exercise_estimates`)
	if err != nil {
		return nil, fmt.Errorf("querying estimates: %w", err)
	}
	defer rows.Close()

	var result []models.EstimateEntry
	for rows.Next() {
		var (
			e         models.EstimateEntry
			updatedAt string
			override  sql.NullFloat64
		)
		if err := rows.Scan(&e.ExerciseName, &e.OneRM, &e.TRM, &updatedAt,
			&e.SampleCount, &e.Stale, &e.LastPerformed, &override); err != nil {
			return nil, fmt.Errorf("scanning estimate: %w", err)
		}
		if e.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
			return nil, fmt.Errorf("parsing estimate updated_at %q: %w", updatedAt, err)
		}
		e.Override = floatPtr(override)
		result = append(result, e)
	}
	return result, rows.Err()
}

// DeleteEstimate removes one exercise's cached estimate row.
func (db *DB) DeleteEstimate(ctx context.Context, exerciseName string) error {
	if _, err := db.sql.ExecContext(ctx,
		`DELETE FROM exercise_estimates WHERE exercise_name = ?`, exerciseName); err != nil {
		return fmt.Errorf("deleting estimate for %s: %w", exerciseName, err)
	}
	return nil
}
