package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Integrity drift tolerance: a drop in live row count is flagged only when
// it exceeds max(minTolerance, previous/toleranceDivisor). The band is a
// tunable heuristic, not a correctness contract.
const (
	minTolerance     = 5
	toleranceDivisor = 10
)

// Checkpoint records the log's shape after a migration or bulk import.
type Checkpoint struct {
	RowCount int64     `json:"row_count"`
	LatestTS time.Time `json:"latest_timestamp"`
	SavedAt  time.Time `json:"saved_at"`
}

// IntegrityReport is the advisory result of comparing the live log against
// the last checkpoint. It never blocks operation.
type IntegrityReport struct {
	OK            bool   `json:"ok"`
	PreviousCount int64  `json:"previous_count"`
	CurrentCount  int64  `json:"current_count"`
	Tolerance     int64  `json:"tolerance"`
	Message       string `json:"message"`
}

// SaveCheckpoint persists a new integrity checkpoint.
func (db *DB) SaveCheckpoint(ctx context.Context, rowCount int64, latestTS time.Time) error {
	var latest any
	if !latestTS.IsZero() {
		latest = latestTS.Format(timeLayout)
	}
	_, err := db.sql.ExecContext(ctx,
		`INSERT INTO integrity_checkpoints (row_count, latest_ts, saved_at) VALUES (?,?,?)`,
		rowCount, latest, time.Now().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	return nil
}

// LatestCheckpoint returns the most recent checkpoint, or nil when none
// has been saved yet.
func (db *DB) LatestCheckpoint(ctx context.Context) (*Checkpoint, error) {
	var (
		cp      Checkpoint
		latest  sql.NullString
		savedAt string
	)
	err := db.sql.QueryRowContext(ctx,
		`SELECT row_count, latest_ts, saved_at FROM integrity_checkpoints
		 ORDER BY id DESC LIMIT 1`).Scan(&cp.RowCount, &latest, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest checkpoint: %w", err)
	}
	if latest.Valid {
		if cp.LatestTS, err = time.Parse(timeLayout, latest.String); err != nil {
			return nil, fmt.Errorf("parsing checkpoint latest_ts %q: %w", latest.String, err)
		}
	}
	if cp.SavedAt, err = time.Parse(timeLayout, savedAt); err != nil {
		return nil, fmt.Errorf("parsing checkpoint saved_at %q: %w", savedAt, err)
	}
	return &cp, nil
}

// VerifyIntegrity compares the current live row count against the last
// checkpoint. A drop beyond the tolerance band reports possible data loss.
func (db *DB) VerifyIntegrity(ctx context.Context) (IntegrityReport, error) {
	current, err := db.CountRecords(ctx)
	if err != nil {
		return IntegrityReport{}, err
	}

	cp, err := db.LatestCheckpoint(ctx)
	if err != nil {
		return IntegrityReport{}, err
	}
	if cp == nil {
		return IntegrityReport{
			OK:           true,
			CurrentCount: current,
			Message:      "no checkpoint recorded yet",
		}, nil
	}

	tolerance := cp.RowCount / toleranceDivisor
	if tolerance < minTolerance {
		tolerance = minTolerance
	}

	report := IntegrityReport{
		OK:            true,
		PreviousCount: cp.RowCount,
		CurrentCount:  current,
		Tolerance:     tolerance,
		Message:       "row count within tolerance",
	}
	if cp.RowCount-current > tolerance {
		report.OK = false
		report.Message = fmt.Sprintf("possible data loss: row count dropped from %d to %d (tolerance %d)",
			cp.RowCount, current, tolerance)
	}
	return report, nil
}
