package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/meltforce/liftlog/internal/models"
)

// timeLayout is the canonical storage format for instants. SQLite stores
// them as text; RFC 3339 keeps them sortable and round-trippable.
const timeLayout = time.RFC3339Nano

const recordColumns = `id, version, tombstoned, stored_at, date, ts, program_id, week_number,
	 day_number, exercise_name, exercise_order, is_compound_parent, compound_parent_name,
	 set_number, reps, weight, weight_unit, work_time_sec, rest_time_sec, tempo,
	 rpe, rir, completed, notes`

// AppendRecord inserts a single performance record and returns its new id.
func (db *DB) AppendRecord(ctx context.Context, rec models.PerformanceRecord) (uuid.UUID, error) {
	ids, err := db.AppendRecords(ctx, []models.PerformanceRecord{rec})
	if err != nil {
		return uuid.Nil, err
	}
	return ids[0], nil
}

// AppendRecords inserts a batch of performance records in a single
// transaction. Either every row commits or none do.
func (db *DB) AppendRecords(ctx context.Context, recs []models.PerformanceRecord) ([]uuid.UUID, error) {
	if len(recs) == 0 {
		return nil, nil
	}

	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning append transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (`+recordColumns+`)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return nil, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	ids := make([]uuid.UUID, 0, len(recs))
	for _, rec := range recs {
		id := uuid.New()
		_, err := stmt.ExecContext(ctx,
			id.String(), 1, 0, now.Format(timeLayout),
			rec.Date, rec.Timestamp.Format(timeLayout), rec.ProgramID, rec.WeekNumber,
			rec.DayNumber, rec.ExerciseName, rec.ExerciseOrder, rec.IsCompoundParent,
			rec.CompoundParentName, rec.SetNumber, rec.Reps, rec.Weight, rec.WeightUnit,
			rec.WorkTimeSec, rec.RestTimeSec, rec.Tempo,
			nullableFloat(rec.RPE), nullableFloat(rec.RIR), rec.Completed, rec.Notes)
		if err != nil {
			return nil, fmt.Errorf("inserting record for %s: %w", rec.ExerciseName, err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing append transaction: %w", err)
	}
	return ids, nil
}

// QueryRecords returns all non-tombstoned records ordered by timestamp.
func (db *DB) QueryRecords(ctx context.Context) ([]models.StoredRecord, error) {
	return db.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM records WHERE tombstoned = 0 ORDER BY ts ASC`)
}

// QueryExerciseRecords returns all non-tombstoned records for one exercise,
// ordered by timestamp.
func (db *DB) QueryExerciseRecords(ctx context.Context, exerciseName string) ([]models.StoredRecord, error) {
	return db.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM records
		 WHERE tombstoned = 0 AND exercise_name = ? ORDER BY ts ASC`, exerciseName)
}

func (db *DB) queryRecords(ctx context.Context, query string, args ...any) ([]models.StoredRecord, error) {
	rows, err := db.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var result []models.StoredRecord
	for rows.Next() {
		rec, err := scanStoredRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// SoftDeleteSession tombstones every live record of one session
// (calendar date + program id). Returns the number of rows tombstoned.
func (db *DB) SoftDeleteSession(ctx context.Context, date, programID string) (int64, error) {
	res, err := db.sql.ExecContext(ctx,
		`UPDATE records SET tombstoned = 1, version = version + 1
		 WHERE tombstoned = 0 AND date = ? AND program_id = ?`,
		date, programID)
	if err != nil {
		return 0, fmt.Errorf("soft-deleting session %s/%s: %w", date, programID, err)
	}
	return res.RowsAffected()
}

// SoftDeleteExercise tombstones one exercise's live rows within a session,
// including sub-exercise rows that name it as their compound parent.
func (db *DB) SoftDeleteExercise(ctx context.Context, date, programID, exerciseName string) (int64, error) {
	res, err := db.sql.ExecContext(ctx,
		`UPDATE records SET tombstoned = 1, version = version + 1
		 WHERE tombstoned = 0 AND date = ? AND program_id = ?
		   AND (exercise_name = ? OR compound_parent_name = ?)`,
		date, programID, exerciseName, exerciseName)
	if err != nil {
		return 0, fmt.Errorf("soft-deleting exercise %s in %s/%s: %w", exerciseName, date, programID, err)
	}
	return res.RowsAffected()
}

// RewriteSessionDate moves a session to a new calendar date, updating each
// row's date and timestamp while preserving the original time-of-day.
// This is the one sanctioned in-place mutation of record content.
func (db *DB) RewriteSessionDate(ctx context.Context, date, programID, newDate string) (int64, error) {
	day, err := time.ParseInLocation(models.DateLayout, newDate, time.Local)
	if err != nil {
		return 0, fmt.Errorf("parsing new date %q: %w", newDate, err)
	}

	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning rewrite transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, ts FROM records WHERE tombstoned = 0 AND date = ? AND program_id = ?`,
		date, programID)
	if err != nil {
		return 0, fmt.Errorf("querying session rows: %w", err)
	}

	type shift struct {
		id    string
		newTS time.Time
	}
	var shifts []shift
	for rows.Next() {
		var id, tsStr string
		if err := rows.Scan(&id, &tsStr); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning session row: %w", err)
		}
		ts, err := time.Parse(timeLayout, tsStr)
		if err != nil {
			rows.Close()
			return 0, fmt.Errorf("parsing stored timestamp %q: %w", tsStr, err)
		}
		shifted := time.Date(day.Year(), day.Month(), day.Day(),
			ts.Hour(), ts.Minute(), ts.Second(), ts.Nanosecond(), ts.Location())
		shifts = append(shifts, shift{id: id, newTS: shifted})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	for _, s := range shifts {
		if _, err := tx.ExecContext(ctx,
			`UPDATE records SET date = ?, ts = ?, version = version + 1 WHERE id = ?`,
			newDate, s.newTS.Format(timeLayout), s.id); err != nil {
			return 0, fmt.Errorf("rewriting record %s: %w", s.id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing rewrite transaction: %w", err)
	}
	return int64(len(shifts)), nil
}

// CompactRecords physically purges tombstoned rows. Returns the purge count.
func (db *DB) CompactRecords(ctx context.Context) (int64, error) {
	res, err := db.sql.ExecContext(ctx, `DELETE FROM records WHERE tombstoned = 1`)
	if err != nil {
		return 0, fmt.Errorf("compacting records: %w", err)
	}
	return res.RowsAffected()
}

// ClearRecords removes every record, tombstoned or not.
func (db *DB) ClearRecords(ctx context.Context) error {
	if _, err := db.sql.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return fmt.Errorf("clearing records: %w", err)
	}
	return nil
}

// CountRecords returns the number of live (non-tombstoned) records.
func (db *DB) CountRecords(ctx context.Context) (int64, error) {
	var n int64
	err := db.sql.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE tombstoned = 0`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return n, nil
}

// CountStoredRecords returns the number of physically stored rows,
// tombstoned included.
func (db *DB) CountStoredRecords(ctx context.Context) (int64, error) {
	var n int64
	err := db.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting stored records: %w", err)
	}
	return n, nil
}

// LatestRecordTime returns the newest live record's timestamp, or the zero
// time when the log is empty.
func (db *DB) LatestRecordTime(ctx context.Context) (time.Time, error) {
	var tsStr sql.NullString
	err := db.sql.QueryRowContext(ctx,
		`SELECT MAX(ts) FROM records WHERE tombstoned = 0`).Scan(&tsStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("querying latest record time: %w", err)
	}
	if !tsStr.Valid || tsStr.String == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(timeLayout, tsStr.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing latest timestamp %q: %w", tsStr.String, err)
	}
	return ts, nil
}

func scanStoredRecord(rows interface{ Scan(dest ...any) error }) (models.StoredRecord, error) {
	var (
		rec             models.StoredRecord
		idStr           string
		storedAt, tsStr string
		rpe, rir        sql.NullFloat64
	)
	err := rows.Scan(&idStr, &rec.Version, &rec.Tombstoned, &storedAt,
		&rec.Date, &tsStr, &rec.ProgramID, &rec.WeekNumber,
		&rec.DayNumber, &rec.ExerciseName, &rec.ExerciseOrder, &rec.IsCompoundParent,
		&rec.CompoundParentName, &rec.SetNumber, &rec.Reps, &rec.Weight, &rec.WeightUnit,
		&rec.WorkTimeSec, &rec.RestTimeSec, &rec.Tempo, &rpe, &rir, &rec.Completed, &rec.Notes)
	if err != nil {
		return models.StoredRecord{}, fmt.Errorf("scanning record: %w", err)
	}

	rec.ID, err = uuid.Parse(idStr)
	if err != nil {
		return models.StoredRecord{}, fmt.Errorf("parsing record id %q: %w", idStr, err)
	}
	if rec.StoredAt, err = time.Parse(timeLayout, storedAt); err != nil {
		return models.StoredRecord{}, fmt.Errorf("parsing stored_at %q: %w", storedAt, err)
	}
	if rec.Timestamp, err = time.Parse(timeLayout, tsStr); err != nil {
		return models.StoredRecord{}, fmt.Errorf("parsing ts %q: %w", tsStr, err)
	}
	rec.RPE = floatPtr(rpe)
	rec.RIR = floatPtr(rir)
	return rec, nil
}

func nullableFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
