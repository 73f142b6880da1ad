// Package logtext implements the canonical flat-text serialization of
// performance records: one record per line, a fixed ordered list of 20
// fields with RFC 4180 quoting. It is both the export format and the
// format the legacy migration reads.
package logtext

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/meltforce/liftlog/internal/models"
)

// FieldCount is the exact number of fields a valid line decodes into.
// Lines with any other count are dropped, not partially recovered.
const FieldCount = 20

// tsLayout is the timestamp field format. The date field uses
// models.DateLayout.
const tsLayout = time.RFC3339Nano

// EncodeRecord renders one record as a canonical line, without a trailing
// newline.
func EncodeRecord(rec models.PerformanceRecord) string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	w.Write(fields(rec))
	w.Flush()
	return strings.TrimRight(sb.String(), "\n")
}

// EncodeAll writes records to w, one line each, in canonical field order.
func EncodeAll(w io.Writer, recs []models.PerformanceRecord) error {
	cw := csv.NewWriter(w)
	for _, rec := range recs {
		if err := cw.Write(fields(rec)); err != nil {
			return fmt.Errorf("encoding record for %s: %w", rec.ExerciseName, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func fields(rec models.PerformanceRecord) []string {
	return []string{
		rec.Date,
		rec.Timestamp.Format(tsLayout),
		rec.ProgramID,
		strconv.Itoa(rec.WeekNumber),
		strconv.Itoa(rec.DayNumber),
		rec.ExerciseName,
		strconv.Itoa(rec.ExerciseOrder),
		strconv.FormatBool(rec.IsCompoundParent),
		rec.CompoundParentName,
		strconv.Itoa(rec.SetNumber),
		strconv.Itoa(rec.Reps),
		formatFloat(rec.Weight),
		rec.WeightUnit,
		strconv.Itoa(rec.WorkTimeSec),
		strconv.Itoa(rec.RestTimeSec),
		rec.Tempo,
		formatOptFloat(rec.RPE),
		formatOptFloat(rec.RIR),
		strconv.FormatBool(rec.Completed),
		rec.Notes,
	}
}

// DecodeLine parses one canonical line into a record. It fails unless the
// line yields exactly FieldCount fields and every typed field parses.
func DecodeLine(line string) (models.PerformanceRecord, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	row, err := r.Read()
	if err != nil {
		return models.PerformanceRecord{}, fmt.Errorf("parsing line: %w", err)
	}
	return decodeFields(row)
}

// DecodeAll reads a canonical line stream, returning the records that
// parsed plus the number of malformed lines dropped. Dropping rather than
// failing is deliberate: a corrupt line loses one row, not the whole log.
func DecodeAll(r io.Reader) ([]models.PerformanceRecord, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var (
		recs    []models.PerformanceRecord
		dropped int
	)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			dropped++
			continue
		}
		if err != nil {
			return recs, dropped, fmt.Errorf("reading line: %w", err)
		}

		rec, err := decodeFields(row)
		if err != nil {
			dropped++
			continue
		}
		recs = append(recs, rec)
	}
	return recs, dropped, nil
}

func decodeFields(row []string) (models.PerformanceRecord, error) {
	if len(row) != FieldCount {
		return models.PerformanceRecord{}, fmt.Errorf("line has %d fields, want %d", len(row), FieldCount)
	}

	var (
		rec models.PerformanceRecord
		err error
	)
	rec.Date = row[0]
	if _, err = time.Parse(models.DateLayout, rec.Date); err != nil {
		return models.PerformanceRecord{}, fmt.Errorf("parsing date %q: %w", row[0], err)
	}
	if rec.Timestamp, err = time.Parse(tsLayout, row[1]); err != nil {
		return models.PerformanceRecord{}, fmt.Errorf("parsing timestamp %q: %w", row[1], err)
	}
	rec.ProgramID = row[2]
	if rec.WeekNumber, err = strconv.Atoi(row[3]); err != nil {
		return models.PerformanceRecord{}, fmt.Errorf("parsing week_number %q: %w", row[3], err)
	}
	if rec.DayNumber, err = strconv.Atoi(row[4]); err != nil {
		return models.PerformanceRecord{}, fmt.Errorf("parsing day_number %q: %w", row[4], err)
	}
	rec.ExerciseName = row[5]
	if rec.ExerciseOrder, err = strconv.Atoi(row[6]); err != nil {
		return models.PerformanceRecord{}, fmt.Errorf("parsing exercise_order %q: %w", row[6], err)
	}
	if rec.IsCompoundParent, err = strconv.ParseBool(row[7]); err != nil {
		return models.PerformanceRecord{}, fmt.Errorf("parsing is_compound_parent %q: %w", row[7], err)
	}
	rec.CompoundParentName = row[8]
	if rec.SetNumber, err = strconv.Atoi(row[9]); err != nil {
		return models.PerformanceRecord{}, fmt.Errorf("parsing set_number %q: %w", row[9], err)
	}
	if rec.Reps, err = strconv.Atoi(row[10]); err != nil {
		return models.PerformanceRecord{}, fmt.Errorf("parsing reps %q: %w", row[10], err)
	}
	if rec.Weight, err = strconv.ParseFloat(row[11], 64); err != nil {
		return models.PerformanceRecord{}, fmt.Errorf("parsing weight %q: %w", row[11], err)
	}
	rec.WeightUnit = row[12]
	if rec.WorkTimeSec, err = strconv.Atoi(row[13]); err != nil {
		return models.PerformanceRecord{}, fmt.Errorf("parsing work_time %q: %w", row[13], err)
	}
	if rec.RestTimeSec, err = strconv.Atoi(row[14]); err != nil {
		return models.PerformanceRecord{}, fmt.Errorf("parsing rest_time %q: %w", row[14], err)
	}
	rec.Tempo = row[15]
	if rec.RPE, err = parseOptFloat(row[16]); err != nil {
		return models.PerformanceRecord{}, fmt.Errorf("parsing rpe %q: %w", row[16], err)
	}
	if rec.RIR, err = parseOptFloat(row[17]); err != nil {
		return models.PerformanceRecord{}, fmt.Errorf("parsing rir %q: %w", row[17], err)
	}
	if rec.Completed, err = strconv.ParseBool(row[18]); err != nil {
		return models.PerformanceRecord{}, fmt.Errorf("parsing completed %q: %w", row[18], err)
	}
	rec.Notes = row[19]
	return rec, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatOptFloat(p *float64) string {
	if p == nil {
		return ""
	}
	return formatFloat(*p)
}

func parseOptFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
