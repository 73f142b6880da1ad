package history

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/meltforce/liftlog/internal/logtext"
	"github.com/meltforce/liftlog/internal/models"
)

// fakeLog is an in-memory RecordSource with the same tombstone semantics as
// the real store.
type fakeLog struct {
	recs []models.StoredRecord
	err  error
}

func (f *fakeLog) QueryRecords(ctx context.Context) ([]models.StoredRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.StoredRecord
	for _, r := range f.recs {
		if !r.Tombstoned {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeLog) AppendRecord(ctx context.Context, rec models.PerformanceRecord) (uuid.UUID, error) {
	if f.err != nil {
		return uuid.Nil, f.err
	}
	id := uuid.New()
	f.recs = append(f.recs, models.StoredRecord{ID: id, Version: 1, PerformanceRecord: rec})
	return id, nil
}

func (f *fakeLog) AppendRecords(ctx context.Context, recs []models.PerformanceRecord) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, rec := range recs {
		id, err := f.AppendRecord(ctx, rec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeLog) SoftDeleteSession(ctx context.Context, date, programID string) (int64, error) {
	var n int64
	for i, r := range f.recs {
		if !r.Tombstoned && r.Date == date && r.ProgramID == programID {
			f.recs[i].Tombstoned = true
			n++
		}
	}
	return n, nil
}

func (f *fakeLog) SoftDeleteExercise(ctx context.Context, date, programID, exerciseName string) (int64, error) {
	var n int64
	for i, r := range f.recs {
		if r.Tombstoned || r.Date != date || r.ProgramID != programID {
			continue
		}
		if r.ExerciseName == exerciseName || r.CompoundParentName == exerciseName {
			f.recs[i].Tombstoned = true
			n++
		}
	}
	return n, nil
}

func (f *fakeLog) RewriteSessionDate(ctx context.Context, date, programID, newDate string) (int64, error) {
	var n int64
	for i, r := range f.recs {
		if !r.Tombstoned && r.Date == date && r.ProgramID == programID {
			f.recs[i].Date = newDate
			n++
		}
	}
	return n, nil
}

func testStore(src RecordSource) *Store {
	return NewStore(src, slog.New(slog.DiscardHandler))
}

func rec(date string, week int, exercise string, set int, hourMin ...int) models.PerformanceRecord {
	h, m := 17, set
	if len(hourMin) == 2 {
		h, m = hourMin[0], hourMin[1]
	}
	day, _ := time.ParseInLocation(models.DateLayout, date, time.Local)
	return models.PerformanceRecord{
		Date:          date,
		Timestamp:     day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute),
		ProgramID:     "prog-1",
		WeekNumber:    week,
		DayNumber:     1,
		ExerciseName:  exercise,
		ExerciseOrder: 1,
		SetNumber:     set,
		Reps:          5,
		Weight:        135,
		WeightUnit:    "lbs",
		Completed:     true,
	}
}

func TestLogSetAppearsInSession(t *testing.T) {
	src := &fakeLog{}
	s := testStore(src)
	ctx := context.Background()

	pc := models.ProgramContext{ProgramID: "prog-1", WeekNumber: 2, DayNumber: 1}
	logged, err := s.LogSet(ctx, pc, models.SetLog{
		ExerciseName: "Bench Press",
		SetNumber:    1,
		Reps:         5,
		Weight:       185,
		Completed:    true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if logged.WeightUnit != "lbs" {
		t.Errorf("default unit = %q, want lbs", logged.WeightUnit)
	}

	got := s.SessionRecords(ctx, logged.Date, "prog-1")
	if len(got) != 1 || got[0].ExerciseName != "Bench Press" {
		t.Fatalf("session = %+v, want the logged set", got)
	}
}

// TestSessionDedupe verifies that a re-logged set supersedes the original:
// same exercise, set number, and parent flag, later timestamp wins.
func TestSessionDedupe(t *testing.T) {
	src := &fakeLog{}
	ctx := context.Background()

	first := rec("2026-08-01", 3, "Bench Press", 2, 17, 0)
	first.Weight = 135
	redo := rec("2026-08-01", 3, "Bench Press", 2, 17, 45)
	redo.Weight = 185
	other := rec("2026-08-01", 3, "Bench Press", 3, 17, 10)
	src.AppendRecords(ctx, []models.PerformanceRecord{first, redo, other})

	got := testStore(src).SessionRecords(ctx, "2026-08-01", "prog-1")
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2 after collapse", len(got))
	}
	if got[0].SetNumber != 2 || got[0].Weight != 185 {
		t.Errorf("set 2 = %.0f, want the later 185 row", got[0].Weight)
	}
	if got[1].SetNumber != 3 {
		t.Errorf("second record set = %d, want 3", got[1].SetNumber)
	}
}

// TestSessionIdentitySurvivesWeekRenumber is the retroactive-edit case: two
// batches logged on the same date under the same program but with different
// stored week numbers are still one session.
func TestSessionIdentitySurvivesWeekRenumber(t *testing.T) {
	src := &fakeLog{}
	ctx := context.Background()
	src.AppendRecords(ctx, []models.PerformanceRecord{
		rec("2026-08-01", 3, "Bench Press", 1, 17, 0),
		rec("2026-08-01", 4, "Squat", 1, 18, 0),
	})
	s := testStore(src)

	got := s.SessionRecords(ctx, "2026-08-01", "prog-1")
	if len(got) != 2 {
		t.Fatalf("got %d records, want both week numbers in one session", len(got))
	}

	sessions := s.CompletedSessions(ctx, 0)
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}

	// Deleting by (date, program) takes the whole session regardless of the
	// week numbers stored inside it.
	if n, _ := s.DeleteSession(ctx, "2026-08-01", "prog-1"); n != 2 {
		t.Errorf("deleted %d records, want 2", n)
	}
	if got := s.SessionRecords(ctx, "2026-08-01", "prog-1"); len(got) != 0 {
		t.Errorf("session not empty after delete: %+v", got)
	}
}

func TestCompletedSessionsOrderAndLimit(t *testing.T) {
	src := &fakeLog{}
	ctx := context.Background()
	src.AppendRecords(ctx, []models.PerformanceRecord{
		rec("2026-08-01", 1, "Bench Press", 1),
		rec("2026-08-03", 1, "Squat", 1),
		rec("2026-08-05", 2, "Deadlift", 1),
	})
	s := testStore(src)

	all := s.CompletedSessions(ctx, 0)
	if len(all) != 3 {
		t.Fatalf("got %d sessions, want 3", len(all))
	}
	if all[0].Date != "2026-08-05" || all[2].Date != "2026-08-01" {
		t.Errorf("order = %s..%s, want newest first", all[0].Date, all[2].Date)
	}

	limited := s.CompletedSessions(ctx, 2)
	if len(limited) != 2 || limited[0].Date != "2026-08-05" {
		t.Errorf("limited = %+v, want newest 2", limited)
	}
}

// TestCompletedSessionsFoldsCompoundBlocks verifies parent rows do not count
// as sets and sub-exercises appear under the parent name.
func TestCompletedSessionsFoldsCompoundBlocks(t *testing.T) {
	src := &fakeLog{}
	ctx := context.Background()

	parent := rec("2026-08-01", 1, "Conditioning Circuit", 1, 19, 0)
	parent.IsCompoundParent = true
	parent.Reps = 0
	parent.Weight = 0
	sub1 := rec("2026-08-01", 1, "Kettlebell Swing", 1, 19, 5)
	sub1.CompoundParentName = "Conditioning Circuit"
	sub2 := rec("2026-08-01", 1, "Burpee", 1, 19, 10)
	sub2.CompoundParentName = "Conditioning Circuit"
	src.AppendRecords(ctx, []models.PerformanceRecord{parent, sub1, sub2})

	sessions := testStore(src).CompletedSessions(ctx, 0)
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}
	sum := sessions[0]
	if sum.SetCount != 2 {
		t.Errorf("set count = %d, want 2 (parent row excluded)", sum.SetCount)
	}
	if len(sum.Exercises) != 1 || sum.Exercises[0] != "Conditioning Circuit" {
		t.Errorf("exercises = %v, want just the block name", sum.Exercises)
	}
}

func TestExerciseHistoryAcrossSessions(t *testing.T) {
	src := &fakeLog{}
	ctx := context.Background()
	src.AppendRecords(ctx, []models.PerformanceRecord{
		rec("2026-08-05", 2, "Bench Press", 1),
		rec("2026-08-01", 1, "Bench Press", 1),
		rec("2026-08-01", 1, "Squat", 1),
	})
	s := testStore(src)

	got := s.ExerciseHistory(ctx, "Bench Press")
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if got[0].Date != "2026-08-01" || got[1].Date != "2026-08-05" {
		t.Errorf("order = %s, %s, want oldest first", got[0].Date, got[1].Date)
	}

	names := s.ExerciseNames(ctx)
	if len(names) != 2 || names[0] != "Bench Press" || names[1] != "Squat" {
		t.Errorf("names = %v", names)
	}
}

func TestWeekPerformance(t *testing.T) {
	src := &fakeLog{}
	ctx := context.Background()

	rpe8, rpe9, rpe10 := 8.0, 9.0, 10.0
	a := rec("2026-08-01", 3, "Squat", 1, 17, 0)
	a.Weight, a.Reps, a.RPE = 225, 5, &rpe8
	b := rec("2026-08-01", 3, "Squat", 2, 17, 10)
	b.Weight, b.Reps, b.RPE = 245, 3, &rpe9
	// Same weight as the top set but more reps: reps break the tie.
	c := rec("2026-08-03", 3, "Squat", 1, 17, 0)
	c.Weight, c.Reps = 245, 4
	// Different week, must not leak in.
	d := rec("2026-08-10", 4, "Squat", 1)
	d.Weight = 315
	// Not completed: excluded from the top set and the count, but its
	// logged effort rating still feeds the week's RPE mean.
	e := rec("2026-08-03", 3, "Squat", 2, 17, 10)
	e.Weight, e.Completed, e.RPE = 275, false, &rpe10
	src.AppendRecords(ctx, []models.PerformanceRecord{a, b, c, d, e})

	perf := testStore(src).WeekPerformance(ctx, "Squat", "prog-1", 3)
	if perf.TopWeight != 245 || perf.TopReps != 4 {
		t.Errorf("top set = %.0fx%d, want 245x4", perf.TopWeight, perf.TopReps)
	}
	if perf.SetCount != 3 {
		t.Errorf("set count = %d, want 3", perf.SetCount)
	}
	if perf.AvgRPE == nil || *perf.AvgRPE != 9 {
		t.Errorf("avg rpe = %v, want 9 (8, 9, and the skipped set's 10)", perf.AvgRPE)
	}
}

func TestWeekPerformanceEmptyWeek(t *testing.T) {
	perf := testStore(&fakeLog{}).WeekPerformance(context.Background(), "Squat", "prog-1", 3)
	if perf.SetCount != 0 || perf.TopWeight != 0 || perf.AvgRPE != nil {
		t.Errorf("empty week = %+v, want zero values", perf)
	}
}

func TestMoveSessionPreservesClock(t *testing.T) {
	src := &fakeLog{}
	ctx := context.Background()
	src.AppendRecords(ctx, []models.PerformanceRecord{rec("2026-08-01", 1, "Bench Press", 1, 17, 30)})
	s := testStore(src)

	if n, err := s.MoveSession(ctx, "2026-08-01", "prog-1", "2026-08-02"); err != nil || n != 1 {
		t.Fatalf("move: n=%d err=%v", n, err)
	}
	if got := s.SessionRecords(ctx, "2026-08-01", "prog-1"); len(got) != 0 {
		t.Errorf("old date still populated: %+v", got)
	}
	moved := s.SessionRecords(ctx, "2026-08-02", "prog-1")
	if len(moved) != 1 {
		t.Fatalf("new date has %d records, want 1", len(moved))
	}
}

func TestExportTextRoundTrips(t *testing.T) {
	src := &fakeLog{}
	ctx := context.Background()
	first := rec("2026-08-01", 1, "Bench Press", 1, 17, 0)
	redo := rec("2026-08-01", 1, "Bench Press", 1, 17, 30)
	redo.Weight = 185
	src.AppendRecords(ctx, []models.PerformanceRecord{first, redo})
	s := testStore(src)

	var sb strings.Builder
	if err := s.ExportText(ctx, &sb); err != nil {
		t.Fatal(err)
	}

	recs, dropped, err := logtext.DecodeAll(strings.NewReader(sb.String()))
	if err != nil || dropped != 0 {
		t.Fatalf("decode: err=%v dropped=%d", err, dropped)
	}
	if len(recs) != 1 {
		t.Fatalf("exported %d records, want 1 (superseded row collapsed)", len(recs))
	}
	if recs[0].Weight != 185 {
		t.Errorf("exported weight = %.0f, want the superseding 185", recs[0].Weight)
	}
}

// TestFailOpenAndRetry verifies a load failure yields empty views and the
// next read retries instead of caching the failure.
func TestFailOpenAndRetry(t *testing.T) {
	src := &fakeLog{err: errors.New("db locked")}
	ctx := context.Background()
	s := testStore(src)

	if got := s.SessionRecords(ctx, "2026-08-01", "prog-1"); len(got) != 0 {
		t.Fatalf("got %+v, want empty on failure", got)
	}

	src.err = nil
	src.AppendRecord(ctx, rec("2026-08-01", 1, "Bench Press", 1))
	if got := s.SessionRecords(ctx, "2026-08-01", "prog-1"); len(got) != 1 {
		t.Errorf("got %d records after recovery, want 1", len(got))
	}
}
