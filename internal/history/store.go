// Package history is the in-memory read model over the performance log:
// session views, per-exercise history, and weekly progressive-overload
// summaries, all rebuilt from the durable log on demand.
package history

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meltforce/liftlog/internal/logtext"
	"github.com/meltforce/liftlog/internal/models"
)

// RecordSource is the slice of the durable log the projection needs.
// Implemented by *storage.DB.
type RecordSource interface {
	QueryRecords(ctx context.Context) ([]models.StoredRecord, error)
	AppendRecord(ctx context.Context, rec models.PerformanceRecord) (uuid.UUID, error)
	AppendRecords(ctx context.Context, recs []models.PerformanceRecord) ([]uuid.UUID, error)
	SoftDeleteSession(ctx context.Context, date, programID string) (int64, error)
	SoftDeleteExercise(ctx context.Context, date, programID, exerciseName string) (int64, error)
	RewriteSessionDate(ctx context.Context, date, programID, newDate string) (int64, error)
}

// Store caches the live (non-tombstoned) log in memory and serves all read
// views from that copy. Writes go to the log first and then invalidate the
// copy, so a failed write never leaves the projection ahead of the truth.
//
// A session is identified by (date, program ID) alone. Week and day numbers
// are stored context, never identity: a program whose schedule is edited
// retroactively must not orphan history logged under the old numbering.
type Store struct {
	src RecordSource
	log *slog.Logger

	mu     sync.RWMutex
	loaded bool
	recs   []models.StoredRecord
}

// NewStore creates a projection over src. The first read loads the log
// lazily; a load failure degrades to empty views and is retried on the
// next read.
func NewStore(src RecordSource, log *slog.Logger) *Store {
	return &Store{src: src, log: log}
}

// snapshot returns the cached live records, loading them if needed.
func (s *Store) snapshot(ctx context.Context) []models.StoredRecord {
	s.mu.RLock()
	if s.loaded {
		defer s.mu.RUnlock()
		return s.recs
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.recs
	}
	recs, err := s.src.QueryRecords(ctx)
	if err != nil {
		s.log.Warn("history load failed, serving empty views", "error", err)
		return nil
	}
	s.recs = recs
	s.loaded = true
	return s.recs
}

// Invalidate drops the cached copy so the next read reloads from the log.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = false
	s.recs = nil
}

// LogSet appends one completed set to the durable log.
func (s *Store) LogSet(ctx context.Context, pc models.ProgramContext, set models.SetLog) (models.PerformanceRecord, error) {
	rec := pc.Record(set, time.Now())
	if _, err := s.src.AppendRecord(ctx, rec); err != nil {
		return models.PerformanceRecord{}, err
	}
	s.Invalidate()
	return rec, nil
}

// AppendRecords bulk-appends pre-built records, as during an import.
func (s *Store) AppendRecords(ctx context.Context, recs []models.PerformanceRecord) error {
	if _, err := s.src.AppendRecords(ctx, recs); err != nil {
		return err
	}
	s.Invalidate()
	return nil
}

// DeleteSession tombstones every record of one session. Returns the number
// of records removed from view.
func (s *Store) DeleteSession(ctx context.Context, date, programID string) (int64, error) {
	n, err := s.src.SoftDeleteSession(ctx, date, programID)
	if err != nil {
		return 0, err
	}
	s.Invalidate()
	return n, nil
}

// DeleteExercise tombstones one exercise within a session, including its
// compound sub-exercises.
func (s *Store) DeleteExercise(ctx context.Context, date, programID, exerciseName string) (int64, error) {
	n, err := s.src.SoftDeleteExercise(ctx, date, programID, exerciseName)
	if err != nil {
		return 0, err
	}
	s.Invalidate()
	return n, nil
}

// MoveSession rewrites a session's calendar date, preserving each record's
// time of day.
func (s *Store) MoveSession(ctx context.Context, date, programID, newDate string) (int64, error) {
	n, err := s.src.RewriteSessionDate(ctx, date, programID, newDate)
	if err != nil {
		return 0, err
	}
	s.Invalidate()
	return n, nil
}

// SessionRecords returns one session's effective records: superseded
// duplicates are collapsed so only the latest row per logical set remains,
// ordered for display (exercise order, then set number).
func (s *Store) SessionRecords(ctx context.Context, date, programID string) []models.StoredRecord {
	var session []models.StoredRecord
	for _, r := range s.snapshot(ctx) {
		if r.Date == date && r.ProgramID == programID {
			session = append(session, r)
		}
	}

	out := dedupe(session)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ExerciseOrder != out[j].ExerciseOrder {
			return out[i].ExerciseOrder < out[j].ExerciseOrder
		}
		if out[i].ExerciseName != out[j].ExerciseName {
			return out[i].ExerciseName < out[j].ExerciseName
		}
		return out[i].SetNumber < out[j].SetNumber
	})
	return out
}

// setKey is the logical identity of one set within a session. A re-logged
// set shares the key and supersedes by timestamp.
type setKey struct {
	exercise string
	set      int
	parent   bool
}

// dedupe collapses rows sharing a logical set identity, keeping the row
// with the latest timestamp.
func dedupe(recs []models.StoredRecord) []models.StoredRecord {
	latest := make(map[setKey]models.StoredRecord, len(recs))
	for _, r := range recs {
		k := setKey{exercise: r.ExerciseName, set: r.SetNumber, parent: r.IsCompoundParent}
		cur, ok := latest[k]
		if !ok || r.Timestamp.After(cur.Timestamp) {
			latest[k] = r
		}
	}
	out := make([]models.StoredRecord, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	return out
}

// CompletedSessions summarizes distinct sessions, newest first. Only
// completed working sets count, after duplicate collapse; a session with
// none is omitted. A limit of zero or less returns all sessions.
func (s *Store) CompletedSessions(ctx context.Context, limit int) []models.SessionSummary {
	type sessKey struct {
		date    string
		program string
	}
	bySession := make(map[sessKey][]models.StoredRecord)
	for _, r := range s.snapshot(ctx) {
		k := sessKey{date: r.Date, program: r.ProgramID}
		bySession[k] = append(bySession[k], r)
	}

	out := make([]models.SessionSummary, 0, len(bySession))
	for k, recs := range bySession {
		sum := models.SessionSummary{Date: k.date, ProgramID: k.program}
		seen := make(map[string]bool)
		for _, r := range dedupe(recs) {
			if r.IsCompoundParent || !r.Completed {
				continue
			}
			sum.SetCount++
			if r.Timestamp.After(sum.LatestTS) {
				sum.LatestTS = r.Timestamp
			}
			// Sub-exercises fold under their parent block in the summary.
			name := r.ExerciseName
			if r.CompoundParentName != "" {
				name = r.CompoundParentName
			}
			if !seen[name] {
				seen[name] = true
				sum.Exercises = append(sum.Exercises, name)
			}
		}
		if sum.SetCount == 0 {
			continue
		}
		sort.Strings(sum.Exercises)
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].ProgramID < out[j].ProgramID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ExerciseHistory returns every effective record for one exercise across
// all sessions, oldest first. Compound sub-exercise rows match on their own
// name, not the parent block's.
func (s *Store) ExerciseHistory(ctx context.Context, exerciseName string) []models.StoredRecord {
	type daySess struct {
		date    string
		program string
	}
	byDay := make(map[daySess][]models.StoredRecord)
	for _, r := range s.snapshot(ctx) {
		if r.ExerciseName != exerciseName {
			continue
		}
		k := daySess{date: r.Date, program: r.ProgramID}
		byDay[k] = append(byDay[k], r)
	}

	var out []models.StoredRecord
	for _, recs := range byDay {
		out = append(out, dedupe(recs)...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].SetNumber < out[j].SetNumber
	})
	return out
}

// ExerciseNames lists every exercise appearing in the log, sorted.
// Compound parent rows are included: they are selectable for deletion even
// though they carry no load.
func (s *Store) ExerciseNames(ctx context.Context) []string {
	seen := make(map[string]bool)
	for _, r := range s.snapshot(ctx) {
		seen[r.ExerciseName] = true
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// WeekPerformance summarizes one exercise within one program week: the
// heaviest completed working set (reps break weight ties) and the mean RPE
// across every rated set, completed or not; a skipped set's effort rating
// still describes the week. This view filters by stored week number; it
// answers "what did week 3 look like", not "what happened on this date".
func (s *Store) WeekPerformance(ctx context.Context, exerciseName, programID string, weekNumber int) models.WeekPerformance {
	perf := models.WeekPerformance{
		ExerciseName: exerciseName,
		ProgramID:    programID,
		WeekNumber:   weekNumber,
	}

	type daySess struct {
		date    string
		program string
	}
	byDay := make(map[daySess][]models.StoredRecord)
	for _, r := range s.snapshot(ctx) {
		if r.ExerciseName != exerciseName || r.ProgramID != programID || r.WeekNumber != weekNumber {
			continue
		}
		if r.IsCompoundParent {
			continue
		}
		k := daySess{date: r.Date, program: r.ProgramID}
		byDay[k] = append(byDay[k], r)
	}

	var rpeSum float64
	var rpeCount int
	for _, recs := range byDay {
		for _, r := range dedupe(recs) {
			if r.RPE != nil {
				rpeSum += *r.RPE
				rpeCount++
			}
			if !r.Completed {
				continue
			}
			perf.SetCount++
			if r.Weight > perf.TopWeight ||
				(r.Weight == perf.TopWeight && r.Reps > perf.TopReps) {
				perf.TopWeight = r.Weight
				perf.TopReps = r.Reps
			}
		}
	}
	if rpeCount > 0 {
		avg := rpeSum / float64(rpeCount)
		perf.AvgRPE = &avg
	}
	return perf
}

// ExportText writes the whole effective log in canonical text form, ordered
// by timestamp. Superseded duplicates are collapsed first so the export is
// importable without reintroducing them.
func (s *Store) ExportText(ctx context.Context, w io.Writer) error {
	type daySess struct {
		date    string
		program string
	}
	byDay := make(map[daySess][]models.StoredRecord)
	for _, r := range s.snapshot(ctx) {
		k := daySess{date: r.Date, program: r.ProgramID}
		byDay[k] = append(byDay[k], r)
	}

	var flat []models.StoredRecord
	for _, recs := range byDay {
		flat = append(flat, dedupe(recs)...)
	}
	sort.Slice(flat, func(i, j int) bool {
		return flat[i].Timestamp.Before(flat[j].Timestamp)
	})

	out := make([]models.PerformanceRecord, len(flat))
	for i, r := range flat {
		out[i] = r.PerformanceRecord
	}
	return logtext.EncodeAll(w, out)
}
