package models

import (
	"time"

	"github.com/google/uuid"
)

// DateLayout is the calendar-day key format used throughout the log.
// Days are local time; the date string is the stable half of a session's
// identity (the other half being the program ID).
const DateLayout = "2006-01-02"

// PerformanceRecord is one logged set, or one compound-block summary row.
// Once written its content is never edited in place: corrections arrive as
// new rows that supersede by timestamp, and the only sanctioned mutation is
// a session date rewrite that preserves time-of-day.
type PerformanceRecord struct {
	Date               string     `json:"date"`
	Timestamp          time.Time  `json:"timestamp"`
	ProgramID          string     `json:"program_id"`
	WeekNumber         int        `json:"week_number"`
	DayNumber          int        `json:"day_number"`
	ExerciseName       string     `json:"exercise_name"`
	ExerciseOrder      int        `json:"exercise_order"`
	IsCompoundParent   bool       `json:"is_compound_parent"`
	CompoundParentName string     `json:"compound_parent_name,omitempty"`
	SetNumber          int        `json:"set_number"`
	Reps               int        `json:"reps"`
	Weight             float64    `json:"weight"`
	WeightUnit         string     `json:"weight_unit"`
	WorkTimeSec        int        `json:"work_time_sec,omitempty"`
	RestTimeSec        int        `json:"rest_time_sec,omitempty"`
	Tempo              string     `json:"tempo,omitempty"`
	RPE                *float64   `json:"rpe,omitempty"`
	RIR                *float64   `json:"rir,omitempty"`
	Completed          bool       `json:"completed"`
	Notes              string     `json:"notes,omitempty"`
}

// StoredRecord is the physically persisted shape: a PerformanceRecord plus
// the storage envelope (id, version counter, tombstone flag, storage time).
type StoredRecord struct {
	ID         uuid.UUID `json:"id"`
	Version    int       `json:"version"`
	Tombstoned bool      `json:"tombstoned"`
	StoredAt   time.Time `json:"stored_at"`
	PerformanceRecord
}

// SetLog is the event shape supplied by the live-session driver when a set
// completes. The core combines it with program context to build a
// PerformanceRecord.
type SetLog struct {
	ExerciseName       string   `json:"exercise_name"`
	ExerciseOrder      int      `json:"exercise_order"`
	IsCompoundParent   bool     `json:"is_compound_parent"`
	CompoundParentName string   `json:"compound_parent_name,omitempty"`
	SetNumber          int      `json:"set_number"`
	Reps               int      `json:"reps"`
	Weight             float64  `json:"weight"`
	WeightUnit         string   `json:"weight_unit,omitempty"`
	WorkTimeSec        int      `json:"work_time_sec,omitempty"`
	RestTimeSec        int      `json:"rest_time_sec,omitempty"`
	Tempo              string   `json:"tempo,omitempty"`
	RPE                *float64 `json:"rpe,omitempty"`
	RIR                *float64 `json:"rir,omitempty"`
	Completed          bool     `json:"completed"`
	Notes              string   `json:"notes,omitempty"`
}

// ProgramContext is the schedule provider's view of where a set lands in
// the program at the moment of logging. Week and day numbers are captured
// here once and stored verbatim; they are derived values and must never be
// used as session identity afterwards.
type ProgramContext struct {
	ProgramID  string `json:"program_id"`
	WeekNumber int    `json:"week_number"`
	DayNumber  int    `json:"day_number"`
}

// Record builds the immutable PerformanceRecord for a completed set.
func (pc ProgramContext) Record(s SetLog, at time.Time) PerformanceRecord {
	unit := s.WeightUnit
	if unit == "" {
		unit = "lbs"
	}
	return PerformanceRecord{
		Date:               at.Format(DateLayout),
		Timestamp:          at,
		ProgramID:          pc.ProgramID,
		WeekNumber:         pc.WeekNumber,
		DayNumber:          pc.DayNumber,
		ExerciseName:       s.ExerciseName,
		ExerciseOrder:      s.ExerciseOrder,
		IsCompoundParent:   s.IsCompoundParent,
		CompoundParentName: s.CompoundParentName,
		SetNumber:          s.SetNumber,
		Reps:               s.Reps,
		Weight:             s.Weight,
		WeightUnit:         unit,
		WorkTimeSec:        s.WorkTimeSec,
		RestTimeSec:        s.RestTimeSec,
		Tempo:              s.Tempo,
		RPE:                s.RPE,
		RIR:                s.RIR,
		Completed:          s.Completed,
		Notes:              s.Notes,
	}
}

// SessionSummary is one completed training session: all records sharing a
// calendar date and program ID.
type SessionSummary struct {
	Date      string    `json:"date"`
	ProgramID string    `json:"program_id"`
	SetCount  int       `json:"set_count"`
	Exercises []string  `json:"exercises"`
	LatestTS  time.Time `json:"latest_timestamp"`
}

// WeekPerformance is the progressive-overload view of one exercise within
// one program week: the heaviest working set plus the week's average RPE.
type WeekPerformance struct {
	ExerciseName string   `json:"exercise_name"`
	ProgramID    string   `json:"program_id"`
	WeekNumber   int      `json:"week_number"`
	TopWeight    float64  `json:"top_weight"`
	TopReps      int      `json:"top_reps"`
	AvgRPE       *float64 `json:"avg_rpe,omitempty"`
	SetCount     int      `json:"set_count"`
}

// EstimateEntry is the cached training-load estimate for one exercise.
// TRM holds the calculated value; a user override, when present, wins for
// prescription but never replaces the calculated fields.
type EstimateEntry struct {
	ExerciseName  string    `json:"exercise_name"`
	OneRM         float64   `json:"one_rm"`
	TRM           float64   `json:"trm"`
	UpdatedAt     time.Time `json:"updated_at"`
	SampleCount   int       `json:"sample_count"`
	Stale         bool      `json:"stale"`
	LastPerformed string    `json:"last_performed,omitempty"`
	Override      *float64  `json:"override,omitempty"`
}

// EffectiveTRM is the weight prescription consumers should use: the user
// override when set, the calculated TRM otherwise.
func (e EstimateEntry) EffectiveTRM() float64 {
	if e.Override != nil {
		return *e.Override
	}
	return e.TRM
}
