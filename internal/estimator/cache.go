package estimator

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/meltforce/liftlog/internal/models"
)

// SampleSource provides the raw log rows estimates are computed from.
// Implemented by *storage.DB.
type SampleSource interface {
	QueryRecords(ctx context.Context) ([]models.StoredRecord, error)
	QueryExerciseRecords(ctx context.Context, exerciseName string) ([]models.StoredRecord, error)
}

// EntryStore persists computed estimate entries across restarts.
// Implemented by *storage.DB.
type EntryStore interface {
	UpsertEstimate(ctx context.Context, e models.EstimateEntry) error
	LoadEstimates(ctx context.Context) ([]models.EstimateEntry, error)
	DeleteEstimate(ctx context.Context, exerciseName string) error
}

// Cache holds one EstimateEntry per exercise for O(1) reads. Updates are a
// full re-aggregate scoped to the exercise: per-exercise sample counts are
// small, and recomputing from the log is simpler to keep correct than
// incremental accumulation.
type Cache struct {
	src   SampleSource
	store EntryStore
	log   *slog.Logger
	now   func() time.Time

	mu      sync.RWMutex
	entries map[string]models.EstimateEntry
}

// NewCache creates an empty cache. Call Load or RebuildAll before serving
// lookups.
func NewCache(src SampleSource, store EntryStore, log *slog.Logger) *Cache {
	return &Cache{
		src:     src,
		store:   store,
		log:     log,
		now:     time.Now,
		entries: make(map[string]models.EstimateEntry),
	}
}

// Load populates the cache from persisted entries. A storage failure is
// logged and leaves the cache empty; it never propagates.
func (c *Cache) Load(ctx context.Context) {
	entries, err := c.store.LoadEstimates(ctx)
	if err != nil {
		c.log.Warn("loading persisted estimates failed, starting empty", "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]models.EstimateEntry, len(entries))
	for _, e := range entries {
		c.entries[e.ExerciseName] = e
	}
}

// Lookup returns the cached entry for an exercise.
func (c *Cache) Lookup(exerciseName string) (models.EstimateEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[exerciseName]
	return e, ok
}

// Entries returns all cached entries ordered by exercise name.
func (c *Cache) Entries() []models.EstimateEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.EstimateEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExerciseName < out[j].ExerciseName })
	return out
}

// UpdateExercise recomputes one exercise's entry from the current log.
// A standing user override is preserved, never overwritten. Storage
// failures degrade to keeping the previous entry.
func (c *Cache) UpdateExercise(ctx context.Context, exerciseName string) models.EstimateEntry {
	recs, err := c.src.QueryExerciseRecords(ctx, exerciseName)
	if err != nil {
		c.log.Warn("estimate update skipped, log unavailable", "exercise", exerciseName, "error", err)
		e, _ := c.Lookup(exerciseName)
		return e
	}

	c.mu.Lock()
	override := c.entries[exerciseName].Override
	entry := c.compute(exerciseName, samplesFrom(recs), override)
	c.entries[exerciseName] = entry
	c.mu.Unlock()

	c.persist(ctx, entry)
	return entry
}

// RebuildAll recomputes every exercise present in the log, unioned with
// every exercise holding a standing override, so an override survives even
// with zero logged samples.
func (c *Cache) RebuildAll(ctx context.Context) {
	recs, err := c.src.QueryRecords(ctx)
	if err != nil {
		c.log.Warn("estimate rebuild skipped, log unavailable", "error", err)
		return
	}

	byExercise := make(map[string][]models.StoredRecord)
	for _, r := range recs {
		byExercise[r.ExerciseName] = append(byExercise[r.ExerciseName], r)
	}

	c.mu.Lock()
	rebuilt := make(map[string]models.EstimateEntry, len(byExercise))
	for name, exRecs := range byExercise {
		rebuilt[name] = c.compute(name, samplesFrom(exRecs), c.entries[name].Override)
	}
	for name, old := range c.entries {
		if _, ok := rebuilt[name]; !ok && old.Override != nil {
			rebuilt[name] = c.compute(name, nil, old.Override)
		}
	}
	c.entries = rebuilt
	entries := make([]models.EstimateEntry, 0, len(rebuilt))
	for _, e := range rebuilt {
		entries = append(entries, e)
	}
	c.mu.Unlock()

	for _, e := range entries {
		c.persist(ctx, e)
	}
	c.log.Info("estimate cache rebuilt", "exercises", len(entries))
}

// SetOverride pins the TRM for an exercise. The calculated fields keep
// reflecting the log so the override stays auditable.
func (c *Cache) SetOverride(ctx context.Context, exerciseName string, trm float64) models.EstimateEntry {
	c.mu.Lock()
	entry, ok := c.entries[exerciseName]
	if !ok {
		entry = models.EstimateEntry{ExerciseName: exerciseName, UpdatedAt: c.now()}
	}
	entry.Override = &trm
	c.entries[exerciseName] = entry
	c.mu.Unlock()

	c.persist(ctx, entry)
	return entry
}

// ClearOverride removes the pinned TRM. An entry that existed only for its
// override is dropped entirely.
func (c *Cache) ClearOverride(ctx context.Context, exerciseName string) {
	c.mu.Lock()
	entry, ok := c.entries[exerciseName]
	if !ok {
		c.mu.Unlock()
		return
	}
	entry.Override = nil
	orphan := entry.SampleCount == 0
	if orphan {
		delete(c.entries, exerciseName)
	} else {
		c.entries[exerciseName] = entry
	}
	c.mu.Unlock()

	if orphan {
		if err := c.store.DeleteEstimate(ctx, exerciseName); err != nil {
			c.log.Warn("deleting orphan estimate failed", "exercise", exerciseName, "error", err)
		}
		return
	}
	c.persist(ctx, entry)
}

func (c *Cache) compute(exerciseName string, samples []Sample, override *float64) models.EstimateEntry {
	now := c.now()

	lastPerformed := ""
	for _, s := range samples {
		if s.Date > lastPerformed {
			lastPerformed = s.Date
		}
	}

	return models.EstimateEntry{
		ExerciseName:  exerciseName,
		OneRM:         WeightedOneRM(samples, now),
		TRM:           TimeWeightedAverage(samples, now),
		UpdatedAt:     now,
		SampleCount:   len(samples),
		Stale:         IsStale(lastPerformed, now),
		LastPerformed: lastPerformed,
		Override:      override,
	}
}

func (c *Cache) persist(ctx context.Context, e models.EstimateEntry) {
	if err := c.store.UpsertEstimate(ctx, e); err != nil {
		c.log.Warn("persisting estimate failed", "exercise", e.ExerciseName, "error", err)
	}
}

// samplesFrom reduces log rows to estimator samples: actual completed sets
// only, never compound-parent summary rows or zero-work entries.
func samplesFrom(recs []models.StoredRecord) []Sample {
	var out []Sample
	for _, r := range recs {
		if r.IsCompoundParent || !r.Completed || r.Reps <= 0 || r.Weight <= 0 {
			continue
		}
		out = append(out, Sample{Date: r.Date, Weight: r.Weight, Reps: r.Reps, RPE: r.RPE})
	}
	return out
}
