// Package legacy performs the one-time migration of the old flat-text
// workout log into the durable record store.
package legacy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/meltforce/liftlog/internal/logtext"
	"github.com/meltforce/liftlog/internal/models"
)

// State keys in the app_state table.
const (
	// markerKey is set once migration completes; its presence makes every
	// later run a no-op.
	markerKey = "legacy_migration_done"

	// backupKey holds the raw legacy file content, kept verbatim as a
	// recovery path after the file itself is truncated.
	backupKey = "legacy_backup"
)

// Store is the durable-store surface the migrator writes through.
// Implemented by *storage.DB.
type Store interface {
	AppendRecords(ctx context.Context, recs []models.PerformanceRecord) ([]uuid.UUID, error)
	SaveCheckpoint(ctx context.Context, rowCount int64, latestTS time.Time) error
	CountRecords(ctx context.Context) (int64, error)
	GetState(ctx context.Context, key string) (string, bool, error)
	SetState(ctx context.Context, key, value string) error
}

// Result is the structured outcome of a migration attempt. Failures are
// reported here, not returned as errors: the caller's startup path never
// aborts over legacy data.
type Result struct {
	Migrated bool   `json:"migrated"`
	RowCount int    `json:"row_count"`
	Dropped  int    `json:"dropped"`
	Message  string `json:"message"`
}

// Migrator runs the legacy import once. Safe to invoke on every startup.
type Migrator struct {
	store Store
	log   *slog.Logger
	path  string
}

func NewMigrator(store Store, log *slog.Logger, legacyPath string) *Migrator {
	return &Migrator{store: store, log: log, path: legacyPath}
}

// Run executes the migration if it has not already happened. The sequence
// is: decode the legacy file, batch-append the rows, record an integrity
// checkpoint, back up the raw file content, truncate the file, then set the
// completion marker. Any failure before the truncate leaves the legacy file
// untouched so a retry on the next startup can succeed.
func (m *Migrator) Run(ctx context.Context) Result {
	if _, done, err := m.store.GetState(ctx, markerKey); err != nil {
		return m.failure(err, "checking migration marker")
	} else if done {
		return Result{Migrated: false, Message: "already migrated"}
	}

	if m.path == "" {
		return m.markDone(ctx, Result{Migrated: false, Message: "no legacy path configured"})
	}

	raw, err := os.ReadFile(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		return m.markDone(ctx, Result{Migrated: false, Message: "no legacy data found"})
	}
	if err != nil {
		return m.failure(err, "reading legacy file")
	}
	if len(raw) == 0 {
		return m.markDone(ctx, Result{Migrated: false, Message: "legacy file empty"})
	}

	recs, dropped, err := logtext.DecodeAll(bytes.NewReader(raw))
	if err != nil {
		return m.failure(err, "decoding legacy file")
	}
	if dropped > 0 {
		m.log.Warn("dropped malformed legacy lines", "dropped", dropped)
	}

	if _, err := m.store.AppendRecords(ctx, recs); err != nil {
		return m.failure(err, "appending migrated rows")
	}

	count, err := m.store.CountRecords(ctx)
	if err != nil {
		return m.failure(err, "counting migrated rows")
	}
	latest := latestTimestamp(recs)
	if err := m.store.SaveCheckpoint(ctx, count, latest); err != nil {
		return m.failure(err, "saving integrity checkpoint")
	}

	if err := m.store.SetState(ctx, backupKey, string(raw)); err != nil {
		return m.failure(err, "backing up legacy data")
	}

	// Point of no return: the rows are committed and the backup is stored.
	// A failure from here on is logged but the migration still counts.
	if err := os.Truncate(m.path, 0); err != nil {
		m.log.Warn("truncating legacy file failed, rows already migrated", "path", m.path, "error", err)
	}
	if err := m.store.SetState(ctx, markerKey, time.Now().Format(time.RFC3339)); err != nil {
		m.log.Warn("setting migration marker failed, next run will re-append", "error", err)
	}

	m.log.Info("legacy migration complete", "rows", len(recs), "dropped", dropped)
	return Result{
		Migrated: true,
		RowCount: len(recs),
		Dropped:  dropped,
		Message:  fmt.Sprintf("migrated %d rows (%d malformed lines dropped)", len(recs), dropped),
	}
}

// markDone records the completion marker for the nothing-to-do cases so
// later startups skip the file checks entirely.
func (m *Migrator) markDone(ctx context.Context, res Result) Result {
	if err := m.store.SetState(ctx, markerKey, time.Now().Format(time.RFC3339)); err != nil {
		m.log.Warn("setting migration marker failed", "error", err)
	}
	return res
}

func (m *Migrator) failure(err error, stage string) Result {
	m.log.Warn("legacy migration failed, will retry next startup", "stage", stage, "error", err)
	return Result{Migrated: false, Message: fmt.Sprintf("%s: %v", stage, err)}
}

func latestTimestamp(recs []models.PerformanceRecord) time.Time {
	var latest time.Time
	for _, r := range recs {
		if r.Timestamp.After(latest) {
			latest = r.Timestamp
		}
	}
	return latest
}
