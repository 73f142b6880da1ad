package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/meltforce/liftlog"
	"github.com/meltforce/liftlog/internal/config"
	"github.com/meltforce/liftlog/internal/history"
	"github.com/meltforce/liftlog/internal/logtext"
	"github.com/meltforce/liftlog/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	importPath := flag.String("import", "", "import records from a canonical text file")
	exportPath := flag.String("export", "", "export the effective log to a text file ('-' for stdout)")
	compact := flag.Bool("compact", false, "physically remove tombstoned records")
	verify := flag.Bool("verify", false, "check the record count against the last checkpoint")
	dryRun := flag.Bool("dry-run", false, "report counts without writing to the database")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *importPath == "" && *exportPath == "" && !*compact && !*verify {
		fmt.Fprintf(os.Stderr, "Usage: liftlog-import -config config.yaml [-import file | -export file | -compact | -verify] [-dry-run]\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := storage.Open(ctx, cfg.Database.Path)
	if err != nil {
		log.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.RunMigrations(liftlog.MigrationsFS); err != nil {
		log.Error("migration failed", "error", err)
		os.Exit(1)
	}

	switch {
	case *importPath != "":
		runImport(ctx, db, log, *importPath, *dryRun)
	case *exportPath != "":
		runExport(ctx, db, log, *exportPath)
	case *compact:
		runCompact(ctx, db, log, *dryRun)
	case *verify:
		runVerify(ctx, db, log)
	}
}

func runImport(ctx context.Context, db *storage.DB, log *slog.Logger, path string, dryRun bool) {
	f, err := os.Open(path)
	if err != nil {
		log.Error("opening import file", "path", path, "error", err)
		os.Exit(1)
	}
	defer f.Close()

	recs, dropped, err := logtext.DecodeAll(f)
	if err != nil {
		log.Error("decoding import file", "error", err)
		os.Exit(1)
	}
	log.Info("parsed import file", "records", len(recs), "dropped", dropped)

	if dryRun {
		log.Info("dry run: nothing written")
		return
	}
	if len(recs) == 0 {
		log.Error("no importable records")
		os.Exit(1)
	}

	if _, err := db.AppendRecords(ctx, recs); err != nil {
		log.Error("appending records", "error", err)
		os.Exit(1)
	}
	saveCheckpoint(ctx, db, log)
	log.Info("import complete", "records", len(recs))
}

func runExport(ctx context.Context, db *storage.DB, log *slog.Logger, path string) {
	out := os.Stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			log.Error("creating export file", "path", path, "error", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	hist := history.NewStore(db, log)
	if err := hist.ExportText(ctx, out); err != nil {
		log.Error("export failed", "error", err)
		os.Exit(1)
	}
	if path != "-" {
		log.Info("export complete", "path", path)
	}
}

func runCompact(ctx context.Context, db *storage.DB, log *slog.Logger, dryRun bool) {
	live, err := db.CountRecords(ctx)
	if err != nil {
		log.Error("counting records", "error", err)
		os.Exit(1)
	}
	stored, err := db.CountStoredRecords(ctx)
	if err != nil {
		log.Error("counting stored records", "error", err)
		os.Exit(1)
	}
	log.Info("compaction candidates", "tombstoned", stored-live, "live", live)

	if dryRun {
		log.Info("dry run: nothing purged")
		return
	}

	purged, err := db.CompactRecords(ctx)
	if err != nil {
		log.Error("compaction failed", "error", err)
		os.Exit(1)
	}
	saveCheckpoint(ctx, db, log)
	log.Info("compaction complete", "purged", purged)
}

func runVerify(ctx context.Context, db *storage.DB, log *slog.Logger) {
	report, err := db.VerifyIntegrity(ctx)
	if err != nil {
		log.Error("integrity check failed", "error", err)
		os.Exit(1)
	}
	log.Info("integrity report",
		"ok", report.OK,
		"previous", report.PreviousCount,
		"current", report.CurrentCount,
		"tolerance", report.Tolerance,
		"message", report.Message,
	)
	if !report.OK {
		os.Exit(2)
	}
}

func saveCheckpoint(ctx context.Context, db *storage.DB, log *slog.Logger) {
	count, err := db.CountRecords(ctx)
	if err != nil {
		log.Warn("checkpoint count failed", "error", err)
		return
	}
	latest, err := db.LatestRecordTime(ctx)
	if err != nil {
		log.Warn("checkpoint latest-ts failed", "error", err)
		return
	}
	if err := db.SaveCheckpoint(ctx, count, latest); err != nil {
		log.Warn("saving checkpoint failed", "error", err)
	}
}
