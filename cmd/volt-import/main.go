package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/voltbora/volt/internal/app"
	"github.com/voltbora/volt/internal/config"
	"github.com/voltbora/volt/internal/ingest"
	"github.com/voltbora/volt/internal/ingest/alpha"
	"github.com/voltbora/volt/internal/models"
	"github.com/voltbora/volt/internal/storage"
	"github.com/voltbora/volt/internal/tracker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	file := flag.String("file", "", "path to an Alpha Progression CSV export (required)")
	userID := flag.Int("user", models.AnonymousUserID, "user to import for")
	migrationsPath := flag.String("migrations", "migrations", "path to migration files")
	dryRun := flag.Bool("dry-run", false, "parse and report counts without recording anything")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *file == "" {
		fmt.Fprintf(os.Stderr, "Usage: volt-import -config config.yaml -file export.csv [-user N] [-dry-run]\n")
		flag.PrintDefaults()
		os.Exit(1)
	}
	if *userID < 0 {
		log.Error("user must not be negative", "user", *userID)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	f, err := os.Open(*file)
	if err != nil {
		log.Error("failed to open export", "path", *file, "error", err)
		os.Exit(1)
	}
	defer f.Close()

	if *dryRun {
		log.Info("DRY RUN mode, nothing will be recorded")
		sessions, err := alpha.Parse(f, cfg.Game.Location())
		if err != nil {
			log.Error("parse failed", "error", err)
			os.Exit(1)
		}
		stats := &ingest.Result{SessionsReceived: len(sessions)}
		for _, s := range sessions {
			stats.SetsReceived += len(alpha.ToWorkoutSession(s, *userID).Exercises)
		}
		printStats(log, stats)
		return
	}

	ctx := context.Background()
	a, err := app.Open(ctx, cfg, log, app.Options{MigrationsPath: *migrationsPath})
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	start := time.Now()
	stats, importErr := a.Alpha.Ingest(ctx, f, *userID)
	if a.DB != nil && *userID != models.AnonymousUserID {
		recordImportLog(ctx, log, a.DB, *userID, stats, importErr, time.Since(start))
	}
	if importErr != nil {
		log.Error("import failed", "error", importErr)
		os.Exit(1)
	}
	printStats(log, stats)

	res, err := a.Trackers.Init(ctx, *userID).Refresh(ctx)
	if err != nil {
		log.Error("recompute failed", "error", err)
		os.Exit(1)
	}
	printProgress(log, res)
	log.Info("import complete")
}

func recordImportLog(ctx context.Context, log *slog.Logger, db *storage.DB, userID int, stats *ingest.Result, importErr error, elapsed time.Duration) {
	entry := storage.ImportLog{UserID: userID, Source: "alpha_progression_cli", Status: "success"}
	if importErr != nil {
		msg := importErr.Error()
		entry.Status = "error"
		entry.ErrorMessage = &msg
	}
	if stats != nil {
		entry.SessionsReceived = stats.SessionsReceived
		entry.SessionsInserted = stats.SessionsInserted
		entry.SessionsRejected = stats.SessionsRejected
		entry.SetsReceived = stats.SetsReceived
	}
	ms := int(elapsed.Milliseconds())
	entry.DurationMs = &ms
	if _, err := db.InsertImportLog(ctx, entry); err != nil {
		log.Warn("failed to record import log", "error", err)
	}
}

func printStats(log *slog.Logger, stats *ingest.Result) {
	log.Info("import stats",
		"sessions_received", stats.SessionsReceived,
		"sessions_inserted", stats.SessionsInserted,
		"sessions_skipped", stats.SessionsSkipped,
		"sessions_rejected", stats.SessionsRejected,
		"sets_received", stats.SetsReceived,
	)
	if len(stats.RejectedReasons) > 0 {
		log.Info("rejected sessions", "reasons", stats.RejectedReasons)
	}
}

func printProgress(log *slog.Logger, res *tracker.Result) {
	log.Info("progress",
		"level", res.Snapshot.Level,
		"xp", res.Snapshot.TotalXP,
		"streak", res.Streak.Current,
		"total_sessions", res.Snapshot.TotalSessions,
	)
	for _, a := range res.NewlyUnlocked {
		log.Info("achievement unlocked", "id", a.ID, "title", a.Title)
	}
	if res.Degraded.Any() {
		log.Warn("recompute ran degraded", "degraded", fmt.Sprintf("%+v", res.Degraded))
	}
}
