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
	"github.com/voltbora/volt/internal/ranking"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	migrationsPath := flag.String("migrations", "migrations", "path to migration files")
	concurrency := flag.Int("concurrency", 4, "users scored in parallel")
	limit := flag.Int("limit", 20, "leaderboard rows to print")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if !cfg.Database.Hosted() {
		log.Error("ranking needs a hosted database")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	a, err := app.Open(ctx, cfg, log, app.Options{MigrationsPath: *migrationsPath})
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	stats, err := a.Scorer.RecomputeAll(ctx, a.DB, time.Now(), *concurrency, log)
	log.Info("ranking stats",
		"period_start", stats.PeriodStart.Format(time.DateOnly),
		"users", stats.Users,
		"published", stats.Published,
		"failed", stats.Failed,
	)
	if err != nil {
		log.Error("ranking failed", "error", err)
		os.Exit(1)
	}

	top, err := a.DB.TopRankings(ctx, stats.PeriodStart, *limit)
	if err != nil {
		log.Error("reading leaderboard failed", "error", err)
		os.Exit(1)
	}
	for _, e := range ranking.RankPeriod(top) {
		name := e.DisplayName
		if name == "" {
			name = fmt.Sprintf("user %d", e.UserID)
		}
		fmt.Printf("%3d. %-24s score %6.2f  volume %10.1f kg  workouts %3d\n",
			e.Position, name, e.Score, e.TotalVolumeKg, e.WorkoutCount)
	}
}
