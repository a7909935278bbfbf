// Package app wires the stores, gamification core and metrics shared by the
// volt binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/voltbora/volt/internal/achievements"
	"github.com/voltbora/volt/internal/calendar"
	"github.com/voltbora/volt/internal/config"
	"github.com/voltbora/volt/internal/history"
	"github.com/voltbora/volt/internal/ingest/alpha"
	"github.com/voltbora/volt/internal/kv"
	"github.com/voltbora/volt/internal/metrics"
	"github.com/voltbora/volt/internal/progress"
	"github.com/voltbora/volt/internal/ranking"
	"github.com/voltbora/volt/internal/storage"
	"github.com/voltbora/volt/internal/tracker"
)

// App holds the wired components. DB and Board are nil in local-only mode.
type App struct {
	Config   *config.Config
	DB       *storage.DB
	Local    *kv.LocalStore
	Registry *prometheus.Registry
	Metrics  *metrics.Manager
	Catalog  achievements.Catalog
	History  *history.Service
	Board    *ranking.Board
	Scorer   *ranking.Scorer
	Trackers *tracker.Factory
	Alpha    *alpha.Provider
}

// Options tune Open.
type Options struct {
	// MigrationsPath is applied to the hosted database before connecting.
	// Empty skips migrations.
	MigrationsPath string
	// Clock defaults to the system clock.
	Clock calendar.Clock
}

// Open connects the configured stores and builds the tracker factory. A
// configured hosted database that cannot be reached is an error; the service
// degrades around outages later on, not around a wrong configuration.
func Open(ctx context.Context, cfg *config.Config, log *slog.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Catalog: achievements.DefaultCatalog()}
	if err := a.Catalog.Validate(); err != nil {
		return nil, fmt.Errorf("achievement catalog: %w", err)
	}

	var extra []prometheus.Collector
	if cfg.Database.Hosted() {
		dsn := cfg.Database.DSN()
		if opts.MigrationsPath != "" {
			if err := storage.RunMigrations(dsn, opts.MigrationsPath); err != nil {
				return nil, fmt.Errorf("running migrations: %w", err)
			}
			log.Info("migrations applied")
		}
		db, err := storage.New(ctx, dsn)
		if err != nil {
			return nil, err
		}
		a.DB = db
		extra = append(extra, metrics.PoolCollector(db.Pool, cfg.Database.Name))
		log.Info("database connected")
	} else {
		log.Info("no hosted database configured, running local-only")
	}

	local, err := kv.OpenLocal(cfg.Local.StateDir)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Local = local

	a.Registry = metrics.SetupPrometheus(extra...)
	a.Metrics = metrics.NewManager("volt", "main", a.Registry)

	// Optional collaborators stay nil interfaces in local-only mode.
	var (
		hostedKV kv.Store
		source   history.Source
		board    tracker.Board
		users    tracker.Users
	)
	if a.DB != nil {
		hostedKV = kv.NewHosted(a.DB.Pool)
		source = a.DB
		users = a.DB
		a.Board = ranking.NewBoard(a.DB, log, cfg.Cache.SizeMB, cfg.Cache.LeaderboardTTL())
		a.Board.OnDegraded(a.Metrics.CounterLeaderboardDegraded.Inc)
		board = a.Board
	}

	chain := kv.NewChain(log, hostedKV, local)
	chain.OnFallback(func(op string) {
		a.Metrics.CounterStorageFallbacks.WithLabelValues(op).Inc()
	})

	a.History = history.NewService(source, local, log)
	a.History.OnStale(a.Metrics.CounterStaleHistoryReads.Inc)

	loc := cfg.Game.Location()
	a.Scorer = ranking.NewScorer(cfg.Game.RankingPeriodDays, cfg.Game.WeeklyGoal,
		cfg.Game.RankingVolumeTargetKg, cfg.Game.RankingWorkoutTarget, loc)

	clock := opts.Clock
	if clock == nil {
		clock = calendar.SystemClock{}
	}
	a.Trackers = tracker.NewFactory(tracker.Deps{
		History:  a.History,
		State:    achievements.NewStore(chain, a.Catalog),
		Engine:   achievements.NewEngine(a.Catalog),
		Progress: progress.NewAggregator(a.Catalog, cfg.Game.XPPerLevel, cfg.Game.WeeklyGoal),
		Scorer:   a.Scorer,
		Board:    board,
		Users:    users,
		Clock:    clock,
		Location: loc,
		Metrics:  a.Metrics,
		Log:      log,
	})
	a.Alpha = alpha.NewProvider(a.History, loc, log)
	return a, nil
}

// Close releases the stores.
func (a *App) Close() {
	if a.Local != nil {
		a.Local.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
