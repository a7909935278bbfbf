// Package tracker runs the gamification pipeline for one user at a time.
//
// A Tracker is the per-user context: it is created by Factory.Init, serializes
// that user's recomputations, and is released with Teardown on logout or user
// switch. Collaborator failures never surface as errors from a recomputation;
// they are reported through the Degraded flags of the Result.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voltbora/volt/internal/achievements"
	"github.com/voltbora/volt/internal/calendar"
	"github.com/voltbora/volt/internal/metrics"
	"github.com/voltbora/volt/internal/models"
	"github.com/voltbora/volt/internal/progress"
	"github.com/voltbora/volt/internal/ranking"
	"github.com/voltbora/volt/internal/streak"
)

// ErrTornDown is returned by a Tracker used after Teardown.
var ErrTornDown = errors.New("tracker torn down")

// History reads and records workout history.
type History interface {
	GetWorkoutHistory(ctx context.Context, userID, limit int) ([]models.WorkoutSession, bool, error)
	Record(ctx context.Context, s models.WorkoutSession) (bool, error)
}

// StateStore persists achievement state.
type StateStore interface {
	Load(ctx context.Context, userID int) ([]models.AchievementState, error)
	Save(ctx context.Context, userID int, state []models.AchievementState) error
}

// Board publishes and reads ranking rows.
type Board interface {
	Publish(ctx context.Context, e models.RankingEntry) error
	Leaderboard(ctx context.Context, limit int, self models.RankingEntry) ranking.Leaderboard
}

// Users resolves registered users.
type Users interface {
	GetUser(ctx context.Context, id int) (models.User, error)
}

// Deps are the collaborators shared by every tracker. Board and Users may be
// nil, which disables ranking and user lookups.
type Deps struct {
	History  History
	State    StateStore
	Engine   *achievements.Engine
	Progress *progress.Aggregator
	Scorer   *ranking.Scorer
	Board    Board
	Users    Users
	Clock    calendar.Clock
	Location *time.Location
	Metrics  *metrics.Manager
	Log      *slog.Logger
}

// Degraded lists what a Result had to do without.
type Degraded struct {
	// HistoryStale: history came from the local snapshot.
	HistoryStale bool `json:"history_stale,omitempty"`
	// HistoryUnavailable: no history could be read at all.
	HistoryUnavailable bool `json:"history_unavailable,omitempty"`
	// StateUnavailable: stored achievement state could not be read.
	StateUnavailable bool `json:"state_unavailable,omitempty"`
	// StateNotSaved: updated achievement state could not be written.
	StateNotSaved bool `json:"state_not_saved,omitempty"`
	// RankingNotPublished: the user's ranking row could not be written.
	RankingNotPublished bool `json:"ranking_not_published,omitempty"`
}

// Any reports whether any flag is set.
func (d Degraded) Any() bool {
	return d.HistoryStale || d.HistoryUnavailable || d.StateUnavailable || d.StateNotSaved || d.RankingNotPublished
}

// Result is the outcome of one recomputation pass.
type Result struct {
	UserID        int                      `json:"user_id"`
	AsOf          time.Time                `json:"as_of"`
	NewlyUnlocked []models.AchievementView `json:"newly_unlocked"`
	Achievements  []models.AchievementView `json:"achievements"`
	Snapshot      models.ProgressSnapshot  `json:"progress"`
	Streak        models.StreakState       `json:"streak"`
	Ranking       *models.RankingEntry     `json:"ranking,omitempty"`
	Degraded      Degraded                 `json:"degraded"`
}

// Tracker is the per-user gamification context.
type Tracker struct {
	factory *Factory
	deps    *Deps
	userID  int

	mu          sync.Mutex
	torn        bool
	user        models.User
	state       []models.AchievementState // last state read or written
	last        *Result
	lastRanking *models.RankingEntry
	lastHistory []models.WorkoutSession
}

// UserID returns the user this tracker belongs to.
func (t *Tracker) UserID() int {
	return t.userID
}

func (t *Tracker) now() time.Time {
	now := t.deps.Clock.Now()
	if t.deps.Location != nil {
		now = now.In(t.deps.Location)
	}
	return now
}

// Refresh recomputes streak, achievements, progress and ranking from history.
func (t *Tracker) Refresh(ctx context.Context) (*Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.torn {
		return nil, ErrTornDown
	}
	return t.refresh(ctx), nil
}

// Record stores a session for this user and recomputes.
func (t *Tracker) Record(ctx context.Context, s models.WorkoutSession) (*Result, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.torn {
		return nil, false, ErrTornDown
	}

	s.UserID = t.userID
	inserted, err := t.deps.History.Record(ctx, s)
	if err != nil {
		return nil, false, fmt.Errorf("recording session: %w", err)
	}
	if inserted && t.deps.Metrics != nil {
		t.deps.Metrics.CounterSessionsRecorded.Inc()
	}
	return t.refresh(ctx), inserted, nil
}

// Leaderboard returns the top limit rows of the current period with this
// user's own row. It recomputes first if the tracker has no ranking yet.
func (t *Tracker) Leaderboard(ctx context.Context, limit int) (ranking.Leaderboard, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.torn {
		return ranking.Leaderboard{}, ErrTornDown
	}

	if t.lastRanking == nil {
		t.refresh(ctx)
	}
	var self models.RankingEntry
	if t.lastRanking != nil {
		self = *t.lastRanking
	} else {
		self = t.ownEntry(nil, t.now())
	}
	if t.deps.Board == nil || t.userID == models.AnonymousUserID {
		self.Position = 0
		return ranking.Leaderboard{
			PeriodStart: self.PeriodStart,
			Entries:     []models.RankingEntry{self},
			Self:        self,
			Degraded:    true,
		}, nil
	}
	return t.deps.Board.Leaderboard(ctx, limit, self), nil
}

// Teardown releases the tracker. Later calls on it return ErrTornDown.
func (t *Tracker) Teardown() {
	t.mu.Lock()
	if t.torn {
		t.mu.Unlock()
		return
	}
	t.torn = true
	t.state, t.last, t.lastRanking, t.lastHistory = nil, nil, nil, nil
	t.mu.Unlock()

	t.factory.release(t)
}

// load reads history and stored state concurrently. Failures are returned
// separately so one does not cancel the other.
func (t *Tracker) load(ctx context.Context) (history []models.WorkoutSession, stale bool, histErr error, state []models.AchievementState, stateErr error) {
	var g errgroup.Group
	g.Go(func() error {
		// Lifetime totals need every session.
		history, stale, histErr = t.deps.History.GetWorkoutHistory(ctx, t.userID, 0)
		return nil
	})
	g.Go(func() error {
		state, stateErr = t.deps.State.Load(ctx, t.userID)
		return nil
	})
	_ = g.Wait()
	return
}

func (t *Tracker) refresh(ctx context.Context) *Result {
	start := time.Now()
	now := t.now()
	log := t.deps.Log.With("user_id", t.userID)
	res := &Result{UserID: t.userID, AsOf: now}

	history, stale, histErr, stored, stateErr := t.load(ctx)
	res.Degraded.HistoryStale = stale
	if histErr != nil {
		log.Warn("history unavailable", "error", histErr)
		res.Degraded.HistoryUnavailable = true
		if t.last != nil {
			// Keep showing the last good numbers rather than zeros.
			prev := *t.last
			prev.AsOf = now
			prev.NewlyUnlocked = nil
			prev.Degraded = res.Degraded
			t.observe("history_unavailable", start)
			return &prev
		}
		history = t.lastHistory
	} else {
		t.lastHistory = history
	}

	// persist is false when the starting state is a stand-in for stored state we
	// could not read: unlocks against it may be re-unlocks and must not be reported.
	persist := true
	switch {
	case stateErr == nil:
		t.state = stored
	case t.state != nil:
		log.Warn("achievement state unavailable, using last known state", "error", stateErr)
		res.Degraded.StateUnavailable = true
	default:
		log.Warn("achievement state unavailable, nothing cached", "error", stateErr)
		res.Degraded.StateUnavailable = true
		persist = false
	}

	catalog := t.deps.Engine.Catalog()
	check := t.deps.Engine.Check(history, t.state, now)
	if persist {
		if check.Changed {
			if err := t.deps.State.Save(ctx, t.userID, check.Updated); err != nil {
				log.Warn("failed to save achievement state", "error", err)
				res.Degraded.StateNotSaved = true
			}
		}
		t.state = check.Updated
		res.NewlyUnlocked = achievements.Views(catalog, check.NewlyUnlocked)
		t.countUnlocks(check.NewlyUnlocked)
	}
	res.Achievements = achievements.Views(catalog, check.Updated)

	res.Snapshot = t.deps.Progress.Compute(history, check.Updated, now)
	res.Streak = streak.Compute(history, now)

	if !res.Degraded.HistoryUnavailable {
		entry := t.ownEntry(history, now)
		if t.deps.Board != nil && t.userID != models.AnonymousUserID {
			if err := t.deps.Board.Publish(ctx, entry); err != nil {
				log.Warn("failed to publish ranking", "error", err)
				res.Degraded.RankingNotPublished = true
			}
		}
		res.Ranking = &entry
		t.lastRanking = &entry
	}

	outcome := "ok"
	if res.Degraded.Any() {
		outcome = "degraded"
	}
	t.observe(outcome, start)
	if len(res.NewlyUnlocked) > 0 {
		log.Info("achievements unlocked", "count", len(res.NewlyUnlocked))
	}
	t.last = res
	return res
}

func (t *Tracker) ownEntry(history []models.WorkoutSession, now time.Time) models.RankingEntry {
	periodStart := ranking.PeriodStart(now, t.deps.Scorer.PeriodDays)
	agg := ranking.Aggregate(t.userID, t.user.CreatedAt, history, periodStart, now)
	agg.DisplayName = t.user.DisplayName
	return t.deps.Scorer.Entry(agg)
}

func (t *Tracker) countUnlocks(unlocked []models.AchievementState) {
	if t.deps.Metrics == nil {
		return
	}
	catalog := t.deps.Engine.Catalog()
	for _, st := range unlocked {
		if d, ok := catalog.Lookup(st.ID); ok {
			t.deps.Metrics.CounterAchievementsUnlocked.WithLabelValues(string(d.Category)).Inc()
		}
	}
}

func (t *Tracker) observe(outcome string, start time.Time) {
	if t.deps.Metrics == nil {
		return
	}
	t.deps.Metrics.CounterRecomputes.WithLabelValues(outcome).Inc()
	t.deps.Metrics.HistRecomputeDuration.Observe(time.Since(start).Seconds())
}
