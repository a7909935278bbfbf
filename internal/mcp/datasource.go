package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/voltbora/volt/internal/ingest"
	"github.com/voltbora/volt/internal/models"
	"github.com/voltbora/volt/internal/ranking"
	"github.com/voltbora/volt/internal/tracker"
)

// DataSource abstracts where tool data comes from. Local serves from the
// trackers of this process; HTTPClient calls a remote volt server.
type DataSource interface {
	Progress(ctx context.Context, userID int) (*tracker.Result, error)
	Leaderboard(ctx context.Context, userID, limit int) (ranking.Leaderboard, error)
	WorkoutHistory(ctx context.Context, userID, limit int) (*History, error)
	LogWorkout(ctx context.Context, userID int, p ingest.SessionPayload) (*tracker.Result, error)
}

// History is a page of workout history.
type History struct {
	Sessions []models.WorkoutSession `json:"sessions"`
	Stale    bool                    `json:"stale"`
}

// HistoryReader reads workout history.
type HistoryReader interface {
	GetWorkoutHistory(ctx context.Context, userID, limit int) ([]models.WorkoutSession, bool, error)
}

// Local implements DataSource in-process.
type Local struct {
	trackers *tracker.Factory
	history  HistoryReader
	loc      *time.Location
}

var (
	_ DataSource = (*Local)(nil)
	_ DataSource = (*HTTPClient)(nil)
)

// NewLocal creates a Local data source. Timestamps without a zone in logged
// workouts are read in loc.
func NewLocal(trackers *tracker.Factory, history HistoryReader, loc *time.Location) *Local {
	if loc == nil {
		loc = time.UTC
	}
	return &Local{trackers: trackers, history: history, loc: loc}
}

// withTracker runs fn against the user's tracker, retrying once with a fresh
// tracker if the first was torn down concurrently.
func (l *Local) withTracker(ctx context.Context, userID int, fn func(*tracker.Tracker) error) error {
	err := fn(l.trackers.Init(ctx, userID))
	if errors.Is(err, tracker.ErrTornDown) {
		err = fn(l.trackers.Init(ctx, userID))
	}
	return err
}

func (l *Local) Progress(ctx context.Context, userID int) (*tracker.Result, error) {
	var res *tracker.Result
	err := l.withTracker(ctx, userID, func(t *tracker.Tracker) error {
		var err error
		res, err = t.Refresh(ctx)
		return err
	})
	return res, err
}

func (l *Local) Leaderboard(ctx context.Context, userID, limit int) (ranking.Leaderboard, error) {
	var lb ranking.Leaderboard
	err := l.withTracker(ctx, userID, func(t *tracker.Tracker) error {
		var err error
		lb, err = t.Leaderboard(ctx, limit)
		return err
	})
	return lb, err
}

func (l *Local) WorkoutHistory(ctx context.Context, userID, limit int) (*History, error) {
	sessions, stale, err := l.history.GetWorkoutHistory(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []models.WorkoutSession{}
	}
	return &History{Sessions: sessions, Stale: stale}, nil
}

func (l *Local) LogWorkout(ctx context.Context, userID int, p ingest.SessionPayload) (*tracker.Result, error) {
	s, err := p.Normalize(userID, l.loc)
	if err != nil {
		return nil, err
	}
	var res *tracker.Result
	err = l.withTracker(ctx, userID, func(t *tracker.Tracker) error {
		var err error
		res, _, err = t.Record(ctx, s)
		return err
	})
	return res, err
}
