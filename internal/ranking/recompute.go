package ranking

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voltbora/volt/internal/calendar"
	"github.com/voltbora/volt/internal/models"
)

// Roster is the hosted data a full recomputation reads and writes.
type Roster interface {
	Table
	ListUsers(ctx context.Context) ([]models.User, error)
	SessionsSince(ctx context.Context, userID int, since time.Time) ([]models.WorkoutSession, error)
}

// RecomputeStats summarizes a RecomputeAll run.
type RecomputeStats struct {
	PeriodStart time.Time
	Users       int
	Published   int
	Failed      int
}

// RecomputeAll rescores every registered user for the period ending on asOf's
// date and upserts their rows. A user whose sessions cannot be read or whose
// row cannot be written is counted as failed; the run continues. At most
// concurrency users are processed at once; a non-positive value means no limit.
func (s *Scorer) RecomputeAll(ctx context.Context, roster Roster, asOf time.Time, concurrency int, log *slog.Logger) (RecomputeStats, error) {
	asOf = asOf.In(s.Location)
	periodStart := PeriodStart(asOf, s.PeriodDays)
	stats := RecomputeStats{PeriodStart: periodStart.Start(s.Location)}

	users, err := roster.ListUsers(ctx)
	if err != nil {
		return stats, fmt.Errorf("listing users: %w", err)
	}
	stats.Users = len(users)

	var published, failed atomic.Int64
	grp, gctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		grp.SetLimit(concurrency)
	}
	for _, u := range users {
		grp.Go(func() error {
			if err := s.recomputeUser(gctx, roster, u, periodStart, asOf); err != nil {
				log.Warn("ranking recompute failed", "user_id", u.ID, "error", err)
				failed.Add(1)
				return nil
			}
			published.Add(1)
			return nil
		})
	}
	_ = grp.Wait()

	stats.Published = int(published.Load())
	stats.Failed = int(failed.Load())
	return stats, ctx.Err()
}

func (s *Scorer) recomputeUser(ctx context.Context, roster Roster, u models.User, periodStart calendar.Date, asOf time.Time) error {
	sessions, err := roster.SessionsSince(ctx, u.ID, periodStart.Start(s.Location))
	if err != nil {
		return err
	}
	agg := Aggregate(u.ID, u.CreatedAt, sessions, periodStart, asOf)
	agg.DisplayName = u.DisplayName
	return roster.UpsertRanking(ctx, s.Entry(agg))
}
