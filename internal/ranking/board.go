package ranking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/coocood/freecache"

	"github.com/voltbora/volt/internal/models"
)

const (
	megabyte          = 1024 * 1024
	defaultCacheMB    = 8
	defaultCacheTTL   = 60 * time.Second
	maxLeaderboardLen = 100
)

// Table is the hosted period-scoped ranking table. Rows are keyed by
// (user, period start) and each user only ever writes their own row.
type Table interface {
	UpsertRanking(ctx context.Context, e models.RankingEntry) error
	TopRankings(ctx context.Context, periodStart time.Time, limit int) ([]models.RankingEntry, error)
}

// Leaderboard is a ranked read of one period.
type Leaderboard struct {
	PeriodStart time.Time             `json:"period_start"`
	Entries     []models.RankingEntry `json:"entries"`
	// Self is the requesting user's row. Position 0 means the user is outside
	// the returned top-N or positions could not be computed.
	Self     models.RankingEntry `json:"self"`
	Degraded bool                `json:"degraded"`
}

// Board publishes ranking rows and serves cached top-N reads.
type Board struct {
	table      Table
	cache      *freecache.Cache
	ttl        time.Duration
	log        *slog.Logger
	onDegraded func()
}

// NewBoard creates a Board with a read cache of cacheMB megabytes and the given TTL.
func NewBoard(table Table, log *slog.Logger, cacheMB int, ttl time.Duration) *Board {
	if cacheMB <= 0 {
		cacheMB = defaultCacheMB
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Board{
		table: table,
		cache: freecache.NewCache(cacheMB * megabyte),
		ttl:   ttl,
		log:   log,
	}
}

// OnDegraded registers a hook called whenever a read falls back to the caller's own row.
func (b *Board) OnDegraded(fn func()) {
	b.onDegraded = fn
}

// Publish upserts the user's own row. Cached reads of the period expire on
// their own TTL; readers are only promised eventual consistency.
func (b *Board) Publish(ctx context.Context, e models.RankingEntry) error {
	e.Position = 0
	if err := b.table.UpsertRanking(ctx, e); err != nil {
		return fmt.Errorf("publishing ranking for user %d: %w", e.UserID, err)
	}
	return nil
}

func cacheKey(periodStart time.Time, limit int) []byte {
	return []byte(fmt.Sprintf("leaderboard::%s::%d", periodStart.Format(time.DateOnly), limit))
}

// Leaderboard reads the top limit rows of the period containing self and ranks
// them. It never fails: if the table cannot be read, the result holds only
// self, unranked, with Degraded set.
func (b *Board) Leaderboard(ctx context.Context, limit int, self models.RankingEntry) Leaderboard {
	if limit <= 0 || limit > maxLeaderboardLen {
		limit = maxLeaderboardLen
	}
	self.Position = 0
	lb := Leaderboard{PeriodStart: self.PeriodStart, Self: self}

	rows, err := b.top(ctx, self.PeriodStart, limit)
	if err != nil {
		b.log.Warn("leaderboard unavailable, showing own entry only", "user_id", self.UserID, "error", err)
		if b.onDegraded != nil {
			b.onDegraded()
		}
		lb.Entries = []models.RankingEntry{self}
		lb.Degraded = true
		return lb
	}

	lb.Entries = RankPeriod(rows)
	for _, e := range lb.Entries {
		if e.UserID == self.UserID {
			lb.Self = e
			break
		}
	}
	return lb
}

func (b *Board) top(ctx context.Context, periodStart time.Time, limit int) ([]models.RankingEntry, error) {
	key := cacheKey(periodStart, limit)
	if data, err := b.cache.Get(key); err == nil {
		var rows []models.RankingEntry
		if err := json.Unmarshal(data, &rows); err == nil {
			return rows, nil
		}
		b.log.Error("failed to decode cached leaderboard", "period", periodStart.Format(time.DateOnly))
	}

	rows, err := b.table.TopRankings(ctx, periodStart, limit)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(rows); err == nil {
		if err := b.cache.Set(key, data, int(b.ttl.Seconds())); err != nil {
			b.log.Debug("leaderboard not cached", "error", err)
		}
	}
	return rows, nil
}
