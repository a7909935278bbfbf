package ranking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/voltbora/volt/internal/models"
)

// fakeTable is an in-memory Table with switchable read failure.
type fakeTable struct {
	mu       sync.Mutex
	rows     map[int]models.RankingEntry
	failRead bool
	reads    int
}

func newFakeTable() *fakeTable {
	return &fakeTable{rows: map[int]models.RankingEntry{}}
}

func (f *fakeTable) UpsertRanking(_ context.Context, e models.RankingEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[e.UserID] = e
	return nil
}

func (f *fakeTable) TopRankings(_ context.Context, periodStart time.Time, limit int) ([]models.RankingEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.failRead {
		return nil, errors.New("connection refused")
	}
	var out []models.RankingEntry
	for _, e := range f.rows {
		if e.PeriodStart.Equal(periodStart) {
			out = append(out, e)
		}
	}
	out = RankPeriod(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var period = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func entry(uid int, score float64) models.RankingEntry {
	return models.RankingEntry{UserID: uid, PeriodStart: period, Score: score}
}

// TestLeaderboardRanksAndFindsSelf verifies published rows are ranked and the caller located.
func TestLeaderboardRanksAndFindsSelf(t *testing.T) {
	table := newFakeTable()
	b := NewBoard(table, quietLogger(), 1, time.Minute)
	ctx := context.Background()

	for uid, score := range map[int]float64{1: 30, 2: 80, 3: 55} {
		if err := b.Publish(ctx, entry(uid, score)); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	lb := b.Leaderboard(ctx, 10, entry(3, 55))
	if lb.Degraded {
		t.Fatal("unexpected degraded read")
	}
	if len(lb.Entries) != 3 || lb.Entries[0].UserID != 2 || lb.Entries[2].UserID != 1 {
		t.Errorf("entries = %+v", lb.Entries)
	}
	if lb.Self.UserID != 3 || lb.Self.Position != 2 {
		t.Errorf("self = %+v, want user 3 at position 2", lb.Self)
	}
}

// TestLeaderboardSelfOutsideTopN verifies a caller outside the top-N stays unranked.
func TestLeaderboardSelfOutsideTopN(t *testing.T) {
	table := newFakeTable()
	b := NewBoard(table, quietLogger(), 1, time.Minute)
	ctx := context.Background()
	for uid := 1; uid <= 5; uid++ {
		b.Publish(ctx, entry(uid, float64(uid*10)))
	}

	lb := b.Leaderboard(ctx, 2, entry(1, 10))
	if len(lb.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(lb.Entries))
	}
	if lb.Self.Position != 0 {
		t.Errorf("self position = %d, want 0", lb.Self.Position)
	}
}

// TestLeaderboardDegradesToSelf verifies a table outage returns only the caller, unranked.
func TestLeaderboardDegradesToSelf(t *testing.T) {
	table := newFakeTable()
	table.failRead = true
	b := NewBoard(table, quietLogger(), 1, time.Minute)
	degraded := 0
	b.OnDegraded(func() { degraded++ })

	self := entry(9, 42)
	self.Position = 3
	lb := b.Leaderboard(context.Background(), 10, self)
	if !lb.Degraded {
		t.Error("expected Degraded")
	}
	if len(lb.Entries) != 1 || lb.Entries[0].UserID != 9 || lb.Entries[0].Position != 0 {
		t.Errorf("entries = %+v, want only own unranked entry", lb.Entries)
	}
	if lb.Self.Position != 0 {
		t.Errorf("self position = %d, want 0", lb.Self.Position)
	}
	if degraded != 1 {
		t.Errorf("degraded hook called %d times, want 1", degraded)
	}
}

// TestLeaderboardCached verifies repeated reads within the TTL hit the cache.
func TestLeaderboardCached(t *testing.T) {
	table := newFakeTable()
	b := NewBoard(table, quietLogger(), 1, time.Minute)
	ctx := context.Background()
	b.Publish(ctx, entry(1, 10))

	b.Leaderboard(ctx, 10, entry(1, 10))
	b.Leaderboard(ctx, 10, entry(1, 10))
	if table.reads != 1 {
		t.Errorf("table reads = %d, want 1", table.reads)
	}

	// A cached read survives a later outage.
	table.failRead = true
	if lb := b.Leaderboard(ctx, 10, entry(1, 10)); lb.Degraded {
		t.Error("cached read should not degrade")
	}
}
