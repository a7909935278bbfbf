package tracker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/voltbora/volt/internal/achievements"
	"github.com/voltbora/volt/internal/calendar"
	"github.com/voltbora/volt/internal/kv"
	"github.com/voltbora/volt/internal/metrics"
	"github.com/voltbora/volt/internal/models"
	"github.com/voltbora/volt/internal/progress"
	"github.com/voltbora/volt/internal/ranking"
)

var errDown = errors.New("store down")

type fakeHistory struct {
	mu        sync.Mutex
	sessions  []models.WorkoutSession
	failGet   bool
	stale     bool
	lastLimit int
}

// GetWorkoutHistory honors limit in insertion order.
func (f *fakeHistory) GetWorkoutHistory(_ context.Context, userID, limit int) ([]models.WorkoutSession, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLimit = limit
	if f.failGet {
		return nil, true, errDown
	}
	var out []models.WorkoutSession
	for _, s := range f.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, f.stale, nil
}

func (f *fakeHistory) Record(_ context.Context, s models.WorkoutSession) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.sessions {
		if e.ID == s.ID {
			return false, nil
		}
	}
	f.sessions = append(f.sessions, s)
	return true, nil
}

type fakeState struct {
	mu       sync.Mutex
	data     map[int][]models.AchievementState
	failLoad bool
	failSave bool
	saves    int
}

func newFakeState() *fakeState {
	return &fakeState{data: map[int][]models.AchievementState{}}
}

func (f *fakeState) Load(_ context.Context, userID int) ([]models.AchievementState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLoad {
		return nil, errDown
	}
	return append([]models.AchievementState(nil), f.data[userID]...), nil
}

func (f *fakeState) Save(_ context.Context, userID int, state []models.AchievementState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSave {
		return errDown
	}
	f.saves++
	f.data[userID] = append([]models.AchievementState(nil), state...)
	return nil
}

type fakeBoard struct {
	mu          sync.Mutex
	published   []models.RankingEntry
	failPublish bool
}

func (f *fakeBoard) Publish(_ context.Context, e models.RankingEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPublish {
		return errDown
	}
	f.published = append(f.published, e)
	return nil
}

func (f *fakeBoard) Leaderboard(_ context.Context, _ int, self models.RankingEntry) ranking.Leaderboard {
	self.Position = 1
	return ranking.Leaderboard{PeriodStart: self.PeriodStart, Entries: []models.RankingEntry{self}, Self: self}
}

type fakeUsers map[int]models.User

func (f fakeUsers) GetUser(_ context.Context, id int) (models.User, error) {
	u, ok := f[id]
	if !ok {
		return models.User{}, errors.New("no such user")
	}
	return u, nil
}

// Wednesday evening.
var now = time.Date(2024, 1, 10, 20, 0, 0, 0, time.UTC)

func weekOfSessions(uid int) []models.WorkoutSession {
	var out []models.WorkoutSession
	for i := 0; i < 7; i++ {
		out = append(out, models.WorkoutSession{
			ID:          uuid.New(),
			UserID:      uid,
			StartedAt:   now.AddDate(0, 0, -i).Add(-10 * time.Hour),
			DurationMin: 30,
			Exercises:   []models.ExerciseEntry{{Name: "Squat", WeightKg: 100}},
		})
	}
	return out
}

type fixture struct {
	history *fakeHistory
	state   *fakeState
	board   *fakeBoard
	factory *Factory
	metrics *metrics.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		history: &fakeHistory{},
		state:   newFakeState(),
		board:   &fakeBoard{},
		metrics: metrics.NewTestManager(),
	}
	catalog := achievements.DefaultCatalog()
	f.factory = NewFactory(Deps{
		History:  f.history,
		State:    f.state,
		Engine:   achievements.NewEngine(catalog),
		Progress: progress.NewAggregator(catalog, 100, 4),
		Scorer:   ranking.NewScorer(30, 4, 10000, 20, time.UTC),
		Board:    f.board,
		Users:    fakeUsers{1: {ID: 1, DisplayName: "Ada", CreatedAt: now.AddDate(-1, 0, 0)}},
		Clock:    calendar.FixedClock{T: now},
		Location: time.UTC,
		Metrics:  f.metrics,
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return f
}

func hasView(views []models.AchievementView, id string) bool {
	for _, v := range views {
		if v.ID == id {
			return true
		}
	}
	return false
}

// TestRefreshUnlocksOnce verifies a new unlock is reported once, persisted, and
// not reported again by the next pass.
func TestRefreshUnlocksOnce(t *testing.T) {
	f := newFixture(t)
	f.history.sessions = weekOfSessions(1)
	tr := f.factory.Init(context.Background(), 1)

	first, err := tr.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !hasView(first.NewlyUnlocked, "streak_7") || !hasView(first.NewlyUnlocked, "first_workout") {
		t.Errorf("newly unlocked = %v", first.NewlyUnlocked)
	}
	if first.Streak.Current != 7 || first.Degraded.Any() {
		t.Errorf("streak = %+v, degraded = %+v", first.Streak, first.Degraded)
	}
	if f.state.saves != 1 {
		t.Errorf("saves = %d, want 1", f.state.saves)
	}

	second, _ := tr.Refresh(context.Background())
	if len(second.NewlyUnlocked) != 0 {
		t.Errorf("second pass unlocked %v", second.NewlyUnlocked)
	}
	if f.state.saves != 1 {
		t.Errorf("unchanged state saved again: saves = %d", f.state.saves)
	}
	if second.Snapshot.TotalXP != first.Snapshot.TotalXP {
		t.Errorf("XP moved from %d to %d", first.Snapshot.TotalXP, second.Snapshot.TotalXP)
	}
}

// TestRefreshPublishesRanking verifies the user's own row is published with profile data.
func TestRefreshPublishesRanking(t *testing.T) {
	f := newFixture(t)
	f.history.sessions = weekOfSessions(1)
	res, _ := f.factory.Init(context.Background(), 1).Refresh(context.Background())

	if len(f.board.published) != 1 {
		t.Fatalf("published %d rows, want 1", len(f.board.published))
	}
	e := f.board.published[0]
	if e.UserID != 1 || e.DisplayName != "Ada" || e.WorkoutCount != 7 || e.TotalVolumeKg != 700 {
		t.Errorf("entry = %+v", e)
	}
	if res.Ranking == nil || res.Ranking.Score != e.Score {
		t.Errorf("result ranking = %+v", res.Ranking)
	}
}

// TestRefreshHistoryOutageKeepsLastResult verifies an outage shows the last good
// numbers instead of zeros.
func TestRefreshHistoryOutageKeepsLastResult(t *testing.T) {
	f := newFixture(t)
	f.history.sessions = weekOfSessions(1)
	tr := f.factory.Init(context.Background(), 1)
	good, _ := tr.Refresh(context.Background())

	f.history.failGet = true
	res, err := tr.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !res.Degraded.HistoryUnavailable {
		t.Error("expected HistoryUnavailable")
	}
	if res.Snapshot.TotalXP != good.Snapshot.TotalXP || res.Streak != good.Streak {
		t.Errorf("degraded result lost data: %+v", res.Snapshot)
	}
	if len(res.NewlyUnlocked) != 0 {
		t.Error("degraded result re-reported unlocks")
	}
}

// TestRefreshStateUnavailableWithoutCache verifies that without readable state
// nothing is persisted and nothing is announced, but progress is still shown.
func TestRefreshStateUnavailableWithoutCache(t *testing.T) {
	f := newFixture(t)
	f.history.sessions = weekOfSessions(1)
	f.state.failLoad = true

	res, _ := f.factory.Init(context.Background(), 1).Refresh(context.Background())
	if !res.Degraded.StateUnavailable {
		t.Error("expected StateUnavailable")
	}
	if len(res.NewlyUnlocked) != 0 {
		t.Errorf("announced %d unlocks against unknown state", len(res.NewlyUnlocked))
	}
	if f.state.saves != 0 {
		t.Error("state persisted from a stand-in")
	}
	if res.Streak.Current != 7 || len(res.Achievements) == 0 {
		t.Errorf("display not computed: streak %+v, %d achievements", res.Streak, len(res.Achievements))
	}
}

// TestRefreshStateUnavailableUsesCache verifies the last known state is used once loaded.
func TestRefreshStateUnavailableUsesCache(t *testing.T) {
	f := newFixture(t)
	f.history.sessions = weekOfSessions(1)
	tr := f.factory.Init(context.Background(), 1)
	tr.Refresh(context.Background())

	f.state.failLoad = true
	res, _ := tr.Refresh(context.Background())
	if !res.Degraded.StateUnavailable || len(res.NewlyUnlocked) != 0 {
		t.Errorf("degraded = %+v, newly = %v", res.Degraded, res.NewlyUnlocked)
	}
	if !hasUnlocked(res.Achievements, "streak_7") {
		t.Error("cached unlock lost")
	}
}

func hasUnlocked(views []models.AchievementView, id string) bool {
	for _, v := range views {
		if v.ID == id {
			return v.Unlocked
		}
	}
	return false
}

// TestRefreshSaveAndPublishFailures verifies write failures become flags, not errors.
func TestRefreshSaveAndPublishFailures(t *testing.T) {
	f := newFixture(t)
	f.history.sessions = weekOfSessions(1)
	f.state.failSave = true
	f.board.failPublish = true

	res, err := f.factory.Init(context.Background(), 1).Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !res.Degraded.StateNotSaved || !res.Degraded.RankingNotPublished {
		t.Errorf("degraded = %+v", res.Degraded)
	}
}

// TestRecordRecomputes verifies recording a session triggers a recomputation.
func TestRecordRecomputes(t *testing.T) {
	f := newFixture(t)
	tr := f.factory.Init(context.Background(), 1)

	s := models.WorkoutSession{ID: uuid.New(), UserID: 99, StartedAt: now.Add(-time.Hour)}
	res, inserted, err := tr.Record(context.Background(), s)
	if err != nil || !inserted {
		t.Fatalf("record = %v, %v", inserted, err)
	}
	if !hasView(res.NewlyUnlocked, "first_workout") {
		t.Errorf("newly unlocked = %v", res.NewlyUnlocked)
	}
	if f.history.sessions[0].UserID != 1 {
		t.Error("session not re-owned by the tracker's user")
	}

	_, inserted, _ = tr.Record(context.Background(), s)
	if inserted {
		t.Error("duplicate session inserted")
	}
}

// TestConcurrentRefreshSerialized verifies concurrent passes on one user report an
// unlock exactly once.
func TestConcurrentRefreshSerialized(t *testing.T) {
	f := newFixture(t)
	f.history.sessions = weekOfSessions(1)

	var mu sync.Mutex
	unlocks := 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.factory.Init(context.Background(), 1).Refresh(context.Background())
			if err != nil {
				t.Error(err)
				return
			}
			if hasView(res.NewlyUnlocked, "streak_7") {
				mu.Lock()
				unlocks++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if unlocks != 1 {
		t.Errorf("streak_7 reported %d times, want 1", unlocks)
	}
}

// TestLeaderboardAnonymous verifies the anonymous user only sees their own unranked row.
func TestLeaderboardAnonymous(t *testing.T) {
	f := newFixture(t)
	f.history.sessions = weekOfSessions(models.AnonymousUserID)

	lb, err := f.factory.Init(context.Background(), models.AnonymousUserID).Leaderboard(context.Background(), 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if !lb.Degraded || len(lb.Entries) != 1 || lb.Self.Position != 0 {
		t.Errorf("leaderboard = %+v", lb)
	}
	if len(f.board.published) != 0 {
		t.Error("anonymous ranking published")
	}
}

// TestLeaderboardUsesBoard verifies registered users read through the board.
func TestLeaderboardUsesBoard(t *testing.T) {
	f := newFixture(t)
	f.history.sessions = weekOfSessions(1)

	lb, _ := f.factory.Init(context.Background(), 1).Leaderboard(context.Background(), 10)
	if lb.Degraded || lb.Self.Position != 1 || lb.Self.WorkoutCount != 7 {
		t.Errorf("leaderboard = %+v", lb)
	}
}

// TestFactoryLifecycle verifies trackers are shared per user and released by Teardown.
func TestFactoryLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.factory.Init(ctx, 1)
	if b := f.factory.Init(ctx, 1); a != b {
		t.Error("same user got two trackers")
	}
	if c := f.factory.Init(ctx, 2); c == a {
		t.Error("different users share a tracker")
	}
	if f.factory.Active() != 2 {
		t.Errorf("active = %d, want 2", f.factory.Active())
	}

	a.Teardown()
	a.Teardown()
	if _, err := a.Refresh(ctx); !errors.Is(err, ErrTornDown) {
		t.Errorf("refresh after teardown: %v", err)
	}
	if f.factory.Active() != 1 {
		t.Errorf("active = %d, want 1", f.factory.Active())
	}
	if d := f.factory.Init(ctx, 1); d == a {
		t.Error("torn-down tracker handed out again")
	}
}

// stepClock is a Clock tests can move.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *stepClock) set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

// memKV is an in-memory kv.Store with a failure switch.
type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
	down bool
}

func newMemKV() *memKV {
	return &memKV{data: map[string][]byte{}}
}

func (m *memKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return nil, errDown
	}
	v, ok := m.data[key]
	if !ok {
		return nil, kv.ErrNotFound
	}
	return v, nil
}

func (m *memKV) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return errDown
	}
	m.data[key] = value
	return nil
}

// TestUnlockSurvivesHostedOutage verifies an unlock made while the hosted store
// was down is neither lost nor reported again once it recovers.
func TestUnlockSurvivesHostedOutage(t *testing.T) {
	f := newFixture(t)
	hosted, local := newMemKV(), newMemKV()
	clock := &stepClock{t: now.AddDate(0, 0, -1)}
	f.factory.deps.State = achievements.NewStore(kv.NewChain(f.factory.deps.Log, hosted, local), achievements.DefaultCatalog())
	f.factory.deps.Clock = clock
	ctx := context.Background()

	week := weekOfSessions(1)
	f.history.sessions = week[1:]
	tr := f.factory.Init(ctx, 1)
	if _, err := tr.Refresh(ctx); err != nil {
		t.Fatalf("day 6: %v", err)
	}

	hosted.down = true
	clock.set(now)
	f.history.sessions = week
	res, err := tr.Refresh(ctx)
	if err != nil {
		t.Fatalf("day 7: %v", err)
	}
	if !hasView(res.NewlyUnlocked, "streak_7") {
		t.Fatalf("day 7 newly unlocked = %v, want streak_7", res.NewlyUnlocked)
	}

	hosted.down = false
	res, err = tr.Refresh(ctx)
	if err != nil {
		t.Fatalf("recovered: %v", err)
	}
	if hasView(res.NewlyUnlocked, "streak_7") {
		t.Error("streak_7 reported again after the hosted store recovered")
	}

	clock.set(now.AddDate(0, 0, 13))
	f.factory.Teardown(1)
	res, err = f.factory.Init(ctx, 1).Refresh(ctx)
	if err != nil {
		t.Fatalf("day 20: %v", err)
	}
	for _, v := range res.Achievements {
		if v.ID == "streak_7" && !v.Unlocked {
			t.Errorf("day 20 streak_7 = %+v, want still unlocked", v)
		}
	}
	if res.Streak.Current != 0 {
		t.Errorf("day 20 streak = %d, want broken", res.Streak.Current)
	}
}

// TestRefreshUsesFullHistory verifies lifetime totals cover every session.
func TestRefreshUsesFullHistory(t *testing.T) {
	f := newFixture(t)
	tr := f.factory.Init(context.Background(), 1)

	var res *Result
	for i := 0; i < 5; i++ {
		var err error
		res, _, err = tr.Record(context.Background(), models.WorkoutSession{
			ID:        uuid.New(),
			StartedAt: now.AddDate(0, 0, -i),
			Exercises: []models.ExerciseEntry{{Name: "Squat", WeightKg: 100}},
		})
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	if f.history.lastLimit > 0 {
		t.Errorf("history read with limit %d, want all sessions", f.history.lastLimit)
	}
	if res.Snapshot.TotalSessions != 5 || res.Snapshot.TotalVolumeKg != 500 {
		t.Errorf("snapshot = %+v, want 5 sessions and 500 kg", res.Snapshot)
	}
}
