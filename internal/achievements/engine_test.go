package achievements

import (
	"reflect"
	"testing"
	"time"

	"github.com/voltbora/volt/internal/models"
)

var now = time.Date(2024, 1, 10, 18, 0, 0, 0, time.UTC) // Wednesday

func day(offset int, hour int) time.Time {
	d := now.AddDate(0, 0, offset)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, time.UTC)
}

func session(ts time.Time, weights ...float64) models.WorkoutSession {
	s := models.WorkoutSession{StartedAt: ts}
	for _, w := range weights {
		s.Exercises = append(s.Exercises, models.ExerciseEntry{Name: "Squat", WeightKg: w})
	}
	return s
}

func find(t *testing.T, state []models.AchievementState, id string) models.AchievementState {
	t.Helper()
	for _, st := range state {
		if st.ID == id {
			return st
		}
	}
	t.Fatalf("achievement %q not in state", id)
	return models.AchievementState{}
}

func stateIDs(states []models.AchievementState) []string {
	var ids []string
	for _, st := range states {
		ids = append(ids, st.ID)
	}
	return ids
}

// TestDefaultCatalogValid verifies the shipped catalog passes validation.
func TestDefaultCatalogValid(t *testing.T) {
	if err := DefaultCatalog().Validate(); err != nil {
		t.Fatalf("default catalog invalid: %v", err)
	}
}

// TestValidateRejectsBadDefinitions covers missing and duplicate IDs, zero targets and unknown rules.
func TestValidateRejectsBadDefinitions(t *testing.T) {
	tests := []struct {
		name string
		c    Catalog
	}{
		{"missing id", Catalog{{Category: models.CategoryMilestone, Target: 1}}},
		{"duplicate", Catalog{
			{ID: "a", Category: models.CategoryMilestone, Target: 1},
			{ID: "a", Category: models.CategoryMilestone, Target: 2},
		}},
		{"zero target", Catalog{{ID: "a", Category: models.CategoryVolume}}},
		{"unknown rule", Catalog{{ID: "a", Category: models.CategorySpecial, Target: 1, Rule: "moonwalk"}}},
		{"unknown window", Catalog{{ID: "a", Category: models.CategoryConsistency, Target: 1}}},
		{"unknown category", Catalog{{ID: "a", Category: "social", Target: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

// TestStreakUnlockReportedOnce verifies a 7-day streak unlocks streak_7 with progress 7
// and an unlock time, and that a second pass does not report it again.
func TestStreakUnlockReportedOnce(t *testing.T) {
	var history []models.WorkoutSession
	for i := -6; i <= 0; i++ {
		history = append(history, session(day(i, 9)))
	}
	e := NewEngine(DefaultCatalog())

	first := e.Check(history, nil, now)
	st := find(t, first.Updated, "streak_7")
	if !st.Unlocked || st.Progress != 7 || st.UnlockedAt == nil || !st.UnlockedAt.Equal(now) {
		t.Errorf("streak_7 = %+v, want unlocked with progress 7 at %v", st, now)
	}
	count := 0
	for _, u := range first.NewlyUnlocked {
		if u.ID == "streak_7" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("streak_7 reported %d times, want 1", count)
	}

	later := now.Add(time.Hour)
	second := e.Check(history, first.Updated, later)
	if len(second.NewlyUnlocked) != 0 {
		t.Errorf("second pass unlocked %v, want none", stateIDs(second.NewlyUnlocked))
	}
	if second.Changed {
		t.Error("second pass reported a change")
	}
	if st := find(t, second.Updated, "streak_7"); !st.UnlockedAt.Equal(now) {
		t.Errorf("unlock time moved to %v", st.UnlockedAt)
	}
}

// TestCheckIdempotent verifies two passes over the same inputs give identical state.
func TestCheckIdempotent(t *testing.T) {
	history := []models.WorkoutSession{
		session(day(-2, 6), 100, 100),
		session(day(-1, 22), 250),
		session(day(0, 8), 60, 60, 60),
	}
	e := NewEngine(DefaultCatalog())

	first := e.Check(history, nil, now)
	second := e.Check(history, first.Updated, now)
	if !reflect.DeepEqual(first.Updated, second.Updated) {
		t.Errorf("state changed on second pass:\nfirst  %+v\nsecond %+v", first.Updated, second.Updated)
	}
	if len(second.NewlyUnlocked) != 0 {
		t.Errorf("second pass unlocked %v", stateIDs(second.NewlyUnlocked))
	}
}

// TestProgressMonotonic verifies stored progress is kept when history shrinks
// (e.g. a truncated history read) and unlocked achievements stay unlocked.
func TestProgressMonotonic(t *testing.T) {
	e := NewEngine(DefaultCatalog())
	unlockedAt := now.Add(-48 * time.Hour)
	stored := []models.AchievementState{
		{ID: "workouts_10", Progress: 8},
		{ID: "first_workout", Progress: 1, Unlocked: true, UnlockedAt: &unlockedAt},
	}

	res := e.Check([]models.WorkoutSession{session(day(0, 9))}, stored, now)
	if got := find(t, res.Updated, "workouts_10"); got.Progress != 8 {
		t.Errorf("workouts_10 progress = %v, want 8 (no regression)", got.Progress)
	}
	if got := find(t, res.Updated, "first_workout"); !got.Unlocked || !got.UnlockedAt.Equal(unlockedAt) {
		t.Errorf("first_workout = %+v, want untouched unlocked state", got)
	}

	res = e.Check(nil, res.Updated, now)
	for _, before := range stored {
		after := find(t, res.Updated, before.ID)
		if after.Progress < before.Progress {
			t.Errorf("%s progress regressed %v -> %v", before.ID, before.Progress, after.Progress)
		}
		if before.Unlocked && !after.Unlocked {
			t.Errorf("%s relocked", before.ID)
		}
	}
}

// TestVolumeThreshold verifies volume_1000 unlocks at exactly 1000 kg but not at 999.99 kg.
func TestVolumeThreshold(t *testing.T) {
	e := NewEngine(DefaultCatalog())

	exact := []models.WorkoutSession{session(day(-1, 9), 300, 200.5), session(day(0, 9), 499.5)}
	if st := find(t, e.Check(exact, nil, now).Updated, "volume_1000"); !st.Unlocked {
		t.Errorf("1000 kg: volume_1000 = %+v, want unlocked", st)
	}

	short := []models.WorkoutSession{session(day(-1, 9), 300, 200.5), session(day(0, 9), 499.49)}
	st := find(t, e.Check(short, nil, now).Updated, "volume_1000")
	if st.Unlocked {
		t.Error("999.99 kg: volume_1000 should stay locked")
	}
	if st.Progress != 999.99 {
		t.Errorf("progress = %v, want 999.99", st.Progress)
	}
}

// TestDecimalVolumeSum verifies float noise does not keep an exact target locked.
func TestDecimalVolumeSum(t *testing.T) {
	var weights []float64
	for i := 0; i < 10000; i++ {
		weights = append(weights, 0.1)
	}
	res := NewEngine(DefaultCatalog()).Check([]models.WorkoutSession{session(day(0, 9), weights...)}, nil, now)
	if st := find(t, res.Updated, "volume_1000"); !st.Unlocked {
		t.Errorf("10000 x 0.1 kg: volume_1000 = %+v, want unlocked", st)
	}
}

// TestProgressCappedAtTarget verifies progress never exceeds the target.
func TestProgressCappedAtTarget(t *testing.T) {
	var weights []float64
	for i := 0; i < 20; i++ {
		weights = append(weights, 1000)
	}
	res := NewEngine(DefaultCatalog()).Check([]models.WorkoutSession{session(day(0, 9), weights...)}, nil, now)
	if st := find(t, res.Updated, "volume_1000"); st.Progress != 1000 {
		t.Errorf("progress = %v, want capped at 1000", st.Progress)
	}
	if st := find(t, res.Updated, "volume_100000"); st.Progress != 20000 || st.Unlocked {
		t.Errorf("volume_100000 = %+v, want progress 20000 locked", st)
	}
}

// TestConsistencyWindows verifies week (Sunday start) and month counting.
func TestConsistencyWindows(t *testing.T) {
	// now is Wednesday 2024-01-10; the week started Sunday 2024-01-07.
	history := []models.WorkoutSession{
		session(day(-4, 9)), // Sat 01-06, previous week
		session(day(-3, 9)), // Sun 01-07
		session(day(-2, 9)),
		session(day(-1, 9)),
		session(day(0, 9)),
		session(time.Date(2023, 12, 30, 9, 0, 0, 0, time.UTC)), // previous month
	}
	res := NewEngine(DefaultCatalog()).Check(history, nil, now)

	if st := find(t, res.Updated, "week_4"); !st.Unlocked {
		t.Errorf("week_4 = %+v, want unlocked with 4 sessions since Sunday", st)
	}
	if st := find(t, res.Updated, "month_12"); st.Progress != 5 {
		t.Errorf("month_12 progress = %v, want 5", st.Progress)
	}
}

// TestSpecialRules verifies early-bird, night-owl and heavy-session predicates.
func TestSpecialRules(t *testing.T) {
	var history []models.WorkoutSession
	for i := 0; i < 5; i++ {
		history = append(history, session(day(-i, 6)))
	}
	history = append(history, session(day(-6, 22)), session(day(-7, 12), 1000, 1000, 1000, 1000, 1000))

	res := NewEngine(DefaultCatalog()).Check(history, nil, now)
	if st := find(t, res.Updated, "early_bird_5"); !st.Unlocked {
		t.Errorf("early_bird_5 = %+v, want unlocked", st)
	}
	if st := find(t, res.Updated, "night_owl_5"); st.Progress != 1 {
		t.Errorf("night_owl_5 progress = %v, want 1", st.Progress)
	}
	if st := find(t, res.Updated, "heavy_session_1"); !st.Unlocked {
		t.Errorf("heavy_session_1 = %+v, want unlocked", st)
	}
}

// TestMalformedSessionsTolerated verifies that a session without a timestamp or
// with empty exercises does not break aggregation of the other sessions.
func TestMalformedSessionsTolerated(t *testing.T) {
	history := []models.WorkoutSession{
		session(day(0, 9), 600),
		{Exercises: []models.ExerciseEntry{{Name: "Bench"}}},
		session(day(-1, 9), 400),
	}
	res := NewEngine(DefaultCatalog()).Check(history, nil, now)
	if st := find(t, res.Updated, "volume_1000"); !st.Unlocked {
		t.Errorf("volume_1000 = %+v, want unlocked", st)
	}
	if st := find(t, res.Updated, "workouts_10"); st.Progress != 2 {
		t.Errorf("workouts_10 progress = %v, want 2", st.Progress)
	}
}

// TestSeedDropsOrphansAndAppendsNew verifies catalog drift handling: unknown rows are
// dropped, stored order is kept, and new definitions are appended in catalog order.
func TestSeedDropsOrphansAndAppendsNew(t *testing.T) {
	c := Catalog{
		{ID: "a", Category: models.CategoryMilestone, Target: 1},
		{ID: "b", Category: models.CategoryMilestone, Target: 2},
		{ID: "c", Category: models.CategoryMilestone, Target: 3},
	}
	stored := []models.AchievementState{
		{ID: "c", Progress: 2},
		{ID: "retired", Progress: 9},
		{ID: "a", Progress: 1},
	}

	got := Seed(c, stored)
	want := []string{"c", "a", "b"}
	if ids := stateIDs(got); !reflect.DeepEqual(ids, want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	if got[0].Progress != 2 || got[2].Progress != 0 {
		t.Errorf("seeded state = %+v", got)
	}
}

// TestCheckReportsSeedingAsChange verifies that appending new catalog entries
// marks the state as changed so it gets persisted.
func TestCheckReportsSeedingAsChange(t *testing.T) {
	c := Catalog{
		{ID: "a", Category: models.CategoryMilestone, Target: 5},
		{ID: "b", Category: models.CategoryMilestone, Target: 10},
	}
	res := NewEngine(c).Check(nil, []models.AchievementState{{ID: "a"}}, now)
	if !res.Changed {
		t.Error("expected Changed after seeding a new definition")
	}
	res = NewEngine(c).Check(nil, res.Updated, now)
	if res.Changed {
		t.Error("expected no change on settled state")
	}
}

// TestViewsAndXP verifies the display join and the XP sum of unlocked achievements.
func TestViewsAndXP(t *testing.T) {
	c := DefaultCatalog()
	state := Seed(c, []models.AchievementState{
		{ID: "first_workout", Progress: 1, Unlocked: true},
		{ID: "workouts_10", Progress: 5},
	})

	views := Views(c, state)
	if len(views) != len(c) {
		t.Fatalf("views = %d, want %d", len(views), len(c))
	}
	if views[1].ID != "workouts_10" || views[1].ProgressPct != 50 {
		t.Errorf("views[1] = %+v, want workouts_10 at 50%%", views[1])
	}
	if xp := c.XP(state); xp != 50 {
		t.Errorf("XP = %d, want 50", xp)
	}
}
