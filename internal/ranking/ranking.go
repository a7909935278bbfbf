// Package ranking scores users for the rolling-period leaderboard.
//
// Every component of the composite score is normalized against a fixed
// denominator, never against the cohort, so a user's score depends only on
// their own history and does not move when other users recompute.
package ranking

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/voltbora/volt/internal/calendar"
	"github.com/voltbora/volt/internal/models"
)

// Composite score weights.
const (
	VolumeWeight      = 0.4
	ConsistencyWeight = 0.4
	ProxyWeight       = 0.2
)

// Defaults for the ranking knobs.
const (
	DefaultPeriodDays     = 30
	DefaultVolumeTargetKg = 50000
	DefaultWorkoutTarget  = 20
	DefaultWeeklyGoal     = 4
)

// UserAggregates are one user's raw totals for a ranking period.
type UserAggregates struct {
	UserID       int
	DisplayName  string
	RegisteredAt time.Time
	PeriodStart  calendar.Date
	VolumeKg     float64
	WorkoutCount int
	ActiveDays   int
}

// PeriodStart returns the first day of the rolling period of periodDays ending on asOf's date.
func PeriodStart(asOf time.Time, periodDays int) calendar.Date {
	if periodDays <= 0 {
		periodDays = DefaultPeriodDays
	}
	return calendar.ToLocalDate(asOf, asOf.Location()).AddDays(-(periodDays - 1))
}

// Aggregate totals the sessions dated within [periodStart, asOf's date].
// Sessions without a timestamp are skipped.
func Aggregate(userID int, registeredAt time.Time, history []models.WorkoutSession, periodStart calendar.Date, asOf time.Time) UserAggregates {
	loc := asOf.Location()
	today := calendar.ToLocalDate(asOf, loc)
	agg := UserAggregates{UserID: userID, RegisteredAt: registeredAt, PeriodStart: periodStart}

	days := make(map[calendar.Date]bool)
	for _, s := range history {
		if s.StartedAt.IsZero() {
			continue
		}
		d := calendar.ToLocalDate(s.StartedAt, loc)
		if !calendar.InRange(d, periodStart, today) {
			continue
		}
		agg.WorkoutCount++
		agg.VolumeKg += s.Volume()
		days[d] = true
	}
	agg.ActiveDays = len(days)
	agg.VolumeKg = round(agg.VolumeKg, 1e6)
	return agg
}

// Scorer turns aggregates into scored entries.
type Scorer struct {
	PeriodDays     int
	WeeklyGoal     int
	VolumeTargetKg float64
	WorkoutTarget  int
	Location       *time.Location
}

// NewScorer creates a Scorer; non-positive knobs fall back to the defaults.
func NewScorer(periodDays, weeklyGoal int, volumeTargetKg float64, workoutTarget int, loc *time.Location) *Scorer {
	if periodDays <= 0 {
		periodDays = DefaultPeriodDays
	}
	if weeklyGoal <= 0 {
		weeklyGoal = DefaultWeeklyGoal
	}
	if volumeTargetKg <= 0 {
		volumeTargetKg = DefaultVolumeTargetKg
	}
	if workoutTarget <= 0 {
		workoutTarget = DefaultWorkoutTarget
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Scorer{
		PeriodDays:     periodDays,
		WeeklyGoal:     weeklyGoal,
		VolumeTargetKg: volumeTargetKg,
		WorkoutTarget:  workoutTarget,
		Location:       loc,
	}
}

// expectedDays is the number of training days the weekly goal asks for over one period.
func (s *Scorer) expectedDays() float64 {
	return math.Max(1, math.Round(float64(s.PeriodDays)/7*float64(s.WeeklyGoal)))
}

// Entry scores one user's aggregates. Position is left at 0 (unranked);
// RankPeriod assigns positions.
func (s *Scorer) Entry(agg UserAggregates) models.RankingEntry {
	volume := percent(agg.VolumeKg, s.VolumeTargetKg)
	consistency := percent(float64(agg.ActiveDays), s.expectedDays())
	proxy := percent(float64(agg.WorkoutCount), float64(s.WorkoutTarget))

	return models.RankingEntry{
		UserID:        agg.UserID,
		DisplayName:   agg.DisplayName,
		RegisteredAt:  agg.RegisteredAt,
		PeriodStart:   agg.PeriodStart.Start(s.Location),
		TotalVolumeKg: agg.VolumeKg,
		WorkoutCount:  agg.WorkoutCount,
		Consistency:   consistency,
		StrengthProxy: proxy,
		Score:         round(VolumeWeight*volume+ConsistencyWeight*consistency+ProxyWeight*proxy, 100),
	}
}

// RankPeriod returns a copy of entries ordered by score desc, volume desc,
// registration asc, then user ID asc, with dense positions 1..N. The result
// does not depend on the order of the input.
func RankPeriod(entries []models.RankingEntry) []models.RankingEntry {
	ranked := slices.Clone(entries)
	slices.SortFunc(ranked, compare)
	for i := range ranked {
		ranked[i].Position = i + 1
	}
	return ranked
}

func compare(a, b models.RankingEntry) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := cmp.Compare(b.TotalVolumeKg, a.TotalVolumeKg); c != 0 {
		return c
	}
	if c := a.RegisteredAt.Compare(b.RegisteredAt); c != 0 {
		return c
	}
	return cmp.Compare(a.UserID, b.UserID)
}

// percent returns v/target as a 0-100 percentage, capped at 100.
func percent(v, target float64) float64 {
	if target <= 0 || v <= 0 || math.IsNaN(v) {
		return 0
	}
	return round(math.Min(v/target, 1)*100, 100)
}

func round(v, scale float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*scale) / scale
}
