// Package progress derives the XP, level and weekly-consistency view of a user's
// history. Nothing here is persisted; a snapshot is recomputed on every read.
package progress

import (
	"math"
	"time"

	"github.com/voltbora/volt/internal/achievements"
	"github.com/voltbora/volt/internal/calendar"
	"github.com/voltbora/volt/internal/models"
)

// Defaults for the tunable game-balance knobs.
const (
	DefaultXPPerLevel = 100
	DefaultWeeklyGoal = 4
	XPPerExercise     = 10
)

// Aggregator computes ProgressSnapshots.
type Aggregator struct {
	Catalog    achievements.Catalog
	XPPerLevel int
	WeeklyGoal int
}

// NewAggregator creates an Aggregator; non-positive knobs fall back to the defaults.
func NewAggregator(c achievements.Catalog, xpPerLevel, weeklyGoal int) *Aggregator {
	if xpPerLevel <= 0 {
		xpPerLevel = DefaultXPPerLevel
	}
	if weeklyGoal <= 0 {
		weeklyGoal = DefaultWeeklyGoal
	}
	return &Aggregator{Catalog: c, XPPerLevel: xpPerLevel, WeeklyGoal: weeklyGoal}
}

// SessionXP is the XP a single session is worth: ten per exercise entry plus one
// per minute of training.
func SessionXP(s models.WorkoutSession) int {
	xp := len(s.Exercises) * XPPerExercise
	if d := s.DurationMin; d > 0 && !math.IsInf(d, 1) {
		xp += int(math.Round(d))
	}
	return xp
}

// Level returns the level reached with xp total experience.
func (a *Aggregator) Level(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return xp/a.XPPerLevel + 1
}

// Compute derives the snapshot as of now, in now's location.
func (a *Aggregator) Compute(history []models.WorkoutSession, state []models.AchievementState, now time.Time) models.ProgressSnapshot {
	loc := now.Location()
	weekStart := calendar.StartOfWeek(calendar.ToLocalDate(now, loc))
	weekEnd := weekStart.AddDays(6)

	var snap models.ProgressSnapshot
	var volume float64
	for _, s := range history {
		volume += s.Volume()
		if s.StartedAt.IsZero() {
			continue
		}
		snap.TotalSessions++
		snap.SessionXP += SessionXP(s)
		if calendar.InRange(calendar.ToLocalDate(s.StartedAt, loc), weekStart, weekEnd) {
			snap.WeeklyCount++
		}
	}
	if math.IsNaN(volume) || math.IsInf(volume, 0) {
		volume = 0
	}
	snap.TotalVolumeKg = math.Round(volume*1e6) / 1e6

	snap.AchievementXP = a.Catalog.XP(state)
	snap.TotalXP = snap.SessionXP + snap.AchievementXP
	snap.Level = a.Level(snap.TotalXP)
	snap.XPIntoLevel = snap.TotalXP % a.XPPerLevel
	snap.XPForNextLevel = a.XPPerLevel - snap.XPIntoLevel

	snap.WeeklyGoal = a.WeeklyGoal
	snap.WeeklyRatio = math.Min(float64(snap.WeeklyCount)/float64(a.WeeklyGoal), 1)
	return snap
}
