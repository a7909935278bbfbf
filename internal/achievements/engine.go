// Package achievements evaluates the achievement catalog against workout history.
//
// Evaluation is a pure function of (history, stored state, now). Progress is only
// ever raised, and an unlocked achievement is terminal, so running Check any number
// of times with the same inputs yields the same state and reports each unlock once.
package achievements

import (
	"math"
	"time"

	"github.com/voltbora/volt/internal/calendar"
	"github.com/voltbora/volt/internal/models"
	"github.com/voltbora/volt/internal/streak"
)

// Engine evaluates a catalog.
type Engine struct {
	catalog Catalog
}

// NewEngine creates an Engine over the given catalog.
func NewEngine(c Catalog) *Engine {
	return &Engine{catalog: c}
}

// Catalog returns the engine's catalog.
func (e *Engine) Catalog() Catalog {
	return e.catalog
}

// Result is the outcome of one evaluation pass.
type Result struct {
	Updated       []models.AchievementState
	NewlyUnlocked []models.AchievementState
	// Changed reports whether Updated differs from the input state.
	Changed bool
}

// metrics are the derived values every category is measured against.
type metrics struct {
	sessions      float64
	streak        float64
	volume        float64
	weekSessions  float64
	monthSessions float64
	ruleCounts    map[string]float64
}

func derive(history []models.WorkoutSession, now time.Time) metrics {
	loc := now.Location()
	today := calendar.ToLocalDate(now, loc)
	weekStart := calendar.StartOfWeek(today)
	weekEnd := weekStart.AddDays(6)
	monthStart := calendar.StartOfMonth(today)

	m := metrics{ruleCounts: make(map[string]float64, len(rules))}
	for _, s := range history {
		m.volume += s.Volume()
		if s.StartedAt.IsZero() {
			continue
		}
		m.sessions++

		d := calendar.ToLocalDate(s.StartedAt, loc)
		if calendar.InRange(d, weekStart, weekEnd) {
			m.weekSessions++
		}
		if d.Year == monthStart.Year && d.Month == monthStart.Month {
			m.monthSessions++
		}
		for name, rule := range rules {
			if rule(s, loc) {
				m.ruleCounts[name]++
			}
		}
	}
	m.volume = roundKg(m.volume)
	m.streak = float64(streak.Compute(history, now).Current)
	return m
}

func (m metrics) value(d models.AchievementDefinition) float64 {
	switch d.Category {
	case models.CategoryMilestone:
		return m.sessions
	case models.CategoryStreak:
		return m.streak
	case models.CategoryVolume:
		return m.volume
	case models.CategoryConsistency:
		if d.Window == models.WindowMonth {
			return m.monthSessions
		}
		return m.weekSessions
	case models.CategorySpecial:
		return m.ruleCounts[d.Rule]
	}
	return 0
}

// Check evaluates every locked achievement in state against history. State is
// seeded against the catalog first, so callers may pass stored state as-is.
// The input slice is not modified.
func (e *Engine) Check(history []models.WorkoutSession, state []models.AchievementState, now time.Time) Result {
	seeded := Seed(e.catalog, state)
	res := Result{Updated: make([]models.AchievementState, len(seeded))}
	res.Changed = len(seeded) != len(state)

	m := derive(history, now)
	for i, st := range seeded {
		res.Updated[i] = st
		if st.Unlocked {
			continue
		}
		d, _ := e.catalog.Lookup(st.ID)

		derived := math.Min(m.value(d), d.Target)
		if derived > st.Progress {
			st.Progress = derived
			res.Changed = true
		}
		if st.Progress >= d.Target {
			unlockedAt := now
			st.Unlocked = true
			st.UnlockedAt = &unlockedAt
			res.Changed = true
			res.NewlyUnlocked = append(res.NewlyUnlocked, st)
		}
		res.Updated[i] = st
	}
	if !res.Changed {
		for i := range state {
			if state[i].ID != seeded[i].ID {
				res.Changed = true
				break
			}
		}
	}
	return res
}

// XP sums the XP rewards of unlocked achievements.
func (c Catalog) XP(state []models.AchievementState) int {
	xp := 0
	for _, st := range state {
		if !st.Unlocked {
			continue
		}
		if d, ok := c.Lookup(st.ID); ok {
			xp += d.XPReward
		}
	}
	return xp
}

// roundKg drops float noise below a microgram so that sums like 0.1+0.2 compare
// cleanly against integer targets.
func roundKg(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*1e6) / 1e6
}
