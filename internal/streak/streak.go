// Package streak derives consecutive-day training streaks from workout history.
//
// A day counts when at least one session started on it, in the caller's time
// zone. The current streak ends on the as-of day, or on the day before when no
// session has been logged yet on the as-of day: an unfinished today never breaks
// a streak, any earlier empty day does.
package streak

import (
	"sort"
	"time"

	"github.com/voltbora/volt/internal/calendar"
	"github.com/voltbora/volt/internal/models"
)

// Compute returns the current and best streak as of asOf. History may be unsorted.
// Sessions with a zero StartedAt are ignored.
func Compute(history []models.WorkoutSession, asOf time.Time) models.StreakState {
	loc := asOf.Location()
	days := Days(history, loc)
	if len(days) == 0 {
		return models.StreakState{}
	}

	today := calendar.ToLocalDate(asOf, loc)
	current := 0
	d := today
	if !days[d] {
		d = d.AddDays(-1)
	}
	for days[d] {
		current++
		d = d.AddDays(-1)
	}

	best := longestRun(days)
	if current > best {
		best = current
	}
	return models.StreakState{Current: current, Best: best}
}

// Days collapses session timestamps to the set of distinct local calendar days.
func Days(history []models.WorkoutSession, loc *time.Location) map[calendar.Date]bool {
	days := make(map[calendar.Date]bool, len(history))
	for _, s := range history {
		if s.StartedAt.IsZero() {
			continue
		}
		days[calendar.ToLocalDate(s.StartedAt, loc)] = true
	}
	return days
}

func longestRun(days map[calendar.Date]bool) int {
	sorted := make([]calendar.Date, 0, len(days))
	for d := range days {
		sorted = append(sorted, d)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	best, run := 0, 0
	for i, d := range sorted {
		if i > 0 && calendar.DaysBetween(sorted[i-1], d) == 1 {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
	}
	return best
}
